package protocol

import (
	"encoding/json"
	"errors"
	"strconv"
)

var ErrMalformed = errors.New("malformed payload")

// MoveMsg is the player-move payload. Coordinates stay raw so a missing one
// can be told apart from an explicit zero, and so literals beyond float64
// range still decode.
type MoveMsg struct {
	X json.RawMessage `json:"x"`
	Y json.RawMessage `json:"y"`
}

// DecodeJoin returns the requested display name. Anything that is not a JSON
// string (null, numbers, objects) is treated as "no name".
func DecodeJoin(data json.RawMessage) string {
	if len(data) == 0 {
		return ""
	}
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return ""
	}
	return name
}

func DecodeMove(data json.RawMessage) (x, y float64, err error) {
	var m MoveMsg
	if err := json.Unmarshal(data, &m); err != nil {
		return 0, 0, ErrMalformed
	}
	if x, err = parseCoord(m.X); err != nil {
		return 0, 0, err
	}
	if y, err = parseCoord(m.Y); err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

// parseCoord accepts a JSON number literal. Magnitudes past float64 range
// come back as +Inf or -Inf; the world clamps them to the field.
func parseCoord(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || raw[0] == '"' {
		return 0, ErrMalformed
	}
	v, err := strconv.ParseFloat(string(raw), 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, ErrMalformed
	}
	return v, nil
}

func DecodeCollect(data json.RawMessage) (string, error) {
	var id string
	if err := json.Unmarshal(data, &id); err != nil {
		return "", ErrMalformed
	}
	if id == "" {
		return "", ErrMalformed
	}
	return id, nil
}

// Player is the wire form of a player record.
type Player struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Score      int     `json:"score"`
	Color      int     `json:"color"`
	Speed      float64 `json:"speed"`
	LastUpdate int64   `json:"lastUpdate"`
}

// Crystal is the wire form of a collectible.
type Crystal struct {
	ID         string  `json:"id"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Type       string  `json:"type"`
	Value      int     `json:"value"`
	Color      int     `json:"color"`
	Collected  bool    `json:"collected"`
	PulsePhase float64 `json:"pulsePhase"`
}

// GameStateMsg is the full snapshot sent to a joining connection.
type GameStateMsg struct {
	Players     map[string]Player `json:"players"`
	Crystals    []Crystal         `json:"crystals"`
	GameStarted bool              `json:"gameStarted"`
	MaxCrystals int               `json:"maxCrystals"`
	GameWidth   int               `json:"gameWidth"`
	GameHeight  int               `json:"gameHeight"`
}

type PlayerMovedMsg struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

type CrystalCollectedMsg struct {
	CrystalID  string `json:"crystalId"`
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Value      int    `json:"value"`
	NewScore   int    `json:"newScore"`
}

type CrystalPulse struct {
	ID         string  `json:"id"`
	PulsePhase float64 `json:"pulsePhase"`
}
