package protocol

import "encoding/json"

// Inbound message types (client -> server).
const (
	TypeJoinGame       = "join-game"
	TypePlayerMove     = "player-move"
	TypeCollectCrystal = "collect-crystal"
)

// Outbound message types (server -> client).
const (
	TypeGameState          = "game-state"
	TypePlayerJoined       = "player-joined"
	TypePlayerMoved        = "player-moved"
	TypePlayerLeft         = "player-left"
	TypeCrystalCollected   = "crystal-collected"
	TypeNewCrystal         = "new-crystal"
	TypeCrystalPulseUpdate = "crystal-pulse-update"
)

// Envelope is the frame shape for every message in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func DecodeEnvelope(b []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(b, &env)
	return env, err
}

// Encode wraps payload in an envelope of the given type.
func Encode(typ string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: typ, Data: data})
}
