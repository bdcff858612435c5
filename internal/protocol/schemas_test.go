package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"crystalcollectors.io/internal/protocol"
)

func TestSchemas_ValidateEncodedMessages(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	envelopeSchema := compile("envelope.schema.json")

	// check encodes payload the way the server does, then validates both the
	// envelope and the payload against their schemas.
	check := func(typ string, s *jsonschema.Schema, payload any) {
		t.Helper()
		b, err := protocol.Encode(typ, payload)
		if err != nil {
			t.Fatalf("encode %s: %v", typ, err)
		}
		var env any
		if err := json.Unmarshal(b, &env); err != nil {
			t.Fatalf("unmarshal %s: %v", typ, err)
		}
		if err := envelopeSchema.Validate(env); err != nil {
			t.Fatalf("envelope %s: %v", typ, err)
		}
		data := env.(map[string]any)["data"]
		if err := s.Validate(data); err != nil {
			t.Fatalf("payload %s: %v", typ, err)
		}
	}

	p1 := protocol.Player{ID: "p1", Name: "Player 1", X: 100, Y: 120, Score: 10, Color: 0x4ecdc4, Speed: 200, LastUpdate: 1700000000000}
	c1 := protocol.Crystal{ID: "c1", X: 300, Y: 200, Type: "ruby", Value: 10, Color: 0xff0066, PulsePhase: 1.5}

	check(protocol.TypeGameState, compile("game_state.schema.json"), protocol.GameStateMsg{
		Players:     map[string]protocol.Player{p1.ID: p1},
		Crystals:    []protocol.Crystal{c1},
		GameStarted: true,
		MaxCrystals: 15,
		GameWidth:   1200,
		GameHeight:  800,
	})
	check(protocol.TypePlayerJoined, compile("player.schema.json"), p1)
	check(protocol.TypePlayerMoved, compile("player_moved.schema.json"), protocol.PlayerMovedMsg{ID: "p1", X: 25, Y: 775})
	check(protocol.TypeCrystalCollected, compile("crystal_collected.schema.json"), protocol.CrystalCollectedMsg{
		CrystalID: "c1", PlayerID: "p1", PlayerName: "Player 1", Value: 10, NewScore: 20,
	})
	check(protocol.TypeNewCrystal, compile("crystal.schema.json"), c1)
	check(protocol.TypeCrystalPulseUpdate, compile("crystal_pulse_update.schema.json"), []protocol.CrystalPulse{{ID: "c1", PulsePhase: 1.6}})
}

func TestSchemas_EmptySnapshotEncodesCollections(t *testing.T) {
	s, err := jsonschema.Compile(filepath.Join("..", "..", "schemas", "game_state.schema.json"))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	b, err := json.Marshal(protocol.GameStateMsg{
		Players:    map[string]protocol.Player{},
		Crystals:   []protocol.Crystal{},
		GameWidth:  1200,
		GameHeight: 800,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var v any
	_ = json.Unmarshal(b, &v)
	if err := s.Validate(v); err != nil {
		t.Fatalf("validate: %v", err)
	}
}
