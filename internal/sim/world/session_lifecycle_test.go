package world

import (
	"testing"

	"crystalcollectors.io/internal/protocol"
)

func TestJoin_FirstPlayerStartsWorld(t *testing.T) {
	h := newHarness(t, WorldConfig{})
	if h.w.started || len(h.w.crystals) != 0 {
		t.Fatalf("fresh world should be unstarted and empty")
	}

	p := h.join("c1", "Alice")
	if !h.w.started {
		t.Fatalf("expected started=true after first join")
	}
	if len(h.w.crystals) != 15 {
		t.Fatalf("expected 15 crystals, got %d", len(h.w.crystals))
	}
	if p.Name != "Alice" || p.Score != 0 || p.Speed != 200 {
		t.Fatalf("unexpected player: %+v", p)
	}
	if p.X < 50 || p.X > 1150 || p.Y < 50 || p.Y > 750 {
		t.Fatalf("spawn outside inset: (%v,%v)", p.X, p.Y)
	}
	found := false
	for _, c := range defaultPlayerColors {
		if c == p.Color {
			found = true
		}
	}
	if !found {
		t.Fatalf("color %x not in palette", p.Color)
	}

	envs := h.drain("c1")
	states := ofType(envs, protocol.TypeGameState)
	if len(states) != 1 {
		t.Fatalf("expected one game-state, got %d (%v)", len(states), envs)
	}
	gs := decodeData[protocol.GameStateMsg](t, states[0])
	if !gs.GameStarted || gs.MaxCrystals != 15 || gs.GameWidth != 1200 || gs.GameHeight != 800 {
		t.Fatalf("unexpected snapshot meta: %+v", gs)
	}
	if len(gs.Crystals) != 15 || len(gs.Players) != 1 {
		t.Fatalf("unexpected snapshot contents: players=%d crystals=%d", len(gs.Players), len(gs.Crystals))
	}
	if len(ofType(envs, protocol.TypePlayerJoined)) != 0 {
		t.Fatalf("joiner must not receive its own player-joined")
	}
}

func TestJoin_SecondPlayerSeesFirstAndIsAnnounced(t *testing.T) {
	h := newHarness(t, WorldConfig{})
	h.join("c1", "")
	first := h.w.ExportSnapshot().Crystals
	h.drain("c1")

	p2 := h.join("c2", "")
	if p2.Name != "Player 2" {
		t.Fatalf("expected default name Player 2, got %q", p2.Name)
	}

	gs := decodeData[protocol.GameStateMsg](t, ofType(h.drain("c2"), protocol.TypeGameState)[0])
	if _, ok := gs.Players["c1"]; !ok {
		t.Fatalf("second joiner snapshot missing first player: %+v", gs.Players)
	}
	if gs.Players["c1"].Name != "Player 1" {
		t.Fatalf("first player name: %q", gs.Players["c1"].Name)
	}

	joined := ofType(h.drain("c1"), protocol.TypePlayerJoined)
	if len(joined) != 1 {
		t.Fatalf("first player expected one player-joined, got %d", len(joined))
	}
	if got := decodeData[protocol.Player](t, joined[0]); got.ID != "c2" || got.Name != "Player 2" {
		t.Fatalf("unexpected player-joined payload: %+v", got)
	}

	// Crystal set is not re-initialized on later joins.
	if second := h.w.ExportSnapshot().Crystals; second[0].ID != first[0].ID {
		t.Fatalf("crystals re-initialized on second join")
	}
}

func TestJoin_UnjoinedConnectionStillReceivesAnnouncements(t *testing.T) {
	h := newHarness(t, WorldConfig{})
	h.connect("watcher")
	h.join("c1", "Alice")
	if len(ofType(h.drain("watcher"), protocol.TypePlayerJoined)) != 1 {
		t.Fatalf("connected but unjoined sessions receive broadcasts")
	}
}

func TestJoin_DefaultNamesRepeatAfterChurn(t *testing.T) {
	h := newHarness(t, WorldConfig{})
	a := h.join("c1", "")
	h.w.handleDisconnect("c1")
	b := h.join("c2", "")
	if a.Name != "Player 1" || b.Name != "Player 1" {
		t.Fatalf("expected both to be Player 1, got %q and %q", a.Name, b.Name)
	}
}

func TestJoin_StartedNeverResets(t *testing.T) {
	h := newHarness(t, WorldConfig{})
	h.join("c1", "")
	ids := map[string]bool{}
	for _, c := range h.w.crystals {
		ids[c.ID] = true
	}
	h.w.handleDisconnect("c1")
	if !h.w.started {
		t.Fatalf("started must stay true after the last player leaves")
	}
	h.join("c2", "")
	for _, c := range h.w.crystals {
		if !ids[c.ID] {
			t.Fatalf("crystals were regenerated on rejoin of an empty started world")
		}
	}
}

func TestDisconnect_AnnouncesToOthers(t *testing.T) {
	h := newHarness(t, WorldConfig{})
	h.join("c1", "")
	h.join("c2", "")
	h.drain("c1")
	h.drain("c2")

	h.w.handleDisconnect("c2")
	if _, ok := h.w.players["c2"]; ok {
		t.Fatalf("player record not removed")
	}
	if _, ok := h.w.clients["c2"]; ok {
		t.Fatalf("client not unregistered")
	}
	left := ofType(h.drain("c1"), protocol.TypePlayerLeft)
	if len(left) != 1 || decodeData[string](t, left[0]) != "c2" {
		t.Fatalf("expected player-left c2, got %v", left)
	}
	if len(h.drain("c2")) != 0 {
		t.Fatalf("departed connection must not receive its own player-left")
	}
}

func TestDisconnect_WithoutJoinIsSilent(t *testing.T) {
	h := newHarness(t, WorldConfig{})
	h.join("c1", "")
	h.connect("lurker")
	h.drain("c1")

	h.w.handleDisconnect("lurker")
	if envs := h.drain("c1"); len(ofType(envs, protocol.TypePlayerLeft)) != 0 {
		t.Fatalf("no player-left expected for a never-joined connection, got %v", envs)
	}
}

func TestJoin_RecordsEvents(t *testing.T) {
	h := newHarness(t, WorldConfig{ID: "w1"})
	rec := &recordingLogger{}
	h.w.SetEventLogger(rec)
	h.join("c1", "Alice")
	h.w.handleDisconnect("c1")

	kinds := []string{}
	for _, e := range rec.events {
		kinds = append(kinds, e.Kind)
		if e.WorldID != "w1" {
			t.Fatalf("event missing world id: %+v", e)
		}
	}
	want := []string{EventWorldStart, EventJoin, EventLeave}
	if len(kinds) != len(want) {
		t.Fatalf("events=%v want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("events=%v want %v", kinds, want)
		}
	}
}
