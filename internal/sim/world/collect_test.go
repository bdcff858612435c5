package world

import (
	"testing"
	"time"

	"crystalcollectors.io/internal/protocol"
)

func TestCollect_WithinRadiusSucceeds(t *testing.T) {
	h := newHarness(t, WorldConfig{})
	p := h.join("c1", "Alice")
	h.join("c2", "Bob")
	p.X, p.Y = 100, 100
	c := h.placeCrystal(100, 135)
	h.drain("c1")
	h.drain("c2")

	h.w.handleCollect("c1", c.ID)

	if !c.Collected {
		t.Fatalf("crystal should be collected")
	}
	if p.Score != c.Value {
		t.Fatalf("score=%d want %d", p.Score, c.Value)
	}
	for _, conn := range []string{"c1", "c2"} {
		got := ofType(h.drain(conn), protocol.TypeCrystalCollected)
		if len(got) != 1 {
			t.Fatalf("%s expected one crystal-collected, got %d", conn, len(got))
		}
		msg := decodeData[protocol.CrystalCollectedMsg](t, got[0])
		if msg.CrystalID != c.ID || msg.PlayerID != "c1" || msg.PlayerName != "Alice" || msg.Value != c.Value || msg.NewScore != p.Score {
			t.Fatalf("%s unexpected payload %+v", conn, msg)
		}
	}
	if len(h.pending) != 1 || h.pending[0].delay != time.Second {
		t.Fatalf("expected one replacement scheduled after 1s, got %+v", h.pending)
	}
}

func TestCollect_OutOfRangeRejected(t *testing.T) {
	h := newHarness(t, WorldConfig{})
	rec := &recordingLogger{}
	h.w.SetAuditLogger(rec)
	p := h.join("c1", "")
	p.X, p.Y = 100, 100
	c := h.placeCrystal(100, 150)
	h.drain("c1")

	h.w.handleCollect("c1", c.ID)

	if c.Collected || p.Score != 0 {
		t.Fatalf("out-of-range collect must not change state")
	}
	if envs := h.drain("c1"); len(envs) != 0 {
		t.Fatalf("rejection must be silent, got %v", envs)
	}
	if len(h.pending) != 0 {
		t.Fatalf("no replacement expected")
	}
	if len(rec.audits) != 1 || rec.audits[0].Reason != RejectOutOfRange || rec.audits[0].Distance != 50 {
		t.Fatalf("unexpected audit trail: %+v", rec.audits)
	}
}

func TestCollect_RadiusBoundaryInclusive(t *testing.T) {
	h := newHarness(t, WorldConfig{})
	p := h.join("c1", "")
	p.X, p.Y = 200, 200
	c := h.placeCrystal(224, 232) // 3-4-5 triangle scaled by 8: distance 40
	h.w.handleCollect("c1", c.ID)
	if !c.Collected {
		t.Fatalf("distance exactly 40 should be collectable")
	}
}

func TestCollect_SecondAttemptNeverScoresAgain(t *testing.T) {
	h := newHarness(t, WorldConfig{})
	rec := &recordingLogger{}
	h.w.SetAuditLogger(rec)
	p := h.join("c1", "")
	q := h.join("c2", "")
	p.X, p.Y = 100, 100
	q.X, q.Y = 100, 110
	c := h.placeCrystal(100, 120)

	h.w.handleCollect("c1", c.ID)
	score := p.Score
	h.drain("c1")
	h.drain("c2")

	for i := 0; i < 5; i++ {
		h.w.handleCollect("c1", c.ID)
		h.w.handleCollect("c2", c.ID)
	}
	if p.Score != score || q.Score != 0 {
		t.Fatalf("repeat collection changed scores: p=%d q=%d", p.Score, q.Score)
	}
	if len(ofType(h.drain("c1"), protocol.TypeCrystalCollected)) != 0 {
		t.Fatalf("repeat collection must not broadcast")
	}
	if len(h.pending) != 1 {
		t.Fatalf("only the first collection schedules a replacement, got %d", len(h.pending))
	}
	for _, a := range rec.audits {
		if a.Reason != RejectAlreadyCollected {
			t.Fatalf("unexpected audit reason %q", a.Reason)
		}
	}
}

func TestCollect_IgnoresUnknownCrystalAndMissingPlayer(t *testing.T) {
	h := newHarness(t, WorldConfig{})
	rec := &recordingLogger{}
	h.w.SetAuditLogger(rec)
	p := h.join("c1", "")
	c := h.placeCrystal(p.X, p.Y)
	h.connect("ghost")
	h.drain("c1")

	h.w.handleCollect("c1", "does-not-exist")
	h.w.handleCollect("ghost", c.ID)

	if c.Collected || p.Score != 0 {
		t.Fatalf("state changed on ignored requests")
	}
	if len(h.drain("c1")) != 0 {
		t.Fatalf("ignored requests must be silent")
	}
	if len(rec.audits) != 2 || rec.audits[0].Reason != RejectUnknownCrystal || rec.audits[1].Reason != RejectNoPlayer {
		t.Fatalf("unexpected audits: %+v", rec.audits)
	}
	if m := h.w.rejectedTotal; m != 2 {
		t.Fatalf("rejectedTotal=%d want 2", m)
	}
}

func TestReplacement_RestoresPopulationAndBroadcasts(t *testing.T) {
	h := newHarness(t, WorldConfig{})
	p := h.join("c1", "")
	h.join("c2", "")
	c := h.placeCrystal(p.X, p.Y)
	h.w.handleCollect("c1", c.ID)

	// Inside the window the collected crystal is still present.
	if len(h.w.crystals) != 15 || h.w.pendingRespawns != 1 {
		t.Fatalf("crystals=%d pending=%d", len(h.w.crystals), h.w.pendingRespawns)
	}
	h.drain("c1")
	h.drain("c2")

	h.runPending()

	if len(h.w.crystals) != 15 {
		t.Fatalf("expected population 15 after replacement, got %d", len(h.w.crystals))
	}
	if _, ok := h.w.findCrystal(c.ID); ok {
		t.Fatalf("collected crystal not removed")
	}
	for _, cr := range h.w.crystals {
		if cr.Collected {
			t.Fatalf("collected crystal left behind: %+v", cr)
		}
	}
	if h.w.pendingRespawns != 0 {
		t.Fatalf("pendingRespawns=%d", h.w.pendingRespawns)
	}
	for _, conn := range []string{"c1", "c2"} {
		got := ofType(h.drain(conn), protocol.TypeNewCrystal)
		if len(got) != 1 {
			t.Fatalf("%s expected one new-crystal, got %d", conn, len(got))
		}
		nc := decodeData[protocol.Crystal](t, got[0])
		if nc.ID == c.ID || nc.Collected {
			t.Fatalf("unexpected replacement %+v", nc)
		}
	}
}

func TestReplacement_SurvivesCollectorDisconnect(t *testing.T) {
	h := newHarness(t, WorldConfig{})
	p := h.join("c1", "")
	h.join("c2", "")
	c := h.placeCrystal(p.X, p.Y)
	h.w.handleCollect("c1", c.ID)
	h.w.handleDisconnect("c1")
	h.drain("c2")

	h.runPending()

	if len(h.w.crystals) != 15 {
		t.Fatalf("replacement must still run, crystals=%d", len(h.w.crystals))
	}
	if len(ofType(h.drain("c2"), protocol.TypeNewCrystal)) != 1 {
		t.Fatalf("remaining player should see new-crystal")
	}
}
