package world

import (
	"encoding/json"
	"testing"
	"time"

	"crystalcollectors.io/internal/protocol"
)

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type scheduled struct {
	delay time.Duration
	fn    func()
}

type harness struct {
	t       *testing.T
	w       *World
	clock   *testClock
	pending []scheduled
	outs    map[string]chan []byte
}

func newHarness(t *testing.T, cfg WorldConfig) *harness {
	t.Helper()
	if cfg.Seed == 0 {
		cfg.Seed = 42
	}
	h := &harness{
		t:     t,
		w:     New(cfg, nil),
		clock: &testClock{t: time.Unix(1700000000, 0)},
		outs:  map[string]chan []byte{},
	}
	h.w.now = h.clock.now
	h.w.after = func(d time.Duration, f func()) {
		h.pending = append(h.pending, scheduled{delay: d, fn: f})
	}
	return h
}

func (h *harness) connect(connID string) {
	out := make(chan []byte, 256)
	h.outs[connID] = out
	h.w.handleConnect(connID, out)
}

func (h *harness) join(connID, name string) *Player {
	h.t.Helper()
	if _, ok := h.outs[connID]; !ok {
		h.connect(connID)
	}
	h.w.handleJoin(connID, name)
	p := h.w.players[connID]
	if p == nil {
		h.t.Fatalf("join %s: no player record", connID)
	}
	return p
}

// runPending fires every scheduled replacement and feeds it through the loop handler.
func (h *harness) runPending() {
	h.t.Helper()
	fns := h.pending
	h.pending = nil
	for _, s := range fns {
		s.fn()
		select {
		case id := <-h.w.replace:
			h.w.handleReplace(id)
		default:
			h.t.Fatalf("scheduled task did not enqueue a replacement")
		}
	}
}

// drain returns every envelope queued for connID.
func (h *harness) drain(connID string) []protocol.Envelope {
	h.t.Helper()
	var envs []protocol.Envelope
	out := h.outs[connID]
	for {
		select {
		case b := <-out:
			env, err := protocol.DecodeEnvelope(b)
			if err != nil {
				h.t.Fatalf("decode envelope: %v", err)
			}
			envs = append(envs, env)
		default:
			return envs
		}
	}
}

func ofType(envs []protocol.Envelope, typ string) []protocol.Envelope {
	var out []protocol.Envelope
	for _, e := range envs {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func decodeData[T any](t *testing.T, env protocol.Envelope) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		t.Fatalf("decode %s: %v", env.Type, err)
	}
	return v
}

// placeCrystal pins the first crystal to (x, y) and returns it.
func (h *harness) placeCrystal(x, y float64) *Crystal {
	h.t.Helper()
	if len(h.w.crystals) == 0 {
		h.t.Fatalf("no crystals")
	}
	c := h.w.crystals[0]
	c.X, c.Y = x, y
	return c
}

type recordingLogger struct {
	events []EventLogEntry
	audits []AuditEntry
}

func (r *recordingLogger) WriteEvent(e EventLogEntry) error {
	r.events = append(r.events, e)
	return nil
}

func (r *recordingLogger) WriteAudit(e AuditEntry) error {
	r.audits = append(r.audits, e)
	return nil
}
