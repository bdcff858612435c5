package world

import (
	"context"
	"time"
)

// Run processes connection events, deferred replacements, admin requests and
// pulse ticks one at a time until ctx is done or Stop is called. It must be
// called at most once.
func (w *World) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PulseInterval)
	defer ticker.Stop()
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case env := <-w.inbox:
			w.applyAction(env)
		case id := <-w.replace:
			w.handleReplace(id)
		case req := <-w.admin:
			w.handleAdminSnapshot(req)
		case <-ticker.C:
			w.pulse()
		}
		w.publishMetrics()
	}
}

func (w *World) Stop() { close(w.stop) }

func (w *World) applyAction(env ActionEnvelope) {
	switch a := env.Action.(type) {
	case ConnectAction:
		w.handleConnect(env.ConnID, a.Out)
	case DisconnectAction:
		w.handleDisconnect(env.ConnID)
	case JoinAction:
		w.handleJoin(env.ConnID, a.Name)
	case MoveAction:
		w.handleMove(env.ConnID, a.X, a.Y)
	case CollectAction:
		w.handleCollect(env.ConnID, a.CrystalID)
	}
}
