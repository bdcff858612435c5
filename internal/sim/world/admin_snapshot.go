package world

import (
	"context"
	"errors"
	"sort"

	"crystalcollectors.io/internal/persistence/snapshot"
)

var ErrWorldStopped = errors.New("world stopped")

type adminSnapshotReq struct {
	Resp chan snapshot.SnapshotV1
}

// RequestSnapshot asks the world loop for a dump of the current state.
func (w *World) RequestSnapshot(ctx context.Context) (snapshot.SnapshotV1, error) {
	req := adminSnapshotReq{Resp: make(chan snapshot.SnapshotV1, 1)}
	select {
	case w.admin <- req:
	case <-w.done:
		return snapshot.SnapshotV1{}, ErrWorldStopped
	case <-ctx.Done():
		return snapshot.SnapshotV1{}, ctx.Err()
	}
	select {
	case snap := <-req.Resp:
		return snap, nil
	case <-w.done:
		return snapshot.SnapshotV1{}, ErrWorldStopped
	case <-ctx.Done():
		return snapshot.SnapshotV1{}, ctx.Err()
	}
}

func (w *World) handleAdminSnapshot(req adminSnapshotReq) {
	if req.Resp == nil {
		return
	}
	req.Resp <- w.ExportSnapshot()
}

// ExportSnapshot must be called from the world loop goroutine (or before Run).
func (w *World) ExportSnapshot() snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version:     1,
			WorldID:     w.cfg.ID,
			TakenAtUnix: w.now().UnixMilli(),
		},
		Width:       w.cfg.Width,
		Height:      w.cfg.Height,
		MaxCrystals: w.cfg.MaxCrystals,
		Started:     w.started,
		Counters: snapshot.CountersV1{
			Collected:       w.collectedTotal,
			Rejected:        w.rejectedTotal,
			Pulses:          w.pulses,
			PendingRespawns: w.pendingRespawns,
		},
	}

	ids := make([]string, 0, len(w.players))
	for id := range w.players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		p := w.players[id]
		snap.Players = append(snap.Players, snapshot.PlayerV1{
			ID:             p.ID,
			Name:           p.Name,
			X:              p.X,
			Y:              p.Y,
			Score:          p.Score,
			Color:          p.Color,
			LastUpdateUnix: p.LastUpdate.UnixMilli(),
		})
	}
	for _, c := range w.crystals {
		snap.Crystals = append(snap.Crystals, snapshot.CrystalV1{
			ID:         c.ID,
			Type:       c.Type,
			X:          c.X,
			Y:          c.Y,
			Value:      c.Value,
			Collected:  c.Collected,
			PulsePhase: c.PulsePhase,
		})
	}
	return snap
}
