package world

import (
	"crystalcollectors.io/internal/protocol"
)

func (w *World) handleCollect(connID, crystalID string) {
	c := w.findUncollected(crystalID)
	if c == nil {
		reason := RejectUnknownCrystal
		if _, ok := w.findCrystal(crystalID); ok {
			reason = RejectAlreadyCollected
		}
		w.logAudit(AuditEntry{Actor: connID, Action: "COLLECT", Target: crystalID, Reason: reason})
		return
	}
	p := w.players[connID]
	if p == nil {
		w.logAudit(AuditEntry{Actor: connID, Action: "COLLECT", Target: crystalID, Reason: RejectNoPlayer})
		return
	}

	d := distance(p.X, p.Y, c.X, c.Y)
	if d > w.cfg.CollectRadius {
		w.logAudit(AuditEntry{Actor: connID, Action: "COLLECT", Target: crystalID, Reason: RejectOutOfRange, Distance: d})
		return
	}

	c.Collected = true
	p.Score += c.Value
	w.collectedTotal++

	w.broadcastAll(protocol.TypeCrystalCollected, protocol.CrystalCollectedMsg{
		CrystalID:  crystalID,
		PlayerID:   connID,
		PlayerName: p.Name,
		Value:      c.Value,
		NewScore:   p.Score,
	})
	w.logEvent(EventLogEntry{
		Kind:       EventCollect,
		PlayerID:   p.ID,
		PlayerName: p.Name,
		CrystalID:  c.ID,
		Crystal:    c.Type,
		Value:      c.Value,
		Score:      p.Score,
	})

	w.scheduleReplacement(crystalID)
}

func (w *World) findUncollected(id string) *Crystal {
	for _, c := range w.crystals {
		if c.ID == id && !c.Collected {
			return c
		}
	}
	return nil
}

// scheduleReplacement re-enters the world loop through w.replace once the
// respawn delay has passed. It is never cancelled.
func (w *World) scheduleReplacement(crystalID string) {
	w.pendingRespawns++
	w.after(w.cfg.RespawnDelay, func() {
		select {
		case w.replace <- crystalID:
		case <-w.done:
		}
	})
}

func (w *World) handleReplace(crystalID string) {
	if w.pendingRespawns > 0 {
		w.pendingRespawns--
	}
	kept := w.crystals[:0]
	for _, c := range w.crystals {
		if c.ID != crystalID {
			kept = append(kept, c)
		}
	}
	w.crystals = kept

	nc := w.generateCrystal()
	w.crystals = append(w.crystals, nc)
	w.broadcastAll(protocol.TypeNewCrystal, nc.wire())
	w.logEvent(EventLogEntry{Kind: EventRespawn, CrystalID: nc.ID, Crystal: nc.Type, Value: nc.Value})
}
