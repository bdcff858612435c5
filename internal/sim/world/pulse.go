package world

import "crystalcollectors.io/internal/protocol"

// pulse advances every crystal's animation phase and broadcasts the phases.
// Phases are never wrapped.
func (w *World) pulse() {
	w.pulses++
	out := make([]protocol.CrystalPulse, 0, len(w.crystals))
	for _, c := range w.crystals {
		c.PulsePhase += w.cfg.PulseStep
		out = append(out, protocol.CrystalPulse{ID: c.ID, PulsePhase: c.PulsePhase})
	}
	w.broadcastAll(protocol.TypeCrystalPulseUpdate, out)
}
