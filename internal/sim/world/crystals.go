package world

import (
	"math"

	"github.com/google/uuid"

	"crystalcollectors.io/internal/protocol"
)

// pickCrystalType walks the type table accumulating rarity and returns the
// first type whose cumulative weight reaches r. If the weights never reach r
// the first type wins.
func pickCrystalType(types []CrystalType, r float64) CrystalType {
	cumulative := 0.0
	for _, ct := range types {
		cumulative += ct.Rarity
		if r <= cumulative {
			return ct
		}
	}
	return types[0]
}

func (w *World) generateCrystal() *Crystal {
	ct := pickCrystalType(w.cfg.CrystalTypes, w.rng.Float64())
	x, y := w.randomInset(w.cfg.SpawnMargin)
	return &Crystal{
		ID:         w.newID(),
		X:          x,
		Y:          y,
		Type:       ct.Type,
		Value:      ct.Value,
		Color:      ct.Color,
		PulsePhase: w.rng.Float64() * 2 * math.Pi,
	}
}

func (w *World) initializeCrystals() {
	w.crystals = make([]*Crystal, 0, w.cfg.MaxCrystals)
	for i := 0; i < w.cfg.MaxCrystals; i++ {
		w.crystals = append(w.crystals, w.generateCrystal())
	}
}

// randomInset returns a uniform point inside the world shrunk by margin on every side.
func (w *World) randomInset(margin float64) (float64, float64) {
	x := margin + w.rng.Float64()*(float64(w.cfg.Width)-2*margin)
	y := margin + w.rng.Float64()*(float64(w.cfg.Height)-2*margin)
	return x, y
}

// newID draws a v4 uuid from the world's random source so seeded worlds
// produce the same ids.
func (w *World) newID() string {
	id, err := uuid.NewRandomFromReader(w.rng)
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (w *World) findCrystal(id string) (*Crystal, bool) {
	for _, c := range w.crystals {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

func (c *Crystal) wire() protocol.Crystal {
	return protocol.Crystal{
		ID:         c.ID,
		X:          c.X,
		Y:          c.Y,
		Type:       c.Type,
		Value:      c.Value,
		Color:      c.Color,
		Collected:  c.Collected,
		PulsePhase: c.PulsePhase,
	}
}
