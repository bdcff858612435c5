package world

import (
	"math"
	"time"

	"crystalcollectors.io/internal/protocol"
)

// Slack on top of max_speed*dt for jitter in client send timing.
const (
	speedSlackFactor = 1.5
	speedSlackUnits  = 5.0
)

func (w *World) handleMove(connID string, x, y float64) {
	p := w.players[connID]
	if p == nil {
		return
	}
	if math.IsNaN(x) || math.IsNaN(y) {
		return
	}
	now := w.now()
	// Clamp the target first: infinite input never reaches limitReach, and a
	// point on the segment between two in-bounds points stays in bounds.
	x = clamp(x, w.cfg.PlayerMargin, float64(w.cfg.Width)-w.cfg.PlayerMargin)
	y = clamp(y, w.cfg.PlayerMargin, float64(w.cfg.Height)-w.cfg.PlayerMargin)
	if w.cfg.MaxSpeed > 0 {
		x, y = limitReach(p.X, p.Y, x, y, w.cfg.MaxSpeed, now.Sub(p.LastUpdate))
	}
	p.X, p.Y = x, y
	p.LastUpdate = now

	w.broadcastExcept(connID, protocol.TypePlayerMoved, protocol.PlayerMovedMsg{ID: connID, X: p.X, Y: p.Y})
}

// limitReach shortens the step from (fromX,fromY) toward (toX,toY) to the
// distance reachable at maxSpeed within dt.
func limitReach(fromX, fromY, toX, toY, maxSpeed float64, dt time.Duration) (float64, float64) {
	if dt < 0 {
		dt = 0
	}
	reach := maxSpeed*dt.Seconds()*speedSlackFactor + speedSlackUnits
	dx, dy := toX-fromX, toY-fromY
	d := math.Hypot(dx, dy)
	if d <= reach {
		return toX, toY
	}
	k := reach / d
	return fromX + dx*k, fromY + dy*k
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func distance(ax, ay, bx, by float64) float64 {
	return math.Hypot(ax-bx, ay-by)
}
