package world

import (
	"fmt"

	"crystalcollectors.io/internal/protocol"
)

func (w *World) handleConnect(connID string, out chan []byte) {
	if connID == "" {
		return
	}
	w.clients[connID] = &clientState{Out: out}
	w.log.Printf("new player connected: %s", connID)
}

func (w *World) handleJoin(connID, name string) {
	if name == "" {
		// Counted before this join is stored, so names repeat after churn.
		name = fmt.Sprintf("Player %d", len(w.players)+1)
	}
	x, y := w.randomInset(w.cfg.SpawnMargin)
	p := &Player{
		ID:         connID,
		Name:       name,
		X:          x,
		Y:          y,
		Color:      w.cfg.PlayerColors[w.rng.Intn(len(w.cfg.PlayerColors))],
		Speed:      w.cfg.PlayerSpeed,
		LastUpdate: w.now(),
	}
	w.players[connID] = p

	if !w.started && len(w.players) == 1 {
		w.started = true
		w.initializeCrystals()
		w.logEvent(EventLogEntry{Kind: EventWorldStart, PlayerID: p.ID, PlayerName: p.Name})
	}

	w.unicast(connID, protocol.TypeGameState, w.gameState())
	w.broadcastExcept(connID, protocol.TypePlayerJoined, p.wire())

	w.logEvent(EventLogEntry{Kind: EventJoin, PlayerID: p.ID, PlayerName: p.Name})
	w.log.Printf("%s joined the game", p.Name)
}

func (w *World) handleDisconnect(connID string) {
	delete(w.clients, connID)

	p, ok := w.players[connID]
	if !ok {
		return
	}
	delete(w.players, connID)
	w.broadcastExcept(connID, protocol.TypePlayerLeft, connID)

	w.logEvent(EventLogEntry{Kind: EventLeave, PlayerID: p.ID, PlayerName: p.Name, Score: p.Score})
	w.log.Printf("%s disconnected", p.Name)
}

func (w *World) gameState() protocol.GameStateMsg {
	players := make(map[string]protocol.Player, len(w.players))
	for id, p := range w.players {
		players[id] = p.wire()
	}
	crystals := make([]protocol.Crystal, 0, len(w.crystals))
	for _, c := range w.crystals {
		crystals = append(crystals, c.wire())
	}
	return protocol.GameStateMsg{
		Players:     players,
		Crystals:    crystals,
		GameStarted: w.started,
		MaxCrystals: w.cfg.MaxCrystals,
		GameWidth:   w.cfg.Width,
		GameHeight:  w.cfg.Height,
	}
}

func (p *Player) wire() protocol.Player {
	return protocol.Player{
		ID:         p.ID,
		Name:       p.Name,
		X:          p.X,
		Y:          p.Y,
		Score:      p.Score,
		Color:      p.Color,
		Speed:      p.Speed,
		LastUpdate: p.LastUpdate.UnixMilli(),
	}
}
