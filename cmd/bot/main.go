package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"crystalcollectors.io/internal/protocol"
)

const (
	stepEvery    = 50 * time.Millisecond
	reachForPick = 35.0
)

func main() {
	var (
		url   = flag.String("url", "ws://localhost:3000/ws", "ws url")
		name  = flag.String("name", "bot", "display name prefix")
		speed = flag.Float64("speed", 200, "movement speed in units per second")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// A unique name lets the bot find its own record in game-state.
	b := newBrain(fmt.Sprintf("%s-%04d", *name, rand.Intn(10000)), *speed)
	if err := send(conn, protocol.TypeJoinGame, b.name); err != nil {
		logger.Fatalf("send join-game: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	frames := make(chan protocol.Envelope, 64)
	go func() {
		defer cancel()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				logger.Printf("read: %v", err)
				return
			}
			env, err := protocol.DecodeEnvelope(msg)
			if err != nil {
				continue
			}
			select {
			case frames <- env:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(stepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-frames:
			b.apply(env, logger)
		case <-ticker.C:
			x, y, moved, target := b.step(stepEvery)
			if moved {
				if err := send(conn, protocol.TypePlayerMove, map[string]float64{"x": x, "y": y}); err != nil {
					logger.Printf("send move: %v", err)
					return
				}
			}
			if target != "" {
				if err := send(conn, protocol.TypeCollectCrystal, target); err != nil {
					logger.Printf("send collect: %v", err)
					return
				}
			}
		}
	}
}

func send(conn *websocket.Conn, typ string, payload any) error {
	b, err := protocol.Encode(typ, payload)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

type brain struct {
	name  string
	speed float64

	joined   bool
	id       string
	x, y     float64
	score    int
	crystals map[string]protocol.Crystal
	// requested holds crystals we already asked for, so one is not spammed.
	requested map[string]bool
}

func newBrain(name string, speed float64) *brain {
	return &brain{
		name:      name,
		speed:     speed,
		crystals:  make(map[string]protocol.Crystal),
		requested: make(map[string]bool),
	}
}

func (b *brain) apply(env protocol.Envelope, logger *log.Logger) {
	switch env.Type {
	case protocol.TypeGameState:
		var st protocol.GameStateMsg
		if err := json.Unmarshal(env.Data, &st); err != nil {
			return
		}
		for id, p := range st.Players {
			if p.Name == b.name {
				b.id, b.x, b.y, b.score = id, p.X, p.Y, p.Score
				b.joined = true
			}
		}
		b.crystals = make(map[string]protocol.Crystal, len(st.Crystals))
		for _, c := range st.Crystals {
			if !c.Collected {
				b.crystals[c.ID] = c
			}
		}
		logger.Printf("joined as %s id=%s crystals=%d", b.name, b.id, len(b.crystals))
	case protocol.TypeNewCrystal:
		var c protocol.Crystal
		if err := json.Unmarshal(env.Data, &c); err == nil {
			b.crystals[c.ID] = c
		}
	case protocol.TypeCrystalCollected:
		var m protocol.CrystalCollectedMsg
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return
		}
		delete(b.crystals, m.CrystalID)
		delete(b.requested, m.CrystalID)
		if m.PlayerID == b.id {
			b.score = m.NewScore
			logger.Printf("collected %s (+%d) score=%d", m.CrystalID, m.Value, m.NewScore)
		}
	}
}

// step moves toward the nearest known crystal. It reports the new position
// and, once in reach, the crystal to ask for.
func (b *brain) step(dt time.Duration) (x, y float64, moved bool, collect string) {
	if !b.joined {
		return b.x, b.y, false, ""
	}
	var (
		best     protocol.Crystal
		bestDist = math.Inf(1)
	)
	for _, c := range b.crystals {
		if d := math.Hypot(c.X-b.x, c.Y-b.y); d < bestDist {
			best, bestDist = c, d
		}
	}
	if math.IsInf(bestDist, 1) {
		return b.x, b.y, false, ""
	}
	if bestDist <= reachForPick {
		if b.requested[best.ID] {
			return b.x, b.y, false, ""
		}
		b.requested[best.ID] = true
		return b.x, b.y, false, best.ID
	}
	stepLen := math.Min(b.speed*dt.Seconds(), bestDist)
	b.x += (best.X - b.x) / bestDist * stepLen
	b.y += (best.Y - b.y) / bestDist * stepLen
	return b.x, b.y, true, ""
}
