package ws

import (
	"context"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"crystalcollectors.io/internal/protocol"
	"crystalcollectors.io/internal/sim/world"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 2 / 5
)

type Options struct {
	// InboundRate limits frames per second per connection; <= 0 disables.
	InboundRate  float64
	InboundBurst int
	OutboxSize   int
}

type Server struct {
	world *world.World
	log   *log.Logger
	opts  Options

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, logger *log.Logger, opts Options) *Server {
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = 256
	}
	if opts.InboundBurst <= 0 {
		opts.InboundBurst = 1
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &Server{
		world: w,
		log:   logger,
		opts:  opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // any origin may connect
		},
	}
	return s
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		connID := uuid.NewString()
		out := make(chan []byte, s.opts.OutboxSize)
		select {
		case s.world.Inbox() <- world.ActionEnvelope{ConnID: connID, Action: world.ConnectAction{Out: out}}:
		case <-s.world.Done():
			s.log.Printf("ws: world stopped, refusing %s", r.RemoteAddr)
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		go func() {
			ping := time.NewTicker(pingPeriod)
			defer ping.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						_ = conn.Close()
						return
					}
				case <-ping.C:
					if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
						cancel()
						_ = conn.Close()
						return
					}
				}
			}
		}()

		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})

		limit := rate.Inf
		if s.opts.InboundRate > 0 {
			limit = rate.Limit(s.opts.InboundRate)
		}
		limiter := rate.NewLimiter(limit, s.opts.InboundBurst)

		// Reader loop.
	read:
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
			if !limiter.Allow() {
				continue
			}
			act, ok := decodeAction(msg)
			if !ok {
				continue
			}
			env := world.ActionEnvelope{ConnID: connID, Action: act}
			select {
			case s.world.Inbox() <- env:
			case <-s.world.Done():
				break read
			case <-ctx.Done():
				break read
			}
		}
		cancel()

		// Cleanup.
		select {
		case s.world.Inbox() <- world.ActionEnvelope{ConnID: connID, Action: world.DisconnectAction{}}:
		case <-s.world.Done():
		}
	}
}

// decodeAction maps an inbound frame to a world action. Unknown types and
// malformed payloads are dropped without a reply.
func decodeAction(msg []byte) (world.Action, bool) {
	env, err := protocol.DecodeEnvelope(msg)
	if err != nil {
		return nil, false
	}
	switch env.Type {
	case protocol.TypeJoinGame:
		return world.JoinAction{Name: protocol.DecodeJoin(env.Data)}, true
	case protocol.TypePlayerMove:
		x, y, err := protocol.DecodeMove(env.Data)
		if err != nil {
			return nil, false
		}
		return world.MoveAction{X: x, Y: y}, true
	case protocol.TypeCollectCrystal:
		id, err := protocol.DecodeCollect(env.Data)
		if err != nil {
			return nil, false
		}
		return world.CollectAction{CrystalID: id}, true
	default:
		return nil, false
	}
}
