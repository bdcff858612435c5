package world

import (
	"crystalcollectors.io/internal/protocol"
)

func (w *World) encode(typ string, payload any) ([]byte, bool) {
	b, err := protocol.Encode(typ, payload)
	if err != nil {
		w.log.Printf("encode %s: %v", typ, err)
		return nil, false
	}
	return b, true
}

// unicast sends to the originating connection only.
func (w *World) unicast(connID, typ string, payload any) {
	cl := w.clients[connID]
	if cl == nil {
		return
	}
	b, ok := w.encode(typ, payload)
	if !ok {
		return
	}
	sendLatest(cl.Out, b)
}

// broadcastExcept sends to every connected session except origin.
func (w *World) broadcastExcept(origin, typ string, payload any) {
	if len(w.clients) == 0 {
		return
	}
	b, ok := w.encode(typ, payload)
	if !ok {
		return
	}
	for id, cl := range w.clients {
		if id == origin {
			continue
		}
		sendLatest(cl.Out, b)
	}
}

func (w *World) broadcastAll(typ string, payload any) {
	w.broadcastExcept("", typ, payload)
}

// sendLatest never blocks the world loop: when a client outbox is full the
// oldest queued frame is dropped to make room.
func sendLatest(ch chan []byte, b []byte) {
	if ch == nil {
		return
	}
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
