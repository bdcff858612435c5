package world

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Players  int  `json:"players"`
	Clients  int  `json:"clients"`
	Crystals int  `json:"crystals"`
	Started  bool `json:"started"`

	CollectedTotal  uint64 `json:"collected_total"`
	RejectedTotal   uint64 `json:"rejected_total"`
	Pulses          uint64 `json:"pulses"`
	PendingRespawns int    `json:"pending_respawns"`

	QueueDepths QueueDepths `json:"queue_depths"`
}

type QueueDepths struct {
	Inbox   int `json:"inbox"`
	Replace int `json:"replace"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}

func (w *World) publishMetrics() {
	w.metrics.Store(WorldMetrics{
		Players:         len(w.players),
		Clients:         len(w.clients),
		Crystals:        len(w.crystals),
		Started:         w.started,
		CollectedTotal:  w.collectedTotal,
		RejectedTotal:   w.rejectedTotal,
		Pulses:          w.pulses,
		PendingRespawns: w.pendingRespawns,
		QueueDepths: QueueDepths{
			Inbox:   len(w.inbox),
			Replace: len(w.replace),
		},
	})
}
