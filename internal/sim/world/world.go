package world

import (
	"io"
	"log"
	"math/rand"
	"sync/atomic"
	"time"
)

type WorldConfig struct {
	ID          string
	Width       int
	Height      int
	MaxCrystals int
	Seed        int64

	PlayerMargin  float64
	SpawnMargin   float64
	CollectRadius float64
	PlayerSpeed   float64
	MaxSpeed      float64

	RespawnDelay  time.Duration
	PulseInterval time.Duration
	PulseStep     float64

	CrystalTypes []CrystalType
	PlayerColors []int
}

type CrystalType struct {
	Type   string
	Value  int
	Color  int
	Rarity float64
}

var defaultCrystalTypes = []CrystalType{
	{Type: "ruby", Value: 10, Color: 0xff0066, Rarity: 0.3},
	{Type: "emerald", Value: 15, Color: 0x00ff66, Rarity: 0.25},
	{Type: "sapphire", Value: 20, Color: 0x0066ff, Rarity: 0.2},
	{Type: "diamond", Value: 30, Color: 0xffffff, Rarity: 0.15},
	{Type: "amethyst", Value: 25, Color: 0x9966ff, Rarity: 0.1},
}

var defaultPlayerColors = []int{0xff6b6b, 0x4ecdc4, 0x45b7d1, 0xf9ca24, 0xf0932b, 0xeb4d4b, 0x6c5ce7, 0xa29bfe}

// withDefaults fills zero-valued fields. MaxSpeed is left alone: zero keeps
// the velocity gate off.
func (c WorldConfig) withDefaults() WorldConfig {
	if c.ID == "" {
		c.ID = "main"
	}
	if c.Width <= 0 {
		c.Width = 1200
	}
	if c.Height <= 0 {
		c.Height = 800
	}
	if c.MaxCrystals <= 0 {
		c.MaxCrystals = 15
	}
	if c.PlayerMargin <= 0 {
		c.PlayerMargin = 25
	}
	if c.SpawnMargin <= 0 {
		c.SpawnMargin = 50
	}
	if c.CollectRadius <= 0 {
		c.CollectRadius = 40
	}
	if c.PlayerSpeed <= 0 {
		c.PlayerSpeed = 200
	}
	if c.RespawnDelay <= 0 {
		c.RespawnDelay = time.Second
	}
	if c.PulseInterval <= 0 {
		c.PulseInterval = 100 * time.Millisecond
	}
	if c.PulseStep == 0 {
		c.PulseStep = 0.1
	}
	if len(c.CrystalTypes) == 0 {
		c.CrystalTypes = defaultCrystalTypes
	}
	if len(c.PlayerColors) == 0 {
		c.PlayerColors = defaultPlayerColors
	}
	return c
}

type Player struct {
	ID         string
	Name       string
	X, Y       float64
	Score      int
	Color      int
	Speed      float64
	LastUpdate time.Time
}

type Crystal struct {
	ID         string
	X, Y       float64
	Type       string
	Value      int
	Color      int
	Collected  bool
	PulsePhase float64
}

// ActionEnvelope is one event of a connection. A connection's connect,
// requests and disconnect travel in order on the same inbox.
type ActionEnvelope struct {
	ConnID string
	Action Action
}

type Action interface{ actionType() string }

// ConnectAction registers the connection's outbox. It must precede any other
// action for the same ConnID.
type ConnectAction struct{ Out chan []byte }

type DisconnectAction struct{}

type JoinAction struct{ Name string }

type MoveAction struct{ X, Y float64 }

type CollectAction struct{ CrystalID string }

func (ConnectAction) actionType() string    { return "connect" }
func (DisconnectAction) actionType() string { return "disconnect" }
func (JoinAction) actionType() string       { return "join-game" }
func (MoveAction) actionType() string       { return "player-move" }
func (CollectAction) actionType() string    { return "collect-crystal" }

// World is a single-threaded authoritative session.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg WorldConfig
	log *log.Logger
	rng *rand.Rand

	players  map[string]*Player
	crystals []*Crystal
	started  bool
	clients  map[string]*clientState

	inbox   chan ActionEnvelope
	replace chan string
	admin   chan adminSnapshotReq
	stop    chan struct{}
	done    chan struct{}

	// Swappable in tests.
	now   func() time.Time
	after func(d time.Duration, f func())

	collectedTotal  uint64
	rejectedTotal   uint64
	pulses          uint64
	pendingRespawns int

	metrics atomic.Value

	// Optional sinks (may be nil). Implemented in internal/persistence/*.
	eventLogger EventLogger
	auditLogger AuditLogger
}

type clientState struct {
	Out chan []byte
}

type EventLogger interface {
	WriteEvent(entry EventLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

// Event kinds recorded in the journal.
const (
	EventWorldStart = "WORLD_START"
	EventJoin       = "JOIN"
	EventLeave      = "LEAVE"
	EventCollect    = "COLLECT"
	EventRespawn    = "RESPAWN"
)

type EventLogEntry struct {
	WorldID    string    `json:"world_id"`
	Time       time.Time `json:"time"`
	Kind       string    `json:"kind"`
	PlayerID   string    `json:"player_id,omitempty"`
	PlayerName string    `json:"player_name,omitempty"`
	CrystalID  string    `json:"crystal_id,omitempty"`
	Crystal    string    `json:"crystal_type,omitempty"`
	Value      int       `json:"value,omitempty"`
	Score      int       `json:"score,omitempty"`
}

// Reasons a collect request was refused.
const (
	RejectUnknownCrystal   = "unknown_crystal"
	RejectAlreadyCollected = "already_collected"
	RejectNoPlayer         = "no_player"
	RejectOutOfRange       = "out_of_range"
)

type AuditEntry struct {
	WorldID  string    `json:"world_id"`
	Time     time.Time `json:"time"`
	Actor    string    `json:"actor"`
	Action   string    `json:"action"`
	Target   string    `json:"target"`
	Reason   string    `json:"reason"`
	Distance float64   `json:"distance,omitempty"`
}

func New(cfg WorldConfig, logger *log.Logger) *World {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	w := &World{
		cfg:        cfg,
		log:        logger,
		rng:        rand.New(rand.NewSource(seed)),
		players:    map[string]*Player{},
		clients:    map[string]*clientState{},
		inbox:   make(chan ActionEnvelope, 1024),
		replace: make(chan string, 64),
		admin:   make(chan adminSnapshotReq, 4),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		now:     time.Now,
		after: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
	w.publishMetrics()
	return w
}

func (w *World) SetEventLogger(l EventLogger) { w.eventLogger = l }
func (w *World) SetAuditLogger(l AuditLogger) { w.auditLogger = l }

func (w *World) Inbox() chan<- ActionEnvelope { return w.inbox }

// Done is closed once Run has returned.
func (w *World) Done() <-chan struct{} { return w.done }

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) logEvent(e EventLogEntry) {
	if w.eventLogger == nil {
		return
	}
	e.WorldID = w.cfg.ID
	if e.Time.IsZero() {
		e.Time = w.now()
	}
	if err := w.eventLogger.WriteEvent(e); err != nil {
		w.log.Printf("event log: %v", err)
	}
}

func (w *World) logAudit(e AuditEntry) {
	w.rejectedTotal++
	if w.auditLogger == nil {
		return
	}
	e.WorldID = w.cfg.ID
	e.Time = w.now()
	if err := w.auditLogger.WriteAudit(e); err != nil {
		w.log.Printf("audit log: %v", err)
	}
}
