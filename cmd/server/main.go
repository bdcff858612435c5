package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	persistlog "crystalcollectors.io/internal/persistence/log"
	"crystalcollectors.io/internal/persistence/snapshot"
	"crystalcollectors.io/internal/sim/tuning"
	"crystalcollectors.io/internal/sim/world"
	"crystalcollectors.io/internal/transport/ws"
)

func main() {
	var (
		addr         = flag.String("addr", ":3000", "http listen address")
		worldID      = flag.String("world", "main", "world id recorded in journals and the index")
		dataDir      = flag.String("data", "./data", "runtime data directory")
		tuningPath   = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
		staticDir    = flag.String("static", "", "directory served at / (empty to disable)")
		indexBackend = flag.String("index", "", "index backend: sqlite|none (default: $CC_INDEX_BACKEND or sqlite)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", *tuningPath)
		tune = tuning.Defaults()
	}

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}

	// Optional read-model index; the world never reads from it.
	idx, err := openRuntimeIndex(*dataDir, strings.ToLower(strings.TrimSpace(*indexBackend)))
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
	}

	w := world.New(worldConfig(*worldID, tune), logger)

	eventLog := persistlog.NewEventLogger(*dataDir)
	auditLog := persistlog.NewAuditLogger(*dataDir)
	defer eventLog.Close()
	defer auditLog.Close()
	mel := multiEventLogger{a: eventLog}
	mal := multiAuditLogger{a: auditLog}
	if idx != nil {
		mel.b = idx
		mal.b = idx
	}
	w.SetEventLogger(mel)
	w.SetAuditLogger(mal)

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("world stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(w, idx, eventLog, auditLog))

	if envBool("CC_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		admin := &adminAPI{world: w, index: idx, dataDir: *dataDir, log: logger}
		mux.HandleFunc("/admin/v1/state", loopbackOnly(admin.state))
		mux.HandleFunc("/admin/v1/snapshot", loopbackOnly(admin.snapshot))
		mux.HandleFunc("/admin/v1/leaderboard", loopbackOnly(admin.leaderboard))
	} else {
		logger.Printf("admin endpoints disabled (CC_ENABLE_ADMIN_HTTP=false)")
	}

	mux.HandleFunc("/ws", ws.NewServer(w, logger, ws.Options{
		InboundRate:  tune.InboundRate,
		InboundBurst: tune.InboundBurst,
		OutboxSize:   tune.OutboxSize,
	}).Handler())
	if dir := strings.TrimSpace(*staticDir); dir != "" {
		mux.Handle("/", http.FileServer(http.Dir(dir)))
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s world=%s bounds=%dx%d crystals=%d", *addr, *worldID, tune.GameWidth, tune.GameHeight, tune.MaxCrystals)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	<-w.Done()
	logger.Printf("shutdown complete")
}

func worldConfig(id string, t tuning.Tuning) world.WorldConfig {
	types := make([]world.CrystalType, 0, len(t.CrystalTypes))
	for _, ct := range t.CrystalTypes {
		types = append(types, world.CrystalType{Type: ct.Type, Value: ct.Value, Color: ct.Color, Rarity: ct.Rarity})
	}
	return world.WorldConfig{
		ID:            id,
		Width:         t.GameWidth,
		Height:        t.GameHeight,
		MaxCrystals:   t.MaxCrystals,
		Seed:          t.Seed,
		PlayerMargin:  t.PlayerMargin,
		SpawnMargin:   t.SpawnMargin,
		CollectRadius: t.CollectRadius,
		PlayerSpeed:   t.PlayerSpeed,
		MaxSpeed:      t.MaxSpeed,
		RespawnDelay:  time.Duration(t.RespawnDelayMs) * time.Millisecond,
		PulseInterval: time.Duration(t.PulseIntervalMs) * time.Millisecond,
		PulseStep:     t.PulseStep,
		CrystalTypes:  types,
		PlayerColors:  append([]int(nil), t.PlayerColors...),
	}
}

// entryCounter reports journal entries written, keyed by kind or reason.
type entryCounter interface {
	Counts() map[string]uint64
}

func writeCounts(rw http.ResponseWriter, name, help, label, worldID string, c entryCounter) {
	counts := c.Counts()
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(rw, "# HELP %s %s\n", name, help)
	fmt.Fprintf(rw, "# TYPE %s counter\n", name)
	for _, k := range keys {
		fmt.Fprintf(rw, "%s{world=%q,%s=%q} %d\n", name, worldID, label, k, counts[k])
	}
}

func metricsHandler(w *world.World, idx runtimeIndex, events, audits entryCounter) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		id := w.ID()
		m := w.Metrics()
		started := 0
		if m.Started {
			started = 1
		}

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP crystalcollectors_players Joined players.\n")
		fmt.Fprintf(rw, "# TYPE crystalcollectors_players gauge\n")
		fmt.Fprintf(rw, "crystalcollectors_players{world=%q} %d\n", id, m.Players)

		fmt.Fprintf(rw, "# HELP crystalcollectors_clients Open connections, joined or not.\n")
		fmt.Fprintf(rw, "# TYPE crystalcollectors_clients gauge\n")
		fmt.Fprintf(rw, "crystalcollectors_clients{world=%q} %d\n", id, m.Clients)

		fmt.Fprintf(rw, "# HELP crystalcollectors_crystals Crystals currently on the field.\n")
		fmt.Fprintf(rw, "# TYPE crystalcollectors_crystals gauge\n")
		fmt.Fprintf(rw, "crystalcollectors_crystals{world=%q} %d\n", id, m.Crystals)

		fmt.Fprintf(rw, "# HELP crystalcollectors_started Whether the first player has joined.\n")
		fmt.Fprintf(rw, "# TYPE crystalcollectors_started gauge\n")
		fmt.Fprintf(rw, "crystalcollectors_started{world=%q} %d\n", id, started)

		fmt.Fprintf(rw, "# HELP crystalcollectors_pending_respawns Replacements scheduled but not yet applied.\n")
		fmt.Fprintf(rw, "# TYPE crystalcollectors_pending_respawns gauge\n")
		fmt.Fprintf(rw, "crystalcollectors_pending_respawns{world=%q} %d\n", id, m.PendingRespawns)

		fmt.Fprintf(rw, "# HELP crystalcollectors_collected_total Successful collections.\n")
		fmt.Fprintf(rw, "# TYPE crystalcollectors_collected_total counter\n")
		fmt.Fprintf(rw, "crystalcollectors_collected_total{world=%q} %d\n", id, m.CollectedTotal)

		fmt.Fprintf(rw, "# HELP crystalcollectors_rejected_total Refused collection attempts.\n")
		fmt.Fprintf(rw, "# TYPE crystalcollectors_rejected_total counter\n")
		fmt.Fprintf(rw, "crystalcollectors_rejected_total{world=%q} %d\n", id, m.RejectedTotal)

		fmt.Fprintf(rw, "# HELP crystalcollectors_pulses_total Pulse broadcasts sent.\n")
		fmt.Fprintf(rw, "# TYPE crystalcollectors_pulses_total counter\n")
		fmt.Fprintf(rw, "crystalcollectors_pulses_total{world=%q} %d\n", id, m.Pulses)

		fmt.Fprintf(rw, "# HELP crystalcollectors_queue_depth Channel backlog depth.\n")
		fmt.Fprintf(rw, "# TYPE crystalcollectors_queue_depth gauge\n")
		fmt.Fprintf(rw, "crystalcollectors_queue_depth{world=%q,queue=%q} %d\n", id, "inbox", m.QueueDepths.Inbox)
		fmt.Fprintf(rw, "crystalcollectors_queue_depth{world=%q,queue=%q} %d\n", id, "replace", m.QueueDepths.Replace)

		if idx != nil {
			fmt.Fprintf(rw, "# HELP crystalcollectors_index_dropped_total Index writes dropped because the writer queue was full.\n")
			fmt.Fprintf(rw, "# TYPE crystalcollectors_index_dropped_total counter\n")
			fmt.Fprintf(rw, "crystalcollectors_index_dropped_total{world=%q} %d\n", id, idx.Dropped())
		}
		if events != nil {
			writeCounts(rw, "crystalcollectors_journal_events_total", "Event journal entries written.", "kind", id, events)
		}
		if audits != nil {
			writeCounts(rw, "crystalcollectors_journal_audits_total", "Audit journal entries written.", "reason", id, audits)
		}
	}
}

type adminAPI struct {
	world   *world.World
	index   runtimeIndex
	dataDir string
	log     *log.Logger
}

func (a *adminAPI) state(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	resp := struct {
		WorldID string             `json:"world_id"`
		Metrics world.WorldMetrics `json:"metrics"`
	}{
		WorldID: a.world.ID(),
		Metrics: a.world.Metrics(),
	}
	_ = json.NewEncoder(rw).Encode(resp)
}

func (a *adminAPI) snapshot(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rw.Header().Set("Content-Type", "application/json")
	snap, err := a.world.RequestSnapshot(ctx)
	if err != nil {
		rw.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
		return
	}
	path := filepath.Join(a.dataDir, "snapshots", strconv.FormatInt(snap.Header.TakenAtUnix, 10)+".snap.zst")
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		a.log.Printf("snapshot write: %v", err)
		rw.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
		return
	}
	if a.index != nil {
		a.index.RecordSnapshot(path, snap)
	}
	_ = json.NewEncoder(rw).Encode(map[string]any{
		"ok":       true,
		"path":     path,
		"players":  len(snap.Players),
		"crystals": len(snap.Crystals),
	})
}

func (a *adminAPI) leaderboard(rw http.ResponseWriter, r *http.Request) {
	if a.index == nil {
		http.Error(rw, "index disabled", http.StatusNotFound)
		return
	}
	limit := 10
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			http.Error(rw, "bad limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := a.index.Flush(ctx); err != nil {
		http.Error(rw, err.Error(), http.StatusServiceUnavailable)
		return
	}
	rows, err := a.index.Leaderboard(ctx, a.world.ID(), limit)
	if err != nil {
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(map[string]any{"world_id": a.world.ID(), "rows": rows})
}

func loopbackOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(name string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

type multiEventLogger struct {
	a world.EventLogger
	b world.EventLogger
}

// WriteEvent journals first; an entry the journal refuses as invalid is not
// indexed either, and the error goes back to the world's log.
func (m multiEventLogger) WriteEvent(entry world.EventLogEntry) error {
	var err error
	if m.a != nil {
		err = m.a.WriteEvent(entry)
		if errors.Is(err, persistlog.ErrInvalidEntry) {
			return err
		}
	}
	if m.b != nil {
		_ = m.b.WriteEvent(entry)
	}
	return err
}

type multiAuditLogger struct {
	a world.AuditLogger
	b world.AuditLogger
}

func (m multiAuditLogger) WriteAudit(entry world.AuditEntry) error {
	var err error
	if m.a != nil {
		err = m.a.WriteAudit(entry)
		if errors.Is(err, persistlog.ErrInvalidEntry) {
			return err
		}
	}
	if m.b != nil {
		_ = m.b.WriteAudit(entry)
	}
	return err
}
