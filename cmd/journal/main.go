package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"crystalcollectors.io/internal/persistence/snapshot"
	"crystalcollectors.io/internal/sim/world"
)

func main() {
	var (
		eventsDir = flag.String("events", "./data/events", "events dir containing events-*.jsonl.zst")
		snapPath  = flag.String("snapshot", "", "dump to cross-check live scores against (optional)")
		worldID   = flag.String("world", "", "only replay entries for this world id (optional)")
	)
	flag.Parse()

	files, err := listEventFiles(*eventsDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list events:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no events files found in", *eventsDir)
		os.Exit(1)
	}

	j := newJournal(strings.TrimSpace(*worldID))
	for _, path := range files {
		if err := replayFile(j, path); err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
	}
	fmt.Printf("replay ok: entries=%d runs=%d starts=%d joins=%d leaves=%d collects=%d respawns=%d points=%d\n",
		j.entries, j.runs, j.starts, j.joins, j.leaves, j.collects, j.respawns, j.points)

	if *snapPath == "" {
		return
	}
	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	if err := j.verifySnapshot(snap); err != nil {
		fmt.Fprintln(os.Stderr, "verify:", err)
		os.Exit(1)
	}
	fmt.Printf("snapshot ok: world=%s players=%d crystals=%d\n", snap.Header.WorldID, len(snap.Players), len(snap.Crystals))
}

func listEventFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "events-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

type session struct {
	Name  string
	Score int
	Left  bool
}

// journal folds event entries into per-session scores and checks that every
// COLLECT carries the running total for its player. Each WORLD_START begins a
// new run: a restarted process has a fresh field and fresh sessions.
type journal struct {
	worldID string

	sessions map[string]*session
	// collects not yet followed by a RESPAWN in the current run
	pending int
	runs    int

	entries, starts, joins, leaves, collects, respawns int
	points                                             int
}

func newJournal(worldID string) *journal {
	return &journal{worldID: worldID, sessions: make(map[string]*session)}
}

func (j *journal) apply(e world.EventLogEntry) error {
	if j.worldID != "" && e.WorldID != j.worldID {
		return nil
	}
	j.entries++
	switch e.Kind {
	case world.EventWorldStart:
		j.starts++
		j.runs++
		j.sessions = make(map[string]*session)
		j.pending = 0
	case world.EventJoin:
		j.joins++
		// A repeated join replaces the record with a fresh score.
		j.sessions[e.PlayerID] = &session{Name: e.PlayerName}
	case world.EventLeave:
		j.leaves++
		if s, ok := j.sessions[e.PlayerID]; ok {
			s.Left = true
		}
	case world.EventCollect:
		j.collects++
		j.pending++
		j.points += e.Value
		s, ok := j.sessions[e.PlayerID]
		if !ok {
			return fmt.Errorf("collect by unknown player %s", e.PlayerID)
		}
		if s.Left {
			return fmt.Errorf("collect by departed player %s", e.PlayerID)
		}
		s.Score += e.Value
		if s.Score != e.Score {
			return fmt.Errorf("score mismatch for %s after %s: journal=%d entry=%d", e.PlayerID, e.CrystalID, s.Score, e.Score)
		}
	case world.EventRespawn:
		j.respawns++
		if j.pending == 0 {
			return fmt.Errorf("respawn of %s without a matching collect", e.CrystalID)
		}
		j.pending--
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	return nil
}

// verifySnapshot checks that every player in a dump has the score the journal
// computed for the same id.
func (j *journal) verifySnapshot(snap snapshot.SnapshotV1) error {
	for _, p := range snap.Players {
		s, ok := j.sessions[p.ID]
		if !ok {
			return fmt.Errorf("player %s in snapshot but never joined", p.ID)
		}
		if s.Score != p.Score {
			return fmt.Errorf("player %s score: snapshot=%d journal=%d", p.ID, p.Score, s.Score)
		}
	}
	return nil
}

func replayFile(j *journal, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)

	for sc.Scan() {
		var entry world.EventLogEntry
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		if err := j.apply(entry); err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}
	return sc.Err()
}
