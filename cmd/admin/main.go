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
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "leaderboard":
			leaderboardCmd(os.Args[2:])
			return
		case "dump":
			dumpCmd(os.Args[2:])
			return
		case "audit":
			auditCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

// listCmd prints the debug dumps under the data dir, newest last.
func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	names, err := listFiles(filepath.Join(*dataDir, "snapshots"), "", ".snap.zst")
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, n := range names {
		fmt.Println(n)
	}
}

func dumpCmd(args []string) {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	snapPath := fs.String("snapshot", "", "dump path (optional; defaults to latest)")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" {
		names, err := listFiles(filepath.Join(*dataDir, "snapshots"), "", ".snap.zst")
		if err != nil || len(names) == 0 {
			fmt.Fprintln(os.Stderr, "no dumps found")
			os.Exit(2)
		}
		path = names[len(names)-1]
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	printJSON(snap)
}

func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	actor := fs.String("actor", "", "only entries for this player id (optional)")
	_ = fs.Parse(args)

	recs, err := readAudit(filepath.Join(*dataDir, "audit"), strings.TrimSpace(*actor))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read audit:", err)
		os.Exit(1)
	}
	printJSON(summarizeAudit(recs))
}

type auditSummary struct {
	Total    int            `json:"total"`
	ByReason map[string]int `json:"by_reason"`
	ByActor  map[string]int `json:"by_actor"`
}

func summarizeAudit(recs []world.AuditEntry) auditSummary {
	s := auditSummary{ByReason: map[string]int{}, ByActor: map[string]int{}}
	for _, r := range recs {
		s.Total++
		s.ByReason[r.Reason]++
		s.ByActor[r.Actor]++
	}
	return s
}

func readAudit(dir, actor string) ([]world.AuditEntry, error) {
	files, err := listFiles(dir, "audit-", ".jsonl.zst")
	if err != nil {
		return nil, err
	}
	var out []world.AuditEntry
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		dec, err := zstd.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		sc := bufio.NewScanner(dec)
		sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
		for sc.Scan() {
			var e world.AuditEntry
			if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
				dec.Close()
				_ = f.Close()
				return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
			}
			if actor != "" && e.Actor != actor {
				continue
			}
			out = append(out, e)
		}
		err = sc.Err()
		dec.Close()
		_ = f.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// listFiles returns matching file paths in dir sorted by name. Hourly and
// unix-ms names sort chronologically.
func listFiles(dir, prefix, suffix string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, suffix) {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) < len(names[j])
		}
		return names[i] < names[j]
	})
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, filepath.Join(dir, n))
	}
	return out, nil
}
