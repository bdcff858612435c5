package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"crystalcollectors.io/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional; defaults to <data>/index/world.sqlite)")
	worldID := fs.String("world", "main", "world id")
	limit := fs.Int("limit", 20, "result limit")
	reason := fs.String("reason", "", "reason filter (audits)")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "world.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if *limit <= 0 {
		*limit = 20
	}

	var out []any
	switch q {
	case "snapshots":
		out, err = querySnapshots(db, *worldID, *limit)
	case "audits":
		out, err = queryAudits(db, *worldID, strings.TrimSpace(*reason), *limit)
	case "leaderboard":
		var rows []indexdb.LeaderboardRow
		rows, err = indexdb.QueryLeaderboard(context.Background(), db, *worldID, *limit)
		for _, r := range rows {
			out = append(out, r)
		}
	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data|-db PATH] [-world ID] [-limit N] snapshots|audits|leaderboard")
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	for _, r := range out {
		printJSON(r)
	}
}

type snapshotRow struct {
	TakenAtMS int64  `json:"taken_at_ms"`
	Path      string `json:"path"`
	Players   int    `json:"players"`
	Crystals  int    `json:"crystals"`
	Started   bool   `json:"started"`
}

func querySnapshots(db *sql.DB, worldID string, limit int) ([]any, error) {
	rows, err := db.Query(`SELECT taken_at_ms,path,players,crystals,started FROM snapshots WHERE world_id=? ORDER BY taken_at_ms DESC LIMIT ?`, worldID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []any
	for rows.Next() {
		var r snapshotRow
		if err := rows.Scan(&r.TakenAtMS, &r.Path, &r.Players, &r.Crystals, &r.Started); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type auditRow struct {
	TimeMS   int64   `json:"time_ms"`
	Actor    string  `json:"actor"`
	Action   string  `json:"action"`
	Target   string  `json:"target"`
	Reason   string  `json:"reason"`
	Distance float64 `json:"distance,omitempty"`
}

func queryAudits(db *sql.DB, worldID, reason string, limit int) ([]any, error) {
	q := `SELECT time_ms,actor,action,target,reason,distance FROM audits WHERE world_id=? ORDER BY seq DESC LIMIT ?`
	args := []any{worldID, limit}
	if reason != "" {
		q = `SELECT time_ms,actor,action,target,reason,distance FROM audits WHERE world_id=? AND reason=? ORDER BY seq DESC LIMIT ?`
		args = []any{worldID, reason, limit}
	}
	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []any
	for rows.Next() {
		var r auditRow
		if err := rows.Scan(&r.TimeMS, &r.Actor, &r.Action, &r.Target, &r.Reason, &r.Distance); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
