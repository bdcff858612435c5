package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"crystalcollectors.io/internal/persistence/indexdb"
	"crystalcollectors.io/internal/persistence/snapshot"
	"crystalcollectors.io/internal/sim/world"
)

type runtimeIndex interface {
	world.EventLogger
	world.AuditLogger
	Close() error
	Flush(ctx context.Context) error
	Dropped() uint64
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
	Leaderboard(ctx context.Context, worldID string, limit int) ([]indexdb.LeaderboardRow, error)
}

func openRuntimeIndex(dataDir, backend string) (runtimeIndex, error) {
	if backend == "" {
		backend = strings.ToLower(strings.TrimSpace(os.Getenv("CC_INDEX_BACKEND")))
	}
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(filepath.Join(dataDir, "index", "world.sqlite"))
	default:
		return nil, fmt.Errorf("unsupported index backend: %s", backend)
	}
}
