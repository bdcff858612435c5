package snapshot

import (
	"path/filepath"
	"testing"
)

func TestWriteReadSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots", "1700000000000.snap.zst")
	in := SnapshotV1{
		Header:      Header{Version: 1, WorldID: "main", TakenAtUnix: 1700000000000},
		Width:       1200,
		Height:      800,
		MaxCrystals: 15,
		Started:     true,
		Players:     []PlayerV1{{ID: "p1", Name: "Player 1", X: 100, Y: 100, Score: 30, Color: 0x4ecdc4}},
		Crystals:    []CrystalV1{{ID: "c1", Type: "diamond", X: 400, Y: 300, Value: 30, PulsePhase: 12.5}},
		Counters:    CountersV1{Collected: 1, Rejected: 2, Pulses: 99, PendingRespawns: 1},
	}
	if err := WriteSnapshot(path, in); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	out, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if out.Header != in.Header || out.Width != 1200 || !out.Started || out.Counters != in.Counters {
		t.Fatalf("header/meta mismatch: %+v", out)
	}
	if len(out.Players) != 1 || out.Players[0] != in.Players[0] {
		t.Fatalf("players mismatch: %+v", out.Players)
	}
	if len(out.Crystals) != 1 || out.Crystals[0] != in.Crystals[0] {
		t.Fatalf("crystals mismatch: %+v", out.Crystals)
	}
}

func TestReadSnapshot_Missing(t *testing.T) {
	if _, err := ReadSnapshot(filepath.Join(t.TempDir(), "nope.snap.zst")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
