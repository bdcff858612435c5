package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// Header is written as a plain JSON line ahead of the gob body so dumps can be
// identified with zstdcat | head -1.
type Header struct {
	Version     int    `json:"version"`
	WorldID     string `json:"world_id"`
	TakenAtUnix int64  `json:"taken_at_unix_ms"`
}

// SnapshotV1 is a point-in-time dump of the world for inspection. It is never
// loaded back into a running world.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Width       int  `json:"width"`
	Height      int  `json:"height"`
	MaxCrystals int  `json:"max_crystals"`
	Started     bool `json:"started"`

	Players  []PlayerV1  `json:"players"`
	Crystals []CrystalV1 `json:"crystals"`

	Counters CountersV1 `json:"counters"`
}

type PlayerV1 struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	Score          int     `json:"score"`
	Color          int     `json:"color"`
	LastUpdateUnix int64   `json:"last_update_unix_ms"`
}

type CrystalV1 struct {
	ID         string  `json:"id"`
	Type       string  `json:"type"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Value      int     `json:"value"`
	Collected  bool    `json:"collected"`
	PulsePhase float64 `json:"pulse_phase"`
}

type CountersV1 struct {
	Collected       uint64 `json:"collected"`
	Rejected        uint64 `json:"rejected"`
	Pulses          uint64 `json:"pulses"`
	PendingRespawns int    `json:"pending_respawns"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 64*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	// Header line is informational; gob carries it too.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}
