package tuning

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaults_Valid(t *testing.T) {
	d := Defaults()
	if err := d.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if d.GameWidth != 1200 || d.GameHeight != 800 || d.MaxCrystals != 15 {
		t.Fatalf("unexpected world defaults: %+v", d)
	}
	var sum float64
	for _, ct := range d.CrystalTypes {
		sum += ct.Rarity
	}
	if sum < 0.999 || sum > 1.001 {
		t.Fatalf("rarity weights should sum to 1, got %v", sum)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "tuning.yaml")
	raw := []byte("max_crystals: 5\nmax_speed: 300\nseed: 7\n")
	if err := os.WriteFile(p, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tu, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tu.MaxCrystals != 5 || tu.MaxSpeed != 300 || tu.Seed != 7 {
		t.Fatalf("overrides not applied: %+v", tu)
	}
	if tu.GameWidth != 1200 || tu.CollectRadius != 40 || len(tu.CrystalTypes) != 5 {
		t.Fatalf("defaults lost: %+v", tu)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "tuning.yaml")
	if err := os.WriteFile(p, []byte("game_width: 60\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(p); err == nil {
		t.Fatalf("expected spawn margin error for a 60px wide world")
	}

	if err := os.WriteFile(p, []byte("crystal_types: []\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(p); err == nil {
		t.Fatalf("expected error for empty crystal table")
	}
}

func TestValidate_RejectsZerosTheWorldWouldRewrite(t *testing.T) {
	cases := map[string]func(*Tuning){
		"player_margin":    func(tu *Tuning) { tu.PlayerMargin = 0 },
		"spawn_margin":     func(tu *Tuning) { tu.SpawnMargin = 0 },
		"collect_radius":   func(tu *Tuning) { tu.CollectRadius = 0 },
		"player_speed":     func(tu *Tuning) { tu.PlayerSpeed = 0 },
		"pulse_step":       func(tu *Tuning) { tu.PulseStep = 0 },
		"respawn_delay_ms": func(tu *Tuning) { tu.RespawnDelayMs = 0 },
		"max_speed":        func(tu *Tuning) { tu.MaxSpeed = -1 },
	}
	for key, mutate := range cases {
		tu := Defaults()
		mutate(&tu)
		err := tu.Validate()
		if err == nil || !strings.Contains(err.Error(), key) {
			t.Fatalf("%s: err=%v, want an error naming the key", key, err)
		}
	}

	tu := Defaults()
	tu.MaxSpeed = 0
	if err := tu.Validate(); err != nil {
		t.Fatalf("max_speed 0 disables the velocity gate and must stay valid: %v", err)
	}
}

func TestLoad_ShippedConfigIsValid(t *testing.T) {
	tu, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tu.RespawnDelayMs != 1000 || tu.CollectRadius != 40 {
		t.Fatalf("unexpected shipped tuning: %+v", tu)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
