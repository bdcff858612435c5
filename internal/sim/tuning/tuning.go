package tuning

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	GameWidth   int `yaml:"game_width"`
	GameHeight  int `yaml:"game_height"`
	MaxCrystals int `yaml:"max_crystals"`

	// Seed for crystal generation and spawn points. 0 picks a time-based seed.
	Seed int64 `yaml:"seed"`

	PlayerMargin  float64 `yaml:"player_margin"`
	SpawnMargin   float64 `yaml:"spawn_margin"`
	CollectRadius float64 `yaml:"collect_radius"`
	PlayerSpeed   float64 `yaml:"player_speed"`

	// MaxSpeed enables the velocity gate on moves (units per second). 0 disables it.
	MaxSpeed float64 `yaml:"max_speed"`

	RespawnDelayMs  int     `yaml:"respawn_delay_ms"`
	PulseIntervalMs int     `yaml:"pulse_interval_ms"`
	PulseStep       float64 `yaml:"pulse_step"`

	InboundRate  float64 `yaml:"inbound_rate"`
	InboundBurst int     `yaml:"inbound_burst"`
	OutboxSize   int     `yaml:"outbox_size"`

	CrystalTypes []CrystalType `yaml:"crystal_types"`
	PlayerColors []int         `yaml:"player_colors"`
}

type CrystalType struct {
	Type   string  `yaml:"type"`
	Value  int     `yaml:"value"`
	Color  int     `yaml:"color"`
	Rarity float64 `yaml:"rarity"`
}

func Defaults() Tuning {
	return Tuning{
		GameWidth:       1200,
		GameHeight:      800,
		MaxCrystals:     15,
		PlayerMargin:    25,
		SpawnMargin:     50,
		CollectRadius:   40,
		PlayerSpeed:     200,
		RespawnDelayMs:  1000,
		PulseIntervalMs: 100,
		PulseStep:       0.1,
		InboundRate:     60,
		InboundBurst:    120,
		OutboxSize:      256,
		CrystalTypes: []CrystalType{
			{Type: "ruby", Value: 10, Color: 0xff0066, Rarity: 0.3},
			{Type: "emerald", Value: 15, Color: 0x00ff66, Rarity: 0.25},
			{Type: "sapphire", Value: 20, Color: 0x0066ff, Rarity: 0.2},
			{Type: "diamond", Value: 30, Color: 0xffffff, Rarity: 0.15},
			{Type: "amethyst", Value: 25, Color: 0x9966ff, Rarity: 0.1},
		},
		PlayerColors: []int{0xff6b6b, 0x4ecdc4, 0x45b7d1, 0xf9ca24, 0xf0932b, 0xeb4d4b, 0x6c5ce7, 0xa29bfe},
	}
}

// Load reads a tuning file on top of Defaults, so a partial file only
// overrides the keys it names.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.GameWidth <= 0 || t.GameHeight <= 0 {
		return fmt.Errorf("game bounds must be positive, got %dx%d", t.GameWidth, t.GameHeight)
	}
	minSide := float64(min(t.GameWidth, t.GameHeight))
	if t.PlayerMargin <= 0 || 2*t.PlayerMargin > minSide {
		return fmt.Errorf("player_margin %.1f does not fit %dx%d", t.PlayerMargin, t.GameWidth, t.GameHeight)
	}
	if t.SpawnMargin <= 0 || 2*t.SpawnMargin > minSide {
		return fmt.Errorf("spawn_margin %.1f does not fit %dx%d", t.SpawnMargin, t.GameWidth, t.GameHeight)
	}
	if t.MaxCrystals <= 0 {
		return fmt.Errorf("max_crystals must be positive, got %d", t.MaxCrystals)
	}
	if len(t.CrystalTypes) == 0 {
		return errors.New("crystal_types is empty")
	}
	for _, ct := range t.CrystalTypes {
		if ct.Type == "" || ct.Value < 0 || ct.Rarity < 0 {
			return fmt.Errorf("bad crystal type %+v", ct)
		}
	}
	if len(t.PlayerColors) == 0 {
		return errors.New("player_colors is empty")
	}
	// WorldConfig treats zero as "use the default".
	if t.CollectRadius <= 0 {
		return fmt.Errorf("collect_radius must be positive, got %.1f", t.CollectRadius)
	}
	if t.PlayerSpeed <= 0 {
		return fmt.Errorf("player_speed must be positive, got %.1f", t.PlayerSpeed)
	}
	if t.MaxSpeed < 0 {
		return fmt.Errorf("max_speed must be >= 0, got %.1f", t.MaxSpeed)
	}
	if t.PulseIntervalMs <= 0 {
		return fmt.Errorf("pulse_interval_ms must be positive, got %d", t.PulseIntervalMs)
	}
	if t.PulseStep <= 0 {
		return fmt.Errorf("pulse_step must be positive, got %v", t.PulseStep)
	}
	if t.RespawnDelayMs <= 0 {
		return fmt.Errorf("respawn_delay_ms must be positive, got %d", t.RespawnDelayMs)
	}
	return nil
}
