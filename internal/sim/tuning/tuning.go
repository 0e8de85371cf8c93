package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning holds the operational knobs of a world. Zero values in the file
// keep the defaults.
type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz         int   `yaml:"tick_rate_hz"`
	Seed               int64 `yaml:"seed"`
	Workers            int   `yaml:"workers"`
	SnapshotEveryTicks int   `yaml:"snapshot_every_ticks"`

	// Per-session queue bounds on the agent websocket.
	MaxPendingRequests int `yaml:"max_pending_requests"`
	SendQueue          int `yaml:"send_queue"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		TickRateHz:         5,
		Seed:               1337,
		Workers:            0,
		SnapshotEveryTicks: 3000,
		MaxPendingRequests: 8,
		SendQueue:          64,
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t *Tuning) normalize() {
	d := Defaults()
	if t.ProtocolVersion == "" {
		t.ProtocolVersion = d.ProtocolVersion
	}
	if t.TickRateHz == 0 {
		t.TickRateHz = d.TickRateHz
	}
	if t.SnapshotEveryTicks == 0 {
		t.SnapshotEveryTicks = d.SnapshotEveryTicks
	}
	if t.MaxPendingRequests == 0 {
		t.MaxPendingRequests = d.MaxPendingRequests
	}
	if t.SendQueue == 0 {
		t.SendQueue = d.SendQueue
	}
}

func (t Tuning) Validate() error {
	if t.TickRateHz < 0 || t.TickRateHz > 1000 {
		return fmt.Errorf("tick_rate_hz must be in (0, 1000]")
	}
	if t.Workers < 0 {
		return fmt.Errorf("workers must be >= 0")
	}
	if t.SnapshotEveryTicks < 0 {
		return fmt.Errorf("snapshot_every_ticks must be >= 0")
	}
	if t.MaxPendingRequests < 0 || t.SendQueue < 0 {
		return fmt.Errorf("queue bounds must be >= 0")
	}
	return nil
}
