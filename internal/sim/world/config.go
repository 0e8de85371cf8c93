package world

type WorldConfig struct {
	ID         string
	TickRateHz int
	Seed       int64

	// Workers bounds the goroutines used by the parallel phases (<= 0: GOMAXPROCS).
	Workers int

	// Operational parameters. These are included in snapshots for deterministic replay/resume.
	SnapshotEveryTicks int
}

func (c *WorldConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "building_1"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 5
	}
	if c.SnapshotEveryTicks <= 0 {
		c.SnapshotEveryTicks = 3000
	}
}
