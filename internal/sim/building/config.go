package building

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrNoFloors      = errors.New("floors must not be empty")
	ErrDuplicateExit = errors.New("duplicate exit id")
)

// Config is the authoring form of a building: per-floor graphs, exit
// surfaces and the agents present at startup.
type Config struct {
	ID     string      `yaml:"id"`
	Floors []FloorSpec `yaml:"floors"`
	Exits  []ExitSpec  `yaml:"exits,omitempty"`
	Agents []AgentSpec `yaml:"agents,omitempty"`
}

type FloorSpec struct {
	ID    int        `yaml:"id"`
	Nodes []NodeSpec `yaml:"nodes"`
	Arcs  []ArcSpec  `yaml:"arcs"`
}

type NodeSpec struct {
	ID  int        `yaml:"id"`
	Pos [3]float32 `yaml:"pos"`
}

// ArcSpec connects two nodes. Cost defaults to the squared length. OneWay
// records only the A->B adjacency direction.
type ArcSpec struct {
	A      int      `yaml:"a"`
	B      int      `yaml:"b"`
	Tags   []string `yaml:"tags,omitempty"`
	Cost   *float32 `yaml:"cost,omitempty"`
	OneWay bool     `yaml:"one_way,omitempty"`
}

type ExitSpec struct {
	ID           string     `yaml:"id"`
	Floor        int        `yaml:"floor"`
	Centroid     [3]float32 `yaml:"centroid"`
	Active       *bool      `yaml:"active,omitempty"`
	Profiles     []string   `yaml:"profiles,omitempty"`
	Destinations []string   `yaml:"destinations,omitempty"`
}

type AgentSpec struct {
	Name    string      `yaml:"name"`
	Profile string      `yaml:"profile,omitempty"`
	Floor   int         `yaml:"floor"`
	Pos     [3]float32  `yaml:"pos"`
	Tags    []string    `yaml:"tags,omitempty"`
	Target  *TargetSpec `yaml:"target,omitempty"`
}

type TargetSpec struct {
	Floor    int        `yaml:"floor"`
	Centroid [3]float32 `yaml:"centroid"`
}

func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	cfg = Config{}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("building.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("building.yaml: %w", err)
	}
	return cfg, nil
}

// defaults is a two-floor demo building: a corridor on each floor joined by
// a staircase, with a staff-only shortcut on the ground floor.
func defaults() Config {
	return Config{
		ID: "building_1",
		Floors: []FloorSpec{
			{
				ID: 0,
				Nodes: []NodeSpec{
					{ID: 0, Pos: [3]float32{0, 0, 0}},
					{ID: 1, Pos: [3]float32{4, 0, 0}},
					{ID: 2, Pos: [3]float32{8, 0, 0}},
					{ID: 3, Pos: [3]float32{4, 0, 4}},
				},
				Arcs: []ArcSpec{
					{A: 0, B: 1},
					{A: 1, B: 2},
					{A: 0, B: 3},
					{A: 3, B: 2, Tags: []string{"staff"}},
				},
			},
			{
				ID: 1,
				Nodes: []NodeSpec{
					{ID: 100, Pos: [3]float32{0, 3, 0}},
					{ID: 101, Pos: [3]float32{8, 3, 0}},
				},
				Arcs: []ArcSpec{{A: 100, B: 101}},
			},
		},
		Exits: []ExitSpec{
			{ID: "stairs_0", Floor: 0, Centroid: [3]float32{8, 0, 0}, Destinations: []string{"stairs_1"}},
			{ID: "stairs_1", Floor: 1, Centroid: [3]float32{8, 3, 0}, Destinations: []string{"stairs_0"}},
		},
	}
}

func (c *Config) Normalize() {
	c.ID = strings.TrimSpace(c.ID)
	if c.ID == "" {
		c.ID = "building_1"
	}
	sort.SliceStable(c.Floors, func(i, j int) bool { return c.Floors[i].ID < c.Floors[j].ID })
	for i := range c.Exits {
		c.Exits[i].ID = strings.TrimSpace(c.Exits[i].ID)
		if c.Exits[i].Active == nil {
			active := true
			c.Exits[i].Active = &active
		}
	}
	for i := range c.Agents {
		if strings.TrimSpace(c.Agents[i].Name) == "" {
			c.Agents[i].Name = fmt.Sprintf("agent_%d", i+1)
		}
	}
}

func (c Config) Validate() error {
	c.Normalize()
	if len(c.Floors) == 0 {
		return ErrNoFloors
	}
	floors := map[int]bool{}
	for _, f := range c.Floors {
		if floors[f.ID] {
			return fmt.Errorf("duplicate floor id: %d", f.ID)
		}
		floors[f.ID] = true
		for i, a := range f.Arcs {
			if a.A == a.B {
				return fmt.Errorf("floor %d arcs[%d]: self loop on node %d", f.ID, i, a.A)
			}
			if a.Cost != nil && *a.Cost < 0 {
				return fmt.Errorf("floor %d arcs[%d]: cost must be >= 0", f.ID, i)
			}
		}
	}
	exits := map[string]bool{}
	for _, e := range c.Exits {
		if e.ID == "" {
			return fmt.Errorf("exit on floor %d has empty id", e.Floor)
		}
		if exits[e.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateExit, e.ID)
		}
		exits[e.ID] = true
		if !floors[e.Floor] {
			return fmt.Errorf("exit %s floor %d not found", e.ID, e.Floor)
		}
	}
	for _, e := range c.Exits {
		for _, d := range e.Destinations {
			if !exits[d] {
				return fmt.Errorf("exit %s destination %q not found", e.ID, d)
			}
		}
	}
	for i, a := range c.Agents {
		if !floors[a.Floor] {
			return fmt.Errorf("agents[%d] floor %d not found", i, a.Floor)
		}
		if a.Target != nil && !floors[a.Target.Floor] {
			return fmt.Errorf("agents[%d] target floor %d not found", i, a.Target.Floor)
		}
	}
	// Node and arc references are checked by the graph builder.
	if _, err := c.Graphs(); err != nil {
		return err
	}
	return nil
}
