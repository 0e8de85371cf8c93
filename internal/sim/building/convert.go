package building

import (
	"wayfinder.ai/internal/sim/floorgraph"
	"wayfinder.ai/internal/sim/world"
)

// Graphs builds one floor graph per floor spec.
func (c Config) Graphs() (*floorgraph.Floors, error) {
	graphs := make([]*floorgraph.Graph, 0, len(c.Floors))
	for _, f := range c.Floors {
		b := floorgraph.NewBuilder(f.ID)
		for _, n := range f.Nodes {
			b.AddNode(n.ID, floorgraph.FromArray(n.Pos))
		}
		for _, a := range f.Arcs {
			if a.Cost == nil && !a.OneWay {
				b.Connect(a.A, a.B, a.Tags...)
				continue
			}
			var cost float32
			if a.Cost != nil {
				cost = *a.Cost
			} else {
				cost = floorgraph.DistSq(nodePos(f, a.A), nodePos(f, a.B))
			}
			b.AddArc(a.A, a.B, cost)
			b.AddNeighbor(a.A, a.B)
			if !a.OneWay {
				b.AddNeighbor(a.B, a.A)
			}
			for _, t := range a.Tags {
				b.TagArc(a.A, a.B, t)
			}
		}
		g, err := b.Build()
		if err != nil {
			return nil, err
		}
		graphs = append(graphs, g)
	}
	return floorgraph.NewFloors(graphs...), nil
}

func nodePos(f FloorSpec, id int) floorgraph.Vec3 {
	for _, n := range f.Nodes {
		if n.ID == id {
			return floorgraph.FromArray(n.Pos)
		}
	}
	return floorgraph.Vec3{}
}

func (c Config) WorldExits() []world.Exit {
	out := make([]world.Exit, 0, len(c.Exits))
	for _, e := range c.Exits {
		active := e.Active == nil || *e.Active
		out = append(out, world.Exit{
			ID:           e.ID,
			FloorID:      e.Floor,
			Centroid:     floorgraph.FromArray(e.Centroid),
			Active:       active,
			Profiles:     append([]string(nil), e.Profiles...),
			Destinations: append([]string(nil), e.Destinations...),
		})
	}
	return out
}

func (c Config) AgentSpecs() []world.AgentSpec {
	out := make([]world.AgentSpec, 0, len(c.Agents))
	for _, a := range c.Agents {
		spec := world.AgentSpec{
			Name:    a.Name,
			Profile: a.Profile,
			FloorID: a.Floor,
			Pos:     floorgraph.FromArray(a.Pos),
			Tags:    append([]string(nil), a.Tags...),
		}
		if a.Target != nil {
			spec.Target = &world.Target{FloorID: a.Target.Floor, Centroid: floorgraph.FromArray(a.Target.Centroid)}
		}
		out = append(out, spec)
	}
	return out
}

// FloorIDs lists the configured floors in ascending order.
func (c Config) FloorIDs() []int {
	out := make([]int, 0, len(c.Floors))
	for _, f := range c.Floors {
		out = append(out, f.ID)
	}
	return out
}
