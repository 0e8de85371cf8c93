package floorgraph

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateNode = errors.New("duplicate node source id")
	ErrUnknownNode   = errors.New("unknown node source id")
)

// Builder assembles a Graph from authoring data. It is the producer side of
// the floor graph: the solver only ever reads the built result.
type Builder struct {
	floorID int

	nodes     []Node
	arcs      []Arc
	neighbors [][2]int
	tags      []arcTag

	err error
}

type arcTag struct {
	a, b int
	tag  string
}

func NewBuilder(floorID int) *Builder {
	return &Builder{floorID: floorID}
}

// AddNode appends a node. Local ids are assigned densely in call order.
func (b *Builder) AddNode(sourceID int, pos Vec3) *Builder {
	b.nodes = append(b.nodes, Node{LocalID: len(b.nodes), SourceID: sourceID, Pos: pos})
	return b
}

// AddArc records an arc with an explicit cost. It does not touch adjacency.
func (b *Builder) AddArc(a, c int, cost float32) *Builder {
	b.arcs = append(b.arcs, Arc{A: a, B: c, Cost: cost})
	return b
}

// AddNeighbor records a single adjacency direction from -> to.
func (b *Builder) AddNeighbor(from, to int) *Builder {
	b.neighbors = append(b.neighbors, [2]int{from, to})
	return b
}

func (b *Builder) TagArc(a, c int, tag string) *Builder {
	b.tags = append(b.tags, arcTag{a: a, b: c, tag: tag})
	return b
}

// Connect adds an arc whose cost is the squared length between the two nodes,
// both adjacency directions, and the given tags.
func (b *Builder) Connect(a, c int, tags ...string) *Builder {
	pa, okA := b.posOf(a)
	pc, okC := b.posOf(c)
	if !okA || !okC {
		if b.err == nil {
			b.err = fmt.Errorf("connect %d-%d: %w", a, c, ErrUnknownNode)
		}
		return b
	}
	b.AddArc(a, c, DistSq(pa, pc))
	b.AddNeighbor(a, c)
	b.AddNeighbor(c, a)
	for _, t := range tags {
		b.TagArc(a, c, t)
	}
	return b
}

func (b *Builder) posOf(sourceID int) (Vec3, bool) {
	for _, n := range b.nodes {
		if n.SourceID == sourceID {
			return n.Pos, true
		}
	}
	return Vec3{}, false
}

func (b *Builder) Build() (*Graph, error) {
	if b.err != nil {
		return nil, b.err
	}
	g := Empty(b.floorID)
	g.Nodes = make([]Node, len(b.nodes))
	copy(g.Nodes, b.nodes)
	for _, n := range g.Nodes {
		if _, dup := g.bySource[n.SourceID]; dup {
			return nil, fmt.Errorf("floor %d node %d: %w", b.floorID, n.SourceID, ErrDuplicateNode)
		}
		g.bySource[n.SourceID] = n.LocalID
	}

	g.Arcs = make([]Arc, 0, len(b.arcs))
	for _, a := range b.arcs {
		if err := g.requireNodes(a.A, a.B); err != nil {
			return nil, fmt.Errorf("floor %d arc %d-%d: %w", b.floorID, a.A, a.B, err)
		}
		k := a.Key()
		if _, ok := g.arcIndex[k]; ok {
			// First arc for a pair wins.
			continue
		}
		g.arcIndex[k] = len(g.Arcs)
		g.Arcs = append(g.Arcs, a)
	}

	for _, nb := range b.neighbors {
		if err := g.requireNodes(nb[0], nb[1]); err != nil {
			return nil, fmt.Errorf("floor %d neighbor %d->%d: %w", b.floorID, nb[0], nb[1], err)
		}
		g.adjacency[nb[0]] = append(g.adjacency[nb[0]], nb[1])
	}

	for _, t := range b.tags {
		if err := g.requireNodes(t.a, t.b); err != nil {
			return nil, fmt.Errorf("floor %d tag %q on %d-%d: %w", b.floorID, t.tag, t.a, t.b, err)
		}
		k := MakeArcKey(t.a, t.b)
		g.arcTags[k] = append(g.arcTags[k], t.tag)
	}
	return g, nil
}

func (g *Graph) requireNodes(ids ...int) error {
	for _, id := range ids {
		if _, ok := g.bySource[id]; !ok {
			return fmt.Errorf("%w %d", ErrUnknownNode, id)
		}
	}
	return nil
}
