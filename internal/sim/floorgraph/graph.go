package floorgraph

// Node is a graph vertex. LocalID is the dense index into Graph.Nodes;
// SourceID is the authoring identifier that arcs, neighbors and tags refer to.
type Node struct {
	LocalID  int  `json:"local_id"`
	SourceID int  `json:"source_id"`
	Pos      Vec3 `json:"pos"`
}

// Arc is a weighted edge between two nodes, expressed in source ids.
// Cost is the squared euclidean length of the segment.
type Arc struct {
	A    int     `json:"a"`
	B    int     `json:"b"`
	Cost float32 `json:"cost"`
}

func (a Arc) Key() ArcKey { return MakeArcKey(a.A, a.B) }

// ArcKey identifies an arc by its unordered endpoint pair.
type ArcKey struct {
	Lo int
	Hi int
}

func MakeArcKey(a, b int) ArcKey {
	if a > b {
		a, b = b, a
	}
	return ArcKey{Lo: a, Hi: b}
}

// Graph is the read-only node/arc model of one floor. It is safe for any
// number of concurrent readers once built.
type Graph struct {
	FloorID int
	Nodes   []Node
	Arcs    []Arc

	bySource  map[int]int
	adjacency map[int][]int
	arcIndex  map[ArcKey]int
	arcTags   map[ArcKey][]string
}

// Empty returns a graph with no nodes or arcs for the given floor.
func Empty(floorID int) *Graph {
	return &Graph{
		FloorID:   floorID,
		bySource:  map[int]int{},
		adjacency: map[int][]int{},
		arcIndex:  map[ArcKey]int{},
		arcTags:   map[ArcKey][]string{},
	}
}

func (g *Graph) IsEmpty() bool { return g == nil || len(g.Nodes) == 0 }

func (g *Graph) NodeBySource(sourceID int) (Node, bool) {
	if g == nil {
		return Node{}, false
	}
	i, ok := g.bySource[sourceID]
	if !ok {
		return Node{}, false
	}
	return g.Nodes[i], true
}

// Neighbors returns the recorded neighbor source ids of sourceID, in insertion
// order. The slice must not be modified.
func (g *Graph) Neighbors(sourceID int) []int {
	if g == nil {
		return nil
	}
	return g.adjacency[sourceID]
}

func (g *Graph) ArcBetween(a, b int) (Arc, bool) {
	if g == nil {
		return Arc{}, false
	}
	i, ok := g.arcIndex[MakeArcKey(a, b)]
	if !ok {
		return Arc{}, false
	}
	return g.Arcs[i], true
}

// ArcTags returns the access tags gating the arc between a and b (nil when
// the arc is unconditionally traversable). The slice must not be modified.
func (g *Graph) ArcTags(a, b int) []string {
	if g == nil {
		return nil
	}
	return g.arcTags[MakeArcKey(a, b)]
}

// TaggedArcs returns the number of arcs carrying at least one tag.
func (g *Graph) TaggedArcs() int {
	if g == nil {
		return 0
	}
	return len(g.arcTags)
}
