package pathfind

import (
	"container/heap"
	"math"

	"wayfinder.ai/internal/sim/floorgraph"
)

// Solution is a solved path in reconstruction order (end first, start last).
type Solution struct {
	EndToStart []Waypoint
	Cost       float32
	UsedTags   TagSet
	Settled    int
}

// Solve runs Dijkstra over g from the node(s) positioned at start until the
// node positioned at end is settled. Arcs carrying tags are traversable only
// when one of required matches; the first matching tag per accepted arc is
// recorded in UsedTags. With no required tags every arc is traversable.
// ok is false when end is unreachable (including an empty graph or a start
// position that is not a node).
func Solve(g *floorgraph.Graph, start, end floorgraph.Vec3, required []string) (Solution, bool) {
	if g.IsEmpty() {
		return Solution{}, false
	}
	n := len(g.Nodes)
	startBits, endBits := start.Bits(), end.Bits()

	dist := make([]float32, n)
	pred := make([]int, n)
	settled := make([]bool, n)
	inf := float32(math.Inf(1))

	pq := make(nodeQueue, 0, n)
	for i, node := range g.Nodes {
		pred[i] = -1
		dist[i] = inf
		if node.Pos.Bits() == startBits {
			dist[i] = 0
			pq = append(pq, queued{local: i, dist: 0})
		}
	}
	heap.Init(&pq)

	var used TagSet
	settledCount := 0
	for pq.Len() > 0 {
		it := heap.Pop(&pq).(queued)
		cur := it.local
		if settled[cur] || it.dist > dist[cur] {
			continue
		}
		settled[cur] = true
		settledCount++

		node := g.Nodes[cur]
		if node.Pos.Bits() == endBits {
			return Solution{
				EndToStart: reconstruct(g, pred, cur),
				Cost:       dist[cur],
				UsedTags:   used,
				Settled:    settledCount,
			}, true
		}

		for _, nbSource := range g.Neighbors(node.SourceID) {
			nb, ok := g.NodeBySource(nbSource)
			if !ok {
				continue
			}
			arc, ok := g.ArcBetween(node.SourceID, nbSource)
			if !ok {
				continue
			}
			if !arcValid(g.ArcTags(node.SourceID, nbSource), required, &used) {
				continue
			}
			alt := dist[cur] + arc.Cost
			if alt < dist[nb.LocalID] {
				dist[nb.LocalID] = alt
				pred[nb.LocalID] = cur
				heap.Push(&pq, queued{local: nb.LocalID, dist: alt})
			}
		}
	}
	return Solution{Settled: settledCount}, false
}

// arcValid applies the disjunctive tag gate. The agent's tags are tried in
// order; the first one present on the arc is recorded and accepts the arc.
func arcValid(arcTags []string, required []string, used *TagSet) bool {
	if len(arcTags) == 0 || len(required) == 0 {
		return true
	}
	for _, want := range required {
		for _, have := range arcTags {
			if have == want {
				used.Add(have)
				return true
			}
		}
	}
	return false
}

func reconstruct(g *floorgraph.Graph, pred []int, from int) []Waypoint {
	out := make([]Waypoint, 0, 8)
	for cur, steps := from, 0; cur >= 0 && steps <= len(pred); cur, steps = pred[cur], steps+1 {
		n := g.Nodes[cur]
		out = append(out, Waypoint{ID: n.SourceID, Pos: n.Pos})
	}
	return out
}

type queued struct {
	local int
	dist  float32
}

type nodeQueue []queued

func (q nodeQueue) Len() int { return len(q) }
func (q nodeQueue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	return q[i].local < q[j].local
}
func (q nodeQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *nodeQueue) Push(x any)   { *q = append(*q, x.(queued)) }
func (q *nodeQueue) Pop() any {
	old := *q
	it := old[len(old)-1]
	*q = old[:len(old)-1]
	return it
}
