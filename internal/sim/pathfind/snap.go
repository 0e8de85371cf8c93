package pathfind

import (
	"context"

	"wayfinder.ai/internal/sim/floorgraph"
	"wayfinder.ai/internal/sim/jobs"
)

// Snap returns the node nearest (squared distance) to p. Ties go to the node
// that appears first in nodes. ok is false only when nodes is empty.
func Snap(nodes []floorgraph.Node, p floorgraph.Vec3) (floorgraph.Node, bool) {
	best := -1
	var bestD float32
	for i := range nodes {
		d := floorgraph.DistSq(p, nodes[i].Pos)
		if best < 0 || d < bestD {
			best = i
			bestD = d
		}
	}
	if best < 0 {
		return floorgraph.Node{}, false
	}
	return nodes[best], true
}

type SnapQuery struct {
	Graph *floorgraph.Graph
	From  floorgraph.Vec3
	To    floorgraph.Vec3
}

// SnapResult holds the snapped start/end nodes of one query. OK is false when
// the floor graph has no nodes.
type SnapResult struct {
	Start floorgraph.Node
	End   floorgraph.Node
	OK    bool
}

func snapPair(g *floorgraph.Graph, from, to floorgraph.Vec3) SnapResult {
	if g.IsEmpty() {
		return SnapResult{}
	}
	start, _ := Snap(g.Nodes, from)
	end, _ := Snap(g.Nodes, to)
	return SnapResult{Start: start, End: end, OK: true}
}

// SnapAll snaps every query in parallel. Each worker reads the graphs and
// writes only its own result slot.
func SnapAll(ctx context.Context, queries []SnapQuery, workers int) ([]SnapResult, error) {
	out := make([]SnapResult, len(queries))
	err := jobs.ParallelFor(ctx, len(queries), workers, func(_ context.Context, i int) error {
		q := queries[i]
		out[i] = snapPair(q.Graph, q.From, q.To)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
