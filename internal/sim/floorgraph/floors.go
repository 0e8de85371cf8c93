package floorgraph

import "sort"

// Floors maps floor ids to their graphs. Lookups of unknown floors yield an
// empty graph so callers never need to special-case malformed floor ids.
type Floors struct {
	graphs map[int]*Graph
}

func NewFloors(graphs ...*Graph) *Floors {
	f := &Floors{graphs: make(map[int]*Graph, len(graphs))}
	for _, g := range graphs {
		if g == nil {
			continue
		}
		f.graphs[g.FloorID] = g
	}
	return f
}

func (f *Floors) Floor(id int) *Graph {
	if f != nil {
		if g, ok := f.graphs[id]; ok {
			return g
		}
	}
	return Empty(id)
}

func (f *Floors) Has(id int) bool {
	if f == nil {
		return false
	}
	_, ok := f.graphs[id]
	return ok
}

// IDs returns the known floor ids in ascending order.
func (f *Floors) IDs() []int {
	if f == nil {
		return nil
	}
	out := make([]int, 0, len(f.graphs))
	for id := range f.graphs {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}
