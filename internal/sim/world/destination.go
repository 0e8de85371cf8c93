package world

import (
	"math/rand"

	"wayfinder.ai/internal/sim/floorgraph"
)

// DestinationResolver picks the point an agent should walk to this tick.
// Resolve runs on parallel workers; rng is private to the call and must be
// the only source of randomness.
type DestinationResolver interface {
	Resolve(a *Agent, rng *rand.Rand) (floorgraph.Vec3, bool)
}

// ExitResolver sends agents straight to a same-floor target, otherwise to a
// random active exit on their floor that accepts their profile and leads to
// an exit on the target floor.
type ExitResolver struct {
	exits []Exit
	byID  map[string]int
}

func NewExitResolver(exits []Exit) *ExitResolver {
	r := &ExitResolver{
		exits: append([]Exit(nil), exits...),
		byID:  make(map[string]int, len(exits)),
	}
	for i, e := range r.exits {
		r.byID[e.ID] = i
	}
	return r
}

func (r *ExitResolver) Resolve(a *Agent, rng *rand.Rand) (floorgraph.Vec3, bool) {
	if a == nil || !a.HasTarget {
		return floorgraph.Vec3{}, false
	}
	if a.Target.FloorID == a.FloorID {
		return a.Target.Centroid, true
	}

	eligible := r.eligible(a)
	if len(eligible) == 0 {
		return floorgraph.Vec3{}, false
	}
	rng.Shuffle(len(eligible), func(i, j int) { eligible[i], eligible[j] = eligible[j], eligible[i] })
	return r.exits[eligible[0]].Centroid, true
}

// eligible lists exit indices once per destination that lands on the target
// floor, so exits with several such destinations weigh more in the draw.
func (r *ExitResolver) eligible(a *Agent) []int {
	var out []int
	for i, e := range r.exits {
		if !e.Active || e.FloorID != a.FloorID || !e.Accepts(a.Profile) {
			continue
		}
		for _, destID := range e.Destinations {
			j, ok := r.byID[destID]
			if ok && r.exits[j].FloorID == a.Target.FloorID {
				out = append(out, i)
			}
		}
	}
	return out
}

func (r *ExitResolver) Exits() []Exit { return append([]Exit(nil), r.exits...) }
