package pathfind

import (
	"sync/atomic"

	"wayfinder.ai/internal/sim/floorgraph"
)

type Status uint8

const (
	StatusFound Status = iota + 1
	// StatusNoDestination: no eligible destination was resolved; the engine is
	// never invoked for such agents.
	StatusNoDestination
	// StatusNoGraphPath: the solver could not reach the end node. An empty or
	// unknown floor graph degenerates to this status.
	StatusNoGraphPath
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "FOUND"
	case StatusNoDestination:
		return "NO_DESTINATION"
	case StatusNoGraphPath:
		return "NO_PATH"
	default:
		return "UNKNOWN"
	}
}

// Query is one agent's lookup-or-solve request. Start and End must be
// node-snapped positions.
type Query struct {
	FloorID int
	Start   floorgraph.Vec3
	End     floorgraph.Vec3
	Tags    []string
}

type Result struct {
	Status    Status
	Waypoints []Waypoint
	CacheHit  bool
	// Cost is only known for fresh solves.
	Cost float32
}

type Stats struct {
	Lookups uint64 `json:"lookups"`
	Hits    uint64 `json:"hits"`
	Solves  uint64 `json:"solves"`
	NoPath  uint64 `json:"no_path"`
}

// Engine couples the path cache with the solver. FindPath must be called from
// one goroutine at a time so that each solve is visible to the next lookup.
type Engine struct {
	floors *floorgraph.Floors
	cache  *Cache

	// OnInsert, if set, is called synchronously with a copy of every new
	// cache entry.
	OnInsert func(e Entry)

	lookups atomic.Uint64
	hits    atomic.Uint64
	solves  atomic.Uint64
	noPath  atomic.Uint64
}

func NewEngine(floors *floorgraph.Floors, cache *Cache) *Engine {
	if cache == nil {
		cache = NewCache()
	}
	return &Engine{floors: floors, cache: cache}
}

func (e *Engine) Cache() *Cache              { return e.cache }
func (e *Engine) Floors() *floorgraph.Floors { return e.floors }

func (e *Engine) FindPath(q Query) Result {
	e.lookups.Add(1)
	if hit, ok := e.cache.Lookup(q.FloorID, q.Start, q.End, q.Tags); ok {
		e.hits.Add(1)
		return Result{Status: StatusFound, Waypoints: hit.Waypoints, CacheHit: true}
	}

	e.solves.Add(1)
	sol, ok := Solve(e.floors.Floor(q.FloorID), q.Start, q.End, q.Tags)
	if !ok {
		e.noPath.Add(1)
		return Result{Status: StatusNoGraphPath}
	}
	rev, fwd := e.cache.InsertPair(q.FloorID, q.Start, q.End, sol.EndToStart, sol.UsedTags, NewTagSet(q.Tags...))
	if e.OnInsert != nil {
		e.OnInsert(rev)
		e.OnInsert(fwd)
	}
	return Result{Status: StatusFound, Waypoints: fwd.Waypoints, Cost: sol.Cost}
}

func (e *Engine) Stats() Stats {
	return Stats{
		Lookups: e.lookups.Load(),
		Hits:    e.hits.Load(),
		Solves:  e.solves.Load(),
		NoPath:  e.noPath.Load(),
	}
}
