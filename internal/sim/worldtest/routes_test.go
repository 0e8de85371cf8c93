package worldtest

import (
	"slices"
	"testing"

	"wayfinder.ai/internal/sim/floorgraph"
	"wayfinder.ai/internal/sim/pathfind"
	"wayfinder.ai/internal/sim/world"
)

const buildingPath = "../../../configs/building.yaml"

func TestBuilding_ConfiguredAgentsRouteOnFirstTick(t *testing.T) {
	h := NewHarness(t, buildingPath, world.WorldConfig{Seed: 42})
	h.Step()

	// visitor_1 targets floor 1; the only exit open to visitors is the stairs.
	visitor := h.Agent("A1")
	if visitor.State != world.AgentMoving {
		t.Fatalf("visitor state = %s", visitor.State)
	}
	if got := pathIDs(visitor.Path); !slices.Equal(got, []int{-1, 0, 1, 2, -1}) {
		t.Fatalf("visitor path = %v", got)
	}
	if end := visitor.Path[len(visitor.Path)-1].Pos; end != floorgraph.V(20, 0, 0) {
		t.Fatalf("visitor destination = %+v, want stairs_0", end)
	}

	// cleaner_1 carries the staff tag and takes the tagged shortcut.
	cleaner := h.Agent("A2")
	if got := pathIDs(cleaner.Path); !slices.Equal(got, []int{-1, 3, 4, -1}) {
		t.Fatalf("cleaner path = %v", got)
	}
}

func TestBuilding_TagGatedArcs(t *testing.T) {
	h := NewHarness(t, buildingPath, world.WorldConfig{Seed: 42})
	h.Step()
	target := world.Target{FloorID: 0, Centroid: floorgraph.V(20, 0, 10)}

	// A badge matches neither tagged arc into node 4.
	guest := h.Join(world.AgentSpec{Name: "guest", FloorID: 0, Pos: floorgraph.V(10, 0, 10), Tags: []string{"badge"}})
	res := h.Request(guest, target)
	if res.Status != pathfind.StatusNoGraphPath {
		t.Fatalf("badge status = %s, want NO_PATH", res.Status)
	}
	if a := h.Agent(guest); a.State != world.AgentIdle {
		t.Fatalf("badge agent state = %s, want IDLE", a.State)
	}

	// One matching tag opens the staff|maintenance arc.
	tech := h.Join(world.AgentSpec{Name: "tech", FloorID: 0, Pos: floorgraph.V(10, 0, 10), Tags: []string{"maintenance"}})
	res = h.Request(tech, target)
	if res.Status != pathfind.StatusFound || res.CacheHit {
		t.Fatalf("maintenance result = %+v", res)
	}
	if got := WaypointIDs(res); !slices.Equal(got, []int{-1, 3, 1, 2, 4, -1}) {
		t.Fatalf("maintenance path = %v", got)
	}

	// No requirement means no gate; cleaner_1's cached staff path is reused.
	anyone := h.Join(world.AgentSpec{Name: "anyone", FloorID: 0, Pos: floorgraph.V(10, 0, 10)})
	res = h.Request(anyone, target)
	if res.Status != pathfind.StatusFound || !res.CacheHit {
		t.Fatalf("untagged result = %+v, want cache hit", res)
	}
	if got := WaypointIDs(res); !slices.Equal(got, []int{-1, 3, 4, -1}) {
		t.Fatalf("untagged path = %v", got)
	}
}

func TestBuilding_RepeatedQueryHitsCache(t *testing.T) {
	h := NewHarness(t, buildingPath, world.WorldConfig{Seed: 42})
	h.Step()
	target := world.Target{FloorID: 0, Centroid: floorgraph.V(20, 0, 10)}
	before := h.W.EngineStats().Solves

	// Same snapped endpoints and tags as cleaner_1's first-tick solve.
	staff := h.Join(world.AgentSpec{Name: "staff_2", FloorID: 0, Pos: floorgraph.V(10.5, 0, 10), Tags: []string{"staff"}})
	res := h.Request(staff, target)
	if res.Status != pathfind.StatusFound || !res.CacheHit {
		t.Fatalf("staff result = %+v, want cache hit", res)
	}
	if got := WaypointIDs(res); !slices.Equal(got, []int{-1, 3, 4, -1}) {
		t.Fatalf("cached path = %v", got)
	}

	// {staff} does not cover {maintenance, staff}: solved once, then memoized.
	both := h.Join(world.AgentSpec{Name: "lead", FloorID: 0, Pos: floorgraph.V(10.5, 0, 10), Tags: []string{"staff", "maintenance"}})
	first := h.Request(both, target)
	second := h.RequestFrom(both, 0, floorgraph.V(10.5, 0, 10), target)
	if first.Status != pathfind.StatusFound || first.CacheHit {
		t.Fatalf("first result = %+v, want a fresh solve", first)
	}
	if second.Status != pathfind.StatusFound || !second.CacheHit {
		t.Fatalf("second result = %+v, want cache hit", second)
	}
	if !slices.Equal(WaypointIDs(first), WaypointIDs(second)) {
		t.Fatalf("paths differ: %v vs %v", WaypointIDs(first), WaypointIDs(second))
	}
	if solves := h.W.EngineStats().Solves - before; solves != 1 {
		t.Fatalf("solves = %d, want 1", solves)
	}
}

func TestBuilding_OneWayArc(t *testing.T) {
	h := NewHarness(t, buildingPath, world.WorldConfig{Seed: 42})
	id := h.Join(world.AgentSpec{Name: "walker", FloorID: 1, Pos: floorgraph.V(20, 4, 10)})
	upper := world.Target{FloorID: 1, Centroid: floorgraph.V(20, 4, 0)}
	lower := world.Target{FloorID: 1, Centroid: floorgraph.V(20, 4, 10)}

	res := h.Request(id, upper)
	if res.Status != pathfind.StatusNoGraphPath {
		t.Fatalf("against the arc: status = %s, want NO_PATH", res.Status)
	}

	res = h.RequestFrom(id, 1, floorgraph.V(20, 4, 0), lower)
	if res.Status != pathfind.StatusFound {
		t.Fatalf("along the arc: status = %s", res.Status)
	}
	if got := WaypointIDs(res); !slices.Equal(got, []int{-1, 101, 102, -1}) {
		t.Fatalf("along the arc: path = %v", got)
	}

	// Solves are cached in both directions, so the reverse now hits.
	res = h.RequestFrom(id, 1, floorgraph.V(20, 4, 10), upper)
	if res.Status != pathfind.StatusFound || !res.CacheHit {
		t.Fatalf("reverse after solve = %+v, want cache hit", res)
	}
	if got := WaypointIDs(res); !slices.Equal(got, []int{-1, 102, 101, -1}) {
		t.Fatalf("reverse path = %v", got)
	}
}

func TestBuilding_StaffMayTakeServiceLift(t *testing.T) {
	stairs := floorgraph.V(20, 0, 0)
	lift := floorgraph.V(20, 0, 10)
	seen := map[floorgraph.Vec3]bool{}
	for seed := int64(1); seed <= 16; seed++ {
		h := NewHarness(t, buildingPath, world.WorldConfig{Seed: seed})
		id := h.Join(world.AgentSpec{Name: "porter", Profile: "staff", FloorID: 0, Pos: floorgraph.V(0, 0, 0), Tags: []string{"staff"}})
		res := h.Request(id, world.Target{FloorID: 1, Centroid: floorgraph.V(0, 4, 0)})
		if res.Status != pathfind.StatusFound {
			t.Fatalf("seed %d: status = %s", seed, res.Status)
		}
		end := res.Waypoints[len(res.Waypoints)-1].Pos
		if end != stairs && end != lift {
			t.Fatalf("seed %d: destination %+v is not an exit", seed, end)
		}
		seen[end] = true
	}
	if len(seen) != 2 {
		t.Fatalf("expected both exits across seeds, got %v", seen)
	}
}

func TestBuilding_NoExitToTargetFloor(t *testing.T) {
	h := NewHarness(t, buildingPath, world.WorldConfig{Seed: 42})
	id := h.Join(world.AgentSpec{Name: "lost", FloorID: 0, Pos: floorgraph.V(0, 0, 0)})
	res := h.Request(id, world.Target{FloorID: 7, Centroid: floorgraph.V(0, 0, 0)})
	if res.Status != pathfind.StatusNoDestination {
		t.Fatalf("status = %s, want NO_DESTINATION", res.Status)
	}
}

func pathIDs(wps []pathfind.Waypoint) []int {
	out := make([]int, len(wps))
	for i, wp := range wps {
		out[i] = wp.ID
	}
	return out
}
