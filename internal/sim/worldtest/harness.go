package worldtest

import (
	"testing"

	"wayfinder.ai/internal/sim/building"
	"wayfinder.ai/internal/sim/floorgraph"
	"wayfinder.ai/internal/sim/world"
)

// Harness drives a world built from a building config through its exported
// API only: every join and path request goes through StepOnce, so tests
// here see exactly what a replay or a transport would.
type Harness struct {
	T        *testing.T
	Building building.Config
	W        *world.World
}

// NewHarness loads the building at path ("" for the demo building), builds
// the world and registers the configured agents.
func NewHarness(t *testing.T, path string, cfg world.WorldConfig) *Harness {
	t.Helper()

	bld, err := building.Load(path)
	if err != nil {
		t.Fatalf("building.Load: %v", err)
	}
	floors, err := bld.Graphs()
	if err != nil {
		t.Fatalf("building graphs: %v", err)
	}
	if cfg.ID == "" {
		cfg.ID = bld.ID
	}
	w, err := world.New(cfg, floors, bld.WorldExits())
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	for _, spec := range bld.AgentSpecs() {
		w.AddAgent(spec)
	}
	return &Harness{T: t, Building: bld, W: w}
}

// NewHarnessWithWorld wraps an already-constructed world, for example one
// that imported a snapshot.
func NewHarnessWithWorld(t *testing.T, w *world.World, bld building.Config) *Harness {
	t.Helper()
	if w == nil {
		t.Fatalf("NewHarnessWithWorld: nil world")
	}
	return &Harness{T: t, Building: bld, W: w}
}

// Step advances one tick with no input and returns its digest.
func (h *Harness) Step() string {
	_, d := h.W.StepOnce(nil, nil, nil)
	return d
}

// Join registers an agent at the next tick and returns its id. An agent
// with a target is routed in that same tick.
func (h *Harness) Join(spec world.AgentSpec) string {
	h.T.Helper()
	resp := make(chan world.JoinResponse, 1)
	_, _ = h.W.StepOnce([]world.JoinRequest{{Spec: spec, Resp: resp}}, nil, nil)
	jr := <-resp
	if jr.AgentID == "" {
		h.T.Fatalf("join returned empty agent id")
	}
	return jr.AgentID
}

// Request routes agentID to target and returns the result of that tick.
func (h *Harness) Request(agentID string, target world.Target) world.PathResult {
	h.T.Helper()
	return h.request(world.PathRequest{AgentID: agentID, Target: target})
}

// RequestFrom relocates the agent before routing it.
func (h *Harness) RequestFrom(agentID string, floorID int, pos floorgraph.Vec3, target world.Target) world.PathResult {
	h.T.Helper()
	return h.request(world.PathRequest{AgentID: agentID, FloorID: &floorID, Pos: &pos, Target: target})
}

func (h *Harness) request(req world.PathRequest) world.PathResult {
	h.T.Helper()
	req.Resp = make(chan world.PathResult, 1)
	_, _ = h.W.StepOnce(nil, nil, []world.PathRequest{req})
	select {
	case res := <-req.Resp:
		return res
	default:
		h.T.Fatalf("no path result for %s", req.AgentID)
		return world.PathResult{}
	}
}

func (h *Harness) Agent(id string) world.Agent {
	h.T.Helper()
	a, ok := h.W.Agent(id)
	if !ok {
		h.T.Fatalf("unknown agent id: %q", id)
	}
	return a
}

// WaypointIDs lists the ids along a path, sentinels included.
func WaypointIDs(res world.PathResult) []int {
	out := make([]int, len(res.Waypoints))
	for i, wp := range res.Waypoints {
		out[i] = wp.ID
	}
	return out
}
