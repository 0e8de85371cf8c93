package world

import (
	"wayfinder.ai/internal/sim/floorgraph"
	"wayfinder.ai/internal/sim/pathfind"
)

type AgentState uint8

const (
	AgentIdle AgentState = iota
	// AgentFindPath: the agent requests a path on the next tick.
	AgentFindPath
	AgentMoving
	AgentRemoved
)

func (s AgentState) String() string {
	switch s {
	case AgentIdle:
		return "IDLE"
	case AgentFindPath:
		return "FIND_PATH"
	case AgentMoving:
		return "MOVING"
	case AgentRemoved:
		return "REMOVED"
	default:
		return "UNKNOWN"
	}
}

// Target is where an agent ultimately wants to be. When it lies on another
// floor the destination resolver routes the agent to an exit first.
type Target struct {
	FloorID  int             `json:"floor_id"`
	Centroid floorgraph.Vec3 `json:"centroid"`
}

type Agent struct {
	ID      string
	Name    string
	Profile string

	FloorID int
	Pos     floorgraph.Vec3
	Tags    []string

	State     AgentState
	HasTarget bool
	Target    Target

	// Path is the last assigned route: exact position, graph waypoints, exact destination.
	Path []pathfind.Waypoint
}

// Exit is an entry/exit surface (doorway, stair landing, lift). Destinations
// lists the exit ids reachable by taking it.
type Exit struct {
	ID           string
	FloorID      int
	Centroid     floorgraph.Vec3
	Active       bool
	Profiles     []string
	Destinations []string
}

// Accepts reports whether an agent with the given profile may use the exit.
// An exit without profiles accepts everyone.
func (e Exit) Accepts(profile string) bool {
	if len(e.Profiles) == 0 {
		return true
	}
	for _, p := range e.Profiles {
		if p == profile {
			return true
		}
	}
	return false
}

// AgentSpec describes an agent to register.
type AgentSpec struct {
	Name    string
	Profile string
	FloorID int
	Pos     floorgraph.Vec3
	Tags    []string
	// Target, when set, queues a path request for the first tick.
	Target *Target
}

type JoinRequest struct {
	Spec AgentSpec
	Resp chan JoinResponse
}

type JoinResponse struct {
	AgentID string
}

// PathRequest asks the world to route an agent to Target. FloorID and Pos,
// when non-nil, relocate the agent first.
type PathRequest struct {
	AgentID string
	Target  Target
	FloorID *int
	Pos     *floorgraph.Vec3
	Resp    chan PathResult
}

// PathResult is delivered to the requester after the tick that evaluated it.
// Err holds a protocol error code (and Status is zero) when the request was
// rejected.
type PathResult struct {
	Tick      uint64
	AgentID   string
	Status    pathfind.Status
	CacheHit  bool
	Waypoints []pathfind.Waypoint
	Err       string
}

// Outcome is the per-agent result of a tick's pathfinding pass.
type Outcome struct {
	Tick      uint64
	AgentID   string
	Status    pathfind.Status
	CacheHit  bool
	Waypoints int
}

// OutcomeHandler receives failed pathfinding outcomes (for example to release
// capacity reserved at the destination). It is called from the world
// goroutine, once per failed agent, in agent id order.
type OutcomeHandler interface {
	HandleOutcome(o Outcome)
}

type OutcomeHandlerFunc func(o Outcome)

func (f OutcomeHandlerFunc) HandleOutcome(o Outcome) { f(o) }

type ObserverJoinRequest struct {
	SessionID string
	TickOut   chan []byte
}
