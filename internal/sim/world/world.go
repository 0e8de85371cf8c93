package world

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"sync/atomic"
	"time"

	"wayfinder.ai/internal/persistence/snapshot"
	"wayfinder.ai/internal/sim/floorgraph"
	"wayfinder.ai/internal/sim/pathfind"
)

// World is a single-threaded authoritative building simulation. Agent state
// must be accessed only from the world loop goroutine; the pathfinding
// system fans work out to parallel workers inside a tick.
type World struct {
	cfg    WorldConfig
	floors *floorgraph.Floors
	engine *pathfind.Engine

	resolver DestinationResolver
	outcomes OutcomeHandler

	tick atomic.Uint64

	agents  map[string]*Agent
	waiters map[string][]chan PathResult

	// rng is the single logical random stream; randDraws counts values taken.
	rng       *rand.Rand
	randDraws uint64

	join          chan JoinRequest
	requests      chan PathRequest
	leave         chan string
	observerJoin  chan ObserverJoinRequest
	observerLeave chan string
	stop          chan struct{}

	observers map[string]chan []byte

	nextAgentNum atomic.Uint64

	// Optional sinks (may be nil). Implemented in internal/persistence/* and internal/observe.
	tickLogger TickLogger
	pathLogger PathLogger
	recorder   TickRecorder
	logger     *log.Logger

	// Optional snapshot sink (may be nil). Snapshot writing should be off-thread.
	snapshotSink chan<- snapshot.SnapshotV1
	runID        string

	// Entries inserted into the path cache during the current tick.
	inserted []pathfind.Entry

	metrics atomic.Value
}

func New(cfg WorldConfig, floors *floorgraph.Floors, exits []Exit) (*World, error) {
	cfg.applyDefaults()
	if floors == nil {
		floors = floorgraph.NewFloors()
	}
	seen := map[string]bool{}
	for _, e := range exits {
		if e.ID == "" {
			return nil, fmt.Errorf("exit on floor %d: missing id", e.FloorID)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("duplicate exit id: %s", e.ID)
		}
		seen[e.ID] = true
	}

	w := &World{
		cfg:           cfg,
		floors:        floors,
		resolver:      NewExitResolver(exits),
		agents:        map[string]*Agent{},
		waiters:       map[string][]chan PathResult{},
		rng:           rand.New(rand.NewSource(cfg.Seed)),
		join:          make(chan JoinRequest, 64),
		requests:      make(chan PathRequest, 1024),
		leave:         make(chan string, 64),
		observerJoin:  make(chan ObserverJoinRequest, 16),
		observerLeave: make(chan string, 16),
		stop:          make(chan struct{}),
		observers:     map[string]chan []byte{},
	}
	w.engine = pathfind.NewEngine(floors, pathfind.NewCache())
	w.engine.OnInsert = func(e pathfind.Entry) { w.inserted = append(w.inserted, e) }
	return w, nil
}

func (w *World) SetTickLogger(l TickLogger)                    { w.tickLogger = l }
func (w *World) SetPathLogger(l PathLogger)                    { w.pathLogger = l }
func (w *World) SetTickRecorder(r TickRecorder)                { w.recorder = r }
func (w *World) SetLogger(l *log.Logger)                       { w.logger = l }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }
func (w *World) SetRunID(id string)                            { w.runID = id }
func (w *World) SetDestinationResolver(r DestinationResolver)  { w.resolver = r }
func (w *World) SetOutcomeHandler(h OutcomeHandler)            { w.outcomes = h }

func (w *World) Join() chan<- JoinRequest                 { return w.join }
func (w *World) Requests() chan<- PathRequest             { return w.requests }
func (w *World) Leave() chan<- string                     { return w.leave }
func (w *World) ObserverJoin() chan<- ObserverJoinRequest { return w.observerJoin }
func (w *World) ObserverLeave() chan<- string             { return w.observerLeave }

func (w *World) Config() WorldConfig        { return w.cfg }
func (w *World) Floors() *floorgraph.Floors { return w.floors }
func (w *World) Cache() *pathfind.Cache     { return w.engine.Cache() }
func (w *World) EngineStats() pathfind.Stats {
	return w.engine.Stats()
}
func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingJoins []JoinRequest
	var pendingRequests []PathRequest
	var pendingLeaves []string

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			pendingJoins = append(pendingJoins, req)
		case req := <-w.requests:
			pendingRequests = append(pendingRequests, req)
		case id := <-w.leave:
			pendingLeaves = append(pendingLeaves, id)
		case req := <-w.observerJoin:
			w.observers[req.SessionID] = req.TickOut
		case id := <-w.observerLeave:
			delete(w.observers, id)
		case <-ticker.C:
			w.step(pendingJoins, pendingLeaves, pendingRequests)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingRequests = pendingRequests[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// StepOnce runs a single tick with the given inputs. It must not be used
// concurrently with Run; tests and replay drive the world this way.
func (w *World) StepOnce(joins []JoinRequest, leaves []string, requests []PathRequest) (tick uint64, digest string) {
	return w.step(joins, leaves, requests)
}

// AddAgent registers an agent and returns its id. Call it before Run or
// from the world goroutine.
func (w *World) AddAgent(spec AgentSpec) string {
	num := w.nextAgentNum.Add(1)
	id := fmt.Sprintf("A%d", num)
	name := spec.Name
	if name == "" {
		name = "agent"
	}
	a := &Agent{
		ID:      id,
		Name:    name,
		Profile: spec.Profile,
		FloorID: spec.FloorID,
		Pos:     spec.Pos,
		Tags:    append([]string(nil), spec.Tags...),
		State:   AgentIdle,
	}
	if spec.Target != nil {
		a.HasTarget = true
		a.Target = *spec.Target
		a.State = AgentFindPath
	}
	w.agents[id] = a
	return id
}

// Agent returns a copy of the agent's current state.
func (w *World) Agent(id string) (Agent, bool) {
	a, ok := w.agents[id]
	if !ok {
		return Agent{}, false
	}
	cp := *a
	cp.Tags = append([]string(nil), a.Tags...)
	cp.Path = append([]pathfind.Waypoint(nil), a.Path...)
	return cp, true
}

func (w *World) sortedAgentIDs() []string {
	ids := make([]string, 0, len(w.agents))
	for id := range w.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// drawSeed advances the world's random stream by one value.
func (w *World) drawSeed() int64 {
	w.randDraws++
	return w.rng.Int63()
}

func (w *World) logf(format string, args ...any) {
	if w.logger != nil {
		w.logger.Printf(format, args...)
	}
}
