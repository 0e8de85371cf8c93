package world

import (
	"fmt"
	"math/rand"

	"wayfinder.ai/internal/persistence/snapshot"
	"wayfinder.ai/internal/sim/floorgraph"
	"wayfinder.ai/internal/sim/pathfind"
)

// ExportSnapshot captures agents, the path cache and the random stream
// position. Call it from the world goroutine.
func (w *World) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			WorldID: w.cfg.ID,
			Tick:    nowTick,
			RunID:   w.runID,
		},
		Seed:               w.cfg.Seed,
		TickRate:           w.cfg.TickRateHz,
		Workers:            w.cfg.Workers,
		SnapshotEveryTicks: w.cfg.SnapshotEveryTicks,
		RandDraws:          w.randDraws,
		NextAgentNum:       w.nextAgentNum.Load(),
	}

	for _, id := range w.sortedAgentIDs() {
		a := w.agents[id]
		snap.Agents = append(snap.Agents, snapshot.AgentV1{
			ID:        a.ID,
			Name:      a.Name,
			Profile:   a.Profile,
			FloorID:   a.FloorID,
			Pos:       a.Pos.Array(),
			Tags:      append([]string(nil), a.Tags...),
			State:     uint8(a.State),
			HasTarget: a.HasTarget,
			Target:    snapshot.TargetV1{FloorID: a.Target.FloorID, Centroid: a.Target.Centroid.Array()},
			Path:      waypointsV1(a.Path),
		})
	}

	for _, e := range w.engine.Cache().Entries() {
		snap.Paths = append(snap.Paths, snapshot.PathV1{
			FloorID:   e.FloorID,
			Start:     e.Start.Array(),
			End:       e.End.Array(),
			Waypoints: waypointsV1(e.Waypoints),
			Tags:      append([]string(nil), e.Tags...),
			SolvedFor: append([]string(nil), e.SolvedFor...),
		})
	}
	return snap
}

// ImportSnapshot replaces agents, restores the path cache and resumes the
// random stream. Call it before Run.
func (w *World) ImportSnapshot(s snapshot.SnapshotV1) error {
	if s.Header.Version != snapshot.Version {
		return fmt.Errorf("unsupported snapshot version: %d", s.Header.Version)
	}
	if s.Header.WorldID != "" && s.Header.WorldID != w.cfg.ID {
		return fmt.Errorf("snapshot world id mismatch: have %s, got %s", w.cfg.ID, s.Header.WorldID)
	}

	agents := make(map[string]*Agent, len(s.Agents))
	for _, a := range s.Agents {
		if _, dup := agents[a.ID]; dup {
			return fmt.Errorf("duplicate agent id in snapshot: %s", a.ID)
		}
		state := AgentState(a.State)
		if state == AgentRemoved {
			continue
		}
		agents[a.ID] = &Agent{
			ID:        a.ID,
			Name:      a.Name,
			Profile:   a.Profile,
			FloorID:   a.FloorID,
			Pos:       floorgraph.FromArray(a.Pos),
			Tags:      append([]string(nil), a.Tags...),
			State:     state,
			HasTarget: a.HasTarget,
			Target:    Target{FloorID: a.Target.FloorID, Centroid: floorgraph.FromArray(a.Target.Centroid)},
			Path:      waypointsFromV1(a.Path),
		}
	}

	entries := make([]pathfind.Entry, 0, len(s.Paths))
	for _, p := range s.Paths {
		entries = append(entries, pathfind.Entry{
			FloorID:   p.FloorID,
			Start:     floorgraph.FromArray(p.Start),
			End:       floorgraph.FromArray(p.End),
			Waypoints: waypointsFromV1(p.Waypoints),
			Tags:      pathfind.NewTagSet(p.Tags...),
			SolvedFor: pathfind.NewTagSet(p.SolvedFor...),
		})
	}

	cache := pathfind.NewCache()
	cache.Restore(entries)
	onInsert := w.engine.OnInsert
	w.engine = pathfind.NewEngine(w.floors, cache)
	w.engine.OnInsert = onInsert

	w.agents = agents
	w.waiters = map[string][]chan PathResult{}
	w.rng = rand.New(rand.NewSource(s.Seed))
	w.randDraws = 0
	for w.randDraws < s.RandDraws {
		w.drawSeed()
	}
	w.cfg.Seed = s.Seed
	w.nextAgentNum.Store(s.NextAgentNum)
	w.tick.Store(s.Header.Tick + 1)
	return nil
}

// RestorePaths appends cache entries loaded from an external store (warm
// start). Call it before Run.
func (w *World) RestorePaths(entries []pathfind.Entry) {
	w.engine.Cache().Restore(entries)
}

func waypointsV1(wps []pathfind.Waypoint) []snapshot.WaypointV1 {
	if len(wps) == 0 {
		return nil
	}
	out := make([]snapshot.WaypointV1, len(wps))
	for i, wp := range wps {
		out[i] = snapshot.WaypointV1{ID: wp.ID, Pos: wp.Pos.Array()}
	}
	return out
}

func waypointsFromV1(wps []snapshot.WaypointV1) []pathfind.Waypoint {
	if len(wps) == 0 {
		return nil
	}
	out := make([]pathfind.Waypoint, len(wps))
	for i, wp := range wps {
		out[i] = pathfind.Waypoint{ID: wp.ID, Pos: floorgraph.FromArray(wp.Pos)}
	}
	return out
}
