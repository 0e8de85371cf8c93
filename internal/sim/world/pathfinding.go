package world

import (
	"context"
	"math/rand"

	"wayfinder.ai/internal/sim/floorgraph"
	"wayfinder.ai/internal/sim/jobs"
	"wayfinder.ai/internal/sim/pathfind"
)

// plan is one pending agent's per-tick working state. Each parallel worker
// writes only its own plan.
type plan struct {
	agent *Agent

	dest    floorgraph.Vec3
	hasDest bool
	snapped pathfind.SnapResult

	result pathfind.Result
}

// mutation is a deferred agent state transition. Parallel phases fill one
// slot per agent; the slots are applied in agent order once they finish.
type mutation struct {
	state AgentState
	path  []pathfind.Waypoint
}

// pathfindingReport summarizes one pass.
type pathfindingReport struct {
	Outcomes      []Outcome
	Lookups       int
	Found         int
	NoDestination int
	NoPath        int
	CacheHits     int
	Solves        int
}

// systemPathfinding routes every agent in AgentFindPath:
//
//  1. parallel: resolve destinations, then snap start and end to graph nodes;
//  2. sequential, in agent id order: cache lookup or solve, so each solve is
//     cached before the next agent is evaluated;
//  3. parallel: assemble waypoint lists and decide state transitions into
//     per-agent slots;
//  4. sequential, in agent id order: apply the slots and notify the outcome
//     handler of failures.
//
// If a parallel phase fails, no agent is touched and pending agents retry on
// the next tick.
func (w *World) systemPathfinding(nowTick uint64) pathfindingReport {
	var rep pathfindingReport
	ids := w.sortedAgentIDs()
	plans := make([]plan, 0, len(ids))
	for _, id := range ids {
		if a := w.agents[id]; a.State == AgentFindPath {
			plans = append(plans, plan{agent: a})
		}
	}
	if len(plans) == 0 {
		return rep
	}

	seeds := make([]int64, len(plans))
	for i := range seeds {
		seeds[i] = w.drawSeed()
	}

	ctx := context.Background()
	workers := w.cfg.Workers

	if err := jobs.ParallelFor(ctx, len(plans), workers, func(_ context.Context, i int) error {
		rng := rand.New(rand.NewSource(seeds[i]))
		plans[i].dest, plans[i].hasDest = w.resolver.Resolve(plans[i].agent, rng)
		return nil
	}); err != nil {
		w.logf("pathfinding: resolve destinations: %v", err)
		return rep
	}

	queries := make([]pathfind.SnapQuery, len(plans))
	for i, p := range plans {
		queries[i] = pathfind.SnapQuery{Graph: w.floors.Floor(p.agent.FloorID), From: p.agent.Pos, To: p.dest}
	}
	snapped, err := pathfind.SnapAll(ctx, queries, workers)
	if err != nil {
		w.logf("pathfinding: snap: %v", err)
		return rep
	}
	for i := range plans {
		plans[i].snapped = snapped[i]
	}

	for i := range plans {
		p := &plans[i]
		switch {
		case !p.hasDest:
			p.result = pathfind.Result{Status: pathfind.StatusNoDestination}
		case !p.snapped.OK:
			p.result = pathfind.Result{Status: pathfind.StatusNoGraphPath}
		default:
			rep.Lookups++
			before := w.engine.Stats().Solves
			p.result = w.engine.FindPath(pathfind.Query{
				FloorID: p.agent.FloorID,
				Start:   p.snapped.Start.Pos,
				End:     p.snapped.End.Pos,
				Tags:    p.agent.Tags,
			})
			if w.engine.Stats().Solves != before {
				rep.Solves++
			}
		}
	}

	// Assembly and state decisions only fill their own slots; nothing is
	// applied until both have finished.
	muts := make([]mutation, len(plans))
	outcomes := make([]Outcome, len(plans))
	if err := jobs.ParallelFor(ctx, len(plans), workers, func(_ context.Context, i int) error {
		p := plans[i]
		if p.result.Status == pathfind.StatusFound {
			muts[i].path = assemblePath(p.agent.Pos, p.result.Waypoints, p.dest)
			muts[i].state = AgentMoving
		} else {
			muts[i].state = AgentIdle
		}
		outcomes[i] = Outcome{
			Tick:      nowTick,
			AgentID:   p.agent.ID,
			Status:    p.result.Status,
			CacheHit:  p.result.CacheHit,
			Waypoints: len(muts[i].path),
		}
		return nil
	}); err != nil {
		w.logf("pathfinding: assemble: %v", err)
		return rep
	}

	// Merge in agent id order.
	for i, p := range plans {
		p.agent.State = muts[i].state
		if muts[i].state == AgentMoving {
			p.agent.Path = muts[i].path
		}
		switch outcomes[i].Status {
		case pathfind.StatusFound:
			rep.Found++
			if outcomes[i].CacheHit {
				rep.CacheHits++
			}
		case pathfind.StatusNoDestination:
			rep.NoDestination++
		default:
			rep.NoPath++
		}
		if outcomes[i].Status != pathfind.StatusFound && w.outcomes != nil {
			w.outcomes.HandleOutcome(outcomes[i])
		}
	}
	rep.Outcomes = outcomes
	return rep
}

// assemblePath frames graph waypoints with the agent's exact position and
// the exact destination, both carrying the sentinel id.
func assemblePath(from floorgraph.Vec3, graph []pathfind.Waypoint, to floorgraph.Vec3) []pathfind.Waypoint {
	out := make([]pathfind.Waypoint, 0, len(graph)+2)
	out = append(out, pathfind.Waypoint{ID: pathfind.SentinelID, Pos: from})
	out = append(out, graph...)
	out = append(out, pathfind.Waypoint{ID: pathfind.SentinelID, Pos: to})
	return out
}
