package world

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"math"
	"time"

	"wayfinder.ai/internal/protocol"
	"wayfinder.ai/internal/sim/floorgraph"
	"wayfinder.ai/internal/sim/pathfind"
)

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

// PathLogger receives every path cache entry created by a solve.
type PathLogger interface {
	WritePath(entry PathLogEntry) error
}

// TickRecorder receives a per-tick summary (metrics exporters).
type TickRecorder interface {
	RecordTick(ctx context.Context, s TickStats)
}

type TickLogEntry struct {
	Tick     uint64            `json:"tick"`
	Joins    []RecordedJoin    `json:"joins,omitempty"`
	Leaves   []string          `json:"leaves,omitempty"`
	Requests []RecordedRequest `json:"requests,omitempty"`
	Outcomes []RecordedOutcome `json:"outcomes,omitempty"`
	Digest   string            `json:"digest"`
}

// RecordedJoin carries the full agent spec so that replay re-registers the
// agent identically.
type RecordedJoin struct {
	AgentID string          `json:"agent_id"`
	Name    string          `json:"name"`
	Profile string          `json:"profile,omitempty"`
	FloorID int             `json:"floor_id"`
	Pos     [3]float32      `json:"pos"`
	Tags    []string        `json:"tags,omitempty"`
	Target  *RecordedTarget `json:"target,omitempty"`
}

type RecordedTarget struct {
	FloorID  int        `json:"floor_id"`
	Centroid [3]float32 `json:"centroid"`
}

type RecordedRequest struct {
	AgentID     string      `json:"agent_id"`
	TargetFloor int         `json:"target_floor"`
	Target      [3]float32  `json:"target"`
	FloorID     *int        `json:"floor_id,omitempty"`
	Pos         *[3]float32 `json:"pos,omitempty"`
}

func (j RecordedJoin) Request() JoinRequest {
	spec := AgentSpec{
		Name:    j.Name,
		Profile: j.Profile,
		FloorID: j.FloorID,
		Pos:     floorgraph.FromArray(j.Pos),
		Tags:    append([]string(nil), j.Tags...),
	}
	if j.Target != nil {
		spec.Target = &Target{FloorID: j.Target.FloorID, Centroid: floorgraph.FromArray(j.Target.Centroid)}
	}
	return JoinRequest{Spec: spec}
}

func (r RecordedRequest) Request() PathRequest {
	req := PathRequest{
		AgentID: r.AgentID,
		Target:  Target{FloorID: r.TargetFloor, Centroid: floorgraph.FromArray(r.Target)},
	}
	if r.FloorID != nil {
		f := *r.FloorID
		req.FloorID = &f
	}
	if r.Pos != nil {
		p := floorgraph.FromArray(*r.Pos)
		req.Pos = &p
	}
	return req
}

type RecordedOutcome struct {
	AgentID   string `json:"agent_id"`
	Status    string `json:"status"`
	CacheHit  bool   `json:"cache_hit,omitempty"`
	Waypoints int    `json:"waypoints,omitempty"`
}

type PathLogEntry struct {
	Tick  uint64         `json:"tick"`
	Entry pathfind.Entry `json:"entry"`
}

type TickStats struct {
	Tick          uint64
	Duration      time.Duration
	Requests      int
	Lookups       int
	Found         int
	NoDestination int
	NoPath        int
	CacheHits     int
	Solves        int
	CacheEntries  int
}

func (w *World) step(joins []JoinRequest, leaves []string, requests []PathRequest) (uint64, string) {
	stepStart := time.Now()
	nowTick := w.tick.Load()
	w.inserted = w.inserted[:0]

	// Apply leaves and joins deterministically at tick boundary.
	recordedLeaves := make([]string, 0, len(leaves))
	for _, id := range leaves {
		a, ok := w.agents[id]
		if !ok {
			continue
		}
		a.State = AgentRemoved
		delete(w.agents, id)
		w.rejectWaiters(nowTick, id, protocol.ErrUnknownAgent)
		recordedLeaves = append(recordedLeaves, id)
	}
	recordedJoins := make([]RecordedJoin, 0, len(joins))
	for _, req := range joins {
		id := w.AddAgent(req.Spec)
		if req.Resp != nil {
			req.Resp <- JoinResponse{AgentID: id}
		}
		rj := RecordedJoin{
			AgentID: id,
			Name:    w.agents[id].Name,
			Profile: req.Spec.Profile,
			FloorID: req.Spec.FloorID,
			Pos:     req.Spec.Pos.Array(),
			Tags:    req.Spec.Tags,
		}
		if t := req.Spec.Target; t != nil {
			rj.Target = &RecordedTarget{FloorID: t.FloorID, Centroid: t.Centroid.Array()}
		}
		recordedJoins = append(recordedJoins, rj)
	}

	// Requests apply in receive order; a later request for the same agent wins.
	recordedRequests := make([]RecordedRequest, 0, len(requests))
	for _, req := range requests {
		a := w.agents[req.AgentID]
		if a == nil {
			if req.Resp != nil {
				sendResult(req.Resp, PathResult{Tick: nowTick, AgentID: req.AgentID, Err: protocol.ErrUnknownAgent})
			}
			continue
		}
		if req.FloorID != nil {
			a.FloorID = *req.FloorID
		}
		if req.Pos != nil {
			a.Pos = *req.Pos
		}
		a.HasTarget = true
		a.Target = req.Target
		a.State = AgentFindPath
		if req.Resp != nil {
			w.waiters[a.ID] = append(w.waiters[a.ID], req.Resp)
		}
		rr := RecordedRequest{
			AgentID:     a.ID,
			TargetFloor: req.Target.FloorID,
			Target:      req.Target.Centroid.Array(),
		}
		if req.FloorID != nil {
			f := *req.FloorID
			rr.FloorID = &f
		}
		if req.Pos != nil {
			p := req.Pos.Array()
			rr.Pos = &p
		}
		recordedRequests = append(recordedRequests, rr)
	}

	rep := w.systemPathfinding(nowTick)

	recordedOutcomes := make([]RecordedOutcome, 0, len(rep.Outcomes))
	for _, o := range rep.Outcomes {
		recordedOutcomes = append(recordedOutcomes, RecordedOutcome{
			AgentID:   o.AgentID,
			Status:    o.Status.String(),
			CacheHit:  o.CacheHit,
			Waypoints: o.Waypoints,
		})
		w.notifyWaiters(nowTick, o)
	}

	if w.pathLogger != nil {
		for _, e := range w.inserted {
			if err := w.pathLogger.WritePath(PathLogEntry{Tick: nowTick, Entry: e}); err != nil {
				w.logf("path log: %v", err)
			}
		}
	}

	digest := w.stateDigest(nowTick)
	if w.tickLogger != nil {
		if err := w.tickLogger.WriteTick(TickLogEntry{
			Tick:     nowTick,
			Joins:    recordedJoins,
			Leaves:   recordedLeaves,
			Requests: recordedRequests,
			Outcomes: recordedOutcomes,
			Digest:   digest,
		}); err != nil {
			w.logf("tick log: %v", err)
		}
	}

	// Snapshot every N ticks, starting after tick 0.
	if w.snapshotSink != nil && nowTick != 0 && w.cfg.SnapshotEveryTicks > 0 {
		if nowTick%uint64(w.cfg.SnapshotEveryTicks) == 0 {
			snap := w.ExportSnapshot(nowTick)
			select {
			case w.snapshotSink <- snap:
			default:
				// Drop snapshot if sink is backed up.
			}
		}
	}

	elapsed := time.Since(stepStart)
	stepMS := float64(elapsed.Microseconds()) / 1000.0
	nextTick := w.tick.Add(1)
	cacheEntries := w.engine.Cache().Len()

	w.broadcastTick(protocol.TickMsg{
		Type:            protocol.TypeTick,
		ProtocolVersion: protocol.Version,
		WorldID:         w.cfg.ID,
		Tick:            nowTick,
		Agents:          len(w.agents),
		Requests:        len(rep.Outcomes),
		Found:           rep.Found,
		NoDestination:   rep.NoDestination,
		NoPath:          rep.NoPath,
		CacheHits:       rep.CacheHits,
		Solves:          rep.Solves,
		CacheEntries:    cacheEntries,
		StepMS:          stepMS,
		Digest:          digest,
	})

	if w.recorder != nil {
		w.recorder.RecordTick(context.Background(), TickStats{
			Tick:          nowTick,
			Duration:      elapsed,
			Requests:      len(rep.Outcomes),
			Lookups:       rep.Lookups,
			Found:         rep.Found,
			NoDestination: rep.NoDestination,
			NoPath:        rep.NoPath,
			CacheHits:     rep.CacheHits,
			Solves:        rep.Solves,
			CacheEntries:  cacheEntries,
		})
	}

	w.metrics.Store(WorldMetrics{
		Tick:         nextTick,
		Agents:       len(w.agents),
		Observers:    len(w.observers),
		CacheEntries: cacheEntries,
		QueueDepths: QueueDepths{
			Join:     len(w.join),
			Requests: len(w.requests),
			Leave:    len(w.leave),
		},
		StepMS: stepMS,
		LastTick: TickCounts{
			Requests:      len(rep.Outcomes),
			Found:         rep.Found,
			NoDestination: rep.NoDestination,
			NoPath:        rep.NoPath,
			CacheHits:     rep.CacheHits,
			Solves:        rep.Solves,
		},
		Engine: w.engine.Stats(),
	})
	return nowTick, digest
}

func (w *World) notifyWaiters(nowTick uint64, o Outcome) {
	chs := w.waiters[o.AgentID]
	if len(chs) == 0 {
		return
	}
	delete(w.waiters, o.AgentID)
	res := PathResult{Tick: nowTick, AgentID: o.AgentID, Status: o.Status, CacheHit: o.CacheHit}
	if a := w.agents[o.AgentID]; a != nil && o.Status == pathfind.StatusFound {
		res.Waypoints = append([]pathfind.Waypoint(nil), a.Path...)
	}
	for _, ch := range chs {
		sendResult(ch, res)
	}
}

func (w *World) rejectWaiters(nowTick uint64, agentID, code string) {
	for _, ch := range w.waiters[agentID] {
		sendResult(ch, PathResult{Tick: nowTick, AgentID: agentID, Err: code})
	}
	delete(w.waiters, agentID)
}

func sendResult(ch chan PathResult, r PathResult) {
	select {
	case ch <- r:
	default:
	}
}

func (w *World) broadcastTick(msg protocol.TickMsg) {
	if len(w.observers) == 0 {
		return
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	for _, out := range w.observers {
		sendLatest(out, b)
	}
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

// stateDigest hashes the replay-relevant state: agents in id order and the
// cache size.
func (w *World) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var buf [8]byte
	putU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = h.Write(buf[:])
	}
	putF32 := func(f float32) {
		binary.LittleEndian.PutUint32(buf[:4], math.Float32bits(f))
		_, _ = h.Write(buf[:4])
	}

	putU64(nowTick)
	for _, id := range w.sortedAgentIDs() {
		a := w.agents[id]
		_, _ = h.Write([]byte(id))
		putU64(uint64(a.State))
		putU64(uint64(int64(a.FloorID)))
		putF32(a.Pos.X)
		putF32(a.Pos.Y)
		putF32(a.Pos.Z)
		putU64(uint64(len(a.Path)))
		for _, wp := range a.Path {
			putU64(uint64(int64(wp.ID)))
		}
	}
	putU64(uint64(w.engine.Cache().Len()))
	return hex.EncodeToString(h.Sum(nil))
}
