package indexdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"wayfinder.ai/internal/persistence/snapshot"
	"wayfinder.ai/internal/sim/floorgraph"
	"wayfinder.ai/internal/sim/pathfind"
	"wayfinder.ai/internal/sim/world"
)

func TestSQLiteIndex_WritesTicksOutcomesPathsSnapshots(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index", "world.sqlite")

	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := idx.UpsertConfig("tuning", map[string]int{"tick_rate_hz": 5}); err != nil {
		t.Fatalf("UpsertConfig: %v", err)
	}
	_ = idx.WriteTick(world.TickLogEntry{
		Tick:   4,
		Digest: "abc",
		Joins:  []world.RecordedJoin{{AgentID: "A1", Name: "bot"}},
		Requests: []world.RecordedRequest{
			{AgentID: "A1", TargetFloor: 0},
		},
		Outcomes: []world.RecordedOutcome{
			{AgentID: "A1", Status: "FOUND", CacheHit: true, Waypoints: 4},
			{AgentID: "A2", Status: "NO_PATH"},
		},
	})
	for seq := uint64(1); seq <= 2; seq++ {
		_ = idx.WritePath(world.PathLogEntry{Tick: 4, Entry: pathfind.Entry{
			Seq:       seq,
			FloorID:   3,
			Start:     floorgraph.V(0, 0, 0),
			End:       floorgraph.V(2, 0, 0),
			Waypoints: []pathfind.Waypoint{{ID: 0}, {ID: 1}, {ID: 2}},
			Tags:      pathfind.NewTagSet("staff", "secure"),
		}})
	}
	idx.RecordSnapshot("/abs/snapshots/4.snap.zst", snapshot.SnapshotV1{
		Header:    snapshot.Header{Version: snapshot.Version, WorldID: "b1", Tick: 4, RunID: "run-1"},
		Seed:      42,
		RandDraws: 9,
		Agents:    []snapshot.AgentV1{{ID: "A1"}},
	})
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var (
		digest   string
		requests int
		outcomes int
	)
	if err := db.QueryRow(`SELECT digest,requests,outcomes FROM ticks WHERE tick=4`).Scan(&digest, &requests, &outcomes); err != nil {
		t.Fatalf("ticks: %v", err)
	}
	if digest != "abc" || requests != 1 || outcomes != 2 {
		t.Fatalf("tick row: digest=%q requests=%d outcomes=%d", digest, requests, outcomes)
	}

	var hits int
	if err := db.QueryRow(`SELECT COUNT(*) FROM outcomes WHERE status='FOUND' AND cache_hit=1`).Scan(&hits); err != nil {
		t.Fatalf("outcomes: %v", err)
	}
	if hits != 1 {
		t.Fatalf("cache hit outcomes = %d", hits)
	}

	var (
		tags      string
		waypoints int
	)
	if err := db.QueryRow(`SELECT tags,waypoints FROM paths WHERE seq=2`).Scan(&tags, &waypoints); err != nil {
		t.Fatalf("paths: %v", err)
	}
	if tags != "secure,staff" || waypoints != 3 {
		t.Fatalf("path row: tags=%q waypoints=%d", tags, waypoints)
	}

	var (
		runID string
		draws int64
	)
	if err := db.QueryRow(`SELECT run_id,rand_draws FROM snapshots WHERE tick=4`).Scan(&runID, &draws); err != nil {
		t.Fatalf("snapshots: %v", err)
	}
	if runID != "run-1" || draws != 9 {
		t.Fatalf("snapshot row: run=%q draws=%d", runID, draws)
	}

	var cfgJSON string
	if err := db.QueryRow(`SELECT json FROM configs WHERE name='tuning'`).Scan(&cfgJSON); err != nil {
		t.Fatalf("configs: %v", err)
	}
	if cfgJSON != `{"tick_rate_hz":5}` {
		t.Fatalf("config json = %s", cfgJSON)
	}
}

func TestSQLiteIndex_FloorPathCounts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.sqlite")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	for i, floor := range []int{0, 0, 2} {
		_ = idx.WritePath(world.PathLogEntry{Tick: 1, Entry: pathfind.Entry{Seq: uint64(i + 1), FloorID: floor}})
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	idx, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx.Close()
	counts, err := idx.FloorPathCounts(context.Background())
	if err != nil {
		t.Fatalf("FloorPathCounts: %v", err)
	}
	if counts[0] != 2 || counts[2] != 1 {
		t.Fatalf("counts = %v", counts)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTick, tick: world.TickLogEntry{Tick: 1}}

	_ = s.WriteTick(world.TickLogEntry{Tick: 2})
	_ = s.WritePath(world.PathLogEntry{Tick: 2})
	s.RecordSnapshot("/tmp/2.snap.zst", snapshot.SnapshotV1{})

	st := s.Stats()
	if st.DropTickTotal != 1 || st.DropPathTotal != 1 || st.DropSnapshotTotal != 1 {
		t.Fatalf("drop stats = %+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_NilIsNoop(t *testing.T) {
	var s *SQLiteIndex
	if err := s.WriteTick(world.TickLogEntry{}); err != nil {
		t.Fatalf("WriteTick: %v", err)
	}
	s.RecordSnapshot("", snapshot.SnapshotV1{})
	if st := s.Stats(); st != (Stats{}) {
		t.Fatalf("stats = %+v", st)
	}
}
