package main

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"wayfinder.ai/internal/persistence/indexdb"
	"wayfinder.ai/internal/persistence/snapshot"
	"wayfinder.ai/internal/sim/floorgraph"
	"wayfinder.ai/internal/sim/pathfind"
	"wayfinder.ai/internal/sim/world"
)

func seedIndex(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index", "world.sqlite")
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := idx.UpsertConfig("tuning", map[string]int{"tick_rate_hz": 5}); err != nil {
		t.Fatalf("UpsertConfig: %v", err)
	}
	_ = idx.WriteTick(world.TickLogEntry{
		Tick:   1,
		Digest: "d1",
		Outcomes: []world.RecordedOutcome{
			{AgentID: "A1", Status: "FOUND", Waypoints: 5},
			{AgentID: "A2", Status: "NO_PATH"},
		},
	})
	_ = idx.WriteTick(world.TickLogEntry{
		Tick:     2,
		Digest:   "d2",
		Outcomes: []world.RecordedOutcome{{AgentID: "A1", Status: "FOUND", CacheHit: true, Waypoints: 5}},
	})
	for i, floor := range []int{0, 0, 1} {
		_ = idx.WritePath(world.PathLogEntry{Tick: 1, Entry: pathfind.Entry{
			Seq:       uint64(i + 1),
			FloorID:   floor,
			Start:     floorgraph.V(0, 0, 0),
			End:       floorgraph.V(float32(i), 0, 0),
			Waypoints: []pathfind.Waypoint{{ID: 0}, {ID: 1}},
		}})
	}
	idx.RecordSnapshot("/data/snapshots/2.snap.zst", snapshot.SnapshotV1{
		Header: snapshot.Header{Version: snapshot.Version, Tick: 2, RunID: "run"},
		Seed:   3,
	})
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return path
}

func lines(t *testing.T, db *sql.DB, q dbQuery) []map[string]any {
	t.Helper()
	var buf bytes.Buffer
	if err := runQuery(db, q, &buf); err != nil {
		t.Fatalf("runQuery(%s): %v", q.Name, err)
	}
	var out []map[string]any
	for _, l := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if l == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(l), &m); err != nil {
			t.Fatalf("decode %q: %v", l, err)
		}
		out = append(out, m)
	}
	return out
}

func TestRunQuery(t *testing.T) {
	db, err := sql.Open("sqlite", seedIndex(t))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if got := lines(t, db, dbQuery{Name: "ticks"}); len(got) != 2 || got[0]["digest"] != "d2" {
		t.Fatalf("ticks = %v", got)
	}
	if got := lines(t, db, dbQuery{Name: "outcomes", Status: "NO_PATH"}); len(got) != 1 || got[0]["agent_id"] != "A2" {
		t.Fatalf("outcomes = %v", got)
	}
	if got := lines(t, db, dbQuery{Name: "outcomes", Limit: 1}); len(got) != 1 || got[0]["cache_hit"] != true {
		t.Fatalf("latest outcome = %v", got)
	}
	if got := lines(t, db, dbQuery{Name: "paths", Floor: 1}); len(got) != 1 || got[0]["floor_id"] != float64(1) {
		t.Fatalf("floor 1 paths = %v", got)
	}
	floors := lines(t, db, dbQuery{Name: "floors"})
	if len(floors) != 2 || floors[0]["paths"] != float64(2) || floors[1]["paths"] != float64(1) {
		t.Fatalf("floors = %v", floors)
	}
	if got := lines(t, db, dbQuery{Name: "snapshots"}); len(got) != 1 || got[0]["run_id"] != "run" {
		t.Fatalf("snapshots = %v", got)
	}
	if got := lines(t, db, dbQuery{Name: "configs"}); len(got) != 1 || got[0]["name"] != "tuning" {
		t.Fatalf("configs = %v", got)
	}
	if err := runQuery(db, dbQuery{Name: "trades"}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected unknown query error")
	}
}

func TestWritePaths_Filters(t *testing.T) {
	snap := snapshot.SnapshotV1{Paths: []snapshot.PathV1{
		{FloorID: 0, Waypoints: []snapshot.WaypointV1{{ID: 0}, {ID: 1}}},
		{FloorID: 0, Waypoints: []snapshot.WaypointV1{{ID: 3}, {ID: 4}}, Tags: []string{"maintenance", "staff"}},
		{FloorID: 1, Waypoints: []snapshot.WaypointV1{{ID: 100}, {ID: 101}}},
	}}

	var buf bytes.Buffer
	if n := writePaths(&buf, snap, -1, ""); n != 3 {
		t.Fatalf("unfiltered = %d", n)
	}
	buf.Reset()
	if n := writePaths(&buf, snap, 0, "staff"); n != 1 {
		t.Fatalf("floor 0 + staff = %d", n)
	}
	var row pathRow
	if err := json.Unmarshal(buf.Bytes(), &row); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if row.Index != 1 || len(row.Nodes) != 2 || row.Nodes[0] != 3 {
		t.Fatalf("row = %+v", row)
	}
	if n := writePaths(&bytes.Buffer{}, snap, 1, "staff"); n != 0 {
		t.Fatalf("floor 1 + staff = %d", n)
	}
}
