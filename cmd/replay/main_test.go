package main

import (
	"path/filepath"
	"strings"
	"testing"

	persistlog "wayfinder.ai/internal/persistence/log"
	"wayfinder.ai/internal/sim/building"
	"wayfinder.ai/internal/sim/floorgraph"
	"wayfinder.ai/internal/sim/world"
)

// recordRun steps a demo-building world, snapshots it after the first tick
// and logs the following ticks to dir/events.
func recordRun(t *testing.T, dir string) (building.Config, *world.World, []string) {
	t.Helper()
	bld, err := building.Load("")
	if err != nil {
		t.Fatalf("building: %v", err)
	}
	floors, err := bld.Graphs()
	if err != nil {
		t.Fatalf("graphs: %v", err)
	}
	w, err := world.New(world.WorldConfig{ID: bld.ID, Seed: 7}, floors, bld.WorldExits())
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	w.AddAgent(world.AgentSpec{Name: "a", FloorID: 0, Pos: floorgraph.V(0, 0, 0), Target: &world.Target{FloorID: 0, Centroid: floorgraph.V(8, 0, 0)}})
	w.StepOnce(nil, nil, nil)

	tl := persistlog.NewTickLogger(dir)
	w.SetTickLogger(tl)
	w.StepOnce([]world.JoinRequest{{Spec: world.AgentSpec{
		Name: "b", FloorID: 0, Pos: floorgraph.V(1, 0, 0), Tags: []string{"staff"},
		Target: &world.Target{FloorID: 1, Centroid: floorgraph.V(0, 3, 0)},
	}}}, nil, nil)
	w.StepOnce(nil, nil, []world.PathRequest{
		{AgentID: "A1", Target: world.Target{FloorID: 0, Centroid: floorgraph.V(4, 0, 4)}},
	})
	w.StepOnce(nil, []string{"A2"}, nil)
	if err := tl.Close(); err != nil {
		t.Fatalf("close log: %v", err)
	}

	files, err := persistlog.ListFiles(filepath.Join(dir, "events"), "events")
	if err != nil || len(files) == 0 {
		t.Fatalf("list events: %v (%d files)", err, len(files))
	}
	return bld, w, files
}

func TestReplay_VerifiesDigests(t *testing.T) {
	dir := t.TempDir()
	bld, src, files := recordRun(t, dir)

	// Rebuild the snapshot the recorded ticks start from.
	fresh, err := world.New(world.WorldConfig{ID: bld.ID, Seed: 7}, mustGraphs(t, bld), bld.WorldExits())
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	fresh.AddAgent(world.AgentSpec{Name: "a", FloorID: 0, Pos: floorgraph.V(0, 0, 0), Target: &world.Target{FloorID: 0, Centroid: floorgraph.V(8, 0, 0)}})
	fresh.StepOnce(nil, nil, nil)
	snap := fresh.ExportSnapshot(fresh.CurrentTick() - 1)

	w, err := newWorld(bld, snap)
	if err != nil {
		t.Fatalf("newWorld: %v", err)
	}
	sum, err := replay(w, files, 0, 0)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if sum.Checked != 3 {
		t.Fatalf("checked = %d, want 3", sum.Checked)
	}
	if sum.Outcomes["FOUND"] != 2 {
		t.Fatalf("outcomes = %v", sum.Outcomes)
	}
	if w.CurrentTick() != src.CurrentTick() || w.Cache().Len() != src.Cache().Len() {
		t.Fatalf("replayed tick=%d cache=%d, source tick=%d cache=%d",
			w.CurrentTick(), w.Cache().Len(), src.CurrentTick(), src.Cache().Len())
	}
}

func TestReplay_StopsAtToTick(t *testing.T) {
	dir := t.TempDir()
	bld, _, files := recordRun(t, dir)

	fresh, err := world.New(world.WorldConfig{ID: bld.ID, Seed: 7}, mustGraphs(t, bld), bld.WorldExits())
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	fresh.AddAgent(world.AgentSpec{Name: "a", FloorID: 0, Pos: floorgraph.V(0, 0, 0), Target: &world.Target{FloorID: 0, Centroid: floorgraph.V(8, 0, 0)}})
	fresh.StepOnce(nil, nil, nil)
	w, err := newWorld(bld, fresh.ExportSnapshot(0))
	if err != nil {
		t.Fatalf("newWorld: %v", err)
	}
	sum, err := replay(w, files, 0, 1)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if sum.Checked != 1 || w.CurrentTick() != 2 {
		t.Fatalf("checked=%d tick=%d", sum.Checked, w.CurrentTick())
	}
}

func TestReplay_DetectsDivergence(t *testing.T) {
	dir := t.TempDir()
	bld, _, files := recordRun(t, dir)

	// A different start position leaves a different agent state behind.
	other, err := world.New(world.WorldConfig{ID: bld.ID, Seed: 7}, mustGraphs(t, bld), bld.WorldExits())
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	other.AddAgent(world.AgentSpec{Name: "a", FloorID: 0, Pos: floorgraph.V(1, 0, 0), Target: &world.Target{FloorID: 0, Centroid: floorgraph.V(8, 0, 0)}})
	other.StepOnce(nil, nil, nil)
	w, err := newWorld(bld, other.ExportSnapshot(0))
	if err != nil {
		t.Fatalf("newWorld: %v", err)
	}
	_, err = replay(w, files, 0, 0)
	if err == nil || !strings.Contains(err.Error(), "digest mismatch") {
		t.Fatalf("expected digest mismatch, got %v", err)
	}
}

func mustGraphs(t *testing.T, bld building.Config) *floorgraph.Floors {
	t.Helper()
	floors, err := bld.Graphs()
	if err != nil {
		t.Fatalf("graphs: %v", err)
	}
	return floors
}
