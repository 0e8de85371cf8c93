package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"wayfinder.ai/internal/sim/building"
	"wayfinder.ai/internal/sim/world"
)

func TestLatestSnapshot(t *testing.T) {
	dir := t.TempDir()
	if got := latestSnapshot(dir); got != "" {
		t.Fatalf("empty dir: got %q", got)
	}
	snapDir := filepath.Join(dir, "snapshots")
	if err := os.MkdirAll(snapDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"900.snap.zst", "3000.snap.zst", "notes.txt", "abc.snap.zst"} {
		if err := os.WriteFile(filepath.Join(snapDir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if got, want := latestSnapshot(dir), filepath.Join(snapDir, "3000.snap.zst"); got != want {
		t.Fatalf("latest = %q, want %q", got, want)
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("WF_TEST_INT", "12")
	t.Setenv("WF_TEST_BAD_INT", "-3")
	t.Setenv("WF_TEST_BOOL", "true")
	if got := envInt("WF_TEST_INT", 2); got != 12 {
		t.Fatalf("envInt = %d", got)
	}
	if got := envInt("WF_TEST_BAD_INT", 2); got != 2 {
		t.Fatalf("envInt(non-positive) = %d", got)
	}
	if !envBool("WF_TEST_BOOL", false) || envBool("WF_TEST_UNSET", false) {
		t.Fatalf("envBool mismatch")
	}
}

func TestOpenRuntimeIndex(t *testing.T) {
	dir := t.TempDir()
	idx, err := openRuntimeIndex(dir, true)
	if err != nil || idx != nil {
		t.Fatalf("disabled: idx=%v err=%v", idx, err)
	}

	t.Setenv("WF_INDEX_BACKEND", "none")
	idx, err = openRuntimeIndex(dir, false)
	if err != nil || idx != nil {
		t.Fatalf("none: idx=%v err=%v", idx, err)
	}

	t.Setenv("WF_INDEX_BACKEND", "d1")
	if _, err := openRuntimeIndex(dir, false); err == nil {
		t.Fatalf("expected unsupported backend error")
	}

	t.Setenv("WF_INDEX_BACKEND", "sqlite")
	idx, err = openRuntimeIndex(dir, false)
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	defer idx.Close()
	if _, err := os.Stat(filepath.Join(dir, "index", "world.sqlite")); err != nil {
		t.Fatalf("sqlite file: %v", err)
	}
}

func TestRedisMirrorRuntime_Disabled(t *testing.T) {
	t.Setenv("WF_REDIS_MIRROR", "false")
	r, err := buildRedisMirrorRuntime("building_1", nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if r.enabled {
		t.Fatalf("expected disabled mirror")
	}
	n, err := r.WarmStart(t.Context(), nil)
	if err != nil || n != 0 {
		t.Fatalf("warm start: n=%d err=%v", n, err)
	}
	r.Close()
}

func TestDebugStateHandler(t *testing.T) {
	bld, err := building.Load("")
	if err != nil {
		t.Fatalf("building: %v", err)
	}
	floors, err := bld.Graphs()
	if err != nil {
		t.Fatalf("graphs: %v", err)
	}
	w, err := world.New(world.WorldConfig{ID: bld.ID}, floors, bld.WorldExits())
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	for _, spec := range bld.AgentSpecs() {
		w.AddAgent(spec)
	}
	w.StepOnce(nil, nil, nil)

	rr := httptest.NewRecorder()
	debugStateHandler(w, nil, nil)(rr, httptest.NewRequest(http.MethodGet, "/debug/state", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp debugState
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.WorldID != bld.ID || resp.Tick != 1 || resp.Metrics.Agents != len(bld.Agents) {
		t.Fatalf("state = %+v", resp)
	}
	if resp.Index != nil || resp.Mirror != nil {
		t.Fatalf("expected no backend stats: %+v", resp)
	}
}
