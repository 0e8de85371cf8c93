package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	persistlog "wayfinder.ai/internal/persistence/log"
	"wayfinder.ai/internal/persistence/snapshot"
	"wayfinder.ai/internal/sim/building"
	"wayfinder.ai/internal/sim/world"
)

func main() {
	var (
		snapPath     = flag.String("snapshot", "", "path to .snap.zst")
		eventsDir    = flag.String("events", "", "events dir containing events-*.jsonl.zst (optional)")
		buildingPath = flag.String("building", "./configs/building.yaml", "building config the snapshot was taken from")
		fromTick     = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick       = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	floorPaths := map[int]int{}
	for _, p := range snap.Paths {
		floorPaths[p.FloorID]++
	}
	fmt.Printf("snapshot v%d world=%s tick=%d seed=%d agents=%d paths=%d per_floor=%v rand_draws=%d\n",
		snap.Header.Version, snap.Header.WorldID, snap.Header.Tick, snap.Seed,
		len(snap.Agents), len(snap.Paths), floorPaths, snap.RandDraws)

	if *eventsDir == "" {
		return
	}

	bld, err := building.Load(*buildingPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load building:", err)
		os.Exit(1)
	}
	w, err := newWorld(bld, snap)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	files, err := persistlog.ListFiles(*eventsDir, "events")
	if err != nil {
		fmt.Fprintln(os.Stderr, "list events:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no events files found in", *eventsDir)
		os.Exit(1)
	}

	sum, err := replay(w, files, *fromTick, *toTick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d ticks (from snapshot tick=%d) outcomes=%v cache_hits=%d cache_entries=%d\n",
		sum.Checked, snap.Header.Tick, sum.Outcomes, sum.CacheHits, w.Cache().Len())
}

func newWorld(bld building.Config, snap snapshot.SnapshotV1) (*world.World, error) {
	floors, err := bld.Graphs()
	if err != nil {
		return nil, fmt.Errorf("building graphs: %w", err)
	}
	w, err := world.New(world.WorldConfig{
		ID:                 snap.Header.WorldID,
		TickRateHz:         snap.TickRate,
		Seed:               snap.Seed,
		Workers:            snap.Workers,
		SnapshotEveryTicks: snap.SnapshotEveryTicks,
	}, floors, bld.WorldExits())
	if err != nil {
		return nil, fmt.Errorf("world: %w", err)
	}
	if err := w.ImportSnapshot(snap); err != nil {
		return nil, fmt.Errorf("import snapshot: %w", err)
	}
	return w, nil
}

type summary struct {
	Checked   uint64
	Outcomes  map[string]int
	CacheHits int
}

var errStop = errors.New("stop")

// replay steps w through the logged ticks that follow its current tick and
// compares each state digest from verifyFrom on.
func replay(w *world.World, files []string, verifyFrom, toTick uint64) (summary, error) {
	sum := summary{Outcomes: map[string]int{}}
	startTick := w.CurrentTick()
	if verifyFrom == 0 {
		verifyFrom = startTick
	}

	for _, path := range files {
		err := persistlog.ReadJSONL(path, func(entry world.TickLogEntry) error {
			if entry.Tick < startTick {
				return nil
			}
			if toTick != 0 && entry.Tick > toTick {
				return errStop
			}
			if entry.Tick != w.CurrentTick() {
				return fmt.Errorf("tick mismatch: want=%d got=%d (file=%s)", w.CurrentTick(), entry.Tick, filepath.Base(path))
			}

			joins := make([]world.JoinRequest, 0, len(entry.Joins))
			for _, j := range entry.Joins {
				joins = append(joins, j.Request())
			}
			reqs := make([]world.PathRequest, 0, len(entry.Requests))
			for _, r := range entry.Requests {
				reqs = append(reqs, r.Request())
			}

			tick, gotDigest := w.StepOnce(joins, entry.Leaves, reqs)
			if tick != entry.Tick {
				return fmt.Errorf("internal tick mismatch: stepped=%d entry=%d (file=%s)", tick, entry.Tick, filepath.Base(path))
			}
			for _, o := range entry.Outcomes {
				sum.Outcomes[o.Status]++
				if o.CacheHit {
					sum.CacheHits++
				}
			}
			if tick >= verifyFrom {
				sum.Checked++
				if gotDigest != entry.Digest {
					return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", tick, gotDigest, entry.Digest)
				}
			}
			return nil
		})
		if errors.Is(err, errStop) {
			break
		}
		if err != nil {
			return sum, err
		}
	}
	return sum, nil
}
