package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"wayfinder.ai/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "paths":
			pathsCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "bootstrap":
			bootstrapCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "worlds")
	if *worldID != "" {
		base = filepath.Join(base, *worldID)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

// pathsCmd dumps the cached paths held by a snapshot.
func pathsCmd(args []string) {
	fs := flag.NewFlagSet("paths", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (used to find the latest snapshot)")
	snapPath := fs.String("snapshot", "", "snapshot path (optional; defaults to latest)")
	floor := fs.Int("floor", -1, "floor filter")
	tag := fs.String("tag", "", "only entries requiring this tag")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -snapshot")
			os.Exit(2)
		}
		path = latestSnapshot(filepath.Join(*dataDir, "worlds", *worldID))
		if path == "" {
			fmt.Fprintln(os.Stderr, "no snapshots found")
			os.Exit(2)
		}
	}

	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	n := writePaths(os.Stdout, snap, *floor, strings.TrimSpace(*tag))
	fmt.Fprintf(os.Stderr, "snapshot tick=%d paths=%d matched=%d\n", snap.Header.Tick, len(snap.Paths), n)
}

type pathRow struct {
	Index     int        `json:"index"`
	FloorID   int        `json:"floor_id"`
	Start     [3]float32 `json:"start"`
	End       [3]float32 `json:"end"`
	Nodes     []int      `json:"nodes"`
	Tags      []string   `json:"tags,omitempty"`
	SolvedFor []string   `json:"solved_for,omitempty"`
}

// writePaths prints matching entries in cache order and returns how many
// matched. floor < 0 and tag == "" disable the filters.
func writePaths(out io.Writer, snap snapshot.SnapshotV1, floor int, tag string) int {
	n := 0
	for i, p := range snap.Paths {
		if floor >= 0 && p.FloorID != floor {
			continue
		}
		if tag != "" && !containsTag(p.Tags, tag) {
			continue
		}
		row := pathRow{Index: i, FloorID: p.FloorID, Start: p.Start, End: p.End, Tags: p.Tags, SolvedFor: p.SolvedFor}
		for _, wp := range p.Waypoints {
			row.Nodes = append(row.Nodes, wp.ID)
		}
		printJSON(out, row)
		n++
	}
	return n
}

func containsTag(tags []string, tag string) bool {
	i := sort.SearchStrings(tags, tag)
	return i < len(tags) && tags[i] == tag
}

func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}
