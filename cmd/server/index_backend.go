package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"wayfinder.ai/internal/persistence/indexdb"
	"wayfinder.ai/internal/persistence/snapshot"
	"wayfinder.ai/internal/sim/world"
)

type runtimeIndex interface {
	world.TickLogger
	world.PathLogger
	Close() error
	UpsertConfig(name string, v any) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
	Stats() indexdb.Stats
}

func openRuntimeIndex(worldDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("WF_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(filepath.Join(worldDir, "index", "world.sqlite"))
	default:
		return nil, fmt.Errorf("unsupported WF_INDEX_BACKEND: %s", backend)
	}
}
