package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wayfinder.ai/internal/observe"
	persistlog "wayfinder.ai/internal/persistence/log"
	"wayfinder.ai/internal/persistence/snapshot"
	"wayfinder.ai/internal/sim/building"
	"wayfinder.ai/internal/sim/tuning"
	"wayfinder.ai/internal/sim/world"
	"wayfinder.ai/internal/transport/observer"
	"wayfinder.ai/internal/transport/ws"
)

func main() {
	var (
		addr         = flag.String("addr", ":8080", "http listen address")
		worldID      = flag.String("world", "", "world id (default: building id)")
		seed         = flag.Int64("seed", 0, "world seed override (used only when starting a fresh world)")
		configDir    = flag.String("configs", "./configs", "config directory")
		dataDir      = flag.String("data", "./data", "runtime data directory")
		tuningPath   = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		buildingPath = flag.String("building", "", "path to building.yaml (default: <configs>/building.yaml)")
		disableDB    = flag.Bool("disable_db", false, "disable the sqlite index (ticks, paths, snapshot metadata)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	bp := strings.TrimSpace(*buildingPath)
	if bp == "" {
		bp = filepath.Join(*configDir, "building.yaml")
		if _, err := os.Stat(bp); err != nil {
			bp = ""
		}
	}

	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	bld, err := building.Load(bp)
	if err != nil {
		logger.Fatalf("load building: %v", err)
	}
	if bp == "" {
		logger.Printf("building config not found; using demo building")
	}

	id := strings.TrimSpace(*worldID)
	if id == "" {
		id = bld.ID
	}
	worldDir := filepath.Join(*dataDir, "worlds", id)
	_ = os.MkdirAll(worldDir, 0o755)

	floors, err := bld.Graphs()
	if err != nil {
		logger.Fatalf("building graphs: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: tune.ProtocolVersion})
	if err != nil {
		logger.Fatalf("metrics provider: %v", err)
	}
	defer func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = shutdownMetrics(ctx2)
	}()
	metrics := observe.DefaultMetrics()

	// Optional: read-model index backend (does not affect sim determinism).
	idx, err := openRuntimeIndex(worldDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertConfig("tuning", tune); err != nil {
			logger.Printf("index backend: upsert tuning: %v", err)
		}
		if err := idx.UpsertConfig("building", bld); err != nil {
			logger.Printf("index backend: upsert building: %v", err)
		}
	}

	redisMirror, err := buildRedisMirrorRuntime(id, logger)
	if err != nil {
		logger.Fatalf("init redis mirror: %v", err)
	}
	defer redisMirror.Close()

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(worldDir)
	}

	cfg := world.WorldConfig{
		ID:                 id,
		TickRateHz:         tune.TickRateHz,
		Seed:               tune.Seed,
		Workers:            tune.Workers,
		SnapshotEveryTicks: tune.SnapshotEveryTicks,
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}

	var snap *snapshot.SnapshotV1
	if snapshotToLoad != "" {
		s, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if s.Header.WorldID != "" && s.Header.WorldID != id {
			logger.Fatalf("snapshot world id mismatch: world=%s snap=%s", id, s.Header.WorldID)
		}
		cfg.TickRateHz = s.TickRate
		cfg.Seed = s.Seed
		cfg.Workers = s.Workers
		cfg.SnapshotEveryTicks = s.SnapshotEveryTicks
		snap = &s
	}

	w, err := world.New(cfg, floors, bld.WorldExits())
	if err != nil {
		logger.Fatalf("world: %v", err)
	}
	w.SetLogger(logger)
	w.SetRunID(uuid.NewString())
	w.SetTickRecorder(metrics)

	switch {
	case snap != nil:
		if err := w.ImportSnapshot(*snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d paths=%d", filepath.Base(snapshotToLoad), w.CurrentTick(), w.Cache().Len())
	default:
		for _, spec := range bld.AgentSpecs() {
			w.AddAgent(spec)
		}
		if n, err := redisMirror.WarmStart(ctx, w); err != nil {
			logger.Printf("redis warm start: %v", err)
		} else if n > 0 {
			logger.Printf("redis warm start: restored %d paths", n)
		}
	}

	tickLog := persistlog.NewTickLogger(worldDir)
	pathLog := persistlog.NewPathLogger(worldDir)
	defer tickLog.Close()
	defer pathLog.Close()

	tickSinks := persistlog.MultiTickLogger{tickLog}
	pathSinks := persistlog.MultiPathLogger{pathLog}
	if idx != nil {
		tickSinks = append(tickSinks, idx)
		pathSinks = append(pathSinks, idx)
	}
	if redisMirror.enabled {
		pathSinks = append(pathSinks, redisMirror.mirror)
	}
	w.SetTickLogger(tickSinks)
	w.SetPathLogger(pathSinks)

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-snapCh:
				path := filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.snap.zst", s.Header.Tick))
				if err := snapshot.WriteSnapshot(path, s); err != nil {
					logger.Printf("snapshot write: %v", err)
					continue
				}
				if idx != nil {
					idx.RecordSnapshot(path, s)
				}
			}
		}
	}()

	go func() {
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	instrument := observe.Middleware(metrics)
	mux := http.NewServeMux()
	mux.Handle("/healthz", instrument(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})))
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/debug/state", instrument(debugStateHandler(w, idx, redisMirror)))

	obsSrv := observer.NewServer(w, logger, metrics)
	mux.Handle("/v1/observer/bootstrap", instrument(obsSrv.BootstrapHandler()))
	mux.HandleFunc("/v1/observer", obsSrv.WSHandler())
	mux.HandleFunc("/v1/ws", ws.NewServer(w, logger, ws.Options{
		MaxPending: tune.MaxPendingRequests,
		SendQueue:  tune.SendQueue,
		Metrics:    metrics,
	}).Handler())

	if envBool("WF_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (WF_ENABLE_PPROF_HTTP=false)")
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s world=%s floors=%v", *addr, id, floors.IDs())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

type debugState struct {
	WorldID string             `json:"world_id"`
	Tick    uint64             `json:"tick"`
	Metrics world.WorldMetrics `json:"metrics"`
	Index   any                `json:"index,omitempty"`
	Mirror  any                `json:"redis_mirror,omitempty"`
}

func debugStateHandler(w *world.World, idx runtimeIndex, m *redisMirrorRuntime) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		resp := debugState{
			WorldID: w.Config().ID,
			Tick:    w.CurrentTick(),
			Metrics: w.Metrics(),
		}
		if idx != nil {
			resp.Index = idx.Stats()
		}
		if m != nil && m.enabled {
			resp.Mirror = m.mirror.Stats()
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
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

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
