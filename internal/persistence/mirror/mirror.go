package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"wayfinder.ai/internal/sim/pathfind"
	"wayfinder.ai/internal/sim/world"
)

type Stats struct {
	QueueDepth          int    `json:"queue_depth"`
	QueueCapacity       int    `json:"queue_capacity"`
	EnqueuedTotal       uint64 `json:"enqueued_total"`
	QueueSaturatedTotal uint64 `json:"queue_saturated_total"`
	DroppedTotal        uint64 `json:"dropped_total"`
	PushSuccessTotal    uint64 `json:"push_success_total"`
	PushFailTotal       uint64 `json:"push_fail_total"`
	LastSuccessUnix     int64  `json:"last_success_unix"`
	LastErrorUnix       int64  `json:"last_error_unix"`
}

// Mirror copies every newly cached path into Redis lists keyed
// <prefix>:<world>:floor:<id>:paths so that another process can warm its
// cache with Load. Pushes run on background workers, each owning a fixed
// subset of floors so that a floor's list keeps cache insertion order.
// WritePath never blocks the tick for longer than enqueueWait.
type Mirror struct {
	client  redis.Cmdable
	prefix  string
	worldID string
	logger  *log.Logger

	shards      []chan pathfind.Entry
	enqueueWait time.Duration
	wg          sync.WaitGroup

	enqueuedTotal       atomic.Uint64
	queueSaturatedTotal atomic.Uint64
	droppedTotal        atomic.Uint64
	pushSuccessTotal    atomic.Uint64
	pushFailTotal       atomic.Uint64
	lastSuccessUnix     atomic.Int64
	lastErrorUnix       atomic.Int64
}

type Config struct {
	Prefix        string
	WorldID       string
	Workers       int
	QueueCapacity int
	EnqueueWait   time.Duration
	Logger        *log.Logger
}

func New(client redis.Cmdable, cfg Config) *Mirror {
	if cfg.Prefix == "" {
		cfg.Prefix = "wayfinder"
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 4096
	}
	if cfg.EnqueueWait <= 0 {
		cfg.EnqueueWait = 25 * time.Millisecond
	}
	m := &Mirror{
		client:      client,
		prefix:      strings.Trim(cfg.Prefix, ":"),
		worldID:     cfg.WorldID,
		logger:      cfg.Logger,
		shards:      make([]chan pathfind.Entry, cfg.Workers),
		enqueueWait: cfg.EnqueueWait,
	}
	perShard := (cfg.QueueCapacity + cfg.Workers - 1) / cfg.Workers
	for i := range m.shards {
		jobs := make(chan pathfind.Entry, perShard)
		m.shards[i] = jobs
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			for e := range jobs {
				m.pushOne(e)
			}
		}()
	}
	return m
}

// shardFor maps a floor to its single push worker.
func (m *Mirror) shardFor(floorID int) chan pathfind.Entry {
	i := floorID % len(m.shards)
	if i < 0 {
		i += len(m.shards)
	}
	return m.shards[i]
}

// FloorKey is the Redis list holding the mirrored paths of one floor.
func FloorKey(prefix, worldID string, floorID int) string {
	return fmt.Sprintf("%s:%s:floor:%d:paths", prefix, worldID, floorID)
}

// WritePath implements world.PathLogger.
func (m *Mirror) WritePath(entry world.PathLogEntry) error {
	if m == nil || m.client == nil {
		return nil
	}
	m.enqueuedTotal.Add(1)
	jobs := m.shardFor(entry.Entry.FloorID)

	select {
	case jobs <- entry.Entry:
		return nil
	default:
	}

	m.queueSaturatedTotal.Add(1)
	timer := time.NewTimer(m.enqueueWait)
	defer timer.Stop()
	select {
	case jobs <- entry.Entry:
	case <-timer.C:
		dropped := m.droppedTotal.Add(1)
		m.printf("redis mirror drop floor=%d seq=%d reason=queue_saturated dropped_total=%d", entry.Entry.FloorID, entry.Entry.Seq, dropped)
	}
	return nil
}

func (m *Mirror) Close() {
	if m == nil {
		return
	}
	for _, jobs := range m.shards {
		close(jobs)
	}
	m.wg.Wait()
}

func (m *Mirror) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	var depth, capacity int
	for _, jobs := range m.shards {
		depth += len(jobs)
		capacity += cap(jobs)
	}
	return Stats{
		QueueDepth:          depth,
		QueueCapacity:       capacity,
		EnqueuedTotal:       m.enqueuedTotal.Load(),
		QueueSaturatedTotal: m.queueSaturatedTotal.Load(),
		DroppedTotal:        m.droppedTotal.Load(),
		PushSuccessTotal:    m.pushSuccessTotal.Load(),
		PushFailTotal:       m.pushFailTotal.Load(),
		LastSuccessUnix:     m.lastSuccessUnix.Load(),
		LastErrorUnix:       m.lastErrorUnix.Load(),
	}
}

func (m *Mirror) pushOne(e pathfind.Entry) {
	data, err := json.Marshal(e)
	if err != nil {
		m.printf("redis mirror skip seq=%d err=%v", e.Seq, err)
		return
	}
	key := FloorKey(m.prefix, m.worldID, e.FloorID)
	if err := m.pushWithRetry(key, data); err != nil {
		m.pushFailTotal.Add(1)
		m.lastErrorUnix.Store(time.Now().UTC().Unix())
		m.printf("redis mirror push failed key=%s err=%v", key, err)
		return
	}
	m.pushSuccessTotal.Add(1)
	m.lastSuccessUnix.Store(time.Now().UTC().Unix())
}

func (m *Mirror) pushWithRetry(key string, data []byte) error {
	const maxAttempts = 4
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := m.client.RPush(ctx, key, data).Err()
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < maxAttempts {
			time.Sleep(time.Duration(attempt*attempt) * 50 * time.Millisecond)
		}
	}
	return lastErr
}

func (m *Mirror) printf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}

// Load reads every mirrored path of a world back, floors in ascending id
// order and each floor in push order, which is the order the entries were
// cached in.
func Load(ctx context.Context, client redis.Cmdable, prefix, worldID string) ([]pathfind.Entry, error) {
	if prefix == "" {
		prefix = "wayfinder"
	}
	prefix = strings.Trim(prefix, ":")
	pattern := fmt.Sprintf("%s:%s:floor:*:paths", prefix, worldID)

	floors := map[int]string{}
	var cursor uint64
	for {
		keys, next, err := client.Scan(ctx, cursor, pattern, 256).Result()
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", pattern, err)
		}
		for _, k := range keys {
			id, ok := floorFromKey(k, prefix, worldID)
			if ok {
				floors[id] = k
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	ids := make([]int, 0, len(floors))
	for id := range floors {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var out []pathfind.Entry
	for _, id := range ids {
		raw, err := client.LRange(ctx, floors[id], 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("lrange %s: %w", floors[id], err)
		}
		for i, s := range raw {
			var e pathfind.Entry
			if err := json.Unmarshal([]byte(s), &e); err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", floors[id], i, err)
			}
			out = append(out, e)
		}
	}
	return out, nil
}

func floorFromKey(key, prefix, worldID string) (int, bool) {
	head := prefix + ":" + worldID + ":floor:"
	if !strings.HasPrefix(key, head) || !strings.HasSuffix(key, ":paths") {
		return 0, false
	}
	mid := strings.TrimSuffix(strings.TrimPrefix(key, head), ":paths")
	id, err := strconv.Atoi(mid)
	if err != nil {
		return 0, false
	}
	return id, true
}
