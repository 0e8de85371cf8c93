package mirror

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wayfinder.ai/internal/sim/floorgraph"
	"wayfinder.ai/internal/sim/pathfind"
	"wayfinder.ai/internal/sim/world"
)

func setupTestClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := Dial(RedisOptions{URL: fmt.Sprintf("redis://%s", mr.Addr())})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func entry(seq uint64, floor int, endX float32) pathfind.Entry {
	return pathfind.Entry{
		Seq:     seq,
		FloorID: floor,
		Start:   floorgraph.V(0, 0, 0),
		End:     floorgraph.V(endX, 0, 0),
		Waypoints: []pathfind.Waypoint{
			{ID: 0, Pos: floorgraph.V(0, 0, 0)},
			{ID: 1, Pos: floorgraph.V(endX, 0, 0)},
		},
		Tags:      pathfind.NewTagSet("staff"),
		SolvedFor: pathfind.NewTagSet("staff"),
	}
}

func TestDial(t *testing.T) {
	t.Run("connection failure", func(t *testing.T) {
		_, err := Dial(RedisOptions{URL: "redis://localhost:1", ConnectTimeout: 100 * time.Millisecond})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to connect to Redis")
	})
	t.Run("invalid URL", func(t *testing.T) {
		_, err := Dial(RedisOptions{URL: "invalid://url"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse Redis URL")
	})
}

func TestMirror_PushesPerFloorLists(t *testing.T) {
	client, mr := setupTestClient(t)
	m := New(client, Config{Prefix: "wf", WorldID: "b1", Workers: 1})

	require.NoError(t, m.WritePath(world.PathLogEntry{Tick: 1, Entry: entry(1, 0, 2)}))
	require.NoError(t, m.WritePath(world.PathLogEntry{Tick: 1, Entry: entry(2, 0, 3)}))
	require.NoError(t, m.WritePath(world.PathLogEntry{Tick: 2, Entry: entry(3, 4, 5)}))
	m.Close()

	floor0, err := mr.List("wf:b1:floor:0:paths")
	require.NoError(t, err)
	assert.Len(t, floor0, 2)
	floor4, err := mr.List("wf:b1:floor:4:paths")
	require.NoError(t, err)
	assert.Len(t, floor4, 1)

	st := m.Stats()
	assert.Equal(t, uint64(3), st.EnqueuedTotal)
	assert.Equal(t, uint64(3), st.PushSuccessTotal)
	assert.Zero(t, st.DroppedTotal)
}

func TestLoad_ReturnsFloorsInOrder(t *testing.T) {
	client, _ := setupTestClient(t)
	m := New(client, Config{Prefix: "wf", WorldID: "b1", Workers: 1})
	for _, e := range []pathfind.Entry{entry(1, 2, 1), entry(2, 0, 2), entry(3, 2, 3), entry(4, 10, 4)} {
		require.NoError(t, m.WritePath(world.PathLogEntry{Entry: e}))
	}
	m.Close()

	// Another world's keys are ignored.
	other := New(client, Config{Prefix: "wf", WorldID: "b2"})
	require.NoError(t, other.WritePath(world.PathLogEntry{Entry: entry(9, 0, 9)}))
	other.Close()

	got, err := Load(context.Background(), client, "wf", "b1")
	require.NoError(t, err)
	require.Len(t, got, 4)
	floors := []int{got[0].FloorID, got[1].FloorID, got[2].FloorID, got[3].FloorID}
	assert.Equal(t, []int{0, 2, 2, 10}, floors)
	assert.Equal(t, floorgraph.V(1, 0, 0), got[1].End)
	assert.Equal(t, floorgraph.V(3, 0, 0), got[2].End)
	assert.Equal(t, pathfind.NewTagSet("staff"), got[0].Tags)
}

func TestLoad_WarmsCache(t *testing.T) {
	client, _ := setupTestClient(t)
	m := New(client, Config{WorldID: "b1"})
	require.NoError(t, m.WritePath(world.PathLogEntry{Entry: entry(1, 0, 2)}))
	m.Close()

	entries, err := Load(context.Background(), client, "", "b1")
	require.NoError(t, err)

	cache := pathfind.NewCache()
	cache.Restore(entries)
	hit, ok := cache.Lookup(0, floorgraph.V(0, 0, 0), floorgraph.V(2, 0, 0), []string{"staff"})
	require.True(t, ok)
	assert.Len(t, hit.Waypoints, 2)
}

func TestLoad_RejectsCorruptEntry(t *testing.T) {
	client, mr := setupTestClient(t)
	_, err := mr.Push(FloorKey("wf", "b1", 0), "{not json")
	require.NoError(t, err)

	_, err = Load(context.Background(), client, "wf", "b1")
	require.Error(t, err)
}

func TestMirror_NilIsNoop(t *testing.T) {
	var m *Mirror
	assert.NoError(t, m.WritePath(world.PathLogEntry{}))
	assert.Equal(t, Stats{}, m.Stats())
	m.Close()
}

func TestLoad_KeepsInsertionOrderWithManyWorkers(t *testing.T) {
	client, _ := setupTestClient(t)
	m := New(client, Config{Prefix: "wf", WorldID: "b1", Workers: 2, QueueCapacity: 4096, EnqueueWait: time.Second})
	const n = 2000
	for i := 0; i < n; i++ {
		require.NoError(t, m.WritePath(world.PathLogEntry{Entry: entry(uint64(i+1), i%3, float32(i))}))
	}
	m.Close()
	require.Zero(t, m.Stats().DroppedTotal)

	got, err := Load(context.Background(), client, "wf", "b1")
	require.NoError(t, err)
	require.Len(t, got, n)

	last := map[int]uint64{}
	prevFloor := 0
	for i, e := range got {
		require.GreaterOrEqual(t, e.FloorID, prevFloor, "entry %d: floors out of order", i)
		prevFloor = e.FloorID
		require.Greater(t, e.Seq, last[e.FloorID], "entry %d on floor %d: insertion order lost", i, e.FloorID)
		last[e.FloorID] = e.Seq
	}
}

func TestLoad_SameKeyFirstMatchSurvivesWarmStart(t *testing.T) {
	client, _ := setupTestClient(t)
	m := New(client, Config{Prefix: "wf", WorldID: "b1", Workers: 4})
	for i := 0; i < 200; i++ {
		e := entry(uint64(i+1), 0, 2)
		e.Waypoints[0].ID = i
		e.Tags = pathfind.NewTagSet("staff", fmt.Sprintf("t%d", i))
		require.NoError(t, m.WritePath(world.PathLogEntry{Entry: e}))
	}
	m.Close()

	entries, err := Load(context.Background(), client, "wf", "b1")
	require.NoError(t, err)
	cache := pathfind.NewCache()
	cache.Restore(entries)

	hit, ok := cache.Lookup(0, floorgraph.V(0, 0, 0), floorgraph.V(2, 0, 0), []string{"staff"})
	require.True(t, ok)
	assert.Equal(t, 0, hit.Waypoints[0].ID, "the earliest cached entry must win")
}
