package pathfind

import (
	"sync"

	"wayfinder.ai/internal/sim/floorgraph"
)

// SentinelID marks waypoints that are not graph nodes (an agent's exact
// position or exact destination).
const SentinelID = -1

type Waypoint struct {
	ID  int             `json:"id"`
	Pos floorgraph.Vec3 `json:"pos"`
}

// Entry is an immutable solved path. Tags is the set of access tags used while
// solving; SolvedFor is the distinct tag set of the query that produced it.
type Entry struct {
	Seq       uint64          `json:"seq"`
	FloorID   int             `json:"floor_id"`
	Start     floorgraph.Vec3 `json:"start"`
	End       floorgraph.Vec3 `json:"end"`
	Waypoints []Waypoint      `json:"waypoints"`
	Tags      TagSet          `json:"tags,omitempty"`
	SolvedFor TagSet          `json:"solved_for,omitempty"`
}

// ReusableBy reports whether an agent carrying required may reuse the entry:
// either the entry's tags cover every distinct required tag, or the entry was
// solved for exactly that tag set.
func (e *Entry) ReusableBy(required []string) bool {
	if e.Tags.Covers(required) {
		return true
	}
	return NewTagSet(required...).Equal(e.SolvedFor)
}

type cacheKey struct {
	floor int
	start [3]uint32
	end   [3]uint32
}

func keyOf(floorID int, start, end floorgraph.Vec3) cacheKey {
	return cacheKey{floor: floorID, start: start.Bits(), end: end.Bits()}
}

// Cache is an append-only store of solved paths keyed by floor and exact
// start/end positions. It has one writer at a time (the sequential solve
// phase) and any number of readers.
type Cache struct {
	mu      sync.RWMutex
	entries []*Entry
	byKey   map[cacheKey][]int
	nextSeq uint64
}

func NewCache() *Cache {
	return &Cache{byKey: map[cacheKey][]int{}}
}

// Lookup returns a copy of the first entry, in insertion order, matching the
// key whose tags make it reusable for required.
func (c *Cache) Lookup(floorID int, start, end floorgraph.Vec3, required []string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, i := range c.byKey[keyOf(floorID, start, end)] {
		if e := c.entries[i]; e.ReusableBy(required) {
			return e.clone(), true
		}
	}
	return Entry{}, false
}

// Insert appends a copy of e and returns a copy of the stored entry.
func (c *Cache) Insert(e Entry) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.insertLocked(e).clone()
}

func (e *Entry) clone() Entry {
	out := *e
	out.Waypoints = append([]Waypoint(nil), e.Waypoints...)
	out.Tags = e.Tags.Clone()
	out.SolvedFor = e.SolvedFor.Clone()
	return out
}

func (c *Cache) insertLocked(e Entry) *Entry {
	c.nextSeq++
	e.Seq = c.nextSeq
	e.Waypoints = append([]Waypoint(nil), e.Waypoints...)
	e.Tags = e.Tags.Clone()
	e.SolvedFor = e.SolvedFor.Clone()
	stored := &e
	k := keyOf(e.FloorID, e.Start, e.End)
	c.byKey[k] = append(c.byKey[k], len(c.entries))
	c.entries = append(c.entries, stored)
	return stored
}

// InsertPair stores both traversal directions of a solved path. endToStart is
// the reconstructed order; it is stored under (end, start) first, then reversed
// and stored under (start, end). Copies of both are returned, forward second.
func (c *Cache) InsertPair(floorID int, start, end floorgraph.Vec3, endToStart []Waypoint, tags, solvedFor TagSet) (reverse, forward Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rev := c.insertLocked(Entry{
		FloorID:   floorID,
		Start:     end,
		End:       start,
		Waypoints: endToStart,
		Tags:      tags,
		SolvedFor: solvedFor,
	})
	fwd := c.insertLocked(Entry{
		FloorID:   floorID,
		Start:     start,
		End:       end,
		Waypoints: Reversed(endToStart),
		Tags:      tags,
		SolvedFor: solvedFor,
	})
	return rev.clone(), fwd.clone()
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Entries returns copies of all entries in insertion order.
func (c *Cache) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.clone()
	}
	return out
}

// Restore appends previously exported entries (snapshot or mirror warm start),
// preserving their relative order. Sequence numbers are reassigned.
func (c *Cache) Restore(entries []Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		c.insertLocked(e)
	}
}

func Reversed(wps []Waypoint) []Waypoint {
	out := make([]Waypoint, len(wps))
	for i, wp := range wps {
		out[len(wps)-1-i] = wp
	}
	return out
}
