package cache

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/gogpu/ganim/internal/logging"
)

// DefaultBudget is the byte budget used when New is given a non-positive one.
const DefaultBudget int64 = 32 << 20

// ErrNoRoom is returned by Put when the frames pinned by the playback window
// leave no room for the new frame.
var ErrNoRoom = errors.New("cache: playback window leaves no room for frame")

// FrameCache is a byte-budgeted store of composited frames.
//
// FrameCache is safe for concurrent use.
// FrameCache must not be copied after creation (has mutex).
type FrameCache struct {
	mu      sync.Mutex
	entries map[int]*frameEntry
	lru     *lruList[int]
	window  map[int]struct{}
	size    int64
	budget  int64

	hits       atomic.Uint64
	misses     atomic.Uint64
	evictions  atomic.Uint64
	rejections atomic.Uint64
}

type frameEntry struct {
	bmp  *Bitmap
	node *lruNode[int]
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Len        int
	Bytes      int64
	Budget     int64
	Hits       uint64
	Misses     uint64
	HitRate    float64
	Evictions  uint64
	Rejections uint64
}

// New creates an empty cache. If budget <= 0, DefaultBudget is used.
func New(budget int64) *FrameCache {
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &FrameCache{
		entries: make(map[int]*frameEntry),
		lru:     newLRUList[int](),
		window:  make(map[int]struct{}),
		budget:  budget,
	}
}

// Get returns a retained handle to frame i, or nil on a miss. It never
// blocks on decoding. A hit marks the frame as most recently used.
// The caller must Release the handle.
func (c *FrameCache) Get(i int) *Bitmap {
	c.mu.Lock()
	e, ok := c.entries[i]
	if !ok {
		c.mu.Unlock()
		c.misses.Add(1)
		return nil
	}
	c.lru.MoveToFront(e.node)
	bmp := e.bmp.Retain()
	c.mu.Unlock()

	c.hits.Add(1)
	return bmp
}

// Peek is Get without touching recency or hit statistics.
func (c *FrameCache) Peek(i int) *Bitmap {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[i]; ok {
		return e.bmp.Retain()
	}
	return nil
}

// Contains reports whether frame i is cached.
func (c *FrameCache) Contains(i int) bool {
	c.mu.Lock()
	_, ok := c.entries[i]
	c.mu.Unlock()
	return ok
}

// Put stores bmp as frame i. The cache takes its own reference; the caller
// keeps (and must still release) the one it holds.
//
// Room is made before admission by evicting frames outside the window,
// least recently used first. A frame larger than the whole budget is
// admitted after evicting every other frame outside the window and is
// placed so that it is the next one evicted. If the window alone leaves no
// room, Put returns ErrNoRoom and evicts nothing.
func (c *FrameCache) Put(i int, bmp *Bitmap) error {
	if bmp == nil || bmp.Image() == nil {
		return fmt.Errorf("cache: put frame %d: nil or released bitmap", i)
	}
	need := bmp.SizeBytes()

	c.mu.Lock()

	old, replacing := c.entries[i]
	if replacing && old.bmp == bmp {
		c.lru.MoveToFront(old.node)
		c.mu.Unlock()
		return nil
	}

	var freed int64
	if replacing {
		freed = old.bmp.SizeBytes()
	}
	oversized := need > c.budget

	if !oversized && c.size-freed+need > c.budget {
		var evictable int64
		for k, e := range c.entries {
			if k == i {
				continue
			}
			if _, pinned := c.window[k]; !pinned {
				evictable += e.bmp.SizeBytes()
			}
		}
		if c.size-freed-evictable+need > c.budget {
			c.mu.Unlock()
			c.rejections.Add(1)
			logging.L().Warn("cache: frame rejected, window is full",
				"frame", i, "bytes", need, "budget", c.budget)
			return fmt.Errorf("%w: frame %d (%d bytes)", ErrNoRoom, i, need)
		}
	}

	var dropped []*Bitmap
	if replacing {
		c.removeLocked(i, old)
		dropped = append(dropped, old.bmp)
	}

	target := c.budget - need
	if oversized {
		target = 0
	}
	dropped = c.evictLocked(target, dropped)

	var node *lruNode[int]
	if oversized {
		node = c.lru.PushBack(i)
	} else {
		node = c.lru.PushFront(i)
	}
	c.entries[i] = &frameEntry{bmp: bmp.Retain(), node: node}
	c.size += need

	if debugChecks {
		c.verifyLocked()
	}
	c.mu.Unlock()

	if oversized {
		logging.L().Warn("cache: admitted frame larger than budget",
			"frame", i, "bytes", need, "budget", c.budget)
	}
	releaseAll(dropped)
	return nil
}

// evictLocked drops frames outside the window, least recently used first,
// until the cached size is at most target. Evicted bitmaps are appended to
// dropped for release outside the lock.
func (c *FrameCache) evictLocked(target int64, dropped []*Bitmap) []*Bitmap {
	node := c.lru.Back()
	for node != nil && c.size > target {
		prev := node.prev
		if _, pinned := c.window[node.key]; !pinned {
			e := c.entries[node.key]
			c.removeLocked(node.key, e)
			c.evictions.Add(1)
			logging.L().Debug("cache: evicted frame", "frame", node.key, "bytes", e.bmp.SizeBytes())
			dropped = append(dropped, e.bmp)
		}
		node = prev
	}
	return dropped
}

func (c *FrameCache) removeLocked(i int, e *frameEntry) {
	c.lru.Remove(e.node)
	delete(c.entries, i)
	c.size -= e.bmp.SizeBytes()
}

// Remove drops frame i from the cache, window or not.
func (c *FrameCache) Remove(i int) bool {
	c.mu.Lock()
	e, ok := c.entries[i]
	if ok {
		c.removeLocked(i, e)
	}
	c.mu.Unlock()

	if ok {
		e.bmp.Release()
	}
	return ok
}

// SetWindow replaces the set of frames protected from eviction.
func (c *FrameCache) SetWindow(frames []int) {
	w := make(map[int]struct{}, len(frames))
	for _, f := range frames {
		w[f] = struct{}{}
	}
	c.mu.Lock()
	c.window = w
	c.mu.Unlock()
}

// Window returns the protected frames in ascending order.
func (c *FrameCache) Window() []int {
	c.mu.Lock()
	out := make([]int, 0, len(c.window))
	for f := range c.window {
		out = append(out, f)
	}
	c.mu.Unlock()

	slices.Sort(out)
	return out
}

// EvictionCandidates returns the cached frames outside the window in
// eviction order, least recently used first.
func (c *FrameCache) EvictionCandidates() []int {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]int, 0, len(c.entries))
	for node := c.lru.Back(); node != nil; node = node.prev {
		if _, pinned := c.window[node.key]; !pinned {
			out = append(out, node.key)
		}
	}
	return out
}

// Clear evicts every frame, including the window. The window itself is kept.
func (c *FrameCache) Clear() {
	c.mu.Lock()
	dropped := make([]*Bitmap, 0, len(c.entries))
	for _, e := range c.entries {
		dropped = append(dropped, e.bmp)
	}
	c.evictions.Add(uint64(len(dropped)))
	c.entries = make(map[int]*frameEntry)
	c.lru.Clear()
	c.size = 0
	c.mu.Unlock()

	releaseAll(dropped)
}

// SetBudget changes the byte budget and evicts down to it immediately.
// Window frames stay even if they alone exceed the new budget.
func (c *FrameCache) SetBudget(budget int64) {
	if budget <= 0 {
		budget = DefaultBudget
	}
	c.mu.Lock()
	c.budget = budget
	dropped := c.evictLocked(budget, nil)
	if debugChecks {
		c.verifyLocked()
	}
	c.mu.Unlock()

	releaseAll(dropped)
}

// Budget returns the byte budget.
func (c *FrameCache) Budget() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.budget
}

// SizeBytes returns the total size of the cached frames.
func (c *FrameCache) SizeBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Count returns the number of cached frames.
func (c *FrameCache) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Frames returns the cached frame indices in ascending order.
func (c *FrameCache) Frames() []int {
	c.mu.Lock()
	out := make([]int, 0, len(c.entries))
	for f := range c.entries {
		out = append(out, f)
	}
	c.mu.Unlock()

	slices.Sort(out)
	return out
}

// Stats returns current cache statistics.
func (c *FrameCache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	c.mu.Lock()
	n, size, budget := len(c.entries), c.size, c.budget
	c.mu.Unlock()

	return Stats{
		Len:        n,
		Bytes:      size,
		Budget:     budget,
		Hits:       hits,
		Misses:     misses,
		HitRate:    hitRate,
		Evictions:  c.evictions.Load(),
		Rejections: c.rejections.Load(),
	}
}

// ResetStats resets all statistics counters to zero.
func (c *FrameCache) ResetStats() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.evictions.Store(0)
	c.rejections.Store(0)
}

// verifyLocked panics if the index and the byte count disagree.
func (c *FrameCache) verifyLocked() {
	if c.lru.Len() != len(c.entries) {
		panic(fmt.Sprintf("cache: lru has %d nodes, index has %d entries", c.lru.Len(), len(c.entries)))
	}
	var sum int64
	for i, e := range c.entries {
		if e.bmp.Image() == nil {
			panic(fmt.Sprintf("cache: frame %d is stored after being freed", i))
		}
		sum += e.bmp.SizeBytes()
	}
	if sum != c.size {
		panic(fmt.Sprintf("cache: size is %d, entries sum to %d", c.size, sum))
	}
}

func releaseAll(bmps []*Bitmap) {
	for _, b := range bmps {
		b.Release()
	}
}
