package lifecycle

import (
	"container/list"
	"time"

	"github.com/rs/zerolog"

	"llmedged/pkg/types"
)

// FamilyBudget bounds the cache for one family: a maximum entry count and a
// maximum cumulative estimated size. Zero fields take package defaults.
type FamilyBudget struct {
	MaxCount int
	MaxBytes int64
}

const (
	defaultMaxCount = 2
	defaultMaxBytes = 4 << 30
)

func (b FamilyBudget) withDefaults() FamilyBudget {
	if b.MaxCount == 0 {
		b.MaxCount = defaultMaxCount
	}
	if b.MaxBytes == 0 {
		b.MaxBytes = defaultMaxBytes
	}
	return b
}

// AvailableFunc reports available system memory in bytes. Attached to the
// cache as an external memory provider for proactive eviction.
type AvailableFunc func() (uint64, error)

// ModelCache is a size- and count-bounded cache of loaded native handles,
// keyed by ModelIdentity, with per-family LRU eviction.
//
// The structure is not safe for unsynchronized concurrent mutation; the
// Manager serializes every call (including Get, which bumps recency) under
// its cache lock. That lock is distinct from the generation gates, so cache
// inspection never blocks behind an in-flight generation.
type ModelCache struct {
	log     zerolog.Logger
	budgets map[types.Family]FamilyBudget

	entries map[ModelIdentity]*list.Element
	order   map[types.Family]*list.List // front = most recently used
	bytes   map[types.Family]int64

	// External memory provider; when set (and performance mode is off), Put
	// additionally evicts while reported availability is under memFloor.
	memAvail AvailableFunc
	memFloor uint64
	perfMode bool

	onEvict func(CacheEntry) // metrics/event hook, may be nil
}

// NewModelCache builds a cache with the given per-family budgets. Families
// without an explicit budget get defaults on first use.
func NewModelCache(log zerolog.Logger, budgets map[types.Family]FamilyBudget) *ModelCache {
	c := &ModelCache{
		log:     log,
		budgets: make(map[types.Family]FamilyBudget, len(budgets)),
		entries: make(map[ModelIdentity]*list.Element),
		order:   make(map[types.Family]*list.List),
		bytes:   make(map[types.Family]int64),
	}
	for f, b := range budgets {
		c.budgets[f] = b.withDefaults()
	}
	return c
}

// SetMemoryProvider attaches an external memory provider and the floor below
// which Put evicts proactively. Swapped under the Manager's cache lock so a
// provider is never observed mid-replacement.
func (c *ModelCache) SetMemoryProvider(fn AvailableFunc, floorBytes uint64) {
	c.memAvail = fn
	c.memFloor = floorBytes
}

// SetPerformanceMode disables provider-driven eviction so hot models stay
// resident for throughput.
func (c *ModelCache) SetPerformanceMode(on bool) { c.perfMode = on }

// SetEvictHook registers a callback invoked for every entry the cache closes.
func (c *ModelCache) SetEvictHook(fn func(CacheEntry)) { c.onEvict = fn }

// Pin marks the identity's entry as in use so eviction will not close it.
// Pins nest; a miss is a no-op. Remove and Clear still drop pinned entries:
// those are owner-driven teardowns, not budget eviction.
func (c *ModelCache) Pin(identity ModelIdentity) {
	if el, ok := c.entries[identity]; ok {
		el.Value.(*CacheEntry).pins++
	}
}

// Unpin releases one pin, restoring the entry as an eviction candidate. A
// miss or an unpinned entry is a no-op.
func (c *ModelCache) Unpin(identity ModelIdentity) {
	if el, ok := c.entries[identity]; ok {
		if e := el.Value.(*CacheEntry); e.pins > 0 {
			e.pins--
		}
	}
}

func (c *ModelCache) budget(f types.Family) FamilyBudget {
	b, ok := c.budgets[f]
	if !ok {
		b = FamilyBudget{}.withDefaults()
		c.budgets[f] = b
	}
	return b
}

func (c *ModelCache) familyList(f types.Family) *list.List {
	l, ok := c.order[f]
	if !ok {
		l = list.New()
		c.order[f] = l
	}
	return l
}

// Get returns the entry for identity, bumping its recency, or nil on miss.
func (c *ModelCache) Get(identity ModelIdentity) *CacheEntry {
	el, ok := c.entries[identity]
	if !ok {
		return nil
	}
	entry := el.Value.(*CacheEntry)
	entry.LastUsed = time.Now()
	c.familyList(entry.Family).MoveToFront(el)
	return entry
}

// Put inserts a new entry. An existing entry for the same identity is closed
// and replaced, never merged. After insertion, least-recently-used entries
// other than the new one are closed until the family's count and size
// budgets both hold; a single oversized entry is still admitted and becomes
// the family's sole entry. With a memory provider attached (and performance
// mode off), eviction additionally continues while reported system
// availability is under the configured floor.
func (c *ModelCache) Put(entry *CacheEntry) {
	if el, ok := c.entries[entry.Identity]; ok {
		c.dropElement(el)
	}
	entry.LastUsed = time.Now()
	el := c.familyList(entry.Family).PushFront(entry)
	c.entries[entry.Identity] = el
	c.bytes[entry.Family] += entry.SizeBytes

	c.evictOverBudget(entry)
}

// Remove evicts and closes the entry for identity. Removing an absent
// identity is a no-op, not an error.
func (c *ModelCache) Remove(identity ModelIdentity) {
	if el, ok := c.entries[identity]; ok {
		c.dropElement(el)
	}
}

// Clear evicts and closes every entry for a family.
func (c *ModelCache) Clear(family types.Family) {
	l := c.familyList(family)
	for l.Len() > 0 {
		c.dropElement(l.Back())
	}
}

// Len returns the entry count for a family.
func (c *ModelCache) Len(family types.Family) int { return c.familyList(family).Len() }

// SizeBytes returns the cumulative estimated size for a family.
func (c *ModelCache) SizeBytes(family types.Family) int64 { return c.bytes[family] }

// Residents returns a snapshot of all entries, most recently used first
// within each family.
func (c *ModelCache) Residents() []CacheEntry {
	var out []CacheEntry
	for _, l := range c.order {
		for el := l.Front(); el != nil; el = el.Next() {
			out = append(out, *el.Value.(*CacheEntry))
		}
	}
	return out
}

func (c *ModelCache) evictOverBudget(keep *CacheEntry) {
	b := c.budget(keep.Family)
	l := c.familyList(keep.Family)
	for {
		over := l.Len() > b.MaxCount || c.bytes[keep.Family] > b.MaxBytes
		if !over && !c.systemUnderPressure() {
			return
		}
		victim := c.lruExcept(l, keep)
		if victim == nil {
			// Only the just-inserted entry and pinned entries remain. Budgets
			// can be transiently exceeded while a generation holds a pin; the
			// next unpinned Put settles the debt.
			return
		}
		c.dropElement(victim)
	}
}

// systemUnderPressure consults the external memory provider. A provider
// error is treated as no pressure; the internal budgets still bound the
// cache.
func (c *ModelCache) systemUnderPressure() bool {
	if c.perfMode || c.memAvail == nil || c.memFloor == 0 {
		return false
	}
	avail, err := c.memAvail()
	if err != nil {
		return false
	}
	return avail < c.memFloor
}

func (c *ModelCache) lruExcept(l *list.List, keep *CacheEntry) *list.Element {
	for el := l.Back(); el != nil; el = el.Prev() {
		if e := el.Value.(*CacheEntry); e != keep && e.pins == 0 {
			return el
		}
	}
	return nil
}

// dropElement removes an entry from bookkeeping and closes its handle.
// Close failures are logged and never propagate; the entry leaves the map
// regardless so a misbehaving close cannot leak a cache slot.
func (c *ModelCache) dropElement(el *list.Element) {
	entry := el.Value.(*CacheEntry)
	c.familyList(entry.Family).Remove(el)
	delete(c.entries, entry.Identity)
	c.bytes[entry.Family] -= entry.SizeBytes
	if c.bytes[entry.Family] < 0 {
		c.bytes[entry.Family] = 0
	}
	if entry.Handle != nil {
		if err := entry.Handle.Close(); err != nil {
			c.log.Warn().Err(err).Str("model", entry.Identity.String()).Msg("close during eviction failed")
		}
	}
	if c.onEvict != nil {
		c.onEvict(*entry)
	}
}
