package lifecycle

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"llmedged/pkg/types"
)

func newTestCache(budgets map[types.Family]FamilyBudget) *ModelCache {
	return NewModelCache(zerolog.Nop(), budgets)
}

func entry(path string, family types.Family, size int64) (*CacheEntry, *fakeHandle) {
	h := &fakeHandle{family: family}
	return &CacheEntry{
		Identity:  ModelIdentity{Path: path},
		Handle:    h,
		Family:    family,
		SizeBytes: size,
	}, h
}

func TestCacheLRUEvictionOrder(t *testing.T) {
	c := newTestCache(map[types.Family]FamilyBudget{
		types.FamilyText: {MaxCount: 3, MaxBytes: 1 << 40},
	})

	a, ha := entry("a", types.FamilyText, 10)
	b, hb := entry("b", types.FamilyText, 10)
	cc, hc := entry("c", types.FamilyText, 10)
	c.Put(a)
	c.Put(b)
	c.Put(cc)

	// Touch A so B becomes least recently used.
	if got := c.Get(ModelIdentity{Path: "a"}); got == nil {
		t.Fatal("expected hit for a")
	}

	d, _ := entry("d", types.FamilyText, 10)
	c.Put(d)

	if hb.closes.Load() != 1 {
		t.Fatalf("expected b evicted and closed once, got %d closes", hb.closes.Load())
	}
	if ha.closes.Load() != 0 || hc.closes.Load() != 0 {
		t.Fatal("a and c must survive")
	}
	if c.Len(types.FamilyText) != 3 {
		t.Fatalf("expected 3 entries, got %d", c.Len(types.FamilyText))
	}
}

func TestCacheByteBudgetEviction(t *testing.T) {
	c := newTestCache(map[types.Family]FamilyBudget{
		types.FamilyText: {MaxCount: 10, MaxBytes: 100},
	})

	a, ha := entry("a", types.FamilyText, 60)
	b, hb := entry("b", types.FamilyText, 60)
	c.Put(a)
	c.Put(b)

	if ha.closes.Load() != 1 {
		t.Fatal("expected a evicted to satisfy byte budget")
	}
	if hb.closes.Load() != 0 {
		t.Fatal("b must remain")
	}
	if got := c.SizeBytes(types.FamilyText); got != 60 {
		t.Fatalf("size accounting: got %d want 60", got)
	}
}

func TestCacheOversizedEntryAdmitted(t *testing.T) {
	c := newTestCache(map[types.Family]FamilyBudget{
		types.FamilyText: {MaxCount: 2, MaxBytes: 100},
	})

	big, hbig := entry("big", types.FamilyText, 500)
	c.Put(big)

	if hbig.closes.Load() != 0 {
		t.Fatal("oversized sole entry must not be evicted")
	}
	if c.Len(types.FamilyText) != 1 {
		t.Fatalf("expected the oversized entry resident, len=%d", c.Len(types.FamilyText))
	}

	// It is evicted as soon as something newer needs the room.
	next, hnext := entry("next", types.FamilyText, 50)
	c.Put(next)
	if hbig.closes.Load() != 1 {
		t.Fatal("oversized entry must be evicted when a newer load arrives")
	}
	if hnext.closes.Load() != 0 {
		t.Fatal("newer entry must remain")
	}
}

func TestCachePutReplacesSameIdentity(t *testing.T) {
	c := newTestCache(nil)

	old, hold := entry("m", types.FamilyText, 10)
	c.Put(old)
	fresh, hfresh := entry("m", types.FamilyText, 20)
	c.Put(fresh)

	if hold.closes.Load() != 1 {
		t.Fatal("replaced entry must be closed")
	}
	if hfresh.closes.Load() != 0 {
		t.Fatal("replacement must remain open")
	}
	if c.Len(types.FamilyText) != 1 {
		t.Fatalf("expected single entry after replace, len=%d", c.Len(types.FamilyText))
	}
	if got := c.SizeBytes(types.FamilyText); got != 20 {
		t.Fatalf("size after replace: got %d want 20", got)
	}
}

func TestCacheIdentityDistinguishesAuxPaths(t *testing.T) {
	c := newTestCache(nil)

	plain, _ := entry("m", types.FamilyImage, 10)
	withAux := &CacheEntry{
		Identity:  ModelIdentity{Path: "m", AuxPath: "vae"},
		Handle:    &fakeHandle{family: types.FamilyImage},
		Family:    types.FamilyImage,
		SizeBytes: 10,
	}
	c.Put(plain)
	c.Put(withAux)

	if c.Len(types.FamilyImage) != 2 {
		t.Fatal("same path with different aux components must be distinct entries")
	}
	if c.Get(ModelIdentity{Path: "m"}) == nil {
		t.Fatal("plain identity must still hit")
	}
	if c.Get(ModelIdentity{Path: "m", AuxPath: "vae"}) == nil {
		t.Fatal("aux identity must hit")
	}
}

func TestCacheRemoveIdempotent(t *testing.T) {
	c := newTestCache(nil)

	a, ha := entry("a", types.FamilyText, 10)
	c.Put(a)
	c.Remove(a.Identity)
	c.Remove(a.Identity) // absent; must be a no-op

	if ha.closes.Load() != 1 {
		t.Fatalf("expected exactly one close, got %d", ha.closes.Load())
	}
	if c.Len(types.FamilyText) != 0 {
		t.Fatal("cache must be empty after remove")
	}
}

func TestCacheCloseFailureStillRemoves(t *testing.T) {
	c := newTestCache(nil)

	a, ha := entry("a", types.FamilyText, 10)
	ha.closeErr = errors.New("native close failed")
	c.Put(a)
	c.Remove(a.Identity)

	if c.Len(types.FamilyText) != 0 {
		t.Fatal("entry must leave the cache even when close fails")
	}
	if c.SizeBytes(types.FamilyText) != 0 {
		t.Fatal("byte accounting must be restored even when close fails")
	}
}

func TestCacheMemoryProviderPressureEvicts(t *testing.T) {
	c := newTestCache(map[types.Family]FamilyBudget{
		types.FamilyText: {MaxCount: 10, MaxBytes: 1 << 40},
	})

	avail := uint64(10 << 30)
	c.SetMemoryProvider(func() (uint64, error) { return avail, nil }, 1<<30)

	a, ha := entry("a", types.FamilyText, 10)
	b, hb := entry("b", types.FamilyText, 10)
	c.Put(a)
	c.Put(b)
	if ha.closes.Load() != 0 {
		t.Fatal("no eviction expected while memory is plentiful")
	}

	// Availability drops under the floor: the next Put evicts down to the
	// newest entry.
	avail = 512 << 20
	cc, hc := entry("c", types.FamilyText, 10)
	c.Put(cc)

	if ha.closes.Load() != 1 || hb.closes.Load() != 1 {
		t.Fatal("older entries must be evicted under system pressure")
	}
	if hc.closes.Load() != 0 {
		t.Fatal("newest entry is always kept")
	}
}

func TestCachePerformanceModeDisablesPressureEviction(t *testing.T) {
	c := newTestCache(map[types.Family]FamilyBudget{
		types.FamilyText: {MaxCount: 10, MaxBytes: 1 << 40},
	})
	c.SetMemoryProvider(func() (uint64, error) { return 0, nil }, 1<<30)
	c.SetPerformanceMode(true)

	a, ha := entry("a", types.FamilyText, 10)
	b, _ := entry("b", types.FamilyText, 10)
	c.Put(a)
	c.Put(b)

	if ha.closes.Load() != 0 {
		t.Fatal("performance mode must disable provider-driven eviction")
	}
}

func TestCacheProviderErrorIsNotPressure(t *testing.T) {
	c := newTestCache(map[types.Family]FamilyBudget{
		types.FamilyText: {MaxCount: 10, MaxBytes: 1 << 40},
	})
	c.SetMemoryProvider(func() (uint64, error) { return 0, errBoom }, 1<<30)

	a, ha := entry("a", types.FamilyText, 10)
	b, _ := entry("b", types.FamilyText, 10)
	c.Put(a)
	c.Put(b)

	if ha.closes.Load() != 0 {
		t.Fatal("a failing provider must not trigger eviction")
	}
}

func TestCacheEvictHookFires(t *testing.T) {
	c := newTestCache(map[types.Family]FamilyBudget{
		types.FamilyText: {MaxCount: 1, MaxBytes: 1 << 40},
	})
	var evicted []ModelIdentity
	c.SetEvictHook(func(e CacheEntry) { evicted = append(evicted, e.Identity) })

	a, _ := entry("a", types.FamilyText, 10)
	b, _ := entry("b", types.FamilyText, 10)
	c.Put(a)
	c.Put(b)

	if len(evicted) != 1 || evicted[0].Path != "a" {
		t.Fatalf("expected hook for a, got %v", evicted)
	}
}

func TestCachePinnedEntryNotEvicted(t *testing.T) {
	c := newTestCache(map[types.Family]FamilyBudget{
		types.FamilyText: {MaxCount: 1, MaxBytes: 1 << 40},
	})

	a, ha := entry("a", types.FamilyText, 10)
	c.Put(a)
	c.Pin(a.Identity)

	b, hb := entry("b", types.FamilyText, 10)
	c.Put(b)

	if ha.closes.Load() != 0 {
		t.Fatal("pinned entry must not be evicted")
	}
	if c.Len(types.FamilyText) != 2 {
		t.Fatalf("budget may be exceeded while an entry is pinned, len=%d", c.Len(types.FamilyText))
	}

	// Unpinning restores eviction candidacy; the next insert settles the
	// outstanding budget debt.
	c.Unpin(a.Identity)
	d, hd := entry("d", types.FamilyText, 10)
	c.Put(d)

	if ha.closes.Load() != 1 || hb.closes.Load() != 1 {
		t.Fatalf("unpinned entries must be evictable again, closes a=%d b=%d",
			ha.closes.Load(), hb.closes.Load())
	}
	if hd.closes.Load() != 0 {
		t.Fatal("newest entry is always kept")
	}
}

func TestCacheRemoveDropsPinnedEntry(t *testing.T) {
	c := newTestCache(nil)

	a, ha := entry("a", types.FamilyText, 10)
	c.Put(a)
	c.Pin(a.Identity)
	c.Remove(a.Identity) // owner-driven teardown ignores pins

	if ha.closes.Load() != 1 {
		t.Fatalf("Remove must close even a pinned entry, closes=%d", ha.closes.Load())
	}
	c.Unpin(a.Identity) // absent; must be a no-op
	if c.Len(types.FamilyText) != 0 {
		t.Fatal("cache must be empty after remove")
	}
}

func TestCacheClearFamily(t *testing.T) {
	c := newTestCache(nil)

	a, ha := entry("a", types.FamilyText, 10)
	b, hb := entry("b", types.FamilyImage, 10)
	c.Put(a)
	c.Put(b)
	c.Clear(types.FamilyText)

	if ha.closes.Load() != 1 {
		t.Fatal("text entry must be closed by Clear")
	}
	if hb.closes.Load() != 0 {
		t.Fatal("other families must be untouched")
	}
}
