package witness

import lru "github.com/hashicorp/golang-lru/v2"

// CachedLookup wraps an EntityLookup with a bounded LRU cache, for the
// re-resolve-by-id guard update() runs against every ENTER_PENDING ref
// (spec §4.6 step 4). A plain map would grow unbounded across a witness's
// whole membership history; entities genuinely go out of view, and there is
// no benefit in remembering one forever.
type CachedLookup struct {
	inner EntityLookup
	cache *lru.Cache[EntityID, EntityHandle]
}

// NewCachedLookup wraps inner with an LRU of the given capacity. Misses
// still fall through to inner and are re-cached on the way back, so a
// cache that's too small costs throughput, never correctness.
func NewCachedLookup(inner EntityLookup, capacity int) *CachedLookup {
	c, err := lru.New[EntityID, EntityHandle](capacity)
	if err != nil {
		// Only returns an error for capacity <= 0, a caller bug.
		panic(err)
	}
	return &CachedLookup{inner: inner, cache: c}
}

// Find implements EntityLookup. A cached handle is not re-validated against
// the underlying registry on every hit — callers that need a guaranteed-
// live handle (update()'s ENTER_PENDING re-resolve) should invalidate on
// any entity destruction they observe via Invalidate.
func (c *CachedLookup) Find(id EntityID) (EntityHandle, bool) {
	if h, ok := c.cache.Get(id); ok {
		return h, true
	}
	h, ok := c.inner.Find(id)
	if !ok {
		return nil, false
	}
	c.cache.Add(id, h)
	return h, true
}

// Invalidate drops id from the cache, e.g. on entity destruction.
func (c *CachedLookup) Invalidate(id EntityID) {
	c.cache.Remove(id)
}
