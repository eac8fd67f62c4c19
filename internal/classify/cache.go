package classify

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// cacheTTL and cacheSize mirror the classifier's documented cache policy:
// 10-second TTL, ~256-entry LRU eviction.
const (
	cacheTTL  = 10 * time.Second
	cacheSize = 256
)

type cacheEntry struct {
	verdict   Verdict
	createdAt int64 // process creation time (Unix seconds) at the time of caching
	expiresAt time.Time
}

// verdictCache is the PID-keyed protection-verdict cache. It is written
// only under its own lock; readers may observe a slightly stale verdict
// but never a torn record.
type verdictCache struct {
	mu sync.Mutex
	c  *lru.Cache
}

func newVerdictCache() *verdictCache {
	c, err := lru.New(cacheSize)
	if err != nil {
		// lru.New only fails for size <= 0, which cacheSize never is.
		panic(err)
	}
	return &verdictCache{c: c}
}

// get returns a non-expired cached verdict for pid whose stored creation
// time matches createdAt, or ok=false. A creation-time mismatch signals PID
// reuse and evicts the stale entry immediately.
func (vc *verdictCache) get(pid int32, createdAt int64) (Verdict, bool) {
	vc.mu.Lock()
	defer vc.mu.Unlock()

	v, ok := vc.c.Get(pid)
	if !ok {
		return Verdict{}, false
	}
	entry := v.(cacheEntry)
	if entry.createdAt != createdAt {
		vc.c.Remove(pid)
		return Verdict{}, false
	}
	if time.Now().After(entry.expiresAt) {
		vc.c.Remove(pid)
		return Verdict{}, false
	}
	return entry.verdict, true
}

func (vc *verdictCache) put(pid int32, createdAt int64, verdict Verdict) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.c.Add(pid, cacheEntry{verdict: verdict, createdAt: createdAt, expiresAt: time.Now().Add(cacheTTL)})
}

func (vc *verdictCache) evict(pid int32) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.c.Remove(pid)
}

// len reports the current entry count, exposed for the
// secdevmgr_protection_cache_entries gauge.
func (vc *verdictCache) len() int {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return vc.c.Len()
}

// reapExpired sweeps every entry and removes those past their TTL. Run by
// the classifier's background reaper every 5 seconds, per the core's
// two-reaper concurrency model.
func (vc *verdictCache) reapExpired() {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	now := time.Now()
	for _, key := range vc.c.Keys() {
		v, ok := vc.c.Peek(key)
		if !ok {
			continue
		}
		if now.After(v.(cacheEntry).expiresAt) {
			vc.c.Remove(key)
		}
	}
}
