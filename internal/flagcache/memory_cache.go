package flagcache

import (
	"context"
	"sync"
	"time"

	"github.com/launchdarkly/go-client-sdk/internal/flagstore"
)

// InMemoryCache is a Cache that lives only as long as the process. When more than maxContexts
// contexts have been saved, the one saved longest ago is discarded.
type InMemoryCache struct {
	maxContexts int
	entries     map[string]memoryEntry
	now         func() time.Time
	lock        sync.Mutex
}

type memoryEntry struct {
	data  []byte
	saved time.Time
}

// NewInMemoryCache creates an InMemoryCache. A maxContexts of zero or less means one context.
func NewInMemoryCache(maxContexts int) *InMemoryCache {
	if maxContexts < 1 {
		maxContexts = 1
	}
	return &InMemoryCache{
		maxContexts: maxContexts,
		entries:     make(map[string]memoryEntry),
		now:         time.Now,
	}
}

func (c *InMemoryCache) Load(_ context.Context, contextKey string) ([]flagstore.FlagRecord, bool, error) { //nolint:golint
	c.lock.Lock()
	e, ok := c.entries[contextKey]
	c.lock.Unlock()
	if !ok {
		return nil, false, nil
	}
	records, err := flagstore.ParseFlags(e.data)
	if err != nil {
		return nil, false, err
	}
	return records, true, nil
}

func (c *InMemoryCache) Save(_ context.Context, contextKey string, flags map[string]flagstore.FlagValue) error { //nolint:golint
	data := flagstore.SerializeFlags(flags)
	c.lock.Lock()
	defer c.lock.Unlock()
	c.entries[contextKey] = memoryEntry{data: data, saved: c.now()}
	for len(c.entries) > c.maxContexts {
		oldestKey, oldest := "", time.Time{}
		for k, e := range c.entries {
			if oldestKey == "" || e.saved.Before(oldest) {
				oldestKey, oldest = k, e.saved
			}
		}
		delete(c.entries, oldestKey)
	}
	return nil
}

func (c *InMemoryCache) RemoveOlderThan(_ context.Context, cutoff time.Time) (int, error) { //nolint:golint
	c.lock.Lock()
	defer c.lock.Unlock()
	n := 0
	for k, e := range c.entries {
		if e.saved.Before(cutoff) {
			delete(c.entries, k)
			n++
		}
	}
	return n, nil
}

func (c *InMemoryCache) Close() error { //nolint:golint
	return nil
}
