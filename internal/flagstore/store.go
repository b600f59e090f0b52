package flagstore

import (
	"sort"
	"sync"

	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"
)

// Store is a concurrency-safe map of flag keys to FlagValues.
//
// Every update method applies its whole batch under one write lock, so readers never observe a
// partially applied batch. Update methods return the keys whose value or version changed, in the
// order they were discovered, so that callers can send one notification per changed key.
type Store struct {
	flags map[string]FlagValue
	lock  sync.RWMutex
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{flags: make(map[string]FlagValue)}
}

// Get returns the flag value for a key, but only if it exists and its type tag is expectedType.
func (s *Store) Get(key string, expectedType ldvalue.ValueType) (FlagValue, bool) {
	f, ok := s.Lookup(key)
	if !ok || f.Type() != expectedType {
		return FlagValue{}, false
	}
	return f, true
}

// Lookup returns the flag value for a key regardless of its type.
func (s *Store) Lookup(key string) (FlagValue, bool) {
	s.lock.RLock()
	f, ok := s.flags[key]
	s.lock.RUnlock()
	return f, ok
}

// All returns a snapshot of every flag.
func (s *Store) All() map[string]FlagValue {
	s.lock.RLock()
	defer s.lock.RUnlock()
	ret := make(map[string]FlagValue, len(s.flags))
	for k, v := range s.flags {
		ret[k] = v
	}
	return ret
}

// Len returns the number of flags.
func (s *Store) Len() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.flags)
}

// ApplyUpdate inserts or replaces every record in the batch. Flags not named in the batch are left
// alone. If the same key appears more than once, the last record wins and the key is reported once.
func (s *Store) ApplyUpdate(batch []FlagRecord) []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.upsertAll(batch)
}

// ApplyDelete removes a flag. It returns true if the flag existed.
func (s *Store) ApplyDelete(key string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, ok := s.flags[key]; !ok {
		return false
	}
	delete(s.flags, key)
	return true
}

// Init replaces the entire contents of the store. The changed keys are the new or modified keys from
// the batch, in batch order, followed by the keys that were removed, in sorted order.
func (s *Store) Init(batch []FlagRecord) []string {
	s.lock.Lock()
	defer s.lock.Unlock()

	present := make(map[string]struct{}, len(batch))
	for _, r := range batch {
		present[r.Key] = struct{}{}
	}
	var removed []string
	for k := range s.flags {
		if _, ok := present[k]; !ok {
			removed = append(removed, k)
			delete(s.flags, k)
		}
	}
	sort.Strings(removed)

	return append(s.upsertAll(batch), removed...)
}

// Upsert applies a single record only if its version is greater than that of the existing flag, as
// required for incremental stream updates that may arrive out of order. It returns true if the store
// changed.
func (s *Store) Upsert(r FlagRecord) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if old, ok := s.flags[r.Key]; ok && old.Version >= r.Flag.Version {
		return false
	}
	s.flags[r.Key] = r.Flag
	return true
}

// DeleteVersioned removes a flag only if the deletion's version is greater than that of the existing
// flag. It returns true if the flag was removed.
func (s *Store) DeleteVersioned(key string, version int) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	old, ok := s.flags[key]
	if !ok || old.Version >= version {
		return false
	}
	delete(s.flags, key)
	return true
}

// must be called with the write lock held
func (s *Store) upsertAll(batch []FlagRecord) []string {
	var changed []string
	reported := make(map[string]struct{})
	for _, r := range batch {
		old, existed := s.flags[r.Key]
		s.flags[r.Key] = r.Flag
		if existed && old.SameAs(r.Flag) {
			continue
		}
		if _, ok := reported[r.Key]; !ok {
			reported[r.Key] = struct{}{}
			changed = append(changed, r.Key)
		}
	}
	return changed
}
