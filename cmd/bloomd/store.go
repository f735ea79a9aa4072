// store.go implements the sharded in-memory map from key names to filters.
//
// Sharding Strategy
// =================
//
// Keys are spread over 256 shards, each guarded by its own sync.RWMutex, so
// commands on different keys rarely contend. A key is assigned to a shard by
// its xxHash64 digest modulo 256.
//
// Locking Contract
// ================
//
// A default Filter is not safe for concurrent mutation. The store enforces
// the required discipline:
//
//   - View runs its callback under the shard's read lock. Any number of
//     queries against one filter may proceed together.
//   - Mutate runs its callback under the shard's write lock. Inserts into a
//     default filter must go through Mutate.
//
// Filters built with bloom.WithConcurrentInserts may also be written from
// inside View, since their bitset is updated atomically.

package main

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"bloomd.lopezb.com/internal/bloom"
)

const shardCount = 256

// Shard is one independently locked slice of the keyspace.
type Shard struct {
	mu      sync.RWMutex
	filters map[string]*bloom.Filter[string]
}

// Store holds the shards and routes keys to them.
type Store struct {
	shards [shardCount]*Shard
}

// NewStore creates an empty store.
func NewStore() *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i] = &Shard{filters: make(map[string]*bloom.Filter[string])}
	}
	return s
}

func (s *Store) getShard(key string) *Shard {
	return s.shards[xxhash.Sum64String(key)%shardCount]
}

// View calls fn with the filter stored under key, or nil if there is none,
// while holding the shard's read lock.
func (s *Store) View(key string, fn func(f *bloom.Filter[string]) error) error {
	shard := s.getShard(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	return fn(shard.filters[key])
}

// Mutate calls fn with the filter stored under key (nil if absent) while
// holding the shard's write lock. A non-nil filter returned by fn becomes
// the value for key, even when fn also returns an error.
func (s *Store) Mutate(key string, fn func(f *bloom.Filter[string]) (*bloom.Filter[string], error)) error {
	shard := s.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	cur := shard.filters[key]
	next, err := fn(cur)
	if next != nil && next != cur {
		shard.filters[key] = next
	}
	return err
}

// Reserve stores f under key unless the key is taken. It reports whether f
// was stored.
func (s *Store) Reserve(key string, f *bloom.Filter[string]) bool {
	shard := s.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if _, ok := shard.filters[key]; ok {
		return false
	}
	shard.filters[key] = f
	return true
}

// Delete removes key and reports whether it existed.
func (s *Store) Delete(key string) bool {
	shard := s.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if _, ok := shard.filters[key]; !ok {
		return false
	}
	delete(shard.filters, key)
	return true
}

// Exists reports whether a filter is stored under key.
func (s *Store) Exists(key string) bool {
	shard := s.getShard(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	_, ok := shard.filters[key]
	return ok
}

// Len returns the number of stored filters. Shards are locked one at a time,
// so the result is approximate under concurrent writes.
func (s *Store) Len() int {
	n := 0
	for _, shard := range s.shards {
		shard.mu.RLock()
		n += len(shard.filters)
		shard.mu.RUnlock()
	}
	return n
}
