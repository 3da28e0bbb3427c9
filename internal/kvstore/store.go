// Package kvstore defines the byte-level KV backend contract the indexer is
// built against and the atomic pointer built on top of it. The real
// production backend (RocksDB) is explicitly out of scope for this repo;
// KVStore is the seam, and InMemoryStore is the reference implementation
// this repo drives its own tests and CLI against.
package kvstore

import (
	"bytes"
	"errors"
	"sort"
	"sync"
)

// ErrNotFound is returned by Get when a key has no value. Most callers treat
// it the same as an empty byte slice (see Pointer.Get), but Batch/Snapshot
// callers that need to distinguish "absent" from "empty" can check for it.
var ErrNotFound = errors.New("kvstore: not found")

// Batch groups a set of writes for atomic application. Writes are invisible
// until Write is called.
type Batch interface {
	Put(key, value []byte)
	Delete(key []byte)
	Write() error
}

// Snapshot is a point-in-time, read-only view. Nothing in this repo opens
// one: internal/view reads through the driver's Pointer, which sees the
// live store plus any writes staged on it.
type Snapshot interface {
	Get(key []byte) ([]byte, error)
	// Iterate calls fn for every key with the given prefix in ascending
	// byte order, stopping early if fn returns false.
	Iterate(prefix []byte, fn func(key, value []byte) bool)
	Release()
}

// KVStore is the byte-level contract the indexer drives: get/put/delete,
// atomic batches, snapshots, and ordered prefix iteration.
type KVStore interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	NewBatch() Batch
	Snapshot() Snapshot
	// Iterate calls fn for every key with the given prefix in ascending
	// byte order, stopping early if fn returns false.
	Iterate(prefix []byte, fn func(key, value []byte) bool)
}

// InMemoryStore is a sync.RWMutex-guarded map[string][]byte implementation
// of KVStore. It is the reference backend this repo ships since the real
// persistent store is an external collaborator; it is sufficient for tests
// and for running a node against volatile state.
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewInMemoryStore constructs an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{data: make(map[string][]byte)}
}

func (s *InMemoryStore) Get(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *InMemoryStore) Put(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	s.data[string(key)] = cp
	return nil
}

func (s *InMemoryStore) Delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, string(key))
	return nil
}

func (s *InMemoryStore) Iterate(prefix []byte, fn func(key, value []byte) bool) {
	s.mu.RLock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	snapshot := make(map[string][]byte, len(keys))
	for _, k := range keys {
		snapshot[k] = s.data[k]
	}
	s.mu.RUnlock()

	for _, k := range keys {
		if !fn([]byte(k), snapshot[k]) {
			return
		}
	}
}

type memBatch struct {
	store *InMemoryStore
	ops   []memOp
}

type memOp struct {
	key    string
	value  []byte
	delete bool
}

func (s *InMemoryStore) NewBatch() Batch { return &memBatch{store: s} }

func (b *memBatch) Put(key, value []byte) {
	cp := make([]byte, len(value))
	copy(cp, value)
	b.ops = append(b.ops, memOp{key: string(key), value: cp})
}

func (b *memBatch) Delete(key []byte) {
	b.ops = append(b.ops, memOp{key: string(key), delete: true})
}

func (b *memBatch) Write() error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	for _, op := range b.ops {
		if op.delete {
			delete(b.store.data, op.key)
		} else {
			b.store.data[op.key] = op.value
		}
	}
	return nil
}

type memSnapshot struct {
	data map[string][]byte
}

func (s *InMemoryStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	frozen := make(map[string][]byte, len(s.data))
	for k, v := range s.data {
		cp := make([]byte, len(v))
		copy(cp, v)
		frozen[k] = cp
	}
	return &memSnapshot{data: frozen}
}

func (sn *memSnapshot) Get(key []byte) ([]byte, error) {
	v, ok := sn.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (sn *memSnapshot) Iterate(prefix []byte, fn func(key, value []byte) bool) {
	keys := make([]string, 0, len(sn.data))
	for k := range sn.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !fn([]byte(k), sn.data[k]) {
			return
		}
	}
}

func (sn *memSnapshot) Release() {}
