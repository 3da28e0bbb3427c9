package kvstore

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// cache is the shared, in-process staging area every Pointer derived from
// the same root sees. It holds a stack of frames; the bottom frame (index
// 0) is the only one ever flushed to the backing KVStore. Checkpoints push
// a new frame; commit folds the top frame down into its parent; rollback
// truncates the stack back to a given depth.
type cache struct {
	mu     sync.Mutex
	store  KVStore
	frames []map[string][]byte
}

func newCache(store KVStore) *cache {
	return &cache{store: store, frames: []map[string][]byte{make(map[string][]byte)}}
}

// checkpoint pushes a new stage frame and returns its depth (the index
// rollback must be called with to undo exactly this frame and any nested
// inside it).
func (c *cache) checkpoint() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, make(map[string][]byte))
	return len(c.frames) - 1
}

// commit folds the top frame into the one beneath it. Calling commit with
// only the base frame present is a no-op guard (nothing to fold).
func (c *cache) commit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) < 2 {
		return
	}
	top := c.frames[len(c.frames)-1]
	c.frames = c.frames[:len(c.frames)-1]
	parent := c.frames[len(c.frames)-1]
	for k, v := range top {
		parent[k] = v
	}
}

// rollback discards the frame at depth and every frame above it, so
// subsequent reads no longer see writes staged since the matching
// checkpoint.
func (c *cache) rollback(depth int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if depth < 1 || depth >= len(c.frames) {
		return
	}
	c.frames = c.frames[:depth]
}

func (c *cache) set(path []byte, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	c.frames[len(c.frames)-1][string(path)] = cp
}

func (c *cache) get(path []byte) []byte {
	c.mu.Lock()
	key := string(path)
	for i := len(c.frames) - 1; i >= 0; i-- {
		if v, ok := c.frames[i][key]; ok {
			c.mu.Unlock()
			return v
		}
	}
	c.mu.Unlock()
	v, err := c.store.Get(path)
	if err != nil {
		return nil
	}
	return v
}

// stagedWrites returns a copy of the base frame's pending writes. It is an
// error to call while any checkpoint is still open, mirroring flush.
func (c *cache) stagedWrites() (map[string][]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) != 1 {
		return nil, fmt.Errorf("kvstore: staged writes with %d open checkpoint(s)", len(c.frames)-1)
	}
	out := make(map[string][]byte, len(c.frames[0]))
	for k, v := range c.frames[0] {
		out[k] = v
	}
	return out, nil
}

// flush writes the base frame to the backing KVStore as a single atomic
// batch. It is an error to call flush while any checkpoint is still open —
// the caller must commit or roll back every nested frame first.
func (c *cache) flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) != 1 {
		return fmt.Errorf("kvstore: flush with %d open checkpoint(s)", len(c.frames)-1)
	}
	base := c.frames[0]
	if len(base) == 0 {
		return nil
	}
	batch := c.store.NewBatch()
	for k, v := range base {
		if len(v) == 0 {
			batch.Delete([]byte(k))
		} else {
			batch.Put([]byte(k), v)
		}
	}
	if err := batch.Write(); err != nil {
		return err
	}
	c.frames[0] = make(map[string][]byte)
	return nil
}

// Pointer is a hierarchical, transactional view over a KVStore.
// Select/SelectValue/Keyword derive child pointers by appending
// encoded bytes to the path — pure, no I/O. Get/Set/Length/Append/Nth touch
// the shared cache (and, on miss, the backing store).
type Pointer struct {
	cache *cache
	path  []byte
}

// NewPointer roots a fresh Pointer tree at the given key prefix over store.
func NewPointer(store KVStore, prefix []byte) Pointer {
	p := make([]byte, len(prefix))
	copy(p, prefix)
	return Pointer{cache: newCache(store), path: p}
}

// Select derives a child pointer by appending key to the path.
func (p Pointer) Select(key []byte) Pointer {
	child := make([]byte, len(p.path)+len(key))
	copy(child, p.path)
	copy(child[len(p.path):], key)
	return Pointer{cache: p.cache, path: child}
}

// SelectValue derives a child pointer keyed by a little-endian u64.
func (p Pointer) SelectValue(v uint64) Pointer {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return p.Select(b[:])
}

// Keyword derives a child pointer keyed by a UTF-8 keyword.
func (p Pointer) Keyword(s string) Pointer { return p.Select([]byte(s)) }

// Get returns the value staged or stored at this path, or an empty slice if
// absent.
func (p Pointer) Get() []byte {
	v := p.cache.get(p.path)
	if v == nil {
		return []byte{}
	}
	return v
}

// Set stages a write at this path in the current frame.
func (p Pointer) Set(value []byte) { p.cache.set(p.path, value) }

// SetValue stages a little-endian u64 at this path.
func (p Pointer) SetValue(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	p.Set(b[:])
}

// GetValue reads this path as a little-endian u64; absent reads as 0.
func (p Pointer) GetValue() uint64 {
	v := p.Get()
	if len(v) == 0 {
		return 0
	}
	var padded [8]byte
	copy(padded[:], v)
	return binary.LittleEndian.Uint64(padded[:])
}

const lengthKeyword = "/length"

// Length returns the number of elements in this pointer's vector keyspace.
func (p Pointer) Length() uint64 { return p.Keyword(lengthKeyword).GetValue() }

// Append pushes value onto the end of this pointer's vector keyspace and
// returns the index it was written at.
func (p Pointer) Append(value []byte) uint64 {
	idx := p.Length()
	p.Nth(idx).Set(value)
	p.Keyword(lengthKeyword).SetValue(idx + 1)
	return idx
}

// Nth derives the child pointer for the i'th element of this pointer's
// vector keyspace.
func (p Pointer) Nth(i uint64) Pointer { return p.SelectValue(i) }

// Checkpoint opens a new nested transactional frame and returns a token
// Commit/Rollback use to fold or discard exactly that frame (and anything
// nested inside it).
func (p Pointer) Checkpoint() int { return p.cache.checkpoint() }

// Commit folds the most recently opened checkpoint frame into its parent.
func (p Pointer) Commit() { p.cache.commit() }

// Rollback discards every frame opened since (and including) the frame
// identified by depth.
func (p Pointer) Rollback(depth int) { p.cache.rollback(depth) }

// Flush persists the root frame to the backing KVStore as one atomic batch.
// It fails if any checkpoint is still open.
func (p Pointer) Flush() error { return p.cache.flush() }

// StagedWrites returns a copy of every (path, value) pending in the root
// frame — the source material for the reorg detector's inverse log, written
// on each block commit. It fails if any checkpoint is still open.
func (p Pointer) StagedWrites() (map[string][]byte, error) { return p.cache.stagedWrites() }

// SetAbsolute stages a write at an arbitrary absolute path sharing this
// pointer's backing cache, bypassing path derivation — used by the reorg
// detector to replay an inverse log of (path, prior value) entries
// captured via StagedWrites.
func (p Pointer) SetAbsolute(path, value []byte) { p.cache.set(path, value) }

// BackingGet reads key directly from the pointer's backing KVStore,
// bypassing the staged-frame cache — used to capture a key's pre-write
// value for the reorg inverse log before it is overwritten by the pending
// flush.
func (p Pointer) BackingGet(key []byte) []byte {
	v, err := p.cache.store.Get(key)
	if err != nil {
		return nil
	}
	return v
}
