package handler

import (
	"github.com/alkanes-io/alkanes/internal/alkaneid"
	"github.com/alkanes-io/alkanes/internal/kvstore"
)

// BytecodeStore is a thin view over a pointer subtree holding
// gzip-compressed WASM per contract id, keyed by the id's 32-byte encoding.
type BytecodeStore struct {
	ptr kvstore.Pointer
}

// NewBytecodeStore roots a BytecodeStore at ptr.
func NewBytecodeStore(ptr kvstore.Pointer) BytecodeStore {
	return BytecodeStore{ptr: ptr}
}

// Get returns the compressed bytecode stored for id, or nil if absent.
func (b BytecodeStore) Get(id alkaneid.AlkaneId) []byte {
	v := b.ptr.Select(id.Bytes()).Get()
	if len(v) == 0 {
		return nil
	}
	return v
}

// Set stages compressed bytecode for id. It never overwrites: an id that
// already has bytecode keeps it.
func (b BytecodeStore) Set(id alkaneid.AlkaneId, compressed []byte) {
	if b.Has(id) {
		return
	}
	b.ptr.Select(id.Bytes()).Set(compressed)
}

// Has reports whether id has any bytecode registered.
func (b BytecodeStore) Has(id alkaneid.AlkaneId) bool {
	return len(b.Get(id)) > 0
}
