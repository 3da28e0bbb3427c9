// Package handler implements the per-protostone message handler: target
// resolution, the atomic-pointer checkpoint/commit/rollback dance around
// WASM execution, and the sequence counter and genesis bootstrap that back
// new-alkane creation.
package handler

import "github.com/alkanes-io/alkanes/internal/kvstore"

// Sequence is the global monotonic counter allocating the tx field of
// newly created alkanes. It is a thin view over the `/sequence` pointer so
// its value is staged and rolled back exactly like any other piece of
// indexed state.
type Sequence struct {
	ptr kvstore.Pointer
}

// NewSequence roots a Sequence counter at ptr.
func NewSequence(ptr kvstore.Pointer) *Sequence {
	return &Sequence{ptr: ptr}
}

// Next advances the counter and returns its new value — the first call
// against a fresh pointer returns 1, not 0, so the first alkane ever
// created is (2,1).
func (s *Sequence) Next() uint64 {
	v := s.ptr.GetValue() + 1
	s.ptr.SetValue(v)
	return v
}

// Current returns the counter's value without advancing it.
func (s *Sequence) Current() uint64 {
	return s.ptr.GetValue()
}

// RestoreTo resets the counter to v — used by reorg rewind to put the
// counter back to its value at the fork point.
func (s *Sequence) RestoreTo(v uint64) {
	s.ptr.SetValue(v)
}
