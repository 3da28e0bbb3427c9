package indexer

import (
	"github.com/alkanes-io/alkanes/internal/kvstore"
	"github.com/alkanes-io/alkanes/internal/runetx"
)

// The exported wrappers below give the view package read access to the
// driver's pointer namespace without exposing the namespace layout itself
// — view never derives a path by hand, only through these accessors.

// OutpointBalancePointer exposes the persisted-balance subtree for op.
func (d *Driver) OutpointBalancePointer(op runetx.OutPoint) (kvstore.Pointer, error) {
	return d.outpointBalancePointer(op)
}

// OutpointIdsPointer exposes the companion rune-id index for op.
func (d *Driver) OutpointIdsPointer(op runetx.OutPoint) (kvstore.Pointer, error) {
	return d.outpointIdsPointer(op)
}

// AddressIndexPointer exposes the vector of outpoints ever seen paying to
// script.
func (d *Driver) AddressIndexPointer(script []byte) kvstore.Pointer {
	return d.addressIndexPointer(script)
}

// TracePointer exposes the persisted trace for op.
func (d *Driver) TracePointer(op runetx.OutPoint) (kvstore.Pointer, error) {
	return d.tracePointer(op)
}

// TraceIndexPointer exposes the vector of outpoints traced at height.
func (d *Driver) TraceIndexPointer(height uint64) kvstore.Pointer {
	return d.traceIndexPointer(height)
}

// BlockHash returns the stored block hash for height, or nil if absent.
func (d *Driver) BlockHash(height uint64) []byte {
	if v := d.blockHashPointer(height).Get(); len(v) > 0 {
		return v
	}
	return nil
}

// SequenceSnapshot returns the sequence-counter snapshot stored for
// height, little-endian encoded, or an empty slice if absent.
func (d *Driver) SequenceSnapshot(height uint64) []byte {
	return d.sequenceSnapshotPointer(height).Get()
}
