// Package alkaneid defines the two 32-byte identity types the rest of the
// indexer keys everything off of: AlkaneId (contract identity) and
// ProtoruneRuneId (fungible-asset identity). They share a wire shape but are
// kept as distinct Go types so a contract id can never silently be used where
// an asset id is expected.
package alkaneid

import (
	"encoding/binary"
	"fmt"
)

// AlkaneId identifies a contract instance or a reserved factory/template
// slot: (block, tx). Block ranges are consensus-meaningful:
//
//	block == 1   template slot, resolved to a concrete id at genesis
//	block == 2   runtime-deployed instance (tx allocated from the sequence counter)
//	block in {3,4,5,6} reserved factory/proxy slots
type AlkaneId struct {
	Block uint64
	Tx    uint64
}

// ProtoruneRuneId identifies a fungible asset. Same shape as AlkaneId, kept
// distinct to avoid category confusion between "what contract" and "what
// asset" in balance-sheet code.
type ProtoruneRuneId struct {
	Block uint64
	Tx    uint64
}

// Zero is the caller identity of a top-level message (no parent frame).
var Zero = AlkaneId{}

// Reserved factory-create slots.
const (
	TemplateBlock    uint64 = 1
	RuntimeBlock     uint64 = 2
	FactorySlotBegin uint64 = 3
	FactorySlotEnd   uint64 = 6
	AuthTokenSlot    uint64 = 6
)

// IsTemplate reports whether id names a genesis template slot.
func (id AlkaneId) IsTemplate() bool { return id.Block == TemplateBlock }

// IsRuntime reports whether id names a runtime-deployed instance.
func (id AlkaneId) IsRuntime() bool { return id.Block == RuntimeBlock }

// IsFactorySlot reports whether id names one of the reserved factory/proxy
// create slots (blocks 3..6 inclusive).
func (id AlkaneId) IsFactorySlot() bool {
	return id.Block >= FactorySlotBegin && id.Block <= FactorySlotEnd
}

// Less orders ids lexicographically over (block, tx).
func (id AlkaneId) Less(other AlkaneId) bool {
	if id.Block != other.Block {
		return id.Block < other.Block
	}
	return id.Tx < other.Tx
}

func (id AlkaneId) String() string { return fmt.Sprintf("%d:%d", id.Block, id.Tx) }

// Bytes serializes id as 32 bytes, little-endian block followed by
// little-endian tx, each padded to 16 bytes. Values above 64 bits are never
// produced by this indexer, so the low 8 bytes carry the value and the high
// 8 are always zero; this keeps the type a plain uint64 pair in Go while
// remaining byte-compatible with a u128 guest ABI.
func (id AlkaneId) Bytes() []byte {
	out := make([]byte, 32)
	binary.LittleEndian.PutUint64(out[0:8], id.Block)
	binary.LittleEndian.PutUint64(out[16:24], id.Tx)
	return out
}

// ParseAlkaneId reads the 32-byte wire shape produced by Bytes.
func ParseAlkaneId(b []byte) (AlkaneId, error) {
	if len(b) != 32 {
		return AlkaneId{}, fmt.Errorf("alkaneid: want 32 bytes, got %d", len(b))
	}
	return AlkaneId{
		Block: binary.LittleEndian.Uint64(b[0:8]),
		Tx:    binary.LittleEndian.Uint64(b[16:24]),
	}, nil
}

func (id ProtoruneRuneId) Less(other ProtoruneRuneId) bool {
	if id.Block != other.Block {
		return id.Block < other.Block
	}
	return id.Tx < other.Tx
}

func (id ProtoruneRuneId) String() string { return fmt.Sprintf("%d:%d", id.Block, id.Tx) }

func (id ProtoruneRuneId) Bytes() []byte {
	out := make([]byte, 32)
	binary.LittleEndian.PutUint64(out[0:8], id.Block)
	binary.LittleEndian.PutUint64(out[16:24], id.Tx)
	return out
}

func ParseProtoruneRuneId(b []byte) (ProtoruneRuneId, error) {
	if len(b) != 32 {
		return ProtoruneRuneId{}, fmt.Errorf("protoruneruneid: want 32 bytes, got %d", len(b))
	}
	return ProtoruneRuneId{
		Block: binary.LittleEndian.Uint64(b[0:8]),
		Tx:    binary.LittleEndian.Uint64(b[16:24]),
	}, nil
}

// AsRuneId reinterprets an AlkaneId's (block, tx) as a ProtoruneRuneId — an
// alkane's own token is identified by its contract id.
func (id AlkaneId) AsRuneId() ProtoruneRuneId {
	return ProtoruneRuneId{Block: id.Block, Tx: id.Tx}
}
