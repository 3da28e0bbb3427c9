// Package view implements the read-only query surface over an indexer's
// persisted state: balance lookups, trace retrieval, raw bytecode, a
// dry-run message simulator, and a per-height state commitment. Nothing in
// this package ever stages a write that survives
// its own call — simulate rolls back unconditionally, and every other
// method is a pure read.
package view

import (
	"fmt"
	"sort"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"

	"github.com/alkanes-io/alkanes/internal/alkaneid"
	"github.com/alkanes-io/alkanes/internal/balance"
	"github.com/alkanes-io/alkanes/internal/execution"
	"github.com/alkanes-io/alkanes/internal/handler"
	"github.com/alkanes-io/alkanes/internal/hostabi"
	"github.com/alkanes-io/alkanes/internal/indexer"
	"github.com/alkanes-io/alkanes/internal/runetx"
)

// View answers read-only queries against a driver's committed state.
type View struct {
	Driver *indexer.Driver
}

// New wraps driver in a View.
func New(driver *indexer.Driver) *View {
	return &View{Driver: driver}
}

// BalanceEntry is one (asset, amount) pair in a queried balance sheet.
type BalanceEntry struct {
	ID     alkaneid.ProtoruneRuneId
	Amount [2]uint64 // Lo, Hi words of the u128 amount
}

func entriesFromSheet(sheet *balance.Sheet) []BalanceEntry {
	out := make([]BalanceEntry, 0, len(sheet.Ids()))
	for _, id := range sheet.Ids() {
		v := sheet.Get(id)
		out = append(out, BalanceEntry{ID: id, Amount: [2]uint64{v.Lo, v.Hi}})
	}
	return out
}

// BalanceSheet returns op's persisted rune balances, reconstructed from the
// driver's companion id index (populated at block-commit time since the
// pointer abstraction has no native prefix scan).
func (v *View) BalanceSheet(op runetx.OutPoint) ([]BalanceEntry, error) {
	ids, err := v.outpointIds(op)
	if err != nil {
		return nil, err
	}
	ptr, err := v.Driver.OutpointBalancePointer(op)
	if err != nil {
		return nil, err
	}
	sheet, err := balance.LoadFromPointer(ptr, ids)
	if err != nil {
		return nil, err
	}
	return entriesFromSheet(sheet), nil
}

func (v *View) outpointIds(op runetx.OutPoint) ([]alkaneid.ProtoruneRuneId, error) {
	ptr, err := v.Driver.OutpointIdsPointer(op)
	if err != nil {
		return nil, err
	}
	n := ptr.Length()
	ids := make([]alkaneid.ProtoruneRuneId, 0, n)
	for i := uint64(0); i < n; i++ {
		id, err := alkaneid.ParseProtoruneRuneId(ptr.Nth(i).Get())
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// OutpointBalance pairs an outpoint with its balance sheet, returned by
// BalancesByAddress.
type OutpointBalance struct {
	Outpoint runetx.OutPoint
	Entries  []BalanceEntry
}

// BalancesByAddress returns every outpoint ever indexed paying to script,
// along with its current persisted balance — entries for outpoints
// already spent come back empty, since the indexer's consumeInputSheet clears a UTXO's
// balance the moment it's redistributed.
func (v *View) BalancesByAddress(script []byte) ([]OutpointBalance, error) {
	idxPtr := v.Driver.AddressIndexPointer(script)
	n := idxPtr.Length()
	out := make([]OutpointBalance, 0, n)
	for i := uint64(0); i < n; i++ {
		op, err := runetx.DecodeOutPoint(idxPtr.Nth(i).Get())
		if err != nil {
			return nil, err
		}
		entries, err := v.BalanceSheet(op)
		if err != nil {
			return nil, err
		}
		out = append(out, OutpointBalance{Outpoint: op, Entries: entries})
	}
	return out, nil
}

// Trace returns the decoded execution trace recorded at op, or nil if op
// never ran a message.
func (v *View) Trace(op runetx.OutPoint) (*execution.Trace, error) {
	ptr, err := v.Driver.TracePointer(op)
	if err != nil {
		return nil, err
	}
	raw := ptr.Get()
	if len(raw) == 0 {
		return nil, nil
	}
	trace, err := execution.DecodeTrace(raw)
	if err != nil {
		return nil, err
	}
	return &trace, nil
}

// TracesByHeight returns every outpoint that recorded a trace at height,
// in the order their messages ran.
func (v *View) TracesByHeight(height uint64) ([]runetx.OutPoint, error) {
	idxPtr := v.Driver.TraceIndexPointer(height)
	n := idxPtr.Length()
	out := make([]runetx.OutPoint, 0, n)
	for i := uint64(0); i < n; i++ {
		op, err := runetx.DecodeOutPoint(idxPtr.Nth(i).Get())
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, nil
}

// Bytecode returns the compressed WASM bytecode deployed at id, or nil if
// none is registered.
func (v *View) Bytecode(id alkaneid.AlkaneId) []byte {
	return v.Driver.Bytecode.Get(id)
}

// BytecodeRaw decompresses and returns id's guest module, or nil if none is
// registered.
func (v *View) BytecodeRaw(id alkaneid.AlkaneId) ([]byte, error) {
	compressed := v.Driver.Bytecode.Get(id)
	if compressed == nil {
		return nil, nil
	}
	return hostabi.Decompress(compressed)
}

// SimulateRequest is the caller-supplied context for a dry run: a raw
// cellpack plus context overrides, letting a view client substitute
// (transaction, height, incoming assets) without requiring a real on-chain
// protostone.
type SimulateRequest struct {
	Cellpack   []byte
	Context    handler.MessageContextParcel
	PointerVal *uint32 // overrides Context.PointerVout if set
	RefundVal  *uint32 // overrides Context.RefundVout if set
}

// SimulateResult reports a dry run's outcome without having mutated any
// persisted state.
type SimulateResult struct {
	Trace    *execution.Trace
	Response *execution.CallResponse
	Reverted bool
	Reason   string
}

// Simulate runs req's cellpack through the message handler against a
// checkpoint that is unconditionally rolled back, so no effect of the run
// — bytecode writes, sequence allocation, balance movement, trace
// persistence — ever reaches the backing store.
func (v *View) Simulate(req SimulateRequest) (*SimulateResult, error) {
	parcel := req.Context
	if req.PointerVal != nil {
		parcel.PointerVout = req.PointerVal
	}
	if req.RefundVal != nil {
		parcel.RefundVout = req.RefundVal
	}
	stone := runetx.Protostone{
		ProtocolTag: runetx.AlkanesProtocolTag,
		Message:     req.Cellpack,
		Pointer:     parcel.PointerVout,
		Refund:      parcel.RefundVout,
	}

	checkpoint := v.Driver.Root.Checkpoint()
	defer v.Driver.Root.Rollback(checkpoint)

	byOutput := balance.ByOutput{}
	if parcel.Incoming != nil {
		byOutput[parcel.Vout] = parcel.Incoming
	}

	trace, err := v.Driver.Handler.Handle(parcel, stone, byOutput)
	if err != nil {
		return nil, fmt.Errorf("view: simulate: %w", err)
	}
	result := &SimulateResult{Trace: trace}
	if trace == nil {
		return result, nil
	}
	last := trace.Events[len(trace.Events)-1]
	switch last.Kind {
	case execution.ReturnContext:
		resp, err := execution.DecodeCallResponse(last.Data)
		if err != nil {
			return nil, fmt.Errorf("view: simulate: decode response: %w", err)
		}
		result.Response = &resp
	case execution.RevertContext:
		result.Reverted = true
		result.Reason = string(last.Data)
	}
	return result, nil
}

// StateRoot computes a content-addressed commitment over three things
// height recorded: its block hash, its sequence-counter snapshot, and the
// ordered bytes of every trace it recorded. Outpoint balances, bytecode and
// contract storage written at height are not part of the digest. Ordering traces by their outpoint's
// consensus encoding keeps the digest a pure function of committed state,
// independent of map iteration order.
func (v *View) StateRoot(height uint64) (string, error) {
	ops, err := v.TracesByHeight(height)
	if err != nil {
		return "", err
	}
	sort.Slice(ops, func(i, j int) bool {
		a, _ := runetx.ConsensusEncode(ops[i])
		b, _ := runetx.ConsensusEncode(ops[j])
		return string(a) < string(b)
	})

	digestInput := append([]byte{}, v.Driver.BlockHash(height)...)
	digestInput = append(digestInput, v.Driver.SequenceSnapshot(height)...)
	for _, op := range ops {
		ptr, err := v.Driver.TracePointer(op)
		if err != nil {
			return "", err
		}
		digestInput = append(digestInput, ptr.Get()...)
	}

	sum, err := mh.Sum(digestInput, mh.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("view: state root: %w", err)
	}
	return cid.NewCidV1(cid.Raw, sum).String(), nil
}
