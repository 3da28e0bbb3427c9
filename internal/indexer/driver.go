// Package indexer runs the per-block driver loop: decode protostones, invoke
// the message handler, persist outpoint balances and traces, and
// detect/rewind reorgs — all under one atomic batch per block.
package indexer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/sirupsen/logrus"

	"github.com/alkanes-io/alkanes/internal/alkaneid"
	"github.com/alkanes-io/alkanes/internal/balance"
	"github.com/alkanes-io/alkanes/internal/execution"
	"github.com/alkanes-io/alkanes/internal/handler"
	"github.com/alkanes-io/alkanes/internal/hostabi"
	"github.com/alkanes-io/alkanes/internal/kvstore"
	"github.com/alkanes-io/alkanes/internal/runetx"
)

// defaultMaxProtostonesPerTx bounds an unbounded protostone count to
// something the driver won't choke on; configurable, defaults large.
const defaultMaxProtostonesPerTx = 10_000

// ErrReorgTooDeep is returned when walking back to a fork point would
// exceed the configured max reorg depth.
var ErrReorgTooDeep = errors.New("indexer: reorg exceeds configured max depth")

// HeaderSource supplies the competing chain's block hash at a given
// height so the reorg detector can walk backward to the fork point. No
// Bitcoin consensus validation of any kind is performed against it — it is
// purely a hash lookup the driver compares against its own stored history.
type HeaderSource interface {
	BlockHashAt(height uint64) (chainhash.Hash, error)
}

// Driver owns the indexed state root and runs blocks through the message
// handler to completion, one atomic batch at a time.
type Driver struct {
	Store    kvstore.KVStore
	Root     kvstore.Pointer
	Seq      *handler.Sequence
	Bytecode handler.BytecodeStore
	Handler  *handler.Handler

	GenesisTable        handler.GenesisTable
	MaxReorgDepth       uint64
	MaxProtostonesPerTx int

	log *logrus.Entry
}

// NewDriver wires a fresh Driver over store: a bytecode registry, sequence
// counter, and message handler all rooted under a shared atomic pointer,
// so every effect of a block — bytecode, balances, runtime state — commits
// or rolls back together.
func NewDriver(store kvstore.KVStore, fuelPerMessage uint64, genesisTable handler.GenesisTable, maxReorgDepth uint64) *Driver {
	root := kvstore.NewPointer(store, []byte("alkanes/"))
	seq := handler.NewSequence(root.Keyword("sequence"))
	bytecode := handler.NewBytecodeStore(root.Keyword("bytecode"))
	h := &handler.Handler{
		Store:          root,
		Bytecode:       bytecode,
		Seq:            seq,
		Sandbox:        hostabi.NewSandbox(),
		FuelPerMessage: fuelPerMessage,
	}
	return &Driver{
		Store:               store,
		Root:                root,
		Seq:                 seq,
		Bytecode:            bytecode,
		Handler:             h,
		GenesisTable:        genesisTable,
		MaxReorgDepth:       maxReorgDepth,
		MaxProtostonesPerTx: defaultMaxProtostonesPerTx,
		log:                 logrus.WithField("component", "indexer"),
	}
}

const (
	heightKeyword           = "height"
	blockHashKeyword        = "block_hash"
	sequenceSnapshotKeyword = "sequence_snapshot"
	reorgLogKeyword         = "reorg_log"
	traceIndexKeyword       = "trace_index"
	traceKeyword            = "traces"
	outpointBalanceKeyword  = "outpoint_balances"
	outpointIdsKeyword      = "outpoint_balance_ids"
	addressIndexKeyword     = "address_index"
)

func (d *Driver) heightPointer() kvstore.Pointer { return d.Root.Keyword(heightKeyword) }
func (d *Driver) blockHashPointer(h uint64) kvstore.Pointer {
	return d.Root.Keyword(blockHashKeyword).SelectValue(h)
}
func (d *Driver) sequenceSnapshotPointer(h uint64) kvstore.Pointer {
	return d.Root.Keyword(sequenceSnapshotKeyword).SelectValue(h)
}
func (d *Driver) reorgLogPointer(h uint64) kvstore.Pointer {
	return d.Root.Keyword(reorgLogKeyword).SelectValue(h)
}
func (d *Driver) traceIndexPointer(h uint64) kvstore.Pointer {
	return d.Root.Keyword(traceIndexKeyword).SelectValue(h)
}
func (d *Driver) tracePointer(op runetx.OutPoint) (kvstore.Pointer, error) {
	b, err := runetx.ConsensusEncode(op)
	if err != nil {
		return kvstore.Pointer{}, err
	}
	return d.Root.Keyword(traceKeyword).Select(b), nil
}
func (d *Driver) outpointBalancePointer(op runetx.OutPoint) (kvstore.Pointer, error) {
	b, err := runetx.ConsensusEncode(op)
	if err != nil {
		return kvstore.Pointer{}, err
	}
	return d.Root.Keyword(outpointBalanceKeyword).Select(b), nil
}

// addressIndexPointer roots the vector of outpoints ever seen paying to
// script (a raw scriptPubKey, used verbatim as the index key since alkanes
// has no address-decoding of its own — callers resolve an address to its
// script before querying, or query by script directly).
func (d *Driver) addressIndexPointer(script []byte) kvstore.Pointer {
	return d.Root.Keyword(addressIndexKeyword).Select(script)
}

// outpointIdsPointer roots the vector of rune ids ever written to op's
// persisted balance — a companion index letting the view layer enumerate
// a sheet's contents without a prefix scan.
func (d *Driver) outpointIdsPointer(op runetx.OutPoint) (kvstore.Pointer, error) {
	b, err := runetx.ConsensusEncode(op)
	if err != nil {
		return kvstore.Pointer{}, err
	}
	return d.Root.Keyword(outpointIdsKeyword).Select(b), nil
}

// IndexedHeight returns the last height fully committed to the backend.
func (d *Driver) IndexedHeight() uint64 { return d.heightPointer().GetValue() }

// IndexBlock runs block (at height) through the handler to completion and
// commits every effect in one atomic batch. If block's declared
// previous-block hash does not match what this driver has stored for
// height-1, it first rewinds to the fork point via headers before indexing
// proceeds.
func (d *Driver) IndexBlock(height uint64, block *wire.MsgBlock, headers HeaderSource) error {
	if height > 0 {
		stored := d.blockHashPointer(height - 1).Get()
		prev := block.Header.PrevBlock
		if len(stored) == chainhash.HashSize && !bytes.Equal(stored, prev[:]) {
			fork, err := d.reorg(height-1, headers)
			if err != nil {
				return fmt.Errorf("indexer: reorg at height %d: %w", height, err)
			}
			d.log.WithFields(logrus.Fields{"height": height, "fork_point": fork}).Warn("reorg rewound indexed state")
		}
	}

	if height == d.GenesisTable.Height {
		if err := handler.RunGenesis(d.GenesisTable, d.Bytecode); err != nil {
			return fmt.Errorf("indexer: genesis at height %d: %w", height, err)
		}
	}

	blockBalances := map[runetx.OutPoint]*balance.Sheet{}
	var blockTraces []tracedOutpoint

	for txIndex, tx := range block.Transactions {
		traces, err := d.indexTransaction(height, txIndex, tx, blockBalances)
		if err != nil {
			return fmt.Errorf("indexer: tx %d at height %d: %w", txIndex, height, err)
		}
		blockTraces = append(blockTraces, traces...)
	}

	for op, sheet := range blockBalances {
		ptr, err := d.outpointBalancePointer(op)
		if err != nil {
			return err
		}
		sheet.CommitToPointer(ptr)
		if sheet.IsEmpty() {
			continue
		}
		idsPtr, err := d.outpointIdsPointer(op)
		if err != nil {
			return err
		}
		for _, id := range sheet.Ids() {
			idsPtr.Append(id.Bytes())
		}
		if script := scriptForOutpoint(block, op); len(script) > 0 {
			opBytes, err := runetx.ConsensusEncode(op)
			if err != nil {
				return err
			}
			d.addressIndexPointer(script).Append(opBytes)
		}
	}

	for _, t := range blockTraces {
		ptr, err := d.tracePointer(t.outpoint)
		if err != nil {
			return err
		}
		ptr.Set(t.trace.Encode())
		opBytes, err := runetx.ConsensusEncode(t.outpoint)
		if err != nil {
			return err
		}
		d.traceIndexPointer(height).Append(opBytes)
	}

	blockHash := block.BlockHash()
	d.blockHashPointer(height).Set(blockHash[:])
	d.sequenceSnapshotPointer(height).SetValue(d.Seq.Current())
	d.heightPointer().SetValue(height)

	if err := d.writeReorgLog(height); err != nil {
		return fmt.Errorf("indexer: write reorg log at height %d: %w", height, err)
	}

	if err := d.Root.Flush(); err != nil {
		return fmt.Errorf("indexer: flush height %d: %w", height, err)
	}
	d.log.WithField("height", height).Info("indexed block")
	return nil
}

// scriptForOutpoint looks up the scriptPubKey op.Index pays to within
// block's own transactions, for indexing freshly-created balances by
// address. Returns nil if op doesn't name an output of this block (it
// never should, since blockBalances is only ever keyed by this block's
// own transaction hashes).
func scriptForOutpoint(block *wire.MsgBlock, op runetx.OutPoint) []byte {
	for _, tx := range block.Transactions {
		if tx.TxHash() != op.Hash {
			continue
		}
		if int(op.Index) >= len(tx.TxOut) {
			return nil
		}
		return tx.TxOut[op.Index].PkScript
	}
	return nil
}

type tracedOutpoint struct {
	outpoint runetx.OutPoint
	trace    *execution.Trace
}

// indexTransaction decodes tx's protostones, consumes the rune balance its
// inputs carried forward, redistributes it per edict, and runs every
// alkanes-scoped message to completion.
func (d *Driver) indexTransaction(height uint64, txIndex int, tx *wire.MsgTx, blockBalances map[runetx.OutPoint]*balance.Sheet) ([]tracedOutpoint, error) {
	data, ok := runetx.FindRunestoneOutput(tx)
	if !ok {
		return nil, nil
	}
	stones, err := runetx.ProtostonesFromPayload(data)
	if err != nil || len(stones) == 0 {
		return nil, nil
	}
	if len(stones) > d.MaxProtostonesPerTx {
		d.log.WithFields(logrus.Fields{"height": height, "tx_index": txIndex, "count": len(stones)}).
			Warn("protostone count exceeds per-tx cap, truncating")
		stones = stones[:d.MaxProtostonesPerTx]
	}

	input, err := d.consumeInputSheet(tx, collectEdictIDs(stones))
	if err != nil {
		return nil, err
	}

	txByOutput := balance.ByOutput{}
	for _, stone := range stones {
		if !stone.IsAlkanes() {
			continue
		}
		for _, e := range stone.Edicts {
			if err := input.Decrease(e.ID, e.Amount); err != nil {
				// Insufficient carried-forward balance for this edict:
				// skip it rather than aborting the whole transaction —
				// edicts pre-position whatever balance actually exists.
				continue
			}
			credit := balance.NewSheet()
			if err := credit.Increase(e.ID, e.Amount); err != nil {
				return nil, err
			}
			if err := balance.IncreaseUsingSheet(txByOutput, credit, e.Output); err != nil {
				return nil, err
			}
		}
	}

	if defaultVout := firstNonOPReturnVout(tx); defaultVout != nil && !input.IsEmpty() {
		if err := balance.IncreaseUsingSheet(txByOutput, input, *defaultVout); err != nil {
			return nil, err
		}
	}

	txHash := tx.TxHash()
	var traces []tracedOutpoint
	for _, stone := range stones {
		if !stone.IsAlkanes() {
			continue
		}
		vout := messageVout(stone, firstNonOPReturnVout(tx))
		incoming, ok := txByOutput[vout]
		if !ok {
			incoming = balance.NewSheet()
		}
		parcel := handler.MessageContextParcel{
			Tx:                   tx,
			Height:               height,
			TxIndex:              txIndex,
			Vout:                 vout,
			PointerVout:          stone.Pointer,
			RefundVout:           stone.Refund,
			FirstNonOPReturnVout: firstNonOPReturnVout(tx),
			Incoming:             incoming,
		}
		trace, err := d.Handler.Handle(parcel, stone, txByOutput)
		if err != nil {
			return nil, err
		}
		if trace != nil {
			traces = append(traces, tracedOutpoint{
				outpoint: wire.OutPoint{Hash: txHash, Index: vout},
				trace:    trace,
			})
		}
	}

	for vout, sheet := range txByOutput {
		blockBalances[wire.OutPoint{Hash: txHash, Index: vout}] = sheet
	}
	return traces, nil
}

// consumeInputSheet loads and clears every id in idHint from the persisted
// balance of each of tx's previous outpoints, returning their sum — the
// rune balance this transaction's edicts are entitled to redistribute.
func (d *Driver) consumeInputSheet(tx *wire.MsgTx, idHint []alkaneid.ProtoruneRuneId) (*balance.Sheet, error) {
	combined := balance.NewSheet()
	for _, in := range tx.TxIn {
		ptr, err := d.outpointBalancePointer(in.PreviousOutPoint)
		if err != nil {
			return nil, err
		}
		sheet, err := balance.LoadFromPointer(ptr, idHint)
		if err != nil {
			return nil, err
		}
		if err := combined.Merge(sheet); err != nil {
			return nil, err
		}
		sheet.ClearOnPointer(ptr)
	}
	return combined, nil
}

// collectEdictIDs gathers every rune id named by an edict across stones —
// the only ids a transaction's inputs could plausibly carry a balance in,
// used as the LoadFromPointer hint since the pointer abstraction has no
// native prefix scan.
func collectEdictIDs(stones []runetx.Protostone) []alkaneid.ProtoruneRuneId {
	seen := map[alkaneid.ProtoruneRuneId]struct{}{}
	var ids []alkaneid.ProtoruneRuneId
	for _, s := range stones {
		for _, e := range s.Edicts {
			if _, ok := seen[e.ID]; ok {
				continue
			}
			seen[e.ID] = struct{}{}
			ids = append(ids, e.ID)
		}
	}
	return ids
}

// firstNonOPReturnVout returns the index of tx's first output whose script
// is not an OP_RETURN, or nil if every output is. It is both the default
// landing spot for edict leftovers and the fallback refund target.
func firstNonOPReturnVout(tx *wire.MsgTx) *uint32 {
	for i, out := range tx.TxOut {
		if len(out.PkScript) > 0 && out.PkScript[0] == 0x6a { // OP_RETURN
			continue
		}
		v := uint32(i)
		return &v
	}
	return nil
}

// messageVout resolves the outpoint a protostone's message runs against:
// its own declared pointer vout if present, else the transaction's default
// output.
func messageVout(stone runetx.Protostone, defaultVout *uint32) uint32 {
	if stone.Pointer != nil {
		return *stone.Pointer
	}
	if defaultVout != nil {
		return *defaultVout
	}
	return 0
}

func (d *Driver) writeReorgLog(height uint64) error {
	staged, err := d.Root.StagedWrites()
	if err != nil {
		return err
	}
	logPtr := d.reorgLogPointer(height)
	for key := range staged {
		prior := d.Root.BackingGet([]byte(key))
		logPtr.Append(encodeLogEntry([]byte(key), prior))
	}
	return nil
}

func encodeLogEntry(key, value []byte) []byte {
	var tmp [4]byte
	buf := make([]byte, 0, 8+len(key)+len(value))
	binary.LittleEndian.PutUint32(tmp[:], uint32(len(key)))
	buf = append(buf, tmp[:]...)
	buf = append(buf, key...)
	binary.LittleEndian.PutUint32(tmp[:], uint32(len(value)))
	buf = append(buf, tmp[:]...)
	buf = append(buf, value...)
	return buf
}

func decodeLogEntry(b []byte) (key, value []byte, err error) {
	if len(b) < 4 {
		return nil, nil, fmt.Errorf("indexer: truncated reorg log entry")
	}
	keyLen := int(binary.LittleEndian.Uint32(b))
	b = b[4:]
	if len(b) < keyLen+4 {
		return nil, nil, fmt.Errorf("indexer: truncated reorg log entry")
	}
	key = b[:keyLen]
	b = b[keyLen:]
	valLen := int(binary.LittleEndian.Uint32(b))
	b = b[4:]
	if len(b) < valLen {
		return nil, nil, fmt.Errorf("indexer: truncated reorg log entry")
	}
	value = b[:valLen]
	return key, value, nil
}
