package indexer

import (
	"testing"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/alkanes-io/alkanes/internal/alkaneid"
	"github.com/alkanes-io/alkanes/internal/balance"
	"github.com/alkanes-io/alkanes/internal/handler"
	"github.com/alkanes-io/alkanes/internal/hostabi"
	"github.com/alkanes-io/alkanes/internal/kvstore"
	"github.com/alkanes-io/alkanes/internal/runetx"
	"github.com/alkanes-io/alkanes/internal/u128"
)

func vout(v uint32) *uint32 { return &v }

func newTestDriver(t *testing.T) *Driver {
	t.Helper()
	store := kvstore.NewInMemoryStore()
	return NewDriver(store, 1_000_000, handler.GenesisTable{}, 100)
}

// seedOutpointBalance writes a balance directly to op's persisted subtree
// and flushes it, simulating an outpoint this driver indexed in a prior
// block — the starting point consumeInputSheet reads from.
func seedOutpointBalance(t *testing.T, d *Driver, op runetx.OutPoint, id alkaneid.ProtoruneRuneId, amount uint64) {
	t.Helper()
	ptr, err := d.OutpointBalancePointer(op)
	if err != nil {
		t.Fatalf("outpoint balance pointer: %v", err)
	}
	sheet := balance.NewSheet()
	if err := sheet.Increase(id, u128.FromUint64(amount)); err != nil {
		t.Fatalf("seed increase: %v", err)
	}
	sheet.CommitToPointer(ptr)
	idsPtr, err := d.outpointIdsPointer(op)
	if err != nil {
		t.Fatalf("ids pointer: %v", err)
	}
	idsPtr.Append(id.Bytes())
	if err := d.Root.Flush(); err != nil {
		t.Fatalf("seed flush: %v", err)
	}
}

func nonOPReturnScript() []byte {
	return []byte{0x51} // OP_TRUE, an arbitrary non-OP_RETURN script
}

func TestIndexBlockAppliesEdictAndRecordsHeight(t *testing.T) {
	d := newTestDriver(t)
	runeID := alkaneid.ProtoruneRuneId{Block: 2, Tx: 1}

	fundingTx := wire.NewMsgTx(wire.TxVersion)
	fundingTx.AddTxOut(wire.NewTxOut(0, nonOPReturnScript()))
	fundingOp := wire.OutPoint{Hash: fundingTx.TxHash(), Index: 0}
	seedOutpointBalance(t, d, fundingOp, runeID, 500)

	stones := []runetx.Protostone{{
		ProtocolTag: runetx.AlkanesProtocolTag,
		Edicts: []runetx.Edict{
			{ID: runeID, Amount: u128.FromUint64(500), Output: 1},
		},
	}}
	script, err := runetx.BuildRunestoneScript(stones)
	if err != nil {
		t.Fatalf("build runestone script: %v", err)
	}

	spendTx := wire.NewMsgTx(wire.TxVersion)
	spendTx.AddTxIn(wire.NewTxIn(&fundingOp, nil, nil))
	spendTx.AddTxOut(wire.NewTxOut(0, script))
	spendTx.AddTxOut(wire.NewTxOut(0, nonOPReturnScript()))

	block := &wire.MsgBlock{Transactions: []*wire.MsgTx{fundingTx, spendTx}}
	blockHash := block.BlockHash()
	block.Header.PrevBlock = blockHash // height 0, no prior-block check

	if err := d.IndexBlock(0, block, nil); err != nil {
		t.Fatalf("index block: %v", err)
	}
	if got := d.IndexedHeight(); got != 0 {
		t.Fatalf("indexed height: got %d want 0", got)
	}

	spendOp := wire.OutPoint{Hash: spendTx.TxHash(), Index: 1}
	ptr, err := d.OutpointBalancePointer(spendOp)
	if err != nil {
		t.Fatalf("outpoint balance pointer: %v", err)
	}
	loaded, err := balance.LoadFromPointer(ptr, []alkaneid.ProtoruneRuneId{runeID})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := loaded.Get(runeID); got.Cmp(u128.FromUint64(500)) != 0 {
		t.Fatalf("edict output balance: got %v want 500", got)
	}

	// The spent outpoint's own balance should have been cleared.
	fundingPtr, err := d.OutpointBalancePointer(fundingOp)
	if err != nil {
		t.Fatalf("funding outpoint pointer: %v", err)
	}
	spent, err := balance.LoadFromPointer(fundingPtr, []alkaneid.ProtoruneRuneId{runeID})
	if err != nil {
		t.Fatalf("load spent: %v", err)
	}
	if got := spent.Get(runeID); !got.IsZero() {
		t.Fatalf("spent outpoint balance should be cleared, got %v", got)
	}
}

func TestFirstNonOPReturnVoutSkipsOPReturn(t *testing.T) {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxOut(wire.NewTxOut(0, []byte{0x6a, 0x00}))
	tx.AddTxOut(wire.NewTxOut(0, nonOPReturnScript()))

	got := firstNonOPReturnVout(tx)
	if got == nil || *got != 1 {
		t.Fatalf("expected vout 1, got %v", got)
	}
}

func TestFirstNonOPReturnVoutAllOPReturn(t *testing.T) {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxOut(wire.NewTxOut(0, []byte{0x6a}))

	if got := firstNonOPReturnVout(tx); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestMessageVoutPrefersStonePointer(t *testing.T) {
	stone := runetx.Protostone{Pointer: vout(3)}
	if got := messageVout(stone, vout(1)); got != 3 {
		t.Fatalf("got %d want 3", got)
	}
	stone2 := runetx.Protostone{}
	if got := messageVout(stone2, vout(1)); got != 1 {
		t.Fatalf("got %d want 1", got)
	}
	if got := messageVout(stone2, nil); got != 0 {
		t.Fatalf("got %d want 0", got)
	}
}

// buildWitnessEnvelope wraps payload in the taproot `OP_FALSE OP_IF ...
// OP_ENDIF` inscription envelope witness.FindPayload scans for.
func buildWitnessEnvelope(t *testing.T, payload []byte) []byte {
	t.Helper()
	b := txscript.NewScriptBuilder()
	b.AddOp(txscript.OP_FALSE)
	b.AddOp(txscript.OP_IF)
	for off := 0; off < len(payload); off += 256 {
		end := off + 256
		if end > len(payload) {
			end = len(payload)
		}
		b.AddData(payload[off:end])
	}
	b.AddOp(txscript.OP_ENDIF)
	script, err := b.Script()
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	return script
}

// TestWitnessDeployAssignsFirstAlkaneId runs a (1,0) witness create end to
// end through IndexBlock and checks the freshly allocated id is (2,1), not
// (2,0) — the off-by-one AllocateID/Sequence previously had. The witness
// payload here is gzip-compressed but isn't a real executable WASM module,
// so the sandbox run fails at the magic-byte check and the message reverts
// — but resolveBytecode's AllocateID/Bytecode.Set already happened before
// Handle's checkpoint was opened, so the deploy itself still commits, the
// same way it would for a genuine module that later traps.
func TestWitnessDeployAssignsFirstAlkaneId(t *testing.T) {
	d := newTestDriver(t)

	cp := runetx.Cellpack{Target: alkaneid.AlkaneId{Block: alkaneid.TemplateBlock, Tx: 0}}
	stones := []runetx.Protostone{{ProtocolTag: runetx.AlkanesProtocolTag, Message: cp.Encode()}}
	script, err := runetx.BuildRunestoneScript(stones)
	if err != nil {
		t.Fatalf("build runestone script: %v", err)
	}

	payload, err := hostabi.Compress([]byte("deploy bookkeeping stand-in, not a real wasm module"))
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	envelope := buildWitnessEnvelope(t, payload)

	tx := wire.NewMsgTx(wire.TxVersion)
	in := wire.NewTxIn(&wire.OutPoint{}, nil, nil)
	in.Witness = wire.TxWitness{envelope}
	tx.AddTxIn(in)
	tx.AddTxOut(wire.NewTxOut(0, script))
	tx.AddTxOut(wire.NewTxOut(0, nonOPReturnScript()))

	block := &wire.MsgBlock{Transactions: []*wire.MsgTx{tx}}
	block.Header.PrevBlock = block.BlockHash() // height 0, no prior-block check

	if err := d.IndexBlock(0, block, nil); err != nil {
		t.Fatalf("index block: %v", err)
	}

	if got := d.Seq.Current(); got != 1 {
		t.Fatalf("sequence after first deploy: got %d want 1", got)
	}
	deployed := alkaneid.AlkaneId{Block: alkaneid.RuntimeBlock, Tx: 1}
	if got := d.Bytecode.Get(deployed); string(got) != string(payload) {
		t.Fatalf("bytecode at (2,1): got %q want %q", got, payload)
	}
}

func TestCollectEdictIDsDeduplicates(t *testing.T) {
	a := alkaneid.ProtoruneRuneId{Block: 2, Tx: 1}
	b := alkaneid.ProtoruneRuneId{Block: 2, Tx: 2}
	stones := []runetx.Protostone{
		{Edicts: []runetx.Edict{{ID: a, Amount: u128.FromUint64(1)}, {ID: b, Amount: u128.FromUint64(1)}}},
		{Edicts: []runetx.Edict{{ID: a, Amount: u128.FromUint64(1)}}},
	}
	ids := collectEdictIDs(stones)
	if len(ids) != 2 {
		t.Fatalf("expected 2 unique ids, got %d", len(ids))
	}
}
