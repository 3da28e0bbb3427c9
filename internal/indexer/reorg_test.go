package indexer

import (
	"errors"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/alkanes-io/alkanes/internal/alkaneid"
	"github.com/alkanes-io/alkanes/internal/balance"
	"github.com/alkanes-io/alkanes/internal/runetx"
	"github.com/alkanes-io/alkanes/internal/u128"
)

// stubHeaders answers BlockHashAt from a fixed map, the way a driver would
// be fed headers from a local node's getblockhash RPC in production.
type stubHeaders map[uint64]chainhash.Hash

func (s stubHeaders) BlockHashAt(height uint64) (chainhash.Hash, error) {
	h, ok := s[height]
	if !ok {
		return chainhash.Hash{}, errors.New("reorg_test: unknown height")
	}
	return h, nil
}

// edictBlock builds a one-tx block spending from, redirecting amount of
// runeID to vout 2 via edict while any remainder lands on vout 1 (the
// default leftover destination) — the two destinations are kept distinct
// so a reorg test can track the edict-targeted outpoint in isolation.
func edictBlock(t *testing.T, prev chainhash.Hash, from runetx.OutPoint, runeID alkaneid.ProtoruneRuneId, amount uint64) *wire.MsgBlock {
	t.Helper()
	stones := []runetx.Protostone{{
		ProtocolTag: runetx.AlkanesProtocolTag,
		Edicts: []runetx.Edict{
			{ID: runeID, Amount: u128.FromUint64(amount), Output: 2},
		},
	}}
	script, err := runetx.BuildRunestoneScript(stones)
	if err != nil {
		t.Fatalf("build runestone script: %v", err)
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&from, nil, nil))
	tx.AddTxOut(wire.NewTxOut(0, script))               // vout 0: OP_RETURN carrier
	tx.AddTxOut(wire.NewTxOut(0, nonOPReturnScript()))  // vout 1: default leftover
	tx.AddTxOut(wire.NewTxOut(0, nonOPReturnScript()))  // vout 2: edict destination
	block := &wire.MsgBlock{Transactions: []*wire.MsgTx{tx}}
	block.Header.PrevBlock = prev
	return block
}

func TestReorgRewindsAboveForkPoint(t *testing.T) {
	d := newTestDriver(t)
	runeID := alkaneid.ProtoruneRuneId{Block: 2, Tx: 1}

	fundingTx := wire.NewMsgTx(wire.TxVersion)
	fundingTx.AddTxOut(wire.NewTxOut(0, nonOPReturnScript()))
	fundingOp := wire.OutPoint{Hash: fundingTx.TxHash(), Index: 0}
	seedOutpointBalance(t, d, fundingOp, runeID, 1000)

	genesisBlock := &wire.MsgBlock{Transactions: []*wire.MsgTx{fundingTx}}
	if err := d.IndexBlock(0, genesisBlock, nil); err != nil {
		t.Fatalf("index height 0: %v", err)
	}
	hash0 := genesisBlock.BlockHash()

	block1 := edictBlock(t, hash0, fundingOp, runeID, 400)
	if err := d.IndexBlock(1, block1, nil); err != nil {
		t.Fatalf("index height 1: %v", err)
	}
	hash1 := block1.BlockHash()
	spendOp1 := wire.OutPoint{Hash: block1.Transactions[0].TxHash(), Index: 2}

	block2 := edictBlock(t, hash1, spendOp1, runeID, 400)
	if err := d.IndexBlock(2, block2, nil); err != nil {
		t.Fatalf("index height 2: %v", err)
	}
	spendOp2 := wire.OutPoint{Hash: block2.Transactions[0].TxHash(), Index: 2}

	if got := d.IndexedHeight(); got != 2 {
		t.Fatalf("indexed height before reorg: got %d want 2", got)
	}

	headers := stubHeaders{1: hash1}
	fork, err := d.reorg(2, headers)
	if err != nil {
		t.Fatalf("reorg: %v", err)
	}
	if fork != 1 {
		t.Fatalf("fork point: got %d want 1", fork)
	}

	if got := d.IndexedHeight(); got != 1 {
		t.Fatalf("indexed height after reorg: got %d want 1", got)
	}
	if got := d.BlockHash(2); got != nil {
		t.Fatalf("height 2 block hash should be cleared, got %x", got)
	}

	ptr, err := d.OutpointBalancePointer(spendOp2)
	if err != nil {
		t.Fatalf("outpoint balance pointer: %v", err)
	}
	loaded, err := balance.LoadFromPointer(ptr, []alkaneid.ProtoruneRuneId{runeID})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := loaded.Get(runeID); !got.IsZero() {
		t.Fatalf("height-2 output balance should be rewound to zero, got %v", got)
	}

	// spendOp1's balance was spent at height 2 (cleared) then rewound:
	// the rewind should restore it to what height 1 left it at (400).
	spend1Ptr, err := d.OutpointBalancePointer(spendOp1)
	if err != nil {
		t.Fatalf("outpoint balance pointer: %v", err)
	}
	restored, err := balance.LoadFromPointer(spend1Ptr, []alkaneid.ProtoruneRuneId{runeID})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := restored.Get(runeID); got.Cmp(u128.FromUint64(400)) != 0 {
		t.Fatalf("spendOp1 balance after rewind: got %v want 400", got)
	}
}

func TestReorgTooDeepWhenNoMatchFound(t *testing.T) {
	d := newTestDriver(t)
	store0 := chainhash.Hash{0x01}
	d.blockHashPointer(0).Set(store0[:])
	if err := d.Root.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	d.MaxReorgDepth = 0

	headers := stubHeaders{} // never matches
	if _, err := d.reorg(0, headers); !errors.Is(err, ErrReorgTooDeep) {
		t.Fatalf("expected ErrReorgTooDeep, got %v", err)
	}
}

func TestReorgRequiresHeaderSource(t *testing.T) {
	d := newTestDriver(t)
	if _, err := d.reorg(0, nil); err == nil {
		t.Fatal("expected error when no header source is configured")
	}
}
