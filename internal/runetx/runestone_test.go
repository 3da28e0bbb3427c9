package runetx

import (
	"testing"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/alkanes-io/alkanes/internal/alkaneid"
	"github.com/alkanes-io/alkanes/internal/u128"
)

func TestFindRunestoneOutputRoundTripsThroughBuild(t *testing.T) {
	cp := Cellpack{Target: alkaneid.AlkaneId{Block: 2, Tx: 5}}
	stones := []Protostone{{ProtocolTag: AlkanesProtocolTag, Message: cp.Encode()}}
	script, err := BuildRunestoneScript(stones)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxOut(wire.NewTxOut(0, []byte{0x51})) // a decoy non-Runestone output first
	tx.AddTxOut(wire.NewTxOut(0, script))

	payload, ok := FindRunestoneOutput(tx)
	if !ok {
		t.Fatal("expected to find the Runestone output")
	}

	got, err := ProtostonesFromPayload(payload)
	if err != nil {
		t.Fatalf("protostones: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one protostone, got %d", len(got))
	}
	gotCP, err := ParseCellpack(got[0].Message)
	if err != nil {
		t.Fatalf("parse cellpack: %v", err)
	}
	if gotCP.Target != cp.Target {
		t.Fatalf("target: got %v want %v", gotCP.Target, cp.Target)
	}
}

func TestFindRunestoneOutputNoneFound(t *testing.T) {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxOut(wire.NewTxOut(0, []byte{0x51}))
	tx.AddTxOut(wire.NewTxOut(0, []byte{txscript.OP_RETURN}))

	if _, ok := FindRunestoneOutput(tx); ok {
		t.Fatal("expected no Runestone output")
	}
}

func TestDecodeProtocolFieldRejectsOddLengthStream(t *testing.T) {
	payload := EncodeVarintList([]u128.Uint128{u128.FromUint64(tagProtocol)})
	if _, err := DecodeProtocolField(payload); err != ErrCenotaph {
		t.Fatalf("expected ErrCenotaph, got %v", err)
	}
}

func TestDecodeProtocolFieldIgnoresUnrelatedTags(t *testing.T) {
	flat := []u128.Uint128{
		u128.FromUint64(2), u128.FromUint64(999), // unrelated even tag
		u128.FromUint64(tagProtocol), u128.FromUint64(7),
	}
	got, err := DecodeProtocolField(EncodeVarintList(flat))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].Cmp(u128.FromUint64(7)) != 0 {
		t.Fatalf("expected only the protocol-tagged value, got %v", got)
	}
}
