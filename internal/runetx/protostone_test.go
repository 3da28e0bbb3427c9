package runetx

import (
	"reflect"
	"testing"

	"github.com/alkanes-io/alkanes/internal/alkaneid"
	"github.com/alkanes-io/alkanes/internal/u128"
)

func vout(v uint32) *uint32 { return &v }

func TestEncipherDecipherRoundTrip(t *testing.T) {
	cp := Cellpack{
		Target: alkaneid.AlkaneId{Block: 2, Tx: 1},
		Inputs: []u128.Uint128{u128.FromUint64(0x10), u128.FromUint64(42)},
	}
	stones := []Protostone{
		{
			ProtocolTag: AlkanesProtocolTag,
			Message:     cp.Encode(),
			Pointer:     vout(1),
			Refund:      vout(0),
			Edicts: []Edict{
				{ID: alkaneid.ProtoruneRuneId{Block: 2, Tx: 1}, Amount: u128.FromUint64(100), Output: 1},
			},
		},
	}

	protocolValues := EncipherProtostones(stones)

	// Build a synthetic Runestone payload carrying only the protocol field
	// (tag 21) so ProtostonesFromPayload can be exercised end to end.
	var flat []u128.Uint128
	for _, v := range protocolValues {
		flat = append(flat, u128.FromUint64(tagProtocol), v)
	}
	payload := EncodeVarintList(flat)

	got, err := ProtostonesFromPayload(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got, stones) {
		t.Fatalf("round trip mismatch:\n got=%+v\nwant=%+v", got, stones)
	}

	gotCP, err := ParseCellpack(got[0].Message)
	if err != nil {
		t.Fatalf("parse cellpack: %v", err)
	}
	if gotCP.Target != cp.Target {
		t.Fatalf("cellpack target mismatch: got %+v want %+v", gotCP.Target, cp.Target)
	}
}

func TestEmptyProtocolFieldYieldsNoProtostones(t *testing.T) {
	stones, err := ProtostonesFromPayload(nil)
	if err != nil || stones != nil {
		t.Fatalf("expected nil,nil for empty payload, got %v,%v", stones, err)
	}
}

func TestTruncatedPayloadDiscardsWholeList(t *testing.T) {
	// One dangling high-bit byte never terminates a varint.
	stones, err := ProtostonesFromPayload([]byte{0x80})
	if err != nil || stones != nil {
		t.Fatalf("expected nil,nil for truncated payload, got %v,%v", stones, err)
	}
}
