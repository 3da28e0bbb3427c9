package runetx

import (
	"testing"

	"github.com/alkanes-io/alkanes/internal/u128"
)

func TestUvarintRoundTrip(t *testing.T) {
	values := []u128.Uint128{
		u128.FromUint64(0),
		u128.FromUint64(1),
		u128.FromUint64(127),
		u128.FromUint64(128),
		u128.FromUint64(300),
		{Hi: 1}, // 2^64, exercises the cross-word carry
	}
	for _, v := range values {
		enc := EncodeUvarint(nil, v)
		got, n, err := DecodeUvarint(enc)
		if err != nil {
			t.Fatalf("decode %v: %v", v, err)
		}
		if n != len(enc) {
			t.Fatalf("decode %v: consumed %d, want %d", v, n, len(enc))
		}
		if got.Cmp(v) != 0 {
			t.Fatalf("round trip %v: got %v", v, got)
		}
	}
}

func TestDecodeUvarintTruncated(t *testing.T) {
	if _, _, err := DecodeUvarint([]byte{0x80, 0x80}); err != ErrTruncated {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestVarintListRoundTrip(t *testing.T) {
	values := []u128.Uint128{u128.FromUint64(1), u128.FromUint64(2), u128.FromUint64(300)}
	encoded := EncodeVarintList(values)
	got, err := DecodeVarintList(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != len(values) {
		t.Fatalf("got %d values, want %d", len(got), len(values))
	}
	for i := range values {
		if got[i].Cmp(values[i]) != 0 {
			t.Fatalf("value %d: got %v want %v", i, got[i], values[i])
		}
	}
}

func TestDecodeVarintListEmptyBufferYieldsNoValues(t *testing.T) {
	got, err := DecodeVarintList(nil)
	if err != nil || got != nil {
		t.Fatalf("expected nil,nil for an empty buffer, got %v,%v", got, err)
	}
}

func TestSplitJoinBytesRoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte("a"),
		[]byte("hello alkanes"),
		make([]byte, 64),
	}
	for _, data := range cases {
		groups := SplitBytes(data)
		got, err := JoinBytes(groups)
		if err != nil {
			t.Fatalf("join: %v", err)
		}
		if len(got) != len(data) {
			t.Fatalf("length mismatch: got %d want %d", len(got), len(data))
		}
		for i := range data {
			if got[i] != data[i] {
				t.Fatalf("byte %d: got %x want %x", i, got[i], data[i])
			}
		}
	}
}

func TestJoinBytesRejectsOutOfRangeGroup(t *testing.T) {
	if _, err := JoinBytes([]u128.Uint128{{Lo: 0x8000}}); err == nil {
		t.Fatal("expected an error for a group exceeding 15 bits")
	}
}
