// Package u128 implements the unsigned 128-bit integer arithmetic the
// protocol's wire format is built on (amounts, AlkaneId fields, cellpack
// inputs). Go has no native 128-bit integer, so amounts are carried as a
// pair of uint64 words; arithmetic is checked rather than wrapping because
// balance-sheet overflow/underflow must surface as a runtime error rather
// than silently corrupt the ledger.
package u128

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
)

// ErrOverflow is returned by Add when the sum cannot be represented in 128 bits.
var ErrOverflow = errors.New("u128: overflow")

// ErrUnderflow is returned by Sub when the subtrahend exceeds the minuend.
var ErrUnderflow = errors.New("u128: underflow")

// Uint128 is a little-endian pair of 64-bit words: Lo holds bits [0,64),
// Hi holds bits [64,128).
type Uint128 struct {
	Lo uint64
	Hi uint64
}

// Zero is the additive identity.
var Zero = Uint128{}

// FromUint64 widens a uint64 into a Uint128.
func FromUint64(v uint64) Uint128 { return Uint128{Lo: v} }

// IsZero reports whether v is the zero value.
func (v Uint128) IsZero() bool { return v.Lo == 0 && v.Hi == 0 }

// Cmp returns -1, 0, or 1 as v is less than, equal to, or greater than other.
func (v Uint128) Cmp(other Uint128) int {
	if v.Hi != other.Hi {
		if v.Hi < other.Hi {
			return -1
		}
		return 1
	}
	if v.Lo != other.Lo {
		if v.Lo < other.Lo {
			return -1
		}
		return 1
	}
	return 0
}

// Add returns v+other, failing with ErrOverflow instead of wrapping.
// Balance-sheet credits always use checked addition: AlkaneTransfer amounts
// never saturate.
func (v Uint128) Add(other Uint128) (Uint128, error) {
	lo, carry := bits.Add64(v.Lo, other.Lo, 0)
	hi, carry2 := bits.Add64(v.Hi, other.Hi, carry)
	if carry2 != 0 {
		return Uint128{}, ErrOverflow
	}
	return Uint128{Lo: lo, Hi: hi}, nil
}

// Sub returns v-other, failing with ErrUnderflow rather than wrapping.
func (v Uint128) Sub(other Uint128) (Uint128, error) {
	lo, borrow := bits.Sub64(v.Lo, other.Lo, 0)
	hi, borrow2 := bits.Sub64(v.Hi, other.Hi, borrow)
	if borrow2 != 0 {
		return Uint128{}, ErrUnderflow
	}
	return Uint128{Lo: lo, Hi: hi}, nil
}

// Bytes serializes v little-endian into 16 bytes.
func (v Uint128) Bytes() []byte {
	out := make([]byte, 16)
	binary.LittleEndian.PutUint64(out[0:8], v.Lo)
	binary.LittleEndian.PutUint64(out[8:16], v.Hi)
	return out
}

// Parse reads the 16-byte little-endian shape produced by Bytes.
func Parse(b []byte) (Uint128, error) {
	if len(b) != 16 {
		return Uint128{}, fmt.Errorf("u128: want 16 bytes, got %d", len(b))
	}
	return Uint128{
		Lo: binary.LittleEndian.Uint64(b[0:8]),
		Hi: binary.LittleEndian.Uint64(b[8:16]),
	}, nil
}

func (v Uint128) String() string {
	if v.Hi == 0 {
		return fmt.Sprintf("%d", v.Lo)
	}
	// Rare path: only reached once amounts exceed 2^64, formatted via
	// repeated divmod-by-10 since there is no native 128-bit literal.
	digits := []byte{}
	hi, lo := v.Hi, v.Lo
	for hi != 0 || lo != 0 {
		var rem uint64
		hi, lo, rem = divmod10(hi, lo)
		digits = append([]byte{byte('0' + rem)}, digits...)
	}
	return string(digits)
}

func divmod10(hi, lo uint64) (qhi, qlo, rem uint64) {
	qhi = hi / 10
	rhi := hi % 10
	// combine remainder of hi with lo via 64-bit long division by 10.
	q, r := bits.Div64(rhi, lo, 10)
	return qhi, q, r
}
