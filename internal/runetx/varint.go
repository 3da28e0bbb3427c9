package runetx

import (
	"errors"
	"fmt"

	"github.com/alkanes-io/alkanes/internal/u128"
)

// ErrTruncated is returned when a varint stream ends mid-value. The decoder
// never partially emits: a truncated payload discards the whole protostone
// list.
var ErrTruncated = errors.New("runetx: truncated varint")

// EncodeUvarint appends the LEB128 encoding of v to dst and returns it.
func EncodeUvarint(dst []byte, v u128.Uint128) []byte {
	for {
		b := byte(v.Lo & 0x7f)
		v.Lo >>= 7
		v.Lo |= (v.Hi & 0x7f) << 57
		v.Hi >>= 7
		if v.Lo != 0 || v.Hi != 0 {
			dst = append(dst, b|0x80)
		} else {
			dst = append(dst, b)
			return dst
		}
	}
}

// DecodeUvarint reads one LEB128-encoded u128 from b, returning the value
// and the number of bytes consumed.
func DecodeUvarint(b []byte) (u128.Uint128, int, error) {
	var v u128.Uint128
	shift := uint(0)
	for i := 0; i < len(b); i++ {
		if shift >= 128 {
			return u128.Uint128{}, 0, fmt.Errorf("runetx: varint overflows u128")
		}
		chunk := uint64(b[i] & 0x7f)
		if shift < 64 {
			v.Lo |= chunk << shift
			if shift > 57 {
				v.Hi |= chunk >> (64 - shift)
			}
		} else {
			v.Hi |= chunk << (shift - 64)
		}
		shift += 7
		if b[i]&0x80 == 0 {
			return v, i + 1, nil
		}
	}
	return u128.Uint128{}, 0, ErrTruncated
}

// EncodeVarintList encodes a list of u128 values back-to-back, each as its
// own LEB128 varint — the Cellpack/Protostone body wire shape: target.block,
// target.tx, then inputs, one varint each.
func EncodeVarintList(values []u128.Uint128) []byte {
	out := make([]byte, 0, len(values)*2)
	for _, v := range values {
		out = EncodeUvarint(out, v)
	}
	return out
}

// DecodeVarintList decodes a back-to-back varint stream until the buffer is
// exhausted. A truncated trailing value is an error, matching the decoder's
// never-partially-emit rule.
func DecodeVarintList(b []byte) ([]u128.Uint128, error) {
	var out []u128.Uint128
	for len(b) > 0 {
		v, n, err := DecodeUvarint(b)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		b = b[n:]
	}
	return out, nil
}

// SplitBytes packs an arbitrary byte stream into the 15-bit-safe u128 chunks
// the Runestone `protocol` field is carried as. The stream is prefixed with
// a varint byte-length so JoinBytes can discard the padding on the final
// group without guessing.
func SplitBytes(data []byte) []u128.Uint128 {
	prefixed := EncodeUvarint(nil, u128.FromUint64(uint64(len(data))))
	prefixed = append(prefixed, data...)

	var out []u128.Uint128
	var bitBuf uint64
	bitLen := 0
	for _, b := range prefixed {
		bitBuf = (bitBuf << 8) | uint64(b)
		bitLen += 8
		for bitLen >= 15 {
			shift := uint(bitLen - 15)
			group := (bitBuf >> shift) & 0x7fff
			out = append(out, u128.FromUint64(group))
			bitLen -= 15
			if bitLen > 0 {
				bitBuf &= (uint64(1) << uint(bitLen)) - 1
			} else {
				bitBuf = 0
			}
		}
	}
	if bitLen > 0 {
		group := (bitBuf << uint(15-bitLen)) & 0x7fff
		out = append(out, u128.FromUint64(group))
	}
	return out
}

// JoinBytes is the inverse of SplitBytes: it reassembles the 15-bit groups
// into a bitstream and trims it to the length recorded in the leading
// varint prefix.
func JoinBytes(groups []u128.Uint128) ([]byte, error) {
	var bitBuf uint64
	bitLen := 0
	var raw []byte
	flushByte := func() {
		for bitLen >= 8 {
			shift := uint(bitLen - 8)
			raw = append(raw, byte((bitBuf>>shift)&0xff))
			bitLen -= 8
			if bitLen > 0 {
				bitBuf &= (uint64(1) << uint(bitLen)) - 1
			} else {
				bitBuf = 0
			}
		}
	}
	for _, g := range groups {
		if g.Hi != 0 || g.Lo > 0x7fff {
			return nil, fmt.Errorf("runetx: group out of 15-bit range")
		}
		bitBuf = (bitBuf << 15) | g.Lo
		bitLen += 15
		flushByte()
	}
	n, consumed, err := DecodeUvarint(raw)
	if err != nil {
		return nil, fmt.Errorf("runetx: decode length prefix: %w", err)
	}
	want := int(n.Lo)
	body := raw[consumed:]
	if len(body) < want {
		return nil, ErrTruncated
	}
	return body[:want], nil
}
