package hostabi

import (
	"encoding/binary"
	"errors"
)

// ErrOutOfBounds is returned when a guest-supplied pointer/length would
// read or write past the end of linear memory.
var ErrOutOfBounds = errors.New("hostabi: pointer out of bounds")

// ReadArrayBuffer reads the `[u32 length][bytes...]` layout at ptr within
// mem and returns a copy of the payload.
func ReadArrayBuffer(mem []byte, ptr int32) ([]byte, error) {
	if ptr < 0 || int(ptr)+4 > len(mem) {
		return nil, ErrOutOfBounds
	}
	length := binary.LittleEndian.Uint32(mem[ptr : ptr+4])
	start := int(ptr) + 4
	end := start + int(length)
	if end > len(mem) || end < start {
		return nil, ErrOutOfBounds
	}
	out := make([]byte, length)
	copy(out, mem[start:end])
	return out, nil
}

// WriteArrayBuffer writes data as a `[u32 length][bytes...]` block at ptr.
// The caller is responsible for ensuring the guest has reserved enough
// memory at ptr (the convention is the guest first calls the matching
// `__request_*` function to learn the length before allocating).
func WriteArrayBuffer(mem []byte, ptr int32, data []byte) error {
	need := int(ptr) + 4 + len(data)
	if ptr < 0 || need > len(mem) {
		return ErrOutOfBounds
	}
	binary.LittleEndian.PutUint32(mem[ptr:ptr+4], uint32(len(data)))
	copy(mem[int(ptr)+4:], data)
	return nil
}

// ReadRaw copies length bytes at ptr with no length prefix, for host
// functions whose guest signature passes an explicit length argument.
func ReadRaw(mem []byte, ptr, length int32) ([]byte, error) {
	if ptr < 0 || length < 0 || int(ptr)+int(length) > len(mem) {
		return nil, ErrOutOfBounds
	}
	out := make([]byte, length)
	copy(out, mem[ptr:int(ptr)+int(length)])
	return out, nil
}

// WriteRaw copies data into mem at ptr with no length prefix.
func WriteRaw(mem []byte, ptr int32, data []byte) error {
	if ptr < 0 || int(ptr)+len(data) > len(mem) {
		return ErrOutOfBounds
	}
	copy(mem[ptr:], data)
	return nil
}
