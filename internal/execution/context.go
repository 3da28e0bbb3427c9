// Package execution implements the per-message WASM execution context: the
// Context/CallResponse/AlkaneTransferParcel wire types, the extcall frame
// stack, fuel metering, and trace recording.
package execution

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/alkanes-io/alkanes/internal/alkaneid"
	"github.com/alkanes-io/alkanes/internal/u128"
)

// ErrTruncated is returned when a serialized value runs out of bytes before
// its declared shape is fully consumed.
var ErrTruncated = errors.New("execution: truncated buffer")

// Transfer is one (id, value) credit inside an AlkaneTransferParcel.
type Transfer struct {
	ID    alkaneid.AlkaneId
	Value u128.Uint128
}

// AlkaneTransferParcel is a list of alkane credits, wire-encoded as a u32
// count followed by (id, value) pairs.
type AlkaneTransferParcel struct {
	Transfers []Transfer
}

// Encode serializes the parcel per the fixed little-endian layout.
func (p AlkaneTransferParcel) Encode() []byte {
	buf := make([]byte, 4, 4+len(p.Transfers)*(32+16))
	binary.LittleEndian.PutUint32(buf, uint32(len(p.Transfers)))
	for _, t := range p.Transfers {
		buf = append(buf, t.ID.Bytes()...)
		buf = append(buf, t.Value.Bytes()...)
	}
	return buf
}

// DecodeAlkaneTransferParcel parses the wire layout Encode produces,
// returning the number of bytes consumed.
func DecodeAlkaneTransferParcel(b []byte) (AlkaneTransferParcel, int, error) {
	if len(b) < 4 {
		return AlkaneTransferParcel{}, 0, ErrTruncated
	}
	count := binary.LittleEndian.Uint32(b)
	off := 4
	out := AlkaneTransferParcel{}
	for i := uint32(0); i < count; i++ {
		if len(b) < off+32+16 {
			return AlkaneTransferParcel{}, 0, ErrTruncated
		}
		id, err := alkaneid.ParseAlkaneId(b[off : off+32])
		if err != nil {
			return AlkaneTransferParcel{}, 0, err
		}
		off += 32
		v, err := u128.Parse(b[off : off+16])
		if err != nil {
			return AlkaneTransferParcel{}, 0, err
		}
		off += 16
		out.Transfers = append(out.Transfers, Transfer{ID: id, Value: v})
	}
	return out, off, nil
}

// Context is the frozen execution environment the guest module sees at
// entry: myself, caller, the incoming asset parcel, and the trailing u128
// inputs, in that order.
type Context struct {
	Myself          alkaneid.AlkaneId
	Caller          alkaneid.AlkaneId
	IncomingAlkanes AlkaneTransferParcel
	Inputs          []u128.Uint128
}

// Encode serializes the context per the fixed layout: myself (32) || caller
// (32) || parcel || inputs as back-to-back 16-byte u128s.
func (c Context) Encode() []byte {
	buf := append([]byte{}, c.Myself.Bytes()...)
	buf = append(buf, c.Caller.Bytes()...)
	buf = append(buf, c.IncomingAlkanes.Encode()...)
	for _, v := range c.Inputs {
		buf = append(buf, v.Bytes()...)
	}
	return buf
}

// DecodeContext parses the layout Encode produces.
func DecodeContext(b []byte) (Context, error) {
	if len(b) < 64 {
		return Context{}, ErrTruncated
	}
	myself, err := alkaneid.ParseAlkaneId(b[0:32])
	if err != nil {
		return Context{}, err
	}
	caller, err := alkaneid.ParseAlkaneId(b[32:64])
	if err != nil {
		return Context{}, err
	}
	parcel, n, err := DecodeAlkaneTransferParcel(b[64:])
	if err != nil {
		return Context{}, err
	}
	rest := b[64+n:]
	if len(rest)%16 != 0 {
		return Context{}, fmt.Errorf("execution: trailing %d bytes is not a whole number of u128 inputs", len(rest))
	}
	var inputs []u128.Uint128
	for off := 0; off < len(rest); off += 16 {
		v, err := u128.Parse(rest[off : off+16])
		if err != nil {
			return Context{}, err
		}
		inputs = append(inputs, v)
	}
	return Context{Myself: myself, Caller: caller, IncomingAlkanes: parcel, Inputs: inputs}, nil
}

// CallResponse is what a guest's `__execute` entrypoint returns: assets to
// distribute to the message's pointer vout, plus opaque return data.
type CallResponse struct {
	Alkanes AlkaneTransferParcel
	Data    []byte
}

// Encode serializes the response as parcel || u32 data length || data.
func (r CallResponse) Encode() []byte {
	buf := append([]byte{}, r.Alkanes.Encode()...)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(r.Data)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, r.Data...)
	return buf
}

// DecodeCallResponse parses the layout Encode produces.
func DecodeCallResponse(b []byte) (CallResponse, error) {
	parcel, n, err := DecodeAlkaneTransferParcel(b)
	if err != nil {
		return CallResponse{}, err
	}
	rest := b[n:]
	if len(rest) < 4 {
		return CallResponse{}, ErrTruncated
	}
	dataLen := binary.LittleEndian.Uint32(rest)
	rest = rest[4:]
	if uint32(len(rest)) < dataLen {
		return CallResponse{}, ErrTruncated
	}
	return CallResponse{Alkanes: parcel, Data: rest[:dataLen]}, nil
}
