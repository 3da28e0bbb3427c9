package runetx

import (
	"github.com/alkanes-io/alkanes/internal/alkaneid"
	"github.com/alkanes-io/alkanes/internal/u128"
)

// Edict is a Runestone primitive that transfers a rune amount to an output,
// applied to the ledger before the protostone's message runs.
type Edict struct {
	ID     alkaneid.ProtoruneRuneId
	Amount u128.Uint128
	Output uint32
}

// Protostone is one protocol message riding inside a Runestone's `protocol`
// field. Pointer/Refund/From/Burn are optional vout selectors; a nil pointer
// means "field absent".
type Protostone struct {
	ProtocolTag u128.Uint128
	Message     []byte
	From        *uint32
	Burn        *uint32
	Pointer     *uint32
	Refund      *uint32
	Edicts      []Edict
}

// AlkanesProtocolTag is the protocol_tag value that scopes a Protostone to
// this indexer.
var AlkanesProtocolTag = u128.FromUint64(1)

// IsAlkanes reports whether p is scoped to the alkanes protocol.
func (p Protostone) IsAlkanes() bool {
	return p.ProtocolTag.Cmp(AlkanesProtocolTag) == 0
}

const flagFrom = 1 << 0
const flagBurn = 1 << 1
const flagPointer = 1 << 2
const flagRefund = 1 << 3

// ProtostonesFromPayload runs the full decode chain: locate the Runestone
// protocol field, join its 15-bit-safe chunks into a
// byte stream, and decode that stream as an ordered list of Protostone
// messages. Any failure along the way — cenotaph, truncated payload,
// invalid varint — yields (nil, nil): an empty protostone list, never a
// partial one.
func ProtostonesFromPayload(payload []byte) ([]Protostone, error) {
	protocolValues, err := DecodeProtocolField(payload)
	if err != nil || len(protocolValues) == 0 {
		return nil, nil
	}
	raw, err := JoinBytes(protocolValues)
	if err != nil {
		return nil, nil
	}
	flat, err := DecodeVarintList(raw)
	if err != nil {
		return nil, nil
	}
	stones, err := decodeProtostoneList(flat)
	if err != nil {
		return nil, nil
	}
	return stones, nil
}

func decodeProtostoneList(flat []u128.Uint128) ([]Protostone, error) {
	var out []Protostone
	idx := 0
	for idx < len(flat) {
		if idx+1 >= len(flat) {
			return nil, ErrTruncated
		}
		tag := flat[idx]
		bodyLen := int(flat[idx+1].Lo)
		idx += 2
		if bodyLen < 0 || idx+bodyLen > len(flat) {
			return nil, ErrTruncated
		}
		body := flat[idx : idx+bodyLen]
		idx += bodyLen
		stone, err := decodeBody(tag, body)
		if err != nil {
			return nil, err
		}
		out = append(out, stone)
	}
	return out, nil
}

func decodeBody(tag u128.Uint128, body []u128.Uint128) (Protostone, error) {
	bi := 0
	next := func() (u128.Uint128, error) {
		if bi >= len(body) {
			return u128.Uint128{}, ErrTruncated
		}
		v := body[bi]
		bi++
		return v, nil
	}
	stone := Protostone{ProtocolTag: tag}

	flags, err := next()
	if err != nil {
		return Protostone{}, err
	}
	f := flags.Lo

	readVout := func() (*uint32, error) {
		v, err := next()
		if err != nil {
			return nil, err
		}
		vo := uint32(v.Lo)
		return &vo, nil
	}
	if f&flagFrom != 0 {
		if stone.From, err = readVout(); err != nil {
			return Protostone{}, err
		}
	}
	if f&flagBurn != 0 {
		if stone.Burn, err = readVout(); err != nil {
			return Protostone{}, err
		}
	}
	if f&flagPointer != 0 {
		if stone.Pointer, err = readVout(); err != nil {
			return Protostone{}, err
		}
	}
	if f&flagRefund != 0 {
		if stone.Refund, err = readVout(); err != nil {
			return Protostone{}, err
		}
	}

	edictCountV, err := next()
	if err != nil {
		return Protostone{}, err
	}
	edictCount := int(edictCountV.Lo)
	stone.Edicts = make([]Edict, 0, edictCount)
	for i := 0; i < edictCount; i++ {
		blockV, err := next()
		if err != nil {
			return Protostone{}, err
		}
		txV, err := next()
		if err != nil {
			return Protostone{}, err
		}
		amtV, err := next()
		if err != nil {
			return Protostone{}, err
		}
		outV, err := next()
		if err != nil {
			return Protostone{}, err
		}
		stone.Edicts = append(stone.Edicts, Edict{
			ID:     alkaneid.ProtoruneRuneId{Block: blockV.Lo, Tx: txV.Lo},
			Amount: amtV,
			Output: uint32(outV.Lo),
		})
	}

	msgLenV, err := next()
	if err != nil {
		return Protostone{}, err
	}
	msgLen := int(msgLenV.Lo)
	if bi+msgLen > len(body) {
		return Protostone{}, ErrTruncated
	}
	stone.Message = EncodeVarintList(body[bi : bi+msgLen])
	bi += msgLen

	return stone, nil
}

// EncipherProtostones is the inverse of ProtostonesFromPayload: it builds
// the 15-bit-safe protocol-field values a Runestone would carry for the
// given ordered protostone list.
func EncipherProtostones(stones []Protostone) []u128.Uint128 {
	var flat []u128.Uint128
	for _, s := range stones {
		body := encodeBody(s)
		flat = append(flat, s.ProtocolTag, u128.FromUint64(uint64(len(body))))
		flat = append(flat, body...)
	}
	raw := EncodeVarintList(flat)
	return SplitBytes(raw)
}

func encodeBody(s Protostone) []u128.Uint128 {
	var f uint64
	if s.From != nil {
		f |= flagFrom
	}
	if s.Burn != nil {
		f |= flagBurn
	}
	if s.Pointer != nil {
		f |= flagPointer
	}
	if s.Refund != nil {
		f |= flagRefund
	}
	body := []u128.Uint128{u128.FromUint64(f)}
	appendVout := func(v *uint32) {
		if v != nil {
			body = append(body, u128.FromUint64(uint64(*v)))
		}
	}
	appendVout(s.From)
	appendVout(s.Burn)
	appendVout(s.Pointer)
	appendVout(s.Refund)

	body = append(body, u128.FromUint64(uint64(len(s.Edicts))))
	for _, e := range s.Edicts {
		body = append(body,
			u128.FromUint64(e.ID.Block),
			u128.FromUint64(e.ID.Tx),
			e.Amount,
			u128.FromUint64(uint64(e.Output)),
		)
	}

	msgValues, _ := DecodeVarintList(s.Message)
	body = append(body, u128.FromUint64(uint64(len(msgValues))))
	body = append(body, msgValues...)
	return body
}
