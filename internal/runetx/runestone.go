package runetx

import (
	"errors"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/alkanes-io/alkanes/internal/u128"
)

// runestoneMagic is OP_13, the opcode the Runes protocol requires
// immediately after OP_RETURN to mark an output as a Runestone carrier.
const runestoneMagic = txscript.OP_13

// tagProtocol is the even integer tag under which a Runestone carries an
// opaque protocol payload; Alkanes rides this field.
const tagProtocol = 21

// ErrCenotaph marks a Runestone that failed to decode cleanly: a malformed
// integer stream, or a stream that ends partway through a tag/value pair.
// Odd (required) tags are not checked and never make a cenotaph. A cenotaph
// yields no protostones —
// it is not a decode failure the caller need retry, it's a defined outcome.
var ErrCenotaph = errors.New("runetx: cenotaph runestone")

// FindRunestoneOutput finds the first transaction output whose
// script_pubkey is an OP_RETURN beginning with the Runestone magic opcode
// and returns the concatenated data pushes that follow it. ok is false if
// no such output exists.
func FindRunestoneOutput(tx *wire.MsgTx) (data []byte, ok bool) {
	for _, out := range tx.TxOut {
		script := out.PkScript
		tok := txscript.MakeScriptTokenizer(0, script)
		if !tok.Next() || tok.Opcode() != txscript.OP_RETURN {
			continue
		}
		if !tok.Next() || tok.Opcode() != runestoneMagic {
			continue
		}
		var payload []byte
		for tok.Next() {
			payload = append(payload, tok.Data()...)
		}
		if tok.Err() != nil {
			continue
		}
		return payload, true
	}
	return nil, false
}

// BuildRunestoneScript is the inverse of FindRunestoneOutput: it encodes
// stones as a Runestone's protocol field and wraps the result in an
// OP_RETURN OP_13 <payload> script, the wire shape a transaction output
// must carry to be recognized as an alkanes-scoped Runestone carrier.
// Used by tests that need a decodable fixture rather than a hand-built
// payload.
func BuildRunestoneScript(stones []Protostone) ([]byte, error) {
	values := EncipherProtostones(stones)
	var flat []u128.Uint128
	for _, v := range values {
		flat = append(flat, u128.FromUint64(tagProtocol), v)
	}
	payload := EncodeVarintList(flat)
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_RETURN).
		AddOp(runestoneMagic).
		AddData(payload).
		Script()
}

// DecodeProtocolField decodes a Runestone's concatenated data pushes into
// its raw integer stream (a flat sequence of u128 values, alternating
// tag/value per the Runestone tag grammar) and returns only the values
// filed under tagProtocol, in the order they appear — the byte stream that
// ProtostonesFromPayload further decodes into Protostone messages.
//
// Any unrecognized *even* tag is ignored (per the Runestone non-cenotaph
// rule for even tags); a malformed varint, or the stream ending mid tag/value
// pair, yields ErrCenotaph.
func DecodeProtocolField(payload []byte) ([]u128.Uint128, error) {
	ints, err := DecodeVarintList(payload)
	if err != nil {
		return nil, ErrCenotaph
	}
	if len(ints)%2 != 0 {
		return nil, ErrCenotaph
	}
	var protocol []u128.Uint128
	for i := 0; i < len(ints); i += 2 {
		tag := ints[i]
		val := ints[i+1]
		if tag.Hi == 0 && tag.Lo == tagProtocol {
			protocol = append(protocol, val)
		}
		// Unrecognized tags (including odd/required ones in this
		// simplified grammar) are not validated further: full Runestone
		// semantics (etching, mint, pointer, edicts unrelated to the
		// protocol field) are out of this indexer's scope — no consensus
		// rules of Bitcoin itself are re-implemented here.
	}
	return protocol, nil
}
