// Package witness locates inscription-carried payloads (here, gzip-compressed
// WASM bytecode) inside a transaction's witness data.
package witness

import (
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// opFalse/opIf/opEndIf name the taproot script-path envelope markers an
// Ordinals-style inscription is wrapped in: `OP_FALSE OP_IF ... OP_ENDIF`
// with the payload as concatenated data pushes in between.
const (
	opFalse = txscript.OP_FALSE
	opIf    = txscript.OP_IF
	opEndIf = txscript.OP_ENDIF
)

// FindPayload scans a transaction's inputs in order and returns the payload
// of the first taproot witness script that contains a well-formed
// `OP_FALSE OP_IF ... OP_ENDIF` envelope. ok is false if no input carries one
// — e.g. a (1,0) create cellpack with no inscription, which is a decode
// error at the handler layer.
func FindPayload(tx *wire.MsgTx) (payload []byte, ok bool) {
	for _, in := range tx.TxIn {
		for _, witnessItem := range in.Witness {
			if p, found := extractEnvelope(witnessItem); found {
				return p, true
			}
		}
	}
	return nil, false
}

// extractEnvelope tokenizes one witness stack item as a script and looks for
// the envelope marker sequence anywhere in it (taproot script-path spends
// place the inscription envelope inside the leaf script, commonly preceded
// by the public key and a CHECKSIG). The first complete envelope found wins;
// the payload is the concatenation of every data push between OP_IF and
// OP_ENDIF.
func extractEnvelope(script []byte) ([]byte, bool) {
	tok := txscript.MakeScriptTokenizer(0, script)

	// state machine: look for OP_FALSE, OP_IF, then collect pushes until
	// OP_ENDIF.
	for tok.Next() {
		if tok.Opcode() != opFalse {
			continue
		}
		if !tok.Next() || tok.Opcode() != opIf {
			continue
		}
		var payload []byte
		for tok.Next() {
			if tok.Opcode() == opEndIf {
				return payload, true
			}
			if len(tok.Data()) > 0 {
				payload = append(payload, tok.Data()...)
			}
		}
		// ran out of script without an ENDIF: not a well-formed envelope.
		return nil, false
	}
	return nil, false
}
