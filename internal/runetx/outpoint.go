package runetx

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// OutPoint re-exports the canonical btcd wire type: (txid, vout), the key of
// the UTXO-balance ledger. Keeping the btcd type directly (rather than a
// local lookalike) means its consensus-encoding — the exact byte layout the
// persisted key space is defined against — comes for free.
type OutPoint = wire.OutPoint

// ConsensusEncode returns the canonical serialization of an OutPoint used to
// build `/runes/OUTPOINT_TO_BALANCES/<consensus_encode(OutPoint)>/...` keys.
func ConsensusEncode(o OutPoint) ([]byte, error) {
	var buf bytes.Buffer
	if err := wire.WriteOutPoint(&buf, 0, 0, &o); err != nil {
		return nil, fmt.Errorf("runetx: encode outpoint: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeOutPoint is the inverse of ConsensusEncode, used by the view layer
// to recover a (txid, vout) pair from a stored index key.
func DecodeOutPoint(b []byte) (OutPoint, error) {
	var o OutPoint
	if err := wire.ReadOutPoint(bytes.NewReader(b), 0, 0, &o); err != nil {
		return OutPoint{}, fmt.Errorf("runetx: decode outpoint: %w", err)
	}
	return o, nil
}

// BlockHash re-exports btcd's 32-byte hash type used for block and
// transaction identity throughout the indexer.
type BlockHash = chainhash.Hash

// DecodeTransaction parses a canonical Bitcoin transaction from raw bytes.
func DecodeTransaction(raw []byte) (*wire.MsgTx, error) {
	tx := &wire.MsgTx{}
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("runetx: decode transaction: %w", err)
	}
	return tx, nil
}

// DecodeBlock parses a canonical Bitcoin block from raw bytes.
func DecodeBlock(raw []byte) (*wire.MsgBlock, error) {
	blk := &wire.MsgBlock{}
	if err := blk.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("runetx: decode block: %w", err)
	}
	return blk, nil
}
