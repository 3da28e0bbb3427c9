package indexer

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/sirupsen/logrus"
)

// reorg walks backward from indexed (the last height this driver has
// committed) comparing its own stored block hash against headers' view of
// the canonical chain, rewinds every height above the first match, and
// returns the fork point.
func (d *Driver) reorg(indexed uint64, headers HeaderSource) (uint64, error) {
	if headers == nil {
		return 0, fmt.Errorf("indexer: reorg detected but no header source configured")
	}

	fork := uint64(0)
	matched := false
	for k := indexed; ; k-- {
		nodeHash, err := headers.BlockHashAt(k)
		if err == nil {
			stored := d.blockHashPointer(k).Get()
			if len(stored) == chainhash.HashSize && bytes.Equal(stored, nodeHash[:]) {
				fork = k
				matched = true
				break
			}
		}
		if k == 0 {
			break
		}
		if indexed-k >= d.MaxReorgDepth {
			return 0, ErrReorgTooDeep
		}
	}
	if !matched {
		return 0, ErrReorgTooDeep
	}

	for h := indexed; h > fork; h-- {
		if err := d.rewindHeight(h); err != nil {
			return 0, fmt.Errorf("indexer: rewind height %d: %w", h, err)
		}
		d.log.WithFields(logrus.Fields{"height": h}).Info("rewound block")
	}

	d.Seq.RestoreTo(d.sequenceSnapshotPointer(fork).GetValue())
	d.heightPointer().SetValue(fork)
	if err := d.Root.Flush(); err != nil {
		return 0, fmt.Errorf("indexer: flush rewind to %d: %w", fork, err)
	}
	return fork, nil
}

// rewindHeight replays height's reorg log in reverse-of-write order,
// restoring every key it touched to its pre-block value, then clears the
// height's own bookkeeping entries.
func (d *Driver) rewindHeight(height uint64) error {
	logPtr := d.reorgLogPointer(height)
	n := logPtr.Length()
	for i := n; i > 0; i-- {
		entry := logPtr.Nth(i - 1).Get()
		key, value, err := decodeLogEntry(entry)
		if err != nil {
			return err
		}
		d.Root.SetAbsolute(key, value)
	}
	d.blockHashPointer(height).Set(nil)
	d.sequenceSnapshotPointer(height).Set(nil)
	return nil
}
