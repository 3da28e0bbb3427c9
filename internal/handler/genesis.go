package handler

import (
	"fmt"

	"github.com/alkanes-io/alkanes/internal/alkaneid"
	"github.com/alkanes-io/alkanes/internal/hostabi"
	"github.com/alkanes-io/alkanes/internal/runetx"
)

// TemplateEntry is one built-in alkane registered at genesis: a reserved
// slot id and its raw (uncompressed) WASM bytecode.
type TemplateEntry struct {
	Slot alkaneid.AlkaneId
	Raw  []byte
}

// GenesisTable is the table of built-in alkanes the chain deploys at its
// genesis height.
type GenesisTable struct {
	Height    uint64
	Templates []TemplateEntry
}

// RunGenesis deploys every template in the table: gzip-compresses its raw
// bytecode and writes it to bytecode at the template's reserved slot. It
// is idempotent — re-running it against an already-populated store is a
// no-op per slot, since genesis fires exactly once per network at its
// fixed height.
func RunGenesis(table GenesisTable, bytecode BytecodeStore) error {
	for _, tmpl := range table.Templates {
		if bytecode.Has(tmpl.Slot) {
			continue
		}
		compressed, err := hostabi.Compress(tmpl.Raw)
		if err != nil {
			return fmt.Errorf("handler: genesis compress %s: %w", tmpl.Slot, err)
		}
		bytecode.Set(tmpl.Slot, compressed)
	}
	return nil
}

// PremineAmount computes a linear premine: the number of blocks elapsed
// since genesis multiplied by a fixed per-block payout, using checked
// subtraction then checked multiplication — both fail closed on overflow
// rather than wrap.
func PremineAmount(height, genesisHeight, averagePayout uint64) (uint64, error) {
	if height < genesisHeight {
		return 0, fmt.Errorf("handler: height %d precedes genesis height %d", height, genesisHeight)
	}
	blocks := height - genesisHeight
	product := blocks * averagePayout
	if averagePayout != 0 && product/averagePayout != blocks {
		return 0, fmt.Errorf("handler: premine overflow at height %d", height)
	}
	return product, nil
}

// DefaultGenesisTable returns the built-in template slots deployed at
// height: the first factory slot (3,0) and the auth-token factory slot
// (6,0); (1,0) is witness-created, not templated. Raw is left empty for
// both entries, so RunGenesis stores the gzip of an empty payload at each
// slot. net does not change the table: every network gets the same slots.
func DefaultGenesisTable(net runetx.Network, height uint64) GenesisTable {
	return GenesisTable{
		Height: height,
		Templates: []TemplateEntry{
			{Slot: alkaneid.AlkaneId{Block: alkaneid.FactorySlotBegin, Tx: 0}},
			{Slot: alkaneid.AlkaneId{Block: alkaneid.AuthTokenSlot, Tx: 0}},
		},
	}
}
