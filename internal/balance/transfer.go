package balance

import (
	"github.com/alkanes-io/alkanes/internal/alkaneid"
	"github.com/alkanes-io/alkanes/internal/u128"
)

// Transfer is a single non-zero rune credit, the unit a message handler
// moves between per-output balance sheets.
type Transfer struct {
	ID    alkaneid.ProtoruneRuneId
	Value u128.Uint128
}

// TransfersFromSheet flattens every non-zero entry of s into a Transfer
// list, ascending by id for determinism.
func TransfersFromSheet(s *Sheet) []Transfer {
	var out []Transfer
	for _, id := range s.ids() {
		v := s.balances[id]
		if v.IsZero() {
			continue
		}
		out = append(out, Transfer{ID: id, Value: v})
	}
	return out
}

// ByOutput is the running per-vout ledger a message handler accumulates
// while processing one transaction's protostones.
type ByOutput map[uint32]*Sheet

// IncreaseUsingSheet pipes every balance in sheet into the vout entry of
// balancesByOutput, creating it if absent.
func IncreaseUsingSheet(balancesByOutput ByOutput, sheet *Sheet, vout uint32) error {
	target, ok := balancesByOutput[vout]
	if !ok {
		target = NewSheet()
		balancesByOutput[vout] = target
	}
	return sheet.Pipe(target)
}

// RefundToRefundPointer moves every balance staged against
// protomessageVout over to refundPointer, leaving protomessageVout empty.
// Used when a message execution fails and its assets must bounce back to
// the caller.
func RefundToRefundPointer(balancesByOutput ByOutput, protomessageVout, refundPointer uint32) error {
	sheet, ok := balancesByOutput[protomessageVout]
	if !ok {
		sheet = NewSheet()
	} else {
		delete(balancesByOutput, protomessageVout)
	}
	return IncreaseUsingSheet(balancesByOutput, sheet, refundPointer)
}
