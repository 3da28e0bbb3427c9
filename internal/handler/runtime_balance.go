package handler

import (
	"github.com/alkanes-io/alkanes/internal/alkaneid"
	"github.com/alkanes-io/alkanes/internal/balance"
	"github.com/alkanes-io/alkanes/internal/execution"
	"github.com/alkanes-io/alkanes/internal/kvstore"
)

const runtimeBalanceKeyword = "runtime_balance"

// runtimeBalancePointer derives the persistent pointer subtree holding id's
// own long-lived asset holdings.
func (h *Handler) runtimeBalancePointer(id alkaneid.AlkaneId) kvstore.Pointer {
	return h.Store.Keyword(runtimeBalanceKeyword).Select(id.Bytes())
}

// applyAssetMovement credits myself's runtime-balance sheet with whatever
// arrived as incoming_alkanes, then debits whatever the response sends
// back out, and commits the result. A debit exceeding the credited-plus-
// preexisting balance fails with balance.ErrArithmetic, which the caller
// treats as an ordinary execution failure.
func (h *Handler) applyAssetMovement(myself alkaneid.AlkaneId, incoming *balance.Sheet, response execution.CallResponse) error {
	candidates := candidateRuneIDs(incoming, response)
	ptr := h.runtimeBalancePointer(myself)

	sheet, err := balance.LoadFromPointer(ptr, candidates)
	if err != nil {
		return err
	}
	if incoming != nil {
		for _, t := range balance.TransfersFromSheet(incoming) {
			if err := sheet.Increase(t.ID, t.Value); err != nil {
				return err
			}
		}
	}
	for _, t := range response.Alkanes.Transfers {
		if err := sheet.Decrease(t.ID.AsRuneId(), t.Value); err != nil {
			return err
		}
	}
	sheet.CommitToPointer(ptr)
	return nil
}

func candidateRuneIDs(incoming *balance.Sheet, response execution.CallResponse) []alkaneid.ProtoruneRuneId {
	seen := map[alkaneid.ProtoruneRuneId]struct{}{}
	var ids []alkaneid.ProtoruneRuneId
	add := func(id alkaneid.ProtoruneRuneId) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if incoming != nil {
		for _, t := range balance.TransfersFromSheet(incoming) {
			add(t.ID)
		}
	}
	for _, t := range response.Alkanes.Transfers {
		add(t.ID.AsRuneId())
	}
	return ids
}
