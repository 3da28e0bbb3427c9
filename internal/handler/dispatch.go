package handler

import (
	"fmt"

	"github.com/alkanes-io/alkanes/internal/execution"
	"github.com/alkanes-io/alkanes/internal/runetx"
)

// Dispatch satisfies hostabi.Dispatcher: it resolves the callee's bytecode,
// opens a nested checkpoint, runs the guest module, and records the
// matching trace events.
func (h *Handler) Dispatch(variant execution.Variant, frame execution.Frame, cellpack []byte, parcel execution.AlkaneTransferParcel) (execution.CallResponse, error) {
	cp, err := runetx.ParseCellpack(cellpack)
	if err != nil {
		return execution.CallResponse{}, err
	}

	h.depth++
	defer func() { h.depth-- }()
	if h.depth > execution.MaxFrameDepth {
		return execution.CallResponse{}, execution.ErrMaxDepthExceeded
	}

	compressed := h.Bytecode.Get(cp.Target)
	if compressed == nil {
		return execution.CallResponse{}, fmt.Errorf("handler: no bytecode deployed at %s", cp.Target)
	}

	ctx := execution.Context{
		Myself:          frame.Myself,
		Caller:          frame.Caller,
		IncomingAlkanes: parcel,
		Inputs:          cp.Inputs,
	}

	if h.currentTrace != nil {
		h.currentTrace.Enter(variant, h.depth, ctx)
	}

	checkpoint := h.Store.Checkpoint()
	response, err := h.Sandbox.Run(compressed, frame, ctx, h.Store, h.currentTrace, h.Seq, h.currentHeight, h)
	if err != nil {
		h.Store.Rollback(checkpoint)
		if h.currentTrace != nil {
			h.currentTrace.Revert(h.depth, ctx, []byte(err.Error()))
		}
		return execution.CallResponse{}, err
	}
	h.Store.Commit()
	if h.currentTrace != nil {
		h.currentTrace.Return(h.depth, ctx, response)
	}
	return response, nil
}
