package handler

import (
	"fmt"

	"github.com/btcsuite/btcd/wire"

	"github.com/alkanes-io/alkanes/internal/alkaneid"
	"github.com/alkanes-io/alkanes/internal/balance"
	"github.com/alkanes-io/alkanes/internal/execution"
	"github.com/alkanes-io/alkanes/internal/hostabi"
	"github.com/alkanes-io/alkanes/internal/kvstore"
	"github.com/alkanes-io/alkanes/internal/runetx"
	"github.com/alkanes-io/alkanes/internal/witness"
)

// MessageContextParcel is the fully-built input to one protostone message.
type MessageContextParcel struct {
	Tx                   *wire.MsgTx
	Height               uint64
	TxIndex              int
	Vout                 uint32
	PointerVout          *uint32
	RefundVout           *uint32
	FirstNonOPReturnVout *uint32
	Incoming             *balance.Sheet
}

// Handler runs the message handler orchestration: target resolution,
// fuel/checkpoint setup, WASM execution, and the success/failure ledger
// and trace effects.
type Handler struct {
	Store          kvstore.Pointer // storage root every contract's own subtree nests under
	Bytecode       BytecodeStore
	Seq            *Sequence
	Sandbox        *hostabi.Sandbox
	FuelPerMessage uint64

	// currentTrace/depth/currentHeight are scratch state for the single
	// in-flight top-level message, set up by Handle and read by Dispatch
	// while satisfying hostabi.Dispatcher for nested extcalls. Safe because
	// message execution is strictly single-threaded and non-reentrant
	// across distinct top-level messages.
	currentTrace  *execution.Trace
	depth         int
	currentHeight uint64
}

// Handle runs one protostone message to completion against the shared
// per-transaction outpoint ledger byOutput, returning the trace recorded
// at the message's own vout. A nil trace with a nil error means the
// message was a decode failure and produced no ledger change beyond what
// edict pre-positioning already did.
func (h *Handler) Handle(parcel MessageContextParcel, stone runetx.Protostone, byOutput balance.ByOutput) (*execution.Trace, error) {
	cp, err := runetx.ParseCellpack(stone.Message)
	if err != nil {
		return nil, nil
	}

	kind, err := Classify(cp.Target)
	if err != nil {
		return h.fail(parcel, byOutput, execution.Context{Inputs: cp.Inputs}, []byte(err.Error()))
	}

	myself, compressed, err := h.resolveBytecode(kind, cp.Target, parcel)
	if err != nil {
		return h.fail(parcel, byOutput, execution.Context{Inputs: cp.Inputs}, []byte(err.Error()))
	}

	incoming := toTransferParcel(parcel.Incoming)
	ctx := execution.Context{
		Myself:          myself,
		Caller:          alkaneid.Zero,
		IncomingAlkanes: incoming,
		Inputs:          cp.Inputs,
	}
	frame := execution.Frame{Variant: execution.Call, Myself: myself, Caller: alkaneid.Zero, Fuel: execution.NewMeter(h.FuelPerMessage)}

	trace := &execution.Trace{}
	trace.Enter(execution.Call, 1, ctx)

	h.currentTrace = trace
	h.depth = 1
	h.currentHeight = parcel.Height
	defer func() {
		h.currentTrace = nil
		h.depth = 0
	}()

	checkpoint := h.Store.Checkpoint()
	response, runErr := h.Sandbox.Run(compressed, frame, ctx, h.Store, trace, h.Seq, parcel.Height, h)
	if runErr != nil {
		h.Store.Rollback(checkpoint)
		trace.Revert(1, ctx, []byte(runErr.Error()))
		return h.refundAfterRevert(parcel, byOutput, trace)
	}

	if err := h.applyAssetMovement(myself, parcel.Incoming, response); err != nil {
		h.Store.Rollback(checkpoint)
		trace.Revert(1, ctx, []byte(err.Error()))
		return h.refundAfterRevert(parcel, byOutput, trace)
	}
	h.Store.Commit()
	if err := applyResponse(byOutput, parcel.Vout, response); err != nil {
		return trace, err
	}
	trace.Return(1, ctx, response)
	return trace, nil
}

// resolveBytecode maps a classified target to the concrete myself identity
// and the compressed bytecode it should run.
func (h *Handler) resolveBytecode(kind ResolveKind, target alkaneid.AlkaneId, parcel MessageContextParcel) (alkaneid.AlkaneId, []byte, error) {
	switch kind {
	case CreateFromWitness:
		payload, ok := witness.FindPayload(parcel.Tx)
		if !ok {
			return alkaneid.AlkaneId{}, nil, fmt.Errorf("handler: (1,0) create with no witness payload")
		}
		myself := AllocateID(h.Seq)
		h.Bytecode.Set(myself, payload)
		return myself, payload, nil

	case CloneTemplate, FactoryCreate:
		slot := TemplateSlot(kind, target)
		compressed := h.Bytecode.Get(slot)
		if compressed == nil {
			return alkaneid.AlkaneId{}, nil, fmt.Errorf("handler: no template registered at slot %s", slot)
		}
		myself := AllocateID(h.Seq)
		h.Bytecode.Set(myself, compressed)
		return myself, compressed, nil

	case CallExisting:
		compressed := h.Bytecode.Get(target)
		if compressed == nil {
			return alkaneid.AlkaneId{}, nil, fmt.Errorf("handler: no bytecode deployed at %s", target)
		}
		return target, compressed, nil

	default:
		return alkaneid.AlkaneId{}, nil, ErrUnresolvedTarget
	}
}

// fail runs the refund path without ever opening a checkpoint or spending
// fuel — used for resolve-class failures discovered before execution
// begins.
func (h *Handler) fail(parcel MessageContextParcel, byOutput balance.ByOutput, ctx execution.Context, reason []byte) (*execution.Trace, error) {
	trace := &execution.Trace{}
	trace.Enter(execution.Call, 1, ctx)
	trace.Revert(1, ctx, reason)
	return h.refundAfterRevert(parcel, byOutput, trace)
}

// refundAfterRevert moves the message's incoming assets to the refund
// pointer vout, the first non-OP_RETURN output, or burns them, in that
// priority order.
func (h *Handler) refundAfterRevert(parcel MessageContextParcel, byOutput balance.ByOutput, trace *execution.Trace) (*execution.Trace, error) {
	target := parcel.RefundVout
	if target == nil {
		target = parcel.FirstNonOPReturnVout
	}
	if target == nil {
		// No usable refund target: burn by dropping the vout entry
		// entirely rather than crediting any output (see DESIGN.md).
		delete(byOutput, parcel.Vout)
		return trace, nil
	}
	if err := balance.RefundToRefundPointer(byOutput, parcel.Vout, *target); err != nil {
		return trace, err
	}
	return trace, nil
}

// applyResponse credits the message's pointer vout with response.alkanes.
// The runtime-balance debit/credit against myself's own holdings happens
// separately in applyAssetMovement, inside the same checkpoint.
func applyResponse(byOutput balance.ByOutput, vout uint32, response execution.CallResponse) error {
	out := balance.NewSheet()
	for _, t := range response.Alkanes.Transfers {
		runeID := t.ID.AsRuneId()
		if err := out.Increase(runeID, t.Value); err != nil {
			return err
		}
	}
	return balance.IncreaseUsingSheet(byOutput, out, vout)
}

func toTransferParcel(sheet *balance.Sheet) execution.AlkaneTransferParcel {
	if sheet == nil {
		return execution.AlkaneTransferParcel{}
	}
	var transfers []execution.Transfer
	for _, t := range balance.TransfersFromSheet(sheet) {
		transfers = append(transfers, execution.Transfer{
			ID:    alkaneid.AlkaneId{Block: t.ID.Block, Tx: t.ID.Tx},
			Value: t.Value,
		})
	}
	return execution.AlkaneTransferParcel{Transfers: transfers}
}
