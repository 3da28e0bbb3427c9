package hostabi

import (
	"fmt"

	"github.com/alkanes-io/alkanes/internal/execution"
	"github.com/alkanes-io/alkanes/internal/runetx"
)

// ErrReadOnlyWrite is the trap a staticcall frame raises when the guest
// attempts __set_storage or a non-staticcall nested extcall: no asset
// movement is permitted inside a read-only frame, so writes trap.
var ErrReadOnlyWrite = fmt.Errorf("hostabi: write attempted in a read-only frame")

// GuestAbort is the error carried by a voluntary __abort call — a trap with
// guest-provided error bytes.
type GuestAbort struct {
	Reason []byte
}

func (e *GuestAbort) Error() string {
	return fmt.Sprintf("hostabi: guest abort: %s", e.Reason)
}

// dispatchExtcall derives the callee's child frame from the cellpack
// target and routes execution through env.dispatcher, returning the
// callee's response and the fuel it left unspent.
func dispatchExtcall(env *hostEnv, variant execution.Variant, cellpackBytes []byte, parcel execution.AlkaneTransferParcel, childBudget uint64) (execution.CallResponse, uint64, error) {
	cp, err := runetx.ParseCellpack(cellpackBytes)
	if err != nil {
		return execution.CallResponse{}, 0, err
	}
	childFrame := execution.DeriveFrame(env.frame, variant, cp.Target, childBudget)

	response, err := env.dispatcher.Dispatch(variant, childFrame, cellpackBytes, parcel)
	unused := childFrame.Fuel.Remaining()
	if err != nil {
		return execution.CallResponse{}, unused, err
	}
	return response, unused, nil
}
