package execution

import "errors"

// ErrOutOfFuel is returned by Meter.Charge when a deduction would take the
// remaining balance below zero. The caller traps the current frame.
var ErrOutOfFuel = errors.New("execution: out of fuel")

// childFuelNumerator/childFuelDenominator fix the extcall fuel split at
// 63/64 of the parent's remaining balance. The exact ratio is
// consensus-relevant and must never drift between releases.
const (
	childFuelNumerator   = 63
	childFuelDenominator = 64
)

// Meter is a frame's deterministic compute budget. Every host-function
// call deducts from it before taking effect; guest instructions, branches
// and memory growth are not metered.
type Meter struct {
	remaining uint64
}

// NewMeter starts a meter with the given budget.
func NewMeter(budget uint64) *Meter {
	return &Meter{remaining: budget}
}

// Remaining returns the fuel left in this frame.
func (m *Meter) Remaining() uint64 { return m.remaining }

// Charge deducts cost, failing with ErrOutOfFuel if it would underflow.
func (m *Meter) Charge(cost uint64) error {
	if cost > m.remaining {
		m.remaining = 0
		return ErrOutOfFuel
	}
	m.remaining -= cost
	return nil
}

// ChildBudget computes the fuel allotment a nested extcall receives: 63/64
// of what remains in this frame, reserving the rest so the parent can
// always afford to observe and react to the child's result.
func (m *Meter) ChildBudget() uint64 {
	return m.remaining * childFuelNumerator / childFuelDenominator
}

// Spend deducts amount spent by a child frame and, separately, Refund
// credits back whatever the child did not use — the combination keeps the
// parent's ledger exact regardless of how much of the declared allotment
// the child actually consumed.
func (m *Meter) Spend(allotment uint64) error {
	return m.Charge(allotment)
}

// Refund credits unused fuel from a completed child frame back to this
// frame.
func (m *Meter) Refund(unused uint64) {
	m.remaining += unused
}
