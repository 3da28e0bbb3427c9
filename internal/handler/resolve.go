package handler

import (
	"errors"

	"github.com/alkanes-io/alkanes/internal/alkaneid"
)

// ErrUnresolvedTarget is returned when a cellpack's target matches none of
// the recognized resolution classes.
var ErrUnresolvedTarget = errors.New("handler: unresolved cellpack target")

// ResolveKind classifies a cellpack's target into one of the four message-
// handler creation/call paths.
type ResolveKind int

const (
	// CreateFromWitness is target (1,0): a brand-new alkane whose bytecode
	// comes from the transaction's witness inscription.
	CreateFromWitness ResolveKind = iota
	// CloneTemplate is target (1,n) with n != 0: a new instance cloned from
	// the built-in template registered at slot n.
	CloneTemplate
	// FactoryCreate is target (B,n) with B in {3,4,5,6}: a new instance
	// cloned from the factory template registered at the reserved slot.
	FactoryCreate
	// CallExisting is target (2,k): invoke an already-deployed instance.
	CallExisting
)

// Classify resolves target into a ResolveKind, or ErrUnresolvedTarget if it
// names neither a creation slot nor a runtime instance.
func Classify(target alkaneid.AlkaneId) (ResolveKind, error) {
	switch {
	case target.IsTemplate() && target.Tx == 0:
		return CreateFromWitness, nil
	case target.IsTemplate():
		return CloneTemplate, nil
	case target.IsFactorySlot():
		return FactoryCreate, nil
	case target.IsRuntime():
		return CallExisting, nil
	default:
		return 0, ErrUnresolvedTarget
	}
}

// AllocateID assigns the fresh (2, sequence) identity every creation path
// shares, advancing seq.
func AllocateID(seq *Sequence) alkaneid.AlkaneId {
	return alkaneid.AlkaneId{Block: alkaneid.RuntimeBlock, Tx: seq.Next()}
}

// TemplateSlot returns the reserved slot a CloneTemplate or FactoryCreate
// target's bytecode is copied from — for CloneTemplate that is the target
// itself; for FactoryCreate it is the (block, 0) slot registered at genesis
// for that factory family.
func TemplateSlot(kind ResolveKind, target alkaneid.AlkaneId) alkaneid.AlkaneId {
	if kind == FactoryCreate {
		return alkaneid.AlkaneId{Block: target.Block, Tx: 0}
	}
	return target
}
