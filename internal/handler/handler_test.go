package handler

import (
	"testing"

	"github.com/btcsuite/btcd/wire"

	"github.com/alkanes-io/alkanes/internal/alkaneid"
	"github.com/alkanes-io/alkanes/internal/balance"
	"github.com/alkanes-io/alkanes/internal/execution"
	"github.com/alkanes-io/alkanes/internal/hostabi"
	"github.com/alkanes-io/alkanes/internal/kvstore"
	"github.com/alkanes-io/alkanes/internal/runetx"
	"github.com/alkanes-io/alkanes/internal/u128"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		target alkaneid.AlkaneId
		want   ResolveKind
		ok     bool
	}{
		{"witness create", alkaneid.AlkaneId{Block: alkaneid.TemplateBlock, Tx: 0}, CreateFromWitness, true},
		{"clone template", alkaneid.AlkaneId{Block: alkaneid.TemplateBlock, Tx: 5}, CloneTemplate, true},
		{"factory slot", alkaneid.AlkaneId{Block: alkaneid.FactorySlotBegin, Tx: 0}, FactoryCreate, true},
		{"runtime call", alkaneid.AlkaneId{Block: alkaneid.RuntimeBlock, Tx: 42}, CallExisting, true},
		{"unresolved", alkaneid.AlkaneId{Block: 99, Tx: 0}, 0, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := Classify(c.target)
			if c.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !c.ok && err != ErrUnresolvedTarget {
				t.Fatalf("expected ErrUnresolvedTarget, got %v", err)
			}
			if c.ok && got != c.want {
				t.Fatalf("got %v want %v", got, c.want)
			}
		})
	}
}

func TestTemplateSlot(t *testing.T) {
	clone := alkaneid.AlkaneId{Block: alkaneid.TemplateBlock, Tx: 7}
	if got := TemplateSlot(CloneTemplate, clone); got != clone {
		t.Fatalf("clone template slot: got %v want %v", got, clone)
	}
	factory := alkaneid.AlkaneId{Block: alkaneid.FactorySlotBegin, Tx: 3}
	want := alkaneid.AlkaneId{Block: alkaneid.FactorySlotBegin, Tx: 0}
	if got := TemplateSlot(FactoryCreate, factory); got != want {
		t.Fatalf("factory slot: got %v want %v", got, want)
	}
}

func TestAllocateIDAdvancesSequence(t *testing.T) {
	store := kvstore.NewInMemoryStore()
	root := kvstore.NewPointer(store, []byte("t/"))
	seq := NewSequence(root.Keyword("sequence"))

	first := AllocateID(seq)
	second := AllocateID(seq)
	if first.Block != alkaneid.RuntimeBlock || first.Tx != 1 {
		t.Fatalf("first id: got %v", first)
	}
	if second.Tx != 2 {
		t.Fatalf("second id: got %v", second)
	}

	seq.RestoreTo(0)
	if got := seq.Current(); got != 0 {
		t.Fatalf("restore to: got %d want 0", got)
	}
}

func TestBytecodeStoreRoundTrip(t *testing.T) {
	store := kvstore.NewInMemoryStore()
	root := kvstore.NewPointer(store, []byte("t/"))
	bc := NewBytecodeStore(root.Keyword("bytecode"))
	id := alkaneid.AlkaneId{Block: 2, Tx: 1}

	if bc.Has(id) {
		t.Fatalf("expected no bytecode before Set")
	}
	bc.Set(id, []byte("compressed"))
	if !bc.Has(id) {
		t.Fatalf("expected bytecode after Set")
	}
	if got := bc.Get(id); string(got) != "compressed" {
		t.Fatalf("get: got %q", got)
	}
	if got := bc.Get(alkaneid.AlkaneId{Block: 2, Tx: 99}); got != nil {
		t.Fatalf("expected nil for unset id, got %v", got)
	}
}

func TestRunGenesisIsIdempotent(t *testing.T) {
	store := kvstore.NewInMemoryStore()
	root := kvstore.NewPointer(store, []byte("t/"))
	bc := NewBytecodeStore(root.Keyword("bytecode"))
	slot := alkaneid.AlkaneId{Block: alkaneid.FactorySlotBegin, Tx: 0}
	table := GenesisTable{Templates: []TemplateEntry{{Slot: slot, Raw: []byte("\x00asm raw module")}}}

	if err := RunGenesis(table, bc); err != nil {
		t.Fatalf("genesis: %v", err)
	}
	first := bc.Get(slot)
	if first == nil {
		t.Fatalf("expected bytecode deployed at slot")
	}

	// Re-running genesis against an already-populated slot must not
	// overwrite it.
	if err := RunGenesis(GenesisTable{Templates: []TemplateEntry{{Slot: slot, Raw: []byte("different")}}}, bc); err != nil {
		t.Fatalf("genesis rerun: %v", err)
	}
	if got := bc.Get(slot); string(got) != string(first) {
		t.Fatalf("genesis rerun must be a no-op per slot: got %q want %q", got, first)
	}
}

func TestPremineAmount(t *testing.T) {
	got, err := PremineAmount(110, 100, 5)
	if err != nil {
		t.Fatalf("premine: %v", err)
	}
	if got != 50 {
		t.Fatalf("premine: got %d want 50", got)
	}

	if _, err := PremineAmount(50, 100, 5); err == nil {
		t.Fatalf("expected error for height before genesis")
	}
}

func TestApplyAssetMovementCreditsThenDebits(t *testing.T) {
	store := kvstore.NewInMemoryStore()
	root := kvstore.NewPointer(store, []byte("t/"))
	h := &Handler{Store: root}
	myself := alkaneid.AlkaneId{Block: 2, Tx: 5}
	runeID := alkaneid.ProtoruneRuneId{Block: 2, Tx: 5}

	incoming := balance.NewSheet()
	if err := incoming.Increase(runeID, u128.FromUint64(100)); err != nil {
		t.Fatalf("seed incoming: %v", err)
	}
	response := execution.CallResponse{
		Alkanes: execution.AlkaneTransferParcel{
			Transfers: []execution.Transfer{{ID: myself, Value: u128.FromUint64(30)}},
		},
	}

	if err := h.applyAssetMovement(myself, incoming, response); err != nil {
		t.Fatalf("apply asset movement: %v", err)
	}

	sheet, err := balance.LoadFromPointer(h.runtimeBalancePointer(myself), []alkaneid.ProtoruneRuneId{runeID})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := sheet.Get(runeID); got.Cmp(u128.FromUint64(70)) != 0 {
		t.Fatalf("runtime balance after credit+debit: got %v want 70", got)
	}
}

func TestApplyAssetMovementRejectsOverdraft(t *testing.T) {
	store := kvstore.NewInMemoryStore()
	root := kvstore.NewPointer(store, []byte("t/"))
	h := &Handler{Store: root}
	myself := alkaneid.AlkaneId{Block: 2, Tx: 5}

	response := execution.CallResponse{
		Alkanes: execution.AlkaneTransferParcel{
			Transfers: []execution.Transfer{{ID: myself, Value: u128.FromUint64(1)}},
		},
	}
	if err := h.applyAssetMovement(myself, nil, response); err != balance.ErrArithmetic {
		t.Fatalf("expected ErrArithmetic debiting an empty balance, got %v", err)
	}
}

func TestDispatchFailsWithNoBytecodeDeployed(t *testing.T) {
	store := kvstore.NewInMemoryStore()
	root := kvstore.NewPointer(store, []byte("t/"))
	h := &Handler{
		Store:    root,
		Bytecode: NewBytecodeStore(root.Keyword("bytecode")),
		Seq:      NewSequence(root.Keyword("sequence")),
		Sandbox:  hostabi.NewSandbox(),
	}
	frame := execution.Frame{Myself: alkaneid.AlkaneId{Block: 2, Tx: 1}, Fuel: execution.NewMeter(1000)}

	_, err := h.Dispatch(execution.Call, frame, cellpackBytes(t, frame.Myself), execution.AlkaneTransferParcel{})
	if err == nil {
		t.Fatalf("expected dispatch to fail with no bytecode deployed")
	}
}

func TestHandleUnresolvedTargetRefundsAndReverts(t *testing.T) {
	store := kvstore.NewInMemoryStore()
	root := kvstore.NewPointer(store, []byte("t/"))
	h := &Handler{
		Store:          root,
		Bytecode:       NewBytecodeStore(root.Keyword("bytecode")),
		Seq:            NewSequence(root.Keyword("sequence")),
		Sandbox:        hostabi.NewSandbox(),
		FuelPerMessage: 1_000_000,
	}

	// target (99,0) names neither a template slot, factory slot, nor a
	// runtime instance: Classify returns ErrUnresolvedTarget before any
	// bytecode is touched.
	cellpack := cellpackBytes(t, alkaneid.AlkaneId{Block: 99, Tx: 0})
	stone := protostoneWithMessage(cellpack)

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxOut(wire.NewTxOut(0, []byte{0x51}))
	refundVout := uint32(0)
	byOutput := balance.ByOutput{}

	trace, err := h.Handle(MessageContextParcel{Tx: tx, Height: 1, Vout: 0, RefundVout: &refundVout}, stone, byOutput)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if trace == nil || len(trace.Events) != 2 {
		t.Fatalf("expected a two-event revert trace, got %+v", trace)
	}
	if trace.Events[1].Kind != execution.RevertContext {
		t.Fatalf("expected a revert event, got %v", trace.Events[1].Kind)
	}
}

func TestHandleMalformedCellpackIsSkippedSilently(t *testing.T) {
	store := kvstore.NewInMemoryStore()
	root := kvstore.NewPointer(store, []byte("t/"))
	h := &Handler{
		Store:          root,
		Bytecode:       NewBytecodeStore(root.Keyword("bytecode")),
		Seq:            NewSequence(root.Keyword("sequence")),
		Sandbox:        hostabi.NewSandbox(),
		FuelPerMessage: 1_000_000,
	}
	stone := protostoneWithMessage(nil) // no varints at all: empty calldata

	trace, err := h.Handle(MessageContextParcel{}, stone, balance.ByOutput{})
	if err != nil || trace != nil {
		t.Fatalf("expected a silent decode skip, got trace=%+v err=%v", trace, err)
	}
}

func cellpackBytes(t *testing.T, target alkaneid.AlkaneId) []byte {
	t.Helper()
	return runetx.Cellpack{Target: target}.Encode()
}

func protostoneWithMessage(message []byte) runetx.Protostone {
	return runetx.Protostone{ProtocolTag: runetx.AlkanesProtocolTag, Message: message}
}
