package alkaneid

import "testing"

func TestBlockRangeClassification(t *testing.T) {
	cases := []struct {
		name       string
		id         AlkaneId
		isTemplate bool
		isRuntime  bool
		isFactory  bool
	}{
		{"template", AlkaneId{Block: TemplateBlock, Tx: 5}, true, false, false},
		{"runtime", AlkaneId{Block: RuntimeBlock, Tx: 5}, false, true, false},
		{"factory begin", AlkaneId{Block: FactorySlotBegin, Tx: 0}, false, false, true},
		{"factory end", AlkaneId{Block: FactorySlotEnd, Tx: 0}, false, false, true},
		{"unresolved", AlkaneId{Block: 99, Tx: 0}, false, false, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.id.IsTemplate(); got != c.isTemplate {
				t.Fatalf("IsTemplate: got %v want %v", got, c.isTemplate)
			}
			if got := c.id.IsRuntime(); got != c.isRuntime {
				t.Fatalf("IsRuntime: got %v want %v", got, c.isRuntime)
			}
			if got := c.id.IsFactorySlot(); got != c.isFactory {
				t.Fatalf("IsFactorySlot: got %v want %v", got, c.isFactory)
			}
		})
	}
}

func TestLessOrdersByBlockThenTx(t *testing.T) {
	a := AlkaneId{Block: 2, Tx: 5}
	b := AlkaneId{Block: 2, Tx: 6}
	c := AlkaneId{Block: 3, Tx: 0}
	if !a.Less(b) {
		t.Fatal("same block, lower tx should sort first")
	}
	if b.Less(a) {
		t.Fatal("same block, higher tx should not sort first")
	}
	if !b.Less(c) {
		t.Fatal("lower block should sort before higher block regardless of tx")
	}
}

func TestAlkaneIdBytesRoundTrip(t *testing.T) {
	id := AlkaneId{Block: 2, Tx: 4242}
	got, err := ParseAlkaneId(id.Bytes())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != id {
		t.Fatalf("round trip: got %v want %v", got, id)
	}
}

func TestAlkaneIdBytesRejectsWrongLength(t *testing.T) {
	if _, err := ParseAlkaneId(make([]byte, 31)); err == nil {
		t.Fatal("expected an error for a 31-byte buffer")
	}
}

func TestProtoruneRuneIdBytesRoundTrip(t *testing.T) {
	id := ProtoruneRuneId{Block: 2, Tx: 1}
	got, err := ParseProtoruneRuneId(id.Bytes())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != id {
		t.Fatalf("round trip: got %v want %v", got, id)
	}
}

func TestAsRuneIdPreservesBlockAndTx(t *testing.T) {
	id := AlkaneId{Block: 2, Tx: 7}
	got := id.AsRuneId()
	if got.Block != id.Block || got.Tx != id.Tx {
		t.Fatalf("as rune id: got %v want (%d,%d)", got, id.Block, id.Tx)
	}
}

func TestStringFormat(t *testing.T) {
	id := AlkaneId{Block: 2, Tx: 7}
	if got := id.String(); got != "2:7" {
		t.Fatalf("got %q want %q", got, "2:7")
	}
	rid := ProtoruneRuneId{Block: 2, Tx: 7}
	if got := rid.String(); got != "2:7" {
		t.Fatalf("got %q want %q", got, "2:7")
	}
}
