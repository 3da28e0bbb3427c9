package execution

import (
	"encoding/binary"

	"github.com/alkanes-io/alkanes/internal/alkaneid"
)

// EventKind tags the variants of a trace Event.
type EventKind int

const (
	EnterCall EventKind = iota
	EnterStaticcall
	EnterDelegatecall
	ReturnContext
	RevertContext
	CreateAlkane
	LogRecord
)

func (k EventKind) String() string {
	switch k {
	case EnterCall:
		return "EnterCall"
	case EnterStaticcall:
		return "EnterStaticcall"
	case EnterDelegatecall:
		return "EnterDelegatecall"
	case ReturnContext:
		return "ReturnContext"
	case RevertContext:
		return "RevertContext"
	case CreateAlkane:
		return "CreateAlkane"
	case LogRecord:
		return "LogRecord"
	default:
		return "Unknown"
	}
}

// Event is one append-only entry in a message's trace. Traces are
// informational, not consensus-observable, but are still persisted bit for
// bit so replays are reproducible.
type Event struct {
	Kind    EventKind
	Depth   int
	Context Context
	Data    []byte // ReturnContext/RevertContext payload, or a log record
}

// Trace is the ordered event log captured for one message's outpoint.
type Trace struct {
	Events []Event
}

// Enter appends the frame-entry event matching variant.
func (t *Trace) Enter(variant Variant, depth int, ctx Context) {
	kind := EnterCall
	switch variant {
	case Staticcall:
		kind = EnterStaticcall
	case Delegatecall:
		kind = EnterDelegatecall
	}
	t.Events = append(t.Events, Event{Kind: kind, Depth: depth, Context: ctx})
}

// Return appends a successful-completion event carrying the encoded
// CallResponse.
func (t *Trace) Return(depth int, ctx Context, response CallResponse) {
	t.Events = append(t.Events, Event{Kind: ReturnContext, Depth: depth, Context: ctx, Data: response.Encode()})
}

// Revert appends a failure event carrying the guest- or host-provided
// error bytes.
func (t *Trace) Revert(depth int, ctx Context, errBytes []byte) {
	t.Events = append(t.Events, Event{Kind: RevertContext, Depth: depth, Context: ctx, Data: errBytes})
}

// Create appends a record of a newly minted alkane id, before its
// constructor has run.
func (t *Trace) Create(depth int, ctx Context, id alkaneid.AlkaneId) {
	t.Events = append(t.Events, Event{Kind: CreateAlkane, Depth: depth, Context: ctx, Data: id.Bytes()})
}

// Log appends a voluntary, non-consensus observability record.
func (t *Trace) Log(depth int, ctx Context, record []byte) {
	t.Events = append(t.Events, Event{Kind: LogRecord, Depth: depth, Context: ctx, Data: record})
}

// Encode serializes the trace deterministically, bit for bit, so a replayed
// index produces identical persisted bytes. Layout: u32 event count, then
// per event: u8 kind || u32 depth || u32 context length || context || u32
// data length || data.
func (t Trace) Encode() []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(len(t.Events)))
	buf := append([]byte{}, tmp[:]...)
	for _, e := range t.Events {
		buf = append(buf, byte(e.Kind))
		binary.LittleEndian.PutUint32(tmp[:], uint32(e.Depth))
		buf = append(buf, tmp[:]...)
		ctxBytes := e.Context.Encode()
		binary.LittleEndian.PutUint32(tmp[:], uint32(len(ctxBytes)))
		buf = append(buf, tmp[:]...)
		buf = append(buf, ctxBytes...)
		binary.LittleEndian.PutUint32(tmp[:], uint32(len(e.Data)))
		buf = append(buf, tmp[:]...)
		buf = append(buf, e.Data...)
	}
	return buf
}

// DecodeTrace parses the layout Encode produces.
func DecodeTrace(b []byte) (Trace, error) {
	if len(b) < 4 {
		return Trace{}, ErrTruncated
	}
	count := binary.LittleEndian.Uint32(b)
	off := 4
	out := Trace{Events: make([]Event, 0, count)}
	for i := uint32(0); i < count; i++ {
		if len(b) < off+1+4+4 {
			return Trace{}, ErrTruncated
		}
		kind := EventKind(b[off])
		off++
		depth := int(binary.LittleEndian.Uint32(b[off:]))
		off += 4
		ctxLen := int(binary.LittleEndian.Uint32(b[off:]))
		off += 4
		if len(b) < off+ctxLen+4 {
			return Trace{}, ErrTruncated
		}
		ctx, err := DecodeContext(b[off : off+ctxLen])
		if err != nil {
			return Trace{}, err
		}
		off += ctxLen
		dataLen := int(binary.LittleEndian.Uint32(b[off:]))
		off += 4
		if len(b) < off+dataLen {
			return Trace{}, ErrTruncated
		}
		var data []byte
		if dataLen > 0 {
			data = append([]byte{}, b[off:off+dataLen]...)
		}
		off += dataLen
		out.Events = append(out.Events, Event{Kind: kind, Depth: depth, Context: ctx, Data: data})
	}
	return out, nil
}
