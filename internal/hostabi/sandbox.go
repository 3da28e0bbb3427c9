// Package hostabi wires the fixed host-function import set to a wasmer-go
// sandbox: module load, memory access, fuel deduction, and dispatch of the
// three extcall variants into the guest.
package hostabi

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"

	"github.com/wasmerio/wasmer-go/wasmer"

	"github.com/alkanes-io/alkanes/internal/alkaneid"
	"github.com/alkanes-io/alkanes/internal/execution"
	"github.com/alkanes-io/alkanes/internal/kvstore"
)

// wasmMagic is the four-byte header every module must carry post-
// decompression.
var wasmMagic = []byte{0x00, 0x61, 0x73, 0x6d}

// ErrBadMagic is returned when decompressed bytecode does not start with
// the WASM magic header.
var ErrBadMagic = errors.New("hostabi: decompressed bytecode is not a wasm module")

// MaxMemoryBytes is the largest linear memory a frame may finish with: Run
// fails a frame whose memory has grown past it. Growth is not stopped while
// the guest is running.
const MaxMemoryBytes = 128 * 1024 * 1024

// entrypointName is the guest's single exported function, by convention
// __execute.
const entrypointName = "__execute"

// hostFuelCost is the fixed per-call fuel charge for every imported
// function: every host function deducts fuel before effect.
// __call/__staticcall/__delegatecall charge their declared child budget
// separately via Meter.Spend/Refund.
const hostFuelCost = 1

// Decompress gunzips bytecode and validates the WASM magic header.
func Decompress(compressed []byte) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("hostabi: gunzip bytecode: %w", err)
	}
	defer gr.Close()
	raw, err := io.ReadAll(gr)
	if err != nil {
		return nil, fmt.Errorf("hostabi: gunzip bytecode: %w", err)
	}
	if len(raw) < 4 || !bytes.Equal(raw[:4], wasmMagic) {
		return nil, ErrBadMagic
	}
	return raw, nil
}

// Compress gzips raw wasm bytes for storage (the inverse of Decompress).
func Compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(raw); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SequenceReader exposes the current value of the driver's sequence
// counter to the guest via __sequence. It is satisfied by handler.Sequence
// without hostabi needing to import the handler package.
type SequenceReader interface {
	Current() uint64
}

// Dispatcher resolves a nested extcall's callee bytecode and runs it to
// completion, returning its serialized CallResponse. It is implemented by
// the message-handler layer (which alone knows how to resolve an AlkaneId
// to bytecode and route the recursive call) so this package stays free of
// a dependency on it.
type Dispatcher interface {
	Dispatch(variant execution.Variant, frame execution.Frame, cellpack []byte, parcel execution.AlkaneTransferParcel) (execution.CallResponse, error)
}

// Sandbox owns the wasmer engine used to compile and run every guest
// module in one process.
type Sandbox struct {
	engine *wasmer.Engine
}

// NewSandbox constructs a sandbox with a fresh wasmer engine.
func NewSandbox() *Sandbox {
	return &Sandbox{engine: wasmer.NewEngine()}
}

// Run loads compressed bytecode, instantiates it against frame/ctx/ptr/
// trace/dispatcher, invokes __execute, and returns the decoded
// CallResponse. Any failure (bad magic, unresolved imports, trap, fuel
// exhaustion) is returned as an error; the caller is responsible for
// rolling back ptr's checkpoint.
func (s *Sandbox) Run(
	compressed []byte,
	frame execution.Frame,
	ctx execution.Context,
	ptr kvstore.Pointer,
	trace *execution.Trace,
	seq SequenceReader,
	height uint64,
	dispatcher Dispatcher,
) (execution.CallResponse, error) {
	raw, err := Decompress(compressed)
	if err != nil {
		return execution.CallResponse{}, err
	}

	store := wasmer.NewStore(s.engine)
	module, err := wasmer.NewModule(store, raw)
	if err != nil {
		return execution.CallResponse{}, fmt.Errorf("hostabi: compile module: %w", err)
	}

	env := &hostEnv{
		frame:      frame,
		ctx:        ctx,
		ptr:        ptr,
		trace:      trace,
		seq:        seq,
		height:     height,
		dispatcher: dispatcher,
	}
	imports := registerHostFunctions(store, env)

	instance, err := wasmer.NewInstance(module, imports)
	if err != nil {
		return execution.CallResponse{}, fmt.Errorf("hostabi: instantiate: %w", err)
	}

	mem, err := instance.Exports.GetMemory("memory")
	if err != nil {
		return execution.CallResponse{}, fmt.Errorf("hostabi: module has no exported memory: %w", err)
	}
	env.mem = mem

	entry, err := instance.Exports.GetFunction(entrypointName)
	if err != nil {
		return execution.CallResponse{}, fmt.Errorf("hostabi: missing %s export: %w", entrypointName, err)
	}

	respPtr, err := entry()
	if err != nil {
		return execution.CallResponse{}, fmt.Errorf("hostabi: guest trap: %w", err)
	}
	if env.fatal != nil {
		return execution.CallResponse{}, env.fatal
	}
	if size := len(mem.Data()); size > MaxMemoryBytes {
		return execution.CallResponse{}, fmt.Errorf("hostabi: linear memory of %d bytes exceeds the %d-byte frame limit", size, MaxMemoryBytes)
	}

	respPtrI32, ok := respPtr.(int32)
	if !ok {
		return execution.CallResponse{}, errors.New("hostabi: __execute did not return an i32 pointer")
	}
	respBytes, err := ReadArrayBuffer(mem.Data(), respPtrI32)
	if err != nil {
		return execution.CallResponse{}, fmt.Errorf("hostabi: read response: %w", err)
	}
	return execution.DecodeCallResponse(respBytes)
}

// hostEnv is the mutable state every host function closure shares for one
// module invocation.
type hostEnv struct {
	mem        *wasmer.Memory
	frame      execution.Frame
	ctx        execution.Context
	ptr        kvstore.Pointer
	trace      *execution.Trace
	seq        SequenceReader
	height     uint64
	dispatcher Dispatcher
	fatal      error
}

func (h *hostEnv) charge(cost uint64) bool {
	if err := h.frame.Fuel.Charge(cost); err != nil {
		h.fatal = err
		return false
	}
	return true
}

// storagePointer derives the pointer scoped to myself's own storage
// subtree, keyed by a guest-supplied key.
func (h *hostEnv) storagePointer(key []byte) kvstore.Pointer {
	return h.ptr.Select(alkanesStorageInfix(h.frame.Myself)).Select(key)
}

// alkanesStorageInfix namespaces a contract's storage subtree by its own
// identity, so myself's storage never aliases another contract's.
func alkanesStorageInfix(id alkaneid.AlkaneId) []byte {
	return id.Bytes()
}
