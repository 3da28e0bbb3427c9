package hostabi

import (
	"github.com/wasmerio/wasmer-go/wasmer"

	"github.com/alkanes-io/alkanes/internal/execution"
)

func valueTypes(kinds ...wasmer.ValueKind) []*wasmer.ValueType {
	cast := make([]wasmer.ValueKind, len(kinds))
	for i, k := range kinds {
		cast[i] = wasmer.ValueKind(k)
	}
	return wasmer.NewValueTypes(cast...)
}

// registerHostFunctions builds the fixed import set the guest sees.
// Extcall signatures deviate from the literal
// `(..., fuel) -> response_ptr` shape in one respect: the guest supplies
// the destination pointer for the response, since the host has no
// allocator into guest memory; the return value is the response length (or
// -1, with the frame's fatal error set, on failure). This is documented as
// a deliberate implementability simplification.
func registerHostFunctions(store *wasmer.Store, env *hostEnv) *wasmer.ImportObject {
	imports := wasmer.NewImportObject()

	requestContext := wasmer.NewFunction(store,
		wasmer.NewFunctionType(valueTypes(), valueTypes(wasmer.I32)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			if !env.charge(hostFuelCost) {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			return []wasmer.Value{wasmer.NewI32(int32(len(env.ctx.Encode())))}, nil
		})

	loadContext := wasmer.NewFunction(store,
		wasmer.NewFunctionType(valueTypes(wasmer.I32), valueTypes()),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			if !env.charge(hostFuelCost) {
				return nil, nil
			}
			dest := args[0].I32()
			_ = WriteRaw(env.mem.Data(), dest, env.ctx.Encode())
			return nil, nil
		})

	requestStorage := wasmer.NewFunction(store,
		wasmer.NewFunctionType(valueTypes(wasmer.I32), valueTypes(wasmer.I32)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			if !env.charge(hostFuelCost) {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			key, err := ReadArrayBuffer(env.mem.Data(), args[0].I32())
			if err != nil {
				env.fatal = err
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			val := env.storagePointer(key).Get()
			return []wasmer.Value{wasmer.NewI32(int32(len(val)))}, nil
		})

	loadStorage := wasmer.NewFunction(store,
		wasmer.NewFunctionType(valueTypes(wasmer.I32, wasmer.I32), valueTypes()),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			if !env.charge(hostFuelCost) {
				return nil, nil
			}
			key, err := ReadArrayBuffer(env.mem.Data(), args[0].I32())
			if err != nil {
				env.fatal = err
				return nil, nil
			}
			val := env.storagePointer(key).Get()
			if err := WriteRaw(env.mem.Data(), args[1].I32(), val); err != nil {
				env.fatal = err
			}
			return nil, nil
		})

	setStorage := wasmer.NewFunction(store,
		wasmer.NewFunctionType(valueTypes(wasmer.I32, wasmer.I32), valueTypes()),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			if !env.charge(hostFuelCost) {
				return nil, nil
			}
			if env.frame.ReadOnly {
				env.fatal = ErrReadOnlyWrite
				return nil, nil
			}
			key, err := ReadArrayBuffer(env.mem.Data(), args[0].I32())
			if err != nil {
				env.fatal = err
				return nil, nil
			}
			value, err := ReadArrayBuffer(env.mem.Data(), args[1].I32())
			if err != nil {
				env.fatal = err
				return nil, nil
			}
			env.storagePointer(key).Set(value)
			return nil, nil
		})

	height := wasmer.NewFunction(store,
		wasmer.NewFunctionType(valueTypes(), valueTypes(wasmer.I64)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			if !env.charge(hostFuelCost) {
				return []wasmer.Value{wasmer.NewI64(-1)}, nil
			}
			return []wasmer.Value{wasmer.NewI64(int64(env.height))}, nil
		})

	sequence := wasmer.NewFunction(store,
		wasmer.NewFunctionType(valueTypes(), valueTypes(wasmer.I64)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			if !env.charge(hostFuelCost) {
				return []wasmer.Value{wasmer.NewI64(-1)}, nil
			}
			return []wasmer.Value{wasmer.NewI64(int64(env.seq.Current()))}, nil
		})

	fuel := wasmer.NewFunction(store,
		wasmer.NewFunctionType(valueTypes(), valueTypes(wasmer.I64)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			if !env.charge(hostFuelCost) {
				return []wasmer.Value{wasmer.NewI64(-1)}, nil
			}
			return []wasmer.Value{wasmer.NewI64(int64(env.frame.Fuel.Remaining()))}, nil
		})

	logFn := wasmer.NewFunction(store,
		wasmer.NewFunctionType(valueTypes(wasmer.I32), valueTypes()),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			if !env.charge(hostFuelCost) {
				return nil, nil
			}
			record, err := ReadArrayBuffer(env.mem.Data(), args[0].I32())
			if err != nil {
				env.fatal = err
				return nil, nil
			}
			env.trace.Log(1, env.ctx, record)
			return nil, nil
		})

	abort := wasmer.NewFunction(store,
		wasmer.NewFunctionType(valueTypes(wasmer.I32), valueTypes()),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			if !env.charge(hostFuelCost) {
				return nil, nil
			}
			record, err := ReadArrayBuffer(env.mem.Data(), args[0].I32())
			if err != nil {
				env.fatal = err
				return nil, nil
			}
			env.fatal = &GuestAbort{Reason: record}
			return nil, nil
		})

	call := makeExtcallFunction(store, env, execution.Call)
	staticcall := makeExtcallFunction(store, env, execution.Staticcall)
	delegatecall := makeExtcallFunction(store, env, execution.Delegatecall)

	imports.Register("env", map[string]wasmer.IntoExtern{
		"__request_context": requestContext,
		"__load_context":    loadContext,
		"__request_storage": requestStorage,
		"__load_storage":    loadStorage,
		"__set_storage":     setStorage,
		"__height":          height,
		"__sequence":        sequence,
		"__fuel":            fuel,
		"__call":            call,
		"__staticcall":      staticcall,
		"__delegatecall":    delegatecall,
		"__log":             logFn,
		"__abort":           abort,
	})
	return imports
}

// makeExtcallFunction builds the host function backing one of
// __call/__staticcall/__delegatecall. Guest signature:
//
//	(cellpack_ptr i32, parcel_ptr i32, fuel i64, out_ptr i32) -> i32
//
// returning the length of the CallResponse written at out_ptr, or -1 (with
// the frame's fatal error set) on failure.
func makeExtcallFunction(store *wasmer.Store, env *hostEnv, variant execution.Variant) *wasmer.Function {
	return wasmer.NewFunction(store,
		wasmer.NewFunctionType(valueTypes(wasmer.I32, wasmer.I32, wasmer.I64, wasmer.I32), valueTypes(wasmer.I32)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			if !env.charge(hostFuelCost) {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			cellpackBytes, err := ReadArrayBuffer(env.mem.Data(), args[0].I32())
			if err != nil {
				env.fatal = err
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			parcelBytes, err := ReadArrayBuffer(env.mem.Data(), args[1].I32())
			if err != nil {
				env.fatal = err
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			parcel, _, err := execution.DecodeAlkaneTransferParcel(parcelBytes)
			if err != nil {
				env.fatal = err
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			declaredFuel := uint64(args[2].I64())
			childBudget := env.frame.Fuel.ChildBudget()
			if declaredFuel < childBudget {
				childBudget = declaredFuel
			}
			if env.frame.ReadOnly && variant != execution.Staticcall {
				env.fatal = ErrReadOnlyWrite
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}

			if err := env.frame.Fuel.Spend(childBudget); err != nil {
				env.fatal = err
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}

			// dispatchExtcall derives the callee's frame (myself/caller/
			// read-only) from the cellpack's target via DeriveFrame and
			// hands it to env.dispatcher with the child fuel budget.
			response, unused, err := dispatchExtcall(env, variant, cellpackBytes, parcel, childBudget)
			env.frame.Fuel.Refund(unused)
			if err != nil {
				env.fatal = err
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}

			encoded := response.Encode()
			if err := WriteArrayBuffer(env.mem.Data(), args[3].I32(), encoded); err != nil {
				env.fatal = err
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			return []wasmer.Value{wasmer.NewI32(int32(len(encoded)))}, nil
		})
}
