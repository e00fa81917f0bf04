// Package runtime provides the high-level embedding API for the wasm-vm
// interpreter.
//
// # Quick Start
//
//	rt := runtime.New()
//
//	mod, err := runtime.Load(wasmBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	_, err = rt.Instantiate(mod, "calc", linker.ModeInstantiate)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	results, err := rt.Invoke("calc", "add", int32(2), int32(3))
//	fmt.Println(results[0].I32()) // 5
//
// # Host Modules
//
// Host modules are registered before instantiating modules that import
// them, and survive Reset:
//
//	err := rt.NewHostModule("env").
//	    AddFunc("log", wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}},
//	        func(args []engine.Value) ([]engine.Value, error) {
//	            fmt.Println(args[0].I32())
//	            return nil, nil
//	        }).
//	    Register()
//
// # Configuration
//
//	rt := runtime.New(
//	    runtime.WithMemoryMaxPages(256),
//	    runtime.WithInterpretMode(engine.ModeCompiledIfPresent),
//	    runtime.WithMaxCallDepth(512),
//	)
//
// # Errors and Traps
//
// Load, Instantiate, and Invoke return the structured error taxonomy from
// the errors package. Execution traps are *errors.Trap; use errors.AsTrap
// to inspect the trap code.
//
// # Thread Safety
//
// A Runtime is NOT safe for concurrent use: exactly one instantiation or
// invocation may be active at any time.
package runtime
