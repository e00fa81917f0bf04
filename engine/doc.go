// Package engine implements the interpreter core: the runtime store, the
// typed operand stack with framed call semantics, and instruction dispatch.
//
// # Main Types
//
//   - Store: owns every runtime entity (functions, tables, memories,
//     globals, module instances) addressed by small integer handles
//   - Interpreter: runs functions over a StackManager and a Provider
//   - StackManager: operand, label, and frame stacks as explicit slices
//   - Provider: decoded-instruction cache with resolved branch targets
//
// # Thread Safety
//
// A Store, StackManager, and Provider form a thread-local triple; exactly
// one instantiation or invocation is active per store at any time, and
// concurrent use is undefined.
//
// # Traps
//
// Execution failures are *errors.Trap values. A trap unwinds every frame of
// the current invocation in O(1) per frame and is returned to the caller;
// the store remains consistent afterwards.
//
// # Example
//
//	store := engine.NewStore(0)
//	interp := engine.NewInterpreter(engine.DefaultConfig())
//	results, err := interp.RunFunction(store, fnAddr, []engine.Value{
//	    engine.I32Value(2),
//	    engine.I32Value(3),
//	})
package engine
