// Package errors provides structured error types for the wasm-vm library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The taxonomy is closed: every failure the decoder, validator,
// linker, instantiator, or interpreter can produce maps to one of the Kind
// constants, and execution traps map to a TrapCode.
//
// Use the convenience constructors for common patterns:
//
//	err := errors.Decode(errors.KindMalformedLEB, "u32 at offset %d", pos)
//	err := errors.Link(errors.KindUnknownImport, "env.log")
//	trap := errors.NewTrap(errors.TrapIntegerDivideByZero)
//
// All errors implement the standard error interface and support errors.Is/As;
// two *Error values match when Phase and Kind agree, two *Trap values match
// when their codes agree.
package errors
