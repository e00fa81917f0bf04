package errors

import "fmt"

// TrapCode identifies the reason an invocation aborted.
type TrapCode string

const (
	TrapUnreachable                TrapCode = "unreachable"
	TrapIntegerDivideByZero        TrapCode = "integer divide by zero"
	TrapIntegerOverflow            TrapCode = "integer overflow"
	TrapInvalidConversionToInteger TrapCode = "invalid conversion to integer"
	TrapOutOfBoundsMemoryAccess    TrapCode = "out of bounds memory access"
	TrapOutOfBoundsTableAccess     TrapCode = "out of bounds table access"
	TrapUninitializedElement       TrapCode = "uninitialized element"
	TrapIndirectCallTypeMismatch   TrapCode = "indirect call type mismatch"
	TrapCallStackExhausted         TrapCode = "call stack exhausted"
	TrapHost                       TrapCode = "host trap"
)

// Trap is an abnormal termination of the current invocation. It unwinds all
// frames of the invocation and is returned to the caller; the store stays
// consistent.
type Trap struct {
	Code   TrapCode
	Detail string
	Cause  error
}

func (t *Trap) Error() string {
	s := "trap: " + string(t.Code)
	if t.Detail != "" {
		s += ": " + t.Detail
	}
	return s
}

func (t *Trap) Unwrap() error {
	return t.Cause
}

// Is reports whether target is a Trap with the same code
func (t *Trap) Is(target error) bool {
	if other, ok := target.(*Trap); ok {
		return other.Code == "" || other.Code == t.Code
	}
	return false
}

// NewTrap creates a Trap with the given code.
func NewTrap(code TrapCode) *Trap {
	return &Trap{Code: code}
}

// TrapWithDetail creates a Trap with the given code and detail message.
func TrapWithDetail(code TrapCode, detail string, args ...any) *Trap {
	if len(args) > 0 {
		detail = fmt.Sprintf(detail, args...)
	}
	return &Trap{Code: code, Detail: detail}
}

// HostTrap wraps an error returned by a host function as a trap.
func HostTrap(cause error) *Trap {
	return &Trap{Code: TrapHost, Cause: cause, Detail: cause.Error()}
}

// AsTrap returns the Trap inside err, or nil.
func AsTrap(err error) *Trap {
	for err != nil {
		if t, ok := err.(*Trap); ok {
			return t
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil
		}
		err = u.Unwrap()
	}
	return nil
}
