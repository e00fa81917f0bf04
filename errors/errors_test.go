package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := Validation(KindTypeMismatch, []string{"func[2]", "instr[7]"}, "expected i32, found i64")
	msg := err.Error()
	for _, part := range []string{"[validate]", "type_mismatch", "func[2].instr[7]", "expected i32"} {
		if !strings.Contains(msg, part) {
			t.Errorf("message %q missing %q", msg, part)
		}
	}
}

func TestErrorIsMatchesPhaseAndKind(t *testing.T) {
	err := Decode(KindMalformedLEB, "u32 at 9")
	if !stderrors.Is(err, &Error{Phase: PhaseDecode, Kind: KindMalformedLEB}) {
		t.Error("expected Is match on same phase/kind")
	}
	if stderrors.Is(err, &Error{Phase: PhaseDecode, Kind: KindMalformedMagic}) {
		t.Error("unexpected Is match on different kind")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := stderrors.New("short read")
	err := Wrap(PhaseDecode, KindUnexpectedEnd, cause, "section data")
	if !stderrors.Is(err, cause) {
		t.Error("wrapped cause lost")
	}
}

func TestTrapIs(t *testing.T) {
	trap := NewTrap(TrapIntegerDivideByZero)
	if !stderrors.Is(trap, &Trap{Code: TrapIntegerDivideByZero}) {
		t.Error("expected code match")
	}
	if stderrors.Is(trap, &Trap{Code: TrapUnreachable}) {
		t.Error("unexpected match on other code")
	}
	// An empty code matches any trap.
	if !stderrors.Is(trap, &Trap{}) {
		t.Error("expected wildcard match")
	}
}

func TestAsTrapThroughWrapping(t *testing.T) {
	trap := TrapWithDetail(TrapOutOfBoundsMemoryAccess, "address %d", 70000)
	wrapped := Wrap(PhaseExec, KindInvalidInput, trap, "during invoke")
	got := AsTrap(wrapped)
	if got == nil || got.Code != TrapOutOfBoundsMemoryAccess {
		t.Fatalf("AsTrap: %v", got)
	}
	if !strings.Contains(got.Detail, "70000") {
		t.Errorf("detail: %q", got.Detail)
	}
	if AsTrap(stderrors.New("plain")) != nil {
		t.Error("plain error must not be a trap")
	}
}

func TestHostTrap(t *testing.T) {
	cause := stderrors.New("db gone")
	trap := HostTrap(cause)
	if trap.Code != TrapHost {
		t.Errorf("code: %s", trap.Code)
	}
	if !stderrors.Is(trap, cause) {
		t.Error("cause lost")
	}
}
