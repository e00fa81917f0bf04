package engine

import (
	"math"
	"testing"

	"github.com/wippyai/wasm-vm/errors"
)

func wantTrapCode(t *testing.T, err error, code errors.TrapCode) {
	t.Helper()
	trap := errors.AsTrap(err)
	if trap == nil {
		t.Fatalf("expected trap %s, got %v", code, err)
	}
	if trap.Code != code {
		t.Fatalf("expected trap %s, got %s", code, trap.Code)
	}
}

func TestDivS32Traps(t *testing.T) {
	if _, err := divS32(1, 0); err == nil {
		t.Fatal("divide by zero must trap")
	} else {
		wantTrapCode(t, err, errors.TrapIntegerDivideByZero)
	}

	_, err := divS32(math.MinInt32, -1)
	wantTrapCode(t, err, errors.TrapIntegerOverflow)

	if v, err := divS32(-7, 2); err != nil || v != -3 {
		t.Errorf("divS32(-7,2) = %d, %v", v, err)
	}
}

func TestDivS64Traps(t *testing.T) {
	_, err := divS64(math.MinInt64, -1)
	wantTrapCode(t, err, errors.TrapIntegerOverflow)
	_, err = divS64(5, 0)
	wantTrapCode(t, err, errors.TrapIntegerDivideByZero)
}

func TestRemSOverflowCaseIsZero(t *testing.T) {
	// MinInt % -1 is defined as 0, not a trap.
	v, err := remS32(math.MinInt32, -1)
	if err != nil || v != 0 {
		t.Errorf("remS32 = %d, %v", v, err)
	}
	v64, err := remS64(math.MinInt64, -1)
	if err != nil || v64 != 0 {
		t.Errorf("remS64 = %d, %v", v64, err)
	}
}

func TestTruncTraps(t *testing.T) {
	_, err := truncToI32S(math.NaN())
	wantTrapCode(t, err, errors.TrapInvalidConversionToInteger)

	_, err = truncToI32S(2147483648.0)
	wantTrapCode(t, err, errors.TrapIntegerOverflow)

	_, err = truncToI32U(-1.0)
	wantTrapCode(t, err, errors.TrapIntegerOverflow)

	if v, err := truncToI32S(-2147483648.0); err != nil || v != math.MinInt32 {
		t.Errorf("edge: %d, %v", v, err)
	}
	// Fractional values below zero but above -1 are fine unsigned.
	if v, err := truncToI32U(-0.5); err != nil || v != 0 {
		t.Errorf("-0.5 unsigned: %d, %v", v, err)
	}
	if v, err := truncToI64U(18446744073709549568.0); err != nil || v != 18446744073709549568 {
		t.Errorf("u64 edge: %d, %v", v, err)
	}
}

func TestTruncSat(t *testing.T) {
	if v := truncSatI32S(math.NaN()); v != 0 {
		t.Errorf("NaN: %d", v)
	}
	if v := truncSatI32S(1e10); v != math.MaxInt32 {
		t.Errorf("overflow: %d", v)
	}
	if v := truncSatI32S(-1e10); v != math.MinInt32 {
		t.Errorf("underflow: %d", v)
	}
	if v := truncSatI32U(-5.0); v != 0 {
		t.Errorf("negative unsigned: %d", v)
	}
	if v := truncSatI32U(1e10); v != math.MaxUint32 {
		t.Errorf("unsigned overflow: %d", v)
	}
	if v := truncSatI64U(-0.9); v != 0 {
		t.Errorf("fractional: %d", v)
	}
}

func TestFloatMinMaxNaN(t *testing.T) {
	nan := math.NaN()
	if got := fmin64(nan, 1); math.Float64bits(got) != canonicalNaN64 {
		t.Errorf("fmin64 NaN: %#x", math.Float64bits(got))
	}
	if got := fmax64(1, nan); math.Float64bits(got) != canonicalNaN64 {
		t.Errorf("fmax64 NaN: %#x", math.Float64bits(got))
	}
	nan32 := float32(math.NaN())
	if got := fmin32(nan32, 1); math.Float32bits(got) != canonicalNaN32 {
		t.Errorf("fmin32 NaN: %#x", math.Float32bits(got))
	}
}

func TestFloatMinMaxSignedZero(t *testing.T) {
	negZero := math.Copysign(0, -1)
	if got := fmin64(negZero, 0); !math.Signbit(got) {
		t.Error("min(-0, +0) must be -0")
	}
	if got := fmax64(negZero, 0); math.Signbit(got) {
		t.Error("max(-0, +0) must be +0")
	}
	if got := fmin64(0, negZero); !math.Signbit(got) {
		t.Error("min(+0, -0) must be -0")
	}
}

func TestCanonicalNaNPropagation(t *testing.T) {
	// inf - inf has no preferred result and must yield the canonical NaN.
	inf := math.Inf(1)
	if got := canonF64(inf - inf); math.Float64bits(got) != canonicalNaN64 {
		t.Errorf("inf-inf: %#x", math.Float64bits(got))
	}
	// Regular values pass through untouched.
	if got := canonF64(1.5); got != 1.5 {
		t.Errorf("1.5: %v", got)
	}
}

func TestNearestTiesToEven(t *testing.T) {
	cases := map[float64]float64{
		0.5:  0,
		1.5:  2,
		2.5:  2,
		-0.5: math.Copysign(0, -1),
		-1.5: -2,
	}
	for in, want := range cases {
		got := fnearest64(in)
		if got != want || math.Signbit(got) != math.Signbit(want) {
			t.Errorf("nearest(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestRotates(t *testing.T) {
	if v := rotl32(0x80000001, 1); v != 0x00000003 {
		t.Errorf("rotl32: %#x", v)
	}
	if v := rotr32(0x00000003, 1); v != 0x80000001 {
		t.Errorf("rotr32: %#x", v)
	}
	if v := rotl64(1, 64); v != 1 {
		t.Errorf("rotl64 full turn: %d", v)
	}
}
