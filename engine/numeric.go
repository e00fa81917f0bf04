package engine

import (
	"math"
	"math/bits"

	"github.com/wippyai/wasm-vm/errors"
)

// Canonical quiet NaN bit patterns. Operations with NaN inputs and no
// preferred result produce these, keeping execution deterministic.
const (
	canonicalNaN32 uint32 = 0x7FC00000
	canonicalNaN64 uint64 = 0x7FF8000000000000
)

func canonF32(v float32) float32 {
	if v != v {
		return math.Float32frombits(canonicalNaN32)
	}
	return v
}

func canonF64(v float64) float64 {
	if v != v {
		return math.Float64frombits(canonicalNaN64)
	}
	return v
}

func boolToI32(v bool) int32 {
	if v {
		return 1
	}
	return 0
}

// Integer division and remainder with the WebAssembly trap semantics.

func divS32(a, b int32) (int32, error) {
	if b == 0 {
		return 0, errors.NewTrap(errors.TrapIntegerDivideByZero)
	}
	if a == math.MinInt32 && b == -1 {
		return 0, errors.NewTrap(errors.TrapIntegerOverflow)
	}
	return a / b, nil
}

func divU32(a, b uint32) (uint32, error) {
	if b == 0 {
		return 0, errors.NewTrap(errors.TrapIntegerDivideByZero)
	}
	return a / b, nil
}

func remS32(a, b int32) (int32, error) {
	if b == 0 {
		return 0, errors.NewTrap(errors.TrapIntegerDivideByZero)
	}
	if a == math.MinInt32 && b == -1 {
		return 0, nil
	}
	return a % b, nil
}

func remU32(a, b uint32) (uint32, error) {
	if b == 0 {
		return 0, errors.NewTrap(errors.TrapIntegerDivideByZero)
	}
	return a % b, nil
}

func divS64(a, b int64) (int64, error) {
	if b == 0 {
		return 0, errors.NewTrap(errors.TrapIntegerDivideByZero)
	}
	if a == math.MinInt64 && b == -1 {
		return 0, errors.NewTrap(errors.TrapIntegerOverflow)
	}
	return a / b, nil
}

func divU64(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, errors.NewTrap(errors.TrapIntegerDivideByZero)
	}
	return a / b, nil
}

func remS64(a, b int64) (int64, error) {
	if b == 0 {
		return 0, errors.NewTrap(errors.TrapIntegerDivideByZero)
	}
	if a == math.MinInt64 && b == -1 {
		return 0, nil
	}
	return a % b, nil
}

func remU64(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, errors.NewTrap(errors.TrapIntegerDivideByZero)
	}
	return a % b, nil
}

func rotl32(a uint32, n int32) uint32 { return bits.RotateLeft32(a, int(n)) }
func rotr32(a uint32, n int32) uint32 { return bits.RotateLeft32(a, -int(n)) }
func rotl64(a uint64, n int64) uint64 { return bits.RotateLeft64(a, int(n)) }
func rotr64(a uint64, n int64) uint64 { return bits.RotateLeft64(a, -int(n)) }

// Float min/max with the wasm NaN and signed-zero rules.

func fmin64(a, b float64) float64 {
	if a != a || b != b {
		return math.Float64frombits(canonicalNaN64)
	}
	if a == 0 && b == 0 {
		if math.Signbit(a) {
			return a
		}
		return b
	}
	if a < b {
		return a
	}
	return b
}

func fmax64(a, b float64) float64 {
	if a != a || b != b {
		return math.Float64frombits(canonicalNaN64)
	}
	if a == 0 && b == 0 {
		if math.Signbit(a) {
			return b
		}
		return a
	}
	if a > b {
		return a
	}
	return b
}

func fmin32(a, b float32) float32 {
	if a != a || b != b {
		return math.Float32frombits(canonicalNaN32)
	}
	if a == 0 && b == 0 {
		if math.Signbit(float64(a)) {
			return a
		}
		return b
	}
	if a < b {
		return a
	}
	return b
}

func fmax32(a, b float32) float32 {
	if a != a || b != b {
		return math.Float32frombits(canonicalNaN32)
	}
	if a == 0 && b == 0 {
		if math.Signbit(float64(a)) {
			return b
		}
		return a
	}
	if a > b {
		return a
	}
	return b
}

func fnearest64(v float64) float64 {
	return canonF64(math.Copysign(math.RoundToEven(v), v))
}

func fnearest32(v float32) float32 {
	return canonF32(float32(math.Copysign(math.RoundToEven(float64(v)), float64(v))))
}

// Float to integer truncation with the exact trap set: NaN traps with
// InvalidConversionToInteger, out-of-range values with IntegerOverflow.

const (
	maxI32Plus1 = 2147483648.0
	maxU32Plus1 = 4294967296.0
	maxI64Plus1 = 9223372036854775808.0
	maxU64Plus1 = 18446744073709551616.0
)

func truncToI32S(v float64) (int32, error) {
	if v != v {
		return 0, errors.NewTrap(errors.TrapInvalidConversionToInteger)
	}
	t := math.Trunc(v)
	if t < math.MinInt32 || t >= maxI32Plus1 {
		return 0, errors.NewTrap(errors.TrapIntegerOverflow)
	}
	return int32(t), nil
}

func truncToI32U(v float64) (uint32, error) {
	if v != v {
		return 0, errors.NewTrap(errors.TrapInvalidConversionToInteger)
	}
	t := math.Trunc(v)
	if t <= -1 || t >= maxU32Plus1 {
		return 0, errors.NewTrap(errors.TrapIntegerOverflow)
	}
	return uint32(t), nil
}

func truncToI64S(v float64) (int64, error) {
	if v != v {
		return 0, errors.NewTrap(errors.TrapInvalidConversionToInteger)
	}
	t := math.Trunc(v)
	if t < math.MinInt64 || t >= maxI64Plus1 {
		return 0, errors.NewTrap(errors.TrapIntegerOverflow)
	}
	return int64(t), nil
}

func truncToI64U(v float64) (uint64, error) {
	if v != v {
		return 0, errors.NewTrap(errors.TrapInvalidConversionToInteger)
	}
	t := math.Trunc(v)
	if t <= -1 || t >= maxU64Plus1 {
		return 0, errors.NewTrap(errors.TrapIntegerOverflow)
	}
	return uint64(t), nil
}

// Saturating truncation never traps: NaN becomes 0, out-of-range values
// clamp to the integer range.

func truncSatI32S(v float64) int32 {
	if v != v {
		return 0
	}
	if v < math.MinInt32 {
		return math.MinInt32
	}
	if v >= maxI32Plus1 {
		return math.MaxInt32
	}
	return int32(v)
}

func truncSatI32U(v float64) uint32 {
	if v != v || v < 0 {
		return 0
	}
	if v >= maxU32Plus1 {
		return math.MaxUint32
	}
	return uint32(v)
}

func truncSatI64S(v float64) int64 {
	if v != v {
		return 0
	}
	if v < math.MinInt64 {
		return math.MinInt64
	}
	if v >= maxI64Plus1 {
		return math.MaxInt64
	}
	return int64(v)
}

func truncSatI64U(v float64) uint64 {
	if v != v || v < 0 {
		return 0
	}
	if v >= maxU64Plus1 {
		return math.MaxUint64
	}
	return uint64(v)
}
