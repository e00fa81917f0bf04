package engine

// InterpretMode selects how modules carrying a pre-compiled constructor
// symbol are treated.
type InterpretMode int

const (
	// ModePure ignores constructor symbols and always interprets.
	ModePure InterpretMode = iota
	// ModeCompiledIfPresent invokes the constructor symbol of pre-compiled
	// modules at instantiation time, falling back to interpretation.
	ModeCompiledIfPresent
)

// Config controls the behavior and resource limits of the engine.
type Config struct {
	// MaxCallDepth is the hard limit on call stack depth. Exceeding it traps
	// with CallStackExhausted. Default: 1000.
	MaxCallDepth int

	// MemoryMaxPages caps every memory allocation and growth across the
	// store, in 64 KiB pages. Default: 65536.
	MemoryMaxPages uint32

	// Mode selects the treatment of pre-compiled modules. Default: ModePure.
	Mode InterpretMode
}

// DefaultConfig returns a Config with the default limits.
func DefaultConfig() Config {
	return Config{
		MaxCallDepth:   1000,
		MemoryMaxPages: 65536,
		Mode:           ModePure,
	}
}
