package engine

import (
	"github.com/wippyai/wasm-vm/errors"
	"github.com/wippyai/wasm-vm/wasm"
)

// FuncCode is the decoded instruction sequence for one function, with
// branch targets resolved: for every block/loop/if instruction index the
// index just past its matching end, and for every if the index just past its
// else (or, with no else, the index of its end) so the false arm can be skipped.
type FuncCode struct {
	Instrs []wasm.Instruction
	EndOf  map[int]int // block/loop/if index -> index past matching end
	ElseOf map[int]int // if index -> index past its else (or of its end when there is no else)
}

// Provider supplies the engine with decoded instruction sequences and a
// resettable cache. Instantiation resets it so stale code from a previous
// store generation is never executed.
type Provider struct {
	cache map[*FunctionInstance]*FuncCode
}

// NewProvider creates an empty provider.
func NewProvider() *Provider {
	return &Provider{cache: make(map[*FunctionInstance]*FuncCode)}
}

// Reset clears all cached decoded instructions.
func (p *Provider) Reset() {
	p.cache = make(map[*FunctionInstance]*FuncCode)
}

// Code returns the decoded, branch-resolved code for f, decoding on first
// use.
func (p *Provider) Code(f *FunctionInstance) (*FuncCode, error) {
	if c, ok := p.cache[f]; ok {
		return c, nil
	}
	c, err := analyze(f.Body)
	if err != nil {
		return nil, err
	}
	p.cache[f] = c
	return c, nil
}

// Expr decodes a constant expression without caching.
func (p *Provider) Expr(code []byte) (*FuncCode, error) {
	return analyze(code)
}

func analyze(code []byte) (*FuncCode, error) {
	instrs, err := wasm.DecodeInstructions(code)
	if err != nil {
		return nil, err
	}

	c := &FuncCode{
		Instrs: instrs,
		EndOf:  make(map[int]int),
		ElseOf: make(map[int]int),
	}

	var opens []int // indices of unmatched block/loop/if
	for i, in := range instrs {
		switch in.Opcode {
		case wasm.OpBlock, wasm.OpLoop, wasm.OpIf:
			opens = append(opens, i)
		case wasm.OpElse:
			if len(opens) == 0 {
				return nil, errors.InvalidInput(errors.PhaseDecode, "else outside block")
			}
			c.ElseOf[opens[len(opens)-1]] = i + 1
		case wasm.OpEnd:
			if len(opens) == 0 {
				// The function-level end; nothing to match.
				continue
			}
			open := opens[len(opens)-1]
			opens = opens[:len(opens)-1]
			c.EndOf[open] = i + 1
			if _, hasElse := c.ElseOf[open]; !hasElse && instrs[open].Opcode == wasm.OpIf {
				// An if without else skips directly past the end, but the
				// end itself still pops the label, so land on it.
				c.ElseOf[open] = i
			}
		}
	}
	if len(opens) != 0 {
		return nil, errors.InvalidInput(errors.PhaseDecode, "unclosed block")
	}
	return c, nil
}
