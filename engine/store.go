package engine

import (
	"go.uber.org/zap"

	"github.com/wippyai/wasm-vm/wasm"
)

// Store owns every runtime entity, addressed by small dense integer handles.
// Addresses handed out stay valid for the lifetime of the store and are
// never reused within a run; Reset invalidates only entities that do not
// belong to a registered (imported) module.
type Store struct {
	funcs    []*FunctionInstance
	tables   []*TableInstance
	memories []*MemoryInstance
	globals  []*GlobalInstance
	modules  []*ModuleInstance
	named    map[string]uint32 // module name -> module address

	maxPages uint32
}

// NewStore creates an empty store. maxPages caps every memory allocation and
// growth; zero means the 4 GiB architectural limit.
func NewStore(maxPages uint32) *Store {
	if maxPages == 0 || maxPages > wasm.MaxMemoryPages {
		maxPages = wasm.MaxMemoryPages
	}
	return &Store{
		named:    make(map[string]uint32),
		maxPages: maxPages,
	}
}

// MaxPages returns the store-wide memory cap in pages.
func (s *Store) MaxPages() uint32 {
	return s.maxPages
}

// Reset drops all entities except those belonging to registered modules.
// Dropped addresses resolve to nothing afterwards; registered addresses are
// untouched.
func (s *Store) Reset() {
	for i, f := range s.funcs {
		if f != nil && !f.Registered {
			s.funcs[i] = nil
		}
	}
	for i, t := range s.tables {
		if t != nil {
			// Tables have no flag of their own; they live and die with the
			// modules that allocated them.
			if owner := s.tableOwner(uint32(i)); owner == nil || !owner.Registered {
				s.tables[i] = nil
			}
		}
	}
	for i, m := range s.memories {
		if m != nil {
			if owner := s.memoryOwner(uint32(i)); owner == nil || !owner.Registered {
				s.memories[i] = nil
			}
		}
	}
	for i, g := range s.globals {
		if g != nil && !g.Registered {
			s.globals[i] = nil
		}
	}
	for i, m := range s.modules {
		if m != nil && !m.Registered {
			delete(s.named, m.Name)
			s.modules[i] = nil
		}
	}
	Logger().Debug("store reset", zap.Int("modules_kept", len(s.named)))
}

func (s *Store) tableOwner(addr uint32) *ModuleInstance {
	return s.ownerOf(addr, func(m *ModuleInstance) []uint32 { return m.TableAddrs })
}

func (s *Store) memoryOwner(addr uint32) *ModuleInstance {
	return s.ownerOf(addr, func(m *ModuleInstance) []uint32 { return m.MemAddrs })
}

func (s *Store) ownerOf(addr uint32, addrsOf func(*ModuleInstance) []uint32) *ModuleInstance {
	for _, m := range s.modules {
		if m == nil {
			continue
		}
		for _, a := range addrsOf(m) {
			if a == addr {
				return m
			}
		}
	}
	return nil
}

// FindModule resolves a registered or instantiated module name.
func (s *Store) FindModule(name string) (uint32, bool) {
	addr, ok := s.named[name]
	return addr, ok
}

// PushModule adds a user module instance and returns its address.
func (s *Store) PushModule(inst *ModuleInstance) uint32 {
	addr := uint32(len(s.modules))
	s.modules = append(s.modules, inst)
	if inst.Name != "" {
		s.named[inst.Name] = addr
	}
	return addr
}

// ImportModule adds a host (registered) module instance; it and its entities
// survive Reset.
func (s *Store) ImportModule(inst *ModuleInstance) uint32 {
	inst.Registered = true
	return s.PushModule(inst)
}

// DropModule removes a module instance and its name binding. Used to roll
// back a failed instantiation.
func (s *Store) DropModule(addr uint32) {
	if int(addr) >= len(s.modules) || s.modules[addr] == nil {
		return
	}
	delete(s.named, s.modules[addr].Name)
	s.modules[addr] = nil
}

// GetModule returns the module instance at addr, or nil.
func (s *Store) GetModule(addr uint32) *ModuleInstance {
	if int(addr) >= len(s.modules) {
		return nil
	}
	return s.modules[addr]
}

// GetFunction returns the function instance at addr, or nil.
func (s *Store) GetFunction(addr uint32) *FunctionInstance {
	if int(addr) >= len(s.funcs) {
		return nil
	}
	return s.funcs[addr]
}

// GetTable returns the table instance at addr, or nil.
func (s *Store) GetTable(addr uint32) *TableInstance {
	if int(addr) >= len(s.tables) {
		return nil
	}
	return s.tables[addr]
}

// GetMemory returns the memory instance at addr, or nil.
func (s *Store) GetMemory(addr uint32) *MemoryInstance {
	if int(addr) >= len(s.memories) {
		return nil
	}
	return s.memories[addr]
}

// GetGlobal returns the global instance at addr, or nil.
func (s *Store) GetGlobal(addr uint32) *GlobalInstance {
	if int(addr) >= len(s.globals) {
		return nil
	}
	return s.globals[addr]
}

// AllocFunction adds a function instance and returns its address.
func (s *Store) AllocFunction(f *FunctionInstance) uint32 {
	addr := uint32(len(s.funcs))
	s.funcs = append(s.funcs, f)
	return addr
}

// AllocTable adds a table instance and returns its address.
func (s *Store) AllocTable(t *TableInstance) uint32 {
	addr := uint32(len(s.tables))
	s.tables = append(s.tables, t)
	return addr
}

// AllocMemory allocates a memory under the store-wide page cap and returns
// its address.
func (s *Store) AllocMemory(mt wasm.MemoryType) uint32 {
	addr := uint32(len(s.memories))
	s.memories = append(s.memories, NewMemoryInstance(mt, s.maxPages))
	return addr
}

// AllocGlobal adds a global instance and returns its address.
func (s *Store) AllocGlobal(g *GlobalInstance) uint32 {
	addr := uint32(len(s.globals))
	s.globals = append(s.globals, g)
	return addr
}

// snapshot captures the allocation state for rollback.
type snapshot struct {
	funcs, tables, memories, globals, modules int
}

// Snapshot records the current entity counts.
func (s *Store) Snapshot() snapshot {
	return snapshot{
		funcs:    len(s.funcs),
		tables:   len(s.tables),
		memories: len(s.memories),
		globals:  len(s.globals),
		modules:  len(s.modules),
	}
}

// Rollback truncates entity tables to a previous snapshot. Only valid when
// none of the rolled-back addresses escaped; the instantiator uses it to
// abort a failed linking pass.
func (s *Store) Rollback(snap snapshot) {
	for _, m := range s.modules[snap.modules:] {
		if m != nil {
			delete(s.named, m.Name)
		}
	}
	s.funcs = s.funcs[:snap.funcs]
	s.tables = s.tables[:snap.tables]
	s.memories = s.memories[:snap.memories]
	s.globals = s.globals[:snap.globals]
	s.modules = s.modules[:snap.modules]
}
