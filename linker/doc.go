// Package linker implements WebAssembly module instantiation.
//
// # Protocol
//
// Instantiate drives the linking and initialization protocol in a fixed
// order:
//
//  1. Module name conflict check
//  2. Module instance allocation
//  3. Type table copy
//  4. Import resolution (imports occupy the low indices)
//  5. Function allocation
//  6. Global initialization (initializers see imported globals only)
//  7. Table allocation
//  8. Memory allocation
//  9. Pre-pass over element and data segment offsets
// 10. Segment bounds checks, then application in order
// 11. Export map construction
// 12. Optional pre-compiled constructor
// 13. Start function invocation
//
// Any failure aborts instantiation and rolls the partial instance back out
// of the store: the name stays unbound and pre-existing modules are
// untouched.
//
// # Import subtyping
//
// An exported entity satisfies an import of weaker constraints: the
// importer's minimum must be covered and, when the importer bounds the
// entity, the exporter must be bounded too. Function and global imports
// match exactly.
package linker
