package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseDecode      Phase = "decode"      // binary parsing
	PhaseValidate    Phase = "validate"    // module type-checking
	PhaseLink        Phase = "link"        // import resolution
	PhaseInstantiate Phase = "instantiate" // module initialization
	PhaseExec        Phase = "exec"        // interpreter execution
)

// Kind categorizes the error
type Kind string

// Decode kinds.
const (
	KindUnexpectedEnd    Kind = "unexpected_end"
	KindMalformedLEB     Kind = "malformed_leb"
	KindMalformedMagic   Kind = "malformed_magic"
	KindMalformedVersion Kind = "malformed_version"
	KindMalformedUTF8    Kind = "malformed_utf8"
	KindUnknownSectionID Kind = "unknown_section_id"
	KindSectionOutOfOrder Kind = "section_out_of_order"
	KindLengthMismatch   Kind = "length_mismatch"
	KindUnknownOpcode    Kind = "unknown_opcode"
)

// Validation kinds.
const (
	KindTypeMismatch         Kind = "type_mismatch"
	KindUnknownType          Kind = "unknown_type"
	KindUnknownFunc          Kind = "unknown_func"
	KindUnknownTable         Kind = "unknown_table"
	KindUnknownMemory        Kind = "unknown_memory"
	KindUnknownGlobal        Kind = "unknown_global"
	KindUnknownLocal         Kind = "unknown_local"
	KindUnknownLabel         Kind = "unknown_label"
	KindInvalidAlignment     Kind = "invalid_alignment"
	KindImmutableGlobalStore Kind = "immutable_global_store"
	KindDuplicateExport      Kind = "duplicate_export"
	KindInvalidStartType     Kind = "invalid_start_type"
)

// Link kinds.
const (
	KindUnknownImport          Kind = "unknown_import"
	KindIncompatibleImportType Kind = "incompatible_import_type"
	KindModuleNameConflict     Kind = "module_name_conflict"
)

// Instantiation kinds.
const (
	KindElementSegmentOutOfBounds Kind = "element_segment_out_of_bounds"
	KindDataSegmentOutOfBounds    Kind = "data_segment_out_of_bounds"
	KindGlobalInitRefsNonImport   Kind = "global_init_refs_non_import"
)

// Runtime kinds.
const (
	KindNotFound     Kind = "not_found"
	KindInvalidInput Kind = "invalid_input"
)

// Error is the structured error type used throughout the VM
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// New creates an error with the given phase, kind, and formatted detail.
func New(phase Phase, kind Kind, detail string, args ...any) *Error {
	if len(args) > 0 {
		detail = fmt.Sprintf(detail, args...)
	}
	return &Error{Phase: phase, Kind: kind, Detail: detail}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{Phase: phase, Kind: kind, Detail: detail, Cause: cause}
}

// Convenience constructors for common error patterns

// Decode creates a decode-phase error
func Decode(kind Kind, detail string, args ...any) *Error {
	return New(PhaseDecode, kind, detail, args...)
}

// Validation creates a validate-phase error naming the offending location
func Validation(kind Kind, path []string, detail string, args ...any) *Error {
	e := New(PhaseValidate, kind, detail, args...)
	e.Path = path
	return e
}

// Link creates a link-phase error
func Link(kind Kind, detail string, args ...any) *Error {
	return New(PhaseLink, kind, detail, args...)
}

// Instantiation creates an instantiate-phase error
func Instantiation(kind Kind, detail string, args ...any) *Error {
	return New(PhaseInstantiate, kind, detail, args...)
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return New(phase, KindNotFound, "%s %q not found", what, name)
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return New(phase, KindInvalidInput, detail)
}

// UnexpectedEnd creates the decode error for a truncated input
func UnexpectedEnd(detail string) *Error {
	return New(PhaseDecode, KindUnexpectedEnd, detail)
}
