package wasm

import (
	"bytes"
	stderrors "errors"
	"io"

	"github.com/wippyai/wasm-vm/errors"
	"github.com/wippyai/wasm-vm/wasm/internal/binary"
)

// ParseModule parses a WebAssembly binary module.
//
// The decoder is bit-exact against the MVP binary format plus the bulk
// memory element/data section variants. Failures carry the decode-phase
// taxonomy: truncated input, malformed LEB128, bad magic/version, invalid
// UTF-8 names, unknown section IDs, out-of-order or duplicate sections,
// and section payloads whose length does not match the declared size.
func ParseModule(data []byte) (*Module, error) {
	r := binary.NewReader(data)

	magic, err := r.ReadU32LE()
	if err != nil {
		return nil, errors.UnexpectedEnd("module header")
	}
	if magic != Magic {
		return nil, errors.Decode(errors.KindMalformedMagic, "got 0x%08x", magic)
	}

	version, err := r.ReadU32LE()
	if err != nil {
		return nil, errors.UnexpectedEnd("module header")
	}
	if version != Version {
		return nil, errors.Decode(errors.KindMalformedVersion, "got %d", version)
	}

	m := &Module{}

	// Non-custom sections must appear at most once, in increasing ID order.
	// Custom sections (ID 0) may appear anywhere.
	lastSection := byte(0)

	for {
		sectionID, err := r.ReadByte()
		if err != nil {
			if stderrors.Is(err, io.EOF) {
				break
			}
			return nil, errors.UnexpectedEnd("section id")
		}

		if sectionID > SectionDataCount {
			return nil, errors.Decode(errors.KindUnknownSectionID, "0x%02x", sectionID)
		}
		if sectionID != SectionCustom {
			if sectionOrder(sectionID) <= sectionOrder(lastSection) {
				return nil, errors.Decode(errors.KindSectionOutOfOrder,
					"section %d after section %d", sectionID, lastSection)
			}
			lastSection = sectionID
		}

		sectionSize, err := r.ReadU32()
		if err != nil {
			return nil, decodeErr(err, "section size")
		}
		sectionData, err := r.ReadBytes(int(sectionSize))
		if err != nil {
			return nil, errors.UnexpectedEnd("section data")
		}

		sr := binary.NewReader(sectionData)

		switch sectionID {
		case SectionCustom:
			err = parseCustomSection(sr, m)
		case SectionType:
			err = parseTypeSection(sr, m)
		case SectionImport:
			err = parseImportSection(sr, m)
		case SectionFunction:
			err = parseFunctionSection(sr, m)
		case SectionTable:
			err = parseTableSection(sr, m)
		case SectionMemory:
			err = parseMemorySection(sr, m)
		case SectionGlobal:
			err = parseGlobalSection(sr, m)
		case SectionExport:
			err = parseExportSection(sr, m)
		case SectionStart:
			err = parseStartSection(sr, m)
		case SectionElement:
			err = parseElementSection(sr, m)
		case SectionCode:
			err = parseCodeSection(sr, m)
		case SectionData:
			err = parseDataSection(sr, m)
		case SectionDataCount:
			err = parseDataCountSection(sr, m)
		}
		if err != nil {
			return nil, err
		}
		if sr.Len() != 0 {
			return nil, errors.Decode(errors.KindLengthMismatch,
				"section %d: %d trailing bytes", sectionID, sr.Len())
		}
	}

	if m.DataCount != nil && int(*m.DataCount) != len(m.Data) {
		return nil, errors.Decode(errors.KindLengthMismatch,
			"data count section declares %d segments, data section has %d",
			*m.DataCount, len(m.Data))
	}
	if len(m.Code) != len(m.Funcs) {
		return nil, errors.Decode(errors.KindLengthMismatch,
			"function section declares %d functions, code section has %d",
			len(m.Funcs), len(m.Code))
	}

	return m, nil
}

// sectionOrder returns the canonical ordering for a section ID. DataCount
// sits between Element and Code despite its numeric ID.
func sectionOrder(id byte) int {
	switch id {
	case SectionCustom:
		return 0
	case SectionDataCount:
		return 10
	case SectionCode:
		return 11
	case SectionData:
		return 12
	default:
		return int(id)
	}
}

// decodeErr translates low-level reader failures into the typed taxonomy.
func decodeErr(err error, context string) error {
	switch {
	case stderrors.Is(err, binary.ErrOverflow):
		return errors.Wrap(errors.PhaseDecode, errors.KindMalformedLEB, err, context)
	case stderrors.Is(err, binary.ErrInvalidUTF8):
		return errors.Wrap(errors.PhaseDecode, errors.KindMalformedUTF8, err, context)
	default:
		return errors.UnexpectedEnd(context)
	}
}

func parseCustomSection(r *binary.Reader, m *Module) error {
	name, err := r.ReadName()
	if err != nil {
		return decodeErr(err, "custom section name")
	}
	rest, err := r.ReadRemaining()
	if err != nil {
		return decodeErr(err, "custom section data")
	}
	m.CustomSections = append(m.CustomSections, CustomSection{Name: name, Data: rest})
	return nil
}

func parseTypeSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return decodeErr(err, "type count")
	}
	m.Types = make([]FuncType, count)
	for i := uint32(0); i < count; i++ {
		form, err := r.ReadByte()
		if err != nil {
			return errors.UnexpectedEnd("type form")
		}
		if form != FuncTypeByte {
			return errors.Decode(errors.KindUnknownOpcode,
				"type %d: expected functype (0x60), got 0x%02x", i, form)
		}
		params, err := readValTypes(r)
		if err != nil {
			return err
		}
		results, err := readValTypes(r)
		if err != nil {
			return err
		}
		m.Types[i] = FuncType{Params: params, Results: results}
	}
	return nil
}

func parseImportSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return decodeErr(err, "import count")
	}
	m.Imports = make([]Import, count)
	for i := uint32(0); i < count; i++ {
		module, err := r.ReadName()
		if err != nil {
			return decodeErr(err, "import module name")
		}
		name, err := r.ReadName()
		if err != nil {
			return decodeErr(err, "import field name")
		}
		kind, err := r.ReadByte()
		if err != nil {
			return errors.UnexpectedEnd("import kind")
		}

		imp := Import{Module: module, Name: name, Desc: ImportDesc{Kind: kind}}

		switch kind {
		case KindFunc:
			imp.Desc.TypeIdx, err = r.ReadU32()
			if err != nil {
				return decodeErr(err, "import type index")
			}
		case KindTable:
			table, err := readTableType(r)
			if err != nil {
				return err
			}
			imp.Desc.Table = &table
		case KindMemory:
			memory, err := readMemoryType(r)
			if err != nil {
				return err
			}
			imp.Desc.Memory = &memory
		case KindGlobal:
			global, err := readGlobalType(r)
			if err != nil {
				return err
			}
			imp.Desc.Global = &global
		default:
			return errors.Decode(errors.KindUnknownOpcode, "import kind 0x%02x", kind)
		}

		m.Imports[i] = imp
	}
	return nil
}

func parseFunctionSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return decodeErr(err, "function count")
	}
	m.Funcs = make([]uint32, count)
	for i := uint32(0); i < count; i++ {
		m.Funcs[i], err = r.ReadU32()
		if err != nil {
			return decodeErr(err, "function type index")
		}
	}
	return nil
}

func parseTableSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return decodeErr(err, "table count")
	}
	m.Tables = make([]TableType, count)
	for i := uint32(0); i < count; i++ {
		m.Tables[i], err = readTableType(r)
		if err != nil {
			return err
		}
	}
	return nil
}

func parseMemorySection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return decodeErr(err, "memory count")
	}
	m.Memories = make([]MemoryType, count)
	for i := uint32(0); i < count; i++ {
		m.Memories[i], err = readMemoryType(r)
		if err != nil {
			return err
		}
	}
	return nil
}

func parseGlobalSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return decodeErr(err, "global count")
	}
	m.Globals = make([]Global, count)
	for i := uint32(0); i < count; i++ {
		globalType, err := readGlobalType(r)
		if err != nil {
			return err
		}
		init, err := readInitExpr(r)
		if err != nil {
			return err
		}
		m.Globals[i] = Global{Type: globalType, Init: init}
	}
	return nil
}

func parseExportSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return decodeErr(err, "export count")
	}
	m.Exports = make([]Export, count)
	for i := uint32(0); i < count; i++ {
		name, err := r.ReadName()
		if err != nil {
			return decodeErr(err, "export name")
		}
		kind, err := r.ReadByte()
		if err != nil {
			return errors.UnexpectedEnd("export kind")
		}
		if kind > KindGlobal {
			return errors.Decode(errors.KindUnknownOpcode, "export kind 0x%02x", kind)
		}
		idx, err := r.ReadU32()
		if err != nil {
			return decodeErr(err, "export index")
		}
		m.Exports[i] = Export{Name: name, Kind: kind, Idx: idx}
	}
	return nil
}

func parseStartSection(r *binary.Reader, m *Module) error {
	idx, err := r.ReadU32()
	if err != nil {
		return decodeErr(err, "start function index")
	}
	m.Start = &idx
	return nil
}

func parseElementSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return decodeErr(err, "element count")
	}
	m.Elements = make([]Element, count)
	for i := uint32(0); i < count; i++ {
		flags, err := r.ReadU32()
		if err != nil {
			return decodeErr(err, "element flags")
		}
		if flags > 7 {
			return errors.Decode(errors.KindUnknownOpcode, "element segment flags %d", flags)
		}

		elem := Element{Flags: flags, Type: ValFuncRef}

		hasTableIdx := flags&0x02 != 0 && flags&0x01 == 0
		hasOffset := flags&0x01 == 0
		usesExprs := flags&0x04 != 0

		if hasTableIdx {
			elem.TableIdx, err = r.ReadU32()
			if err != nil {
				return decodeErr(err, "element table index")
			}
		}

		if hasOffset {
			elem.Offset, err = readInitExpr(r)
			if err != nil {
				return err
			}
		}

		// Flags 1, 2, 3 carry an elemkind byte; flags 5, 6, 7 a reftype.
		if flags&0x03 != 0 {
			if usesExprs {
				t, err := r.ReadByte()
				if err != nil {
					return errors.UnexpectedEnd("element reftype")
				}
				if ValType(t) != ValFuncRef {
					return errors.Decode(errors.KindUnknownOpcode, "element reftype 0x%02x", t)
				}
				elem.Type = ValType(t)
			} else {
				elem.ElemKind, err = r.ReadByte()
				if err != nil {
					return errors.UnexpectedEnd("element kind")
				}
				if elem.ElemKind != 0x00 {
					return errors.Decode(errors.KindUnknownOpcode, "element kind 0x%02x", elem.ElemKind)
				}
			}
		}

		vecCount, err := r.ReadU32()
		if err != nil {
			return decodeErr(err, "element vector count")
		}

		if usesExprs {
			elem.Exprs = make([][]byte, vecCount)
			for j := uint32(0); j < vecCount; j++ {
				elem.Exprs[j], err = readInitExpr(r)
				if err != nil {
					return err
				}
			}
		} else {
			elem.FuncIdxs = make([]uint32, vecCount)
			for j := uint32(0); j < vecCount; j++ {
				elem.FuncIdxs[j], err = r.ReadU32()
				if err != nil {
					return decodeErr(err, "element function index")
				}
			}
		}

		m.Elements[i] = elem
	}
	return nil
}

func parseCodeSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return decodeErr(err, "code count")
	}
	m.Code = make([]FuncBody, count)
	for i := uint32(0); i < count; i++ {
		bodySize, err := r.ReadU32()
		if err != nil {
			return decodeErr(err, "code body size")
		}
		bodyData, err := r.ReadBytes(int(bodySize))
		if err != nil {
			return errors.UnexpectedEnd("code body")
		}

		br := binary.NewReader(bodyData)

		localCount, err := br.ReadU32()
		if err != nil {
			return decodeErr(err, "local declaration count")
		}
		var locals []LocalEntry
		var total uint64
		for j := uint32(0); j < localCount; j++ {
			n, err := br.ReadU32()
			if err != nil {
				return decodeErr(err, "local count")
			}
			t, err := readValType(br)
			if err != nil {
				return err
			}
			total += uint64(n)
			if total > 1<<20 {
				return errors.Decode(errors.KindLengthMismatch, "too many locals")
			}
			locals = append(locals, LocalEntry{Count: n, ValType: t})
		}

		code, err := br.ReadRemaining()
		if err != nil {
			return decodeErr(err, "code bytes")
		}
		if len(code) == 0 || code[len(code)-1] != OpEnd {
			return errors.Decode(errors.KindLengthMismatch, "function body %d missing end", i)
		}

		m.Code[i] = FuncBody{Locals: locals, Code: code}
	}
	return nil
}

func parseDataSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return decodeErr(err, "data count")
	}
	m.Data = make([]DataSegment, count)
	for i := uint32(0); i < count; i++ {
		flags, err := r.ReadU32()
		if err != nil {
			return decodeErr(err, "data flags")
		}
		if flags > 2 {
			return errors.Decode(errors.KindUnknownOpcode, "data segment flags %d", flags)
		}

		seg := DataSegment{Flags: flags}

		if flags == 2 {
			seg.MemIdx, err = r.ReadU32()
			if err != nil {
				return decodeErr(err, "data memory index")
			}
		}

		if flags != 1 {
			seg.Offset, err = readInitExpr(r)
			if err != nil {
				return err
			}
		}

		initLen, err := r.ReadU32()
		if err != nil {
			return decodeErr(err, "data length")
		}
		seg.Init, err = r.ReadBytes(int(initLen))
		if err != nil {
			return errors.UnexpectedEnd("data bytes")
		}

		m.Data[i] = seg
	}
	return nil
}

func parseDataCountSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return decodeErr(err, "data count")
	}
	m.DataCount = &count
	return nil
}

func readValType(r *binary.Reader) (ValType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, errors.UnexpectedEnd("value type")
	}
	t := ValType(b)
	if !t.IsNum() {
		return 0, errors.Decode(errors.KindUnknownOpcode, "value type 0x%02x", b)
	}
	return t, nil
}

func readValTypes(r *binary.Reader) ([]ValType, error) {
	count, err := r.ReadU32()
	if err != nil {
		return nil, decodeErr(err, "value type count")
	}
	types := make([]ValType, count)
	for i := uint32(0); i < count; i++ {
		types[i], err = readValType(r)
		if err != nil {
			return nil, err
		}
	}
	return types, nil
}

func readLimits(r *binary.Reader) (Limits, error) {
	flags, err := r.ReadByte()
	if err != nil {
		return Limits{}, errors.UnexpectedEnd("limits flags")
	}
	if flags != 0x00 && flags != LimitsHasMax {
		return Limits{}, errors.Decode(errors.KindUnknownOpcode, "limits flags 0x%02x", flags)
	}

	var l Limits
	l.Min, err = r.ReadU32()
	if err != nil {
		return Limits{}, decodeErr(err, "limits min")
	}
	if flags&LimitsHasMax != 0 {
		maxVal, err := r.ReadU32()
		if err != nil {
			return Limits{}, decodeErr(err, "limits max")
		}
		if l.Min > maxVal {
			return Limits{}, errors.Decode(errors.KindLengthMismatch,
				"limits min %d exceeds max %d", l.Min, maxVal)
		}
		l.Max = &maxVal
	}
	return l, nil
}

func readTableType(r *binary.Reader) (TableType, error) {
	elemType, err := r.ReadByte()
	if err != nil {
		return TableType{}, errors.UnexpectedEnd("table element type")
	}
	if ValType(elemType) != ValFuncRef {
		return TableType{}, errors.Decode(errors.KindUnknownOpcode,
			"table element type 0x%02x", elemType)
	}
	limits, err := readLimits(r)
	if err != nil {
		return TableType{}, err
	}
	return TableType{ElemType: ValType(elemType), Limits: limits}, nil
}

func readMemoryType(r *binary.Reader) (MemoryType, error) {
	limits, err := readLimits(r)
	if err != nil {
		return MemoryType{}, err
	}
	return MemoryType{Limits: limits}, nil
}

func readGlobalType(r *binary.Reader) (GlobalType, error) {
	valType, err := readValType(r)
	if err != nil {
		return GlobalType{}, err
	}
	mut, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, errors.UnexpectedEnd("global mutability")
	}
	if mut > 1 {
		return GlobalType{}, errors.Decode(errors.KindUnknownOpcode, "global mutability 0x%02x", mut)
	}
	return GlobalType{ValType: valType, Mutable: mut != 0}, nil
}

// readInitExpr consumes a constant expression up to and including its end
// opcode, returning the raw bytes. Only the MVP constant opcodes are
// permitted: t.const and global.get.
func readInitExpr(r *binary.Reader) ([]byte, error) {
	var buf bytes.Buffer
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, errors.UnexpectedEnd("init expression")
		}
		buf.WriteByte(b)
		if b == OpEnd {
			return buf.Bytes(), nil
		}

		switch b {
		case OpI32Const, OpI64Const, OpGlobalGet:
			if err := copyLEB128(r, &buf); err != nil {
				return nil, err
			}
		case OpF32Const:
			if err := copyBytes(r, &buf, 4); err != nil {
				return nil, err
			}
		case OpF64Const:
			if err := copyBytes(r, &buf, 8); err != nil {
				return nil, err
			}
		default:
			return nil, errors.Decode(errors.KindUnknownOpcode,
				"0x%02x in constant expression", b)
		}
	}
}

func copyLEB128(r *binary.Reader, buf *bytes.Buffer) error {
	for i := 0; ; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return errors.UnexpectedEnd("init expression immediate")
		}
		buf.WriteByte(b)
		if b&0x80 == 0 {
			return nil
		}
		if i >= 9 {
			return errors.Decode(errors.KindMalformedLEB, "init expression immediate")
		}
	}
}

func copyBytes(r *binary.Reader, buf *bytes.Buffer, n int) error {
	data, err := r.ReadBytes(n)
	if err != nil {
		return errors.UnexpectedEnd("init expression immediate")
	}
	buf.Write(data)
	return nil
}
