// Package container assembles a finished image from a linked module's code
// and data: a PE32+ executable for the Windows calling convention, an
// ELF64 executable for System V (spec.md §6 "container writer"). Grounded
// on other_examples/3c11389f_tinyrange-rtg__std-compiler-pe64.go.go and
// other_examples/d7f34ff9_xyproto-vibe67__pe.go.go.
package container

import (
	"bytes"
	"encoding/binary"

	"tacc/internal/x86"
)

const (
	peDOSHeaderSize     = 64
	peDOSStubSize       = 64
	peSignatureSize     = 4
	peCOFFHeaderSize    = 20
	peOptionalHdrSize   = 240 // PE32+
	peSectionHeaderSize = 40
	peImageBase         = 0x140000000
	peSectionAlign      = 0x1000
	peFileAlign         = 0x200

	peSectionExecuteReadCode = 0x60000020
	peSectionReadWriteData   = 0xC0000040
)

func alignUp(n, align int) int {
	if n%align == 0 {
		return n
	}
	return n + (align - n%align)
}

// PEImage is the finished byte image plus the entry-point RVA, for a
// caller that wants to report it (e.g. in a diagnostic or a test).
type PEImage struct {
	Bytes      []byte
	EntryPoint uint32
}

// Import is one extern symbol the image must resolve at load time via
// the import table, keyed by the DLL that exports it.
type Import struct {
	DLL    string
	Symbol string
}

// BuildPE64 assembles a minimal PE32+ executable around code/data and
// the entry point's offset into code, with a single .idata section whose
// import table holds one entry per DLL named in imports (spec.md §4.18's
// extern-call records land here).
func BuildPE64(code, data []byte, entryOffset uint32, imports []Import) *PEImage {
	textRaw := alignUp(len(code), peFileAlign)
	dataRaw := alignUp(len(data), peFileAlign)
	idata := buildImportTable(imports)
	idataRaw := alignUp(len(idata.bytes), peFileAlign)

	headersRaw := peDOSHeaderSize + peDOSStubSize + peSignatureSize + peCOFFHeaderSize + peOptionalHdrSize + 3*peSectionHeaderSize
	headersAligned := alignUp(headersRaw, peFileAlign)

	textRVA := peSectionAlign
	dataRVA := textRVA + alignUp(len(code), peSectionAlign)
	idataRVA := dataRVA + alignUp(len(data), peSectionAlign)
	idata.relocateTo(uint32(idataRVA))

	entryRVA := uint32(textRVA) + entryOffset

	var buf bytes.Buffer
	w := &buf

	// DOS header + stub.
	binary.Write(w, binary.LittleEndian, uint16(0x5A4D))
	w.Write(make([]byte, 58))
	binary.Write(w, binary.LittleEndian, uint32(peDOSHeaderSize+peDOSStubSize))
	w.Write(make([]byte, peDOSStubSize))

	// PE signature + COFF header.
	w.WriteString("PE\x00\x00")
	binary.Write(w, binary.LittleEndian, uint16(0x8664)) // IMAGE_FILE_MACHINE_AMD64
	binary.Write(w, binary.LittleEndian, uint16(3))       // number of sections
	binary.Write(w, binary.LittleEndian, uint32(0))       // timestamp
	binary.Write(w, binary.LittleEndian, uint32(0))       // symbol table ptr
	binary.Write(w, binary.LittleEndian, uint32(0))       // number of symbols
	binary.Write(w, binary.LittleEndian, uint16(peOptionalHdrSize))
	binary.Write(w, binary.LittleEndian, uint16(0x0022)) // executable, large-address-aware

	// Optional header (PE32+).
	binary.Write(w, binary.LittleEndian, uint16(0x20B)) // PE32+ magic
	w.Write([]byte{0, 0})                                // linker version
	binary.Write(w, binary.LittleEndian, uint32(textRaw))
	binary.Write(w, binary.LittleEndian, uint32(dataRaw+idataRaw))
	binary.Write(w, binary.LittleEndian, uint32(0))
	binary.Write(w, binary.LittleEndian, entryRVA)
	binary.Write(w, binary.LittleEndian, uint32(textRVA))
	binary.Write(w, binary.LittleEndian, uint64(peImageBase))
	binary.Write(w, binary.LittleEndian, uint32(peSectionAlign))
	binary.Write(w, binary.LittleEndian, uint32(peFileAlign))
	w.Write(make([]byte, 4)) // OS version
	w.Write(make([]byte, 4)) // image version
	w.Write(make([]byte, 4)) // subsystem version
	w.Write(make([]byte, 4)) // reserved
	binary.Write(w, binary.LittleEndian, uint32(alignUp(idataRVA+len(idata.bytes), peSectionAlign)))
	binary.Write(w, binary.LittleEndian, uint32(headersAligned))
	binary.Write(w, binary.LittleEndian, uint32(0)) // checksum
	binary.Write(w, binary.LittleEndian, uint16(3)) // IMAGE_SUBSYSTEM_WINDOWS_CUI
	binary.Write(w, binary.LittleEndian, uint16(0))
	binary.Write(w, binary.LittleEndian, uint64(0x100000)) // stack reserve
	binary.Write(w, binary.LittleEndian, uint64(0x1000))   // stack commit
	binary.Write(w, binary.LittleEndian, uint64(0x100000)) // heap reserve
	binary.Write(w, binary.LittleEndian, uint64(0x1000))   // heap commit
	binary.Write(w, binary.LittleEndian, uint32(0))
	binary.Write(w, binary.LittleEndian, uint32(16)) // number of data directories
	for i := 0; i < 16; i++ {
		if i == 1 { // import table directory
			binary.Write(w, binary.LittleEndian, uint32(idataRVA))
			binary.Write(w, binary.LittleEndian, uint32(len(idata.bytes)))
			continue
		}
		w.Write(make([]byte, 8))
	}

	writeSectionHeader(w, ".text", textRVA, len(code), headersAligned, textRaw, peSectionExecuteReadCode)
	writeSectionHeader(w, ".data", dataRVA, len(data), headersAligned+textRaw, dataRaw, peSectionReadWriteData)
	writeSectionHeader(w, ".idata", idataRVA, len(idata.bytes), headersAligned+textRaw+dataRaw, idataRaw, peSectionReadWriteData)

	padTo(w, headersAligned)
	w.Write(code)
	padTo(w, headersAligned+textRaw)
	w.Write(data)
	padTo(w, headersAligned+textRaw+dataRaw)
	w.Write(idata.bytes)
	padTo(w, headersAligned+textRaw+dataRaw+idataRaw)

	return &PEImage{Bytes: buf.Bytes(), EntryPoint: entryRVA}
}

func writeSectionHeader(w *bytes.Buffer, name string, rva, virtSize, rawPtr, rawSize int, characteristics uint32) {
	var nameBytes [8]byte
	copy(nameBytes[:], name)
	w.Write(nameBytes[:])
	binary.Write(w, binary.LittleEndian, uint32(virtSize))
	binary.Write(w, binary.LittleEndian, uint32(rva))
	binary.Write(w, binary.LittleEndian, uint32(rawSize))
	binary.Write(w, binary.LittleEndian, uint32(rawPtr))
	w.Write(make([]byte, 12)) // relocations/line numbers ptrs+counts
	binary.Write(w, binary.LittleEndian, characteristics)
}

func padTo(w *bytes.Buffer, size int) {
	if w.Len() < size {
		w.Write(make([]byte, size-w.Len()))
	}
}

// importTable holds the not-yet-relocated bytes of an .idata section built
// from x86.ExternCall-derived Import records: one import directory entry per
// DLL, each with its own null-terminated ILT/IAT thunk arrays pointing at a
// shared hint/name table, grounded on
// other_examples/3c11389f_tinyrange-rtg__std-compiler-pe64.go.go's
// buildIData64/fixupIData64 (single-DLL there; generalized here to the
// multi-DLL grouping buildImportTable already did). Every offset recorded
// below is section-relative until relocateTo adds the section's RVA.
type importTable struct {
	bytes      []byte
	iatOffsets map[string]int // symbol -> byte offset of its IAT slot
	patch32    []int          // byte offsets of 4-byte directory fields needing += rva
	patch64    []int          // byte offsets of 8-byte ILT/IAT thunks needing += rva
}

func buildImportTable(imports []Import) *importTable {
	t := &importTable{iatOffsets: map[string]int{}}
	if len(imports) == 0 {
		return t
	}
	byDLL := map[string][]string{}
	var order []string
	for _, im := range imports {
		if _, ok := byDLL[im.DLL]; !ok {
			order = append(order, im.DLL)
		}
		byDLL[im.DLL] = append(byDLL[im.DLL], im.Symbol)
	}

	// Layout: directory table, then each DLL's ILT array, then each DLL's
	// IAT array, then the shared hint/name table, then the DLL name
	// strings — mirroring the grounding file's single-DLL section shape.
	directorySize := (len(order) + 1) * 20
	iltOffset := make(map[string]int, len(order))
	iatOffset := make(map[string]int, len(order))
	off := directorySize
	for _, dll := range order {
		iltOffset[dll] = off
		off += (len(byDLL[dll]) + 1) * 8
	}
	for _, dll := range order {
		iatOffset[dll] = off
		off += (len(byDLL[dll]) + 1) * 8
	}

	hintNameOffset := make(map[string]map[string]int, len(order))
	var hintName bytes.Buffer
	hintNameBase := off
	for _, dll := range order {
		hintNameOffset[dll] = map[string]int{}
		for _, sym := range byDLL[dll] {
			hintNameOffset[dll][sym] = hintNameBase + hintName.Len()
			binary.Write(&hintName, binary.LittleEndian, uint16(0)) // hint, unused
			hintName.WriteString(sym)
			hintName.WriteByte(0)
			if hintName.Len()%2 != 0 {
				hintName.WriteByte(0)
			}
		}
	}

	dllNameOffset := make(map[string]int, len(order))
	var dllNames bytes.Buffer
	dllNamesBase := hintNameBase + hintName.Len()
	for _, dll := range order {
		dllNameOffset[dll] = dllNamesBase + dllNames.Len()
		dllNames.WriteString(dll)
		dllNames.WriteByte(0)
	}

	total := dllNamesBase + dllNames.Len()
	buf := make([]byte, total)

	put32 := func(o int, v uint32) {
		binary.LittleEndian.PutUint32(buf[o:o+4], v)
		t.patch32 = append(t.patch32, o)
	}
	put64 := func(o int, v uint64) {
		binary.LittleEndian.PutUint64(buf[o:o+8], v)
		t.patch64 = append(t.patch64, o)
	}

	for i, dll := range order {
		d := i * 20
		put32(d+0, uint32(iltOffset[dll]))  // OriginalFirstThunk
		put32(d+12, uint32(dllNameOffset[dll])) // Name
		put32(d+16, uint32(iatOffset[dll]))  // FirstThunk

		for j, sym := range byDLL[dll] {
			hn := uint64(hintNameOffset[dll][sym])
			put64(iltOffset[dll]+j*8, hn)
			iat := iatOffset[dll] + j*8
			put64(iat, hn)
			t.iatOffsets[sym] = iat
		}
	}
	// Final null directory entry and ILT/IAT terminators are already zero
	// from make([]byte, total).

	copy(buf[hintNameBase:], hintName.Bytes())
	copy(buf[dllNamesBase:], dllNames.Bytes())
	t.bytes = buf
	return t
}

// relocateTo turns every section-relative offset recorded during
// buildImportTable (directory Name/OriginalFirstThunk/FirstThunk fields,
// and every ILT/IAT thunk) into an absolute RVA by adding the .idata
// section's own RVA, then fixes iatOffsets up to the same absolute RVAs so
// a caller can report where each imported symbol's IAT slot actually landed.
func (t *importTable) relocateTo(rva uint32) {
	for _, o := range t.patch32 {
		v := binary.LittleEndian.Uint32(t.bytes[o : o+4])
		binary.LittleEndian.PutUint32(t.bytes[o:o+4], v+rva)
	}
	for _, o := range t.patch64 {
		v := binary.LittleEndian.Uint64(t.bytes[o : o+8])
		binary.LittleEndian.PutUint64(t.bytes[o:o+8], v+uint64(rva))
	}
	for sym, o := range t.iatOffsets {
		t.iatOffsets[sym] = o + int(rva)
	}
}

// WithLoweredFunctions links a module's encoded functions, lays them out
// back to back, and returns the combined code ready for BuildPE64/BuildELF64.
func WithLoweredFunctions(funcs []*x86.EncodedFunction, entrySymbol string) (code []byte, entryOffset uint32, externs []x86.ExternCall) {
	code, symbols, ext := x86.LinkModule(funcs, 0)
	return code, uint32(symbols[entrySymbol]), ext
}
