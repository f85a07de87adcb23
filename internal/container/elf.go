package container

import (
	"bytes"
	"encoding/binary"
)

const (
	elfHeaderSize  = 64
	elfPhdrSize    = 56
	elfImageBase   = 0x400000
	elfPageAlign   = 0x1000
	elfPTLoad      = 1
	elfPFExecute   = 1
	elfPFWrite     = 2
	elfPFRead      = 4
	elfEITypeExec  = 2
	elfMachineX86  = 0x3E
)

// ELFImage is the finished byte image plus the entry point's virtual
// address.
type ELFImage struct {
	Bytes      []byte
	EntryPoint uint64
}

// BuildELF64 assembles a minimal statically-linked ELF64 executable with
// one PT_LOAD segment for code (R+X) and one for data (R+W), grounded on
// other_examples/0e99ac4c_xyproto-vibe67__elf_complete.go.go.
func BuildELF64(code, data []byte, entryOffset uint32) *ELFImage {
	numPhdrs := 2
	if len(data) == 0 {
		numPhdrs = 1
	}
	headerTotal := elfHeaderSize + numPhdrs*elfPhdrSize

	textOffset := alignUp(headerTotal, elfPageAlign)
	textVAddr := uint64(elfImageBase) + uint64(textOffset)
	entryVAddr := textVAddr + uint64(entryOffset)

	dataOffset := alignUp(textOffset+len(code), elfPageAlign)
	dataVAddr := uint64(elfImageBase) + uint64(dataOffset)

	var buf bytes.Buffer
	w := &buf

	// ELF identification.
	w.Write([]byte{0x7F, 'E', 'L', 'F', 2 /* ELFCLASS64 */, 1 /* little-endian */, 1 /* EV_CURRENT */, 0})
	w.Write(make([]byte, 8)) // ABI + padding

	binary.Write(w, binary.LittleEndian, uint16(elfEITypeExec))
	binary.Write(w, binary.LittleEndian, uint16(elfMachineX86))
	binary.Write(w, binary.LittleEndian, uint32(1)) // EV_CURRENT
	binary.Write(w, binary.LittleEndian, entryVAddr)
	binary.Write(w, binary.LittleEndian, uint64(elfHeaderSize)) // program header offset
	binary.Write(w, binary.LittleEndian, uint64(0))             // section header offset
	binary.Write(w, binary.LittleEndian, uint32(0))             // flags
	binary.Write(w, binary.LittleEndian, uint16(elfHeaderSize))
	binary.Write(w, binary.LittleEndian, uint16(elfPhdrSize))
	binary.Write(w, binary.LittleEndian, uint16(numPhdrs))
	binary.Write(w, binary.LittleEndian, uint16(0)) // section header entry size
	binary.Write(w, binary.LittleEndian, uint16(0)) // number of section headers
	binary.Write(w, binary.LittleEndian, uint16(0)) // section name string table index

	writeProgramHeader(w, elfPFRead|elfPFExecute, textOffset, textVAddr, len(code), len(code))
	if len(data) > 0 {
		writeProgramHeader(w, elfPFRead|elfPFWrite, dataOffset, dataVAddr, len(data), len(data))
	}

	padTo(&buf, textOffset)
	buf.Write(code)
	if len(data) > 0 {
		padTo(&buf, dataOffset)
		buf.Write(data)
	}

	return &ELFImage{Bytes: buf.Bytes(), EntryPoint: entryVAddr}
}

func writeProgramHeader(w *bytes.Buffer, flags uint32, offset int, vaddr uint64, fileSize, memSize int) {
	binary.Write(w, binary.LittleEndian, uint32(elfPTLoad))
	binary.Write(w, binary.LittleEndian, flags)
	binary.Write(w, binary.LittleEndian, uint64(offset))
	binary.Write(w, binary.LittleEndian, vaddr)
	binary.Write(w, binary.LittleEndian, vaddr) // physical address, unused
	binary.Write(w, binary.LittleEndian, uint64(fileSize))
	binary.Write(w, binary.LittleEndian, uint64(memSize))
	binary.Write(w, binary.LittleEndian, uint64(elfPageAlign))
}
