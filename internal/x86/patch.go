package x86

import "encoding/binary"

// ExternCall is an unresolved call site the module linker could not place
// within this module's own functions; the container writer (§6) turns it
// into an import/PLT/GOT entry.
type ExternCall struct {
	Function string // the caller's qualified name
	Offset   int    // byte offset of the call site's displacement field within Function's code
	Callee   string
}

// Patch resolves every jump site (to the target block's offset within the
// same function) and every call site whose callee is defined in
// symbolOffsets (a function-qualified-name -> byte-offset-within-its-own
// function map is not enough across functions; callers pass the final
// whole-image offsets once every function has been laid out). Call sites
// whose callee is absent from symbolOffsets are returned as ExternCall
// records rather than patched (spec.md §4.18).
func Patch(ef *EncodedFunction, funcBase int, symbolOffsets map[string]int) []ExternCall {
	for _, j := range ef.Jumps {
		target, ok := ef.BlockOffsets[j.Target]
		if !ok {
			continue
		}
		disp := int32(target - (j.SiteEnd))
		patchDisplacement(ef.Code, j.Offset, j.Width, disp)
	}

	var externs []ExternCall
	for _, c := range ef.Calls {
		targetOff, ok := symbolOffsets[c.Callee]
		if !ok {
			externs = append(externs, ExternCall{Function: ef.Name, Offset: c.Offset, Callee: c.Callee})
			continue
		}
		// Both offsets are relative to the same whole-image base; the
		// displacement is target minus the byte immediately after the
		// call's own displacement field (spec.md §4.18).
		disp := int32(targetOff - (funcBase + c.SiteEnd))
		patchDisplacement(ef.Code, c.Offset, 4, disp)
	}
	return externs
}

func patchDisplacement(code []byte, offset, width int, disp int32) {
	switch width {
	case 1:
		code[offset] = byte(disp)
	case 4:
		binary.LittleEndian.PutUint32(code[offset:offset+4], uint32(disp))
	}
}

// LinkModule lays every encoded function out one after another starting
// at imageBase, resolves intra-module calls across function boundaries,
// and returns the final concatenated code plus every symbol's absolute
// offset and any call that still targets an external symbol (spec.md
// §4.18's "unknown symbols become extern-call records for the container
// writer to place in the import/PLT/GOT").
func LinkModule(funcs []*EncodedFunction, imageBase int) (code []byte, symbolOffsets map[string]int, externs []ExternCall) {
	symbolOffsets = map[string]int{}
	base := imageBase
	funcBases := make(map[*EncodedFunction]int, len(funcs))
	for _, ef := range funcs {
		symbolOffsets[ef.Name] = base
		funcBases[ef] = base
		base += len(ef.Code)
	}

	code = make([]byte, 0, base-imageBase)
	rel := offsetWithin(symbolOffsets, imageBase)
	for _, ef := range funcs {
		funcBase := funcBases[ef]
		ex := Patch(ef, funcBase-imageBase, rel)
		externs = append(externs, ex...)
		code = append(code, ef.Code...)
	}
	return code, symbolOffsets, externs
}

// offsetWithin rebases every absolute symbol offset to be relative to
// imageBase, matching the funcBase argument Patch receives.
func offsetWithin(symbolOffsets map[string]int, imageBase int) map[string]int {
	out := make(map[string]int, len(symbolOffsets))
	for name, abs := range symbolOffsets {
		out[name] = abs - imageBase
	}
	return out
}
