// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package link

import "debug/elf"

// The output .symtab/.strtab are assembled from per-file slices:
// every file's local symbols (accumulated at parse time), then every
// owning file's globals (accumulated by computeSymtab). Prefix sums
// over the per-file sizes give each file a private, non-overlapping
// range, so the write pass runs in parallel without coordination.

// computeSymtab accumulates the file's share of the global symbol
// table: one entry and one string per owned, non-section symbol.
func (o *ObjectFile) computeSymtab() {
	for _, sym := range o.Symbols {
		if sym.File != o || sym.Type == elf.STT_SECTION {
			continue
		}
		o.GlobalStrtabSize += uint64(len(sym.Name)) + 1
		o.GlobalSymtabSize += SymSize
	}
}

// writeLocalSymtab emits the file's local symbols into its slice of
// symtab and strtab.
func (o *ObjectFile) writeLocalSymtab(symtab, strtab []byte) {
	symtabOff := o.LocalSymtabOff
	strtabOff := o.LocalStrtabOff

	for i := 0; i < o.FirstGlobal; i++ {
		esym := o.ElfSyms[i]
		if esym.Type() == elf.STT_SECTION {
			continue
		}
		name := o.LocalSymbols[i]

		// Symbols in a materialised section move to its output
		// section; their value becomes the final address.
		if shndx := int(esym.Shndx); shndx > 0 && shndx < len(o.Sections) {
			if isec := o.Sections[shndx]; isec != nil && isec.OutputSection != nil {
				osec := isec.OutputSection
				esym.Shndx = osec.Shndx
				esym.Value = osec.Shdr.Addr + isec.Offset + esym.Value
			}
		}
		esym.Name = uint32(strtabOff)

		writeStruct(symtab[symtabOff:], esym)
		symtabOff += SymSize
		copy(strtab[strtabOff:], name)
		strtab[strtabOff+uint64(len(name))] = 0
		strtabOff += uint64(len(name)) + 1
	}
}

// writeGlobalSymtab emits the globals this file owns into its slice
// of symtab and strtab.
func (o *ObjectFile) writeGlobalSymtab(symtab, strtab []byte) {
	symtabOff := o.GlobalSymtabOff
	strtabOff := o.GlobalStrtabOff

	for i, sym := range o.Symbols {
		if sym.File != o || sym.Type == elf.STT_SECTION {
			continue
		}
		esym := *o.globalSym(i)

		if isec := sym.InputSection; isec != nil && isec.OutputSection != nil {
			esym.Shndx = isec.OutputSection.Shndx
		} else {
			esym.Shndx = uint16(elf.SHN_ABS)
		}
		esym.Name = uint32(strtabOff)
		esym.Value = sym.Addr

		writeStruct(symtab[symtabOff:], esym)
		symtabOff += SymSize
		copy(strtab[strtabOff:], sym.Name)
		strtab[strtabOff+uint64(len(sym.Name))] = 0
		strtabOff += uint64(len(sym.Name)) + 1
	}
}

// fixSymbolAddrs folds the assigned section addresses into the
// file's owned symbols, replacing the transient st_value copy.
// Section-less symbols (absolute, undefined-weak) keep their value.
func (o *ObjectFile) fixSymbolAddrs() {
	for _, sym := range o.Symbols {
		if sym.File != o {
			continue
		}
		if isec := sym.InputSection; isec != nil && isec.OutputSection != nil {
			osec := isec.OutputSection
			sym.Addr = osec.Shdr.Addr + isec.Offset + sym.Value
		} else {
			sym.Addr = sym.Value
		}
	}
}
