// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package link

import (
	"debug/elf"
	"testing"
)

// buildSymtabScenario assembles two files with locals and colliding
// globals, runs every pass through WriteSymtab with a small synthetic
// layout, and returns the decoded output tables.
func buildSymtabScenario(t *testing.T) (ctx *Context, syms []Sym, strtab []byte) {
	t.Helper()
	ctx = NewContext()

	ba := newTestObj()
	textA := ba.section(".text", uint32(elf.SHT_PROGBITS), uint64(elf.SHF_ALLOC|elf.SHF_EXECINSTR), []byte{0xc3, 0xc3, 0xc3, 0xc3})
	ba.local("locA", elf.STT_FUNC, textA, 1)
	ba.local("", elf.STT_SECTION, textA, 0)
	ba.global("funcA", elf.STB_GLOBAL, elf.STT_FUNC, textA, 2, 0)
	ba.global("w", elf.STB_WEAK, elf.STT_NOTYPE, uint16(elf.SHN_UNDEF), 0, 0)
	ba.add(t, ctx, "a.o", "")

	bb := newTestObj()
	textB := bb.section(".text", uint32(elf.SHT_PROGBITS), uint64(elf.SHF_ALLOC|elf.SHF_EXECINSTR), []byte{0xc3})
	bb.local("locB", elf.STT_FUNC, textB, 0)
	bb.global("funcA", elf.STB_WEAK, elf.STT_FUNC, textB, 0, 0)
	bb.global("funcB", elf.STB_GLOBAL, elf.STT_FUNC, textB, 0, 0)
	bb.add(t, ctx, "b.o", "")

	resolve(t, ctx)
	ctx.EliminateDuplicateComdatGroups()
	ctx.ConvertCommonSymbols()
	ctx.FinalizeSections()

	// Stand-in for the layout engine: place every input section in
	// its output section at a fixed base address.
	var addr uint64 = 0x1000
	for _, osec := range ctx.OutputSections() {
		osec.Shdr.Addr = addr
		var off uint64
		for _, o := range ctx.Objs {
			for _, isec := range o.Sections {
				if isec != nil && isec.OutputSection == osec {
					isec.Offset = off
					off += isec.Shdr.Size
				}
			}
		}
		addr += 0x1000
	}
	ctx.FixSymbolAddrs()

	symtabSize, strtabSize := ctx.ComputeSymtab()
	symtabBuf := make([]byte, symtabSize)
	strtab = make([]byte, strtabSize)
	ctx.WriteSymtab(symtabBuf, strtab)

	var err error
	syms, err = readSlice[Sym](symtabBuf, SymSize)
	if err != nil {
		t.Fatal(err)
	}
	return ctx, syms, strtab
}

func symNames(t *testing.T, syms []Sym, strtab []byte) []string {
	t.Helper()
	names := make([]string, len(syms))
	for i, sym := range syms {
		name, err := getName(strtab, sym.Name)
		if err != nil {
			t.Fatalf("symbol %d: %v", i, err)
		}
		names[i] = name
	}
	return names
}

func TestSymtabCounts(t *testing.T) {
	ctx, syms, strtab := buildSymtabScenario(t)

	// Locals: null + locA from a.o, null + locB from b.o (section
	// symbols are skipped). Globals: funcA and w owned by a.o, funcB
	// owned by b.o.
	if want := 4 + 3; len(syms) != want {
		t.Fatalf("emitted %d symbols, want %d: %v", len(syms), want, symNames(t, syms, strtab))
	}
	if got := ctx.NumLocalSymtabEntries(); got != 4 {
		t.Errorf("NumLocalSymtabEntries = %d, want 4", got)
	}

	// String table bytes: one NUL per name plus the name bytes.
	var want uint64
	for _, name := range []string{"", "locA", "", "locB", "funcA", "w", "funcB"} {
		want += uint64(len(name)) + 1
	}
	if got := uint64(len(strtab)); got != want {
		t.Errorf("strtab is %d bytes, want %d", got, want)
	}
}

func TestSymtabEntries(t *testing.T) {
	ctx, syms, strtab := buildSymtabScenario(t)
	names := symNames(t, syms, strtab)

	byName := make(map[string]Sym)
	for i, sym := range syms {
		if names[i] != "" {
			byName[names[i]] = sym
		}
	}

	textOsec := ctx.GetOutputSection(".text", uint32(elf.SHT_PROGBITS), uint64(elf.SHF_ALLOC|elf.SHF_EXECINSTR))

	funcA := byName["funcA"]
	if funcA.Shndx != textOsec.Shndx {
		t.Errorf("funcA shndx = %d, want output .text index %d", funcA.Shndx, textOsec.Shndx)
	}
	wantAddr := textOsec.Shdr.Addr + 0 + 2 // a.o's .text is placed first
	if funcA.Value != wantAddr {
		t.Errorf("funcA value = %#x, want %#x", funcA.Value, wantAddr)
	}

	w := byName["w"]
	if w.Shndx != uint16(elf.SHN_ABS) {
		t.Errorf("undef-weak w shndx = %d, want SHN_ABS", w.Shndx)
	}
	if w.Value != 0 {
		t.Errorf("undef-weak w value = %#x, want 0", w.Value)
	}

	locA := byName["locA"]
	if locA.Shndx != textOsec.Shndx {
		t.Errorf("locA shndx = %d, want output .text index %d", locA.Shndx, textOsec.Shndx)
	}
	if want := textOsec.Shdr.Addr + 0 + 1; locA.Value != want {
		t.Errorf("locA value = %#x, want %#x", locA.Value, want)
	}

	// b.o's local lands after a.o's .text in the output section.
	locB := byName["locB"]
	if want := textOsec.Shdr.Addr + 4 + 0; locB.Value != want {
		t.Errorf("locB value = %#x, want %#x", locB.Value, want)
	}
}

func TestSymtabSkipsDeadFiles(t *testing.T) {
	ctx := NewContext()

	ba := newTestObj()
	text := ba.section(".text", uint32(elf.SHT_PROGBITS), uint64(elf.SHF_ALLOC), []byte{0xc3})
	ba.local("locA", elf.STT_FUNC, text, 0)
	ba.global("main", elf.STB_GLOBAL, elf.STT_FUNC, text, 0, 0)
	ba.add(t, ctx, "a.o", "")

	// Unreferenced archive member: contributes nothing.
	definer("unused", elf.STB_GLOBAL).add(t, ctx, "m.o", "libx.a")

	resolve(t, ctx)
	ctx.FinalizeSections()
	ctx.FixSymbolAddrs()

	symtabSize, strtabSize := ctx.ComputeSymtab()
	symtab := make([]byte, symtabSize)
	strtab := make([]byte, strtabSize)
	ctx.WriteSymtab(symtab, strtab)

	syms, err := readSlice[Sym](symtab, SymSize)
	if err != nil {
		t.Fatal(err)
	}
	// null + locA + main.
	if len(syms) != 3 {
		t.Errorf("emitted %d symbols, want 3: %v", len(syms), symNames(t, syms, strtab))
	}
	for _, name := range symNames(t, syms, strtab) {
		if name == "unused" {
			t.Errorf("dead archive member's symbol was emitted")
		}
	}
}
