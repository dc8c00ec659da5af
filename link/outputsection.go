// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package link

import (
	"debug/elf"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// An OutputSection collects input sections sharing a (name, type,
// flags) identity. This package only creates output sections and
// records membership identity; assigning sh_addr, section offsets,
// and file offsets is the layout engine's job.
type OutputSection struct {
	// Name is the output section name, e.g. ".text".
	Name string

	// Shdr is the output header. Layout fills in Addr, Offset and
	// Size; Type and Flags are fixed at creation.
	Shdr Shdr

	// Idx is the creation-order index; Shndx is the section's index
	// in the output section header table, assigned deterministically
	// by FinalizeSections.
	Idx   int
	Shndx uint16
}

type outputSectionList struct {
	mu   sync.Mutex
	list []*OutputSection
}

// outputName canonicalises an input section name to its output
// section name, so e.g. ".text.startup" and ".text.unlikely" merge
// into ".text".
func outputName(name string) string {
	prefixes := []string{
		".text.", ".data.rel.ro.", ".data.", ".rodata.", ".bss.rel.ro.",
		".bss.", ".init_array.", ".fini_array.", ".tbss.",
		".tdata.", ".gcc_except_table.",
	}
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return p[:len(p)-1]
		}
	}
	return name
}

// GetOutputSection returns the output section for the given identity,
// creating it if needed. Concurrent calls with equal identities
// return the same section.
func (ctx *Context) GetOutputSection(name string, typ uint32, flags uint64) *OutputSection {
	name = outputName(name)
	flags &^= uint64(elf.SHF_GROUP) | uint64(elf.SHF_COMPRESSED) | uint64(elf.SHF_LINK_ORDER)

	// The identity triple is encoded into the intern key; names never
	// contain NUL, so the encoding is unambiguous.
	key := fmt.Sprintf("%s\x00%d\x00%d", name, typ, flags)

	osec := ctx.osecs.Insert(key, func() *OutputSection {
		return &OutputSection{
			Name: name,
			Shdr: Shdr{Type: typ, Flags: flags},
			Idx:  -1,
		}
	})

	ctx.osecList.mu.Lock()
	if osec.Idx < 0 {
		osec.Idx = len(ctx.osecList.list)
		ctx.osecList.list = append(ctx.osecList.list, osec)
	}
	ctx.osecList.mu.Unlock()
	return osec
}

// BSSSection returns the shared .bss output section that common
// symbols are materialised into.
func (ctx *Context) BSSSection() *OutputSection {
	return ctx.GetOutputSection(".bss", uint32(elf.SHT_NOBITS), uint64(elf.SHF_ALLOC))
}

// OutputSections returns the registered output sections ordered by
// Shndx. Only valid after FinalizeSections.
func (ctx *Context) OutputSections() []*OutputSection {
	ctx.osecList.mu.Lock()
	defer ctx.osecList.mu.Unlock()
	out := make([]*OutputSection, len(ctx.osecList.list))
	copy(out, ctx.osecList.list)
	sort.Slice(out, func(i, j int) bool { return out[i].Shndx < out[j].Shndx })
	return out
}

// FinalizeSections assigns output section header table indexes.
// Creation order depends on parse scheduling, so indexes are assigned
// from a sort over the section identity to keep the output
// reproducible. Index 0 stays reserved for the null section header.
func (ctx *Context) FinalizeSections() {
	ctx.osecList.mu.Lock()
	defer ctx.osecList.mu.Unlock()
	sorted := make([]*OutputSection, len(ctx.osecList.list))
	copy(sorted, ctx.osecList.list)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.Shdr.Type != b.Shdr.Type {
			return a.Shdr.Type < b.Shdr.Type
		}
		return a.Shdr.Flags < b.Shdr.Flags
	})
	for i, osec := range sorted {
		osec.Shndx = uint16(i + 1)
	}
}
