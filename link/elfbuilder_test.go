// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package link

import (
	"bytes"
	"debug/elf"
	"fmt"
	"testing"
)

// testObj builds ELF64LE relocatable images in memory so tests can
// exercise parsing and resolution without binary test fixtures.
// Sections, symbols, groups and relocations are declared first;
// build() lays out the image. Section indices returned by section()
// and symbol indices returned by local()/global() are final.
type testObj struct {
	eType   uint16
	symType uint32

	secs   []testSec
	groups []testGroup
	relas  []testRela

	localSyms   []Sym
	localNames  []string
	globalSyms  []Sym
	globalNames []string

	// noSymtab omits the symbol table entirely.
	noSymtab bool
}

type testSec struct {
	name string
	shdr Shdr
	data []byte
}

type testGroup struct {
	flag    uint32
	sigSym  uint32
	members []uint16
	// payload overrides the flag+members encoding when non-nil.
	payload []uint32
}

type testRela struct {
	target uint16
	rels   []Rela
}

func newTestObj() *testObj {
	o := &testObj{
		eType:   uint16(elf.ET_REL),
		symType: uint32(elf.SHT_SYMTAB),
	}
	// Symbol 0 is the reserved null symbol.
	o.localSyms = []Sym{{}}
	o.localNames = []string{""}
	return o
}

// section declares a section with file-backed data and returns its
// section table index.
func (o *testObj) section(name string, typ uint32, flags uint64, data []byte) uint16 {
	o.secs = append(o.secs, testSec{
		name: name,
		shdr: Shdr{Type: typ, Flags: flags, Size: uint64(len(data)), AddrAlign: 1},
		data: data,
	})
	return uint16(len(o.secs))
}

// local declares a local symbol and returns its symbol index. All
// locals must be declared before the first global.
func (o *testObj) local(name string, typ elf.SymType, shndx uint16, value uint64) uint32 {
	if len(o.globalSyms) > 0 {
		panic("local symbol declared after a global")
	}
	o.localSyms = append(o.localSyms, Sym{
		Info:  elf.ST_INFO(elf.STB_LOCAL, typ),
		Shndx: shndx,
		Value: value,
	})
	o.localNames = append(o.localNames, name)
	return uint32(len(o.localSyms) - 1)
}

// global declares a global symbol and returns its symbol index.
func (o *testObj) global(name string, bind elf.SymBind, typ elf.SymType, shndx uint16, value, size uint64) uint32 {
	o.globalSyms = append(o.globalSyms, Sym{
		Info:  elf.ST_INFO(bind, typ),
		Shndx: shndx,
		Value: value,
		Size:  size,
	})
	o.globalNames = append(o.globalNames, name)
	return uint32(len(o.localSyms) + len(o.globalSyms) - 1)
}

// group declares a COMDAT group whose signature is the symbol sigSym.
func (o *testObj) group(sigSym uint32, members ...uint16) {
	o.groups = append(o.groups, testGroup{flag: GRP_COMDAT, sigSym: sigSym, members: members})
}

// rawGroup declares a SHT_GROUP section with an arbitrary payload,
// for malformed-input tests.
func (o *testObj) rawGroup(sigSym uint32, payload ...uint32) {
	if payload == nil {
		payload = []uint32{}
	}
	o.groups = append(o.groups, testGroup{sigSym: sigSym, payload: payload})
}

// rela declares a SHT_RELA section targeting section index target.
func (o *testObj) rela(target uint16, rels ...Rela) {
	o.relas = append(o.relas, testRela{target: target, rels: rels})
}

// build lays out the image: the null section, the declared sections,
// group and relocation sections, then .symtab/.strtab/.shstrtab.
func (o *testObj) build() []byte {
	type finalSec struct {
		name string
		shdr Shdr
		data []byte
	}
	secs := []finalSec{{}}
	for _, s := range o.secs {
		secs = append(secs, finalSec{s.name, s.shdr, s.data})
	}

	symtabIdx := uint32(1 + len(o.secs) + len(o.groups) + len(o.relas))
	strtabIdx := symtabIdx + 1

	for _, g := range o.groups {
		payload := g.payload
		if payload == nil {
			payload = []uint32{g.flag}
			for _, m := range g.members {
				payload = append(payload, uint32(m))
			}
		}
		var data bytes.Buffer
		for _, w := range payload {
			writeTo(&data, w)
		}
		secs = append(secs, finalSec{
			name: ".group",
			shdr: Shdr{
				Type: uint32(elf.SHT_GROUP), Link: symtabIdx, Info: g.sigSym,
				Size: uint64(data.Len()), EntSize: 4, AddrAlign: 4,
			},
			data: data.Bytes(),
		})
	}

	for _, r := range o.relas {
		var data bytes.Buffer
		for _, rel := range r.rels {
			writeTo(&data, rel)
		}
		name := ".rela"
		if n := int(r.target) - 1; n >= 0 && n < len(o.secs) {
			name += o.secs[n].name
		}
		secs = append(secs, finalSec{
			name: name,
			shdr: Shdr{
				Type: uint32(elf.SHT_RELA), Link: symtabIdx, Info: uint32(r.target),
				Size: uint64(data.Len()), EntSize: RelaSize, AddrAlign: 8,
			},
			data: data.Bytes(),
		})
	}

	if !o.noSymtab {
		var strtab bytes.Buffer
		strtab.WriteByte(0)
		var symtab bytes.Buffer
		writeSym := func(sym Sym, name string) {
			if name != "" {
				sym.Name = uint32(strtab.Len())
				strtab.WriteString(name)
				strtab.WriteByte(0)
			}
			writeTo(&symtab, sym)
		}
		for i, sym := range o.localSyms {
			writeSym(sym, o.localNames[i])
		}
		for i, sym := range o.globalSyms {
			writeSym(sym, o.globalNames[i])
		}

		symtabName := ".symtab"
		if o.symType == uint32(elf.SHT_DYNSYM) {
			symtabName = ".dynsym"
		}
		secs = append(secs, finalSec{
			name: symtabName,
			shdr: Shdr{
				Type: o.symType, Link: strtabIdx, Info: uint32(len(o.localSyms)),
				Size: uint64(symtab.Len()), EntSize: SymSize, AddrAlign: 8,
			},
			data: symtab.Bytes(),
		})
		secs = append(secs, finalSec{
			name: ".strtab",
			shdr: Shdr{Type: uint32(elf.SHT_STRTAB), Size: uint64(strtab.Len()), AddrAlign: 1},
			data: strtab.Bytes(),
		})
	}

	var shstrtab bytes.Buffer
	shstrtab.WriteByte(0)
	for i := range secs {
		if i == 0 || secs[i].name == "" {
			continue
		}
		secs[i].shdr.Name = uint32(shstrtab.Len())
		shstrtab.WriteString(secs[i].name)
		shstrtab.WriteByte(0)
	}
	shstrndx := len(secs)
	nameOff := uint32(shstrtab.Len())
	shstrtab.WriteString(".shstrtab")
	shstrtab.WriteByte(0)
	secs = append(secs, finalSec{
		name: ".shstrtab",
		shdr: Shdr{Name: nameOff, Type: uint32(elf.SHT_STRTAB), Size: uint64(shstrtab.Len()), AddrAlign: 1},
		data: shstrtab.Bytes(),
	})

	// Place section data after the ELF header, then the section
	// header table.
	var image bytes.Buffer
	image.Write(make([]byte, EhdrSize))
	for i := range secs {
		if i == 0 {
			continue
		}
		secs[i].shdr.Offset = uint64(image.Len())
		if secs[i].shdr.Type != uint32(elf.SHT_NOBITS) {
			image.Write(secs[i].data)
		}
	}
	for image.Len()%8 != 0 {
		image.WriteByte(0)
	}
	shoff := uint64(image.Len())
	for _, s := range secs {
		writeTo(&image, s.shdr)
	}

	ehdr := Ehdr{
		Type:      o.eType,
		Machine:   uint16(elf.EM_X86_64),
		Version:   1,
		ShOff:     shoff,
		EhSize:    EhdrSize,
		ShEntSize: ShdrSize,
		ShNum:     uint16(len(secs)),
		ShStrndx:  uint16(shstrndx),
	}
	copy(ehdr.Ident[:], elfMagic)
	ehdr.Ident[4] = byte(elf.ELFCLASS64)
	ehdr.Ident[5] = byte(elf.ELFDATA2LSB)
	ehdr.Ident[6] = byte(elf.EV_CURRENT)

	out := image.Bytes()
	var hdr bytes.Buffer
	writeTo(&hdr, ehdr)
	copy(out, hdr.Bytes())
	return out
}

func writeTo(buf *bytes.Buffer, v any) {
	b := make([]byte, sizeOf(v))
	writeStruct(b, v)
	buf.Write(b)
}

func sizeOf(v any) int {
	switch v.(type) {
	case Ehdr:
		return EhdrSize
	case Shdr:
		return ShdrSize
	case Sym:
		return SymSize
	case Rela:
		return RelaSize
	case uint32:
		return 4
	default:
		panic(fmt.Sprintf("unknown record type %T", v))
	}
}

// add parses a built image into ctx under the given name. An
// archiveName other than "" marks the file as an archive member.
func (o *testObj) add(t *testing.T, ctx *Context, name, archiveName string) *ObjectFile {
	t.Helper()
	obj := ctx.AddFile(&File{
		Name:        name,
		ArchiveName: archiveName,
		Contents:    o.build(),
	})
	return obj
}
