// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package link implements the input ingestion and symbol resolution
// core of an ELF linker.
//
// Given a set of relocatable object files, possibly drawn from
// archives, the package parses them into ObjectFiles, resolves global
// symbol references across files with deterministic priority
// tie-breaking, demand-loads archive members, deduplicates COMDAT
// section groups, materialises common symbols as BSS sections, and
// sizes and writes the output symbol and string tables. All state is
// rooted in a Context; there are no package-level singletons.
package link

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
)

// The package handles exactly one object format: ELF64 little-endian
// relocatable files (plus the symbol tables of shared objects, which
// feed resolution). The record structs below mirror the on-disk
// layout, so they can be decoded and encoded with encoding/binary.

// Ehdr is an ELF64 file header.
type Ehdr struct {
	Ident     [16]byte
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint64
	PhOff     uint64
	ShOff     uint64
	Flags     uint32
	EhSize    uint16
	PhEntSize uint16
	PhNum     uint16
	ShEntSize uint16
	ShNum     uint16
	ShStrndx  uint16
}

// Shdr is an ELF64 section header.
type Shdr struct {
	Name      uint32
	Type      uint32
	Flags     uint64
	Addr      uint64
	Offset    uint64
	Size      uint64
	Link      uint32
	Info      uint32
	AddrAlign uint64
	EntSize   uint64
}

// Sym is an ELF64 symbol table entry.
type Sym struct {
	Name  uint32
	Info  uint8
	Other uint8
	Shndx uint16
	Value uint64
	Size  uint64
}

// Rela is an ELF64 relocation with addend.
type Rela struct {
	Offset uint64
	Info   uint64
	Addend int64
}

const (
	EhdrSize = 64
	ShdrSize = 64
	SymSize  = 24
	RelaSize = 24
)

// Constants missing from debug/elf.
const (
	// GRP_COMDAT marks a section group as a COMDAT group.
	GRP_COMDAT uint32 = 1

	// SHF_EXCLUDE asks the linker to discard the section unless it is
	// also allocatable.
	SHF_EXCLUDE uint64 = 0x80000000
)

// Binding returns the symbol binding (STB_*).
func (s *Sym) Binding() elf.SymBind { return elf.ST_BIND(s.Info) }

// Type returns the symbol type (STT_*).
func (s *Sym) Type() elf.SymType { return elf.ST_TYPE(s.Info) }

// Visibility returns the symbol visibility (STV_*).
func (s *Sym) Visibility() elf.SymVis { return elf.ST_VISIBILITY(s.Other) }

// IsUndef reports whether the symbol is undefined.
func (s *Sym) IsUndef() bool { return s.Shndx == uint16(elf.SHN_UNDEF) }

// IsAbs reports whether the symbol is absolute.
func (s *Sym) IsAbs() bool { return s.Shndx == uint16(elf.SHN_ABS) }

// IsCommon reports whether the symbol is a common (tentative)
// definition.
func (s *Sym) IsCommon() bool { return s.Shndx == uint16(elf.SHN_COMMON) }

// IsDefined reports whether the symbol is defined, counting common
// symbols as defined.
func (s *Sym) IsDefined() bool { return !s.IsUndef() }

// IsWeak reports whether the symbol has weak binding.
func (s *Sym) IsWeak() bool { return s.Binding() == elf.STB_WEAK }

var order = binary.LittleEndian

// readStruct decodes one fixed-size record from the front of b.
func readStruct[T any](b []byte) (T, error) {
	var v T
	if err := binary.Read(bytes.NewReader(b), order, &v); err != nil {
		return v, err
	}
	return v, nil
}

// readSlice decodes consecutive fixed-size records filling all of b.
// size must be the encoded size of T.
func readSlice[T any](b []byte, size int) ([]T, error) {
	if len(b)%size != 0 {
		return nil, fmt.Errorf("section size %d is not a multiple of entry size %d", len(b), size)
	}
	out := make([]T, 0, len(b)/size)
	for len(b) > 0 {
		v, err := readStruct[T](b)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		b = b[size:]
	}
	return out, nil
}

// getName reads the NUL-terminated string at off in strtab.
func getName(strtab []byte, off uint32) (string, error) {
	if uint64(off) >= uint64(len(strtab)) {
		return "", fmt.Errorf("string table offset %d out of range", off)
	}
	n := bytes.IndexByte(strtab[off:], 0)
	if n < 0 {
		return "", fmt.Errorf("string at offset %d is not null terminated", off)
	}
	return string(strtab[off : int(off)+n]), nil
}

// writeStruct encodes one fixed-size record at the front of b, which
// must be large enough.
func writeStruct[T any](b []byte, v T) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, order, v); err != nil {
		panic(fmt.Sprintf("encoding fixed-size record: %v", err))
	}
	copy(b, buf.Bytes())
}
