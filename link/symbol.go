// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package link

import (
	"debug/elf"
	"sync"
)

// A Symbol is a process-wide unique global symbol, interned by name
// through Context.Symbol. Many files share one Symbol; the resolution
// passes decide which file owns it.
//
// The mutable fields are guarded by mu during the resolution passes.
// The critical sections cover only the compare-and-install logic;
// between barrier-separated passes readers observe quiescent values
// without locking.
type Symbol struct {
	mu sync.Mutex

	// Name is the interned symbol name. Immutable.
	Name string

	// File is the object file currently providing this symbol, or nil
	// if no definition (or undefined-weak reference) has claimed it.
	File *ObjectFile

	// InputSection is the section the winning definition lives in. It
	// is nil for absolute symbols, undefined-weak owners, and common
	// symbols before materialisation, and always points into
	// File.Sections.
	InputSection *InputSection

	// Value is the winner's original st_value, an offset into
	// InputSection (or the absolute value).
	Value uint64

	// Addr is the symbol's address. It transiently holds st_value
	// until FixSymbolAddrs folds in the assigned section addresses.
	Addr uint64

	// Type and Visibility are the winning definition's ELF symbol
	// type and visibility.
	Type       elf.SymType
	Visibility elf.SymVis

	// IsWeak records that the winning definition had weak binding.
	IsWeak bool

	// IsUndefWeak records that the current owner is an undefined-weak
	// reference rather than a definition.
	IsUndefWeak bool
}

// clear detaches the symbol from its owner. Called for symbols whose
// owning file never became alive, so later passes and the weak-undef
// handler see them as unresolved.
func (s *Symbol) clear() {
	s.File = nil
	s.InputSection = nil
	s.Value = 0
	s.Addr = 0
	s.Type = elf.STT_NOTYPE
	s.Visibility = elf.STV_DEFAULT
	s.IsWeak = false
	s.IsUndefWeak = false
}
