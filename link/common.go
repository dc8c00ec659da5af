// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package link

import "debug/elf"

// convertCommonSymbols materialises the file's winning common
// symbols. Each becomes a synthetic zero-filled section appended to
// Sections and attached to the shared .bss output section; the symbol
// then points at the new section at offset zero. Losing duplicate
// common definitions in other files stay section-less, so exactly one
// BSS section exists per common symbol.
func (o *ObjectFile) convertCommonSymbols(ctx *Context) {
	if !o.HasCommonSymbol {
		return
	}

	for i := o.FirstGlobal; i < len(o.ElfSyms); i++ {
		esym := &o.ElfSyms[i]
		if !esym.IsCommon() {
			continue
		}
		sym := o.Symbols[i-o.FirstGlobal]
		if sym.File != o {
			continue
		}

		shdr := Shdr{
			Type:      uint32(elf.SHT_NOBITS),
			Flags:     uint64(elf.SHF_ALLOC),
			Size:      esym.Size,
			AddrAlign: 1,
		}
		isec := NewInputSection(ctx, o, shdr, ".bss")
		o.Sections = append(o.Sections, isec)

		sym.InputSection = isec
		sym.Value = 0
		sym.Addr = 0
	}
}
