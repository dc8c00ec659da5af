// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package link

// registerDefinedSymbols offers each of the file's defined globals as
// the owner of its interned Symbol. An offer wins if the symbol has
// no owner, if it upgrades a weak owner to strong, if it replaces a
// common owner of equal strength with a regular definition, or if it
// ties on both with a smaller priority. The rule totally orders all
// candidates, so the outcome is independent of scheduling.
func (o *ObjectFile) registerDefinedSymbols() {
	for i, sym := range o.Symbols {
		esym := o.globalSym(i)
		if !esym.IsDefined() {
			continue
		}

		// Absolute and common symbols have no section; common symbols
		// get one later, from materialisation in the owning file.
		var isec *InputSection
		if !esym.IsAbs() && !esym.IsCommon() {
			isec = o.Sections[esym.Shndx]
		}
		isWeak := esym.IsWeak()
		isCommon := esym.IsCommon()

		sym.mu.Lock()
		// A common symbol is only a tentative definition: a regular
		// definition of equal strength replaces it whatever the priority.
		ownerCommon := false
		if f := sym.File; f != nil {
			for j, s := range f.Symbols {
				if s == sym {
					ownerCommon = f.globalSym(j).IsCommon()
					break
				}
			}
		}
		if sym.File == nil ||
			(sym.IsWeak && !isWeak) ||
			(sym.IsWeak == isWeak && ownerCommon && !isCommon) ||
			(sym.IsWeak == isWeak && ownerCommon == isCommon && o.Priority < sym.File.Priority) {
			sym.File = o
			sym.InputSection = isec
			sym.Value = esym.Value
			sym.Addr = esym.Value
			sym.Type = esym.Type()
			sym.Visibility = esym.Visibility()
			sym.IsWeak = isWeak
			sym.IsUndefWeak = false
		}
		sym.mu.Unlock()
	}
}

// markLiveObjects feeds the not-yet-live archive members that provide
// this file's strong undefined symbols. Weak references never pull a
// member in.
func (o *ObjectFile) markLiveObjects(feeder func(*ObjectFile)) {
	for i, sym := range o.Symbols {
		esym := o.globalSym(i)
		if esym.IsDefined() || esym.IsWeak() {
			continue
		}
		// Owners are quiescent here: registration finished before the
		// fixpoint started. The liveness read may race with another
		// feeder, but processing is idempotent.
		if f := sym.File; f != nil && f.IsInArchive() && !f.IsAlive.Load() {
			feeder(f)
		}
	}
}

// clearSymbols releases every symbol still owned by this (dead) file
// so that later passes see it as unresolved.
func (o *ObjectFile) clearSymbols() {
	for _, sym := range o.Symbols {
		sym.mu.Lock()
		if sym.File == o {
			sym.clear()
		}
		sym.mu.Unlock()
	}
}

// handleUndefinedWeakSymbols claims still-unresolved symbols for this
// file's undefined-weak references, so downstream passes can treat
// them as defined with address zero.
func (o *ObjectFile) handleUndefinedWeakSymbols() {
	for i, sym := range o.Symbols {
		esym := o.globalSym(i)
		if !esym.IsUndef() || !esym.IsWeak() {
			continue
		}

		sym.mu.Lock()
		if sym.File == nil || !sym.File.IsAlive.Load() ||
			(sym.IsUndefWeak && o.Priority < sym.File.Priority) {
			sym.File = o
			sym.InputSection = nil
			sym.Value = 0
			sym.Addr = 0
			sym.IsWeak = true
			sym.IsUndefWeak = true
			sym.Visibility = esym.Visibility()
		}
		sym.mu.Unlock()
	}
}
