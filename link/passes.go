// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package link

import (
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// The passes below are barrier-separated: each returns only when all
// of its per-file work has finished, so every write of pass k
// happens-before every read of pass k+1. Within a pass, files are
// independent units of work, and all cross-file decisions tie-break
// on the unique file priority, making the results independent of
// scheduling. A link either completes or stops at the first error;
// there is no partial-success mode.

// AddFile registers an input buffer. Files must be added in command
// line order, archive members in archive order; the position assigns
// the file's priority.
func (ctx *Context) AddFile(file *File) *ObjectFile {
	o := NewObjectFile(file, len(ctx.Objs))
	ctx.Objs = append(ctx.Objs, o)
	return o
}

// forEachFile runs f over objs with bounded parallelism and waits for
// all of them.
func (ctx *Context) forEachFile(objs []*ObjectFile, f func(*ObjectFile)) {
	var wg sync.WaitGroup
	sem := make(chan struct{}, ctx.nthreads)
	for _, o := range objs {
		o := o
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			f(o)
		}()
	}
	wg.Wait()
}

// ParseAll parses every input file in parallel, stopping at the
// first malformed file.
func (ctx *Context) ParseAll() error {
	var g errgroup.Group
	g.SetLimit(ctx.nthreads)
	for _, o := range ctx.Objs {
		o := o
		g.Go(func() error { return o.Parse(ctx) })
	}
	if err := g.Wait(); err != nil {
		return err
	}
	ctx.logger.Debug("parsed input files",
		zap.Int("files", len(ctx.Objs)),
		zap.Int("symbols", ctx.symbols.Len()),
		zap.Int("comdat groups", ctx.comdats.Len()))
	return nil
}

// RegisterDefinedSymbols resolves ownership of every defined global
// across all files, archive members included, so that the liveness
// fixpoint can see which member provides which symbol.
func (ctx *Context) RegisterDefinedSymbols() {
	ctx.forEachFile(ctx.Objs, (*ObjectFile).registerDefinedSymbols)
	ctx.logger.Debug("registered defined symbols")
}

// MarkLiveObjects computes the least fixpoint of "archive members
// needed to satisfy strong undefined references of live files".
// Command-line files seed the fixpoint; workers feed newly live
// members back into the pass. Symbols still owned by dead members
// are released afterwards.
func (ctx *Context) MarkLiveObjects() {
	var wg sync.WaitGroup
	sem := make(chan struct{}, ctx.nthreads)

	var process func(o *ObjectFile)
	process = func(o *ObjectFile) {
		defer wg.Done()
		sem <- struct{}{}
		defer func() { <-sem }()

		// The exchange makes processing idempotent: however many
		// feeders offer a file, one worker scans it.
		if o.IsAlive.Swap(true) {
			return
		}
		o.markLiveObjects(func(needed *ObjectFile) {
			wg.Add(1)
			go process(needed)
		})
	}

	for _, o := range ctx.Objs {
		if !o.IsInArchive() {
			wg.Add(1)
			go process(o)
		}
	}
	wg.Wait()

	dead := 0
	for _, o := range ctx.Objs {
		if !o.IsAlive.Load() {
			dead++
		}
	}
	ctx.logger.Debug("marked live objects",
		zap.Int("live", len(ctx.Objs)-dead), zap.Int("dead", dead))

	// Dead archive members may have won symbols during registration.
	// Release them so unresolved references stay unresolved.
	deadObjs := make([]*ObjectFile, 0, dead)
	for _, o := range ctx.Objs {
		if !o.IsAlive.Load() {
			deadObjs = append(deadObjs, o)
		}
	}
	ctx.forEachFile(deadObjs, (*ObjectFile).clearSymbols)
}

// HandleUndefinedWeakSymbols gives every still-unresolved symbol that
// a live file references as undefined-weak a defined-as-zero owner.
func (ctx *Context) HandleUndefinedWeakSymbols() {
	ctx.forEachFile(ctx.liveObjs(), (*ObjectFile).handleUndefinedWeakSymbols)
	ctx.logger.Debug("handled undefined weak symbols")
}

// EliminateDuplicateComdatGroups keeps one copy of every COMDAT
// signature and discards the member sections of all other copies.
func (ctx *Context) EliminateDuplicateComdatGroups() {
	ctx.forEachFile(ctx.liveObjs(), (*ObjectFile).eliminateDuplicateComdatGroups)
	ctx.logger.Debug("eliminated duplicate comdat groups")
}

// ConvertCommonSymbols materialises every winning common symbol as a
// BSS input section in its owning file.
func (ctx *Context) ConvertCommonSymbols() {
	live := ctx.liveObjs()
	ctx.forEachFile(live, func(o *ObjectFile) { o.convertCommonSymbols(ctx) })
	ctx.logger.Debug("converted common symbols")
}

// FixSymbolAddrs computes final symbol addresses once layout has
// assigned output section addresses and input section offsets.
func (ctx *Context) FixSymbolAddrs() {
	ctx.forEachFile(ctx.liveObjs(), (*ObjectFile).fixSymbolAddrs)
}

// ComputeSymtab sizes the output .symtab and .strtab and assigns each
// live file its slice of both: all locals first in priority order,
// then all globals. It returns the total table sizes in bytes.
func (ctx *Context) ComputeSymtab() (symtabSize, strtabSize uint64) {
	live := ctx.liveObjs()
	ctx.forEachFile(live, (*ObjectFile).computeSymtab)

	var symtabOff, strtabOff uint64
	for _, o := range live {
		o.LocalSymtabOff = symtabOff
		o.LocalStrtabOff = strtabOff
		symtabOff += o.LocalSymtabSize
		strtabOff += o.LocalStrtabSize
	}
	ctx.numLocals = symtabOff / SymSize
	for _, o := range live {
		o.GlobalSymtabOff = symtabOff
		o.GlobalStrtabOff = strtabOff
		symtabOff += o.GlobalSymtabSize
		strtabOff += o.GlobalStrtabSize
	}
	ctx.logger.Debug("computed symtab",
		zap.Uint64("symtab bytes", symtabOff), zap.Uint64("strtab bytes", strtabOff))
	return symtabOff, strtabOff
}

// NumLocalSymtabEntries returns how many leading .symtab entries are
// local, for the output symbol table section's sh_info. Only valid
// after ComputeSymtab.
func (ctx *Context) NumLocalSymtabEntries() uint64 { return ctx.numLocals }

// WriteSymtab fills symtab and strtab, which must be at least the
// sizes returned by ComputeSymtab. Per-file slices are disjoint, so
// files write in parallel.
func (ctx *Context) WriteSymtab(symtab, strtab []byte) {
	ctx.forEachFile(ctx.liveObjs(), func(o *ObjectFile) {
		o.writeLocalSymtab(symtab, strtab)
		o.writeGlobalSymtab(symtab, strtab)
	})
}
