// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package link

import (
	"runtime"

	"go.uber.org/zap"

	"github.com/aclements/go-link/internal/intern"
)

// A Context holds all state shared across one link invocation. The
// interned tables are insert-only, so readers between passes see
// stable pointers without further locking.
type Context struct {
	// Objs lists all input object files in priority order, including
	// archive members that may never become alive.
	Objs []*ObjectFile

	symbols  intern.Map[Symbol]
	comdats  intern.Map[ComdatGroup]
	osecs    intern.Map[OutputSection]
	osecList outputSectionList

	logger   *zap.Logger
	nthreads int

	// numLocals is the count of local entries at the front of the
	// output .symtab, recorded by ComputeSymtab.
	numLocals uint64
}

// An Option configures a Context.
type Option func(*Context)

// WithLogger sets the logger used for pass-level progress. The
// default discards all output.
func WithLogger(logger *zap.Logger) Option {
	return func(ctx *Context) { ctx.logger = logger }
}

// WithThreads bounds the worker parallelism of each pass. The default
// is GOMAXPROCS. Results do not depend on the thread count.
func WithThreads(n int) Option {
	return func(ctx *Context) {
		if n > 0 {
			ctx.nthreads = n
		}
	}
}

// NewContext returns an empty link context.
func NewContext(opts ...Option) *Context {
	ctx := &Context{
		logger:   zap.NewNop(),
		nthreads: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(ctx)
	}
	return ctx
}

// Symbol interns name, returning the process-wide unique Symbol for
// it. Concurrent calls with equal names return the same pointer; new
// symbols start zero-initialised with no owning file.
func (ctx *Context) Symbol(name string) *Symbol {
	return ctx.symbols.Insert(name, func() *Symbol {
		return &Symbol{Name: name}
	})
}

// LookupSymbol returns the interned symbol for name, or nil if no
// input file has mentioned it.
func (ctx *Context) LookupSymbol(name string) *Symbol {
	return ctx.symbols.Get(name)
}

// comdatGroup interns the COMDAT group for a signature.
func (ctx *Context) comdatGroup(signature string) *ComdatGroup {
	return ctx.comdats.Insert(signature, func() *ComdatGroup {
		return &ComdatGroup{Signature: signature}
	})
}

// liveObjs returns the files that survived archive demand-loading.
// Only valid after MarkLiveObjects.
func (ctx *Context) liveObjs() []*ObjectFile {
	objs := make([]*ObjectFile, 0, len(ctx.Objs))
	for _, o := range ctx.Objs {
		if o.IsAlive.Load() {
			objs = append(objs, o)
		}
	}
	return objs
}
