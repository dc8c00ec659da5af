// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command ld ingests relocatable object files and static libraries,
// resolves their symbols, and prints the resulting symbol map. It
// drives the ingestion and resolution core end-to-end: parsing,
// defined-symbol registration, archive demand-loading, weak-undef
// handling, COMDAT deduplication, common symbol materialisation, and
// symbol table sizing.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/aclements/go-link/ar"
	"github.com/aclements/go-link/link"
)

var (
	output       = pflag.StringP("output", "o", "-", "write the symbol map to `file` (\"-\" for stdout)")
	libraryPaths = pflag.StringArrayP("library-path", "L", nil, "add `dir` to the library search path")
	libraries    = pflag.StringArrayP("library", "l", nil, "link against lib`name`.a, searched after the object files")
	threads      = pflag.Int("threads", 0, "worker parallelism (0 means GOMAXPROCS)")
	verbose      = pflag.BoolP("verbose", "v", false, "enable debug logging")
)

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: ld [flags] object-file...\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if pflag.NArg() == 0 && len(*libraries) == 0 {
		pflag.Usage()
		os.Exit(2)
	}

	logger := newLogger(*verbose)
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Fatal("link failed", zap.Error(err))
	}
}

func newLogger(verbose bool) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ld: building logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func run(logger *zap.Logger) error {
	ctx := link.NewContext(
		link.WithLogger(logger),
		link.WithThreads(*threads),
	)

	for _, path := range pflag.Args() {
		if err := addInput(ctx, path); err != nil {
			return err
		}
	}
	for _, name := range *libraries {
		path, err := findLibrary(name)
		if err != nil {
			return err
		}
		if err := addInput(ctx, path); err != nil {
			return err
		}
	}
	logger.Info("loaded inputs", zap.Int("files", len(ctx.Objs)))

	if err := ctx.ParseAll(); err != nil {
		return err
	}
	ctx.RegisterDefinedSymbols()
	ctx.MarkLiveObjects()
	ctx.HandleUndefinedWeakSymbols()
	ctx.EliminateDuplicateComdatGroups()
	ctx.ConvertCommonSymbols()
	ctx.FinalizeSections()
	ctx.FixSymbolAddrs()

	symtabSize, strtabSize := ctx.ComputeSymtab()
	symtab := make([]byte, symtabSize)
	strtab := make([]byte, strtabSize)
	ctx.WriteSymtab(symtab, strtab)
	logger.Info("symbol tables written",
		zap.Uint64("symtab bytes", symtabSize),
		zap.Uint64("strtab bytes", strtabSize))

	return writeMap(ctx)
}

// addInput loads one command line input, expanding archives into
// their members.
func addInput(ctx *link.Context, path string) error {
	file, err := link.ReadFile(path)
	if err != nil {
		return err
	}
	switch link.IdentifyFile(file.Contents) {
	case link.FileTypeObject, link.FileTypeSharedObject:
		ctx.AddFile(file)
	case link.FileTypeArchive:
		members, err := ar.Members(file.Contents)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		for _, m := range members {
			ctx.AddFile(&link.File{
				Name:        m.Name,
				ArchiveName: path,
				Contents:    m.Contents,
			})
		}
	default:
		return fmt.Errorf("%s: unknown file type", path)
	}
	return nil
}

// findLibrary resolves -lname against the -L search path.
func findLibrary(name string) (string, error) {
	for _, dir := range *libraryPaths {
		path := filepath.Join(dir, "lib"+name+".a")
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("library not found: -l%s", name)
}

// writeMap prints the resolved global symbols, sorted by name.
func writeMap(ctx *link.Context) error {
	out := os.Stdout
	if *output != "-" {
		f, err := os.Create(*output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	type entry struct {
		name, file, kind string
		addr             uint64
	}
	var entries []entry
	for _, o := range ctx.Objs {
		if !o.IsAlive.Load() {
			continue
		}
		for _, sym := range o.Symbols {
			if sym.File != o {
				continue
			}
			kind := "strong"
			switch {
			case sym.IsUndefWeak:
				kind = "undef-weak"
			case sym.IsWeak:
				kind = "weak"
			}
			entries = append(entries, entry{sym.Name, o.String(), kind, sym.Addr})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })

	for _, e := range entries {
		if _, err := fmt.Fprintf(out, "%016x %-10s %-30s %s\n", e.addr, e.kind, e.name, e.file); err != nil {
			return err
		}
	}
	return nil
}
