package source

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
)

// Function is one top-level function of an input file, carried as raw
// source text so it can be handed to the oracle and spliced back verbatim.
type Function struct {
	Name   string
	Source string
	Method bool // has a receiver; kept for reassembly, skipped by the loop
}

// File is the split form of a whole input file: everything before the
// first function (package clause, imports, constants) plus the functions
// in declaration order.
type File struct {
	Preamble  string
	Functions []Function
}

// Extract splits a Go file into preamble and top-level functions.
func Extract(src string) (File, error) {
	fset := token.NewFileSet()
	parsed, err := parser.ParseFile(fset, "input.go", src, parser.ParseComments)
	if err != nil {
		return File{}, fmt.Errorf("parse input: %w", err)
	}

	var out File
	firstFunc := -1
	for _, decl := range parsed.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok {
			continue
		}
		start := fn.Pos()
		if fn.Doc != nil {
			start = fn.Doc.Pos()
		}
		startOff := fset.Position(start).Offset
		endOff := fset.Position(fn.End()).Offset
		if firstFunc < 0 {
			firstFunc = startOff
		}
		out.Functions = append(out.Functions, Function{
			Name:   fn.Name.Name,
			Source: strings.TrimSpace(src[startOff:endOff]),
			Method: fn.Recv != nil,
		})
	}
	if firstFunc > 0 {
		out.Preamble = strings.TrimSpace(src[:firstFunc])
	} else if firstFunc < 0 {
		out.Preamble = strings.TrimSpace(src)
	}
	return out, nil
}

// Assemble rebuilds the file with the given replacements substituted for
// the matching function names. Functions without a replacement keep their
// original source.
func (f File) Assemble(replacements map[string]string) string {
	parts := make([]string, 0, len(f.Functions)+1)
	if f.Preamble != "" {
		parts = append(parts, f.Preamble)
	}
	for _, fn := range f.Functions {
		if code, ok := replacements[fn.Name]; ok && strings.TrimSpace(code) != "" {
			parts = append(parts, strings.TrimSpace(code))
			continue
		}
		parts = append(parts, fn.Source)
	}
	return strings.Join(parts, "\n\n") + "\n"
}
