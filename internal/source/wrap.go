// Package source manipulates Go source text: wrapping oracle-produced
// snippets into interpretable programs and splitting/reassembling whole
// files for per-function optimization.
package source

import (
	"sort"
	"strings"
)

// WrapMain combines raw function snippets into a single package main
// program. Snippets may carry their own import statements anywhere in the
// text (the oracle is asked not to, but does anyway); those are hoisted
// into one deduplicated import block after the package clause, since Go
// only accepts imports there.
func WrapMain(snippets ...string) string {
	imports := map[string]bool{}
	bodies := make([]string, 0, len(snippets))
	for _, s := range snippets {
		body, found := extractImports(s)
		for _, p := range found {
			imports[p] = true
		}
		body = strings.TrimSpace(body)
		if body != "" {
			bodies = append(bodies, body)
		}
	}

	var b strings.Builder
	b.WriteString("package main\n")
	if len(imports) > 0 {
		paths := make([]string, 0, len(imports))
		for p := range imports {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		b.WriteString("\nimport (\n")
		for _, p := range paths {
			b.WriteString("\t\"" + p + "\"\n")
		}
		b.WriteString(")\n")
	}
	for _, body := range bodies {
		b.WriteString("\n" + body + "\n")
	}
	return b.String()
}

// extractImports removes import statements from a snippet line by line and
// returns the remaining body plus the imported paths. Line scanning is
// deliberate: snippets are frequently unparseable as-is (that is why the
// imports must move), so an AST pass is not an option here. Backtick
// parity tracks raw string literals so their contents are never mistaken
// for import or package lines; a raw string cannot contain a backtick, so
// parity is exact up to backticks in interpreted strings.
func extractImports(s string) (string, []string) {
	var body []string
	var paths []string
	inBlock := false
	inRaw := false
	for _, line := range strings.Split(s, "\n") {
		if inRaw {
			body = append(body, line)
			if strings.Count(line, "`")%2 == 1 {
				inRaw = false
			}
			continue
		}
		trimmed := strings.TrimSpace(line)
		switch {
		case inBlock:
			if strings.HasPrefix(trimmed, ")") {
				inBlock = false
				continue
			}
			if p := importPath(trimmed); p != "" {
				paths = append(paths, p)
			}
			continue
		case strings.HasPrefix(trimmed, "import ("):
			inBlock = true
			continue
		case strings.HasPrefix(trimmed, "import "):
			if p := importPath(strings.TrimPrefix(trimmed, "import ")); p != "" {
				paths = append(paths, p)
			}
			continue
		case strings.HasPrefix(trimmed, "package "):
			// Drop stray package clauses; WrapMain writes its own.
			continue
		}
		body = append(body, line)
		if strings.Count(line, "`")%2 == 1 {
			inRaw = true
		}
	}
	return strings.Join(body, "\n"), paths
}

func importPath(raw string) string {
	raw = strings.TrimSpace(raw)
	// Tolerate aliased imports by keeping only the quoted path.
	if i := strings.IndexByte(raw, '"'); i >= 0 {
		raw = raw[i:]
	}
	raw = strings.Trim(raw, `"`)
	if raw == "" || strings.ContainsAny(raw, " \t") {
		return ""
	}
	return raw
}
