package carbon

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/printer"
	"go/token"
	"strings"

	"carbon-factory/internal/source"
)

// SignatureError means the code is not in a shape the measurement harness
// can drive automatically: no function, unparseable source, or parameters
// that a fixed placeholder arity cannot satisfy.
type SignatureError struct {
	Reason string
}

func (e *SignatureError) Error() string {
	return "signature: " + e.Reason
}

// Synthesize statically inspects source text containing at least one
// top-level function and returns the name of the first one together with a
// call expression using a typed zero placeholder per parameter, e.g.
// `func f(a, b int)` -> `f(0, 0)`. The source is never executed here; it
// comes from an LLM and only the isolated runner may run it.
func Synthesize(code string) (name, call string, err error) {
	// Normalize through the same wrapper the interpreter paths use, so
	// stray package clauses and mid-source imports never break the parse.
	src := source.WrapMain(code)
	fset := token.NewFileSet()
	parsed, perr := parser.ParseFile(fset, "candidate.go", src, 0)
	if perr != nil {
		return "", "", &SignatureError{Reason: fmt.Sprintf("unparseable source: %v", perr)}
	}

	var fn *ast.FuncDecl
	for _, decl := range parsed.Decls {
		d, ok := decl.(*ast.FuncDecl)
		if !ok || d.Recv != nil {
			continue
		}
		fn = d
		break
	}
	if fn == nil {
		return "", "", &SignatureError{Reason: "no function definition found"}
	}

	args, err := placeholderArgs(fset, fn)
	if err != nil {
		return "", "", err
	}
	return fn.Name.Name, fmt.Sprintf("%s(%s)", fn.Name.Name, strings.Join(args, ", ")), nil
}

func placeholderArgs(fset *token.FileSet, fn *ast.FuncDecl) ([]string, error) {
	var args []string
	for _, field := range fn.Type.Params.List {
		if _, ok := field.Type.(*ast.Ellipsis); ok {
			return nil, &SignatureError{Reason: fmt.Sprintf("%s has variadic parameters", fn.Name.Name)}
		}
		zero, err := zeroValue(fset, field.Type)
		if err != nil {
			return nil, err
		}
		// A field covers every name it declares: (a, b int) is two params.
		n := len(field.Names)
		if n == 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			args = append(args, zero)
		}
	}
	return args, nil
}

func zeroValue(fset *token.FileSet, typ ast.Expr) (string, error) {
	switch t := typ.(type) {
	case *ast.Ident:
		switch t.Name {
		case "int", "int8", "int16", "int32", "int64",
			"uint", "uint8", "uint16", "uint32", "uint64", "uintptr",
			"byte", "rune", "float32", "float64", "complex64", "complex128":
			return "0", nil
		case "string":
			return `""`, nil
		case "bool":
			return "false", nil
		case "error", "any":
			return "nil", nil
		}
		return "*new(" + t.Name + ")", nil
	case *ast.ArrayType:
		if t.Len == nil { // slice
			return "nil", nil
		}
		text, err := typeText(fset, typ)
		if err != nil {
			return "", err
		}
		return "*new(" + text + ")", nil
	case *ast.StarExpr, *ast.MapType, *ast.ChanType,
		*ast.FuncType, *ast.InterfaceType:
		return "nil", nil
	case *ast.StructType, *ast.SelectorExpr:
		text, err := typeText(fset, typ)
		if err != nil {
			return "", err
		}
		return "*new(" + text + ")", nil
	default:
		text, err := typeText(fset, typ)
		if err != nil {
			return "", err
		}
		return "*new(" + text + ")", nil
	}
}

func typeText(fset *token.FileSet, typ ast.Expr) (string, error) {
	var b strings.Builder
	if err := printer.Fprint(&b, fset, typ); err != nil {
		return "", &SignatureError{Reason: fmt.Sprintf("unprintable parameter type: %v", err)}
	}
	return b.String(), nil
}
