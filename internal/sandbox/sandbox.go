// Package sandbox executes candidate code plus a test module in one
// disposable interpreter namespace and reports pass/fail. It runs
// in-process on purpose: validation only needs a correctness signal, not
// measurement isolation, and test discovery must see the combined
// namespace directly.
package sandbox

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"carbon-factory/internal/source"
)

// testPrefix is the reserved naming convention marking a function in the
// test module as a test case.
const testPrefix = "test_"

// Outcome is the transient result of one validation run.
type Outcome struct {
	Passed  bool
	Message string
	Ran     int // test functions executed
}

type Sandbox struct {
	// Timeout bounds the whole combined execution; generated code can
	// loop forever.
	Timeout time.Duration
}

// Run combines candidate and test code into one package-main namespace,
// evaluates it, and invokes every test_* function in source order. A test
// fails by panicking or returning a non-nil error. Every failure mode of
// the generated code — syntax error, missing symbol, runtime panic — comes
// back as a failed Outcome, never as a crash.
func (s *Sandbox) Run(ctx context.Context, candidate, testCode string) Outcome {
	combined := source.WrapMain(candidate, testCode)

	names, err := discoverTests(combined)
	if err != nil {
		return Outcome{Passed: false, Message: "execution error: " + err.Error()}
	}
	if len(names) == 0 {
		return Outcome{Passed: false, Message: "no test_ functions found in test code"}
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan Outcome, 1)
	go func() {
		done <- execute(combined, names)
	}()

	select {
	case out := <-done:
		return out
	case <-runCtx.Done():
		// The goroutine is abandoned; the interpreter offers no way to
		// interrupt a hot loop, so the outcome just stops mattering.
		return Outcome{Passed: false, Message: fmt.Sprintf("test execution timed out after %s", timeout)}
	}
}

// discoverTests statically lists the test_* functions, in the order the
// source declares them. Static discovery keeps ordering deterministic and
// never runs code.
func discoverTests(combined string) ([]string, error) {
	fset := token.NewFileSet()
	parsed, err := parser.ParseFile(fset, "combined.go", combined, 0)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, decl := range parsed.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Recv != nil {
			continue
		}
		if strings.HasPrefix(fn.Name.Name, testPrefix) {
			names = append(names, fn.Name.Name)
		}
	}
	return names, nil
}

func execute(combined string, names []string) Outcome {
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return Outcome{Passed: false, Message: "execution error: " + err.Error()}
	}
	if err := eval(i, combined); err != nil {
		return Outcome{Passed: false, Message: "execution error: " + err.Error()}
	}

	var failures []string
	for _, name := range names {
		if err := invoke(i, name); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
		}
	}
	if len(failures) > 0 {
		return Outcome{Passed: false, Message: strings.Join(failures, "; "), Ran: len(names)}
	}
	return Outcome{Passed: true, Ran: len(names)}
}

func eval(i *interp.Interpreter, src string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	_, err = i.Eval(src)
	return err
}

// invoke calls one test function, converting panics and error returns
// into a single error value.
func invoke(i *interp.Interpreter, name string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	v, err := i.Eval("main." + name)
	if err != nil {
		return err
	}
	switch fn := v.Interface().(type) {
	case func():
		fn()
		return nil
	case func() error:
		return fn()
	default:
		return fmt.Errorf("unsupported test signature %T (want func() or func() error)", v.Interface())
	}
}
