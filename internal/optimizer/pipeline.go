package optimizer

import (
	"context"
	"fmt"
	"strings"

	"carbon-factory/internal/source"
)

// FunctionResult pairs one top-level function with the outcome of its
// optimization loop.
type FunctionResult struct {
	Name  string
	State *State
	Err   error
}

// OptimizeFile runs the loop over every optimizable top-level function of
// a whole file and reassembles the file with the improved bodies spliced
// in. rawTests, when non-empty, is handed to the oracle so it can extract
// the tests relevant to each function; otherwise tests are generated.
//
// A fatal error aborts the run but the assembled output still carries
// every improvement found up to that point.
func (e *Engine) OptimizeFile(ctx context.Context, src, rawTests string) (string, []FunctionResult, error) {
	file, err := source.Extract(src)
	if err != nil {
		return "", nil, err
	}

	replacements := map[string]string{}
	var results []FunctionResult
	for i, fn := range file.Functions {
		// Methods need their receiver type to be driven and init cannot be
		// called by name, so neither goes through the loop.
		if fn.Method || fn.Name == "init" {
			continue
		}

		testCode, err := e.Oracle.GenerateTests(ctx, fn.Source, rawTests)
		if err != nil {
			results = append(results, FunctionResult{Name: fn.Name, Err: err})
			return file.Assemble(replacements), results, fmt.Errorf("generating tests for %s: %w", fn.Name, err)
		}

		idx := i
		scoped := *e
		scoped.Contextualize = func(candidate string) string {
			return fullContext(file, idx, candidate)
		}
		st, err := scoped.Optimize(ctx, fn.Name, fn.Source, testCode)
		results = append(results, FunctionResult{Name: fn.Name, State: st, Err: err})
		// Splice before checking the error: a fatal later attempt must not
		// drop an improvement this function already validated.
		if st.Improved() {
			replacements[fn.Name] = st.BestCode
		}
		if err != nil {
			return file.Assemble(replacements), results, err
		}
	}
	return file.Assemble(replacements), results, nil
}

// fullContext surrounds a candidate with everything else the file
// declares. The candidate goes first so the measurement driver targets it;
// top-level declaration order carries no meaning beyond that.
func fullContext(file source.File, idx int, candidate string) string {
	parts := []string{strings.TrimSpace(candidate)}
	for j, other := range file.Functions {
		if j == idx {
			continue
		}
		parts = append(parts, other.Source)
	}
	if file.Preamble != "" {
		parts = append(parts, file.Preamble)
	}
	return strings.Join(parts, "\n\n")
}
