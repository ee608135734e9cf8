package optimizer

import "carbon-factory/internal/sandbox"

// Stage names of the fixed optimization loop. The controller is a
// sequential state machine over exactly these stages; routing between
// them lives in routes.go.
const (
	stageOptimize = "optimize"
	stageRunTests = "run_tests"
	stageMeasure  = "measure_emissions"
	stageOutput   = "output"
)

// State is the single mutable record threaded through one optimization
// run. It is owned exclusively by the engine; each stage mutates only its
// designated fields.
type State struct {
	// Immutable inputs.
	UnoptimizedCode string
	TestCode        string

	// Code under evaluation in the current attempt.
	CurrentCode string

	// BaselineEmissions is measured once before the first attempt and
	// never mutated afterwards.
	BaselineEmissions float64
	// CurrentEmissions is set only after validation passes.
	CurrentEmissions float64

	// Best validated candidate so far. BestEmissions is seeded with the
	// baseline so improvement always means beating the best known value;
	// BestCode stays empty until a candidate actually passes validation,
	// so the output never contains unvalidated code.
	BestCode      string
	BestEmissions float64

	// Feedback is append-only across the whole run: exactly one entry per
	// failed attempt, never cleared, handed to the oracle on every
	// transformation request.
	Feedback []string

	Attempt     int
	MaxAttempts int

	// Transient per-attempt results, overwritten each attempt.
	TestResult     sandbox.Outcome
	TestPassed     bool
	CarbonImproved bool
}

func newState(unoptimized, testCode string, maxAttempts int) *State {
	return &State{
		UnoptimizedCode: unoptimized,
		TestCode:        testCode,
		MaxAttempts:     maxAttempts,
	}
}

// FinalCode is what the output stage emits: the best validated candidate,
// or the original source exactly when no attempt ever validated.
func (s *State) FinalCode() string {
	if s.BestCode != "" {
		return s.BestCode
	}
	return s.UnoptimizedCode
}

// Improved reports whether a validated candidate beat the baseline.
func (s *State) Improved() bool {
	return s.BestCode != "" && s.BestEmissions < s.BaselineEmissions
}
