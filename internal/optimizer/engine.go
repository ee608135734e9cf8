package optimizer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"carbon-factory/internal/carbon"
	"carbon-factory/internal/config"
	"carbon-factory/internal/oracle"
	"carbon-factory/internal/sandbox"
)

// Measurer runs a piece of code in isolation and reports its footprint.
type Measurer interface {
	Measure(ctx context.Context, code string) (carbon.Result, error)
}

// Validator runs a candidate against its tests.
type Validator interface {
	Run(ctx context.Context, candidate, testCode string) sandbox.Outcome
}

// Engine drives the measure-transform-validate loop for one function at a
// time. RunDir, when set, receives the audit trail: events.jsonl plus a
// per-function directory with per-attempt candidates and a final
// result.json.
type Engine struct {
	Oracle   oracle.Oracle
	Measurer Measurer
	Sandbox  Validator
	Config   config.Config
	Logger   *zap.Logger
	RunDir   string

	// Contextualize, when set, expands a bare candidate into the full
	// compilation context it must be validated and measured in. Used by
	// the file pipeline so tests can reach the file's other declarations.
	// The candidate must stay the first function of the expanded source.
	Contextualize func(candidate string) string
}

// Result is the per-function summary persisted as result.json.
type Result struct {
	SchemaVersion     int      `json:"schema_version"`
	Function          string   `json:"function"`
	BaselineEmissions float64  `json:"baseline_emissions"`
	BestEmissions     float64  `json:"best_emissions"`
	Attempts          int      `json:"attempts"`
	Improved          bool     `json:"improved"`
	Feedback          []string `json:"feedback"`
	OptimizedCode     string   `json:"optimized_code"`
}

// Optimize runs the full loop for one function. The returned state is
// valid even on error: FinalCode always yields something safe to emit.
// A baseline measurement failure is fatal because without a baseline no
// candidate can ever be judged an improvement.
func (e *Engine) Optimize(ctx context.Context, name, unoptimized, testCode string) (*State, error) {
	st := newState(unoptimized, testCode, e.Config.MaxAttempts)

	funcDir := ""
	if e.RunDir != "" {
		funcDir = filepath.Join(e.RunDir, sanitizeName(name))
		if err := os.MkdirAll(funcDir, 0o755); err != nil {
			return st, err
		}
	}
	e.event(map[string]any{"type": "FunctionStarted", "function": name})

	base, err := e.measure(ctx, unoptimized)
	if err != nil {
		e.event(map[string]any{"type": "BaselineFailed", "function": name, "error": err.Error()})
		e.finish(st, funcDir, name)
		return st, fmt.Errorf("baseline measurement failed: %w", err)
	}
	st.BaselineEmissions = base.Emissions
	st.BestEmissions = base.Emissions
	st.CurrentEmissions = base.Emissions
	e.event(map[string]any{"type": "BaselineMeasured", "function": name, "kg_co2eq": base.Emissions, "energy_joules": base.EnergyJoules})
	e.Logger.Info("baseline measured", zap.String("function", name), zap.Float64("kg_co2eq", base.Emissions))

	stage := stageOptimize
	for {
		switch stage {
		case stageOptimize:
			st.Attempt++
			st.TestPassed = false
			st.CarbonImproved = false
			e.event(map[string]any{"type": "AttemptStarted", "function": name, "attempt": st.Attempt})
			code, err := e.Oracle.Transform(ctx, st.UnoptimizedCode, st.TestCode, st.Feedback)
			if err != nil {
				e.event(map[string]any{"type": "TransformFailed", "function": name, "attempt": st.Attempt, "error": err.Error()})
				e.finish(st, funcDir, name)
				return st, fmt.Errorf("transform: %w", err)
			}
			st.CurrentCode = code
			e.writeAttempt(funcDir, st.Attempt, code)
			stage = stageRunTests

		case stageRunTests:
			out := e.Sandbox.Run(ctx, e.contextualized(st.CurrentCode), st.TestCode)
			st.TestResult = out
			st.TestPassed = out.Passed
			if out.Passed {
				e.event(map[string]any{"type": "TestsPassed", "function": name, "attempt": st.Attempt, "ran": out.Ran})
			} else {
				st.Feedback = append(st.Feedback, fmt.Sprintf("Attempt %d: test failure: %s", st.Attempt, out.Message))
				e.event(map[string]any{"type": "TestsFailed", "function": name, "attempt": st.Attempt, "message": out.Message})
				e.Logger.Debug("tests failed", zap.String("function", name), zap.Int("attempt", st.Attempt), zap.String("message", out.Message))
			}
			e.writeOutcome(funcDir, st, false)
			stage = routeAfterTests(st)

		case stageMeasure:
			res, err := e.measure(ctx, st.CurrentCode)
			measured := err == nil
			if err != nil {
				st.Feedback = append(st.Feedback, fmt.Sprintf("Attempt %d: measurement error: %v", st.Attempt, err))
				e.event(map[string]any{"type": "MeasurementFailed", "function": name, "attempt": st.Attempt, "error": err.Error()})
			} else {
				st.CurrentEmissions = res.Emissions
				if res.Emissions < st.BestEmissions {
					st.CarbonImproved = true
					st.BestCode = st.CurrentCode
					st.BestEmissions = res.Emissions
					e.Logger.Info("candidate improved",
						zap.String("function", name),
						zap.Int("attempt", st.Attempt),
						zap.Float64("kg_co2eq", res.Emissions),
						zap.Float64("baseline_kg_co2eq", st.BaselineEmissions))
				} else {
					st.Feedback = append(st.Feedback, fmt.Sprintf(
						"Attempt %d: no improvement: %.6g >= %.6g kg CO2eq. Try a different algorithmic approach.",
						st.Attempt, res.Emissions, st.BestEmissions))
				}
				e.event(map[string]any{"type": "EmissionsMeasured", "function": name, "attempt": st.Attempt, "kg_co2eq": res.Emissions, "improved": st.CarbonImproved})
			}
			e.writeOutcome(funcDir, st, measured)
			stage = routeAfterMeasure(st, e.Config.ExploreAfterImprovement)

		case stageOutput:
			e.finish(st, funcDir, name)
			return st, nil
		}
	}
}

func (e *Engine) measure(ctx context.Context, code string) (carbon.Result, error) {
	return e.Measurer.Measure(ctx, e.contextualized(code))
}

func (e *Engine) contextualized(code string) string {
	if e.Contextualize == nil {
		return code
	}
	return e.Contextualize(code)
}

func (e *Engine) finish(st *State, funcDir, name string) {
	res := Result{
		SchemaVersion:     1,
		Function:          name,
		BaselineEmissions: st.BaselineEmissions,
		BestEmissions:     st.BestEmissions,
		Attempts:          st.Attempt,
		Improved:          st.Improved(),
		Feedback:          st.Feedback,
		OptimizedCode:     st.FinalCode(),
	}
	if funcDir != "" {
		if err := writeJSON(filepath.Join(funcDir, "result.json"), res); err != nil {
			e.Logger.Warn("writing result.json failed", zap.Error(err))
		}
	}
	e.event(map[string]any{"type": "FunctionCompleted", "function": name, "attempts": st.Attempt, "improved": st.Improved(), "best_kg_co2eq": st.BestEmissions})
	if st.Improved() {
		e.Logger.Info("optimization succeeded",
			zap.String("function", name),
			zap.Int("attempts", st.Attempt),
			zap.Float64("baseline_kg_co2eq", st.BaselineEmissions),
			zap.Float64("best_kg_co2eq", st.BestEmissions))
	} else {
		e.Logger.Info("keeping original code", zap.String("function", name), zap.Int("attempts", st.Attempt))
	}
}

func (e *Engine) writeAttempt(funcDir string, attempt int, code string) {
	if funcDir == "" {
		return
	}
	dir := filepath.Join(funcDir, fmt.Sprintf("attempt-%02d", attempt))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		e.Logger.Warn("creating attempt dir failed", zap.Error(err))
		return
	}
	if err := os.WriteFile(filepath.Join(dir, "candidate.go"), []byte(code+"\n"), 0o644); err != nil {
		e.Logger.Warn("writing candidate failed", zap.Error(err))
	}
}

// writeOutcome records the attempt's outcome. kg_co2eq is only present
// when this attempt was actually measured; an unmeasured attempt must not
// carry a stale reading.
func (e *Engine) writeOutcome(funcDir string, st *State, measured bool) {
	if funcDir == "" {
		return
	}
	out := map[string]any{
		"schema_version":  1,
		"attempt":         st.Attempt,
		"tests_passed":    st.TestPassed,
		"tests_ran":       st.TestResult.Ran,
		"test_message":    st.TestResult.Message,
		"carbon_improved": st.CarbonImproved,
	}
	if measured {
		out["kg_co2eq"] = st.CurrentEmissions
	}
	path := filepath.Join(funcDir, fmt.Sprintf("attempt-%02d", st.Attempt), "outcome.json")
	if err := writeJSON(path, out); err != nil {
		e.Logger.Warn("writing outcome.json failed", zap.Error(err))
	}
}

func (e *Engine) event(fields map[string]any) {
	if e.RunDir == "" {
		return
	}
	fields["schema_version"] = 1
	fields["at"] = time.Now().UTC().Format(time.RFC3339Nano)
	if err := appendEvent(e.RunDir, fields); err != nil {
		e.Logger.Warn("appending event failed", zap.Error(err))
	}
}

func appendEvent(runDir string, event map[string]any) error {
	f, err := os.OpenFile(filepath.Join(runDir, "events.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	b, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = f.Write(append(b, '\n'))
	return err
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
