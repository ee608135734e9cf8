package carbon

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// Result is the single machine-readable line a driver run emits on stdout.
type Result struct {
	Emissions    float64 `json:"emissions"` // kg CO2eq
	EnergyJoules float64 `json:"energy_joules"`
}

// RunDriver executes a driver program in the current process: it loads the
// program into a fresh interpreter, brackets exactly the workload call
// with the tracker, and writes the Result as one JSON line. It is only
// ever called from the exec-driver subcommand, i.e. inside the short-lived
// process spawned per measurement; the parent never runs it.
func RunDriver(path string, tracker Tracker, intensity float64, out io.Writer) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read driver: %w", err)
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return fmt.Errorf("load stdlib symbols: %w", err)
	}
	if _, err := i.Eval(string(src)); err != nil {
		return fmt.Errorf("driver evaluation failed: %w", err)
	}

	if err := tracker.Start(); err != nil {
		return fmt.Errorf("start tracker: %w", err)
	}
	evalErr := evalWorkload(i)
	joules, stopErr := tracker.Stop()
	if evalErr != nil {
		return fmt.Errorf("workload failed: %w", evalErr)
	}
	if stopErr != nil {
		return fmt.Errorf("stop tracker: %w", stopErr)
	}

	res := Result{
		Emissions:    EmissionsFromJoules(joules, intensity),
		EnergyJoules: joules,
	}
	return json.NewEncoder(out).Encode(res)
}

// evalWorkload invokes the driver workload, converting interpreter panics
// into plain errors so the tracker is still stopped and the process exits
// with a diagnostic instead of a stack trace.
func evalWorkload(i *interp.Interpreter) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	_, err = i.Eval("main." + workloadFunc + "()")
	return err
}
