package carbon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// MeasurementError covers every way a measurement can fail without the
// candidate being wrong as code: subprocess crash, timeout, unparseable
// output. The controller retries these; they are never conflated with a
// "no improvement" outcome.
type MeasurementError struct {
	Reason string
	Err    error
}

func (e *MeasurementError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("measurement: %s: %v", e.Reason, e.Err)
	}
	return "measurement: " + e.Reason
}

func (e *MeasurementError) Unwrap() error { return e.Err }

// Measurer measures the emissions of candidate code in a separate
// process. The tracker keeps process-global counter state, so every
// measurement (baseline included) spawns its own fresh exec-driver
// process; nothing is ever re-measured in-process.
type Measurer struct {
	Iterations     int
	Timeout        time.Duration
	Intensity      float64
	ReferenceWatts float64
	Logger         *zap.Logger

	// ExecPath overrides the runner executable; empty means the current
	// binary. Tests point it at a stand-in.
	ExecPath string
}

// Measure synthesizes a driver for the code, materializes it into a fresh
// temp file, runs it in an isolated process with a timeout, and parses the
// final JSON line of its stdout. The temp file is removed on every path.
func (m *Measurer) Measure(ctx context.Context, code string) (Result, error) {
	driver, err := BuildDriver(code, m.Iterations)
	if err != nil {
		return Result{}, err
	}

	tmp, err := os.CreateTemp("", "carbon-driver-*.go")
	if err != nil {
		return Result{}, &MeasurementError{Reason: "create driver file", Err: err}
	}
	path := tmp.Name()
	defer os.Remove(path)
	if _, err := tmp.WriteString(driver); err != nil {
		tmp.Close()
		return Result{}, &MeasurementError{Reason: "write driver file", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return Result{}, &MeasurementError{Reason: "close driver file", Err: err}
	}

	exe := m.ExecPath
	if exe == "" {
		exe, err = os.Executable()
		if err != nil {
			return Result{}, &MeasurementError{Reason: "resolve runner executable", Err: err}
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, exe, "exec-driver",
		"--intensity", fmt.Sprintf("%g", m.Intensity),
		"--reference-watts", fmt.Sprintf("%g", m.ReferenceWatts),
		path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	if m.Logger != nil {
		m.Logger.Debug("driver process finished",
			zap.Duration("elapsed", time.Since(start)),
			zap.Bool("ok", runErr == nil))
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return Result{}, &MeasurementError{Reason: fmt.Sprintf("driver timed out after %s", m.Timeout)}
	}
	if runErr != nil {
		return Result{}, &MeasurementError{Reason: "driver process failed: " + tail(stderr.String(), 1000), Err: runErr}
	}

	res, err := parseResult(stdout.String())
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// parseResult finds the last JSON line on stdout; the tracked code may
// have printed other things before it.
func parseResult(out string) (Result, error) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var res Result
		if err := json.Unmarshal([]byte(line), &res); err != nil {
			return Result{}, &MeasurementError{Reason: "unparseable driver output", Err: err}
		}
		if res.Emissions < 0 || math.IsNaN(res.Emissions) || math.IsInf(res.Emissions, 0) {
			return Result{}, &MeasurementError{Reason: fmt.Sprintf("invalid emissions value: %v", res.Emissions)}
		}
		return res, nil
	}
	return Result{}, &MeasurementError{Reason: "no JSON line in driver output: " + tail(out, 500)}
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
