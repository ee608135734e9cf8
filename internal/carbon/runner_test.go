package carbon

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeDriver(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "driver.go")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestRunDriverEndToEnd(t *testing.T) {
	driver, err := BuildDriver("func f(a, b int) int { return a + b }", 500)
	require.NoError(t, err)

	var buf bytes.Buffer
	err = RunDriver(writeDriver(t, driver), &wallTracker{watts: 10}, 0.475, &buf)
	require.NoError(t, err)

	res, err := parseResult(buf.String())
	require.NoError(t, err)
	require.Greater(t, res.EnergyJoules, 0.0)
	require.GreaterOrEqual(t, res.Emissions, 0.0)
}

func TestRunDriverRejectsBrokenSource(t *testing.T) {
	var buf bytes.Buffer
	err := RunDriver(writeDriver(t, "package main\n\nfunc broken( {"), &wallTracker{watts: 10}, 0.475, &buf)
	require.Error(t, err)
}

func TestRunDriverSurfacesWorkloadPanic(t *testing.T) {
	driver := "package main\n\nfunc carbonWorkload() {\n\tpanic(\"boom\")\n}\n"
	var buf bytes.Buffer
	err := RunDriver(writeDriver(t, driver), &wallTracker{watts: 10}, 0.475, &buf)
	require.Error(t, err)
	require.Contains(t, err.Error(), "workload failed")
}

func TestRunDriverMissingFile(t *testing.T) {
	var buf bytes.Buffer
	err := RunDriver(filepath.Join(t.TempDir(), "nope.go"), &wallTracker{watts: 10}, 0.475, &buf)
	require.Error(t, err)
}
