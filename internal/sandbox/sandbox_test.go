package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	// Run abandons its worker goroutine on timeout (the interpreter cannot
	// be interrupted mid-execution), so that one goroutine is expected to
	// outlive the timeout test.
	goleak.VerifyTestMain(m,
		goleak.IgnoreAnyFunction("carbon-factory/internal/sandbox.(*Sandbox).Run.func1"))
}

func newSandbox() *Sandbox {
	return &Sandbox{Timeout: 10 * time.Second}
}

func TestRunPasses(t *testing.T) {
	candidate := "func add(a, b int) int {\n\treturn a + b\n}"
	tests := "func test_add() {\n\tif add(1, 1) != 2 {\n\t\tpanic(\"add(1, 1) != 2\")\n\t}\n}\n\nfunc test_add_zero() {\n\tif add(0, 5) != 5 {\n\t\tpanic(\"add(0, 5) != 5\")\n\t}\n}"

	out := newSandbox().Run(context.Background(), candidate, tests)
	require.True(t, out.Passed, out.Message)
	require.Equal(t, 2, out.Ran)
}

func TestRunBuggyCandidateFailsWithAssertionMessage(t *testing.T) {
	buggy := "func add(a, b int) int {\n\treturn a\n}"
	tests := "func test_add() {\n\tif add(1, 1) != 2 {\n\t\tpanic(\"add(1, 1) != 2\")\n\t}\n}"

	out := newSandbox().Run(context.Background(), buggy, tests)
	require.False(t, out.Passed)
	require.Contains(t, out.Message, "add(1, 1) != 2")
}

func TestRunErrorReturningTest(t *testing.T) {
	candidate := "func double(x int) int { return x * 2 }"
	tests := "import \"fmt\"\n\nfunc test_double() error {\n\tif double(2) != 5 {\n\t\treturn fmt.Errorf(\"double(2) = %d, want 5\", double(2))\n\t}\n\treturn nil\n}"

	out := newSandbox().Run(context.Background(), candidate, tests)
	require.False(t, out.Passed)
	require.Contains(t, out.Message, "double(2) = 4")
}

func TestRunZeroTestsIsFailure(t *testing.T) {
	out := newSandbox().Run(context.Background(), "func f() {}", "func helper() {}")
	require.False(t, out.Passed)
	require.Contains(t, out.Message, "no test_ functions found")
}

func TestRunSyntaxErrorIsFailureNotCrash(t *testing.T) {
	out := newSandbox().Run(context.Background(), "func f( {", "func test_f() {}")
	require.False(t, out.Passed)
	require.Contains(t, out.Message, "execution error")
}

func TestRunMissingSymbolIsFailure(t *testing.T) {
	out := newSandbox().Run(context.Background(), "func f() {}", "func test_g() {\n\tg()\n}")
	require.False(t, out.Passed)
}

func TestRunAggregatesAllFailures(t *testing.T) {
	candidate := "func id(x int) int { return x + 1 }"
	tests := "func test_one() {\n\tif id(1) != 1 {\n\t\tpanic(\"one\")\n\t}\n}\n\nfunc test_two() {\n\tif id(2) != 2 {\n\t\tpanic(\"two\")\n\t}\n}"

	out := newSandbox().Run(context.Background(), candidate, tests)
	require.False(t, out.Passed)
	require.Contains(t, out.Message, "test_one")
	require.Contains(t, out.Message, "test_two")
	require.Equal(t, 2, out.Ran)
}

func TestRunTimesOutOnStuckTest(t *testing.T) {
	sb := &Sandbox{Timeout: 100 * time.Millisecond}
	tests := "import \"time\"\n\nfunc test_stuck() {\n\ttime.Sleep(time.Hour)\n}"

	start := time.Now()
	out := sb.Run(context.Background(), "func f() {}", tests)
	require.Less(t, time.Since(start), 5*time.Second)
	require.False(t, out.Passed)
	require.Contains(t, out.Message, "test execution timed out")
}

func TestDiscoverTestsKeepsSourceOrder(t *testing.T) {
	combined := "package main\n\nfunc test_b() {}\n\nfunc test_a() {}\n\nfunc other() {}\n"
	names, err := discoverTests(combined)
	require.NoError(t, err)
	require.Equal(t, []string{"test_b", "test_a"}, names)
}
