package oracle

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carbon-factory/internal/config"
)

func TestStripFences(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"no fences", "func f() {}", "func f() {}"},
		{"plain fence", "```\nfunc f() {}\n```", "func f() {}"},
		{"go fence", "```go\nfunc f() {}\n```", "func f() {}"},
		{"leading whitespace", "\n\n```go\nfunc f() {}\n```\n", "func f() {}"},
		{"unclosed fence", "```go\nfunc f() {}", "func f() {}"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, StripFences(tc.in))
		})
	}
}

func TestBuildTransformPromptIncludesAllFeedback(t *testing.T) {
	feedback := []string{"Attempt 1: test failure: boom", "Attempt 2: no improvement: 2 >= 1"}
	prompt := buildTransformPrompt("func f() {}", "func test_f() {}", feedback)
	for _, f := range feedback {
		require.Contains(t, prompt, f)
	}
	require.Contains(t, prompt, "different optimization approach")
	require.Contains(t, prompt, "func test_f() {}")
}

func TestBuildTransformPromptFirstAttempt(t *testing.T) {
	prompt := buildTransformPrompt("func f() {}", "func test_f() {}", nil)
	require.NotContains(t, prompt, "Previous attempts")
	require.True(t, strings.HasPrefix(prompt, "Optimize this Go function"))
}

func TestBuildTestPromptVariants(t *testing.T) {
	withFile := buildTestPrompt("func f() {}", "func test_old() {}")
	require.Contains(t, withFile, "existing test file")
	without := buildTestPrompt("func f() {}", "")
	require.Contains(t, without, "Generate a minimal set")
}

func TestResolveBackends(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = "stub"
	o, err := Resolve(cfg, zap.NewNop())
	require.NoError(t, err)
	require.IsType(t, StubOracle{}, o)

	cfg.Backend = "bogus"
	_, err = Resolve(cfg, zap.NewNop())
	require.Error(t, err)

	cfg.Backend = "openai"
	cfg.APIKey = ""
	_, err = Resolve(cfg, zap.NewNop())
	require.Error(t, err, "openai backend requires an API key")
}

func TestStubOracle(t *testing.T) {
	stub := StubOracle{}
	out, err := stub.Transform(context.Background(), "func f() {}", "", nil)
	require.NoError(t, err)
	require.Equal(t, "func f() {}", out)

	tests, err := stub.GenerateTests(context.Background(), "func f() {}", "")
	require.NoError(t, err)
	require.Contains(t, tests, "func test_")
}
