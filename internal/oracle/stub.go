package oracle

import "context"

// StubOracle is the no-network backend: it returns the source unchanged
// and a test that always passes. Useful for exercising the full pipeline
// wiring without credentials.
type StubOracle struct{}

func (StubOracle) Transform(_ context.Context, sourceCode, _ string, _ []string) (string, error) {
	return sourceCode, nil
}

func (StubOracle) GenerateTests(_ context.Context, _, rawTests string) (string, error) {
	if rawTests != "" {
		return rawTests, nil
	}
	return "func test_stub() {}", nil
}
