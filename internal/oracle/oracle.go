// Package oracle is the transformation service boundary: it asks an LLM to
// rewrite a function for lower emissions, feeding back the reasons earlier
// attempts failed.
package oracle

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"carbon-factory/internal/config"
)

// Oracle rewrites source code given accumulated failure feedback, and can
// produce a test module for a function when none was supplied.
type Oracle interface {
	Transform(ctx context.Context, sourceCode, testCode string, feedback []string) (string, error)
	GenerateTests(ctx context.Context, sourceCode, rawTests string) (string, error)
}

// TransformationError means the oracle was unreachable or returned
// unusable content even after its internal retries. The controller treats
// it as fatal but still emits the best result accumulated so far.
type TransformationError struct {
	Err error
}

func (e *TransformationError) Error() string {
	return fmt.Sprintf("transformation: %v", e.Err)
}

func (e *TransformationError) Unwrap() error { return e.Err }

// Resolve picks the oracle backend from config. The stub backend exists
// for wiring tests and dry runs, mirroring how a real run is driven.
func Resolve(cfg config.Config, logger *zap.Logger) (Oracle, error) {
	switch strings.TrimSpace(cfg.Backend) {
	case "", "openai":
		return NewOpenAI(cfg, logger)
	case "stub":
		return StubOracle{}, nil
	default:
		return nil, fmt.Errorf("unknown oracle backend: %s", cfg.Backend)
	}
}
