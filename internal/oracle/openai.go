package oracle

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"carbon-factory/internal/config"
)

const transformSystemPrompt = "You are a Go performance optimizer focused on minimizing CPU cycles and " +
	"memory usage to reduce carbon emissions. Return ONLY the raw Go function code with no explanation, " +
	"no markdown, no package clause, and no imports unless strictly required."

const testSystemPrompt = "You are a Go test engineer. Return ONLY raw Go test functions with no package " +
	"clause, no module-level code, and no markdown. Each function name must start with 'test_' and take " +
	"no arguments; signal failure by panicking with a descriptive message. The tests run in a namespace " +
	"that already contains the function under test."

// OpenAI is the chat-completion backed oracle. Requests are rate limited
// and retried once (configurable) before the error surfaces as fatal.
type OpenAI struct {
	client  *openai.Client
	model   string
	retries int
	timeout time.Duration
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewOpenAI(cfg config.Config, logger *zap.Logger) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	rpm := cfg.OracleRequestsPerMinute
	if rpm <= 0 {
		rpm = 20
	}
	return &OpenAI{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		retries: cfg.OracleRetries,
		timeout: time.Duration(cfg.OracleTimeoutSeconds) * time.Second,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
		logger:  logger,
	}, nil
}

func (o *OpenAI) Transform(ctx context.Context, sourceCode, testCode string, feedback []string) (string, error) {
	user := buildTransformPrompt(sourceCode, testCode, feedback)
	raw, err := o.complete(ctx, transformSystemPrompt, user)
	if err != nil {
		return "", err
	}
	code := StripFences(raw)
	if strings.TrimSpace(code) == "" {
		return "", &TransformationError{Err: fmt.Errorf("oracle returned empty code")}
	}
	return code, nil
}

func (o *OpenAI) GenerateTests(ctx context.Context, sourceCode, rawTests string) (string, error) {
	user := buildTestPrompt(sourceCode, rawTests)
	raw, err := o.complete(ctx, testSystemPrompt, user)
	if err != nil {
		return "", err
	}
	tests := StripFences(raw)
	if strings.TrimSpace(tests) == "" {
		return "", &TransformationError{Err: fmt.Errorf("oracle returned empty tests")}
	}
	return tests, nil
}

// buildTransformPrompt mirrors the request shape the loop depends on: all
// accumulated feedback precedes the code so the oracle can self-correct.
func buildTransformPrompt(sourceCode, testCode string, feedback []string) string {
	if len(feedback) > 0 {
		var b strings.Builder
		b.WriteString("Previous attempts failed for these reasons:\n")
		for _, f := range feedback {
			b.WriteString("- " + f + "\n")
		}
		fmt.Fprintf(&b, "\nTry a different optimization approach for:\n\n%s\n\nIt must pass these tests:\n%s", sourceCode, testCode)
		return b.String()
	}
	return fmt.Sprintf("Optimize this Go function to be more carbon-efficient "+
		"(fewer CPU operations, less memory):\n\n%s\n\nIt must pass these tests:\n%s", sourceCode, testCode)
}

func buildTestPrompt(sourceCode, rawTests string) string {
	if strings.TrimSpace(rawTests) != "" {
		return fmt.Sprintf("Here is a Go function:\n\n%s\n\nHere is an existing test file:\n\n%s\n\n"+
			"Extract all test_* functions that test this function. If none are found, generate a minimal "+
			"set of correctness tests for it.", sourceCode, rawTests)
	}
	return fmt.Sprintf("Here is a Go function:\n\n%s\n\nGenerate a minimal set of correctness tests for it.", sourceCode)
}

func (o *OpenAI) complete(ctx context.Context, system, user string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= o.retries; attempt++ {
		if err := o.limiter.Wait(ctx); err != nil {
			return "", &TransformationError{Err: err}
		}
		reqCtx := ctx
		cancel := func() {}
		if o.timeout > 0 {
			reqCtx, cancel = context.WithTimeout(ctx, o.timeout)
		}
		resp, err := o.client.CreateChatCompletion(reqCtx, openai.ChatCompletionRequest{
			Model: o.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: system},
				{Role: openai.ChatMessageRoleUser, Content: user},
			},
		})
		cancel()
		if err != nil {
			lastErr = err
			o.logger.Warn("oracle request failed", zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("oracle returned no choices")
			continue
		}
		return resp.Choices[0].Message.Content, nil
	}
	return "", &TransformationError{Err: lastErr}
}
