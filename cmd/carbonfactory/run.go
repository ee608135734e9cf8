package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"carbon-factory/internal/carbon"
	"carbon-factory/internal/config"
	"carbon-factory/internal/logging"
	"carbon-factory/internal/optimizer"
	"carbon-factory/internal/oracle"
	"carbon-factory/internal/sandbox"
)

type runOptions struct {
	testsPath  string
	runsDir    string
	configPath string
	outputPath string
	backend    string
	explore    bool
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <input>",
		Short: "Optimize the functions of a Go file or JSON record for carbon efficiency",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOptimization(args[0], opts)
		},
	}
	cmd.Flags().StringVar(&opts.testsPath, "tests", "", "path to a file with test_ functions for the input")
	cmd.Flags().StringVar(&opts.runsDir, "runsdir", "runs", "directory receiving per-run artifacts")
	cmd.Flags().StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	cmd.Flags().StringVar(&opts.outputPath, "output", "", "output path (default <input>_optimized.go, or the record itself for JSON input)")
	cmd.Flags().StringVar(&opts.backend, "backend", "", "oracle backend: openai or stub")
	cmd.Flags().BoolVar(&opts.explore, "explore", false, "keep searching after the first improvement")
	return cmd
}

func runOptimization(input string, opts *runOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.backend != "" {
		cfg.Backend = opts.backend
	}
	if opts.explore {
		cfg.ExploreAfterImprovement = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	orc, err := oracle.Resolve(cfg, logger)
	if err != nil {
		return err
	}

	runID := time.Now().UTC().Format("20060102_150405") + "-" + uuid.NewString()[:8]
	runDir := filepath.Join(opts.runsDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}
	if err := writeManifest(runDir, runID, input, cfg); err != nil {
		return err
	}
	logger.Info("run started", zap.String("run_id", runID), zap.String("input", input), zap.String("backend", cfg.Backend))

	engine := &optimizer.Engine{
		Oracle: orc,
		Measurer: &carbon.Measurer{
			Iterations:     cfg.Iterations,
			Timeout:        time.Duration(cfg.MeasureTimeoutSeconds) * time.Second,
			Intensity:      cfg.CarbonIntensity,
			ReferenceWatts: cfg.ReferenceWatts,
			Logger:         logger,
		},
		Sandbox: &sandbox.Sandbox{Timeout: time.Duration(cfg.TestTimeoutSeconds) * time.Second},
		Config:  cfg,
		Logger:  logger,
		RunDir:  runDir,
	}

	rawTests := ""
	if opts.testsPath != "" {
		b, err := os.ReadFile(opts.testsPath)
		if err != nil {
			return fmt.Errorf("read tests: %w", err)
		}
		rawTests = string(b)
	}

	if strings.HasSuffix(input, ".json") {
		return runRecord(ctx, engine, input, rawTests, opts.outputPath, logger)
	}
	return runFile(ctx, engine, input, rawTests, opts.outputPath, logger)
}

// runFile optimizes every top-level function of a Go source file and
// writes the reassembled file next to the input. A fatal loop error still
// flushes whatever improvements were already found.
func runFile(ctx context.Context, engine *optimizer.Engine, input, rawTests, outputPath string, logger *zap.Logger) error {
	b, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	if outputPath == "" {
		ext := filepath.Ext(input)
		outputPath = strings.TrimSuffix(input, ext) + "_optimized" + ext
	}

	out, results, loopErr := engine.OptimizeFile(ctx, string(b), rawTests)
	if out != "" {
		if err := os.WriteFile(outputPath, []byte(out), 0o644); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}
	for _, r := range results {
		summarize(logger, r)
	}
	if loopErr != nil {
		return loopErr
	}
	logger.Info("run completed", zap.String("output", outputPath))
	fmt.Println(outputPath)
	return nil
}

// runRecord optimizes a single JSON record carrying "unoptimized_code" and
// optionally "test_code", writing "optimized_code" back into the record.
func runRecord(ctx context.Context, engine *optimizer.Engine, input, rawTests, outputPath string, logger *zap.Logger) error {
	b, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	var record map[string]any
	if err := json.Unmarshal(b, &record); err != nil {
		return fmt.Errorf("parse record: %w", err)
	}
	code, _ := record["unoptimized_code"].(string)
	if strings.TrimSpace(code) == "" {
		return fmt.Errorf("record has no unoptimized_code")
	}
	testCode, _ := record["test_code"].(string)
	if strings.TrimSpace(testCode) == "" {
		testCode = rawTests
	}
	if strings.TrimSpace(testCode) == "" {
		testCode, err = engine.Oracle.GenerateTests(ctx, code, "")
		if err != nil {
			return fmt.Errorf("generating tests: %w", err)
		}
	}

	name := "function"
	if n, _, err := carbon.Synthesize(code); err == nil {
		name = n
	}

	st, loopErr := engine.Optimize(ctx, name, code, testCode)
	record["optimized_code"] = st.FinalCode()
	out, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	if outputPath == "" {
		outputPath = input
	}
	if err := os.WriteFile(outputPath, append(out, '\n'), 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	summarize(logger, optimizer.FunctionResult{Name: name, State: st, Err: loopErr})
	if loopErr != nil {
		return loopErr
	}
	fmt.Println(outputPath)
	return nil
}

func summarize(logger *zap.Logger, r optimizer.FunctionResult) {
	if r.Err != nil {
		logger.Error("function aborted", zap.String("function", r.Name), zap.Error(r.Err))
		return
	}
	if r.State.Improved() {
		logger.Info("function improved",
			zap.String("function", r.Name),
			zap.Int("attempts", r.State.Attempt),
			zap.Float64("baseline_kg_co2eq", r.State.BaselineEmissions),
			zap.Float64("best_kg_co2eq", r.State.BestEmissions))
		return
	}
	logger.Info("function unchanged", zap.String("function", r.Name), zap.Int("attempts", r.State.Attempt))
}

func writeManifest(runDir, runID, input string, cfg config.Config) error {
	manifest := map[string]any{
		"schema_version": 1,
		"run_id":         runID,
		"input":          input,
		"backend":        cfg.Backend,
		"model":          cfg.Model,
		"max_attempts":   cfg.MaxAttempts,
		"iterations":     cfg.Iterations,
		"created_at":     time.Now().UTC().Format(time.RFC3339Nano),
	}
	b, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(runDir, "manifest.json"), append(b, '\n'), 0o644)
}
