package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the single configuration record for a run. It is built once at
// process start (defaults, then optional YAML file, then environment) and
// threaded through the controller; no package keeps ambient state.
type Config struct {
	// Oracle settings.
	Backend                 string `yaml:"backend"`        // "openai" or "stub"
	Model                   string `yaml:"model"`          // chat model name
	APIKey                  string `yaml:"-"`              // from OPENAI_API_KEY only, never from file
	BaseURL                 string `yaml:"base_url"`       // override for OpenAI-compatible endpoints
	OracleRetries           int    `yaml:"oracle_retries"` // internal retries before a transform error is fatal
	OracleTimeoutSeconds    int    `yaml:"oracle_timeout_seconds"`
	OracleRequestsPerMinute int    `yaml:"oracle_requests_per_minute"`

	// Loop settings.
	MaxAttempts             int  `yaml:"max_attempts"`
	ExploreAfterImprovement bool `yaml:"explore_after_improvement"`

	// Measurement settings.
	Iterations            int     `yaml:"iterations"`
	MeasureTimeoutSeconds int     `yaml:"measure_timeout_seconds"`
	TestTimeoutSeconds    int     `yaml:"test_timeout_seconds"`
	CarbonIntensity       float64 `yaml:"carbon_intensity"` // kg CO2eq per kWh
	ReferenceWatts        float64 `yaml:"reference_watts"`  // fallback draw when RAPL is unavailable

	// Logging.
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func Default() Config {
	return Config{
		Backend:                 "openai",
		Model:                   "gpt-4o-mini",
		OracleRetries:           1,
		OracleTimeoutSeconds:    120,
		OracleRequestsPerMinute: 20,
		MaxAttempts:             5,
		Iterations:              1_000_000,
		MeasureTimeoutSeconds:   120,
		TestTimeoutSeconds:      30,
		CarbonIntensity:         0.475,
		ReferenceWatts:          65,
		LogLevel:                "info",
		LogFormat:               "text",
	}
}

// Load builds a Config from defaults, an optional YAML file, and the
// environment, in that order of precedence.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	c.Model = pickString(os.Getenv("OPENAI_MODEL"), c.Model)
	c.BaseURL = pickString(os.Getenv("OPENAI_BASE_URL"), c.BaseURL)
	c.Backend = pickString(os.Getenv("CARBON_FACTORY_BACKEND"), c.Backend)
	c.LogLevel = pickString(os.Getenv("FACTORY_LOG_LEVEL"), c.LogLevel)
	c.LogFormat = pickString(os.Getenv("FACTORY_LOG_FORMAT"), c.LogFormat)
	c.MaxAttempts = pickInt(parseIntEnv("CARBON_FACTORY_MAX_ATTEMPTS"), c.MaxAttempts)
	c.Iterations = pickInt(parseIntEnv("CARBON_FACTORY_ITERATIONS"), c.Iterations)
	c.MeasureTimeoutSeconds = pickInt(parseIntEnv("CARBON_FACTORY_MEASURE_TIMEOUT_SECONDS"), c.MeasureTimeoutSeconds)
	c.TestTimeoutSeconds = pickInt(parseIntEnv("CARBON_FACTORY_TEST_TIMEOUT_SECONDS"), c.TestTimeoutSeconds)
	if v := parseFloatEnv("CARBON_FACTORY_CARBON_INTENSITY"); v > 0 {
		c.CarbonIntensity = v
	}
	if parseBoolEnv("CARBON_FACTORY_EXPLORE") {
		c.ExploreAfterImprovement = true
	}
}

func (c *Config) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be >= 1, got %d", c.MaxAttempts)
	}
	if c.Iterations < 1 {
		return fmt.Errorf("iterations must be >= 1, got %d", c.Iterations)
	}
	if c.MeasureTimeoutSeconds < 1 {
		return fmt.Errorf("measure_timeout_seconds must be >= 1, got %d", c.MeasureTimeoutSeconds)
	}
	if c.CarbonIntensity <= 0 {
		return fmt.Errorf("carbon_intensity must be > 0, got %g", c.CarbonIntensity)
	}
	switch c.Backend {
	case "openai", "stub":
	default:
		return fmt.Errorf("unknown backend: %s", c.Backend)
	}
	return nil
}

func pickString(primary, def string) string {
	if strings.TrimSpace(primary) != "" {
		return strings.TrimSpace(primary)
	}
	return def
}

func pickInt(primary, def int) int {
	if primary > 0 {
		return primary
	}
	return def
}

func parseIntEnv(key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func parseFloatEnv(key string) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

func parseBoolEnv(key string) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes"
}
