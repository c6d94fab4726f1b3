package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	envPollInterval         = "MS_POLL_INTERVAL"
	envHTTPTimeout          = "MS_HTTP_TIMEOUT"
	envAPIURL               = "MS_API_URL"
	envMetricsURL           = "MS_METRICS_URL"
	envMetricsIndex         = "MS_METRICS_INDEX"
	envInventoryFile        = "MS_INVENTORY_FILE"
	envTargetsFile          = "MS_TARGETS_FILE"
	envSlackWebhookURL      = "MS_SLACK_WEBHOOK_URL"
	envWebhookURL           = "MS_WEBHOOK_URL"
	envWebhookTemplate      = "MS_WEBHOOK_TEMPLATE"
	envLogLevel             = "MS_LOG_LEVEL"
	envHealthPort           = "MS_HEALTH_PORT"
	envMetricsPort          = "MS_METRICS_PORT"
	envDryRun               = "MS_DRY_RUN"
	envRunOnce              = "MS_RUN_ONCE"
	envTraceStdout          = "MS_TRACE_STDOUT"
	envInventoryConcurrency = "MS_INVENTORY_CONCURRENCY"
)

const (
	defaultPollInterval         = 30 * time.Second
	defaultHTTPTimeout          = 10 * time.Second
	defaultMetricsIndex         = "vamp-vga-*"
	defaultLogLevel             = "info"
	defaultHealthPort           = 8080
	defaultMetricsPort          = 9090
	defaultInventoryConcurrency = 8
	defaultTargetName           = "default"
)

// Config describes runtime configuration loaded from the environment.
type Config struct {
	PollInterval         time.Duration
	HTTPTimeout          time.Duration
	APIURL               string
	MetricsURL           string
	MetricsIndex         string
	InventoryFile        string
	TargetsFile          string
	SlackWebhookURL      string
	WebhookURL           string
	WebhookTemplate      string
	LogLevel             string
	HealthPort           int
	MetricsPort          int
	DryRun               bool
	RunOnce              bool
	TraceStdout          bool
	InventoryConcurrency int
}

// Load reads configuration from environment variables and a local .env file if present.
// Existing environment variables take precedence over values in .env.
func Load() (Config, error) {
	if err := loadDotEnvIfPresent(".env"); err != nil {
		return Config{}, err
	}

	cfg := Config{
		PollInterval:         defaultPollInterval,
		HTTPTimeout:          defaultHTTPTimeout,
		MetricsIndex:         defaultMetricsIndex,
		LogLevel:             defaultLogLevel,
		HealthPort:           defaultHealthPort,
		MetricsPort:          defaultMetricsPort,
		InventoryConcurrency: defaultInventoryConcurrency,
	}

	var err error
	if cfg.PollInterval, err = positiveDuration(envPollInterval, cfg.PollInterval); err != nil {
		return Config{}, err
	}
	if cfg.HTTPTimeout, err = positiveDuration(envHTTPTimeout, cfg.HTTPTimeout); err != nil {
		return Config{}, err
	}

	stringVars := []struct {
		key string
		dst *string
	}{
		{envAPIURL, &cfg.APIURL},
		{envMetricsURL, &cfg.MetricsURL},
		{envMetricsIndex, &cfg.MetricsIndex},
		{envInventoryFile, &cfg.InventoryFile},
		{envTargetsFile, &cfg.TargetsFile},
		{envSlackWebhookURL, &cfg.SlackWebhookURL},
		{envWebhookURL, &cfg.WebhookURL},
		{envWebhookTemplate, &cfg.WebhookTemplate},
		{envLogLevel, &cfg.LogLevel},
	}
	for _, v := range stringVars {
		if value, ok := lookupTrimmed(v.key); ok && value != "" {
			*v.dst = value
		}
	}

	if cfg.HealthPort, err = port(envHealthPort, cfg.HealthPort); err != nil {
		return Config{}, err
	}
	if cfg.MetricsPort, err = port(envMetricsPort, cfg.MetricsPort); err != nil {
		return Config{}, err
	}

	boolVars := []struct {
		key string
		dst *bool
	}{
		{envDryRun, &cfg.DryRun},
		{envRunOnce, &cfg.RunOnce},
		{envTraceStdout, &cfg.TraceStdout},
	}
	for _, v := range boolVars {
		value, ok := lookupTrimmed(v.key)
		if !ok || value == "" {
			continue
		}
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", v.key, err)
		}
		*v.dst = parsed
	}

	if value, ok := lookupTrimmed(envInventoryConcurrency); ok && value != "" {
		n, err := strconv.Atoi(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envInventoryConcurrency, err)
		}
		if n <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than zero", envInventoryConcurrency)
		}
		cfg.InventoryConcurrency = n
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.TargetsFile == "" {
		if c.MetricsURL == "" {
			return errors.New("MS_METRICS_URL is required")
		}
		if c.APIURL == "" && c.InventoryFile == "" {
			return errors.New("MS_API_URL or MS_INVENTORY_FILE is required")
		}
	}

	urls := []struct {
		value string
		name  string
	}{
		{c.APIURL, envAPIURL},
		{c.MetricsURL, envMetricsURL},
		{c.SlackWebhookURL, envSlackWebhookURL},
		{c.WebhookURL, envWebhookURL},
	}
	for _, u := range urls {
		if u.value == "" {
			continue
		}
		if err := validateURL(u.value, u.name); err != nil {
			return err
		}
	}
	return nil
}

// DefaultTarget describes the single target configured through MS_ variables.
func (c Config) DefaultTarget() Target {
	return Target{
		Name:          defaultTargetName,
		APIURL:        c.APIURL,
		MetricsURL:    c.MetricsURL,
		MetricsIndex:  c.MetricsIndex,
		InventoryFile: c.InventoryFile,
		Timeout:       c.HTTPTimeout,
	}
}

// Targets returns the targets from MS_TARGETS_FILE, or the default target when
// no file is configured. Fields a target leaves empty inherit from c.
func (c Config) Targets() ([]Target, error) {
	if c.TargetsFile == "" {
		return []Target{c.DefaultTarget()}, nil
	}

	targets, err := LoadTargetsFile(c.TargetsFile)
	if err != nil {
		return nil, err
	}
	for i := range targets {
		if targets[i].MetricsIndex == "" {
			targets[i].MetricsIndex = c.MetricsIndex
		}
		if targets[i].Timeout == 0 {
			targets[i].Timeout = c.HTTPTimeout
		}
	}
	return targets, nil
}

func positiveDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := lookupTrimmed(key)
	if !ok || value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero", key)
	}
	return parsed, nil
}

// port parses a listen port. Zero disables the listener.
func port(key string, fallback int) (int, error) {
	value, ok := lookupTrimmed(key)
	if !ok || value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if parsed < 0 || parsed > 65535 {
		return 0, fmt.Errorf("%s must be between 0 and 65535", key)
	}
	return parsed, nil
}

func lookupTrimmed(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(value), true
}

func loadDotEnvIfPresent(path string) error {
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) && errors.Is(pathErr.Err, os.ErrNotExist) {
		return nil
	}

	return err
}

func validateURL(value, name string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid %s: must include scheme and host", name)
	}
	return nil
}
