package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

var (
	ErrWorkerCmdRequired = errors.New("worker command is required")
	ErrLimitOrder        = errors.New("soft limit must be below hard limit")
)

type Config struct {
	WorkerCmd []string

	PoolSize        int
	MemorySoftLimit uint64
	MemoryHardLimit uint64
	SpawnRetryLimit int

	DrainGrace       time.Duration
	TerminationGrace time.Duration
	ReadyTimeout     time.Duration
	SweepInterval    time.Duration

	SampleFailurePolicy string
	SampleFailureLimit  int

	RestartSchedule  string
	RestartTZ        string
	RestartJitterMax time.Duration
	MinWorkerAge     time.Duration

	LogLevel       string
	LogFormat      string
	HTTPPort       string
	MetricsPort    string
	PingerInterval time.Duration
}

// Load reads configuration from the environment, applying defaults and
// validating minimums. The result is immutable for the process lifetime.
func Load() (*Config, error) {
	cfg := &Config{
		RestartSchedule:     os.Getenv(envKeyRestartSchedule),
		RestartTZ:           os.Getenv(envKeyRestartTZ),
		SampleFailurePolicy: getEnvOrDefault(envKeySampleFailurePolicy, envDefaultSampleFailurePolicy),
		LogLevel:            getEnvOrDefault(envKeyLogLevel, "info"),
		LogFormat:           getEnvOrDefault(envKeyLogFormat, "json"),
		HTTPPort:            getEnvOrDefault(envKeyHTTPPort, "8080"),
		MetricsPort:         getEnvOrDefault(envKeyMetricsPort, "9090"),
	}

	cfg.WorkerCmd = strings.Fields(os.Getenv(envKeyWorkerCmd))
	if len(cfg.WorkerCmd) == 0 {
		return nil, fmt.Errorf("%s: %w", envKeyWorkerCmd, ErrWorkerCmdRequired)
	}

	var err error

	cfg.PoolSize, err = getEnvInt(envKeyPoolSize, envDefaultPoolSize, envMinPoolSize)
	if err != nil {
		return nil, err
	}

	cfg.MemorySoftLimit, err = getEnvBytes(envKeyMemorySoftLimit)
	if err != nil {
		return nil, err
	}

	cfg.MemoryHardLimit, err = getEnvBytes(envKeyMemoryHardLimit)
	if err != nil {
		return nil, err
	}

	if cfg.MemorySoftLimit >= cfg.MemoryHardLimit {
		return nil, fmt.Errorf("%w: soft=%d hard=%d",
			ErrLimitOrder, cfg.MemorySoftLimit, cfg.MemoryHardLimit)
	}

	cfg.SpawnRetryLimit, err = getEnvInt(envKeySpawnRetryLimit, envDefaultSpawnRetryLimit, 1)
	if err != nil {
		return nil, err
	}

	cfg.SampleFailureLimit, err = getEnvInt(envKeySampleFailureLimit, envDefaultSampleFailureLimit, 1)
	if err != nil {
		return nil, err
	}

	switch cfg.SampleFailurePolicy {
	case "ignore", "recycle":
	default:
		return nil, fmt.Errorf("parse %s: unknown policy %q", envKeySampleFailurePolicy, cfg.SampleFailurePolicy)
	}

	cfg.DrainGrace, err = getEnvDuration(envKeyDrainGrace, envDefaultDrainGrace, envMinDrainGrace)
	if err != nil {
		return nil, err
	}

	cfg.TerminationGrace, err = getEnvDuration(envKeyTerminationGrace, envDefaultTerminationGrace, envMinTerminationGrace)
	if err != nil {
		return nil, err
	}

	cfg.ReadyTimeout, err = getEnvDuration(envKeyReadyTimeout, envDefaultReadyTimeout, envMinReadyTimeout)
	if err != nil {
		return nil, err
	}

	cfg.SweepInterval, err = getEnvDuration(envKeySweepInterval, envDefaultSweepInterval, envMinSweepInterval)
	if err != nil {
		return nil, err
	}

	cfg.RestartJitterMax, err = getEnvDuration(envKeyRestartJitterMax, envDefaultRestartJitterMax, envMinRestartJitterMax)
	if err != nil {
		return nil, err
	}

	cfg.MinWorkerAge, err = getEnvDuration(envKeyMinWorkerAge, 0, envMinMinWorkerAge)
	if err != nil {
		return nil, err
	}

	cfg.PingerInterval, err = getEnvDuration(envKeyPingerInterval, envDefaultPingerInterval, envMinPingerInterval)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	return value
}

func getEnvInt(key string, defaultValue, minValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}

	if value < minValue {
		return 0, fmt.Errorf("parse %s: %d is below minimum %d", key, value, minValue)
	}

	return value, nil
}

// getEnvBytes reads a required byte-size value (humanize syntax, e.g. 512MiB).
func getEnvBytes(key string) (uint64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, fmt.Errorf("parse %s: value is required", key)
	}

	value, err := humanize.ParseBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}

	if value == 0 {
		return 0, fmt.Errorf("parse %s: must be positive", key)
	}

	return value, nil
}

// getEnvDuration reads a duration value with explicit units. Zero defaults
// are allowed (feature disabled); non-zero values must meet the minimum.
func getEnvDuration(key string, defaultValue, minValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}

	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}

	if value != 0 && value < minValue {
		return 0, fmt.Errorf("parse %s: %s is below minimum %s", key, value, minValue)
	}

	return value, nil
}
