package simdeg

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lccanon/simdeg/engine"
)

// EstimatorConfig controls the interval estimators held in every cell.
type EstimatorConfig struct {
	// Level is the confidence level of the reported error bounds.
	//
	// Default: 0.95
	Level float64 `yaml:"level"`

	// DisableRunGuard turns off the successive-identical-sample guard on
	// collusion cells. With the guard on, a run of identical samples that is
	// unlikely under the current estimate resets the cell, so a worker that
	// changes behavior is not locked into its old group.
	DisableRunGuard bool `yaml:"disableRunGuard"`
}

// AgreementConfig controls when agreeing groups merge.
type AgreementConfig struct {
	// MergeThreshold is the estimate a cross cell must exceed before its two
	// groups merge.
	//
	// Default: 0.99
	MergeThreshold float64 `yaml:"mergeThreshold"`

	// ErrorTolerance is the error a cross cell must fall below before its two
	// groups merge.
	//
	// Default: 1/3
	ErrorTolerance float64 `yaml:"errorTolerance"`
}

// CollusionConfig controls when colluding groups merge and how cells are
// recalibrated when the reference group changes.
type CollusionConfig struct {
	// MergeThreshold is the estimate a cross cell must exceed before its two
	// groups merge.
	//
	// Default: 0.99
	MergeThreshold float64 `yaml:"mergeThreshold"`

	// ErrorTolerance is the error a cross cell must fall below before its two
	// groups merge.
	//
	// Default: 1/3
	ErrorTolerance float64 `yaml:"errorTolerance"`

	// DisableReadaptation keeps stale cells as they are when the largest group
	// changes identity.
	DisableReadaptation bool `yaml:"disableReadaptation"`
}

// FeedConfig configures the JetStream observation feed.
type FeedConfig struct {
	// Stream is the JetStream stream holding observations. It is created on
	// first use when missing.
	Stream string `yaml:"stream"`

	// SubjectPrefix is the first token of observation subjects. Observations
	// are published to <SubjectPrefix>.<pool>.<kind>.
	SubjectPrefix string `yaml:"subjectPrefix"`

	// DurableName is the durable pull consumer name.
	DurableName string `yaml:"durableName"`

	// BatchSize is the number of messages pulled per request.
	BatchSize int `yaml:"batchSize"`

	// FetchTimeout bounds one pull request.
	FetchTimeout time.Duration `yaml:"fetchTimeout"`

	// AckWait is how long the server waits for an ack before redelivering.
	AckWait time.Duration `yaml:"ackWait"`

	// MaxDeliver is the maximum number of delivery attempts per message.
	MaxDeliver int `yaml:"maxDeliver"`

	// RetryBase is the first delay after an iterator failure.
	RetryBase time.Duration `yaml:"retryBase"`

	// RetryMultiplier grows the delay between consecutive iterator failures.
	RetryMultiplier float64 `yaml:"retryMultiplier"`

	// RetryMax caps the delay between iterator restarts.
	RetryMax time.Duration `yaml:"retryMax"`

	// SnapshotBucket is the KV bucket group snapshots are published to.
	SnapshotBucket string `yaml:"snapshotBucket"`

	// SnapshotInterval is the period between two snapshot publications.
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
}

// MetricsConfig configures the Prometheus exporter.
type MetricsConfig struct {
	// Namespace prefixes every metric name.
	Namespace string `yaml:"namespace"`

	// ListenAddr is the address of the /metrics endpoint served by the CLI.
	ListenAddr string `yaml:"listenAddr"`
}

// Config is the configuration of a Tracker, a Registry and the observation feed.
//
// All duration fields accept standard Go duration strings like "500ms", "5s".
type Config struct {
	// Estimator controls the cell estimators of both engines.
	Estimator EstimatorConfig `yaml:"estimator"`

	// Agreement controls the agreement engine.
	Agreement AgreementConfig `yaml:"agreement"`

	// Collusion controls the collusion engine.
	Collusion CollusionConfig `yaml:"collusion"`

	// Feed controls the JetStream observation feed.
	Feed FeedConfig `yaml:"feed"`

	// Metrics controls the Prometheus exporter.
	Metrics MetricsConfig `yaml:"metrics"`
}

// DefaultConfig returns a Config with sensible defaults.
//
// Returns:
//   - Config: Configuration with default values
func DefaultConfig() Config {
	agreement := engine.DefaultAgreementConfig()
	collusion := engine.DefaultCollusionConfig()

	return Config{
		Estimator: EstimatorConfig{
			Level: agreement.Level,
		},
		Agreement: AgreementConfig{
			MergeThreshold: agreement.MergeThreshold,
			ErrorTolerance: agreement.ErrorTolerance,
		},
		Collusion: CollusionConfig{
			MergeThreshold: collusion.MergeThreshold,
			ErrorTolerance: collusion.ErrorTolerance,
		},
		Feed: FeedConfig{
			Stream:          "SIMDEG_OBSERVATIONS",
			SubjectPrefix:   "simdeg.obs",
			DurableName:     "simdeg-tracker",
			BatchSize:       100,
			FetchTimeout:    5 * time.Second,
			AckWait:         30 * time.Second,
			MaxDeliver:      5,
			RetryBase:       200 * time.Millisecond,
			RetryMultiplier: 2.0,
			RetryMax:        10 * time.Second,

			SnapshotBucket:   "simdeg-groups",
			SnapshotInterval: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			Namespace:  "simdeg",
			ListenAddr: ":9090",
		},
	}
}

// SetDefaults fills in missing configuration values with production defaults.
//
// Parameters:
//   - cfg: Config to apply defaults to (modified in place)
func SetDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Estimator.Level == 0 {
		cfg.Estimator.Level = defaults.Estimator.Level
	}
	if cfg.Agreement.MergeThreshold == 0 {
		cfg.Agreement.MergeThreshold = defaults.Agreement.MergeThreshold
	}
	if cfg.Agreement.ErrorTolerance == 0 {
		cfg.Agreement.ErrorTolerance = defaults.Agreement.ErrorTolerance
	}
	if cfg.Collusion.MergeThreshold == 0 {
		cfg.Collusion.MergeThreshold = defaults.Collusion.MergeThreshold
	}
	if cfg.Collusion.ErrorTolerance == 0 {
		cfg.Collusion.ErrorTolerance = defaults.Collusion.ErrorTolerance
	}
	if cfg.Feed.Stream == "" {
		cfg.Feed.Stream = defaults.Feed.Stream
	}
	if cfg.Feed.SubjectPrefix == "" {
		cfg.Feed.SubjectPrefix = defaults.Feed.SubjectPrefix
	}
	if cfg.Feed.DurableName == "" {
		cfg.Feed.DurableName = defaults.Feed.DurableName
	}
	if cfg.Feed.BatchSize == 0 {
		cfg.Feed.BatchSize = defaults.Feed.BatchSize
	}
	if cfg.Feed.FetchTimeout == 0 {
		cfg.Feed.FetchTimeout = defaults.Feed.FetchTimeout
	}
	if cfg.Feed.AckWait == 0 {
		cfg.Feed.AckWait = defaults.Feed.AckWait
	}
	if cfg.Feed.MaxDeliver == 0 {
		cfg.Feed.MaxDeliver = defaults.Feed.MaxDeliver
	}
	if cfg.Feed.RetryBase == 0 {
		cfg.Feed.RetryBase = defaults.Feed.RetryBase
	}
	if cfg.Feed.RetryMultiplier == 0 {
		cfg.Feed.RetryMultiplier = defaults.Feed.RetryMultiplier
	}
	if cfg.Feed.RetryMax == 0 {
		cfg.Feed.RetryMax = defaults.Feed.RetryMax
	}
	if cfg.Feed.SnapshotBucket == "" {
		cfg.Feed.SnapshotBucket = defaults.Feed.SnapshotBucket
	}
	if cfg.Feed.SnapshotInterval == 0 {
		cfg.Feed.SnapshotInterval = defaults.Feed.SnapshotInterval
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = defaults.Metrics.Namespace
	}
	if cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = defaults.Metrics.ListenAddr
	}
}

// AgreementEngineConfig returns the agreement engine thresholds.
func (cfg *Config) AgreementEngineConfig() engine.Config {
	return engine.Config{
		MergeThreshold: cfg.Agreement.MergeThreshold,
		ErrorTolerance: cfg.Agreement.ErrorTolerance,
		Level:          cfg.Estimator.Level,
	}
}

// CollusionEngineConfig returns the collusion engine thresholds.
func (cfg *Config) CollusionEngineConfig() engine.Config {
	return engine.Config{
		MergeThreshold: cfg.Collusion.MergeThreshold,
		ErrorTolerance: cfg.Collusion.ErrorTolerance,
		Level:          cfg.Estimator.Level,
		RunGuard:       !cfg.Estimator.DisableRunGuard,
		Readaptation:   !cfg.Collusion.DisableReadaptation,
	}
}

// Validate checks configuration constraints and returns error for invalid values.
//
// Hard Validation Rules:
//   - Both engine configurations pass engine.Config.Validate
//   - Feed names are non-empty and the subject prefix holds no wildcard or space
//   - BatchSize, FetchTimeout, AckWait and MaxDeliver are positive
//   - RetryBase > 0, RetryMultiplier >= 1 and RetryMax >= RetryBase
//
// Returns:
//   - error: ErrInvalidConfig wrapped with the failing rule, nil if valid
func (cfg *Config) Validate() error {
	if err := cfg.AgreementEngineConfig().Validate(); err != nil {
		return fmt.Errorf("agreement: %w", err)
	}
	if err := cfg.CollusionEngineConfig().Validate(); err != nil {
		return fmt.Errorf("collusion: %w", err)
	}

	return cfg.Feed.Validate()
}

// Validate checks the feed settings.
//
// Returns:
//   - error: ErrInvalidConfig wrapped with the failing rule, nil if valid
func (f *FeedConfig) Validate() error {
	if f.Stream == "" || f.DurableName == "" {
		return fmt.Errorf("feed stream and durable name are required: %w", ErrInvalidConfig)
	}
	if f.SubjectPrefix == "" || strings.ContainsAny(f.SubjectPrefix, "*> \t") {
		return fmt.Errorf("feed subject prefix %q must be a literal subject: %w", f.SubjectPrefix, ErrInvalidConfig)
	}
	if f.BatchSize <= 0 {
		return fmt.Errorf("feed batch size must be > 0, got %d: %w", f.BatchSize, ErrInvalidConfig)
	}
	if f.FetchTimeout <= 0 || f.AckWait <= 0 {
		return fmt.Errorf("feed fetch timeout (%v) and ack wait (%v) must be > 0: %w",
			f.FetchTimeout, f.AckWait, ErrInvalidConfig)
	}
	if f.MaxDeliver <= 0 {
		return fmt.Errorf("feed max deliver must be > 0, got %d: %w", f.MaxDeliver, ErrInvalidConfig)
	}
	if f.RetryBase <= 0 || f.RetryMultiplier < 1 || f.RetryMax < f.RetryBase {
		return fmt.Errorf("feed retry base (%v), multiplier (%v) and max (%v) are inconsistent: %w",
			f.RetryBase, f.RetryMultiplier, f.RetryMax, ErrInvalidConfig)
	}
	if !isBucketName(f.SnapshotBucket) {
		return fmt.Errorf("feed snapshot bucket %q must only use letters, digits, '-' and '_': %w",
			f.SnapshotBucket, ErrInvalidConfig)
	}
	if f.SnapshotInterval <= 0 {
		return fmt.Errorf("feed snapshot interval must be > 0, got %v: %w", f.SnapshotInterval, ErrInvalidConfig)
	}

	return nil
}

func isBucketName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}

	return true
}

// ValidateWithWarnings checks configuration and logs warnings for non-recommended values.
//
// This is called after Validate() by NewTracker to provide operator guidance.
//
// Parameters:
//   - logger: Logger instance for warning output
func (cfg *Config) ValidateWithWarnings(logger Logger) {
	if cfg.Agreement.MergeThreshold < 0.9 || cfg.Collusion.MergeThreshold < 0.9 {
		logger.Warn(
			"merge threshold is low, unrelated workers may be grouped",
			"agreement", cfg.Agreement.MergeThreshold,
			"collusion", cfg.Collusion.MergeThreshold,
			"recommended", 0.99,
		)
	}

	if cfg.Estimator.Level < 0.9 {
		logger.Warn(
			"confidence level is low, error bounds will be optimistic",
			"level", cfg.Estimator.Level,
			"recommended", 0.95,
		)
	}

	if cfg.Collusion.DisableReadaptation {
		logger.Warn("collusion readaptation is disabled, cells drift when the largest group changes")
	}

	if cfg.Feed.AckWait < 2*cfg.Feed.FetchTimeout {
		logger.Warn(
			"feed ack wait is short relative to fetch timeout, messages may be redelivered",
			"ackWait", cfg.Feed.AckWait,
			"fetchTimeout", cfg.Feed.FetchTimeout,
		)
	}
}

// LoadConfig reads a YAML configuration file, fills in defaults and validates it.
//
// Parameters:
//   - path: YAML file path
//
// Returns:
//   - Config: Loaded configuration
//   - error: Read, parse or validation error
//
// Example:
//
//	cfg, err := simdeg.LoadConfig("simdeg.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w: %w", path, ErrInvalidConfig, err)
	}
	SetDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// TestConfig returns a configuration optimized for fast test execution.
//
// Feed timings are much shorter than production defaults. Use DefaultConfig()
// for production deployments.
//
// Returns:
//   - Config: Configuration with fast feed timings
//
// Example:
//
//	cfg := simdeg.TestConfig()
//	cfg.Feed.Stream = "TEST_OBS"
//	reg, err := simdeg.NewRegistry(cfg)
func TestConfig() Config {
	cfg := DefaultConfig()

	cfg.Feed.FetchTimeout = time.Second
	cfg.Feed.AckWait = 2 * time.Second
	cfg.Feed.RetryBase = 10 * time.Millisecond
	cfg.Feed.RetryMax = 100 * time.Millisecond
	cfg.Feed.SnapshotInterval = 100 * time.Millisecond

	return cfg
}
