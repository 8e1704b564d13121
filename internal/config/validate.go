package config

import (
	"errors"
	"fmt"
	"time"
)

// Validation range constants.
const (
	minPollInterval  = 100 * time.Millisecond
	maxChunkSize     = 100
	minLogRetention  = 1
	maxRetryAttempts = 10
)

// Validate checks all configuration values and returns every error found,
// so a user can fix them all in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateBackend(&cfg.Backend)...)
	errs = append(errs, validateFilter(&cfg.Filter)...)
	errs = append(errs, validateSync(&cfg.Sync)...)
	errs = append(errs, validateTeardown(&cfg.Teardown)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	if _, err := time.ParseDuration(cfg.Network.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("network.timeout: %w", err))
	}

	return errors.Join(errs...)
}

func validateBackend(b *BackendConfig) []error {
	var errs []error

	switch b.Kind {
	case BackendGemini:
		if b.BaseURL == "" {
			errs = append(errs, errors.New("backend.base_url: must not be empty"))
		}

		if b.Model == "" {
			errs = append(errs, errors.New("backend.model: must not be empty"))
		}
	case BackendMinio:
		if b.Minio.Bucket == "" {
			errs = append(errs, errors.New("backend.minio.bucket: must not be empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("backend.kind: must be %q or %q, got %q", BackendGemini, BackendMinio, b.Kind))
	}

	return errs
}

func validateFilter(f *FilterConfig) []error {
	var errs []error

	if _, err := ParseSize(f.MaxFileSize); err != nil {
		errs = append(errs, fmt.Errorf("filter.max_file_size: %w", err))
	}

	if f.MaxDepth < 1 {
		errs = append(errs, fmt.Errorf("filter.max_depth: must be >= 1, got %d", f.MaxDepth))
	}

	return errs
}

func validateSync(s *SyncConfig) []error {
	var errs []error

	if d, err := time.ParseDuration(s.PollInterval); err != nil {
		errs = append(errs, fmt.Errorf("sync.poll_interval: %w", err))
	} else if d < minPollInterval {
		errs = append(errs, fmt.Errorf("sync.poll_interval: must be >= %s, got %s", minPollInterval, d))
	}

	if _, err := time.ParseDuration(s.PollTimeout); err != nil {
		errs = append(errs, fmt.Errorf("sync.poll_timeout: %w", err))
	}

	if _, err := time.ParseDuration(s.Debounce); err != nil {
		errs = append(errs, fmt.Errorf("sync.debounce: %w", err))
	}

	if s.MaxRetries < 0 || s.MaxRetries > maxRetryAttempts {
		errs = append(errs, fmt.Errorf("sync.max_retries: must be between 0 and %d, got %d", maxRetryAttempts, s.MaxRetries))
	}

	return errs
}

func validateTeardown(t *TeardownConfig) []error {
	var errs []error

	if t.ChunkSize < 1 || t.ChunkSize > maxChunkSize {
		errs = append(errs, fmt.Errorf("teardown.chunk_size: must be between 1 and %d, got %d", maxChunkSize, t.ChunkSize))
	}

	if t.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("teardown.max_attempts: must be >= 1, got %d", t.MaxAttempts))
	}

	for name, v := range map[string]string{
		"teardown.chunk_pause":   t.ChunkPause,
		"teardown.recheck_delay": t.RecheckDelay,
		"teardown.retry_delay":   t.RetryDelay,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	switch l.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.log_level: must be debug, info, warn or error, got %q", l.LogLevel))
	}

	switch l.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.log_format: must be text or json, got %q", l.LogFormat))
	}

	if l.LogRetentionDays < minLogRetention {
		errs = append(errs, fmt.Errorf("logging.log_retention_days: must be >= %d", minLogRetention))
	}

	return errs
}

// Durations is the parsed form of the duration-valued settings. Validate
// guarantees every field parses, so Durations never fails on a validated
// Config.
type Durations struct {
	PollInterval time.Duration
	PollTimeout  time.Duration // 0 = no limit
	Debounce     time.Duration
	ChunkPause   time.Duration
	RecheckDelay time.Duration
	RetryDelay   time.Duration
	HTTPTimeout  time.Duration
}

// ParseDurations returns the duration settings of a validated Config.
func (c *Config) ParseDurations() Durations {
	parse := func(s string) time.Duration {
		d, _ := time.ParseDuration(s)
		return d
	}

	return Durations{
		PollInterval: parse(c.Sync.PollInterval),
		PollTimeout:  parse(c.Sync.PollTimeout),
		Debounce:     parse(c.Sync.Debounce),
		ChunkPause:   parse(c.Teardown.ChunkPause),
		RecheckDelay: parse(c.Teardown.RecheckDelay),
		RetryDelay:   parse(c.Teardown.RetryDelay),
		HTTPTimeout:  parse(c.Network.Timeout),
	}
}
