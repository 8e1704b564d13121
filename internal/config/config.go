// Package config implements TOML application configuration for docsync and
// the per-project document-sync.json settings file. Application config is
// resolved through a layered chain: defaults -> config file -> environment
// -> CLI flags.
package config

// Backend kinds accepted in [backend] kind.
const (
	BackendGemini = "gemini"
	BackendMinio  = "minio"
)

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	// Source is the config file the values were read from; empty when
	// only defaults apply.
	Source string `toml:"-" json:"-"`

	DataDir  string         `toml:"data_dir"`
	Backend  BackendConfig  `toml:"backend"`
	Filter   FilterConfig   `toml:"filter"`
	Sync     SyncConfig     `toml:"sync"`
	Teardown TeardownConfig `toml:"teardown"`
	Logging  LoggingConfig  `toml:"logging"`
	Network  NetworkConfig  `toml:"network"`
	Server   ServerConfig   `toml:"server"`
}

// BackendConfig selects and configures the remote document store.
type BackendConfig struct {
	Kind      string      `toml:"kind"`
	BaseURL   string      `toml:"base_url"`
	UploadURL string      `toml:"upload_url"`
	Model     string      `toml:"model"`
	Minio     MinioConfig `toml:"minio"`
}

// MinioConfig configures the S3-compatible backend. Secret keys may also be
// supplied through DOCSYNC_MINIO_ACCESS_KEY / DOCSYNC_MINIO_SECRET_KEY.
type MinioConfig struct {
	Endpoint  string `toml:"endpoint"`
	Bucket    string `toml:"bucket"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Secure    bool   `toml:"secure"`
	Region    string `toml:"region"`
}

// FilterConfig controls which local files the enumerator yields.
type FilterConfig struct {
	SkipDirs       []string `toml:"skip_dirs"`
	SkipHidden     bool     `toml:"skip_hidden"`
	SkipFiles      []string `toml:"skip_files"`
	MaxFileSize    string   `toml:"max_file_size"`
	IgnoreMarker   string   `toml:"ignore_marker"`
	FollowSymlinks bool     `toml:"follow_symlinks"`
	MaxDepth       int      `toml:"max_depth"`
	VerifyContent  bool     `toml:"verify_content"`
}

// SyncConfig controls upload polling and watch behavior.
type SyncConfig struct {
	PollInterval string `toml:"poll_interval"`
	PollTimeout  string `toml:"poll_timeout"`
	Debounce     string `toml:"debounce"`
	MaxRetries   int    `toml:"max_retries"`
}

// TeardownConfig holds the drain-loop timings used when a project store is
// deleted. None of these are correctness guarantees; they only pace the
// backend while its listing catches up.
type TeardownConfig struct {
	ChunkSize    int    `toml:"chunk_size"`
	ChunkPause   string `toml:"chunk_pause"`
	RecheckDelay string `toml:"recheck_delay"`
	RetryDelay   string `toml:"retry_delay"`
	MaxAttempts  int    `toml:"max_attempts"`
}

// LoggingConfig controls log output: level, format, and optional rotated file.
type LoggingConfig struct {
	LogLevel         string `toml:"log_level"`
	LogFile          string `toml:"log_file"`
	LogFormat        string `toml:"log_format"`
	LogRetentionDays int    `toml:"log_retention_days"`
	LogMaxSizeMB     int    `toml:"log_max_size_mb"`
}

// NetworkConfig controls HTTP client behavior.
type NetworkConfig struct {
	Timeout   string `toml:"timeout"`
	UserAgent string `toml:"user_agent"`
}

// ServerConfig controls the chat API server.
type ServerConfig struct {
	Listen string `toml:"listen"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings.
type CLIOverrides struct {
	ConfigPath string // --config flag (empty = use default)
	Backend    string // --backend flag (empty = use config)
}
