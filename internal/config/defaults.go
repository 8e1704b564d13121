package config

// Default values for configuration options, the bottom layer of the
// override chain.
const (
	defaultBaseURL          = "https://generativelanguage.googleapis.com/v1beta"
	defaultUploadURL        = "https://generativelanguage.googleapis.com/upload/v1beta"
	defaultModel            = "gemini-2.5-flash"
	defaultMinioBucket      = "docsync"
	defaultIgnoreMarker     = ".docsyncignore"
	defaultMaxFileSize      = "100MB"
	defaultMaxDepth         = 64
	defaultPollInterval     = "2s"
	defaultPollTimeout      = "10m"
	defaultDebounce         = "2s"
	defaultMaxRetries       = 5
	defaultChunkSize        = 10
	defaultChunkPause       = "200ms"
	defaultRecheckDelay     = "1s"
	defaultRetryDelay       = "2s"
	defaultMaxAttempts      = 5
	defaultLogLevel         = "info"
	defaultLogFormat        = "text"
	defaultLogRetentionDays = 30
	defaultLogMaxSizeMB     = 10
	defaultTimeout          = "60s"
	defaultUserAgent        = "docsync/0.1"
	defaultListen           = "127.0.0.1:3000"
)

// defaultSkipDirs are dependency-cache directories never worth indexing.
var defaultSkipDirs = []string{"node_modules"}

// DefaultConfig returns a Config populated with all default values.
// It is the starting point for TOML decoding so unset fields keep defaults.
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			Kind:      BackendGemini,
			BaseURL:   defaultBaseURL,
			UploadURL: defaultUploadURL,
			Model:     defaultModel,
			Minio: MinioConfig{
				Bucket: defaultMinioBucket,
				Secure: true,
			},
		},
		Filter: FilterConfig{
			SkipDirs:      append([]string(nil), defaultSkipDirs...),
			SkipHidden:    true,
			MaxFileSize:   defaultMaxFileSize,
			IgnoreMarker:  defaultIgnoreMarker,
			MaxDepth:      defaultMaxDepth,
			VerifyContent: true,
		},
		Sync: SyncConfig{
			PollInterval: defaultPollInterval,
			PollTimeout:  defaultPollTimeout,
			Debounce:     defaultDebounce,
			MaxRetries:   defaultMaxRetries,
		},
		Teardown: TeardownConfig{
			ChunkSize:    defaultChunkSize,
			ChunkPause:   defaultChunkPause,
			RecheckDelay: defaultRecheckDelay,
			RetryDelay:   defaultRetryDelay,
			MaxAttempts:  defaultMaxAttempts,
		},
		Logging: LoggingConfig{
			LogLevel:         defaultLogLevel,
			LogFormat:        defaultLogFormat,
			LogRetentionDays: defaultLogRetentionDays,
			LogMaxSizeMB:     defaultLogMaxSizeMB,
		},
		Network: NetworkConfig{
			Timeout:   defaultTimeout,
			UserAgent: defaultUserAgent,
		},
		Server: ServerConfig{
			Listen: defaultListen,
		},
	}
}
