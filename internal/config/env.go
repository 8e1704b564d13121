package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig         = "DOCSYNC_CONFIG"
	EnvBackend        = "DOCSYNC_BACKEND"
	EnvDataDir        = "DOCSYNC_DATA_DIR"
	EnvMinioAccessKey = "DOCSYNC_MINIO_ACCESS_KEY"
	EnvMinioSecretKey = "DOCSYNC_MINIO_SECRET_KEY"
	EnvProjectPath    = "PROJECT_PATH"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath     string // DOCSYNC_CONFIG: override config file path
	Backend        string // DOCSYNC_BACKEND: gemini or minio
	DataDir        string // DOCSYNC_DATA_DIR: state directory
	MinioAccessKey string
	MinioSecretKey string
	ProjectPath    string // PROJECT_PATH: start directory for settings discovery
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:     os.Getenv(EnvConfig),
		Backend:        os.Getenv(EnvBackend),
		DataDir:        os.Getenv(EnvDataDir),
		MinioAccessKey: os.Getenv(EnvMinioAccessKey),
		MinioSecretKey: os.Getenv(EnvMinioSecretKey),
		ProjectPath:    os.Getenv(EnvProjectPath),
	}
}
