package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Load parses the TOML file at path on top of the defaults and validates
// the result. Unknown keys are fatal, with "did you mean?" suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	cfg.Source = path

	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults.
// docsync works without any config file.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve applies the override chain defaults -> file -> env -> CLI and
// returns a validated Config with DataDir filled in.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Config, error) {
	cfg, err := LoadOrDefault(configPath(env, cli))
	if err != nil {
		return nil, err
	}

	env.apply(cfg)
	cli.apply(cfg)

	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir()
	}

	// The file alone was valid; env and flags can still break it
	// (DOCSYNC_BACKEND=s3).
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: after overrides: %w", err)
	}

	return cfg, nil
}

// configPath picks the file to read: --config, then DOCSYNC_CONFIG, then
// the platform default.
func configPath(env EnvOverrides, cli CLIOverrides) string {
	switch {
	case cli.ConfigPath != "":
		return cli.ConfigPath
	case env.ConfigPath != "":
		return env.ConfigPath
	default:
		return DefaultConfigPath()
	}
}

func (e EnvOverrides) apply(cfg *Config) {
	setIfNonEmpty(&cfg.Backend.Kind, e.Backend)
	setIfNonEmpty(&cfg.DataDir, e.DataDir)
	setIfNonEmpty(&cfg.Backend.Minio.AccessKey, e.MinioAccessKey)
	setIfNonEmpty(&cfg.Backend.Minio.SecretKey, e.MinioSecretKey)
}

func (c CLIOverrides) apply(cfg *Config) {
	setIfNonEmpty(&cfg.Backend.Kind, c.Backend)
}

func setIfNonEmpty(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
