package config

import (
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
)

const maskedSecret = "********"

// Masked returns a copy of cfg with credentials replaced by a placeholder.
func Masked(cfg *Config) *Config {
	c := *cfg
	c.Filter.SkipDirs = append([]string(nil), cfg.Filter.SkipDirs...)
	c.Filter.SkipFiles = append([]string(nil), cfg.Filter.SkipFiles...)

	if c.Backend.Minio.AccessKey != "" {
		c.Backend.Minio.AccessKey = maskedSecret
	}

	if c.Backend.Minio.SecretKey != "" {
		c.Backend.Minio.SecretKey = maskedSecret
	}

	return &c
}

// RenderEffective writes cfg as TOML in the same layout the config file
// uses, headed by a comment naming the file it came from.
func RenderEffective(cfg *Config, w io.Writer) error {
	source := cfg.Source
	if source == "" {
		source = "none, built-in defaults"
	}

	if _, err := fmt.Fprintf(w, "# config file: %s\n\n", source); err != nil {
		return fmt.Errorf("config: rendering: %w", err)
	}

	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("config: rendering: %w", err)
	}

	return nil
}
