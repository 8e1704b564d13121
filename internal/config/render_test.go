package config

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEffective_LoadsBack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Filter.SkipFiles = []string{"*.min.js"}
	cfg.Server.Listen = ":8080"

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(cfg, &buf))

	// Rendered output must pass the unknown-key check.
	assert.Contains(t, buf.String(), "# config file: none, built-in defaults")

	loaded, err := Load(writeTestConfig(t, buf.String()))
	require.NoError(t, err)
	assert.Equal(t, cfg.Filter.SkipFiles, loaded.Filter.SkipFiles)
	assert.Equal(t, ":8080", loaded.Server.Listen)
}

func TestMasked(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend.Minio.AccessKey = "AKIA"
	cfg.Backend.Minio.SecretKey = "s3cret"

	m := Masked(cfg)

	assert.Equal(t, maskedSecret, m.Backend.Minio.AccessKey)
	assert.Equal(t, maskedSecret, m.Backend.Minio.SecretKey)
	assert.Equal(t, "s3cret", cfg.Backend.Minio.SecretKey, "original untouched")

	m.Filter.SkipDirs[0] = "changed"
	assert.Equal(t, "node_modules", cfg.Filter.SkipDirs[0])
}
