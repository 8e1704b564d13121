// Package testutil provides shared environment helpers for the E2E suite.
// It depends only on stdlib so that e2e/ (which cannot import internal/)
// can use it.
package testutil

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Environment variables read by the E2E suite.
const (
	EnvEndpoint       = "DOCSYNC_E2E_MINIO_ENDPOINT"
	EnvBucket         = "DOCSYNC_E2E_MINIO_BUCKET"
	EnvAccessKey      = "DOCSYNC_E2E_MINIO_ACCESS_KEY"
	EnvSecretKey      = "DOCSYNC_E2E_MINIO_SECRET_KEY"
	EnvSecure         = "DOCSYNC_E2E_MINIO_SECURE"
	EnvAllowedBuckets = "DOCSYNC_E2E_ALLOWED_BUCKETS"
)

// MinioTarget is the live S3-compatible bucket the suite writes into.
type MinioTarget struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Secure    bool
}

// LoadDotEnv reads KEY=VALUE pairs from a .env file at the given path.
// Missing file is not an error (CI sets env vars directly).
// Existing env vars take precedence over .env values.
func LoadDotEnv(envPath string) {
	f, err := os.Open(envPath)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), "\"'")

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// LoadMinioTarget reads the target from the environment and crashes the
// process if it is incomplete or the bucket is not allowlisted. Teardown
// tests delete every store they find under their prefix, so pointing the
// suite at a production bucket must be impossible.
func LoadMinioTarget() MinioTarget {
	t := MinioTarget{
		Endpoint:  os.Getenv(EnvEndpoint),
		Bucket:    os.Getenv(EnvBucket),
		AccessKey: os.Getenv(EnvAccessKey),
		SecretKey: os.Getenv(EnvSecretKey),
		Secure:    os.Getenv(EnvSecure) == "true",
	}

	for name, v := range map[string]string{
		EnvEndpoint:  t.Endpoint,
		EnvBucket:    t.Bucket,
		EnvAccessKey: t.AccessKey,
		EnvSecretKey: t.SecretKey,
	} {
		if v == "" {
			fatalf("%s not set (set it in .env or the environment)", name)
		}
	}

	validateAllowlist(t.Bucket)

	return t
}

func validateAllowlist(bucket string) {
	allowlist := os.Getenv(EnvAllowedBuckets)
	if allowlist == "" {
		fatalf("%s not set. Example: %s=docsync-e2e", EnvAllowedBuckets, EnvAllowedBuckets)
	}

	for _, a := range strings.Split(allowlist, ",") {
		if strings.TrimSpace(a) == bucket {
			return
		}
	}

	fatalf("%s=%q is not in %s=%q", EnvBucket, bucket, EnvAllowedBuckets, allowlist)
}

// FindModuleRoot walks up from the current directory to find go.mod.
// Returns the fallback if the root is not found.
func FindModuleRoot(fallback string) string {
	dir, err := os.Getwd()
	if err != nil {
		return fallback
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}

		dir = parent
	}
}

// WriteConfig writes a config.toml selecting the minio backend for t.
// Keys are passed through the environment, never written to disk.
func WriteConfig(path string, t MinioTarget) {
	content := fmt.Sprintf(`[backend]
kind = "minio"

[backend.minio]
endpoint = %q
bucket = %q
secure = %t

[teardown]
chunk_pause = "0s"
recheck_delay = "500ms"
retry_delay = "1s"
`, t.Endpoint, t.Bucket, t.Secure)

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		fatalf("writing %s: %v", path, err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FATAL: "+format+"\n", args...)
	os.Exit(1)
}
