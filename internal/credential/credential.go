// Package credential stores and resolves the credential used to talk to the
// remote document store: an API key, or an OAuth2 access token. The file
// on disk is written atomically with owner-only permissions and its values
// are never logged.
package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
)

// Environment variables consulted by Resolve, in priority order.
const (
	EnvGeminiAPIKey = "GEMINI_API_KEY"
	EnvAPIKey       = "API_KEY"
	EnvAccessToken  = "GOOGLE_OAUTH_ACCESS_TOKEN"
)

// FilePerms restricts credential files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the data directory.
const DirPerms = 0o700

// apiKeyHeader is the header carrying the API key on every request.
const apiKeyHeader = "x-goog-api-key"

// ErrNoCredential means neither the environment nor the credential file
// provides a usable credential.
var ErrNoCredential = errors.New("credential: no API key configured (set GEMINI_API_KEY or run 'docsync login')")

// ErrTokenExpired means the stored access token has passed its expiry.
var ErrTokenExpired = errors.New("credential: stored access token expired (run 'docsync login' again)")

// File is the on-disk format. Exactly one of APIKey or Token is normally set.
type File struct {
	APIKey  string        `json:"api_key,omitempty"`
	Token   *oauth2.Token `json:"token,omitempty"`
	SavedAt time.Time     `json:"saved_at"`
}

// Load reads a credential file. Returns (nil, nil) if the file does not exist.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("credential: reading %s: %w", path, err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("credential: decoding %s: %w", path, err)
	}

	if f.APIKey == "" && f.Token == nil {
		return nil, fmt.Errorf("credential: %s holds neither api_key nor token", path)
	}

	return &f, nil
}

// Save writes a credential file to disk atomically (write-to-temp + rename)
// with 0600 permissions.
func Save(path string, f *File) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("credential: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("credential: creating directory %s: %w", dir, mkErr)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*.tmp")
	if err != nil {
		return fmt.Errorf("credential: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("credential: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("credential: writing: %w", err)
	}

	// Flush before rename so a power loss cannot leave a truncated file.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("credential: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("credential: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("credential: renaming: %w", err)
	}

	success = true

	return nil
}

// Remove deletes the credential file. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("credential: removing %s: %w", path, err)
	}

	return nil
}

// Authorizer decorates outgoing requests with credentials.
type Authorizer interface {
	Authorize(req *http.Request) error
}

// APIKey authorizes requests with a static API key header.
type APIKey string

// Authorize sets the API key header.
func (k APIKey) Authorize(req *http.Request) error {
	req.Header.Set(apiKeyHeader, string(k))
	return nil
}

// OAuth authorizes requests with a bearer token from an oauth2.TokenSource.
type OAuth struct {
	src oauth2.TokenSource
}

// NewOAuth wraps src in a ReuseTokenSource so valid tokens are cached.
func NewOAuth(src oauth2.TokenSource) *OAuth {
	return &OAuth{src: oauth2.ReuseTokenSource(nil, src)}
}

// Authorize sets the Authorization header from the current token.
func (o *OAuth) Authorize(req *http.Request) error {
	tok, err := o.src.Token()
	if err != nil {
		return fmt.Errorf("credential: obtaining token: %w", err)
	}

	tok.SetAuthHeader(req)

	return nil
}

// expiringSource refuses to hand out a token past its expiry; a static
// token cannot be refreshed.
type expiringSource struct {
	tok *oauth2.Token
}

func (s expiringSource) Token() (*oauth2.Token, error) {
	if !s.tok.Valid() {
		return nil, ErrTokenExpired
	}

	return s.tok, nil
}

// Resolve picks the credential to use: GEMINI_API_KEY, then API_KEY, then
// GOOGLE_OAUTH_ACCESS_TOKEN, then the credential file at path. The returned
// source names where the credential came from, for display only.
func Resolve(getenv func(string) string, path string) (Authorizer, string, error) {
	for _, name := range []string{EnvGeminiAPIKey, EnvAPIKey} {
		if v := getenv(name); v != "" {
			return APIKey(v), "env " + name, nil
		}
	}

	if v := getenv(EnvAccessToken); v != "" {
		tok := &oauth2.Token{AccessToken: v, TokenType: "Bearer"}
		return NewOAuth(oauth2.StaticTokenSource(tok)), "env " + EnvAccessToken, nil
	}

	f, err := Load(path)
	if err != nil {
		return nil, "", err
	}

	if f == nil {
		return nil, "", ErrNoCredential
	}

	if f.APIKey != "" {
		return APIKey(f.APIKey), path, nil
	}

	return NewOAuth(expiringSource{tok: f.Token}), path, nil
}
