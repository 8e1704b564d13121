package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/tonimelisma/docsync/internal/assistant"
	"github.com/tonimelisma/docsync/internal/config"
	"github.com/tonimelisma/docsync/internal/credential"
	"github.com/tonimelisma/docsync/internal/docstore"
	"github.com/tonimelisma/docsync/internal/sync"
)

// errNoGeneration means the configured backend cannot answer questions.
var errNoGeneration = errors.New("the minio backend stores documents only; question answering needs the gemini backend")

// Session holds the remote store and the metadata database for one command
// invocation. Replaces threading the backend, credential, and database
// through every command by hand.
type Session struct {
	Store    sync.DocumentStore
	Metadata *sync.MetadataStore

	gen    assistant.Generator // nil when the backend cannot generate
	cfg    *config.Config
	logger *slog.Logger
}

// NewSession builds the backend selected by [backend] kind and opens the
// metadata database.
func NewSession(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Session, error) {
	store, gen, err := newBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	meta, err := sync.OpenMetadataStore(ctx, config.MetadataDBPath(cfg.DataDir), logger)
	if err != nil {
		return nil, err
	}

	return &Session{Store: store, Metadata: meta, gen: gen, cfg: cfg, logger: logger}, nil
}

// Close releases the metadata database.
func (s *Session) Close() {
	if err := s.Metadata.Close(); err != nil {
		s.logger.Warn("closing metadata store", slog.String("error", err.Error()))
	}
}

func newBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (sync.DocumentStore, assistant.Generator, error) {
	if cfg.Backend.Kind == config.BackendMinio {
		m := cfg.Backend.Minio

		store, err := docstore.NewMinioStore(ctx, docstore.MinioOptions{
			Endpoint:  m.Endpoint,
			Bucket:    m.Bucket,
			AccessKey: m.AccessKey,
			SecretKey: m.SecretKey,
			Secure:    m.Secure,
			Region:    m.Region,
		}, logger)
		if err != nil {
			return nil, nil, err
		}

		return store, nil, nil
	}

	auth, source, err := credential.Resolve(os.Getenv, config.CredentialPath(cfg.DataDir))
	if err != nil {
		return nil, nil, err
	}

	logger.Debug("using credential", slog.String("source", source))

	return newGeminiClient(cfg, auth, logger, cfg.Sync.MaxRetries),
		newGeminiClient(cfg, auth, logger, generationMaxRetries), nil
}

// generationMaxRetries caps a throttled ask at three requests in all.
const generationMaxRetries = 2

func newGeminiClient(cfg *config.Config, auth docstore.Authorizer, logger *slog.Logger, maxRetries int) *docstore.Client {
	return docstore.NewClient(auth, docstore.Options{
		BaseURL:    cfg.Backend.BaseURL,
		UploadURL:  cfg.Backend.UploadURL,
		Model:      cfg.Backend.Model,
		HTTPClient: &http.Client{Timeout: cfg.ParseDurations().HTTPTimeout},
		Logger:     logger,
		UserAgent:  cfg.Network.UserAgent,
		MaxRetries: maxRetries,
	})
}

// Directory returns the project-name to store-id resolver.
func (s *Session) Directory() *sync.Directory {
	return sync.NewDirectory(s.Store, s.Metadata, s.logger)
}

// Filter builds the exclusion filter for a watch root.
func (s *Session) Filter(root string) (*sync.ExclusionFilter, error) {
	return sync.NewExclusionFilter(&s.cfg.Filter, root, s.logger)
}

// Engine wires a sync engine for a watch root.
func (s *Session) Engine(root string) (*sync.Engine, error) {
	filter, err := s.Filter(root)
	if err != nil {
		return nil, err
	}

	d := s.cfg.ParseDurations()

	return sync.NewEngine(&sync.EngineConfig{
		Store:    s.Store,
		Metadata: s.Metadata,
		Filter:   filter,
		Enumerator: sync.EnumeratorOptions{
			FollowSymlinks: s.cfg.Filter.FollowSymlinks,
			MaxDepth:       s.cfg.Filter.MaxDepth,
			VerifyContent:  s.cfg.Filter.VerifyContent,
		},
		PollInterval: d.PollInterval,
		PollTimeout:  d.PollTimeout,
		Scheduler:    docstore.TimerScheduler{},
		Logger:       s.logger,
	}), nil
}

// Teardown wires project deletion with the configured pacing.
func (s *Session) Teardown() *sync.Teardown {
	d := s.cfg.ParseDurations()

	return sync.NewTeardown(s.Store, s.Metadata, sync.TeardownConfig{
		ChunkSize:    s.cfg.Teardown.ChunkSize,
		ChunkPause:   d.ChunkPause,
		RecheckDelay: d.RecheckDelay,
		RetryDelay:   d.RetryDelay,
		MaxAttempts:  s.cfg.Teardown.MaxAttempts,
	}, s.logger)
}

// Assistant returns the question-answering service, or errNoGeneration
// when the backend has no generation endpoint.
func (s *Session) Assistant() (*assistant.Service, error) {
	if s.gen == nil {
		return nil, errNoGeneration
	}

	return assistant.NewService(s.gen, s.Directory(), s.logger), nil
}

// projectContext is a project located through its document-sync.json.
type projectContext struct {
	Name      string // projectName
	Root      string // directory holding document-sync.json
	WatchRoot string // absolute watch location
	Settings  *config.Settings
}

// findProject locates the settings file by walking up from the working
// directory (or PROJECT_PATH) and resolves the project name and watch
// root. explicit overrides the stored project name.
func findProject(explicit string) (*projectContext, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("determining working directory: %w", err)
	}

	root, err := config.FindSettings(cwd, os.Getenv(config.EnvProjectPath))
	if err != nil {
		if errors.Is(err, config.ErrNoSettings) {
			return nil, fmt.Errorf("%w: run 'docsync init' in the project folder", err)
		}

		return nil, err
	}

	pc, err := findProjectAt(root, explicit)

	switch {
	case errors.Is(err, config.ErrNoProject):
		return pc, fmt.Errorf("%w: set projectName in %s or run 'docsync init'", err, config.SettingsFileName)
	case errors.Is(err, config.ErrNoWatchRoot):
		return pc, fmt.Errorf("%w: run 'docsync init' to choose a folder", err)
	}

	return pc, err
}

// resolveProjectName returns the project to query: --project, then the
// nearest settings file.
func resolveProjectName(explicit string) (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("determining working directory: %w", err)
	}

	return assistant.ResolveProject(explicit, cwd, os.Getenv(config.EnvProjectPath))
}
