package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	gosync "sync"
	"sync/atomic"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/docsync/internal/assistant"
	"github.com/tonimelisma/docsync/internal/config"
	"github.com/tonimelisma/docsync/internal/credential"
	"github.com/tonimelisma/docsync/internal/docstore"
	"github.com/tonimelisma/docsync/internal/sync"
)

func testCLIContext(t *testing.T) *CLIContext {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()

	return &CLIContext{
		Flags:  CLIFlags{Quiet: true},
		Cfg:    cfg,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestSetupProject_FromFlags(t *testing.T) {
	t.Parallel()

	cc := testCLIContext(t)
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs"), 0o755))

	settings, err := setupProject(context.Background(), cc, root, "manuals", filepath.Join(root, "docs"))
	require.NoError(t, err)
	assert.Equal(t, "manuals", settings.ProjectName)
	assert.Equal(t, "docs", settings.WatchLocation, "stored relative to the project root")

	pc, err := findProjectAt(root, "")
	require.NoError(t, err)
	assert.Equal(t, "manuals", pc.Name)
	assert.Equal(t, filepath.Join(root, "docs"), pc.WatchRoot)
}

func TestSetupProject_KeepsExistingValues(t *testing.T) {
	t.Parallel()

	cc := testCLIContext(t)
	root := t.TempDir()
	require.NoError(t, config.SaveSettings(root, &config.Settings{ProjectName: "old", WatchLocation: "."}))

	settings, err := setupProject(context.Background(), cc, root, "", "")
	require.NoError(t, err, "nothing to prompt for")
	assert.Equal(t, "old", settings.ProjectName)
	assert.Equal(t, ".", settings.WatchLocation)
}

func TestSetupProject_Errors(t *testing.T) {
	t.Parallel()

	cc := testCLIContext(t)
	root := t.TempDir()

	_, err := setupProject(context.Background(), cc, root, "p", "missing")
	require.Error(t, err)

	file := filepath.Join(root, "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err = setupProject(context.Background(), cc, root, "p", file)
	require.ErrorIs(t, err, config.ErrNotDirectory)

	// Tests never run on a terminal, so a missing name cannot be prompted.
	_, err = setupProject(context.Background(), cc, t.TempDir(), "", ".")
	require.ErrorIs(t, err, errNotInteractive)
}

func TestFindProjectAt(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	_, err := findProjectAt(root, "")
	require.ErrorIs(t, err, config.ErrNoProject)

	require.NoError(t, config.SaveSettings(root, &config.Settings{ProjectName: "manuals"}))

	pc, err := findProjectAt(root, "")
	require.ErrorIs(t, err, config.ErrNoWatchRoot)
	require.NotNil(t, pc)
	assert.Equal(t, root, pc.Root)

	require.NoError(t, config.SaveSettings(root, &config.Settings{ProjectName: "manuals", WatchLocation: "."}))

	pc, err = findProjectAt(root, "override")
	require.NoError(t, err)
	assert.Equal(t, "override", pc.Name)
}

func TestFindProject_ProjectPath(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, config.SaveSettings(root, &config.Settings{ProjectName: "manuals", WatchLocation: "."}))

	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	t.Setenv(config.EnvProjectPath, nested)

	pc, err := findProject("")
	require.NoError(t, err)
	assert.Equal(t, "manuals", pc.Name)
	assert.Equal(t, root, pc.Root)

	name, err := resolveProjectName("")
	require.NoError(t, err)
	assert.Equal(t, "manuals", name)
}

func TestReadSecret(t *testing.T) {
	t.Parallel()

	got, err := readSecret(strings.NewReader("  AIza-key \nsecond line\n"))
	require.NoError(t, err)
	assert.Equal(t, "AIza-key", got)

	got, err = readSecret(strings.NewReader("no-newline"))
	require.NoError(t, err)
	assert.Equal(t, "no-newline", got)

	_, err = readSecret(strings.NewReader("\n"))
	assert.Error(t, err)
}

func TestPrintSyncReport_FailuresAreAnError(t *testing.T) {
	t.Parallel()

	cc := testCLIContext(t)

	ok := &sync.SyncReport{Planned: 2, Uploaded: 2}
	require.NoError(t, printSyncReport(cc, ok, false))

	failed := &sync.SyncReport{
		Planned: 2, Uploaded: 1, Failed: 1,
		Errors: []sync.PathError{{Path: "a.md", Err: errors.New("boom")}},
	}

	err := printSyncReport(cc, failed, false)
	require.ErrorIs(t, err, errSyncIncomplete)
	assert.Contains(t, err.Error(), "1 of 2")
}

func TestSession_AssistantNeedsGeneration(t *testing.T) {
	t.Parallel()

	s := &Session{}

	_, err := s.Assistant()
	require.ErrorIs(t, err, errNoGeneration)
}

// memStore is a minimal in-memory sync.DocumentStore.
type memStore struct {
	mu     gosync.Mutex
	stores []docstore.Store
	docs   map[string][]docstore.Document
}

func (m *memStore) ListStores(context.Context) ([]docstore.Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]docstore.Store(nil), m.stores...), nil
}

func (m *memStore) CreateStore(_ context.Context, name string) (*docstore.Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := docstore.Store{ID: "stores/" + name, DisplayName: name}
	m.stores = append(m.stores, s)

	return &s, nil
}

func (m *memStore) ListDocuments(_ context.Context, storeID string) ([]docstore.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]docstore.Document(nil), m.docs[storeID]...), nil
}

func (m *memStore) UploadDocument(context.Context, docstore.UploadRequest) (*docstore.Operation, error) {
	return nil, errors.New("not supported")
}

func (m *memStore) GetOperation(context.Context, string) (*docstore.Operation, error) {
	return nil, errors.New("not supported")
}

func (m *memStore) DeleteDocument(_ context.Context, id string, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for store, docs := range m.docs {
		for i, d := range docs {
			if d.ID == id {
				m.docs[store] = append(docs[:i], docs[i+1:]...)
				return nil
			}
		}
	}

	return docstore.ErrNotFound
}

func (m *memStore) DeleteStore(_ context.Context, id string, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.docs[id]) > 0 {
		return docstore.ErrStoreNotEmpty
	}

	for i, s := range m.stores {
		if s.ID == id {
			m.stores = append(m.stores[:i], m.stores[i+1:]...)
			return nil
		}
	}

	return docstore.ErrNotFound
}

func TestDeleteProject(t *testing.T) {
	t.Parallel()

	cc := testCLIContext(t)
	cc.Cfg.Teardown.ChunkPause = "0s"
	cc.Cfg.Teardown.RecheckDelay = "0s"
	cc.Cfg.Teardown.RetryDelay = "0s"

	ctx := context.Background()

	meta, err := sync.OpenMetadataStore(ctx, config.MetadataDBPath(cc.Cfg.DataDir), cc.Logger)
	require.NoError(t, err)

	t.Cleanup(func() { meta.Close() })

	store := &memStore{
		stores: []docstore.Store{{ID: "stores/manuals", DisplayName: "manuals"}},
		docs: map[string][]docstore.Document{
			"stores/manuals": {{ID: "stores/manuals/documents/a", DisplayName: "a.md"}},
		},
	}

	require.NoError(t, meta.Save(ctx, "manuals", map[string]sync.TrackedFile{
		"a.md": {RelativePath: "a.md", ModifiedAtMillis: 1, RemoteDocumentID: "stores/manuals/documents/a"},
	}))

	sess := &Session{Store: store, Metadata: meta, cfg: cc.Cfg, logger: cc.Logger}

	require.NoError(t, deleteProject(ctx, cc, sess, "manuals"))
	assert.Empty(t, store.stores)

	tracked, err := meta.Load(ctx, "manuals")
	require.NoError(t, err)
	assert.Empty(t, tracked)

	// A project without a store only loses its local metadata.
	require.NoError(t, deleteProject(ctx, cc, sess, "ghost"))
}

func TestChangePrompter(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	newPrompter := func(autoSync, answer bool) (*changePrompter, *[]string, *[]string) {
		var asked, passes []string

		c := &changePrompter{
			autoSync: autoSync,
			confirm: func(title, _ string) (bool, error) {
				asked = append(asked, title)
				return answer, nil
			},
			pass:   func(_ context.Context, trigger string) { passes = append(passes, trigger) },
			logger: logger,
		}

		return c, &asked, &passes
	}

	t.Run("asks before syncing", func(t *testing.T) {
		c, asked, passes := newPrompter(false, true)

		c.onChange(context.Background(), []string{"a.md", "b.md"})

		assert.Equal(t, []string{"a.md and 1 more files changed."}, *asked)
		assert.Equal(t, []string{"a.md"}, *passes)
	})

	t.Run("declined waits for the next pass", func(t *testing.T) {
		c, asked, passes := newPrompter(false, false)

		c.onChange(context.Background(), []string{"a.md"})

		assert.Equal(t, []string{"a.md changed."}, *asked)
		assert.Empty(t, *passes)
	})

	t.Run("auto-sync never asks", func(t *testing.T) {
		c, asked, passes := newPrompter(true, false)

		c.onChange(context.Background(), []string{"a.md"})

		assert.Empty(t, *asked)
		assert.Equal(t, []string{"a.md"}, *passes)
	})

	t.Run("prompt error skips the pass", func(t *testing.T) {
		c, _, passes := newPrompter(false, true)
		c.confirm = func(string, string) (bool, error) { return false, errors.New("tty gone") }

		c.onChange(context.Background(), []string{"a.md"})

		assert.Empty(t, *passes)
	})
}

func TestWatchCmd_AutoSyncFlag(t *testing.T) {
	t.Parallel()

	cmd := newWatchCmd()

	f := cmd.Flags().Lookup("auto-sync")
	require.NotNil(t, f)
	assert.Equal(t, "false", f.DefValue)
}

func TestUploadCommands_DescribeInterruptWait(t *testing.T) {
	t.Parallel()

	for _, cmd := range []*cobra.Command{newSyncCmd(), newWatchCmd()} {
		assert.Contains(t, cmd.Long, "sync.poll_timeout", cmd.Name())
		assert.Contains(t, cmd.Long, "Ctrl-C again", cmd.Name())
	}
}

func TestGenerationClient_RetryBudget(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"code": 429, "status": "RESOURCE_EXHAUSTED"}}`))
	}))
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.Backend.BaseURL = srv.URL

	gen := newGeminiClient(cfg, credential.APIKey("k"), slog.New(slog.NewTextHandler(io.Discard, nil)), generationMaxRetries)
	svc := assistant.NewService(gen, staticFinder{"manuals": "fileSearchStores/m"}, nil)

	_, err := svc.Ask(context.Background(), "how?", "manuals")
	require.ErrorIs(t, err, docstore.ErrThrottled)
	assert.Equal(t, int32(3), hits.Load(), "one request plus two retries, no outer loop")
}

type staticFinder map[string]string

func (f staticFinder) Find(_ context.Context, project string) (string, bool, error) {
	id, ok := f[project]
	return id, ok, nil
}

func (f staticFinder) ListProjects(context.Context) ([]string, error) {
	var out []string
	for name := range f {
		out = append(out, name)
	}

	return out, nil
}
