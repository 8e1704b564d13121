package sync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/docsync/internal/docstore"
)

// testLogger returns a debug-level logger that writes to t.Log.
func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(&testLogWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// testLogWriter adapts testing.T to io.Writer for slog.
type testLogWriter struct {
	t *testing.T
}

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))

	return len(p), nil
}

func noopSleep(context.Context, time.Duration) error { return nil }

// fakeStore is an in-memory DocumentStore that records every mutating call
// in order.
type fakeStore struct {
	mu     gosync.Mutex
	stores []docstore.Store
	docs   map[string][]docstore.Document
	calls  []string
	nextID int

	uploadErr       map[string]error // by display name
	deleteErr       map[string]error // by document id
	deleteStoreErrs []error          // consumed one per DeleteStore call
	listErr         error
	// hidden document ids are omitted from listings, simulating lag.
	hidden map[string]bool
	// pendingOps makes uploads return unfinished operations that complete
	// on the first GetOperation.
	pendingOps bool
	ops        map[string]*docstore.Operation

	onUpload func(req docstore.UploadRequest)

	deleteDelay time.Duration
	inFlight    int
	maxInFlight int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:      make(map[string][]docstore.Document),
		uploadErr: make(map[string]error),
		deleteErr: make(map[string]error),
		hidden:    make(map[string]bool),
		ops:       make(map[string]*docstore.Operation),
	}
}

func (f *fakeStore) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeStore) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.calls...)
}

// addStore seeds a store and returns its id.
func (f *fakeStore) addStore(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	id := fmt.Sprintf("fileSearchStores/s%d", f.nextID)
	f.stores = append(f.stores, docstore.Store{ID: id, DisplayName: name})

	return id
}

// addDoc seeds a document and returns its id.
func (f *fakeStore) addDoc(storeID, name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	id := fmt.Sprintf("%s/documents/d%d", storeID, f.nextID)
	f.docs[storeID] = append(f.docs[storeID], docstore.Document{ID: id, DisplayName: name})

	return id
}

func (f *fakeStore) docCount(storeID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.docs[storeID])
}

func (f *fakeStore) docNames(storeID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var names []string
	for _, d := range f.docs[storeID] {
		names = append(names, d.DisplayName)
	}

	sort.Strings(names)

	return names
}

func (f *fakeStore) ListStores(context.Context) ([]docstore.Store, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]docstore.Store(nil), f.stores...), nil
}

func (f *fakeStore) CreateStore(_ context.Context, displayName string) (*docstore.Store, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	s := docstore.Store{ID: fmt.Sprintf("fileSearchStores/s%d", f.nextID), DisplayName: displayName}
	f.stores = append(f.stores, s)
	f.record("create-store:%s", displayName)

	return &s, nil
}

func (f *fakeStore) ListDocuments(_ context.Context, storeID string) ([]docstore.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.listErr != nil {
		return nil, f.listErr
	}

	var out []docstore.Document

	for _, d := range f.docs[storeID] {
		if !f.hidden[d.ID] {
			out = append(out, d)
		}
	}

	return out, nil
}

func (f *fakeStore) UploadDocument(_ context.Context, req docstore.UploadRequest) (*docstore.Operation, error) {
	if f.onUpload != nil {
		f.onUpload(req)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("upload:%s", req.DisplayName)

	if err := f.uploadErr[req.DisplayName]; err != nil {
		return nil, err
	}

	f.nextID++
	id := fmt.Sprintf("%s/documents/d%d", req.StoreID, f.nextID)
	f.docs[req.StoreID] = append(f.docs[req.StoreID], docstore.Document{
		ID:          id,
		DisplayName: req.DisplayName,
		MimeType:    req.MimeType,
	})

	op := &docstore.Operation{Name: fmt.Sprintf("operations/o%d", f.nextID), Done: true, DocumentID: id}
	if f.pendingOps {
		f.ops[op.Name] = op
		return &docstore.Operation{Name: op.Name}, nil
	}

	return op, nil
}

func (f *fakeStore) GetOperation(_ context.Context, name string) (*docstore.Operation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	op, ok := f.ops[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", docstore.ErrNotFound, name)
	}

	return op, nil
}

func (f *fakeStore) DeleteDocument(_ context.Context, documentID string, _ bool) error {
	f.mu.Lock()
	f.inFlight++
	f.maxInFlight = max(f.maxInFlight, f.inFlight)
	f.record("delete:%s", documentID)
	f.mu.Unlock()

	if f.deleteDelay > 0 {
		time.Sleep(f.deleteDelay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.inFlight--

	if err := f.deleteErr[documentID]; err != nil {
		return err
	}

	for storeID, docs := range f.docs {
		for i := range docs {
			if docs[i].ID == documentID {
				f.docs[storeID] = append(docs[:i:i], docs[i+1:]...)
				return nil
			}
		}
	}

	return fmt.Errorf("%w: %s", docstore.ErrNotFound, documentID)
}

func (f *fakeStore) DeleteStore(_ context.Context, storeID string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("delete-store:%s", storeID)

	if len(f.deleteStoreErrs) > 0 {
		err := f.deleteStoreErrs[0]
		f.deleteStoreErrs = f.deleteStoreErrs[1:]

		if err != nil {
			return err
		}
	}

	if !force && len(f.docs[storeID]) > 0 {
		return fmt.Errorf("%w: %s", docstore.ErrStoreNotEmpty, storeID)
	}

	for i := range f.stores {
		if f.stores[i].ID == storeID {
			f.stores = append(f.stores[:i:i], f.stores[i+1:]...)
			delete(f.docs, storeID)

			return nil
		}
	}

	return fmt.Errorf("%w: %s", docstore.ErrNotFound, storeID)
}

// writeFile creates root/rel with content and sets its mtime.
func writeFile(t *testing.T, root, rel, content string, mtime time.Time) string {
	t.Helper()

	abs := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))

	if !mtime.IsZero() {
		require.NoError(t, os.Chtimes(abs, mtime, mtime))
	}

	return abs
}

// openTestMetadata opens a metadata store in a temp directory.
func openTestMetadata(t *testing.T) *MetadataStore {
	t.Helper()

	m, err := OpenMetadataStore(context.Background(), filepath.Join(t.TempDir(), "metadata.db"), testLogger(t))
	require.NoError(t, err)

	t.Cleanup(func() { m.Close() })

	return m
}

func localFile(rel string, mtime int64) LocalFile {
	mt, _ := MimeTypeFor(rel)
	return LocalFile{RelativePath: rel, AbsPath: "/root/" + rel, ModifiedAtMillis: mtime, MimeType: mt}
}

// doneWaiter completes any operation immediately.
type doneWaiter struct{}

func (doneWaiter) Wait(_ context.Context, op *docstore.Operation) (*docstore.Operation, error) {
	return op, nil
}
