package sync

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/docsync/internal/docstore"
)

func newTestTeardown(t *testing.T, store DocumentStore, purger ProjectPurger) *Teardown {
	t.Helper()

	td := NewTeardown(store, purger, DefaultTeardownConfig(), testLogger(t))
	td.sleepFunc = noopSleep

	return td
}

type recordingPurger struct{ purged []string }

func (p *recordingPurger) Purge(_ context.Context, project string) error {
	p.purged = append(p.purged, project)
	return nil
}

func TestTeardown_DrainsLargeStore(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	sid := store.addStore("big")

	for i := range 250 {
		store.addDoc(sid, fmt.Sprintf("doc-%03d.md", i))
	}

	store.deleteDelay = time.Millisecond
	// The backend's listing lags: the first delete attempt still says not empty.
	store.deleteStoreErrs = []error{fmt.Errorf("%w: lagging", docstore.ErrStoreNotEmpty)}

	purger := &recordingPurger{}
	report, err := newTestTeardown(t, store, purger).DeleteProject(context.Background(), "big", sid)
	require.NoError(t, err)

	assert.Equal(t, 250, report.DocumentsDeleted)
	assert.Equal(t, 2, report.Attempts)
	assert.LessOrEqual(t, store.maxInFlight, 10, "never more than one chunk in flight")
	assert.Equal(t, []string{"big"}, purger.purged)

	stores, err := store.ListStores(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stores)

	var storeDeletes int

	for _, c := range store.callLog() {
		if c == "delete-store:"+sid {
			storeDeletes++
		}
	}

	assert.Equal(t, 2, storeDeletes)
}

func TestTeardown_EmptyStore(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	sid := store.addStore("empty")

	report, err := newTestTeardown(t, store, nil).DeleteProject(context.Background(), "empty", sid)
	require.NoError(t, err)
	assert.Zero(t, report.DocumentsDeleted)
	assert.Equal(t, []string{"delete-store:" + sid}, store.callLog())
}

func TestTeardown_MissingStoreIsSuccess(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	purger := &recordingPurger{}

	_, err := newTestTeardown(t, store, purger).DeleteProject(context.Background(), "p", "fileSearchStores/gone")
	require.NoError(t, err)
	assert.Equal(t, []string{"p"}, purger.purged)
}

func TestTeardown_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	sid := store.addStore("stuck")

	notEmpty := fmt.Errorf("%w", docstore.ErrStoreNotEmpty)
	store.deleteStoreErrs = []error{notEmpty, notEmpty, notEmpty, notEmpty, notEmpty}

	purger := &recordingPurger{}
	report, err := newTestTeardown(t, store, purger).DeleteProject(context.Background(), "stuck", sid)
	require.ErrorIs(t, err, ErrTeardownExhausted)
	assert.Equal(t, 5, report.Attempts)
	assert.Empty(t, purger.purged, "metadata kept when the store survives")
}

func TestTeardown_StalledDrainStops(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	sid := store.addStore("p")
	id := store.addDoc(sid, "stuck.md")
	store.deleteErr[id] = docstore.ErrForbidden

	_, err := newTestTeardown(t, store, nil).DeleteProject(context.Background(), "p", sid)
	require.ErrorIs(t, err, ErrTeardownExhausted)
}

func TestTeardown_OtherDeleteStoreErrorIsFatal(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	sid := store.addStore("p")
	store.deleteStoreErrs = []error{docstore.ErrForbidden}

	_, err := newTestTeardown(t, store, nil).DeleteProject(context.Background(), "p", sid)
	require.ErrorIs(t, err, docstore.ErrForbidden)
}

func TestTeardown_PurgesMetadataStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newFakeStore()
	sid := store.addStore("p")
	store.addDoc(sid, "a.md")

	meta := openTestMetadata(t)
	require.NoError(t, meta.SetStoreID(ctx, "p", sid))
	require.NoError(t, meta.Save(ctx, "p", map[string]TrackedFile{"a.md": {RelativePath: "a.md"}}))

	_, err := newTestTeardown(t, store, meta).DeleteProject(ctx, "p", sid)
	require.NoError(t, err)

	got, err := meta.Load(ctx, "p")
	require.NoError(t, err)
	assert.Empty(t, got)
}
