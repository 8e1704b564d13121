package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/docsync/internal/docstore"
)

// ErrTeardownExhausted means the store still refused deletion after every
// attempt.
var ErrTeardownExhausted = errors.New("sync: store could not be deleted")

// TeardownConfig paces the drain loop. None of the delays are correctness
// guarantees; they give the backend's listing time to catch up.
type TeardownConfig struct {
	ChunkSize    int
	ChunkPause   time.Duration
	RecheckDelay time.Duration
	RetryDelay   time.Duration
	MaxAttempts  int
}

// DefaultTeardownConfig returns the default pacing: chunks of 10, 200ms
// between chunks, 1s before relisting, 2s between attempts, 5 attempts.
func DefaultTeardownConfig() TeardownConfig {
	return TeardownConfig{
		ChunkSize:    10,
		ChunkPause:   200 * time.Millisecond,
		RecheckDelay: time.Second,
		RetryDelay:   2 * time.Second,
		MaxAttempts:  5,
	}
}

// ProjectPurger removes local metadata for a project. Satisfied by
// *MetadataStore.
type ProjectPurger interface {
	Purge(ctx context.Context, project string) error
}

// TeardownReport summarizes a project deletion.
type TeardownReport struct {
	DocumentsDeleted int
	DrainCycles      int
	Attempts         int
}

// Teardown deletes a project's store and everything in it.
type Teardown struct {
	store     DocumentStore
	purger    ProjectPurger // may be nil
	cfg       TeardownConfig
	logger    *slog.Logger
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewTeardown creates a Teardown. Non-positive config values fall back to
// the defaults.
func NewTeardown(store DocumentStore, purger ProjectPurger, cfg TeardownConfig, logger *slog.Logger) *Teardown {
	def := DefaultTeardownConfig()

	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}

	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}

	return &Teardown{store: store, purger: purger, cfg: cfg, logger: logger, sleepFunc: sleepCtx}
}

// DeleteProject drains the store, deletes it, and purges local metadata.
// A "not empty" refusal restarts the drain after RetryDelay, up to
// MaxAttempts times.
func (t *Teardown) DeleteProject(ctx context.Context, project, storeID string) (*TeardownReport, error) {
	report := &TeardownReport{}

	for attempt := 1; attempt <= t.cfg.MaxAttempts; attempt++ {
		report.Attempts = attempt

		if err := t.drain(ctx, storeID, report); err != nil {
			return report, err
		}

		err := t.store.DeleteStore(ctx, storeID, false)
		if err == nil || docstore.IsNotFound(err) {
			t.logger.Info("store deleted",
				slog.String("store_id", storeID),
				slog.Int("documents", report.DocumentsDeleted),
				slog.Int("attempts", attempt),
			)

			return report, t.purge(ctx, project)
		}

		if !errors.Is(err, docstore.ErrStoreNotEmpty) {
			return report, fmt.Errorf("sync: deleting store %s: %w", storeID, err)
		}

		t.logger.Warn("store still reports documents, retrying",
			slog.String("store_id", storeID),
			slog.Int("attempt", attempt),
			slog.Duration("retry_delay", t.cfg.RetryDelay),
		)

		if err := t.sleepFunc(ctx, t.cfg.RetryDelay); err != nil {
			return report, err
		}
	}

	return report, fmt.Errorf("%w after %d attempts: %s", ErrTeardownExhausted, t.cfg.MaxAttempts, storeID)
}

// drain lists and deletes until a listing comes back empty.
func (t *Teardown) drain(ctx context.Context, storeID string, report *TeardownReport) error {
	stalled := 0

	for {
		docs, err := t.store.ListDocuments(ctx, storeID)
		if err != nil {
			if docstore.IsNotFound(err) {
				return nil
			}

			return fmt.Errorf("sync: listing documents for teardown: %w", err)
		}

		if len(docs) == 0 {
			return nil
		}

		report.DrainCycles++

		deleted, err := t.deleteChunks(ctx, docs)
		if err != nil {
			return err
		}

		report.DocumentsDeleted += deleted

		// A cycle where nothing could be deleted counts against the attempt
		// budget so a persistently failing document cannot loop forever.
		if deleted == 0 {
			stalled++
			if stalled >= t.cfg.MaxAttempts {
				return fmt.Errorf("%w: no progress deleting %d documents", ErrTeardownExhausted, len(docs))
			}
		} else {
			stalled = 0
		}

		if err := t.sleepFunc(ctx, t.cfg.RecheckDelay); err != nil {
			return err
		}
	}
}

// deleteChunks deletes docs in chunks of at most ChunkSize concurrent calls,
// pausing between chunks. Per-document failures are logged; the relisting
// picks them up again.
func (t *Teardown) deleteChunks(ctx context.Context, docs []docstore.Document) (int, error) {
	var deleted atomic.Int64

	for start := 0; start < len(docs); start += t.cfg.ChunkSize {
		end := min(start+t.cfg.ChunkSize, len(docs))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(t.cfg.ChunkSize)

		for _, doc := range docs[start:end] {
			g.Go(func() error {
				err := t.store.DeleteDocument(gctx, doc.ID, true)
				if err == nil || docstore.IsNotFound(err) {
					deleted.Add(1)
					return nil
				}

				t.logger.Warn("could not delete document",
					slog.String("document_id", doc.ID),
					slog.String("error", err.Error()),
				)

				return nil
			})
		}

		_ = g.Wait() //nolint:errcheck // goroutines never return errors

		if ctx.Err() != nil {
			return int(deleted.Load()), ctx.Err()
		}

		t.logger.Debug("teardown chunk done",
			slog.Int("from", start),
			slog.Int("to", end),
			slog.Int64("deleted", deleted.Load()),
		)

		if end < len(docs) {
			if err := t.sleepFunc(ctx, t.cfg.ChunkPause); err != nil {
				return int(deleted.Load()), err
			}
		}
	}

	return int(deleted.Load()), nil
}

func (t *Teardown) purge(ctx context.Context, project string) error {
	if t.purger == nil || project == "" {
		return nil
	}

	if err := t.purger.Purge(ctx, project); err != nil {
		return fmt.Errorf("sync: purging metadata for %s: %w", project, err)
	}

	return nil
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
