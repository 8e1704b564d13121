package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tonimelisma/docsync/internal/docstore"
)

// OperationWaiter drives an import operation to completion. Satisfied by
// *docstore.Poller.
type OperationWaiter interface {
	Wait(ctx context.Context, op *docstore.Operation) (*docstore.Operation, error)
}

// Executor applies the upload entries of a plan strictly one at a time.
// Per entry: Pending -> DeletingStale -> Uploading -> Recorded, or Failed.
// A failing entry never aborts the pass.
type Executor struct {
	store    DocumentStore
	waiter   OperationWaiter
	logger   *slog.Logger
	progress Progress
	skip     func(path string) bool
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(store DocumentStore, waiter OperationWaiter, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{store: store, waiter: waiter, logger: logger, progress: nopProgress{}}
}

// Execute runs the entries in order. Cancellation is honored between
// entries only: an entry that has started runs to its terminal state, and
// every entry not yet started is returned as EntrySkipped so it still
// needs sync next pass. The returned bool reports whether the pass
// stopped early.
func (e *Executor) Execute(ctx context.Context, storeID string, entries []UploadEntry) ([]EntryResult, bool) {
	results := make([]EntryResult, 0, len(entries))

	e.progress.Start(len(entries))
	defer e.progress.Finish()

	for i := range entries {
		if ctx.Err() != nil {
			e.logger.Warn("sync canceled",
				slog.Int("completed", i),
				slog.Int("remaining", len(entries)-i),
			)

			for _, rest := range entries[i:] {
				results = append(results, EntryResult{Path: rest.File.RelativePath, State: EntrySkipped})
			}

			return results, true
		}

		path := entries[i].File.RelativePath

		if e.skip != nil && e.skip(path) {
			e.logger.Warn("skipping suppressed path", slog.String("path", path))
			results = append(results, EntryResult{Path: path, State: EntrySkipped})
			e.progress.Update(path, EntrySkipped)

			continue
		}

		res := e.runEntry(context.WithoutCancel(ctx), storeID, &entries[i])
		results = append(results, res)
	}

	return results, false
}

// runEntry drives one entry through its state machine.
func (e *Executor) runEntry(ctx context.Context, storeID string, entry *UploadEntry) EntryResult {
	path := entry.File.RelativePath
	res := EntryResult{Path: path, State: EntryPending}
	e.progress.Update(path, res.State)

	if len(entry.StaleDuplicates) > 0 {
		e.transition(&res, EntryDeletingStale)

		for _, id := range entry.StaleDuplicates {
			err := e.store.DeleteDocument(ctx, id, true)

			switch {
			case err == nil:
				res.StaleDeleted++
			case docstore.IsNotFound(err):
				e.logger.Debug("stale document already gone", slog.String("path", path), slog.String("document_id", id))
			default:
				e.logger.Warn("could not delete previous version, uploading anyway",
					slog.String("path", path),
					slog.String("document_id", id),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	e.transition(&res, EntryUploading)

	op, err := e.store.UploadDocument(ctx, docstore.UploadRequest{
		StoreID:     storeID,
		Path:        entry.File.AbsPath,
		DisplayName: path,
		MimeType:    entry.File.MimeType,
	})
	if err != nil {
		return e.fail(res, fmt.Errorf("uploading: %w", err))
	}

	op, err = e.waiter.Wait(ctx, op)
	if err != nil {
		return e.fail(res, fmt.Errorf("waiting for import: %w", err))
	}

	res.DocumentID = op.DocumentID
	e.transition(&res, EntryRecorded)

	e.logger.Info("uploaded",
		slog.String("path", path),
		slog.String("reason", entry.Reason.String()),
		slog.String("document_id", op.DocumentID),
	)

	return res
}

func (e *Executor) transition(res *EntryResult, to EntryState) {
	e.logger.Debug("entry transition",
		slog.String("path", res.Path),
		slog.String("from", res.State.String()),
		slog.String("to", to.String()),
	)

	res.State = to
	e.progress.Update(res.Path, to)
}

func (e *Executor) fail(res EntryResult, err error) EntryResult {
	res.Err = err
	e.transition(&res, EntryFailed)

	e.logger.Error("upload failed",
		slog.String("path", res.Path),
		slog.String("error", err.Error()),
	)

	return res
}
