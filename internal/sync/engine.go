package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tonimelisma/docsync/internal/docstore"
)

// EngineConfig holds the options for NewEngine.
type EngineConfig struct {
	Store        DocumentStore // satisfied by *docstore.Client and *docstore.MinioStore
	Metadata     *MetadataStore
	Filter       Filter
	Enumerator   EnumeratorOptions
	PollInterval time.Duration
	PollTimeout  time.Duration
	Scheduler    docstore.Scheduler // optional; defaults to blocking sleeps
	Logger       *slog.Logger
}

// RunOpts holds per-pass options for RunOnce.
type RunOpts struct {
	DryRun   bool
	Progress Progress // optional
	// Watch enables failure suppression: paths that keep failing are
	// skipped until their cooldown passes.
	Watch bool
}

// Engine orchestrates one sync pass: enumerate, load metadata, list remote,
// plan, execute, reconcile, save.
type Engine struct {
	store    DocumentStore
	meta     *MetadataStore
	dir      *Directory
	enum     *Enumerator
	planner  *Planner
	poller   *docstore.Poller
	failures *failureTracker
	logger   *slog.Logger
	nowFunc  func() time.Time
}

// NewEngine wires the pipeline components.
func NewEngine(cfg *EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	poller := docstore.NewPoller(cfg.Store, cfg.PollInterval, cfg.PollTimeout, logger)
	if cfg.Scheduler != nil {
		poller.WithScheduler(cfg.Scheduler)
	}

	return &Engine{
		store:    cfg.Store,
		meta:     cfg.Metadata,
		dir:      NewDirectory(cfg.Store, cfg.Metadata, logger),
		enum:     NewEnumerator(cfg.Filter, cfg.Enumerator, logger),
		planner:  NewPlanner(logger),
		poller:   poller,
		failures: newFailureTracker(logger),
		logger:   logger,
		nowFunc:  time.Now,
	}
}

// Directory exposes the store directory used by the engine.
func (e *Engine) Directory() *Directory {
	return e.dir
}

// RunOnce performs a single pass for project rooted at root. Per-file
// failures are reported in the SyncReport, not as an error. Metadata for
// every success is saved even when ctx is canceled mid-pass.
func (e *Engine) RunOnce(ctx context.Context, project, root string, opts RunOpts) (*SyncReport, error) {
	report := &SyncReport{
		RunID:     uuid.NewString(),
		Project:   project,
		StartedAt: e.nowFunc(),
	}

	logger := e.logger.With(slog.String("run_id", report.RunID), slog.String("project", project))
	logger.Info("sync pass starting", slog.String("root", root), slog.Bool("dry_run", opts.DryRun))

	local, err := e.enum.Enumerate(ctx, root)
	if err != nil {
		return nil, err
	}

	report.LocalFiles = len(local)

	storeID, err := e.resolveStore(ctx, project, opts.DryRun)
	if err != nil {
		return nil, err
	}

	report.StoreID = storeID

	tracked, err := e.meta.Load(ctx, project)
	if err != nil {
		return nil, err
	}

	var remote []RemoteDocument
	if storeID != "" {
		if remote, err = e.dir.ListDocuments(ctx, storeID); err != nil {
			return nil, err
		}
	}

	plan := e.planner.Plan(local, tracked, remote)
	report.Planned = len(plan.ToUpload)
	report.Adopted = len(plan.Adoptions)

	if opts.DryRun {
		report.FinishedAt = e.nowFunc()
		return report, nil
	}

	exec := NewExecutor(e.store, e.poller, logger)
	if opts.Progress != nil {
		exec.progress = opts.Progress
	}

	if opts.Watch {
		exec.skip = e.failures.shouldSkip
	}

	results, canceled := exec.Execute(ctx, storeID, plan.ToUpload)
	report.Canceled = canceled
	e.tally(report, results, opts.Watch)

	if opts.Watch {
		if paused := e.failures.suppressed(); len(paused) > 0 {
			logger.Info("files paused after repeated failures",
				slog.Int("count", len(paused)),
				slog.Any("paths", paused),
			)
		}
	}

	// Persist whatever succeeded even if the caller gave up.
	persistCtx := context.WithoutCancel(ctx)

	relisted := remote
	if len(plan.ToUpload) > 0 {
		if relisted, err = e.dir.ListDocuments(persistCtx, storeID); err != nil {
			logger.Warn("relisting failed, reconciling against the earlier listing",
				slog.String("error", err.Error()),
			)

			relisted = remote
		}
	}

	updated := reconcile(reconcileInput{
		tracked:   tracked,
		local:     local,
		remote:    relisted,
		results:   results,
		adoptions: plan.Adoptions,
	})

	if err := e.meta.Save(persistCtx, project, updated); err != nil {
		return report, err
	}

	if err := e.meta.SetWatchRoot(persistCtx, project, root); err != nil {
		logger.Warn("could not record watch root", slog.String("error", err.Error()))
	}

	report.FinishedAt = e.nowFunc()

	if err := e.meta.RecordRun(persistCtx, report); err != nil {
		logger.Warn("could not record sync run", slog.String("error", err.Error()))
	}

	logger.Info("sync pass complete",
		slog.String("summary", report.Summary()),
		slog.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
	)

	return report, nil
}

// resolveStore finds or creates the project's store. Dry runs never create;
// an absent store yields "".
func (e *Engine) resolveStore(ctx context.Context, project string, dryRun bool) (string, error) {
	if !dryRun {
		return e.dir.GetOrCreate(ctx, project)
	}

	id, _, err := e.dir.Find(ctx, project)
	if err != nil {
		return "", fmt.Errorf("sync: resolving store: %w", err)
	}

	return id, nil
}

func (e *Engine) tally(report *SyncReport, results []EntryResult, watch bool) {
	for _, r := range results {
		report.StaleDeleted += r.StaleDeleted

		switch r.State {
		case EntryRecorded:
			report.Uploaded++

			if watch {
				e.failures.recordSuccess(r.Path)
			}
		case EntryFailed:
			report.Failed++
			report.Errors = append(report.Errors, PathError{Path: r.Path, Err: r.Err})

			if watch {
				e.failures.recordFailure(r.Path, r.Err)
			}
		case EntrySkipped:
			report.Skipped++
		}
	}
}
