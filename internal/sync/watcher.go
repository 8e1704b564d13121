package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tonimelisma/docsync/internal/docstore"
)

// Watcher error backoff bounds.
const (
	watchErrInitBackoff = time.Second
	watchErrMaxBackoff  = 30 * time.Second
	watchErrBackoffMult = 2
	defaultDebounce     = 2 * time.Second
)

// DeletionOutcome is the terminal state of one deletion event.
type DeletionOutcome int

// Deletion outcomes: NotTracked and Declined leave everything alone,
// Deleted removed the remote document and its metadata, Failed kept the
// metadata after the remote delete failed.
const (
	DeletionNotTracked DeletionOutcome = iota
	DeletionDeclined
	DeletionDeleted
	DeletionFailed
)

func (o DeletionOutcome) String() string {
	switch o {
	case DeletionNotTracked:
		return "not-tracked"
	case DeletionDeclined:
		return "declined"
	case DeletionDeleted:
		return "deleted"
	case DeletionFailed:
		return "failed"
	default:
		return fmt.Sprintf("DeletionOutcome(%d)", int(o))
	}
}

// Confirmer asks whether a deleted file's remote copy should be removed.
type Confirmer interface {
	ConfirmDelete(ctx context.Context, path string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, path string) (bool, error)

// ConfirmDelete implements Confirmer.
func (f ConfirmFunc) ConfirmDelete(ctx context.Context, path string) (bool, error) {
	return f(ctx, path)
}

// TrackedIndex is the metadata view the watcher needs. Satisfied by
// *MetadataStore.
type TrackedIndex interface {
	Lookup(ctx context.Context, project, path string) (*TrackedFile, bool, error)
	Load(ctx context.Context, project string) (map[string]TrackedFile, error)
	Remove(ctx context.Context, project, path string) error
}

// FsWatcher abstracts fsnotify.Watcher for testing.
type FsWatcher interface {
	Add(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

type fsnotifyWatcher struct {
	w *fsnotify.Watcher
}

func (f fsnotifyWatcher) Add(name string) error         { return f.w.Add(name) }
func (f fsnotifyWatcher) Close() error                  { return f.w.Close() }
func (f fsnotifyWatcher) Events() <-chan fsnotify.Event { return f.w.Events }
func (f fsnotifyWatcher) Errors() <-chan error          { return f.w.Errors }

func newFsnotifyWatcher() (FsWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("sync: creating filesystem watcher: %w", err)
	}

	return fsnotifyWatcher{w: w}, nil
}

// WatcherConfig holds the options for NewWatcher.
type WatcherConfig struct {
	Project  string
	Root     string
	Store    DocumentStore
	Metadata TrackedIndex
	Confirm  Confirmer
	Filter   Filter // optional
	Debounce time.Duration
	// OnChange receives the supported paths created or written since the
	// last notification, after Debounce of quiet. It runs on the watcher
	// goroutine, so a sync pass started from it blocks event handling.
	OnChange func(ctx context.Context, paths []string)
	// OnDeletion observes every deletion outcome. Optional.
	OnDeletion func(path string, outcome DeletionOutcome, err error)
	Logger     *slog.Logger
}

// Watcher reacts to local filesystem events for one project: deletions of
// tracked files are propagated to the store after confirmation, and
// changes produce debounced notifications.
type Watcher struct {
	cfg        WatcherConfig
	logger     *slog.Logger
	newWatcher func() (FsWatcher, error)
	sleepFunc  func(ctx context.Context, d time.Duration) error
	pending    map[string]bool
}

// NewWatcher creates a watcher. Call Run to start it.
func NewWatcher(cfg WatcherConfig) *Watcher {
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		cfg:        cfg,
		logger:     logger.With(slog.String("project", cfg.Project)),
		newWatcher: newFsnotifyWatcher,
		sleepFunc:  sleepCtx,
		pending:    make(map[string]bool),
	}
}

// Run watches until ctx is canceled. It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := w.newWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := w.addTree(fw, w.cfg.Root); err != nil {
		return err
	}

	w.logger.Info("watching for changes", slog.String("root", w.cfg.Root))

	return w.loop(ctx, fw)
}

func (w *Watcher) loop(ctx context.Context, fw FsWatcher) error {
	errBackoff := watchErrInitBackoff

	var (
		debounce *time.Timer
		fire     <-chan time.Time
	)

	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events():
			if !ok {
				return nil
			}

			if w.handleEvent(ctx, fw, ev) {
				if debounce == nil {
					debounce = time.NewTimer(w.cfg.Debounce)
				} else {
					debounce.Reset(w.cfg.Debounce)
				}

				fire = debounce.C
			}

			errBackoff = watchErrInitBackoff

		case watchErr, ok := <-fw.Errors():
			if !ok {
				return nil
			}

			w.logger.Warn("filesystem watcher error",
				slog.String("error", watchErr.Error()),
				slog.Duration("backoff", errBackoff),
			)

			if sleepErr := w.sleepFunc(ctx, errBackoff); sleepErr != nil {
				return nil
			}

			errBackoff = min(errBackoff*watchErrBackoffMult, watchErrMaxBackoff)

		case <-fire:
			fire = nil
			w.flushChanges(ctx)
		}
	}
}

// handleEvent processes one fsnotify event. It returns true when a change
// notification should be (re)scheduled.
func (w *Watcher) handleEvent(ctx context.Context, fw FsWatcher, ev fsnotify.Event) bool {
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return false
	}

	rel, ok := RelativeTo(w.cfg.Root, ev.Name)
	if !ok || w.ignored(rel) {
		return false
	}

	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Stat(ev.Name)
		if err != nil {
			return false
		}

		if info.IsDir() {
			if err := w.addTree(fw, ev.Name); err != nil {
				w.logger.Warn("could not watch new directory", slog.String("path", rel), slog.String("error", err.Error()))
			}

			return false
		}

		return w.noteChange(rel)

	case ev.Has(fsnotify.Write):
		return w.noteChange(rel)

	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		w.handleRemoval(ctx, ev.Name, rel)
	}

	return false
}

func (w *Watcher) noteChange(rel string) bool {
	if !IsSupported(rel) {
		return false
	}

	w.pending[rel] = true

	return true
}

func (w *Watcher) flushChanges(ctx context.Context) {
	if len(w.pending) == 0 || w.cfg.OnChange == nil {
		clear(w.pending)
		return
	}

	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}

	sort.Strings(paths)
	clear(w.pending)

	w.logger.Info("changes detected", slog.Int("files", len(paths)))
	w.cfg.OnChange(ctx, paths)
}

// handleRemoval handles a removed file, or every tracked file under a
// removed directory.
func (w *Watcher) handleRemoval(ctx context.Context, abs, rel string) {
	// Editors often save by renaming over the original; if the path is back
	// it was not a deletion.
	if _, err := os.Lstat(abs); err == nil {
		return
	}

	delete(w.pending, rel)

	if _, tracked, err := w.cfg.Metadata.Lookup(ctx, w.cfg.Project, rel); err == nil && tracked {
		w.HandleDeletion(ctx, rel)
		return
	}

	all, err := w.cfg.Metadata.Load(ctx, w.cfg.Project)
	if err != nil {
		w.logger.Warn("could not load metadata", slog.String("error", err.Error()))
		return
	}

	var under []string

	for p := range all {
		if strings.HasPrefix(p, rel+"/") {
			under = append(under, p)
		}
	}

	if len(under) == 0 {
		w.report(rel, DeletionNotTracked, nil)
		return
	}

	sort.Strings(under)

	for _, p := range under {
		w.HandleDeletion(ctx, p)
	}
}

// HandleDeletion runs the deletion state machine for one relative path:
// lookup, confirm, delete remote, remove metadata.
func (w *Watcher) HandleDeletion(ctx context.Context, rel string) DeletionOutcome {
	tf, tracked, err := w.cfg.Metadata.Lookup(ctx, w.cfg.Project, rel)
	if err != nil {
		return w.report(rel, DeletionFailed, err)
	}

	if !tracked {
		return w.report(rel, DeletionNotTracked, nil)
	}

	ok, err := w.cfg.Confirm.ConfirmDelete(ctx, rel)
	if err != nil {
		w.logger.Warn("confirmation failed, keeping remote copy", slog.String("path", rel), slog.String("error", err.Error()))
		return w.report(rel, DeletionDeclined, nil)
	}

	if !ok {
		return w.report(rel, DeletionDeclined, nil)
	}

	if tf.RemoteDocumentID != "" {
		err := w.cfg.Store.DeleteDocument(ctx, tf.RemoteDocumentID, true)
		if err != nil && !docstore.IsNotFound(err) {
			return w.report(rel, DeletionFailed, err)
		}
	}

	if err := w.cfg.Metadata.Remove(ctx, w.cfg.Project, rel); err != nil {
		return w.report(rel, DeletionFailed, err)
	}

	return w.report(rel, DeletionDeleted, nil)
}

func (w *Watcher) report(rel string, outcome DeletionOutcome, err error) DeletionOutcome {
	attrs := []any{slog.String("path", rel), slog.String("outcome", outcome.String())}

	switch {
	case err != nil:
		w.logger.Error("deletion not propagated", append(attrs, slog.String("error", err.Error()))...)
	case outcome == DeletionDeleted:
		w.logger.Info("deleted remote document", attrs...)
	default:
		w.logger.Debug("deletion event", attrs...)
	}

	if w.cfg.OnDeletion != nil {
		w.cfg.OnDeletion(rel, outcome, err)
	}

	return outcome
}

// ignored applies the always-on exclusions plus the configured filter.
func (w *Watcher) ignored(rel string) bool {
	if w.cfg.Filter == nil {
		return false
	}

	// Check every ancestor directory, then the leaf as a file.
	parts := strings.Split(rel, "/")
	for i := 1; i < len(parts); i++ {
		if !w.cfg.Filter.ShouldSync(strings.Join(parts[:i], "/"), true, 0).Included {
			return true
		}
	}

	return !w.cfg.Filter.ShouldSync(rel, false, 0).Included
}

// addTree registers dir and every included subdirectory with the watcher.
func (w *Watcher) addTree(fw FsWatcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}

			return nil
		}

		if !d.IsDir() {
			return nil
		}

		if path != w.cfg.Root {
			if rel, ok := RelativeTo(w.cfg.Root, path); ok && w.cfg.Filter != nil &&
				!w.cfg.Filter.ShouldSync(rel, true, 0).Included {
				return filepath.SkipDir
			}
		}

		if err := fw.Add(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}

			return fmt.Errorf("sync: watching %s: %w", path, err)
		}

		return nil
	})
}
