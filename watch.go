package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/docsync/internal/config"
	"github.com/tonimelisma/docsync/internal/sync"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the project store current while files change",
		Long: `Run an initial sync pass, then watch the folder. Once the folder has been
quiet for the debounce interval, created and modified documents prompt for
a new pass (--auto-sync runs it without asking; without a terminal the
changes wait for the next pass). Deleting a tracked file asks whether its
document should be removed from the store as well (--yes removes without
asking).

Paths that keep failing are skipped for a while instead of being retried
on every pass. Stop with Ctrl-C. An upload already in progress still waits
for its import to finish, up to sync.poll_timeout; press Ctrl-C again to
exit at once.`,
		RunE: runWatch,
	}

	cmd.Flags().BoolP("yes", "y", false, "remove deleted files from the store without asking")
	cmd.Flags().Bool("no-initial-sync", false, "skip the sync pass at startup")
	cmd.Flags().Bool("auto-sync", false, "sync changed files without asking")

	return cmd
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := shutdownContext(cmd.Context(), cc.Logger, "the current upload")

	pc, err := findOrSetupProject(ctx, cc)
	if err != nil {
		return err
	}

	release, err := acquireProjectLock(config.LockPath(cc.Cfg.DataDir, pc.Name))
	if err != nil {
		return err
	}
	defer release()

	sess, err := NewSession(ctx, cc.Cfg, cc.Logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	engine, err := sess.Engine(pc.WatchRoot)
	if err != nil {
		return err
	}

	filter, err := sess.Filter(pc.WatchRoot)
	if err != nil {
		return err
	}

	pass := func(ctx context.Context, trigger string) {
		cc.Logger.Info("sync pass triggered", slog.String("trigger", trigger))

		report, err := engine.RunOnce(ctx, pc.Name, pc.WatchRoot, sync.RunOpts{Watch: true})
		if err != nil {
			cc.Logger.Error("sync pass failed", slog.String("error", err.Error()))
			return
		}

		if err := printSyncReport(cc, report, false); err != nil && !errors.Is(err, errSyncIncomplete) {
			cc.Logger.Warn("printing report", slog.String("error", err.Error()))
		}
	}

	if skip, _ := cmd.Flags().GetBool("no-initial-sync"); !skip {
		pass(ctx, "startup")
	}

	assumeYes, _ := cmd.Flags().GetBool("yes")
	autoSync, _ := cmd.Flags().GetBool("auto-sync")

	changes := &changePrompter{autoSync: autoSync, confirm: confirm, pass: pass, logger: cc.Logger}

	watcher := sync.NewWatcher(sync.WatcherConfig{
		Project:  pc.Name,
		Root:     pc.WatchRoot,
		Store:    sess.Store,
		Metadata: sess.Metadata,
		Confirm:  deletionConfirmer{assumeYes: assumeYes},
		Filter:   filter,
		Debounce: cc.Cfg.ParseDurations().Debounce,
		OnChange: changes.onChange,
		OnDeletion: func(relPath string, outcome sync.DeletionOutcome, err error) {
			switch outcome {
			case sync.DeletionDeleted:
				cc.Statusf("Removed %s from project %q\n", relPath, pc.Name)
			case sync.DeletionFailed:
				msg := "could not remove " + relPath + " from the store"
				if err != nil {
					msg += ": " + err.Error()
				}

				os.Stderr.WriteString(warnStyle.Render(msg) + "\n")
			case sync.DeletionNotTracked, sync.DeletionDeclined:
			}
		},
		Logger: cc.Logger,
	})

	cc.Statusf("Watching %s (project %q). Press Ctrl-C to stop.\n", pc.WatchRoot, pc.Name)

	if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	cc.Statusf("Stopped watching.\n")

	return nil
}

// changePrompter decides whether a batch of changed files starts a pass.
type changePrompter struct {
	autoSync bool
	confirm  func(title, description string) (bool, error)
	pass     func(ctx context.Context, trigger string)
	logger   *slog.Logger
}

func (c *changePrompter) onChange(ctx context.Context, paths []string) {
	if len(paths) == 0 {
		return
	}

	if !c.autoSync {
		ok, err := c.confirm(changeTitle(paths), "Sync now?")
		if err != nil {
			c.logger.Warn("sync prompt failed", slog.String("error", err.Error()))
			return
		}

		if !ok {
			c.logger.Info("sync postponed", slog.Int("changed", len(paths)))
			return
		}
	}

	c.pass(ctx, paths[0])
}

func changeTitle(paths []string) string {
	if len(paths) == 1 {
		return paths[0] + " changed."
	}

	return fmt.Sprintf("%s and %d more files changed.", paths[0], len(paths)-1)
}
