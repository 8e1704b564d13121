package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/docsync/internal/config"
	"github.com/tonimelisma/docsync/internal/sync"
)

// errSyncIncomplete marks a pass that finished with per-file failures.
var errSyncIncomplete = errors.New("sync finished with failures")

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Upload new and changed documents to the project store",
		Long: `Run one sync pass: enumerate the watch location, compare it with the
metadata from the previous pass and the store's document listing, replace
documents whose files changed, upload new files, and adopt documents that
are already in the store under the same name.

Documents whose files were deleted locally are left alone; use
'docsync watch' to propagate deletions. Use --dry-run to preview.

Ctrl-C stops after the current upload. That upload still waits for its
import to finish, up to sync.poll_timeout; press Ctrl-C again to exit at
once. Files not yet uploaded are picked up by the next pass.`,
		RunE: runSync,
	}

	cmd.Flags().Bool("dry-run", false, "show what would be uploaded without changing anything")

	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := shutdownContext(cmd.Context(), cc.Logger, "the current upload")

	pc, err := findOrSetupProject(ctx, cc)
	if err != nil {
		return err
	}

	dryRun, _ := cmd.Flags().GetBool("dry-run")

	return syncProject(ctx, cc, pc, syncOptions{dryRun: dryRun})
}

type syncOptions struct {
	dryRun bool
}

// syncProject takes the project lock, runs one pass, and prints the result.
func syncProject(ctx context.Context, cc *CLIContext, pc *projectContext, opts syncOptions) error {
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

	runOpts := sync.RunOpts{DryRun: opts.dryRun}
	if !cc.Flags.Quiet && !cc.Flags.JSON && isTerminal(os.Stderr) {
		runOpts.Progress = newProgressBar(os.Stderr)
	}

	cc.Statusf("Syncing %s into project %q\n", pc.WatchRoot, pc.Name)

	report, err := engine.RunOnce(ctx, pc.Name, pc.WatchRoot, runOpts)
	if err != nil {
		return fmt.Errorf("sync %s: %w", pc.Name, err)
	}

	return printSyncReport(cc, report, opts.dryRun)
}

// syncReportJSON is the JSON schema for `sync --json`.
type syncReportJSON struct {
	RunID        string          `json:"run_id"`
	Project      string          `json:"project"`
	StoreID      string          `json:"store_id,omitempty"`
	DryRun       bool            `json:"dry_run"`
	LocalFiles   int             `json:"local_files"`
	Planned      int             `json:"planned"`
	Uploaded     int             `json:"uploaded"`
	Adopted      int             `json:"adopted"`
	StaleDeleted int             `json:"stale_deleted"`
	Skipped      int             `json:"skipped"`
	Failed       int             `json:"failed"`
	Canceled     bool            `json:"canceled"`
	Errors       []syncErrorJSON `json:"errors,omitempty"`
}

type syncErrorJSON struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

func printSyncReport(cc *CLIContext, r *sync.SyncReport, dryRun bool) error {
	if cc.Flags.JSON {
		out := syncReportJSON{
			RunID:        r.RunID,
			Project:      r.Project,
			StoreID:      r.StoreID,
			DryRun:       dryRun,
			LocalFiles:   r.LocalFiles,
			Planned:      r.Planned,
			Uploaded:     r.Uploaded,
			Adopted:      r.Adopted,
			StaleDeleted: r.StaleDeleted,
			Skipped:      r.Skipped,
			Failed:       r.Failed,
			Canceled:     r.Canceled,
		}

		for _, e := range r.Errors {
			out.Errors = append(out.Errors, syncErrorJSON{Path: e.Path, Error: e.Err.Error()})
		}

		if err := printJSON(os.Stdout, out); err != nil {
			return err
		}
	} else {
		printSyncText(cc, r, dryRun)
	}

	if r.Failed > 0 {
		return fmt.Errorf("%w: %d of %d files failed", errSyncIncomplete, r.Failed, r.Planned)
	}

	return nil
}

func printSyncText(cc *CLIContext, r *sync.SyncReport, dryRun bool) {
	if dryRun {
		cc.Statusf("Dry run: %d of %d files would be uploaded, %d adopted\n", r.Planned, r.LocalFiles, r.Adopted)
		return
	}

	for _, e := range r.Errors {
		fmt.Fprintln(os.Stderr, warnStyle.Render(fmt.Sprintf("  failed: %s: %v", e.Path, e.Err)))
	}

	cc.Statusf("Sync complete: %s\n", r.Summary())
}
