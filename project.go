package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/docsync/internal/config"
	"github.com/tonimelisma/docsync/internal/sync"
)

func newProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage a project's store and local metadata",
	}

	cmd.AddCommand(newProjectDeleteCmd())
	cmd.AddCommand(newProjectImportCmd())

	return cmd
}

func newProjectDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete [project]",
		Short: "Delete a project's store, its documents, and its local metadata",
		Long: `Delete every document in the project's store, then the store itself, then
the local metadata. The store's listing can lag behind deletions, so the
documents are drained in chunks and re-listed until the store reports
empty; the pacing is set in the [teardown] config section.

Local files are never touched.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runProjectDelete,
	}

	cmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")

	return cmd
}

func runProjectDelete(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := shutdownContext(cmd.Context(), cc.Logger, "the current delete chunk")

	explicit := cc.Flags.Project
	if len(args) > 0 {
		explicit = args[0]
	}

	project, err := resolveProjectName(explicit)
	if err != nil {
		return err
	}

	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		ok, err := confirm(
			fmt.Sprintf("Delete project %q?", project),
			"Every document in its store is removed. Local files are kept.",
		)
		if err != nil {
			return err
		}

		if !ok {
			return fmt.Errorf("not deleting %q: not confirmed (use --yes in scripts)", project)
		}
	}

	release, err := acquireProjectLock(config.LockPath(cc.Cfg.DataDir, project))
	if err != nil {
		return err
	}
	defer release()

	sess, err := NewSession(ctx, cc.Cfg, cc.Logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	return deleteProject(ctx, cc, sess, project)
}

func deleteProject(ctx context.Context, cc *CLIContext, sess *Session, project string) error {
	storeID, found, err := sess.Directory().Find(ctx, project)
	if err != nil {
		return err
	}

	if !found {
		if err := sess.Metadata.Purge(ctx, project); err != nil {
			return err
		}

		cc.Statusf("Project %q has no store; cleared its local metadata.\n", project)

		return nil
	}

	cc.Statusf("Deleting store %s for project %q...\n", storeID, project)

	report, err := sess.Teardown().DeleteProject(ctx, project, storeID)
	if err != nil {
		if report != nil {
			return fmt.Errorf("deleting %q after %d attempts (%d documents removed): %w",
				project, report.Attempts, report.DocumentsDeleted, err)
		}

		return fmt.Errorf("deleting %q: %w", project, err)
	}

	cc.Statusf("Deleted project %q (%d documents).\n", project, report.DocumentsDeleted)

	return nil
}

func newProjectImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <metadata.json>",
		Short: "Replace a project's tracked-file metadata from a JSON export",
		Long: `Load tracked-file metadata from a JSON mapping of relative path to
{mtime, documentName}, as written by 'docsync status --export'. The
project's existing metadata is replaced. Use it to move a project to a new
machine without re-uploading everything.`,
		Args: cobra.ExactArgs(1),
		RunE: runProjectImport,
	}
}

func runProjectImport(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	project, err := resolveProjectName(cc.Flags.Project)
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening %s: %w", args[0], err)
	}
	defer f.Close()

	release, err := acquireProjectLock(config.LockPath(cc.Cfg.DataDir, project))
	if err != nil {
		return err
	}
	defer release()

	meta, err := sync.OpenMetadataStore(ctx, config.MetadataDBPath(cc.Cfg.DataDir), cc.Logger)
	if err != nil {
		return err
	}
	defer meta.Close()

	if err := meta.Import(ctx, project, f); err != nil {
		return err
	}

	cc.Statusf("Imported metadata for %q from %s\n", project, args[0])

	return nil
}
