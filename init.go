package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/docsync/internal/config"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [project-dir]",
		Short: "Create document-sync.json for a project",
		Long: `Write document-sync.json into the project directory (default: the current
directory). The project name selects the remote store; the watch location
is the folder whose documents are synced, stored relative to the project
directory when it lies inside it.

Values already present in document-sync.json are kept unless overridden
with --name or --folder. Missing values are prompted for.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runInit,
	}

	cmd.Flags().String("name", "", "project name")
	cmd.Flags().String("folder", "", "folder to sync")
	cmd.Flags().Bool("sync", false, "run a sync pass once the settings are complete")

	return cmd
}

func runInit(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	root := "."
	if len(args) > 0 {
		root = args[0]
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolving project directory: %w", err)
	}

	name, _ := cmd.Flags().GetString("name")
	folder, _ := cmd.Flags().GetString("folder")

	settings, err := setupProject(cmd.Context(), cc, root, name, folder)
	if err != nil {
		return err
	}

	cc.Statusf("Wrote %s (project %q, folder %q)\n",
		filepath.Join(root, config.SettingsFileName), settings.ProjectName, settings.WatchLocation)

	syncNow, _ := cmd.Flags().GetBool("sync")
	if !syncNow {
		syncNow, err = confirm("Sync now?", "Upload the folder's documents to the project store")
		if err != nil {
			return err
		}
	}

	if !syncNow {
		return nil
	}

	pc, err := findProjectAt(root, "")
	if err != nil {
		return err
	}

	return syncProject(cmd.Context(), cc, pc, syncOptions{})
}

// setupProject fills in whatever document-sync.json in root is missing,
// from the given values or by prompting, and saves it.
func setupProject(ctx context.Context, cc *CLIContext, root, name, folder string) (*config.Settings, error) {
	settings, err := config.LoadSettings(root)
	if err != nil {
		return nil, err
	}

	if name != "" {
		settings.ProjectName = name
	}

	if settings.ProjectName == "" {
		settings.ProjectName, err = promptProjectName(existingProjects(ctx, cc), filepath.Base(root))
		if err != nil {
			return nil, fmt.Errorf("project name: %w", err)
		}
	}

	if folder != "" {
		settings.WatchLocation = folder
	}

	if settings.WatchLocation == "" {
		folder, err = promptText("Folder to sync", "docs", ".", false)
		if err != nil {
			return nil, fmt.Errorf("watch location: %w", err)
		}

		settings.WatchLocation = folder
	}

	abs := settings.WatchLocation
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, abs)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("watch location %s: %w", abs, err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", config.ErrNotDirectory, abs)
	}

	settings.WatchLocation = config.RelativeWatchLocation(root, filepath.Clean(abs))

	if err := config.SaveSettings(root, settings); err != nil {
		return nil, err
	}

	cc.Logger.Info("project settings saved",
		"root", root,
		"project", settings.ProjectName,
		"watch_location", settings.WatchLocation,
	)

	return settings, nil
}

// existingProjects lists remote store names to offer during setup. Any
// failure (no credential yet, offline) just means no suggestions.
func existingProjects(ctx context.Context, cc *CLIContext) []string {
	if !isInteractive() {
		return nil
	}

	sess, err := NewSession(ctx, cc.Cfg, cc.Logger)
	if err != nil {
		cc.Logger.Debug("not offering existing projects", "error", err)
		return nil
	}
	defer sess.Close()

	names, err := sess.Directory().ListProjects(ctx)
	if err != nil {
		cc.Logger.Debug("listing projects failed", "error", err)
		return nil
	}

	return names
}

// findProjectAt is findProject rooted at an explicit settings directory.
func findProjectAt(root, explicit string) (*projectContext, error) {
	settings, err := config.LoadSettings(root)
	if err != nil {
		return nil, err
	}

	pc := &projectContext{Name: settings.ProjectName, Root: root, Settings: settings}
	if explicit != "" {
		pc.Name = explicit
	}

	if pc.Name == "" {
		return pc, config.ErrNoProject
	}

	pc.WatchRoot, err = settings.ResolveWatchRoot(root)

	return pc, err
}

// findOrSetupProject locates the project and, in an interactive session,
// prompts for whatever the settings file is missing.
func findOrSetupProject(ctx context.Context, cc *CLIContext) (*projectContext, error) {
	pc, err := findProject(cc.Flags.Project)
	if err == nil {
		return pc, nil
	}

	incomplete := errors.Is(err, config.ErrNoProject) || errors.Is(err, config.ErrNoWatchRoot)
	if pc == nil || !incomplete || !isInteractive() {
		return nil, err
	}

	if _, err := setupProject(ctx, cc, pc.Root, cc.Flags.Project, ""); err != nil {
		return nil, err
	}

	return findProjectAt(pc.Root, cc.Flags.Project)
}
