package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/docsync/internal/config"
	"github.com/tonimelisma/docsync/internal/sync"
)

// Run states shown in the status table.
const (
	runStateOK       = "ok"
	runStateFailures = "failures"
	runStateCanceled = "canceled"
)

// recentRunLimit is how many past passes status shows.
const recentRunLimit = 5

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the project's tracked files and recent sync passes",
		Long: `Display the local view of the current project: its cached store id,
watch location, number of tracked files, whether a sync or watch is
running, and the most recent sync passes.

With --json, print the tracked-file metadata as a JSON mapping from
relative path to {mtime, documentName}. --export writes the same mapping
to a file. Status reads local state only and never contacts the store.`,
		RunE: runStatus,
	}

	cmd.Flags().String("export", "", "write the tracked-file metadata to this JSON file")

	return cmd
}

// statusOutput is the view printed by status.
type statusOutput struct {
	Project      string
	StoreID      string
	WatchRoot    string
	TrackedFiles int
	RunningPID   int
	Runs         []sync.RunRecord
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	project, err := resolveProjectName(cc.Flags.Project)
	if err != nil {
		return err
	}

	meta, err := sync.OpenMetadataStore(ctx, config.MetadataDBPath(cc.Cfg.DataDir), cc.Logger)
	if err != nil {
		return err
	}
	defer meta.Close()

	if exportPath, _ := cmd.Flags().GetString("export"); exportPath != "" {
		if err := meta.ExportFile(ctx, project, exportPath); err != nil {
			return err
		}

		cc.Statusf("Exported metadata for %q to %s\n", project, exportPath)

		return nil
	}

	if cc.Flags.JSON {
		return meta.Export(ctx, project, os.Stdout)
	}

	out, err := buildStatus(ctx, cc, meta, project)
	if err != nil {
		return err
	}

	printStatusText(out)

	return nil
}

func buildStatus(ctx context.Context, cc *CLIContext, meta *sync.MetadataStore, project string) (*statusOutput, error) {
	out := &statusOutput{Project: project}

	projects, err := meta.Projects(ctx)
	if err != nil {
		return nil, err
	}

	for _, p := range projects {
		if p.Name == project {
			out.StoreID = p.StoreID
			out.WatchRoot = p.WatchRoot
			out.TrackedFiles = p.TrackedFiles
		}
	}

	out.Runs, err = meta.RecentRuns(ctx, project, recentRunLimit)
	if err != nil {
		return nil, err
	}

	out.RunningPID = lockHolder(config.LockPath(cc.Cfg.DataDir, project))

	return out, nil
}

func runState(r sync.RunRecord) string {
	switch {
	case r.Canceled:
		return runStateCanceled
	case r.Failed > 0:
		return runStateFailures
	default:
		return runStateOK
	}
}

func printStatusText(s *statusOutput) {
	orUnset := func(v string) string {
		if v == "" {
			return "(not synced yet)"
		}

		return v
	}

	fmt.Printf("Project:  %s\n", s.Project)
	fmt.Printf("Store:    %s\n", orUnset(s.StoreID))
	fmt.Printf("Folder:   %s\n", orUnset(s.WatchRoot))
	fmt.Printf("Tracked:  %d files\n", s.TrackedFiles)

	if s.RunningPID > 0 {
		fmt.Printf("Running:  yes (pid %d)\n", s.RunningPID)
	}

	if len(s.Runs) == 0 {
		return
	}

	fmt.Println()

	rows := make([][]string, 0, len(s.Runs))
	for _, r := range s.Runs {
		rows = append(rows, []string{
			formatTime(r.StartedAt),
			r.FinishedAt.Sub(r.StartedAt).Round(100 * time.Millisecond).String(),
			strconv.Itoa(r.Uploaded) + "/" + strconv.Itoa(r.Planned),
			strconv.Itoa(r.Adopted),
			strconv.Itoa(r.Failed),
			runState(r),
		})
	}

	printTable(os.Stdout, []string{"STARTED", "DURATION", "UPLOADED", "ADOPTED", "FAILED", "STATE"}, rows)
}
