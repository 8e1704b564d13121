package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
)

func newProjectsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List the projects that have a store",
		Long: `List every project with a store in the configured backend, together with
the number of files tracked locally for it. Projects known only locally
(for example after their store was deleted elsewhere) are listed too.`,
		Args: cobra.NoArgs,
		RunE: runProjects,
	}
}

// projectRow is one line of `projects` output.
type projectRow struct {
	Name         string `json:"name"`
	Remote       bool   `json:"remote"`
	StoreID      string `json:"store_id,omitempty"`
	TrackedFiles int    `json:"tracked_files"`
}

func runProjects(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	sess, err := NewSession(ctx, cc.Cfg, cc.Logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	remote, err := sess.Directory().ListProjects(ctx)
	if err != nil {
		return err
	}

	local, err := sess.Metadata.Projects(ctx)
	if err != nil {
		return err
	}

	byName := make(map[string]*projectRow)

	for _, name := range remote {
		byName[name] = &projectRow{Name: name, Remote: true}
	}

	for _, p := range local {
		row, ok := byName[p.Name]
		if !ok {
			row = &projectRow{Name: p.Name}
			byName[p.Name] = row
		}

		row.StoreID = p.StoreID
		row.TrackedFiles = p.TrackedFiles
	}

	rows := make([]projectRow, 0, len(byName))
	for _, r := range byName {
		rows = append(rows, *r)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })

	if cc.Flags.JSON {
		return printJSON(os.Stdout, rows)
	}

	if len(rows) == 0 {
		fmt.Println("No projects yet. Run 'docsync init' in a project folder to create one.")
		return nil
	}

	table := make([][]string, 0, len(rows))
	for _, r := range rows {
		where := "remote"
		if !r.Remote {
			where = "local only"
		}

		table = append(table, []string{r.Name, strconv.Itoa(r.TrackedFiles), where})
	}

	printTable(os.Stdout, []string{"PROJECT", "TRACKED", "STORE"}, table)

	return nil
}
