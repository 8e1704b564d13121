package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/charmbracelet/lipgloss"

	"github.com/tonimelisma/docsync/internal/docstore"
	"github.com/tonimelisma/docsync/internal/sync"
)

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(quiet bool, format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// Statusf prints a status message to stderr unless quiet mode is set.
func (cc *CLIContext) Statusf(format string, args ...any) {
	statusf(cc.Flags.Quiet, format, args...)
}

// Size unit constants for human-readable formatting.
const (
	sizeKB = 1024
	sizeMB = 1024 * 1024
	sizeGB = 1024 * 1024 * 1024
)

// formatSize returns a human-readable size string (e.g. "1.2 MB").
func formatSize(bytes int64) string {
	switch {
	case bytes >= sizeGB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(sizeGB))
	case bytes >= sizeMB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(sizeMB))
	case bytes >= sizeKB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(sizeKB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// formatTime returns a compact timestamp for display. The zero time is
// shown as "never".
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	if t.Year() == time.Now().Year() {
		return t.Format("Jan _2 15:04")
	}

	return t.Format("Jan _2  2006")
}

// printTable writes aligned columns to the given writer.
// headers and each row must have the same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}

// Styles for rendered answers. lipgloss drops the colors on its own when
// the output is not a terminal.
var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	sourceStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

// renderAnswer formats an answer with a de-duplicated list of its sources.
func renderAnswer(text string, citations []docstore.Citation) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(text))

	seen := make(map[string]bool)

	var sources []string

	for _, c := range citations {
		name := c.Title
		if name == "" {
			name = path.Base(c.URI)
		}

		if name == "" || name == "." || seen[name] {
			continue
		}

		seen[name] = true
		sources = append(sources, name)
	}

	if len(sources) > 0 {
		sb.WriteString("\n\n")
		sb.WriteString(headingStyle.Render("Sources"))

		for _, s := range sources {
			sb.WriteString("\n")
			sb.WriteString(sourceStyle.Render("  - " + s))
		}
	}

	return sb.String()
}

// progressBar renders executor progress on stderr. It implements
// sync.Progress.
type progressBar struct {
	out io.Writer
	bar *pb.ProgressBar
}

const progressTemplate = `{{string . "prefix"}} {{counters . }} {{bar . }} {{percent . }} {{string . "file"}}`

func newProgressBar(out io.Writer) *progressBar {
	return &progressBar{out: out}
}

func (p *progressBar) Start(total int) {
	p.bar = pb.New(total)
	p.bar.SetWriter(p.out)
	p.bar.SetTemplate(progressTemplate)
	p.bar.Set("prefix", "Uploading")
	p.bar.Start()
}

func (p *progressBar) Update(relPath string, state sync.EntryState) {
	if p.bar == nil {
		return
	}

	switch state {
	case sync.EntryUploading, sync.EntryDeletingStale:
		p.bar.Set("file", path.Base(relPath))
	case sync.EntryRecorded, sync.EntryFailed, sync.EntrySkipped:
		p.bar.Increment()
	case sync.EntryPending:
	}
}

func (p *progressBar) Finish() {
	if p.bar != nil {
		p.bar.Set("file", "")
		p.bar.Finish()
	}
}
