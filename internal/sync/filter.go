package sync

import (
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	gosync "sync"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/tonimelisma/docsync/internal/config"
)

// Editor and download temp files are never synced.
var tempSuffixes = []string{".partial", ".tmp", ".swp", ".crdownload"}

// tempPrefix marks Office and editor lock files (e.g. ~$report.md).
const tempPrefix = "~"

// ExclusionFilter implements Filter with two layers: config patterns
// (skip_dirs, skip_hidden, skip_files, max_file_size, temp files) and
// per-directory gitignore-style marker files.
type ExclusionFilter struct {
	cfg      config.FilterConfig
	logger   *slog.Logger
	root     string
	maxBytes int64

	// markerCache stores parsed marker files per directory (slash form,
	// relative to root). A nil entry means no marker exists there.
	markerCache map[string]*ignore.GitIgnore
	mu          gosync.RWMutex
}

// NewExclusionFilter creates a filter for the given watch root.
func NewExclusionFilter(cfg *config.FilterConfig, root string, logger *slog.Logger) (*ExclusionFilter, error) {
	maxBytes, err := config.ParseSize(cfg.MaxFileSize)
	if err != nil {
		return nil, fmt.Errorf("sync: invalid max_file_size %q: %w", cfg.MaxFileSize, err)
	}

	logger.Debug("initializing exclusion filter",
		slog.String("root", root),
		slog.Any("skip_dirs", cfg.SkipDirs),
		slog.Any("skip_files", cfg.SkipFiles),
		slog.Bool("skip_hidden", cfg.SkipHidden),
		slog.String("ignore_marker", cfg.IgnoreMarker),
	)

	return &ExclusionFilter{
		cfg:         *cfg,
		logger:      logger,
		root:        root,
		maxBytes:    maxBytes,
		markerCache: make(map[string]*ignore.GitIgnore),
	}, nil
}

// ShouldSync evaluates the config layer, then the marker layer. path is
// relative to the watch root, in slash form.
func (f *ExclusionFilter) ShouldSync(relPath string, isDir bool, size int64) FilterResult {
	name := path.Base(relPath)

	if isDir {
		if f.cfg.SkipHidden && strings.HasPrefix(name, ".") {
			return FilterResult{Reason: "hidden directory"}
		}

		if matchesSkipPattern(name, f.cfg.SkipDirs) {
			return FilterResult{Reason: "matches skip_dirs pattern"}
		}
	} else if result := f.checkFile(name, relPath, size); !result.Included {
		return result
	}

	return f.checkMarker(relPath, isDir)
}

func (f *ExclusionFilter) checkFile(name, relPath string, size int64) FilterResult {
	// The project settings file lives in the project root and is never a document.
	if relPath == config.SettingsFileName {
		return FilterResult{Reason: "settings file"}
	}

	if f.cfg.IgnoreMarker != "" && name == f.cfg.IgnoreMarker {
		return FilterResult{Reason: "ignore marker"}
	}

	lower := strings.ToLower(name)
	for _, suffix := range tempSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return FilterResult{Reason: "temporary file"}
		}
	}

	if strings.HasPrefix(name, tempPrefix) {
		return FilterResult{Reason: "temporary file"}
	}

	if matchesSkipPattern(name, f.cfg.SkipFiles) {
		return FilterResult{Reason: "matches skip_files pattern"}
	}

	if f.maxBytes > 0 && size > f.maxBytes {
		f.logger.Debug("path excluded by max_file_size",
			slog.String("path", relPath),
			slog.Int64("size", size),
			slog.Int64("max", f.maxBytes),
		)

		return FilterResult{Reason: "exceeds max_file_size"}
	}

	return FilterResult{Included: true}
}

// checkMarker applies every marker file from the root down to the path's
// parent directory. Patterns are evaluated relative to the marker's
// directory, as git does.
func (f *ExclusionFilter) checkMarker(relPath string, isDir bool) FilterResult {
	if f.cfg.IgnoreMarker == "" {
		return FilterResult{Included: true}
	}

	dir := path.Dir(relPath)
	for _, d := range ancestors(dir) {
		gi := f.loadMarker(d)
		if gi == nil {
			continue
		}

		sub := relPath
		if d != "." {
			sub = strings.TrimPrefix(relPath, d+"/")
		}

		if isDir {
			sub += "/"
		}

		if gi.MatchesPath(sub) {
			f.logger.Debug("path excluded by marker", slog.String("path", relPath), slog.String("dir", d))
			return FilterResult{Reason: "excluded by " + f.cfg.IgnoreMarker}
		}
	}

	return FilterResult{Included: true}
}

// ancestors returns "." followed by each directory prefix down to dir.
func ancestors(dir string) []string {
	out := []string{"."}
	if dir == "." || dir == "" {
		return out
	}

	parts := strings.Split(dir, "/")
	for i := range parts {
		out = append(out, strings.Join(parts[:i+1], "/"))
	}

	return out
}

// loadMarker loads and caches the marker file for a directory.
func (f *ExclusionFilter) loadMarker(dir string) *ignore.GitIgnore {
	f.mu.RLock()
	gi, cached := f.markerCache[dir]
	f.mu.RUnlock()

	if cached {
		return gi
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if gi, cached = f.markerCache[dir]; cached {
		return gi
	}

	markerPath := filepath.Join(f.root, filepath.FromSlash(dir), f.cfg.IgnoreMarker)

	parsed, err := ignore.CompileIgnoreFile(markerPath)
	if err != nil {
		f.markerCache[dir] = nil
		return nil
	}

	f.logger.Debug("loaded ignore marker", slog.String("path", markerPath))
	f.markerCache[dir] = parsed

	return parsed
}

// matchesSkipPattern checks if name matches any of the given glob patterns.
// Comparison is case-insensitive. Malformed patterns are logged and skipped.
func matchesSkipPattern(name string, patterns []string) bool {
	lowerName := strings.ToLower(name)

	for _, pattern := range patterns {
		matched, err := path.Match(strings.ToLower(pattern), lowerName)
		if err != nil {
			slog.Warn("malformed skip pattern", slog.String("pattern", pattern), slog.String("error", err.Error()))
			continue
		}

		if matched {
			return true
		}
	}

	return false
}
