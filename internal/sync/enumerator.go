package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// defaultMaxDepth bounds directory recursion when following symlinks.
const defaultMaxDepth = 64

// EnumeratorOptions configures an Enumerator.
type EnumeratorOptions struct {
	FollowSymlinks bool
	MaxDepth       int
	VerifyContent  bool
}

// Enumerator walks a watch root and yields the supported documents in it.
// Every call is a fresh full walk; nothing is cached between calls.
type Enumerator struct {
	filter Filter
	opts   EnumeratorOptions
	logger *slog.Logger
}

// NewEnumerator creates an enumerator. A nil filter includes everything
// with a supported extension.
func NewEnumerator(filter Filter, opts EnumeratorOptions, logger *slog.Logger) *Enumerator {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = defaultMaxDepth
	}

	return &Enumerator{filter: filter, opts: opts, logger: logger}
}

// walkState is per-call traversal state.
type walkState struct {
	root    string
	visited map[string]bool // resolved real directory paths
	files   []LocalFile
}

// Enumerate returns every supported file under root, sorted by relative path.
// An empty tree yields an empty slice and no error.
func (e *Enumerator) Enumerate(ctx context.Context, root string) ([]LocalFile, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("sync: watch root %s: %w", root, err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("sync: watch root %s is not a directory", root)
	}

	ws := &walkState{root: root, visited: make(map[string]bool)}

	if real, err := filepath.EvalSymlinks(root); err == nil {
		ws.visited[real] = true
	}

	if err := e.walkDir(ctx, ws, "", "", 0); err != nil {
		return nil, err
	}

	sort.Slice(ws.files, func(i, j int) bool { return ws.files[i].RelativePath < ws.files[j].RelativePath })

	e.logger.Debug("enumerated local files", slog.String("root", root), slog.Int("count", len(ws.files)))

	return ws.files, nil
}

// walkDir reads one directory. fsRel uses on-disk names for I/O; rel is the
// NFC-normalized slash path used as the join key.
func (e *Enumerator) walkDir(ctx context.Context, ws *walkState, fsRel, rel string, depth int) error {
	fullPath := filepath.Join(ws.root, fsRel)

	entries, err := os.ReadDir(fullPath)
	if err != nil {
		if depth == 0 {
			return fmt.Errorf("sync: reading directory %s: %w", fullPath, err)
		}

		e.logger.Warn("cannot read directory, skipping",
			slog.String("path", rel),
			slog.String("error", err.Error()),
		)

		return nil
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := e.processEntry(ctx, ws, fsRel, rel, entry, depth); err != nil {
			return err
		}
	}

	return nil
}

func (e *Enumerator) processEntry(
	ctx context.Context, ws *walkState, fsParent, parent string, entry os.DirEntry, depth int,
) error {
	name := entry.Name()
	if !utf8.ValidString(name) {
		e.logger.Warn("invalid UTF-8 filename, skipping", slog.String("parent", parent))
		return nil
	}

	fsRel := filepath.Join(fsParent, name)
	rel := NormalizePath(joinRelPath(parent, name))

	info, ok := e.resolveEntry(ws, fsRel, rel, entry)
	if !ok {
		return nil
	}

	if e.filter != nil {
		if result := e.filter.ShouldSync(rel, info.IsDir(), info.Size()); !result.Included {
			e.logger.Debug("excluded by filter", slog.String("path", rel), slog.String("reason", result.Reason))
			return nil
		}
	}

	if info.IsDir() {
		return e.enterDir(ctx, ws, fsRel, rel, entry, depth)
	}

	if !info.Mode().IsRegular() {
		return nil
	}

	mimeType, supported := MimeTypeFor(name)
	if !supported {
		return nil
	}

	abs := filepath.Join(ws.root, fsRel)

	if e.opts.VerifyContent && info.Size() > 0 {
		if err := verifyContent(abs, mimeType); err != nil {
			e.logger.Warn("skipping file", slog.String("path", rel), slog.String("reason", err.Error()))
			return nil
		}
	}

	ws.files = append(ws.files, LocalFile{
		RelativePath:     rel,
		AbsPath:          abs,
		ModifiedAtMillis: info.ModTime().UnixMilli(),
		Size:             info.Size(),
		MimeType:         mimeType,
	})

	return nil
}

// enterDir recurses into a directory, guarding symlink cycles with the
// visited set of real paths and the depth limit.
func (e *Enumerator) enterDir(
	ctx context.Context, ws *walkState, fsRel, rel string, entry os.DirEntry, depth int,
) error {
	if depth+1 >= e.opts.MaxDepth {
		e.logger.Warn("maximum depth reached, not descending",
			slog.String("path", rel),
			slog.Int("max_depth", e.opts.MaxDepth),
		)

		return nil
	}

	// Without symlink following every directory is reached once by construction.
	if e.opts.FollowSymlinks {
		real, err := filepath.EvalSymlinks(filepath.Join(ws.root, fsRel))
		if err != nil {
			return nil
		}

		if ws.visited[real] {
			e.logger.Debug("directory already visited, skipping",
				slog.String("path", rel),
				slog.Bool("symlink", entry.Type()&os.ModeSymlink != 0),
			)

			return nil
		}

		ws.visited[real] = true
	}

	return e.walkDir(ctx, ws, fsRel, rel, depth+1)
}

// resolveEntry returns the entry's info, following symlinks when enabled.
// ok=false means skip the entry.
func (e *Enumerator) resolveEntry(ws *walkState, fsRel, rel string, entry os.DirEntry) (os.FileInfo, bool) {
	if entry.Type()&os.ModeSymlink == 0 {
		info, err := entry.Info()
		if err != nil {
			e.logger.Warn("cannot stat entry, skipping", slog.String("path", rel), slog.String("error", err.Error()))
			return nil, false
		}

		return info, true
	}

	if !e.opts.FollowSymlinks {
		e.logger.Debug("skipping symlink", slog.String("path", rel))
		return nil, false
	}

	target, err := os.Stat(filepath.Join(ws.root, fsRel))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			e.logger.Warn("cannot follow symlink, skipping", slog.String("path", rel), slog.String("error", err.Error()))
		}

		return nil, false
	}

	return target, true
}

// NormalizePath converts a relative path to the canonical join-key form:
// forward slashes, NFC, no leading "./".
func NormalizePath(rel string) string {
	p := norm.NFC.String(filepath.ToSlash(rel))
	return strings.TrimPrefix(p, "./")
}

// RelativeTo returns the canonical relative path of abs under root, or
// ok=false when abs is outside root.
func RelativeTo(root, abs string) (string, bool) {
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}

	return NormalizePath(rel), true
}

func joinRelPath(parent, child string) string {
	if parent == "" {
		return child
	}

	return parent + "/" + child
}
