package sync

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"

	"github.com/tonimelisma/docsync/internal/config"
)

// SQL statements for metadata operations.
const (
	sqlLoadTracked = `SELECT path, mtime_ms, document_id FROM tracked_files WHERE project = ?`

	sqlLookupTracked = `SELECT mtime_ms, document_id FROM tracked_files WHERE project = ? AND path = ?`

	sqlDeleteTrackedProject = `DELETE FROM tracked_files WHERE project = ?`

	sqlDeleteTracked = `DELETE FROM tracked_files WHERE project = ? AND path = ?`

	sqlInsertTracked = `INSERT INTO tracked_files (project, path, mtime_ms, document_id) VALUES (?, ?, ?, ?)`

	sqlGetProject = `SELECT store_id, watch_root FROM projects WHERE name = ?`

	sqlUpsertStoreID = `INSERT INTO projects (name, store_id, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET store_id = excluded.store_id, updated_at = excluded.updated_at`

	sqlUpsertWatchRoot = `INSERT INTO projects (name, watch_root, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET watch_root = excluded.watch_root, updated_at = excluded.updated_at`

	sqlDeleteProject = `DELETE FROM projects WHERE name = ?`

	sqlDeleteRuns = `DELETE FROM sync_runs WHERE project = ?`

	sqlInsertRun = `INSERT INTO sync_runs
		(id, project, store_id, started_at, finished_at, local_files, planned,
		 uploaded, adopted, stale_deleted, failed, canceled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlRecentRuns = `SELECT id, store_id, started_at, finished_at, local_files, planned,
		uploaded, adopted, stale_deleted, failed, canceled
		FROM sync_runs WHERE project = ? ORDER BY started_at DESC LIMIT ?`

	sqlListProjects = `SELECT p.name, p.store_id, p.watch_root,
		(SELECT COUNT(*) FROM tracked_files t WHERE t.project = p.name)
		FROM projects p ORDER BY p.name`
)

// ExportEntry is one value of the exported metadata mapping.
type ExportEntry struct {
	Mtime        int64  `json:"mtime"`
	DocumentName string `json:"documentName"`
}

// RunRecord is one persisted sync pass summary.
type RunRecord struct {
	ID           string
	StoreID      string
	StartedAt    time.Time
	FinishedAt   time.Time
	LocalFiles   int
	Planned      int
	Uploaded     int
	Adopted      int
	StaleDeleted int
	Failed       int
	Canceled     bool
}

// ProjectRecord is the local view of one project.
type ProjectRecord struct {
	Name         string
	StoreID      string
	WatchRoot    string
	TrackedFiles int
}

// MetadataStore persists per-project tracked files, cached store ids, and
// sync run history in SQLite. It is the only writer to the database.
type MetadataStore struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time
}

// OpenMetadataStore opens the database at dbPath, runs migrations, and
// returns a ready store.
func OpenMetadataStore(ctx context.Context, dbPath string, logger *slog.Logger) (*MetadataStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("sync: creating database directory: %w", err)
	}

	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sync: opening database %s: %w", dbPath, err)
	}

	db.SetMaxOpenConns(1)

	if err := migrateMetadata(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("metadata store opened", slog.String("db_path", dbPath))

	return &MetadataStore{db: db, logger: logger, nowFunc: time.Now}, nil
}

// Close closes the database.
func (m *MetadataStore) Close() error {
	return m.db.Close()
}

// Load returns the project's tracked files keyed by relative path. An
// unknown project yields an empty map.
func (m *MetadataStore) Load(ctx context.Context, project string) (map[string]TrackedFile, error) {
	rows, err := m.db.QueryContext(ctx, sqlLoadTracked, project)
	if err != nil {
		return nil, fmt.Errorf("sync: loading metadata for %s: %w", project, err)
	}
	defer rows.Close()

	out := make(map[string]TrackedFile)

	for rows.Next() {
		var tf TrackedFile
		if err := rows.Scan(&tf.RelativePath, &tf.ModifiedAtMillis, &tf.RemoteDocumentID); err != nil {
			return nil, fmt.Errorf("sync: scanning metadata row: %w", err)
		}

		out[tf.RelativePath] = tf
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sync: iterating metadata rows: %w", err)
	}

	return out, nil
}

// Save replaces the project's entire mapping in one transaction. A failure
// part way leaves the previous mapping intact.
func (m *MetadataStore) Save(ctx context.Context, project string, files map[string]TrackedFile) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sync: beginning metadata transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	if _, err := tx.ExecContext(ctx, sqlDeleteTrackedProject, project); err != nil {
		return fmt.Errorf("sync: clearing metadata for %s: %w", project, err)
	}

	stmt, err := tx.PrepareContext(ctx, sqlInsertTracked)
	if err != nil {
		return fmt.Errorf("sync: preparing metadata insert: %w", err)
	}
	defer stmt.Close()

	for path, tf := range files {
		if _, err := stmt.ExecContext(ctx, project, path, tf.ModifiedAtMillis, tf.RemoteDocumentID); err != nil {
			return fmt.Errorf("sync: writing metadata for %s: %w", path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sync: committing metadata: %w", err)
	}

	m.logger.Debug("metadata saved", slog.String("project", project), slog.Int("entries", len(files)))

	return nil
}

// Lookup returns the tracked entry for one path.
func (m *MetadataStore) Lookup(ctx context.Context, project, path string) (*TrackedFile, bool, error) {
	tf := TrackedFile{RelativePath: path}

	err := m.db.QueryRowContext(ctx, sqlLookupTracked, project, path).Scan(&tf.ModifiedAtMillis, &tf.RemoteDocumentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("sync: looking up %s: %w", path, err)
	}

	return &tf, true, nil
}

// Remove deletes one tracked entry.
func (m *MetadataStore) Remove(ctx context.Context, project, path string) error {
	if _, err := m.db.ExecContext(ctx, sqlDeleteTracked, project, path); err != nil {
		return fmt.Errorf("sync: removing metadata for %s: %w", path, err)
	}

	return nil
}

// Purge removes everything stored for the project.
func (m *MetadataStore) Purge(ctx context.Context, project string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sync: beginning purge transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	for _, q := range []string{sqlDeleteTrackedProject, sqlDeleteRuns, sqlDeleteProject} {
		if _, err := tx.ExecContext(ctx, q, project); err != nil {
			return fmt.Errorf("sync: purging %s: %w", project, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sync: committing purge: %w", err)
	}

	return nil
}

// StoreID returns the cached store id for a project, or "" when none is
// cached.
func (m *MetadataStore) StoreID(ctx context.Context, project string) (string, error) {
	var storeID, watchRoot string

	err := m.db.QueryRowContext(ctx, sqlGetProject, project).Scan(&storeID, &watchRoot)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}

	if err != nil {
		return "", fmt.Errorf("sync: reading store id for %s: %w", project, err)
	}

	return storeID, nil
}

// SetStoreID caches the resolved store id.
func (m *MetadataStore) SetStoreID(ctx context.Context, project, storeID string) error {
	if _, err := m.db.ExecContext(ctx, sqlUpsertStoreID, project, storeID, m.nowFunc().UnixMilli()); err != nil {
		return fmt.Errorf("sync: caching store id for %s: %w", project, err)
	}

	return nil
}

// SetWatchRoot records where the project was last synced from.
func (m *MetadataStore) SetWatchRoot(ctx context.Context, project, root string) error {
	if _, err := m.db.ExecContext(ctx, sqlUpsertWatchRoot, project, root, m.nowFunc().UnixMilli()); err != nil {
		return fmt.Errorf("sync: recording watch root for %s: %w", project, err)
	}

	return nil
}

// Projects lists every project with local metadata.
func (m *MetadataStore) Projects(ctx context.Context) ([]ProjectRecord, error) {
	rows, err := m.db.QueryContext(ctx, sqlListProjects)
	if err != nil {
		return nil, fmt.Errorf("sync: listing projects: %w", err)
	}
	defer rows.Close()

	var out []ProjectRecord

	for rows.Next() {
		var p ProjectRecord
		if err := rows.Scan(&p.Name, &p.StoreID, &p.WatchRoot, &p.TrackedFiles); err != nil {
			return nil, fmt.Errorf("sync: scanning project row: %w", err)
		}

		out = append(out, p)
	}

	return out, rows.Err()
}

// RecordRun persists the summary of a finished pass.
func (m *MetadataStore) RecordRun(ctx context.Context, r *SyncReport) error {
	_, err := m.db.ExecContext(ctx, sqlInsertRun,
		r.RunID, r.Project, r.StoreID,
		r.StartedAt.UnixMilli(), r.FinishedAt.UnixMilli(),
		r.LocalFiles, r.Planned, r.Uploaded, r.Adopted, r.StaleDeleted, r.Failed, r.Canceled,
	)
	if err != nil {
		return fmt.Errorf("sync: recording run %s: %w", r.RunID, err)
	}

	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (m *MetadataStore) RecentRuns(ctx context.Context, project string, limit int) ([]RunRecord, error) {
	rows, err := m.db.QueryContext(ctx, sqlRecentRuns, project, limit)
	if err != nil {
		return nil, fmt.Errorf("sync: listing runs for %s: %w", project, err)
	}
	defer rows.Close()

	var out []RunRecord

	for rows.Next() {
		var (
			r                 RunRecord
			started, finished int64
		)

		if err := rows.Scan(&r.ID, &r.StoreID, &started, &finished, &r.LocalFiles, &r.Planned,
			&r.Uploaded, &r.Adopted, &r.StaleDeleted, &r.Failed, &r.Canceled); err != nil {
			return nil, fmt.Errorf("sync: scanning run row: %w", err)
		}

		r.StartedAt = time.UnixMilli(started)
		r.FinishedAt = time.UnixMilli(finished)
		out = append(out, r)
	}

	return out, rows.Err()
}

// Export writes the project's mapping as JSON:
// relativePath -> {mtime, documentName}.
func (m *MetadataStore) Export(ctx context.Context, project string, w io.Writer) error {
	files, err := m.Load(ctx, project)
	if err != nil {
		return err
	}

	out := make(map[string]ExportEntry, len(files))
	for path, tf := range files {
		out[path] = ExportEntry{Mtime: tf.ModifiedAtMillis, DocumentName: tf.RemoteDocumentID}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("sync: encoding metadata export: %w", err)
	}

	return nil
}

// ExportFile writes the export to path atomically.
func (m *MetadataStore) ExportFile(ctx context.Context, project, path string) error {
	var buf bytes.Buffer
	if err := m.Export(ctx, project, &buf); err != nil {
		return err
	}

	return config.WriteFileAtomic(path, buf.Bytes(), 0o644)
}

// Import replaces the project's mapping with the JSON read from r. Keys
// are normalized to the canonical path form.
func (m *MetadataStore) Import(ctx context.Context, project string, r io.Reader) error {
	var in map[string]ExportEntry
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return fmt.Errorf("sync: decoding metadata import: %w", err)
	}

	files := make(map[string]TrackedFile, len(in))
	for path, e := range in {
		p := NormalizePath(path)
		files[p] = TrackedFile{RelativePath: p, ModifiedAtMillis: e.Mtime, RemoteDocumentID: e.DocumentName}
	}

	return m.Save(ctx, project, files)
}
