// Package sync implements the one-way sync engine for docsync: local file
// enumeration and filtering, the metadata store, the diff planner, the
// executor with reconciliation, the deletion watcher, and project teardown.
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/tonimelisma/docsync/internal/docstore"
)

// mtimeToleranceMillis is the largest mtime difference still treated as
// unchanged. Filesystems and copies round timestamps differently.
const mtimeToleranceMillis = 1000

// LocalFile is one candidate document found by the enumerator.
type LocalFile struct {
	RelativePath     string // forward-slash, NFC, relative to the watch root
	AbsPath          string
	ModifiedAtMillis int64
	Size             int64
	MimeType         string
}

// TrackedFile is the persisted record of a previously uploaded file.
type TrackedFile struct {
	RelativePath     string
	ModifiedAtMillis int64
	RemoteDocumentID string
}

// RemoteDocument is the engine's view of a remote document. DisplayName
// is normalized like RelativePath.
type RemoteDocument struct {
	ID          string
	DisplayName string
}

// Reason explains why a file is scheduled for upload.
type Reason int

// Upload reasons.
const (
	ReasonNew Reason = iota
	ReasonChanged
)

func (r Reason) String() string {
	switch r {
	case ReasonNew:
		return "new"
	case ReasonChanged:
		return "changed"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// UploadEntry is one planned upload. StaleDuplicates lists remote documents
// carrying the same display name that must be deleted first.
type UploadEntry struct {
	File            LocalFile
	Reason          Reason
	StaleDuplicates []string
}

// Adoption records a remote document that already matches an untracked
// local file. It is recorded in metadata without an upload.
type Adoption struct {
	File       LocalFile
	DocumentID string
}

// SyncPlan is the output of Plan. Remote-only documents never appear in it.
type SyncPlan struct {
	ToUpload  []UploadEntry
	Adoptions []Adoption
	Unchanged int
}

// Empty reports whether the plan requires no remote mutation and no
// metadata change.
func (p *SyncPlan) Empty() bool {
	return len(p.ToUpload) == 0 && len(p.Adoptions) == 0
}

// EntryState is the lifecycle state of one upload entry in the executor.
type EntryState int

// Entry states. Recorded and Failed are terminal.
const (
	EntryPending EntryState = iota
	EntryDeletingStale
	EntryUploading
	EntryRecorded
	EntryFailed
	EntrySkipped
)

func (s EntryState) String() string {
	switch s {
	case EntryPending:
		return "pending"
	case EntryDeletingStale:
		return "deleting-stale"
	case EntryUploading:
		return "uploading"
	case EntryRecorded:
		return "recorded"
	case EntryFailed:
		return "failed"
	case EntrySkipped:
		return "skipped"
	default:
		return fmt.Sprintf("EntryState(%d)", int(s))
	}
}

// EntryResult is the terminal outcome of one upload entry.
type EntryResult struct {
	Path         string
	State        EntryState
	DocumentID   string
	StaleDeleted int
	Err          error
}

// PathError ties a failure to the relative path it happened on.
type PathError struct {
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return e.Path + ": " + e.Err.Error()
}

func (e *PathError) Unwrap() error {
	return e.Err
}

// SyncReport summarizes one sync pass.
type SyncReport struct {
	RunID        string
	Project      string
	StoreID      string
	StartedAt    time.Time
	FinishedAt   time.Time
	LocalFiles   int
	Planned      int
	Uploaded     int
	Adopted      int
	StaleDeleted int
	Skipped      int
	Failed       int
	Canceled     bool
	Errors       []PathError
}

// Summary is the one-line end-of-pass message.
func (r *SyncReport) Summary() string {
	if r.Planned == 0 && r.Adopted == 0 {
		return "everything up to date"
	}

	s := fmt.Sprintf("uploaded %d of %d files", r.Uploaded, r.Planned)
	if r.Adopted > 0 {
		s += fmt.Sprintf(", adopted %d", r.Adopted)
	}

	if r.Failed > 0 {
		s += fmt.Sprintf(", %d failed", r.Failed)
	}

	if r.Canceled {
		s += " (canceled)"
	}

	return s
}

// --- Consumer-defined interfaces for the document store ---

// DocumentStore is the remote operation set the engine depends on.
// Satisfied by *docstore.Client and *docstore.MinioStore.
type DocumentStore interface {
	ListStores(ctx context.Context) ([]docstore.Store, error)
	CreateStore(ctx context.Context, displayName string) (*docstore.Store, error)
	ListDocuments(ctx context.Context, storeID string) ([]docstore.Document, error)
	UploadDocument(ctx context.Context, req docstore.UploadRequest) (*docstore.Operation, error)
	GetOperation(ctx context.Context, name string) (*docstore.Operation, error)
	DeleteDocument(ctx context.Context, documentID string, force bool) error
	DeleteStore(ctx context.Context, storeID string, force bool) error
}

// FilterResult indicates whether a path should be synced and why.
type FilterResult struct {
	Included bool
	Reason   string // empty when included
}

// Filter decides whether a path is enumerated. Paths are relative to the
// watch root.
type Filter interface {
	ShouldSync(path string, isDir bool, size int64) FilterResult
}

// Progress receives executor progress. Implementations must be cheap; they
// run on the executor goroutine.
type Progress interface {
	Start(total int)
	Update(path string, state EntryState)
	Finish()
}

type nopProgress struct{}

func (nopProgress) Start(int)                 {}
func (nopProgress) Update(string, EntryState) {}
func (nopProgress) Finish()                   {}
