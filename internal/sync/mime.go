package sync

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ErrContentMismatch means a file's bytes do not match the type implied by
// its extension (e.g. a binary named notes.txt).
var ErrContentMismatch = errors.New("sync: content does not match extension")

// supportedTypes maps lowercase extensions to the MIME type sent on upload.
var supportedTypes = map[string]string{
	".txt":  "text/plain",
	".md":   "text/markdown",
	".pdf":  "application/pdf",
	".js":   "text/javascript",
	".ts":   "text/javascript",
	".py":   "text/x-python",
	".html": "text/html",
	".css":  "text/css",
	".csv":  "text/csv",
	".json": "application/json",
}

// MimeTypeFor returns the upload MIME type for path, or ok=false when the
// extension is not supported.
func MimeTypeFor(path string) (string, bool) {
	mt, ok := supportedTypes[strings.ToLower(filepath.Ext(path))]
	return mt, ok
}

// IsSupported reports whether path has a supported extension.
func IsSupported(path string) bool {
	_, ok := MimeTypeFor(path)
	return ok
}

// verifyContent sniffs the file and checks it is plausibly of the declared
// type. Textual types accept anything mimetype places under text/plain.
func verifyContent(absPath, declared string) error {
	detected, err := mimetype.DetectFile(absPath)
	if err != nil {
		return fmt.Errorf("sync: sniffing %s: %w", absPath, err)
	}

	if declared == "application/pdf" {
		if detected.Is("application/pdf") {
			return nil
		}

		return fmt.Errorf("%w: expected PDF, found %s", ErrContentMismatch, detected.String())
	}

	for m := detected; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return nil
		}
	}

	return fmt.Errorf("%w: expected text, found %s", ErrContentMismatch, detected.String())
}
