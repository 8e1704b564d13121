package sync

// reconcileInput is everything known at the end of a pass.
type reconcileInput struct {
	tracked   map[string]TrackedFile
	local     []LocalFile
	remote    []RemoteDocument // the post-upload relisting
	results   []EntryResult
	adoptions []Adoption
}

// reconcile builds the new metadata mapping.
//
//   - Adopted and freshly recorded files take the enumeration-time mtime and
//     their document id, even when the relisting does not show them yet.
//   - Listed documents refresh the id of every tracked or local path with the
//     same name. Paths whose upload failed keep their previous mtime so the
//     next pass still sees them as changed.
//   - Tracked paths that are neither local nor listed are dropped.
func reconcile(in reconcileInput) map[string]TrackedFile {
	localByPath := make(map[string]LocalFile, len(in.local))
	for _, lf := range in.local {
		localByPath[lf.RelativePath] = lf
	}

	failed := make(map[string]bool)
	recorded := make(map[string]string)

	for _, r := range in.results {
		switch r.State {
		case EntryFailed, EntrySkipped:
			failed[r.Path] = true
		case EntryRecorded:
			recorded[r.Path] = r.DocumentID
		}
	}

	out := make(map[string]TrackedFile, len(in.tracked))
	for path, tf := range in.tracked {
		out[path] = tf
	}

	listed := make(map[string]bool, len(in.remote))

	for _, doc := range in.remote {
		path := doc.DisplayName
		if path == "" {
			continue
		}

		listed[path] = true

		tf, isTracked := out[path]
		lf, isLocal := localByPath[path]

		switch {
		case failed[path]:
			if isTracked {
				tf.RemoteDocumentID = doc.ID
				out[path] = tf
			}
		case isLocal:
			out[path] = TrackedFile{RelativePath: path, ModifiedAtMillis: lf.ModifiedAtMillis, RemoteDocumentID: doc.ID}
		case isTracked:
			tf.RemoteDocumentID = doc.ID
			out[path] = tf
		}
	}

	for _, a := range in.adoptions {
		out[a.File.RelativePath] = TrackedFile{
			RelativePath:     a.File.RelativePath,
			ModifiedAtMillis: a.File.ModifiedAtMillis,
			RemoteDocumentID: a.DocumentID,
		}
	}

	// The import result is authoritative for this pass's uploads; the
	// listing may show an older duplicate or nothing at all.
	for path, docID := range recorded {
		if docID == "" {
			docID = out[path].RemoteDocumentID
		}

		lf := localByPath[path]
		out[path] = TrackedFile{RelativePath: path, ModifiedAtMillis: lf.ModifiedAtMillis, RemoteDocumentID: docID}
	}

	for path := range out {
		if _, isLocal := localByPath[path]; !isLocal && !listed[path] {
			delete(out, path)
		}
	}

	return out
}
