package sync

import (
	"log/slog"
	"sort"
)

// Planner is a pure decision engine that turns local files, tracked
// metadata, and the remote listing into a SyncPlan. It performs no I/O.
type Planner struct {
	logger *slog.Logger
}

// NewPlanner creates a Planner with the given logger.
func NewPlanner(logger *slog.Logger) *Planner {
	return &Planner{logger: logger}
}

// Plan classifies every local file:
//   - untracked with a remote document of the same name: adopted, no upload
//   - untracked otherwise: New
//   - tracked with |Δmtime| > 1000 ms: Changed, with every same-named remote
//     document (and the tracked id) scheduled for deletion first
//   - tracked within tolerance: unchanged
//
// Remote documents with no local counterpart are never touched.
func (p *Planner) Plan(local []LocalFile, tracked map[string]TrackedFile, remote []RemoteDocument) *SyncPlan {
	plan := &SyncPlan{}

	if len(local) == 0 {
		p.logger.Debug("no local files, empty plan")
		return plan
	}

	byName := indexRemote(remote)

	for i := range local {
		lf := local[i]
		matches := byName[lf.RelativePath]

		tf, isTracked := tracked[lf.RelativePath]
		if !isTracked {
			if len(matches) > 0 {
				plan.Adoptions = append(plan.Adoptions, Adoption{File: lf, DocumentID: matches[0]})
				continue
			}

			plan.ToUpload = append(plan.ToUpload, UploadEntry{File: lf, Reason: ReasonNew})

			continue
		}

		if !mtimeChanged(lf.ModifiedAtMillis, tf.ModifiedAtMillis) {
			plan.Unchanged++
			continue
		}

		plan.ToUpload = append(plan.ToUpload, UploadEntry{
			File:            lf,
			Reason:          ReasonChanged,
			StaleDuplicates: staleDuplicates(matches, tf.RemoteDocumentID),
		})
	}

	sort.SliceStable(plan.ToUpload, func(i, j int) bool {
		return plan.ToUpload[i].File.RelativePath < plan.ToUpload[j].File.RelativePath
	})

	p.logger.Info("sync plan",
		slog.Int("local", len(local)),
		slog.Int("upload", len(plan.ToUpload)),
		slog.Int("adopt", len(plan.Adoptions)),
		slog.Int("unchanged", plan.Unchanged),
	)

	return plan
}

// mtimeChanged applies the tolerance. Exactly 1000 ms apart is unchanged.
func mtimeChanged(a, b int64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}

	return d > mtimeToleranceMillis
}

// staleDuplicates returns the listed matches plus the tracked id when the
// listing has not caught up with it yet.
func staleDuplicates(matches []string, trackedID string) []string {
	out := append([]string(nil), matches...)

	if trackedID == "" {
		return out
	}

	for _, id := range matches {
		if id == trackedID {
			return out
		}
	}

	return append(out, trackedID)
}

func indexRemote(remote []RemoteDocument) map[string][]string {
	byName := make(map[string][]string, len(remote))
	for _, d := range remote {
		if d.DisplayName == "" {
			continue
		}

		byName[d.DisplayName] = append(byName[d.DisplayName], d.ID)
	}

	return byName
}
