package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// StoreIDCache remembers which store a project resolved to. Satisfied by
// *MetadataStore.
type StoreIDCache interface {
	StoreID(ctx context.Context, project string) (string, error)
	SetStoreID(ctx context.Context, project, storeID string) error
}

// Directory maps project names to remote stores by display name.
type Directory struct {
	store  DocumentStore
	cache  StoreIDCache // may be nil
	logger *slog.Logger
}

// NewDirectory creates a directory over store. cache may be nil.
func NewDirectory(store DocumentStore, cache StoreIDCache, logger *slog.Logger) *Directory {
	return &Directory{store: store, cache: cache, logger: logger}
}

// Find returns the id of the store whose display name equals project
// exactly. When several match, the cached id wins, else the first listed.
func (d *Directory) Find(ctx context.Context, project string) (string, bool, error) {
	stores, err := d.store.ListStores(ctx)
	if err != nil {
		return "", false, fmt.Errorf("sync: listing stores: %w", err)
	}

	var matches []string

	for i := range stores {
		if stores[i].DisplayName == project {
			matches = append(matches, stores[i].ID)
		}
	}

	if len(matches) == 0 {
		return "", false, nil
	}

	if len(matches) > 1 {
		d.logger.Warn("several stores share a display name",
			slog.String("project", project),
			slog.Int("count", len(matches)),
		)

		if cached := d.cachedID(ctx, project); cached != "" {
			for _, id := range matches {
				if id == cached {
					return id, true, nil
				}
			}
		}
	}

	return matches[0], true, nil
}

// GetOrCreate returns the project's store id, creating the store if no
// store has that display name. Two clients racing may both create one.
func (d *Directory) GetOrCreate(ctx context.Context, project string) (string, error) {
	id, found, err := d.Find(ctx, project)
	if err != nil {
		return "", err
	}

	if !found {
		created, err := d.store.CreateStore(ctx, project)
		if err != nil {
			return "", fmt.Errorf("sync: creating store for %s: %w", project, err)
		}

		d.logger.Info("created store", slog.String("project", project), slog.String("store_id", created.ID))
		id = created.ID
	}

	if d.cache != nil {
		if err := d.cache.SetStoreID(ctx, project, id); err != nil {
			d.logger.Warn("could not cache store id", slog.String("error", err.Error()))
		}
	}

	return id, nil
}

// ListDocuments pages through every document in the store.
func (d *Directory) ListDocuments(ctx context.Context, storeID string) ([]RemoteDocument, error) {
	docs, err := d.store.ListDocuments(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("sync: listing documents: %w", err)
	}

	out := make([]RemoteDocument, 0, len(docs))
	for i := range docs {
		out = append(out, RemoteDocument{ID: docs[i].ID, DisplayName: NormalizePath(docs[i].DisplayName)})
	}

	return out, nil
}

// ListProjects returns the sorted, de-duplicated store display names.
func (d *Directory) ListProjects(ctx context.Context) ([]string, error) {
	stores, err := d.store.ListStores(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync: listing stores: %w", err)
	}

	seen := make(map[string]bool, len(stores))

	var names []string

	for i := range stores {
		name := stores[i].DisplayName
		if name == "" || seen[name] {
			continue
		}

		seen[name] = true
		names = append(names, name)
	}

	sort.Strings(names)

	return names, nil
}

func (d *Directory) cachedID(ctx context.Context, project string) string {
	if d.cache == nil {
		return ""
	}

	id, err := d.cache.StoreID(ctx, project)
	if err != nil {
		d.logger.Debug("store id cache unavailable", slog.String("error", err.Error()))
		return ""
	}

	return id
}
