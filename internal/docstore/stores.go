package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
)

// listPageSize is the largest page the API accepts for store and document
// listings.
const listPageSize = 20

// ListStores returns every store visible to the credential, following
// nextPageToken until the listing is exhausted.
func (c *Client) ListStores(ctx context.Context) ([]Store, error) {
	c.logger.Debug("listing stores")

	var (
		stores []Store
		token  string
		page   = 1
	)

	for {
		path := "/fileSearchStores?" + pageQuery(token)

		resp, err := c.Do(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}

		var lsr listStoresResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&lsr)
		resp.Body.Close()

		if decodeErr != nil {
			return nil, fmt.Errorf("docstore: decoding stores page %d: %w", page, decodeErr)
		}

		for i := range lsr.FileSearchStores {
			stores = append(stores, lsr.FileSearchStores[i].toStore())
		}

		if lsr.NextPageToken == "" {
			break
		}

		token = lsr.NextPageToken
		page++
	}

	c.logger.Debug("listed stores", slog.Int("count", len(stores)), slog.Int("pages", page))

	return stores, nil
}

// CreateStore creates a store with the given display name. The API does not
// enforce unique display names; callers that want get-or-create semantics
// list first.
func (c *Client) CreateStore(ctx context.Context, displayName string) (*Store, error) {
	c.logger.Info("creating store", slog.String("display_name", displayName))

	body, err := json.Marshal(map[string]string{"displayName": displayName})
	if err != nil {
		return nil, fmt.Errorf("docstore: encoding create store request: %w", err)
	}

	resp, err := c.Do(ctx, http.MethodPost, "/fileSearchStores", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var sr storeResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("docstore: decoding create store response: %w", err)
	}

	s := sr.toStore()

	return &s, nil
}

// DeleteStore deletes a store. With force=false the API refuses while the
// store still lists documents, surfacing ErrStoreNotEmpty.
func (c *Client) DeleteStore(ctx context.Context, storeID string, force bool) error {
	c.logger.Info("deleting store",
		slog.String("store_id", storeID),
		slog.Bool("force", force),
	)

	path := "/" + storeID
	if force {
		path += "?force=true"
	}

	resp, err := c.Do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}

	return drain(resp)
}

func (s *storeResponse) toStore() Store {
	n, _ := strconv.ParseInt(s.ActiveDocumentCount, 10, 64) //nolint:errcheck // absent means zero

	return Store{ID: s.Name, DisplayName: s.DisplayName, ActiveDocuments: n}
}

// pageQuery builds the pageSize/pageToken query string.
func pageQuery(token string) string {
	q := url.Values{}
	q.Set("pageSize", strconv.Itoa(listPageSize))

	if token != "" {
		q.Set("pageToken", token)
	}

	return q.Encode()
}

// drain discards and closes a response body so the connection is reused.
func drain(resp *http.Response) error {
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("docstore: draining response body: %w", err)
	}

	return nil
}
