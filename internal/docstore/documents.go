package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
)

// ListDocuments returns every document in the store. The listing is
// eventually consistent and may omit documents imported moments ago.
func (c *Client) ListDocuments(ctx context.Context, storeID string) ([]Document, error) {
	var (
		docs  []Document
		token string
		page  = 1
	)

	for {
		path := "/" + storeID + "/documents?" + pageQuery(token)

		resp, err := c.Do(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}

		var ldr listDocumentsResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&ldr)
		resp.Body.Close()

		if decodeErr != nil {
			return nil, fmt.Errorf("docstore: decoding documents page %d: %w", page, decodeErr)
		}

		for i := range ldr.Documents {
			docs = append(docs, ldr.Documents[i].toDocument())
		}

		if ldr.NextPageToken == "" {
			break
		}

		token = ldr.NextPageToken
		page++
	}

	c.logger.Debug("listed documents",
		slog.String("store_id", storeID),
		slog.Int("count", len(docs)),
		slog.Int("pages", page),
	)

	return docs, nil
}

// DeleteDocument deletes one document. force also removes its indexed
// chunks, which the API otherwise refuses to orphan.
func (c *Client) DeleteDocument(ctx context.Context, documentID string, force bool) error {
	c.logger.Debug("deleting document",
		slog.String("document_id", documentID),
		slog.Bool("force", force),
	)

	path := "/" + documentID
	if force {
		path += "?force=true"
	}

	resp, err := c.Do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}

	return drain(resp)
}

func (d *documentResponse) toDocument() Document {
	size, _ := strconv.ParseInt(d.SizeBytes, 10, 64) //nolint:errcheck // absent means zero

	return Document{
		ID:          d.Name,
		DisplayName: d.DisplayName,
		MimeType:    d.MimeType,
		SizeBytes:   size,
		State:       d.State,
	}
}
