package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
)

// uploadMetadata is the JSON part of a multipart upload.
type uploadMetadata struct {
	DisplayName string `json:"displayName"`
	MimeType    string `json:"mimeType,omitempty"`
}

// UploadDocument uploads a local file into a store and starts its import.
// The returned Operation is usually not Done; drive it with a Poller.
func (c *Client) UploadDocument(ctx context.Context, req UploadRequest) (*Operation, error) {
	content, err := os.ReadFile(req.Path)
	if err != nil {
		return nil, fmt.Errorf("docstore: reading %s: %w", req.Path, err)
	}

	body, contentType, err := buildMultipart(req, content)
	if err != nil {
		return nil, err
	}

	c.logger.Info("uploading document",
		slog.String("store_id", req.StoreID),
		slog.String("display_name", req.DisplayName),
		slog.Int("size", len(content)),
	)

	resp, err := c.do(ctx, request{
		method:      http.MethodPost,
		url:         c.uploadURL + "/" + req.StoreID + ":uploadToFileSearchStore",
		contentType: contentType,
		body:        body,
		header:      http.Header{"X-Goog-Upload-Protocol": []string{"multipart"}},
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var or operationResponse
	if err := json.NewDecoder(resp.Body).Decode(&or); err != nil {
		return nil, fmt.Errorf("docstore: decoding upload response: %w", err)
	}

	return or.toOperation(), nil
}

// buildMultipart encodes the metadata and file content as a
// multipart/related body. The body is materialised so retries can replay it.
func buildMultipart(req UploadRequest, content []byte) ([]byte, string, error) {
	meta, err := json.Marshal(uploadMetadata{DisplayName: req.DisplayName, MimeType: req.MimeType})
	if err != nil {
		return nil, "", fmt.Errorf("docstore: encoding upload metadata: %w", err)
	}

	var buf bytes.Buffer

	mw := multipart.NewWriter(&buf)

	metaPart, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"application/json; charset=UTF-8"}})
	if err != nil {
		return nil, "", fmt.Errorf("docstore: creating metadata part: %w", err)
	}

	if _, err := metaPart.Write(meta); err != nil {
		return nil, "", fmt.Errorf("docstore: writing metadata part: %w", err)
	}

	fileType := req.MimeType
	if fileType == "" {
		fileType = "application/octet-stream"
	}

	filePart, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {fileType}})
	if err != nil {
		return nil, "", fmt.Errorf("docstore: creating file part: %w", err)
	}

	if _, err := filePart.Write(content); err != nil {
		return nil, "", fmt.Errorf("docstore: writing file part: %w", err)
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("docstore: closing multipart writer: %w", err)
	}

	return buf.Bytes(), "multipart/related; boundary=" + mw.Boundary(), nil
}
