package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Object layout inside the bucket:
//
//	stores/<uuid>/.store                  JSON {"displayName": ...}
//	stores/<uuid>/documents/<uuid>        document bytes, display name in user metadata
const (
	storesPrefix     = "stores/"
	storeMarker      = ".store"
	documentsSegment = "/documents/"
	operationsPrefix = "operations/"
	displayNameMeta  = "Display-Name"
)

// MinioOptions configures a MinioStore.
type MinioOptions struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Secure    bool
	Region    string
}

// MinioStore keeps stores and documents as objects in one S3-compatible
// bucket. It implements the same store operations as Client. Imports are
// synchronous, so every returned Operation is already Done.
type MinioStore struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

type storeMarkerBody struct {
	DisplayName string `json:"displayName"`
}

// NewMinioStore connects to the endpoint and creates the bucket if needed.
func NewMinioStore(ctx context.Context, opts MinioOptions, logger *slog.Logger) (*MinioStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure:       opts.Secure,
		Region:       opts.Region,
		BucketLookup: minio.BucketLookupAuto,
	})
	if err != nil {
		return nil, fmt.Errorf("docstore: creating minio client for %s: %w", opts.Endpoint, err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("docstore: checking bucket %s: %w", opts.Bucket, translateMinioError(err))
	}

	if !exists {
		logger.Info("creating bucket", slog.String("bucket", opts.Bucket))

		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{Region: opts.Region}); err != nil {
			return nil, fmt.Errorf("docstore: creating bucket %s: %w", opts.Bucket, translateMinioError(err))
		}
	}

	return &MinioStore{client: client, bucket: opts.Bucket, logger: logger}, nil
}

// ListStores returns every store that has a marker object.
func (m *MinioStore) ListStores(ctx context.Context) ([]Store, error) {
	var stores []Store

	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: storesPrefix}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("docstore: listing stores: %w", translateMinioError(obj.Err))
		}

		// Non-recursive listing yields one common prefix per store.
		if !strings.HasSuffix(obj.Key, "/") {
			continue
		}

		id := strings.TrimSuffix(obj.Key, "/")

		marker, err := m.readMarker(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}

		if err != nil {
			return nil, err
		}

		stores = append(stores, Store{ID: id, DisplayName: marker.DisplayName})
	}

	return stores, nil
}

// CreateStore writes a new store marker.
func (m *MinioStore) CreateStore(ctx context.Context, displayName string) (*Store, error) {
	id := storesPrefix + uuid.NewString()

	body, err := json.Marshal(storeMarkerBody{DisplayName: displayName})
	if err != nil {
		return nil, fmt.Errorf("docstore: encoding store marker: %w", err)
	}

	_, err = m.client.PutObject(ctx, m.bucket, markerKey(id), bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return nil, fmt.Errorf("docstore: creating store %q: %w", displayName, translateMinioError(err))
	}

	m.logger.Info("created store", slog.String("store_id", id), slog.String("display_name", displayName))

	return &Store{ID: id, DisplayName: displayName}, nil
}

// DeleteStore removes the marker. Without force a store that still holds
// documents is refused with ErrStoreNotEmpty.
func (m *MinioStore) DeleteStore(ctx context.Context, storeID string, force bool) error {
	if _, err := m.readMarker(ctx, storeID); err != nil {
		return err
	}

	docs, err := m.ListDocuments(ctx, storeID)
	if err != nil {
		return err
	}

	if len(docs) > 0 && !force {
		return fmt.Errorf("%w: %s still holds %d documents", ErrStoreNotEmpty, storeID, len(docs))
	}

	for _, d := range docs {
		if err := m.DeleteDocument(ctx, d.ID, true); err != nil && !IsNotFound(err) {
			return err
		}
	}

	if err := m.client.RemoveObject(ctx, m.bucket, markerKey(storeID), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("docstore: deleting store %s: %w", storeID, translateMinioError(err))
	}

	return nil
}

// ListDocuments lists the document objects under the store.
func (m *MinioStore) ListDocuments(ctx context.Context, storeID string) ([]Document, error) {
	var docs []Document

	opts := minio.ListObjectsOptions{
		Prefix:       storeID + documentsSegment,
		Recursive:    true,
		WithMetadata: true,
	}

	for obj := range m.client.ListObjects(ctx, m.bucket, opts) {
		if obj.Err != nil {
			return nil, fmt.Errorf("docstore: listing documents in %s: %w", storeID, translateMinioError(obj.Err))
		}

		name := displayNameFromMeta(obj.UserMetadata)
		if name == "" {
			// Not every S3 implementation returns metadata in listings.
			info, err := m.client.StatObject(ctx, m.bucket, obj.Key, minio.StatObjectOptions{})
			if err != nil {
				return nil, fmt.Errorf("docstore: stat %s: %w", obj.Key, translateMinioError(err))
			}

			name = displayNameFromMeta(info.UserMetadata)
		}

		docs = append(docs, Document{
			ID:          obj.Key,
			DisplayName: name,
			MimeType:    obj.ContentType,
			SizeBytes:   obj.Size,
			State:       "STATE_ACTIVE",
		})
	}

	return docs, nil
}

// DeleteDocument removes a document object. A missing object yields
// ErrNotFound, matching the REST backend.
func (m *MinioStore) DeleteDocument(ctx context.Context, documentID string, _ bool) error {
	if _, err := m.client.StatObject(ctx, m.bucket, documentID, minio.StatObjectOptions{}); err != nil {
		return fmt.Errorf("docstore: deleting %s: %w", documentID, translateMinioError(err))
	}

	if err := m.client.RemoveObject(ctx, m.bucket, documentID, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("docstore: deleting %s: %w", documentID, translateMinioError(err))
	}

	return nil
}

// UploadDocument stores the file as a new document object.
func (m *MinioStore) UploadDocument(ctx context.Context, req UploadRequest) (*Operation, error) {
	if _, err := m.readMarker(ctx, req.StoreID); err != nil {
		return nil, err
	}

	docID := req.StoreID + documentsSegment + uuid.NewString()

	_, err := m.client.FPutObject(ctx, m.bucket, docID, req.Path, minio.PutObjectOptions{
		ContentType:  req.MimeType,
		UserMetadata: map[string]string{displayNameMeta: url.PathEscape(req.DisplayName)},
	})
	if err != nil {
		return nil, fmt.Errorf("docstore: uploading %s: %w", req.DisplayName, translateMinioError(err))
	}

	m.logger.Info("uploaded document",
		slog.String("store_id", req.StoreID),
		slog.String("display_name", req.DisplayName),
		slog.String("document_id", docID),
	)

	return &Operation{Name: operationsPrefix + docID, Done: true, DocumentID: docID}, nil
}

// GetOperation reports the document behind a synchronous import.
func (m *MinioStore) GetOperation(ctx context.Context, name string) (*Operation, error) {
	docID, ok := strings.CutPrefix(name, operationsPrefix)
	if !ok {
		return nil, fmt.Errorf("%w: unknown operation %q", ErrNotFound, name)
	}

	if _, err := m.client.StatObject(ctx, m.bucket, docID, minio.StatObjectOptions{}); err != nil {
		return nil, fmt.Errorf("docstore: operation %s: %w", name, translateMinioError(err))
	}

	return &Operation{Name: name, Done: true, DocumentID: docID}, nil
}

func (m *MinioStore) readMarker(ctx context.Context, storeID string) (*storeMarkerBody, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, markerKey(storeID), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("docstore: reading store %s: %w", storeID, translateMinioError(err))
	}
	defer obj.Close()

	// GetObject is lazy; a missing key surfaces on the first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("docstore: reading store %s: %w", storeID, translateMinioError(err))
	}

	var body storeMarkerBody
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("docstore: decoding store marker %s: %w", storeID, err)
	}

	return &body, nil
}

func markerKey(storeID string) string {
	return storeID + "/" + storeMarker
}

// displayNameFromMeta reads the escaped display name from user metadata.
// Listings and stat calls spell the key differently.
func displayNameFromMeta(meta map[string]string) string {
	for _, k := range []string{displayNameMeta, "X-Amz-Meta-" + displayNameMeta} {
		if v, ok := meta[k]; ok {
			if name, err := url.PathUnescape(v); err == nil {
				return name
			}

			return v
		}
	}

	return ""
}

// translateMinioError maps S3 error codes onto the package sentinels.
func translateMinioError(err error) error {
	resp := minio.ToErrorResponse(err)

	var sentinel error

	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		sentinel = ErrNotFound
	case "SlowDown", "RequestLimitExceeded":
		sentinel = ErrThrottled
	case "AccessDenied":
		sentinel = ErrForbidden
	case "InternalError", "ServiceUnavailable":
		sentinel = ErrServerError
	default:
		return err
	}

	return &StoreError{StatusCode: resp.StatusCode, Status: resp.Code, Message: resp.Message, Err: sentinel}
}
