package docstore

// Store is a remote file-search store. ID is the backend resource name
// (e.g. "fileSearchStores/abc123"); DisplayName is the project name.
type Store struct {
	ID              string
	DisplayName     string
	ActiveDocuments int64
}

// Document is an indexed document inside a store. DisplayName carries the
// relative path of the local file it was uploaded from.
type Document struct {
	ID          string
	DisplayName string
	MimeType    string
	SizeBytes   int64
	State       string // STATE_ACTIVE, STATE_PENDING, STATE_FAILED; empty when unknown
}

// UploadRequest describes one file to upload into a store.
type UploadRequest struct {
	StoreID     string
	Path        string // absolute path of the local file
	DisplayName string // relative path, the join key
	MimeType    string
}

// Operation is a handle to a long-running import. DocumentID is populated
// once Done is true and the import succeeded.
type Operation struct {
	Name       string
	Done       bool
	DocumentID string
	Err        error
}

// Citation is one grounding chunk backing a generated answer.
type Citation struct {
	Title string `json:"title"`
	URI   string `json:"uri,omitempty"`
	Text  string `json:"text,omitempty"`
}

// Answer is a generated response grounded in one or more stores.
type Answer struct {
	Text      string     `json:"text"`
	Citations []Citation `json:"citations,omitempty"`
}

// Wire shapes for the REST API. Never exposed to callers.

type storeResponse struct {
	Name                string `json:"name"`
	DisplayName         string `json:"displayName"`
	ActiveDocumentCount string `json:"activeDocumentsCount"`
}

type listStoresResponse struct {
	FileSearchStores []storeResponse `json:"fileSearchStores"`
	NextPageToken    string          `json:"nextPageToken"`
}

type documentResponse struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	MimeType    string `json:"mimeType"`
	SizeBytes   string `json:"sizeBytes"`
	State       string `json:"state"`
}

type listDocumentsResponse struct {
	Documents     []documentResponse `json:"documents"`
	NextPageToken string             `json:"nextPageToken"`
}

type operationResponse struct {
	Name     string `json:"name"`
	Done     bool   `json:"done"`
	Response struct {
		DocumentName string `json:"documentName"`
	} `json:"response"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}
