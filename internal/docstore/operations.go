package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// GetOperation fetches the current state of a long-running import.
func (c *Client) GetOperation(ctx context.Context, name string) (*Operation, error) {
	resp, err := c.Do(ctx, http.MethodGet, "/"+name, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var or operationResponse
	if err := json.NewDecoder(resp.Body).Decode(&or); err != nil {
		return nil, fmt.Errorf("docstore: decoding operation %s: %w", name, err)
	}

	return or.toOperation(), nil
}

func (o *operationResponse) toOperation() *Operation {
	op := &Operation{Name: o.Name, Done: o.Done, DocumentID: o.Response.DocumentName}

	if o.Error != nil {
		op.Done = true
		op.Err = fmt.Errorf("%w: %s (code %d)", ErrOperationFailed, o.Error.Message, o.Error.Code)
	}

	return op
}
