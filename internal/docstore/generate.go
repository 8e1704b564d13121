package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// ErrEmptyAnswer means the model returned no candidate text.
var ErrEmptyAnswer = errors.New("docstore: model returned no answer")

type generateRequest struct {
	Contents []content `json:"contents"`
	Tools    []tool    `json:"tools,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text,omitempty"`
}

type tool struct {
	FileSearch *fileSearchTool `json:"fileSearch,omitempty"`
}

type fileSearchTool struct {
	FileSearchStoreNames []string `json:"fileSearchStoreNames"`
}

type generateResponse struct {
	Candidates []struct {
		Content           content `json:"content"`
		GroundingMetadata *struct {
			GroundingChunks []struct {
				RetrievedContext *struct {
					Title string `json:"title"`
					URI   string `json:"uri"`
					Text  string `json:"text"`
				} `json:"retrievedContext"`
			} `json:"groundingChunks"`
		} `json:"groundingMetadata"`
	} `json:"candidates"`
}

// Generate asks the model a question, grounded with file search over the
// given stores. With no stores the model answers ungrounded.
func (c *Client) Generate(ctx context.Context, prompt string, storeIDs []string) (*Answer, error) {
	gr := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
	}

	if len(storeIDs) > 0 {
		gr.Tools = []tool{{FileSearch: &fileSearchTool{FileSearchStoreNames: storeIDs}}}
	}

	body, err := json.Marshal(gr)
	if err != nil {
		return nil, fmt.Errorf("docstore: encoding generate request: %w", err)
	}

	c.logger.Debug("generating answer",
		slog.String("model", c.model),
		slog.Int("stores", len(storeIDs)),
	)

	resp, err := c.Do(ctx, http.MethodPost, "/models/"+c.model+":generateContent", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var gresp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gresp); err != nil {
		return nil, fmt.Errorf("docstore: decoding generate response: %w", err)
	}

	return gresp.toAnswer()
}

func (g *generateResponse) toAnswer() (*Answer, error) {
	if len(g.Candidates) == 0 {
		return nil, ErrEmptyAnswer
	}

	cand := g.Candidates[0]

	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		sb.WriteString(p.Text)
	}

	ans := &Answer{Text: sb.String()}

	if cand.GroundingMetadata != nil {
		for _, chunk := range cand.GroundingMetadata.GroundingChunks {
			if chunk.RetrievedContext == nil {
				continue
			}

			ans.Citations = append(ans.Citations, Citation{
				Title: chunk.RetrievedContext.Title,
				URI:   chunk.RetrievedContext.URI,
				Text:  chunk.RetrievedContext.Text,
			})
		}
	}

	if ans.Text == "" && len(ans.Citations) == 0 {
		return nil, ErrEmptyAnswer
	}

	return ans, nil
}
