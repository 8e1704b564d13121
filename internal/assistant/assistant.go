// Package assistant answers questions about a synced project by running
// grounded generation over the project's document store.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tonimelisma/docsync/internal/config"
	"github.com/tonimelisma/docsync/internal/docstore"
)

// ForceOverride is appended to every query.
const ForceOverride = "DO NOT ASK THE USER TO READ THE MANUAL, pinpoint the relevant sections in the response itself."

// Example questions are regenerated when the model output does not parse.
const (
	defaultMaxAttempts = 3
	reparseDelay       = time.Second
)

// ErrEmptyQuery is returned by Ask for a blank query.
var ErrEmptyQuery = errors.New("assistant: query is empty")

// Generator runs grounded generation. Satisfied by *docstore.Client, which
// retries throttling and server errors itself.
type Generator interface {
	Generate(ctx context.Context, prompt string, storeIDs []string) (*docstore.Answer, error)
}

// StoreFinder resolves project names to stores. Satisfied by
// *sync.Directory.
type StoreFinder interface {
	Find(ctx context.Context, project string) (string, bool, error)
	ListProjects(ctx context.Context) ([]string, error)
}

// Reply is the answer to one query.
type Reply struct {
	Project   string              `json:"project"`
	Text      string              `json:"response"`
	Citations []docstore.Citation `json:"citations,omitempty"`
	// Found is false when the project has no store; Text then explains.
	Found bool `json:"found"`
}

// Service answers queries and suggests example questions.
type Service struct {
	gen         Generator
	dir         StoreFinder
	logger      *slog.Logger
	maxAttempts int
	sleepFunc   func(ctx context.Context, d time.Duration) error
}

// NewService creates a Service.
func NewService(gen Generator, dir StoreFinder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		gen:         gen,
		dir:         dir,
		logger:      logger,
		maxAttempts: defaultMaxAttempts,
		sleepFunc:   sleepCtx,
	}
}

// Projects lists the projects that have a store.
func (s *Service) Projects(ctx context.Context) ([]string, error) {
	return s.dir.ListProjects(ctx)
}

// Ask answers query from the documents of project. A project without a
// store is not an error: the reply says so and Found is false.
func (s *Service) Ask(ctx context.Context, query, project string) (*Reply, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	if project == "" {
		return nil, config.ErrNoProject
	}

	storeID, found, err := s.dir.Find(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("assistant: resolving store for %s: %w", project, err)
	}

	if !found {
		return &Reply{
			Project: project,
			Text:    fmt.Sprintf("No documents found for project %q. Run docsync sync in the project first.", project),
		}, nil
	}

	s.logger.Info("asking project", slog.String("project", project), slog.Int("query_len", len(query)))

	ans, err := s.generate(ctx, query+" "+ForceOverride, storeID)
	if err != nil {
		return nil, err
	}

	return &Reply{Project: project, Text: ans.Text, Citations: ans.Citations, Found: true}, nil
}

// generate makes one generation call. Retries happen inside the Generator.
func (s *Service) generate(ctx context.Context, prompt, storeID string) (*docstore.Answer, error) {
	ans, err := s.gen.Generate(ctx, prompt, []string{storeID})
	if err != nil {
		return nil, fmt.Errorf("assistant: generating answer: %w", err)
	}

	return ans, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
