package assistant

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/docsync/internal/config"
	"github.com/tonimelisma/docsync/internal/docstore"
)

type scriptedGenerator struct {
	replies []generation
	prompts []string
	stores  [][]string
}

type generation struct {
	text string
	err  error
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt string, storeIDs []string) (*docstore.Answer, error) {
	g.prompts = append(g.prompts, prompt)
	g.stores = append(g.stores, storeIDs)

	if len(g.replies) == 0 {
		return nil, errors.New("no scripted reply")
	}

	r := g.replies[0]
	g.replies = g.replies[1:]

	if r.err != nil {
		return nil, r.err
	}

	return &docstore.Answer{Text: r.text, Citations: []docstore.Citation{{Title: "manual.pdf"}}}, nil
}

type fakeFinder struct {
	stores map[string]string
	err    error
}

func (f fakeFinder) Find(_ context.Context, project string) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}

	id, ok := f.stores[project]

	return id, ok, nil
}

func (f fakeFinder) ListProjects(context.Context) ([]string, error) {
	return []string{"alpha", "beta"}, nil
}

func newTestService(gen Generator, finder StoreFinder) (*Service, *[]time.Duration) {
	var slept []time.Duration

	s := NewService(gen, finder, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.sleepFunc = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	return s, &slept
}

func TestAsk_AppendsForceOverride(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{replies: []generation{{text: "Section 4.2 covers it."}}}
	svc, _ := newTestService(gen, fakeFinder{stores: map[string]string{"alpha": "fileSearchStores/a"}})

	reply, err := svc.Ask(context.Background(), "How do I reset it?", "alpha")
	require.NoError(t, err)

	assert.True(t, reply.Found)
	assert.Equal(t, "Section 4.2 covers it.", reply.Text)
	assert.Len(t, reply.Citations, 1)

	require.Len(t, gen.prompts, 1)
	assert.True(t, strings.HasPrefix(gen.prompts[0], "How do I reset it?"))
	assert.True(t, strings.HasSuffix(gen.prompts[0], ForceOverride))
	assert.Equal(t, []string{"fileSearchStores/a"}, gen.stores[0])
}

func TestAsk_MissingStoreIsFriendly(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{}
	svc, _ := newTestService(gen, fakeFinder{})

	reply, err := svc.Ask(context.Background(), "anything", "ghost")
	require.NoError(t, err)
	assert.False(t, reply.Found)
	assert.Contains(t, reply.Text, "No documents found")
	assert.Empty(t, gen.prompts)
}

func TestAsk_Validation(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(&scriptedGenerator{}, fakeFinder{})

	_, err := svc.Ask(context.Background(), "  ", "alpha")
	require.ErrorIs(t, err, ErrEmptyQuery)

	_, err = svc.Ask(context.Background(), "q", "")
	require.ErrorIs(t, err, config.ErrNoProject)
}

func TestAsk_SingleGenerationCall(t *testing.T) {
	t.Parallel()

	for _, genErr := range []error{docstore.ErrThrottled, docstore.ErrForbidden} {
		gen := &scriptedGenerator{replies: []generation{{err: genErr}, {text: "never"}}}
		svc, slept := newTestService(gen, fakeFinder{stores: map[string]string{"alpha": "s"}})

		_, err := svc.Ask(context.Background(), "q", "alpha")
		require.ErrorIs(t, err, genErr)
		assert.Len(t, gen.prompts, 1, "the generator retries on its own")
		assert.Empty(t, *slept)
	}
}

func TestExampleQuestions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		replies []generation
		want    []string
	}{
		{
			name:    "grouped in fence",
			replies: []generation{{text: "Here:\n```json\n[{\"product\": \"A\", \"questions\": [\"q1\", \"q2\"]}, {\"product\": \"B\", \"questions\": [\"q3\"]}]\n```"}},
			want:    []string{"q1", "q2", "q3"},
		},
		{
			name:    "plain strings with chatter",
			replies: []generation{{text: "Sure! [\"one\", \"two\"] Hope that helps."}},
			want:    []string{"one", "two"},
		},
		{
			name:    "empty array",
			replies: []generation{{text: "[]"}},
			want:    FallbackQuestions,
		},
		{
			name:    "wrong shape",
			replies: []generation{{text: `[{"title": "x"}]`}},
			want:    FallbackQuestions,
		},
		{
			name:    "bad json then good",
			replies: []generation{{text: "not json"}, {text: `["fixed"]`}},
			want:    []string{"fixed"},
		},
		{
			name:    "generation error",
			replies: []generation{{err: docstore.ErrServerError}, {text: `["never"]`}},
			want:    FallbackQuestions,
		},
		{
			name:    "never parses",
			replies: []generation{{text: "a"}, {text: "b"}, {text: "c"}, {text: `["late"]`}},
			want:    FallbackQuestions,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc, _ := newTestService(&scriptedGenerator{replies: tt.replies}, fakeFinder{stores: map[string]string{"p": "s"}})

			got, err := svc.ExampleQuestions(context.Background(), "p")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExampleQuestions_ReparseDelays(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{replies: []generation{{text: "nope"}, {text: "still nope"}, {text: `["q"]`}}}
	svc, slept := newTestService(gen, fakeFinder{stores: map[string]string{"p": "s"}})

	got, err := svc.ExampleQuestions(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, []string{"q"}, got)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, *slept)
	assert.Len(t, gen.prompts, 3)
}

func TestExampleQuestions_NoStoreFallsBack(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(&scriptedGenerator{}, fakeFinder{})

	got, err := svc.ExampleQuestions(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, FallbackQuestions, got)
}

func TestResolveProject(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, config.SaveSettings(root, &config.Settings{ProjectName: "manuals"}))

	nested := filepath.Join(root, "a", "b")

	got, err := ResolveProject("", nested, "")
	require.NoError(t, err, "walks up even when the start dir does not exist yet")
	assert.Equal(t, "manuals", got)

	got, err = ResolveProject("explicit", nested, "")
	require.NoError(t, err)
	assert.Equal(t, "explicit", got)

	got, err = ResolveProject("", t.TempDir(), root)
	require.NoError(t, err)
	assert.Equal(t, "manuals", got)
}

func TestResolveProject_NoSettings(t *testing.T) {
	t.Parallel()

	_, err := ResolveProject("", t.TempDir(), "")
	require.ErrorIs(t, err, config.ErrNoProject)
}
