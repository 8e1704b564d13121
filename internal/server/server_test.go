package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/docsync/internal/assistant"
	"github.com/tonimelisma/docsync/internal/config"
	"github.com/tonimelisma/docsync/internal/docstore"
)

type fakeAsker struct {
	projects []string
	err      error
	asked    []string
}

func (f *fakeAsker) Ask(_ context.Context, query, project string) (*assistant.Reply, error) {
	f.asked = append(f.asked, project+":"+query)

	if f.err != nil {
		return nil, f.err
	}

	return &assistant.Reply{
		Project:   project,
		Text:      "answer to " + query,
		Citations: []docstore.Citation{{Title: "manual.pdf"}, {Title: "manual.pdf"}, {Title: "guide.md"}},
		Found:     true,
	}, nil
}

func (f *fakeAsker) Projects(context.Context) ([]string, error) {
	return f.projects, f.err
}

func (f *fakeAsker) ExampleQuestions(context.Context, string) ([]string, error) {
	return assistant.FallbackQuestions, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, asker Asker) *httptest.Server {
	t.Helper()

	ts := httptest.NewServer(New(asker, "127.0.0.1:0", quietLogger()).Handler())
	t.Cleanup(ts.Close)

	return ts
}

func TestProjects(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &fakeAsker{projects: []string{"alpha", "beta"}})

	resp, err := http.Get(ts.URL + "/api/projects")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	var got []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, []string{"alpha", "beta"}, got)
}

func TestProjects_EmptyIsArray(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &fakeAsker{})

	resp, err := http.Get(ts.URL + "/api/projects")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(body))
}

func TestChat(t *testing.T) {
	t.Parallel()

	asker := &fakeAsker{}
	ts := newTestServer(t, asker)

	resp, err := http.Post(ts.URL+"/api/chat", "application/json",
		strings.NewReader(`{"query": "how?", "projectName": "alpha"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "answer to how?", got["response"])
	assert.Len(t, got["citations"], 3)
	assert.Equal(t, []string{"alpha:how?"}, asker.asked)
}

func TestChat_BadRequests(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &fakeAsker{})

	for _, body := range []string{`{"query": "q"}`, `{"projectName": "p"}`, `not json`} {
		resp, err := http.Post(ts.URL+"/api/chat", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
}

func TestChat_Failure(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &fakeAsker{err: errors.New("backend down")})

	resp, err := http.Post(ts.URL+"/api/chat", "application/json",
		strings.NewReader(`{"query": "q", "projectName": "p"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var got errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Contains(t, got.Error, "backend down")
}

func TestPreflight(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &fakeAsker{})

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/chat", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")
}

func TestQuestionsAndHealth(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &fakeAsker{})

	resp, err := http.Get(ts.URL + "/api/projects/alpha/questions")
	require.NoError(t, err)
	defer resp.Body.Close()

	var got []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, assistant.FallbackQuestions, got)

	health, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func TestChatWebsocket(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &fakeAsker{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/api/chat/ws", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.NoError(t, wsjson.Write(ctx, conn, chatRequest{Query: "q1", ProjectName: "alpha"}))

	var msg struct {
		Type  string           `json:"type"`
		Reply *assistant.Reply `json:"reply"`
		Error string           `json:"error"`
	}

	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, "answer", msg.Type)
	require.NotNil(t, msg.Reply)
	assert.Equal(t, "answer to q1", msg.Reply.Text)

	require.NoError(t, wsjson.Write(ctx, conn, chatRequest{Query: "no project"}))

	msg.Reply = nil
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, "error", msg.Type)
	assert.Contains(t, msg.Error, "Missing")
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	srv := New(&fakeAsker{}, "127.0.0.1:0", quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- srv.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}

func callAsk(t *testing.T, asker Asker, resolve ProjectResolver, args map[string]any) *mcp.CallToolResult {
	t.Helper()

	var req mcp.CallToolRequest
	req.Params.Name = "ask_project"
	req.Params.Arguments = args

	res, err := askProjectHandler(asker, resolve, quietLogger())(context.Background(), req)
	require.NoError(t, err)

	return res
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()

	require.NotEmpty(t, res.Content)

	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)

	return text.Text
}

func TestAskProjectTool(t *testing.T) {
	t.Parallel()

	asker := &fakeAsker{}
	resolve := func(explicit string) (string, error) {
		if explicit != "" {
			return explicit, nil
		}

		return "from-settings", nil
	}

	res := callAsk(t, asker, resolve, map[string]any{"query": "q"})
	assert.False(t, res.IsError)

	text := resultText(t, res)
	assert.True(t, strings.HasPrefix(text, "answer to q"))
	assert.Equal(t, 1, strings.Count(text, "manual.pdf"), "sources de-duplicated")
	assert.Equal(t, []string{"from-settings:q"}, asker.asked)

	callAsk(t, asker, resolve, map[string]any{"query": "q2", "projectName": "beta"})
	assert.Equal(t, "beta:q2", asker.asked[1])
}

func TestAskProjectTool_Errors(t *testing.T) {
	t.Parallel()

	noProject := func(string) (string, error) { return "", config.ErrNoProject }

	res := callAsk(t, &fakeAsker{}, noProject, map[string]any{"query": "q"})
	assert.True(t, res.IsError)

	res = callAsk(t, &fakeAsker{}, noProject, map[string]any{})
	assert.True(t, res.IsError, "query is required")

	ok := func(string) (string, error) { return "p", nil }
	res = callAsk(t, &fakeAsker{err: errors.New("boom")}, ok, map[string]any{"query": "q"})
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "boom")
}

func TestNewMCPServer(t *testing.T) {
	t.Parallel()

	s := NewMCPServer(&fakeAsker{}, func(string) (string, error) { return "p", nil }, "test", quietLogger())
	require.NotNil(t, s)
}
