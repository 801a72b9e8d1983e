package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/ragchat/internal/chain"
	"github.com/bull/ragchat/internal/history"
	"github.com/bull/ragchat/internal/storage"
)

var hits = []storage.ScoredRecord{
	{Record: storage.Record{SourceURI: "https://en.wikipedia.org/wiki/MongoDB", Index: 0, Text: "MongoDB is a NoSQL database.", HeaderPath: "# MongoDB"}, Score: 0.91},
	{Record: storage.Record{SourceURI: "https://en.wikipedia.org/wiki/MongoDB", Index: 3, Text: "It stores documents."}, Score: 0.72},
	{Record: storage.Record{SourceURI: "https://en.wikipedia.org/wiki/NoSQL", Index: 1, Text: "NoSQL databases..."}, Score: 0.55},
}

type fakeAsker struct {
	turns map[string][]history.Turn
	err   error
}

func (f *fakeAsker) Ask(_ context.Context, session, input string, sink chain.Sink) (*chain.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	res := &chain.Result{Context: hits}
	for _, seg := range []string{"MongoDB", " is", " a", " NoSQL", " database."} {
		if err := sink(seg); err != nil {
			return nil, err
		}
		res.Answer += seg
		res.Segments++
	}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	f.turns[session] = append(f.turns[session], history.UserTurn(input, now), history.AssistantTurn(res.Answer, now))
	res.State = chain.HistoryAppended
	return res, nil
}

func (f *fakeAsker) History(_ context.Context, session string) ([]history.Turn, error) {
	return f.turns[session], nil
}

type fakeSearcher struct {
	hits []storage.ScoredRecord
}

func (f fakeSearcher) Retrieve(context.Context, string) ([]storage.ScoredRecord, error) {
	return f.hits, nil
}

// connect runs srv over an in-memory transport and returns a client session.
func connect(t *testing.T, srv *Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	ss, err := srv.server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

// callTool invokes name and decodes its structured output into out.
func callTool(t *testing.T, cs *mcp.ClientSession, name string, args any, out any) *mcp.CallToolResult {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	if out != nil && !res.IsError {
		raw, err := json.Marshal(res.StructuredContent)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, out))
	}
	return res
}

func TestTools_Listed(t *testing.T) {
	cs := connect(t, NewServer(&Config{Asker: &fakeAsker{turns: map[string][]history.Turn{}}, Searcher: fakeSearcher{}}))

	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"ask", "search", "history"}, names)
}

func TestAsk_CollectsAnswerAndSources(t *testing.T) {
	asker := &fakeAsker{turns: map[string][]history.Turn{}}
	cs := connect(t, NewServer(&Config{Asker: asker, Searcher: fakeSearcher{}}))

	var out AskOutput
	res := callTool(t, cs, "ask", map[string]any{"session": "s1", "question": "What is MongoDB?"}, &out)

	require.False(t, res.IsError)
	assert.Equal(t, "MongoDB is a NoSQL database.", out.Answer)
	assert.Equal(t, 5, out.Segments)
	assert.Equal(t, []string{"https://en.wikipedia.org/wiki/MongoDB", "https://en.wikipedia.org/wiki/NoSQL"}, out.Sources)

	var hist HistoryOutput
	callTool(t, cs, "history", map[string]any{"session": "s1"}, &hist)
	require.Equal(t, 2, hist.Count)
	assert.Equal(t, "user", hist.Turns[0].Role)
	assert.Equal(t, "What is MongoDB?", hist.Turns[0].Content)
	assert.Equal(t, "assistant", hist.Turns[1].Role)
}

func TestAsk_ErrorIsToolError(t *testing.T) {
	asker := &fakeAsker{err: chain.ErrEmptyInput}
	cs := connect(t, NewServer(&Config{Asker: asker, Searcher: fakeSearcher{}}))

	res := callTool(t, cs, "ask", map[string]any{"session": "s1", "question": ""}, nil)

	require.True(t, res.IsError)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.True(t, strings.Contains(text.Text, chain.ErrEmptyInput.Error()))
}

func TestSearch_ReturnsRankedHits(t *testing.T) {
	cs := connect(t, NewServer(&Config{Asker: &fakeAsker{}, Searcher: fakeSearcher{hits: hits}}))

	var out SearchOutput
	res := callTool(t, cs, "search", map[string]any{"query": "NoSQL"}, &out)

	require.False(t, res.IsError)
	require.Len(t, out.Results, 3)
	assert.Equal(t, SearchResult{
		Source:     "https://en.wikipedia.org/wiki/MongoDB",
		Index:      0,
		HeaderPath: "# MongoDB",
		Score:      0.91,
		Text:       "MongoDB is a NoSQL database.",
	}, out.Results[0])
	assert.Equal(t, 3, out.Results[1].Index)
	assert.Empty(t, out.Message)
}

func TestSearch_EmptyIndex(t *testing.T) {
	cs := connect(t, NewServer(&Config{Asker: &fakeAsker{}, Searcher: fakeSearcher{}}))

	var out SearchOutput
	callTool(t, cs, "search", map[string]any{"query": "anything"}, &out)

	assert.Empty(t, out.Results)
	assert.NotEmpty(t, out.Message)
}

func TestHistory_UnknownSession(t *testing.T) {
	cs := connect(t, NewServer(&Config{Asker: &fakeAsker{turns: map[string][]history.Turn{}}, Searcher: fakeSearcher{}}))

	var out HistoryOutput
	res := callTool(t, cs, "history", map[string]any{"session": "nobody"}, &out)

	require.False(t, res.IsError)
	assert.Equal(t, 0, out.Count)
	assert.Empty(t, out.Turns)
}

func TestHTTPHandler(t *testing.T) {
	for _, stateless := range []bool{true, false} {
		t.Run(fmt.Sprintf("stateless=%v", stateless), func(t *testing.T) {
			srv := NewServer(&Config{Asker: &fakeAsker{}, Searcher: fakeSearcher{hits: hits}})
			ts := httptest.NewServer(srv.HTTPHandler(stateless))
			t.Cleanup(ts.Close)

			client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
			cs, err := client.Connect(context.Background(), &mcp.StreamableClientTransport{Endpoint: ts.URL, HTTPClient: ts.Client()}, nil)
			require.NoError(t, err)
			t.Cleanup(func() { _ = cs.Close() })

			var out SearchOutput
			res := callTool(t, cs, "search", map[string]any{"query": "What is MongoDB?"}, &out)
			require.False(t, res.IsError)
			require.Len(t, out.Results, 3)
			assert.Equal(t, "https://en.wikipedia.org/wiki/MongoDB", out.Results[0].Source)
		})
	}
}
