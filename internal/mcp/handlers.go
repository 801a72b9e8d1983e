package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// makeAskHandler creates the ask tool handler. MCP tool results are not
// streamed, so segments are collected and returned as one answer.
func makeAskHandler(asker Asker) func(
	context.Context, *mcp.CallToolRequest, AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskInput) (
		*mcp.CallToolResult, AskOutput, error,
	) {
		res, err := asker.Ask(ctx, input.Session, input.Question, func(string) error { return nil })
		if err != nil {
			return nil, AskOutput{}, fmt.Errorf("ask failed: %w", err)
		}

		sources := make([]string, 0, len(res.Context))
		seen := make(map[string]bool)
		for _, hit := range res.Context {
			if !seen[hit.SourceURI] {
				seen[hit.SourceURI] = true
				sources = append(sources, hit.SourceURI)
			}
		}

		return nil, AskOutput{
			Answer:   res.Answer,
			Segments: res.Segments,
			Sources:  sources,
		}, nil
	}
}

// makeSearchHandler creates the search tool handler.
func makeSearchHandler(searcher Searcher) func(
	context.Context, *mcp.CallToolRequest, SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (
		*mcp.CallToolResult, SearchOutput, error,
	) {
		hits, err := searcher.Retrieve(ctx, input.Query)
		if err != nil {
			return nil, SearchOutput{}, fmt.Errorf("search failed: %w", err)
		}

		if len(hits) == 0 {
			return nil, SearchOutput{
				Results: []SearchResult{},
				Message: "No matching chunks found. The index may be empty.",
			}, nil
		}

		results := make([]SearchResult, len(hits))
		for i, hit := range hits {
			results[i] = SearchResult{
				Source:     hit.SourceURI,
				Index:      hit.Index,
				HeaderPath: hit.HeaderPath,
				Score:      hit.Score,
				Text:       hit.Text,
			}
		}
		return nil, SearchOutput{Results: results}, nil
	}
}

// makeHistoryHandler creates the history tool handler.
func makeHistoryHandler(asker Asker) func(
	context.Context, *mcp.CallToolRequest, HistoryInput,
) (*mcp.CallToolResult, HistoryOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input HistoryInput) (
		*mcp.CallToolResult, HistoryOutput, error,
	) {
		turns, err := asker.History(ctx, input.Session)
		if err != nil {
			return nil, HistoryOutput{}, fmt.Errorf("failed to load history: %w", err)
		}

		out := HistoryOutput{Turns: make([]Turn, len(turns)), Count: len(turns)}
		for i, t := range turns {
			out.Turns[i] = Turn{Role: string(t.Role), Content: t.Content, CreatedAt: t.CreatedAt}
		}
		return nil, out, nil
	}
}
