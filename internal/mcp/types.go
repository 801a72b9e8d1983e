// Package mcp exposes the chat chain as MCP tools.
package mcp

import "time"

// AskInput defines the input parameters for the ask tool.
type AskInput struct {
	// Session names the conversation the question belongs to.
	Session string `json:"session" jsonschema:"Conversation identifier; turns in the same session share history"`
	// Question is the user's turn.
	Question string `json:"question" jsonschema:"The question to answer from the indexed documents"`
}

// AskOutput contains the complete answer.
type AskOutput struct {
	Answer   string `json:"answer"`
	Segments int    `json:"segments"`
	// Sources lists the distinct documents the context came from.
	Sources []string `json:"sources"`
}

// SearchInput defines the input parameters for the search tool.
type SearchInput struct {
	// Query is the semantic search query.
	Query string `json:"query" jsonschema:"The semantic search query"`
}

// SearchOutput contains the retrieved chunks, most similar first.
type SearchOutput struct {
	Results []SearchResult `json:"results"`
	// Message provides informational context (e.g., "No matching chunks found").
	Message string `json:"message,omitempty"`
}

// SearchResult represents a single chunk match.
type SearchResult struct {
	Source     string  `json:"source"`
	Index      int     `json:"index"`
	HeaderPath string  `json:"header_path,omitempty"`
	Score      float64 `json:"score"`
	Text       string  `json:"text"`
}

// HistoryInput defines the input parameters for the history tool.
type HistoryInput struct {
	Session string `json:"session" jsonschema:"Conversation identifier"`
}

// HistoryOutput lists a session's turns, oldest first.
type HistoryOutput struct {
	Turns []Turn `json:"turns"`
	Count int    `json:"count"`
}

// Turn is one stored message.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
