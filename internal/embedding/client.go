package embedding

import (
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Client wraps an OpenAI-compatible client. Ollama serves this API under
// its /v1/ prefix, so the same client drives embeddings and generation.
type Client struct {
	client *openai.Client
}

// NewClient creates a client for the OpenAI-compatible API at baseURL.
// Retries are left to the callers, which back off on rate limits themselves.
func NewClient(baseURL, apiKey string, opts ...option.RequestOption) *Client {
	opts = append([]option.RequestOption{
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)

	client := openai.NewClient(opts...)
	return &Client{client: &client}
}

// Client returns the underlying OpenAI client for use in other packages (e.g., the chat model).
func (c *Client) Client() *openai.Client {
	return c.client
}
