// Package llm streams chat completions from an OpenAI-compatible endpoint.
package llm

import (
	"context"
	"iter"

	"github.com/openai/openai-go"
)

// DefaultModel is the Ollama chat model.
const DefaultModel = "qwen3:14b"

// Role of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a chat prompt.
type Message struct {
	Role    Role
	Content string
}

// Model generates a reply to a list of messages as a stream of text
// segments. The sequence ends after the last segment, or after yielding a
// non-nil error.
type Model interface {
	Stream(ctx context.Context, messages []Message) iter.Seq2[string, error]
}

// OpenAIModel streams chat completions through openai-go.
type OpenAIModel struct {
	client *openai.Client
	model  string
}

// NewOpenAIModel creates a Model for the named chat model.
func NewOpenAIModel(client *openai.Client, model string) *OpenAIModel {
	if model == "" {
		model = DefaultModel
	}
	return &OpenAIModel{client: client, model: model}
}

// Name returns the model identifier sent with each request.
func (m *OpenAIModel) Name() string { return m.model }

// Stream opens a streaming completion and yields non-empty content deltas.
// Breaking out of the loop closes the stream.
func (m *OpenAIModel) Stream(ctx context.Context, messages []Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		stream := m.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
			Model:    openai.ChatModel(m.model),
			Messages: toParams(messages),
		})
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			segment := chunk.Choices[0].Delta.Content
			if segment == "" {
				continue
			}
			if !yield(segment, nil) {
				return
			}
		}

		if err := stream.Err(); err != nil {
			yield("", err)
		}
	}
}

func toParams(messages []Message) []openai.ChatCompletionMessageParamUnion {
	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			params = append(params, openai.SystemMessage(msg.Content))
		case RoleAssistant:
			params = append(params, openai.AssistantMessage(msg.Content))
		default:
			params = append(params, openai.UserMessage(msg.Content))
		}
	}
	return params
}
