package llm

import (
	"context"
	"fmt"

	"github.com/fabfab/ragserver/config"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string
	Content string
}

type Client interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

// StreamClient is implemented by clients that can emit the reply
// incrementally. Each callback invocation receives one content increment in
// order; returning an error from the callback aborts the stream.
type StreamClient interface {
	GenerateStream(ctx context.Context, messages []Message, fn func(string) error) error
}

// Tool describes one callable function exposed to the model. Schemas are
// declared explicitly and registered in a table; there is no reflection.
type Tool struct {
	Name        string
	Description string
	Params      []ToolParam
}

type ToolParam struct {
	Name        string
	Type        string
	Description string
	Required    bool
}

// DispatchFunc resolves a model-requested tool invocation. It receives the
// tool name and the raw JSON arguments and returns the tool output.
type DispatchFunc func(ctx context.Context, name, arguments string) (string, error)

// ToolClient is implemented by clients that support function calling. The
// client loops until the model produces a final text reply, dispatching each
// requested invocation through the supplied DispatchFunc.
type ToolClient interface {
	GenerateWithTools(ctx context.Context, messages []Message, tools []Tool, dispatch DispatchFunc) (string, error)
}

type Options struct {
	Provider string
	Model    string

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

func NewClient(cfg config.Config) (Client, error) {
	opts := Options{
		Provider:      cfg.LLM.Provider,
		Model:         cfg.LLM.Model,
		OllamaHost:    cfg.OllamaHost,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
	}

	switch opts.Provider {
	case config.ProviderOllama:
		return NewOllamaClient(opts), nil
	case config.ProviderOpenAI:
		if opts.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider selected but OPENAI_API_KEY not set")
		}
		return NewOpenAIClient(opts), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", opts.Provider)
	}
}
