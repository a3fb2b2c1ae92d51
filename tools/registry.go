// Package tools holds the function-calling registry: every tool is an
// explicit schema registered in a table, and dispatch from a model-requested
// name to its handler is a plain map lookup.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fabfab/ragserver/llm"
)

// Handler executes one tool invocation with decoded JSON arguments.
type Handler func(ctx context.Context, args map[string]any) (string, error)

type Registry struct {
	schemas  []llm.Tool
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(schema llm.Tool, handler Handler) error {
	if schema.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if handler == nil {
		return fmt.Errorf("tool %s has no handler", schema.Name)
	}
	if _, exists := r.handlers[schema.Name]; exists {
		return fmt.Errorf("tool %s already registered", schema.Name)
	}

	r.schemas = append(r.schemas, schema)
	r.handlers[schema.Name] = handler
	return nil
}

func (r *Registry) Schemas() []llm.Tool {
	copied := make([]llm.Tool, len(r.schemas))
	copy(copied, r.schemas)
	return copied
}

// Dispatch decodes the raw JSON arguments and routes the call to the
// registered handler. Unknown names are errors, not silent no-ops.
func (r *Registry) Dispatch(ctx context.Context, name, arguments string) (string, error) {
	handler, ok := r.handlers[name]
	if !ok {
		return "", fmt.Errorf("unknown tool: %s", name)
	}

	args := map[string]any{}
	if arguments != "" {
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return "", fmt.Errorf("decode arguments for %s: %w", name, err)
		}
	}

	return handler(ctx, args)
}
