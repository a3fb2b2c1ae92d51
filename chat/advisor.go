package chat

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/fabfab/ragserver/embeddings"
	"github.com/fabfab/ragserver/llm"
	"github.com/fabfab/ragserver/memory"
	"github.com/fabfab/ragserver/vectorstore"
)

// TurnContext is the shared mutable state of one chat turn. Advisors read
// and rewrite it before handing control to the next stage.
type TurnContext struct {
	ConversationID string
	// Message is the raw user message; it is what gets persisted.
	Message string
	// Query is the retrieval query, initially equal to Message; the rewrite
	// advisor may replace it.
	Query string
	// History holds prior conversation turns, excluding the system prompt.
	History []llm.Message
	// Documents are the retrieved chunks supplied to the model.
	Documents []vectorstore.Result
	// Answer is the generated reply, set by the terminal stage.
	Answer string
}

type AdviseFunc func(ctx context.Context, turn *TurnContext) error

// Advisor is one stage of the request pipeline. An implementation may mutate
// the turn before and after invoking next; skipping next short-circuits the
// chain.
type Advisor interface {
	Name() string
	Advise(ctx context.Context, turn *TurnContext, next AdviseFunc) error
}

// runChain composes the advisors into a single AdviseFunc around terminal
// and runs it. Advisors execute in slice order.
func runChain(ctx context.Context, advisors []Advisor, terminal AdviseFunc, turn *TurnContext) error {
	next := terminal
	for i := len(advisors) - 1; i >= 0; i-- {
		advisor := advisors[i]
		inner := next
		next = func(ctx context.Context, turn *TurnContext) error {
			return advisor.Advise(ctx, turn, inner)
		}
	}
	return next(ctx, turn)
}

// memoryAdvisor loads the conversation window before generation and commits
// the user and assistant turns in one atomic append after generation
// succeeds. A failed or cancelled turn commits nothing.
type memoryAdvisor struct {
	store memory.Store
}

func newMemoryAdvisor(store memory.Store) *memoryAdvisor {
	return &memoryAdvisor{store: store}
}

func (a *memoryAdvisor) Name() string { return "memory" }

func (a *memoryAdvisor) Advise(ctx context.Context, turn *TurnContext, next AdviseFunc) error {
	history, err := a.store.GetOrCreate(ctx, turn.ConversationID)
	if err != nil {
		return fmt.Errorf("load conversation %s: %w", turn.ConversationID, err)
	}

	turn.History = make([]llm.Message, len(history))
	for i, msg := range history {
		turn.History[i] = llm.Message{Role: msg.Role, Content: msg.Content}
	}

	if err := next(ctx, turn); err != nil {
		return err
	}

	if err := a.store.Append(ctx, turn.ConversationID,
		memory.Message{Role: llm.RoleUser, Content: turn.Message},
		memory.Message{Role: llm.RoleAssistant, Content: turn.Answer},
	); err != nil {
		return fmt.Errorf("append conversation %s: %w", turn.ConversationID, err)
	}
	return nil
}

// rewriteAdvisor asks the model to rewrite the retrieval query. A rewrite
// failure keeps the original query; retrieval must not die on it.
type rewriteAdvisor struct {
	client llm.Client
	logger *log.Logger
}

func newRewriteAdvisor(client llm.Client, logger *log.Logger) *rewriteAdvisor {
	return &rewriteAdvisor{client: client, logger: logger}
}

func (a *rewriteAdvisor) Name() string { return "rewrite" }

func (a *rewriteAdvisor) Advise(ctx context.Context, turn *TurnContext, next AdviseFunc) error {
	rewritten, err := a.client.Generate(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: rewriteInstruction},
		{Role: llm.RoleUser, Content: turn.Query},
	})
	if err != nil {
		a.logger.Printf("query rewrite failed, keeping original: %v", err)
	} else if trimmed := strings.TrimSpace(rewritten); trimmed != "" {
		turn.Query = trimmed
	}

	return next(ctx, turn)
}

// retrievalAdvisor embeds the query and pulls the top-K chunks above the
// similarity floor into the turn.
type retrievalAdvisor struct {
	store    vectorstore.Store
	embedder embeddings.Embedder
	topK     int
	floor    float64
	logger   *log.Logger
}

func newRetrievalAdvisor(store vectorstore.Store, embedder embeddings.Embedder, topK int, floor float64, logger *log.Logger) *retrievalAdvisor {
	return &retrievalAdvisor{store: store, embedder: embedder, topK: topK, floor: floor, logger: logger}
}

func (a *retrievalAdvisor) Name() string { return "retrieval" }

func (a *retrievalAdvisor) Advise(ctx context.Context, turn *TurnContext, next AdviseFunc) error {
	vectors, err := a.embedder.Embed(ctx, []string{turn.Query})
	if err != nil {
		return fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return fmt.Errorf("embedder returned no vectors")
	}

	results, err := a.store.Search(ctx, vectorstore.SearchRequest{
		Embedding: vectors[0],
		TopK:      a.topK,
		Floor:     a.floor,
	})
	if err != nil {
		return fmt.Errorf("vector search: %w", err)
	}

	if len(results) == 0 {
		a.logger.Printf("no context found for query, answering without documents")
	}
	turn.Documents = results

	return next(ctx, turn)
}
