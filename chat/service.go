package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/fabfab/ragserver/embeddings"
	"github.com/fabfab/ragserver/llm"
	"github.com/fabfab/ragserver/memory"
	"github.com/fabfab/ragserver/tools"
	"github.com/fabfab/ragserver/vectorstore"
)

const (
	// DefaultConversationID is substituted for absent or blank ids.
	DefaultConversationID = "default"

	defaultTopK            = 5
	defaultSimilarityFloor = 0.5
)

var ErrEmptyMessage = errors.New("message cannot be blank")

type Config struct {
	TopK            int
	SimilarityFloor float64
	RewriteQueries  bool
}

// Service orchestrates chat turns. A turn runs through an ordered advisor
// chain (memory, optional query rewrite, optional retrieval) around a
// terminal generation stage.
type Service struct {
	vectors  vectorstore.Store
	memory   memory.Store
	embedder embeddings.Embedder
	llm      llm.Client
	registry *tools.Registry
	logger   *log.Logger
	cfg      Config
}

func NewService(vectors vectorstore.Store, mem memory.Store, embedder embeddings.Embedder, llmClient llm.Client, registry *tools.Registry, logger *log.Logger, cfg Config) *Service {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	if cfg.SimilarityFloor <= 0 {
		cfg.SimilarityFloor = defaultSimilarityFloor
	}

	return &Service{
		vectors:  vectors,
		memory:   mem,
		embedder: embedder,
		llm:      llmClient,
		registry: registry,
		logger:   logger,
		cfg:      cfg,
	}
}

// Answer runs one chat turn. With useRAG the prompt is augmented with
// retrieved document chunks and the response carries their source names.
func (s *Service) Answer(ctx context.Context, message, conversationID string, useRAG bool) (Response, error) {
	return s.answer(ctx, message, conversationID, useRAG, nil)
}

// AnswerStream behaves like Answer but delivers the reply incrementally
// through emit, in order and unbuffered. Conversation history is committed
// only after the stream completes; a cancelled stream commits nothing.
func (s *Service) AnswerStream(ctx context.Context, message, conversationID string, useRAG bool, emit func(string) error) (Response, error) {
	if emit == nil {
		return Response{}, fmt.Errorf("emit callback is required")
	}
	return s.answer(ctx, message, conversationID, useRAG, emit)
}

func (s *Service) answer(ctx context.Context, message, conversationID string, useRAG bool, emit func(string) error) (Response, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Response{}, ErrEmptyMessage
	}
	if strings.TrimSpace(conversationID) == "" {
		conversationID = DefaultConversationID
	}
	if s.llm == nil {
		return Response{}, fmt.Errorf("llm client is not configured")
	}

	turn := &TurnContext{
		ConversationID: conversationID,
		Message:        message,
		Query:          message,
	}

	advisors := []Advisor{newMemoryAdvisor(s.memory)}
	if useRAG {
		if s.embedder == nil {
			return Response{}, fmt.Errorf("embedder is not configured")
		}
		if s.vectors == nil {
			return Response{}, fmt.Errorf("vector store is not configured")
		}
		if s.cfg.RewriteQueries {
			advisors = append(advisors, newRewriteAdvisor(s.llm, s.logger))
		}
		advisors = append(advisors, newRetrievalAdvisor(s.vectors, s.embedder, s.cfg.TopK, s.cfg.SimilarityFloor, s.logger))
	}

	if err := runChain(ctx, advisors, s.generate(useRAG, emit), turn); err != nil {
		return Response{}, err
	}

	return Response{
		Content:        turn.Answer,
		ConversationID: conversationID,
		Sources:        sourceNames(turn.Documents),
		Timestamp:      time.Now(),
	}, nil
}

// generate is the terminal chain stage: it assembles the prompt from the
// turn and invokes the completion provider, streaming when emit is set.
func (s *Service) generate(useRAG bool, emit func(string) error) AdviseFunc {
	return func(ctx context.Context, turn *TurnContext) error {
		messages := buildPrompt(turn, useRAG)

		if emit != nil {
			if streamer, ok := s.llm.(llm.StreamClient); ok {
				var builder strings.Builder
				err := streamer.GenerateStream(ctx, messages, func(chunk string) error {
					if chunk == "" {
						return nil
					}
					builder.WriteString(chunk)
					return emit(chunk)
				})
				if err != nil {
					return fmt.Errorf("llm stream generate: %w", err)
				}
				turn.Answer = strings.TrimSpace(builder.String())
				return nil
			}

			// No streaming support: generate once, emit the full reply.
			answer, err := s.generateOnce(ctx, messages, useRAG)
			if err != nil {
				return err
			}
			turn.Answer = answer
			return emit(answer)
		}

		answer, err := s.generateOnce(ctx, messages, useRAG)
		if err != nil {
			return err
		}
		turn.Answer = answer
		return nil
	}
}

func (s *Service) generateOnce(ctx context.Context, messages []llm.Message, useRAG bool) (string, error) {
	// Document tools are offered on the plain-chat path only; the RAG path
	// already carries retrieved context.
	if !useRAG && s.registry != nil {
		if toolClient, ok := s.llm.(llm.ToolClient); ok {
			answer, err := toolClient.GenerateWithTools(ctx, messages, s.registry.Schemas(), s.registry.Dispatch)
			if err != nil {
				return "", fmt.Errorf("llm generate with tools: %w", err)
			}
			return strings.TrimSpace(answer), nil
		}
	}

	answer, err := s.llm.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("llm generate: %w", err)
	}
	return strings.TrimSpace(answer), nil
}

// Analyze answers a one-shot analysis query with a specialized system prompt
// selected by the validated query type. Analysis turns use retrieval but no
// conversation memory.
func (s *Service) Analyze(ctx context.Context, query string, queryType QueryType) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrEmptyMessage
	}

	prompt, ok := analysisPrompts[queryType]
	if !ok {
		return "", fmt.Errorf("unknown query type: %q", queryType)
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return "", fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return "", fmt.Errorf("embedder returned no vectors")
	}

	results, err := s.vectors.Search(ctx, vectorstore.SearchRequest{
		Embedding: vectors[0],
		TopK:      s.cfg.TopK,
		Floor:     s.cfg.SimilarityFloor,
	})
	if err != nil {
		return "", fmt.Errorf("vector search: %w", err)
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: prompt},
		{Role: llm.RoleUser, Content: formatUserPrompt("Using the provided document content, "+query, results)},
	}

	answer, err := s.llm.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("llm generate: %w", err)
	}
	return strings.TrimSpace(answer), nil
}

func buildPrompt(turn *TurnContext, useRAG bool) []llm.Message {
	system := plainSystemPrompt
	if useRAG {
		system = ragSystemPrompt
	}

	messages := make([]llm.Message, 0, len(turn.History)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})
	messages = append(messages, turn.History...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: formatUserPrompt(turn.Message, turn.Documents)})
	return messages
}

func formatUserPrompt(message string, docs []vectorstore.Result) string {
	if len(docs) == 0 {
		return message
	}

	var sb strings.Builder
	sb.WriteString("Context from the knowledge base:\n\n")
	for i, doc := range docs {
		source := doc.Metadata[vectorstore.MetaSource]
		if source == "" {
			source = doc.Metadata[vectorstore.MetaFilename]
		}
		sb.WriteString(fmt.Sprintf("[%d] %s\n%s\n\n", i+1, path.Base(source), doc.Content))
	}
	sb.WriteString("Question:\n")
	sb.WriteString(message)
	return sb.String()
}

// sourceNames derives the sorted, duplicate-free basenames of the source
// metadata across every chunk supplied to the model.
func sourceNames(docs []vectorstore.Result) []string {
	seen := make(map[string]struct{}, len(docs))
	names := make([]string, 0, len(docs))
	for _, doc := range docs {
		source := doc.Metadata[vectorstore.MetaSource]
		if source == "" {
			source = doc.Metadata[vectorstore.MetaFilename]
		}
		if source == "" {
			continue
		}
		name := path.Base(strings.ReplaceAll(source, "\\", "/"))
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
