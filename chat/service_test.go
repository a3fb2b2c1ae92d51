package chat

import (
	"context"
	"errors"
	"io"
	"log"
	"reflect"
	"strings"
	"testing"

	"github.com/fabfab/ragserver/llm"
	"github.com/fabfab/ragserver/memory"
	"github.com/fabfab/ragserver/vectorstore"
)

type stubLLM struct {
	generate func(ctx context.Context, messages []llm.Message) (string, error)
	calls    [][]llm.Message
}

func (s *stubLLM) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	s.calls = append(s.calls, messages)
	if s.generate != nil {
		return s.generate(ctx, messages)
	}
	return "stub answer", nil
}

var _ llm.Client = (*stubLLM)(nil)

type stubStreamLLM struct {
	stubLLM
	chunks    []string
	streamErr error
}

func (s *stubStreamLLM) GenerateStream(_ context.Context, _ []llm.Message, fn func(string) error) error {
	for _, chunk := range s.chunks {
		if err := fn(chunk); err != nil {
			return err
		}
	}
	return s.streamErr
}

var _ llm.StreamClient = (*stubStreamLLM)(nil)

type stubEmbedder struct {
	err error
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0, 0}
	}
	return vectors, nil
}

type stubVectors struct {
	results []vectorstore.Result
	lastReq vectorstore.SearchRequest
}

func (s *stubVectors) Add(context.Context, []vectorstore.Chunk) error { return nil }

func (s *stubVectors) Search(_ context.Context, req vectorstore.SearchRequest) ([]vectorstore.Result, error) {
	s.lastReq = req
	return s.results, nil
}

func (s *stubVectors) DeleteByDocumentID(context.Context, string) error { return nil }

func (s *stubVectors) Count(context.Context) (int, error) { return len(s.results), nil }

var _ vectorstore.Store = (*stubVectors)(nil)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func resultWithSource(source, content string) vectorstore.Result {
	return vectorstore.Result{
		Chunk: vectorstore.Chunk{
			Content:  content,
			Metadata: map[string]string{vectorstore.MetaSource: source},
		},
		Score: 0.9,
	}
}

func TestAnswerBlankMessage(t *testing.T) {
	svc := NewService(&stubVectors{}, memory.NewInMemoryStore(0), &stubEmbedder{}, &stubLLM{}, nil, testLogger(), Config{})

	if _, err := svc.Answer(context.Background(), "   ", "c1", false); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestAnswerPlainChat(t *testing.T) {
	mem := memory.NewInMemoryStore(0)
	client := &stubLLM{generate: func(context.Context, []llm.Message) (string, error) {
		return "  hello there  ", nil
	}}
	svc := NewService(&stubVectors{}, mem, &stubEmbedder{}, client, nil, testLogger(), Config{})

	resp, err := svc.Answer(context.Background(), "hi", "", false)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if resp.Content != "hello there" {
		t.Errorf("content = %q, want trimmed reply", resp.Content)
	}
	if resp.ConversationID != DefaultConversationID {
		t.Errorf("conversation id = %q, want %q", resp.ConversationID, DefaultConversationID)
	}
	if len(resp.Sources) != 0 {
		t.Errorf("plain chat returned sources: %v", resp.Sources)
	}

	history, err := mem.GetOrCreate(context.Background(), DefaultConversationID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[0].Role != llm.RoleUser || history[1].Role != llm.RoleAssistant {
		t.Fatalf("history = %+v, want one user and one assistant turn", history)
	}
	if history[1].Content != "hello there" {
		t.Errorf("persisted assistant turn = %q", history[1].Content)
	}
}

func TestAnswerRAGSources(t *testing.T) {
	vectors := &stubVectors{results: []vectorstore.Result{
		resultWithSource("docs/zebra.pdf", "z"),
		resultWithSource(`C:\uploads\alpha.md`, "a"),
		resultWithSource("docs/zebra.pdf", "z again"),
	}}
	svc := NewService(vectors, memory.NewInMemoryStore(0), &stubEmbedder{}, &stubLLM{}, nil, testLogger(), Config{})

	resp, err := svc.Answer(context.Background(), "what about zebras?", "c1", true)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}

	want := []string{"alpha.md", "zebra.pdf"}
	if !reflect.DeepEqual(resp.Sources, want) {
		t.Errorf("sources = %v, want sorted distinct basenames %v", resp.Sources, want)
	}
}

func TestAnswerRAGUsesConfiguredRetrieval(t *testing.T) {
	vectors := &stubVectors{}
	svc := NewService(vectors, memory.NewInMemoryStore(0), &stubEmbedder{}, &stubLLM{}, nil, testLogger(), Config{
		TopK:            3,
		SimilarityFloor: 0.7,
	})

	if _, err := svc.Answer(context.Background(), "query", "c1", true); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if vectors.lastReq.TopK != 3 || vectors.lastReq.Floor != 0.7 {
		t.Errorf("search request = %+v, want topK=3 floor=0.7", vectors.lastReq)
	}
}

func TestAnswerRAGPromptCarriesContext(t *testing.T) {
	vectors := &stubVectors{results: []vectorstore.Result{
		resultWithSource("guide.md", "chunk content"),
	}}
	client := &stubLLM{}
	svc := NewService(vectors, memory.NewInMemoryStore(0), &stubEmbedder{}, client, nil, testLogger(), Config{})

	if _, err := svc.Answer(context.Background(), "question", "c1", true); err != nil {
		t.Fatalf("answer: %v", err)
	}

	last := client.calls[len(client.calls)-1]
	user := last[len(last)-1]
	if user.Role != llm.RoleUser {
		t.Fatalf("last prompt message role = %q", user.Role)
	}
	if !strings.Contains(user.Content, "chunk content") || !strings.Contains(user.Content, "guide.md") {
		t.Errorf("user prompt missing retrieved context:\n%s", user.Content)
	}
	if !strings.Contains(user.Content, "Question:\nquestion") {
		t.Errorf("user prompt missing question section:\n%s", user.Content)
	}
}

func TestAnswerRewriteFailureKeepsOriginalQuery(t *testing.T) {
	vectors := &stubVectors{}
	calls := 0
	client := &stubLLM{generate: func(context.Context, []llm.Message) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("rewrite model down")
		}
		return "answer", nil
	}}
	svc := NewService(vectors, memory.NewInMemoryStore(0), &stubEmbedder{}, client, nil, testLogger(), Config{
		RewriteQueries: true,
	})

	resp, err := svc.Answer(context.Background(), "original question", "c1", true)
	if err != nil {
		t.Fatalf("rewrite failure must not fail the turn: %v", err)
	}
	if resp.Content != "answer" {
		t.Errorf("content = %q", resp.Content)
	}
	if calls != 2 {
		t.Errorf("generate calls = %d, want rewrite attempt plus completion", calls)
	}
}

func TestAnswerStreamDelivery(t *testing.T) {
	mem := memory.NewInMemoryStore(0)
	client := &stubStreamLLM{chunks: []string{"one ", "two ", "three"}}
	svc := NewService(&stubVectors{}, mem, &stubEmbedder{}, client, nil, testLogger(), Config{})

	var got []string
	resp, err := svc.AnswerStream(context.Background(), "hi", "c1", false, func(chunk string) error {
		got = append(got, chunk)
		return nil
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}

	if !reflect.DeepEqual(got, []string{"one ", "two ", "three"}) {
		t.Errorf("chunks = %v", got)
	}
	if resp.Content != "one two three" {
		t.Errorf("content = %q, want trimmed concatenation", resp.Content)
	}

	history, _ := mem.GetOrCreate(context.Background(), "c1")
	if len(history) != 2 {
		t.Fatalf("history length = %d, want user and assistant committed once", len(history))
	}
	if history[1].Content != "one two three" {
		t.Errorf("persisted assistant turn = %q", history[1].Content)
	}
}

func TestAnswerStreamFailureCommitsNothing(t *testing.T) {
	mem := memory.NewInMemoryStore(0)
	client := &stubStreamLLM{chunks: []string{"partial"}, streamErr: errors.New("connection reset")}
	svc := NewService(&stubVectors{}, mem, &stubEmbedder{}, client, nil, testLogger(), Config{})

	_, err := svc.AnswerStream(context.Background(), "hi", "c1", false, func(string) error { return nil })
	if err == nil {
		t.Fatal("expected stream error")
	}

	history, _ := mem.GetOrCreate(context.Background(), "c1")
	if len(history) != 0 {
		t.Fatalf("failed stream committed history: %+v", history)
	}
}

func TestAnswerStreamRequiresEmit(t *testing.T) {
	svc := NewService(&stubVectors{}, memory.NewInMemoryStore(0), &stubEmbedder{}, &stubLLM{}, nil, testLogger(), Config{})

	if _, err := svc.AnswerStream(context.Background(), "hi", "c1", false, nil); err == nil {
		t.Fatal("expected error for nil emit callback")
	}
}

func TestAnswerStreamFallbackWithoutStreamSupport(t *testing.T) {
	client := &stubLLM{generate: func(context.Context, []llm.Message) (string, error) {
		return "whole reply", nil
	}}
	svc := NewService(&stubVectors{}, memory.NewInMemoryStore(0), &stubEmbedder{}, client, nil, testLogger(), Config{})

	var got []string
	resp, err := svc.AnswerStream(context.Background(), "hi", "c1", false, func(chunk string) error {
		got = append(got, chunk)
		return nil
	})
	if err != nil {
		t.Fatalf("stream fallback: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"whole reply"}) {
		t.Errorf("chunks = %v, want single full reply", got)
	}
	if resp.Content != "whole reply" {
		t.Errorf("content = %q", resp.Content)
	}
}

func TestAnalyze(t *testing.T) {
	vectors := &stubVectors{results: []vectorstore.Result{
		resultWithSource("report.pdf", "relevant passage"),
	}}
	client := &stubLLM{}
	svc := NewService(vectors, memory.NewInMemoryStore(0), &stubEmbedder{}, client, nil, testLogger(), Config{})

	if _, err := svc.Analyze(context.Background(), "summarize the report", QueryFactual); err != nil {
		t.Fatalf("analyze: %v", err)
	}

	prompt := client.calls[0]
	if prompt[0].Role != llm.RoleSystem || prompt[0].Content != analysisPrompts[QueryFactual] {
		t.Errorf("system prompt not selected by query type")
	}
	if !strings.Contains(prompt[1].Content, "relevant passage") {
		t.Errorf("analysis prompt missing retrieved context:\n%s", prompt[1].Content)
	}
	if len(prompt) != 2 {
		t.Errorf("analysis prompt carries %d messages, want no conversation history", len(prompt))
	}
}

func TestAnalyzeRejectsUnknownType(t *testing.T) {
	svc := NewService(&stubVectors{}, memory.NewInMemoryStore(0), &stubEmbedder{}, &stubLLM{}, nil, testLogger(), Config{})

	if _, err := svc.Analyze(context.Background(), "query", QueryType("mystery")); err == nil {
		t.Fatal("expected error for unknown query type")
	}
}
