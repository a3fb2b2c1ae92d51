package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/fabfab/ragserver/chat"
	"github.com/fabfab/ragserver/ingestion"
)

// ChatService is the chat orchestrator surface the HTTP layer depends on.
type ChatService interface {
	Answer(ctx context.Context, message, conversationID string, useRAG bool) (chat.Response, error)
	AnswerStream(ctx context.Context, message, conversationID string, useRAG bool, emit func(string) error) (chat.Response, error)
	Analyze(ctx context.Context, query string, queryType chat.QueryType) (string, error)
}

// DocumentService is the ingestion surface the HTTP layer depends on.
type DocumentService interface {
	Ingest(ctx context.Context, data []byte, filename string) ingestion.UploadResult
	IngestAll(ctx context.Context, files []ingestion.File) []ingestion.UploadResult
	Delete(ctx context.Context, documentID string) error
}

// Server exposes the custom JSON API and the OpenAI-compatible facade.
type Server struct {
	chat      ChatService
	documents DocumentService
	logger    *log.Logger
	timeout   time.Duration
	handler   http.Handler
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func New(chatSvc ChatService, documentSvc DocumentService, logger *log.Logger, timeout time.Duration) *Server {
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		chat:      chatSvc,
		documents: documentSvc,
		logger:    logger,
		timeout:   timeout,
	}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("GET /chat", s.handleChatGet)
	mux.HandleFunc("GET /chat/stream", s.handleChatStream)
	mux.HandleFunc("GET /chat/simple", s.handleChatSimple)
	mux.HandleFunc("GET /analysis/{queryType}", s.handleAnalysis)

	mux.HandleFunc("POST /documents", s.handleUploadDocument)
	mux.HandleFunc("POST /documents/batch", s.handleUploadBatch)
	mux.HandleFunc("DELETE /documents/{documentId}", s.handleDeleteDocument)

	mux.HandleFunc("GET /v1/models", s.handleModels)
	mux.HandleFunc("POST /v1/chat/completions", s.handleChatCompletions)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}

// requestContext bounds non-streaming completion calls. Streaming handlers
// rely on the client connection instead.
func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return r.Context(), func() {}
	}
	return context.WithTimeout(r.Context(), s.timeout)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Printf("api error (%d): %v", status, err)
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// chatStatus maps orchestrator errors to HTTP status codes: validation
// failures are client errors, completion-provider failures propagate as
// server faults.
func chatStatus(err error) int {
	if errors.Is(err, chat.ErrEmptyMessage) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}

	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}

	return nil
}
