package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fabfab/ragserver/chat"
)

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
	UseRag         bool   `json:"useRag"`
}

type chatResponse struct {
	Content        string    `json:"content"`
	ConversationID string    `json:"conversationId"`
	Sources        []string  `json:"sources"`
	Timestamp      time.Time `json:"timestamp"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	s.answer(w, r, req.Message, req.ConversationID, req.UseRag)
}

// handleChatGet is the convenience alias with RAG always on.
func (s *Server) handleChatGet(w http.ResponseWriter, r *http.Request) {
	s.answer(w, r, r.URL.Query().Get("message"), r.URL.Query().Get("conversationId"), true)
}

// handleChatSimple is the RAG-free alias.
func (s *Server) handleChatSimple(w http.ResponseWriter, r *http.Request) {
	s.answer(w, r, r.URL.Query().Get("message"), r.URL.Query().Get("conversationId"), false)
}

func (s *Server) answer(w http.ResponseWriter, r *http.Request, message, conversationID string, useRAG bool) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	resp, err := s.chat.Answer(ctx, message, conversationID, useRAG)
	if err != nil {
		s.writeError(w, chatStatus(err), err)
		return
	}

	s.writeJSON(w, http.StatusOK, toChatResponse(resp))
}

// handleChatStream emits content increments as Server-Sent Events. RAG is
// always on for this endpoint.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	message := r.URL.Query().Get("message")
	conversationID := r.URL.Query().Get("conversationId")

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming not supported"))
		return
	}

	if strings.TrimSpace(message) == "" {
		s.writeError(w, http.StatusBadRequest, chat.ErrEmptyMessage)
		return
	}

	setSSEHeaders(w)

	started := false
	_, err := s.chat.AnswerStream(r.Context(), message, conversationID, true, func(chunk string) error {
		started = true
		writeSSEData(w, chunk)
		flusher.Flush()
		return nil
	})
	if err != nil {
		// The response may already be partially written; a status change is
		// only possible before the first increment.
		if !started {
			s.writeError(w, chatStatus(err), err)
			return
		}
		s.logger.Printf("chat stream aborted: %v", err)
	}
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	queryType, err := chat.ParseQueryType(r.PathValue("queryType"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	answer, err := s.chat.Analyze(ctx, r.URL.Query().Get("query"), queryType)
	if err != nil {
		s.writeError(w, chatStatus(err), err)
		return
	}

	s.writeJSON(w, http.StatusOK, messageResponse{Message: answer})
}

func toChatResponse(resp chat.Response) chatResponse {
	sources := resp.Sources
	if sources == nil {
		sources = []string{}
	}
	return chatResponse{
		Content:        resp.Content,
		ConversationID: resp.ConversationID,
		Sources:        sources,
		Timestamp:      resp.Timestamp,
	}
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

// writeSSEData frames text as one SSE event. Embedded newlines become
// continuation data lines so the event survives multi-line increments.
func writeSSEData(w http.ResponseWriter, text string) {
	for _, line := range strings.Split(text, "\n") {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	fmt.Fprint(w, "\n")
}
