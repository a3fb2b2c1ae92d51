package api

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Model identifiers exposed on the OpenAI-compatible surface. ModelRAG
// answers with retrieved document context, ModelChat is plain chat.
const (
	ModelRAG  = "ragserver-rag"
	ModelChat = "ragserver-chat"

	modelOwner = "ragserver"
)

type chatCompletionRequest struct {
	Model       string                  `json:"model"`
	Messages    []chatCompletionMessage `json:"messages"`
	Temperature *float64                `json:"temperature,omitempty"`
	MaxTokens   *int                    `json:"max_tokens,omitempty"`
	Stream      bool                    `json:"stream,omitempty"`
}

type chatCompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionChoice struct {
	Index        int                   `json:"index"`
	Message      chatCompletionMessage `json:"message"`
	FinishReason string                `json:"finish_reason"`
}

type chatCompletionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatCompletionResponse struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []chatCompletionChoice `json:"choices"`
	Usage   chatCompletionUsage    `json:"usage"`
}

type modelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type modelList struct {
	Object string       `json:"object"`
	Data   []modelEntry `json:"data"`
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	now := time.Now().Unix()
	s.writeJSON(w, http.StatusOK, modelList{
		Object: "list",
		Data: []modelEntry{
			{ID: ModelRAG, Object: "model", Created: now, OwnedBy: modelOwner},
			{ID: ModelChat, Object: "model", Created: now, OwnedBy: modelOwner},
		},
	})
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	// OpenAI clients send fields we do not model, so decoding stays lenient here.
	var req chatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	message := extractLastUserMessage(req.Messages)
	conversationID := deriveConversationID(r.Header.Get("Authorization"))
	useRAG := strings.EqualFold(strings.TrimSpace(req.Model), ModelRAG)

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = ModelChat
	}

	if req.Stream {
		s.streamCompletion(w, r, model, message, conversationID, useRAG)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	resp, err := s.chat.Answer(ctx, message, conversationID, useRAG)
	if err != nil {
		s.writeError(w, chatStatus(err), err)
		return
	}

	content := resp.Content
	if useRAG && len(resp.Sources) > 0 {
		content += "\n\n---\n**Sources:** " + strings.Join(resp.Sources, ", ")
	}

	s.writeJSON(w, http.StatusOK, chatCompletionResponse{
		ID:      completionID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []chatCompletionChoice{{
			Index:        0,
			Message:      chatCompletionMessage{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
	})
}

func (s *Server) streamCompletion(w http.ResponseWriter, r *http.Request, model, message, conversationID string, useRAG bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}

	setSSEHeaders(w)

	chunkID := completionID()
	started := false
	_, err := s.chat.AnswerStream(r.Context(), message, conversationID, useRAG, func(chunk string) error {
		started = true
		_, werr := fmt.Fprintf(w, "data: {\"id\":%q,\"object\":\"chat.completion.chunk\",\"model\":%q,\"choices\":[{\"delta\":{\"content\":\"%s\"},\"index\":0}]}\n\n",
			chunkID, model, escapeJSON(chunk))
		if werr != nil {
			return werr
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		if !started {
			s.writeError(w, chatStatus(err), err)
			return
		}
		s.logger.Printf("completion stream aborted: %v", err)
		return
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func completionID() string {
	return "chatcmpl-" + uuid.NewString()[:8]
}

// deriveConversationID gives each API credential its own conversation so
// history does not leak between callers sharing the endpoint.
func deriveConversationID(authorization string) string {
	if strings.TrimSpace(authorization) == "" {
		return "default-session"
	}
	h := fnv.New32a()
	h.Write([]byte(authorization))
	return fmt.Sprintf("session-%08x", h.Sum32())
}

func extractLastUserMessage(messages []chatCompletionMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if strings.EqualFold(messages[i].Role, "user") {
			return messages[i].Content
		}
	}
	if len(messages) > 0 {
		return messages[len(messages)-1].Content
	}
	return ""
}

var jsonEscaper = strings.NewReplacer(
	"\\", "\\\\",
	"\"", "\\\"",
	"\n", "\\n",
	"\r", "\\r",
	"\t", "\\t",
)

func escapeJSON(s string) string {
	return jsonEscaper.Replace(s)
}
