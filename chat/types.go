package chat

import "time"

// Response is the outcome of one chat turn. Sources holds the sorted,
// duplicate-free basenames of the documents supplied to the model; it is
// empty when RAG was not used or retrieval found nothing.
type Response struct {
	Content        string
	ConversationID string
	Sources        []string
	Timestamp      time.Time
}
