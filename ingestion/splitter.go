package ingestion

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

const (
	defaultChunkSize    = 800
	defaultChunkOverlap = 120

	encodingName = "cl100k_base"
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
	encodingErr  error
)

func loadEncoding() (*tiktoken.Tiktoken, error) {
	encodingOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
		encoding, encodingErr = tiktoken.GetEncoding(encodingName)
	})
	return encoding, encodingErr
}

// Splitter cuts text into token-bounded chunks with a fixed overlap between
// consecutive chunks.
type Splitter struct {
	enc       *tiktoken.Tiktoken
	chunkSize int
	overlap   int
}

func NewSplitter(chunkSize, overlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if overlap < 0 {
		overlap = defaultChunkOverlap
	}
	if overlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", overlap, chunkSize)
	}

	enc, err := loadEncoding()
	if err != nil {
		return nil, fmt.Errorf("load %s encoding: %w", encodingName, err)
	}

	return &Splitter{enc: enc, chunkSize: chunkSize, overlap: overlap}, nil
}

func (s *Splitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	tokens := s.enc.Encode(text, nil, nil)
	if len(tokens) <= s.chunkSize {
		return []string{text}
	}

	step := s.chunkSize - s.overlap
	chunks := make([]string, 0, (len(tokens)+step-1)/step)
	for start := 0; start < len(tokens); start += step {
		end := start + s.chunkSize
		if end > len(tokens) {
			end = len(tokens)
		}

		chunk := strings.TrimSpace(s.enc.Decode(tokens[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end == len(tokens) {
			break
		}
	}

	return chunks
}
