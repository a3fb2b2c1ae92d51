package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/fabfab/ragserver/embeddings"
	"github.com/fabfab/ragserver/llm"
	"github.com/fabfab/ragserver/vectorstore"
)

const (
	defaultSearchResults = 5
	listSampleSize       = 100
	summarizeChunkLimit  = 10
)

// RegisterDocumentTools adds the document search/list/summarize tools backed
// by the vector store.
func RegisterDocumentTools(registry *Registry, store vectorstore.Store, embedder embeddings.Embedder) error {
	searchSchema := llm.Tool{
		Name:        "search_documents",
		Description: "Search the document knowledge base for information. Use this when you need to find specific details from uploaded documents.",
		Params: []llm.ToolParam{
			{Name: "query", Type: "string", Description: "The search query - describe what information you're looking for", Required: true},
			{Name: "max_results", Type: "integer", Description: "Maximum number of results to return", Required: false},
		},
	}
	if err := registry.Register(searchSchema, searchDocuments(store, embedder)); err != nil {
		return err
	}

	listSchema := llm.Tool{
		Name:        "list_documents",
		Description: "List all documents available in the knowledge base. Use this to see what documents have been uploaded.",
	}
	if err := registry.Register(listSchema, listDocuments(store, embedder)); err != nil {
		return err
	}

	summarizeSchema := llm.Tool{
		Name:        "summarize_document",
		Description: "Get a summary of key points from a specific document. Provide the document filename.",
		Params: []llm.ToolParam{
			{Name: "filename", Type: "string", Description: "The filename of the document to summarize", Required: true},
		},
	}
	return registry.Register(summarizeSchema, summarizeDocument(store, embedder))
}

func searchDocuments(store vectorstore.Store, embedder embeddings.Embedder) Handler {
	return func(ctx context.Context, args map[string]any) (string, error) {
		query, _ := args["query"].(string)
		if strings.TrimSpace(query) == "" {
			return "", fmt.Errorf("query is required")
		}

		limit := defaultSearchResults
		if raw, ok := args["max_results"].(float64); ok && int(raw) > 0 {
			limit = int(raw)
		}

		results, err := similaritySearch(ctx, store, embedder, query, limit, "")
		if err != nil {
			return "", err
		}
		if len(results) == 0 {
			return "No relevant documents found for: " + query, nil
		}

		var sb strings.Builder
		for i, result := range results {
			source := result.Metadata[vectorstore.MetaSource]
			if source == "" {
				source = "unknown"
			}
			sb.WriteString(fmt.Sprintf("Result %d (%s):\n%s\n\n", i+1, source, result.Content))
		}
		return sb.String(), nil
	}
}

func listDocuments(store vectorstore.Store, embedder embeddings.Embedder) Handler {
	return func(ctx context.Context, _ map[string]any) (string, error) {
		results, err := similaritySearch(ctx, store, embedder, "document", listSampleSize, "")
		if err != nil {
			return "", err
		}
		if len(results) == 0 {
			return "No documents have been uploaded to the knowledge base.", nil
		}

		seen := make(map[string]struct{})
		sources := make([]string, 0)
		for _, result := range results {
			source := result.Metadata[vectorstore.MetaSource]
			if source == "" {
				source = "unknown"
			}
			if _, ok := seen[source]; ok {
				continue
			}
			seen[source] = struct{}{}
			sources = append(sources, source)
		}
		sort.Strings(sources)

		var sb strings.Builder
		sb.WriteString("Documents in knowledge base:\n")
		for _, source := range sources {
			sb.WriteString("- " + source + "\n")
		}
		return sb.String(), nil
	}
}

func summarizeDocument(store vectorstore.Store, embedder embeddings.Embedder) Handler {
	return func(ctx context.Context, args map[string]any) (string, error) {
		filename, _ := args["filename"].(string)
		if strings.TrimSpace(filename) == "" {
			return "", fmt.Errorf("filename is required")
		}

		results, err := similaritySearch(ctx, store, embedder, "summary overview key points "+filename, listSampleSize, "")
		if err != nil {
			return "", err
		}

		matched := make([]vectorstore.Result, 0, summarizeChunkLimit)
		for _, result := range results {
			if result.Metadata[vectorstore.MetaSource] != filename {
				continue
			}
			matched = append(matched, result)
			if len(matched) == summarizeChunkLimit {
				break
			}
		}
		if len(matched) == 0 {
			return "Document not found: " + filename, nil
		}

		var sb strings.Builder
		sb.WriteString("Content from " + filename + ":\n\n")
		for _, result := range matched {
			sb.WriteString(result.Content)
			sb.WriteString("\n\n")
		}
		return sb.String(), nil
	}
}

func similaritySearch(ctx context.Context, store vectorstore.Store, embedder embeddings.Embedder, query string, limit int, documentID string) ([]vectorstore.Result, error) {
	vectors, err := embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed tool query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedder returned no vectors")
	}

	results, err := store.Search(ctx, vectorstore.SearchRequest{
		Embedding:  vectors[0],
		TopK:       limit,
		DocumentID: documentID,
	})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return results, nil
}
