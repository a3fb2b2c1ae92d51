package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fabfab/ragserver/api"
	"github.com/fabfab/ragserver/chat"
	"github.com/fabfab/ragserver/config"
	"github.com/fabfab/ragserver/database"
	"github.com/fabfab/ragserver/embeddings"
	"github.com/fabfab/ragserver/ingestion"
	"github.com/fabfab/ragserver/llm"
	"github.com/fabfab/ragserver/memory"
	"github.com/fabfab/ragserver/tools"
	"github.com/fabfab/ragserver/vectorstore"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	if err := run(logger); err != nil {
		logger.Fatalf("fatal: %v", err)
	}
}

func run(logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()

	pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := database.EnsureSchema(ctx, pool, cfg.Embeddings.Dimension); err != nil {
		return err
	}

	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		return err
	}

	llmClient, err := llm.NewClient(cfg)
	if err != nil {
		return err
	}

	store := vectorstore.NewPostgresStore(pool)
	history := memory.NewPostgresStore(pool, cfg.Chat.MemoryWindow)

	registry := tools.NewRegistry()
	if err := tools.RegisterDocumentTools(registry, store, embedder); err != nil {
		return err
	}

	splitter, err := ingestion.NewSplitter(cfg.Ingestion.ChunkSize, cfg.Ingestion.ChunkOverlap)
	if err != nil {
		return err
	}
	ingestor := ingestion.NewService(store, embedder, splitter, logger)

	if cfg.Ingestion.SeedDir != "" {
		if err := ingestor.SeedDirectory(ctx, cfg.Ingestion.SeedDir); err != nil {
			logger.Printf("seed ingestion failed: %v", err)
		}
	}

	chatSvc := chat.NewService(store, history, embedder, llmClient, registry, logger, chat.Config{
		TopK:            cfg.Chat.TopK,
		SimilarityFloor: cfg.Chat.SimilarityFloor,
		RewriteQueries:  cfg.Chat.RewriteQueries,
	})

	server := api.New(chatSvc, ingestor, logger, cfg.Chat.RequestTimeout)

	// WriteTimeout stays unset so long-lived SSE streams are not cut off.
	httpServer := &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     server.Handler(),
		ReadTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Println("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
