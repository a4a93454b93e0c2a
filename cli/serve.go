package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ebbing-ai/memorybank/config"
	"github.com/ebbing-ai/memorybank/llm"
	"github.com/ebbing-ai/memorybank/memory"
	"github.com/ebbing-ai/memorybank/memory/embedder/cached"
	"github.com/ebbing-ai/memorybank/memory/embedder/mock"
	"github.com/ebbing-ai/memorybank/memory/embedder/openai"
	"github.com/ebbing-ai/memorybank/memory/store/chromem"
	"github.com/ebbing-ai/memorybank/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the memory server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	embedder, err := buildEmbedder(cfg.Embedding)
	if err != nil {
		return fmt.Errorf("configure embedder: %w", err)
	}
	fmt.Fprintf(os.Stderr, "  embedder: %s (%d dims)\n", cfg.Embedding.Provider, embedder.Dimensions())

	index, err := chromem.New("memories", embedder.Dimensions())
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}

	engine := memory.NewEngine(index, embedder, &cfg.Retention)

	scheduler := memory.NewScheduler(engine, &cfg.Retention)
	scheduler.Start()
	defer scheduler.Stop()

	// Chat is optional; everything else works without an LLM.
	var chat *llm.Augmented
	if client, err := llm.NewClient(cfg.LLM); err != nil {
		fmt.Fprintf(os.Stderr, "warning: chat disabled (%v)\n", err)
	} else {
		chat = llm.NewAugmented(engine, client, "")
		fmt.Fprintf(os.Stderr, "  llm: %s (%s)\n", cfg.LLM.Provider, cfg.LLM.Model)
	}

	srv := server.New(engine, scheduler, chat, cfg.Server.APIKey, VersionString())
	addr := cfg.Server.ListenAddr()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		fmt.Fprintf(os.Stderr, "memorybank serving on %s\n", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}()

	<-done
	fmt.Fprintln(os.Stderr, "\nshutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}

// buildEmbedder assembles the embedding pipeline: the configured
// provider, optionally wrapped in the ristretto cache.
func buildEmbedder(cfg config.Embedding) (memory.Embedder, error) {
	var embedder memory.Embedder

	switch cfg.Provider {
	case "mock", "":
		embedder = mock.NewWithDimensions(cfg.Dimensions)
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("embedding provider openai requires OPENAI_API_KEY")
		}
		embedder = openai.New(openai.Config{
			APIKey:     cfg.OpenAIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
	case "onnx":
		onnxEmbedder, err := newONNXEmbedder(cfg)
		if err != nil {
			return nil, err
		}
		embedder = onnxEmbedder
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	if cfg.CacheEnabled {
		wrapped, err := cached.New(embedder, cached.Config{})
		if err != nil {
			return nil, err
		}
		embedder = wrapped
	}
	return embedder, nil
}
