package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stratumhq/stratum/internal/config"
	"github.com/stratumhq/stratum/internal/engine"
	"github.com/stratumhq/stratum/internal/server"
	"github.com/stratumhq/stratum/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

// applyEnv overlays STRATUM_* environment variables on the defaults.
func applyEnv(cfg *config.Config) {
	if v := os.Getenv("STRATUM_DB"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("STRATUM_BIND"); v != "" {
		cfg.Server.Bind = v
	}
	if v := os.Getenv("STRATUM_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("STRATUM_OLLAMA_URL"); v != "" {
		cfg.Embedding.OllamaURL = v
	}
	if v := os.Getenv("STRATUM_EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("STRATUM_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Lifecycle.SweepInterval = d
		}
	}
	// STRATUM_TOKENS is a comma-separated token=entity list.
	if v := os.Getenv("STRATUM_TOKENS"); v != "" {
		tokens := make(map[string]string)
		for _, pair := range strings.Split(v, ",") {
			token, entity, ok := strings.Cut(pair, "=")
			if ok && token != "" && entity != "" {
				tokens[token] = entity
			}
		}
		cfg.Auth.Tokens = tokens
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	applyEnv(&cfg)

	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return fmt.Errorf("resolve db path: %w", err)
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	eng := engine.New(db, cfg)

	// Detect and configure embedder
	if engine.ProbeOllama(cfg.Embedding.OllamaURL, cfg.Embedding.Model) {
		eng.SetEmbedder(engine.NewOllamaEmbedder(cfg.Embedding.OllamaURL, cfg.Embedding.Model, 768))
		fmt.Fprintf(os.Stderr, "  embedder: ollama (%s)\n", cfg.Embedding.Model)
	} else {
		emb, tfidfErr := engine.NewTFIDFEmbedder(db, 512)
		if tfidfErr != nil {
			fmt.Fprintf(os.Stderr, "warning: tfidf embedder init failed: %v\n", tfidfErr)
		} else {
			eng.SetEmbedder(emb)
			fmt.Fprintf(os.Stderr, "  embedder: tfidf (fallback)\n")
		}
	}

	// Embed any memories missing vectors
	if eng.Embedder != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			if n, err := eng.EmbedMissing(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "embed missing: %v\n", err)
			} else if n > 0 {
				fmt.Fprintf(os.Stderr, "  embedded %d missing memories\n", n)
			}
		}()
	}

	eng.StartSweepTimer()
	defer eng.Stop()

	srv := server.New(db, eng, server.StaticTokens(cfg.Auth.Tokens), VersionString())
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		fmt.Fprintf(os.Stderr, "stratum serving on %s\n", addr)
		fmt.Fprintf(os.Stderr, "  db: %s\n", dbPath)
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
