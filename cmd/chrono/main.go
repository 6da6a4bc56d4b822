// Command chrono runs the timeline research service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chronolab/chrono/pkg/config"
	"github.com/chronolab/chrono/pkg/eventbus"
	"github.com/chronolab/chrono/pkg/generation"
	"github.com/chronolab/chrono/pkg/orchestrator"
	"github.com/chronolab/chrono/pkg/search"
	"github.com/chronolab/chrono/pkg/server"
	"github.com/chronolab/chrono/pkg/session"
	"github.com/chronolab/chrono/pkg/store"
)

func main() {
	root := &cobra.Command{
		Use:   "chrono",
		Short: "Timeline research service",
	}
	root.AddCommand(newServeCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	registry, err := buildRegistry(ctx, cfg, log)
	if err != nil {
		return err
	}

	searcher, err := search.NewTavilyClient(cfg.TavilyAPIKey)
	if err != nil {
		return fmt.Errorf("failed to create search client: %w", err)
	}

	var st store.Store = store.NewMemoryStore()
	if cfg.GCPProject != "" {
		fs, err := store.NewFirestoreStore(ctx, cfg.GCPProject)
		if err != nil {
			return fmt.Errorf("failed to create firestore store: %w", err)
		}
		defer fs.Close()
		st = fs
	}

	var sink session.Sink
	if cfg.GCPProject != "" && cfg.PubSubTopic != "" {
		mirror, err := eventbus.NewPubSubMirror(ctx, cfg.GCPProject, cfg.PubSubTopic, log)
		if err != nil {
			return fmt.Errorf("failed to create event mirror: %w", err)
		}
		defer mirror.Close()
		sink = mirror
	}

	sessions := session.NewManager(sink)
	orch := orchestrator.New(registry, searcher, st, sessions, cfg.ThreadConcurrency, cfg.DetailConcurrency, log)
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.New(orch, sessions, server.DefaultPingInterval, log).Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.ListenAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildRegistry creates one Gemini client per distinct model and routes each
// pipeline stage to its configured model.
func buildRegistry(ctx context.Context, cfg *config.Config, log *zap.Logger) (*generation.Registry, error) {
	generators := make(map[string]*generation.GeminiGenerator)
	forModel := func(model string) (*generation.GeminiGenerator, error) {
		if g, ok := generators[model]; ok {
			return g, nil
		}
		g, err := generation.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, model, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create generator for %s: %w", model, err)
		}
		generators[model] = g
		return g, nil
	}

	def, err := forModel(cfg.DefaultModel)
	if err != nil {
		return nil, err
	}
	registry := generation.NewRegistry(def)

	stages := []generation.Stage{
		generation.StageProposal,
		generation.StageMilestone,
		generation.StageDetail,
		generation.StageDedup,
		generation.StageHallucination,
		generation.StageGapAnalysis,
		generation.StageSynthesis,
	}
	for _, stage := range stages {
		model := cfg.ModelFor(string(stage))
		if model == cfg.DefaultModel {
			continue
		}
		g, err := forModel(model)
		if err != nil {
			return nil, err
		}
		registry.Register(stage, g)
	}
	return registry, nil
}
