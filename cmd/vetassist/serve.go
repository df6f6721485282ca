package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	pebblecache "github.com/PabloGalante/vetassist/internal/adapters/cache/pebble"
	httpadapter "github.com/PabloGalante/vetassist/internal/adapters/http"
	"github.com/PabloGalante/vetassist/internal/adapters/llm"
	"github.com/PabloGalante/vetassist/internal/app/automation"
	"github.com/PabloGalante/vetassist/internal/app/conversation"
	"github.com/PabloGalante/vetassist/internal/config"
	"github.com/PabloGalante/vetassist/internal/domain"
	"github.com/PabloGalante/vetassist/internal/observability"
)

func newServeCommand(cfg func() *config.Config) *cobra.Command {
	var seed string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (and the answering worker in local mode)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg(), seed)
		},
	}

	cmd.Flags().StringVar(&seed, "seed", "", "JSON file of request records to load before serving")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, seed string) error {
	log := observability.Logger()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if seed != "" {
		n, err := seedFromFile(ctx, store, seed)
		if err != nil {
			return err
		}
		log.Info("seeded request records", "file", seed, "count", n)
	}

	var cache domain.EntryCache
	if cfg.CacheDir != "" {
		pc, err := pebblecache.Open(cfg.CacheDir, pebblecache.Options{TTL: cfg.CacheTTL})
		if err != nil {
			return err
		}
		defer pc.Close()
		cache = pc
		log.Info("local conversation cache enabled", "dir", cfg.CacheDir)
	}

	var worker *automation.Worker
	if cfg.RunAutomation {
		responder, err := newResponder(ctx, cfg)
		if err != nil {
			return err
		}
		worker = automation.NewWorker(store, responder, automation.Options{
			Delay: cfg.AnswerDelay,
			Rate:  cfg.AnswerRate,
		})
	}

	svc := conversation.NewService(store, cache, conversation.FromTuning(cfg.Tuning))
	defer svc.Shutdown()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpadapter.NewServer(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("vetassist API listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if worker != nil {
		g.Go(func() error { return worker.Run(gctx) })
	}

	return g.Wait()
}

// newResponder chooses between mock and Vertex (useful for dev).
func newResponder(ctx context.Context, cfg *config.Config) (domain.Responder, error) {
	if cfg.UseMockAutomation {
		observability.Logger().Info("using mock responder")
		return llm.NewMockResponder(), nil
	}

	observability.Logger().Info("using vertex responder", "model", cfg.ModelName)
	r, err := llm.NewVertexResponder(ctx, cfg.GCPProjectID, cfg.GCPLocation, cfg.ModelName)
	if err != nil {
		return nil, fmt.Errorf("initializing vertex responder: %w", err)
	}
	return r, nil
}
