package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Brownie44l1/pet-classifier/internal/config"
	"github.com/Brownie44l1/pet-classifier/internal/feedback"
	"github.com/Brownie44l1/pet-classifier/internal/handlers"
	"github.com/Brownie44l1/pet-classifier/internal/live"
	"github.com/Brownie44l1/pet-classifier/internal/metrics"
	"github.com/Brownie44l1/pet-classifier/internal/middleware"
	"github.com/Brownie44l1/pet-classifier/internal/model"
	"github.com/Brownie44l1/pet-classifier/internal/predictor"
	"github.com/Brownie44l1/pet-classifier/internal/preprocess"
)

type App struct {
	config    *config.Config
	logger    *slog.Logger
	metadata  model.Metadata
	closer    func()
	collector *metrics.Collector
	store     *feedback.FileStore
	hub       *live.Hub
	predictor *predictor.Predictor
	handler   http.Handler
}

// New loads the model and wires every component. A model that cannot be
// loaded is fatal: no route is served without one.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	logger.Info("loading model", "model", cfg.ModelPath, "metadata", cfg.MetadataPath)
	scorer, err := model.NewONNXScorer(cfg.ModelPath, cfg.MetadataPath, cfg.OnnxLibrary)
	if err != nil {
		return nil, err
	}

	a, err := NewWithScorer(cfg, logger, scorer, scorer.Metadata)
	if err != nil {
		scorer.Close()
		return nil, err
	}
	a.closer = scorer.Close
	return a, nil
}

// NewWithScorer wires the application around an already loaded scorer.
func NewWithScorer(cfg *config.Config, logger *slog.Logger, scorer predictor.Scorer, meta model.Metadata) (*App, error) {
	labels := meta.Labels()

	collector := metrics.New(metrics.Options{
		Classes:           labels.Slice(),
		Logger:            logger,
		RuntimeCollectors: cfg.RuntimeMetrics,
	})

	store, err := feedback.NewFileStore(cfg.FeedbackDir)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare feedback directory: %w", err)
	}

	hub := live.NewHub(logger, cfg.AllowedOrigins)
	pred := predictor.New(preprocess.NewFromMetadata(meta), scorer, collector, labels, logger)

	h := handlers.NewHandler(handlers.Deps{
		Predictor:      pred,
		Processor:      feedback.NewProcessor(store, collector, labels, logger),
		Errors:         collector,
		Stats:          func() (feedback.Stats, error) { return feedback.ComputeStats(store) },
		Live:           hub,
		Metadata:       meta,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Logger:         logger,
	})

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", collector.Handler())
	mux.Handle("GET /api/live", hub)
	h.Register(mux)

	return &App{
		config:    cfg,
		logger:    logger,
		metadata:  meta,
		collector: collector,
		store:     store,
		hub:       hub,
		predictor: pred,
		handler: middleware.Chain(mux,
			middleware.Logging(logger),
			middleware.Recover(logger, collector),
			middleware.CORS,
		),
	}, nil
}

func (a *App) Handler() http.Handler { return a.handler }

func (a *App) Collector() *metrics.Collector { return a.collector }

func (a *App) Predictor() *predictor.Predictor { return a.predictor }

func (a *App) Labels() model.Labels { return a.metadata.Labels() }

// Run serves until ctx is cancelled or a listener fails, then shuts the
// servers down within the configured timeout.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.hub.Run(ctx)

	servers := []*http.Server{{
		Addr:    fmt.Sprintf(":%d", a.config.Port),
		Handler: a.handler,
	}}
	if a.config.MetricsPort != 0 {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", a.collector.Handler())
		servers = append(servers, &http.Server{
			Addr:    fmt.Sprintf(":%d", a.config.MetricsPort),
			Handler: mux,
		})
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			a.logger.Info("server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("server %s failed: %w", srv.Addr, err)
			}
		}(srv)
	}

	a.logger.Info("classifier ready",
		"classes", a.metadata.Classes,
		"image_size", a.metadata.ImageSize,
		"feedback_dir", a.store.Root())

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
	case runErr = <-errCh:
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
	defer stop()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("shutdown failed", "addr", srv.Addr, "error", err)
			runErr = errors.Join(runErr, err)
		}
	}
	return runErr
}

func (a *App) Close() {
	if a.closer != nil {
		a.closer()
	}
}
