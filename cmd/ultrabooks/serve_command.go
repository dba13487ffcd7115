package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ultrabooks/ultrabooks/internal/api"
	"github.com/ultrabooks/ultrabooks/internal/book"
	"github.com/ultrabooks/ultrabooks/internal/health"
	"github.com/ultrabooks/ultrabooks/internal/library"
	"github.com/ultrabooks/ultrabooks/internal/parser"
	"github.com/ultrabooks/ultrabooks/internal/pipeline"
	"github.com/ultrabooks/ultrabooks/internal/share"
	"github.com/ultrabooks/ultrabooks/internal/storage"
	"github.com/ultrabooks/ultrabooks/pkg/types"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the library HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := ctx.newLogger()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(runCtx, cfg, logger)
		},
	}
}

func runServer(ctx context.Context, cfg *types.Config, logger *zap.Logger) error {
	logger.Info("starting ultrabooks server", zap.String("version", version))

	storageAdapter, err := storage.NewAdapter(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage adapter: %w", err)
	}
	defer storageAdapter.Close()
	logger.Info("storage adapter initialized", zap.String("adapter", cfg.Storage.Adapter))

	bookRepo := book.NewRepository(storageAdapter)
	parsers := parser.NewFactory(logger, cfg.Covers.MaxMemberBytes)

	opts := library.Options{
		MaxFileSize:     int64(cfg.Upload.MaxFileSizeMB) << 20,
		AcceptedFormats: cfg.Upload.AcceptedFormats,
		Logger:          logger,
	}

	var pool *pipeline.Pool
	if cfg.Covers.ThumbnailWidth > 0 {
		thumbnailer := pipeline.NewThumbnailer(bookRepo, cfg.Covers.ThumbnailWidth, cfg.Covers.JPEGQuality)
		pool = pipeline.NewPool(thumbnailer, cfg.Pipeline.WorkerPoolSize, cfg.Pipeline.QueueSize, logger)
		pool.Start()
		opts.Thumbnails = pool
		logger.Info("thumbnail pipeline started",
			zap.Int("workers", cfg.Pipeline.WorkerPoolSize),
			zap.Int("width", cfg.Covers.ThumbnailWidth))
	}
	libraryService := library.NewService(bookRepo, parsers, opts)
	shareService := share.NewService(bookRepo, share.Options{Logger: logger})

	healthHandler := health.NewHandler(version, logger)
	registerHealthChecks(healthHandler, storageAdapter, pool, cfg.Pipeline.QueueSize)

	handler := api.NewRouter(api.Dependencies{
		Repo:    bookRepo,
		Library: libraryService,
		Shares:  shareService,
		Health:  healthHandler,
		Logger:  logger,
		Info: api.Info{
			Version:         version,
			StorageAdapter:  cfg.Storage.Adapter,
			MaxFileSize:     libraryService.MaxFileSize(),
			AcceptedFormats: cfg.Upload.AcceptedFormats,
		},
	})

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	if pool != nil {
		if err := pool.Close(shutdownCtx); err != nil {
			logger.Warn("thumbnail queue not drained", zap.Error(err))
		}
	}

	logger.Info("server stopped")
	return nil
}

func registerHealthChecks(h *health.Handler, adapter storage.Adapter, pool *pipeline.Pool, queueSize int) {
	h.Register("storage", func(ctx context.Context) (health.Status, error) {
		if _, err := adapter.Exists(ctx, ".healthcheck"); err != nil {
			return health.StatusUnhealthy, err
		}
		return health.StatusHealthy, nil
	})

	if pool == nil {
		return
	}
	h.Register("thumbnails", func(ctx context.Context) (health.Status, error) {
		if pending := pool.Pending(); pending >= queueSize {
			return health.StatusDegraded, fmt.Errorf("thumbnail queue full: %d pending", pending)
		}
		return health.StatusHealthy, nil
	})
}
