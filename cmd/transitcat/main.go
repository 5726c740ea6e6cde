package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/validator/v10"

	"transitcat/internal/cache"
	"transitcat/internal/config"
	"transitcat/internal/domain"
	"transitcat/internal/handler"
	"transitcat/internal/middleware"
	"transitcat/internal/requests"
	"transitcat/internal/router"
	"transitcat/internal/snapshot"
	"transitcat/internal/store"
)

const usage = "Usage: transitcat [make_base|process_requests|serve -snapshot NAME]"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// stdout carries answers, so logs go to stderr
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	ctx := context.Background()
	switch mode := os.Args[1]; mode {
	case "make_base":
		err = makeBase(ctx, cfg, logger, os.Stdin)
	case "process_requests":
		err = processRequests(ctx, cfg, logger, os.Stdin, os.Stdout)
	case "serve":
		err = serve(cfg, logger, os.Args[2:])
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("transitcat failed", "mode", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func openStore(cfg *config.Config, logger *slog.Logger) (snapshot.Store, func() error, error) {
	if cfg.SnapshotBackend == config.BackendRedis {
		rc, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTTL, cfg.SnapshotCompressionLevel, logger)
		if err != nil {
			return nil, nil, err
		}
		return rc, rc.Close, nil
	}
	fs, err := snapshot.NewFileStore(cfg.SnapshotDir, cfg.SnapshotCompressionLevel, logger)
	if err != nil {
		return nil, nil, err
	}
	return fs, func() error { return nil }, nil
}

func makeBase(ctx context.Context, cfg *config.Config, logger *slog.Logger, in io.Reader) error {
	doc, err := requests.Decode(in)
	if err != nil {
		return err
	}
	if err := doc.Validate(validator.New()); err != nil {
		return err
	}

	cat := store.NewCatalogue()
	if err := requests.ApplyBase(cat, doc.BaseRequests); err != nil {
		return fmt.Errorf("load base requests: %w", err)
	}
	logger.Info("catalogue loaded",
		"stops", cat.StopCount(),
		"buses", cat.BusCount(),
	)

	r, err := router.Build(ctx, cat, doc.RoutingSettings,
		router.WithWorkers(cfg.BuildWorkers),
		router.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	st, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	return snapshot.Save(ctx, st, doc.SerializationSettings.File, r)
}

func processRequests(ctx context.Context, cfg *config.Config, logger *slog.Logger, in io.Reader, out io.Writer) error {
	doc, err := requests.Decode(in)
	if err != nil {
		return err
	}
	v := validator.New()
	if err := doc.Validate(v); err != nil {
		return err
	}

	r, err := loadRouter(ctx, cfg, logger, doc.SerializationSettings.File)
	if err != nil {
		return err
	}

	answers := requests.NewHandler(r, v, logger).AnswerAll(doc.StatRequests)
	return json.NewEncoder(out).Encode(answers)
}

// loadRouter restores the named snapshot. With SnapshotTolerateMissing a
// missing snapshot yields a router over an empty catalogue instead.
func loadRouter(ctx context.Context, cfg *config.Config, logger *slog.Logger, name string) (*router.Router, error) {
	st, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	defer closeStore()

	r, err := snapshot.Load(ctx, st, name)
	if errors.Is(err, snapshot.ErrNotFound) && cfg.SnapshotTolerateMissing {
		logger.Warn("snapshot missing, answering against an empty catalogue", "snapshot", name)
		return router.Build(ctx, store.NewCatalogue(), domain.DefaultRoutingSettings())
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %q: %w", name, err)
	}
	logger.Info("snapshot restored",
		"snapshot", name,
		"stops", r.Catalogue().StopCount(),
		"buses", r.Catalogue().BusCount(),
		"edges", r.Graph().EdgeCount(),
	)
	return r, nil
}

func serve(cfg *config.Config, logger *slog.Logger, args []string) error {
	fset := flag.NewFlagSet("serve", flag.ContinueOnError)
	name := fset.String("snapshot", "", "snapshot to serve")
	addr := fset.String("addr", cfg.HTTPAddr, "listen address")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return errors.New("serve: -snapshot is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r, err := loadRouter(ctx, cfg, logger, *name)
	if err != nil {
		return err
	}

	logger.Info("starting transitcat server",
		"log_level", cfg.LogLevel.String(),
		"http_addr", *addr,
		"snapshot", *name,
	)

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerWindow, cfg.RateLimitWindow, cfg.RateLimitWhitelist, logger)
	go limiter.Run(ctx)

	reqs := requests.NewHandler(r, validator.New(), logger)
	srv := &http.Server{
		Addr: *addr,
		Handler: limiter.Middleware(handler.Routes(
			handler.NewHTTPHandler(r, reqs, logger),
			handler.NewWSHandler(reqs, logger),
			handler.NewHealthHandler(r),
			handler.NewStatsHandler(r).WithRateLimiter(limiter),
			logger,
		)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		logger.Error("HTTP server error", "error", err)
		return err
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
