package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/remla25-team6/model-service/artifact"
	"github.com/remla25-team6/model-service/config"
	mhttp "github.com/remla25-team6/model-service/http"
	"github.com/remla25-team6/model-service/logger"
	"github.com/remla25-team6/model-service/ml"
)

func main() {
	// 1. Load config
	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logg, err := logger.New(logger.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logg.Sync()
	zap.ReplaceGlobals(logg)
	logg.Info("config loaded",
		zap.String("addr", cfg.Addr()),
		zap.String("artifact_dir", cfg.Artifacts.Dir),
		zap.String("model_version", cfg.Artifacts.Version),
		zap.String("build", cfg.BuildVersion),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Load artifacts; the server does not start unless both are ready
	loader, closeIndex, err := artifact.NewLoader(cfg, logg)
	if err != nil {
		logg.Fatal("failed to open artifact index", zap.Error(err))
	}
	defer closeIndex()

	opts := artifact.OptionsFromConfig(cfg)
	pipeline, err := loader.LoadPipeline(ctx, opts)
	if err != nil {
		logg.Fatal("failed to load artifacts", zap.Error(err))
	}
	registry, err := ml.NewRegistry(pipeline, cfg.Cache.Size)
	if err != nil {
		logg.Fatal("failed to create registry", zap.Error(err))
	}

	if cfg.Artifacts.Watch {
		go watchArtifacts(ctx, loader, opts, registry, logg)
	}

	// 3. Start HTTP server
	server := mhttp.NewServer(mhttp.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Docs:         cfg.Server.Docs,
		Version:      cfg.BuildVersion,
	}, registry, logg)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// 4. Handle graceful shutdown
	select {
	case <-ctx.Done():
		logg.Info("shutting down")
	case err := <-errCh:
		logg.Error("HTTP server failed", zap.Error(err))
	}

	if err := server.Stop(); err != nil {
		logg.Warn("server forced to shutdown", zap.Error(err))
	}
	logg.Info("exiting")
}

// watchArtifacts reloads the pipeline when the cached files change.
func watchArtifacts(ctx context.Context, loader *artifact.Loader, opts artifact.PipelineOptions, registry *ml.Registry, logg *zap.Logger) {
	reload := func() {
		if err := loader.Reload(ctx, opts, registry); err != nil {
			logg.Error("artifact reload failed, keeping current pipeline", zap.Error(err))
			return
		}
		logg.Info("artifacts reloaded")
	}
	err := artifact.Watch(ctx, loader.Dir, loader.LocalFiles(opts), 500*time.Millisecond, logg, reload)
	if err != nil {
		logg.Error("artifact watcher stopped", zap.Error(err))
	}
}
