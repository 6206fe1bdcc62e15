// Package main wires together the link harvesting service binary.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/quantfeed/linkharvest/internal/api"
	"github.com/quantfeed/linkharvest/internal/app"
	"github.com/quantfeed/linkharvest/internal/config"
	"github.com/quantfeed/linkharvest/internal/links"
	"github.com/quantfeed/linkharvest/internal/logging"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	filePath := flag.String("file", "", "Process one markup file and print the summary JSON")
	baseURL := flag.String("base-url", "", "Base URL for resolving links in -file mode")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	harvester, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("build pipeline failed", zap.Error(err))
	}
	defer harvester.Close()

	if *filePath != "" {
		if err := runOnce(ctx, harvester, *filePath, *baseURL); err != nil {
			logger.Fatal("one-shot processing failed", zap.Error(err))
		}
		return
	}

	serve(ctx, stop, harvester, cfg, logger)
}

// runOnce processes a single markup file and prints the summary to stdout.
func runOnce(ctx context.Context, harvester *app.App, path, baseURL string) error {
	markup, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read markup file: %w", err)
	}
	summary, err := harvester.Pipeline.Process(ctx, links.Document{
		Markup:  string(markup),
		BaseURL: baseURL,
	})
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(summary); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}

func serve(ctx context.Context, stop context.CancelFunc, harvester *app.App, cfg config.Config, logger *zap.Logger) {
	apiServer := api.NewServer(harvester.Pipeline, logger.Named("api"), cfg)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
