// Package app wires configuration into a running pipeline.
package app

import (
	"context"
	"fmt"

	gcppubsub "cloud.google.com/go/pubsub"
	gcsclient "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/quantfeed/linkharvest/internal/cache"
	"github.com/quantfeed/linkharvest/internal/classifier"
	"github.com/quantfeed/linkharvest/internal/clock/system"
	"github.com/quantfeed/linkharvest/internal/config"
	"github.com/quantfeed/linkharvest/internal/dispatcher"
	"github.com/quantfeed/linkharvest/internal/extract"
	"github.com/quantfeed/linkharvest/internal/extractor"
	"github.com/quantfeed/linkharvest/internal/fetch/headless"
	"github.com/quantfeed/linkharvest/internal/fetch/lightweight"
	"github.com/quantfeed/linkharvest/internal/hash/sha256"
	"github.com/quantfeed/linkharvest/internal/id/uuid"
	"github.com/quantfeed/linkharvest/internal/links"
	"github.com/quantfeed/linkharvest/internal/metrics"
	"github.com/quantfeed/linkharvest/internal/policy/ratelimit"
	"github.com/quantfeed/linkharvest/internal/policy/retry"
	"github.com/quantfeed/linkharvest/internal/progress/sinks"
	memorypublisher "github.com/quantfeed/linkharvest/internal/publisher/memory"
	pubsubpublisher "github.com/quantfeed/linkharvest/internal/publisher/pubsub"
	"github.com/quantfeed/linkharvest/internal/storage/gcs"
	"github.com/quantfeed/linkharvest/internal/storage/local"
	memorystorage "github.com/quantfeed/linkharvest/internal/storage/memory"
	"github.com/quantfeed/linkharvest/internal/store/postgres"
)

// App holds the assembled pipeline and everything that needs teardown.
type App struct {
	Pipeline *dispatcher.Pipeline

	closers []func()
}

// Build assembles the pipeline from config. Construction-time validation is
// the only fatal path; everything after Build reports per-link errors.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	metrics.Init()
	a := &App{}

	governor, err := ratelimit.New(ratelimit.Config{
		GlobalConcurrency:     cfg.Fetch.GlobalConcurrency,
		AutomationConcurrency: cfg.Fetch.AutomationConcurrency,
		PerHostDelay:          cfg.PerHostDelay(),
		PerHostRPS:            cfg.Fetch.PerHostRPS,
	})
	if err != nil {
		return nil, fmt.Errorf("build governor: %w", err)
	}

	index, err := a.buildIndex(ctx, cfg)
	if err != nil {
		return nil, err
	}
	blobs, err := a.buildBlobStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	dedup, err := cache.New(index, blobs, sha256.New(), system.New(),
		cache.Config{Freshness: cfg.FreshnessWindow()}, logger.Named("cache"))
	if err != nil {
		return nil, fmt.Errorf("build cache: %w", err)
	}

	light := lightweight.New(lightweight.Config{
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	})

	var automation links.Fetcher = headless.NewUnavailable()
	if cfg.Fetch.AutomationEnabled {
		chrome, err := headless.New(headless.Config{
			UserAgent:         cfg.Fetch.UserAgent,
			NavigationTimeout: cfg.AutomationTimeout(),
		})
		if err != nil {
			return nil, fmt.Errorf("build automation fetcher: %w", err)
		}
		a.closers = append(a.closers, chrome.Close)
		automation = chrome
	}

	var content extract.Extractor = extract.NewInline()
	if cfg.Extractor.ServiceURL != "" {
		client, err := extract.NewClient(extract.ClientConfig{
			ServiceURL: cfg.Extractor.ServiceURL,
			Timeout:    cfg.ExtractorTimeout(),
		})
		if err != nil {
			return nil, fmt.Errorf("build extractor client: %w", err)
		}
		content = client
	}

	publisher, err := a.buildPublisher(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pipeline, err := dispatcher.New(dispatcher.Config{
		Workers:                  cfg.Fetch.GlobalConcurrency,
		BatchDeadline:            cfg.BatchDeadline(),
		CancelInflightOnDeadline: cfg.Dispatcher.CancelInflightOnDeadline,
		MaxPortalsPerBatch:       cfg.Portal.MaxPerBatch,
		MaxLinksPerPortal:        cfg.Portal.MaxLinksPerPortal,
		PublishTopic:             cfg.PubSub.TopicName,
	}, dispatcher.Deps{
		Extractor:   extractor.New(),
		Classifier:  classifier.New(classifier.ConfidencePolicy(cfg.Classifier.PortalConfidence)),
		Lightweight: light,
		Automation:  automation,
		Governor:    governor,
		Retries: retry.New(retry.Config{
			MaxRetries: cfg.Fetch.MaxRetries,
			BaseDelay:  cfg.BackoffInitial(),
			MaxDelay:   cfg.BackoffMax(),
		}),
		Cache:     dedup,
		Content:   content,
		Publisher: publisher,
		Emitter:   sinks.NewLogSink(logger.Named("progress")),
		IDs:       uuid.New(),
		Clock:     system.New(),
		Logger:    logger.Named("pipeline"),
	})
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	a.Pipeline = pipeline
	return a, nil
}

// Close tears down background resources in reverse build order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *App) buildIndex(ctx context.Context, cfg config.Config) (cache.Index, error) {
	switch cfg.Cache.Index {
	case "postgres":
		store, err := postgres.NewIndexStore(ctx, postgres.IndexStoreConfig{
			DSN:      cfg.DB.DSN,
			MaxConns: int32(cfg.DB.MaxOpenConns),
			MinConns: int32(cfg.DB.MinOpenConns),
		})
		if err != nil {
			return nil, fmt.Errorf("build postgres index: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		return cache.NewMemoryIndex(), nil
	}
}

func (a *App) buildBlobStore(ctx context.Context, cfg config.Config) (links.BlobStore, error) {
	switch cfg.Cache.BlobStore {
	case "local":
		store, err := local.New(local.Config{BaseDir: cfg.Cache.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("build local blob store: %w", err)
		}
		return store, nil
	case "gcs":
		return a.buildGCSBlobStore(ctx, cfg)
	default:
		return memorystorage.New(), nil
	}
}

func (a *App) buildGCSBlobStore(ctx context.Context, cfg config.Config) (links.BlobStore, error) {
	client, err := gcsclient.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("build gcs client: %w", err)
	}
	a.closers = append(a.closers, func() { _ = client.Close() })
	store, err := gcs.New(client, gcs.Config{Bucket: cfg.Cache.GCSBucket})
	if err != nil {
		return nil, fmt.Errorf("build gcs blob store: %w", err)
	}
	return store, nil
}

func (a *App) buildPublisher(ctx context.Context, cfg config.Config) (links.Publisher, error) {
	if cfg.PubSub.TopicName == "" {
		return memorypublisher.New(), nil
	}
	client, err := gcppubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("build pubsub client: %w", err)
	}
	publisher, err := pubsubpublisher.New(client)
	if err != nil {
		return nil, fmt.Errorf("build publisher: %w", err)
	}
	a.closers = append(a.closers, func() { _ = publisher.Close() })
	return publisher, nil
}
