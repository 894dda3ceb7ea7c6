// Package app builds the services for one node run and drives it from link
// fetch to summary.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkplayer/internal/api"
	"github.com/JakeFAU/linkplayer/internal/browser"
	"github.com/JakeFAU/linkplayer/internal/clock/system"
	"github.com/JakeFAU/linkplayer/internal/config"
	"github.com/JakeFAU/linkplayer/internal/id/uuid"
	"github.com/JakeFAU/linkplayer/internal/links"
	"github.com/JakeFAU/linkplayer/internal/metrics"
	"github.com/JakeFAU/linkplayer/internal/partition"
	pubsubpublisher "github.com/JakeFAU/linkplayer/internal/publisher/pubsub"
	"github.com/JakeFAU/linkplayer/internal/report"
	"github.com/JakeFAU/linkplayer/internal/storage"
	"github.com/JakeFAU/linkplayer/internal/storage/gcs"
	"github.com/JakeFAU/linkplayer/internal/storage/local"
	"github.com/JakeFAU/linkplayer/internal/storage/memory"
	"github.com/JakeFAU/linkplayer/internal/storage/postgres"
	"github.com/JakeFAU/linkplayer/internal/worker"
)

const (
	shutdownTimeout = 5 * time.Second
	pushTimeout     = 10 * time.Second
)

// LinkFetcher downloads the link list.
type LinkFetcher interface {
	Fetch(ctx context.Context, url string) ([]string, error)
}

// Components are the collaborators an App runs with.
type Components struct {
	Fetcher       LinkFetcher
	Launcher      browser.Launcher
	Blobs         storage.BlobStore
	Recorders     []report.Recorder
	WorkerOptions []worker.Option
}

type closer struct {
	name string
	fn   func() error
}

// App holds the long-lived services for a single run.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	comps   Components
	closers []closer
}

// New builds the production services described by cfg. Failures here are
// configuration or initialization errors and should end the process.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}

	blobs, err := a.openBlobStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	recorders := []report.Recorder{report.NewLogRecorder(logger.Named("report"))}
	if cfg.Report.Postgres.DSN != "" {
		store, err := postgres.NewVisitStore(ctx, postgres.VisitStoreConfig{
			DSN:      cfg.Report.Postgres.DSN,
			Table:    cfg.Report.Postgres.Table,
			MaxConns: cfg.Report.Postgres.MaxConns,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init visit store: %w", err)
		}
		a.addCloser("postgres", func() error { store.Close(); return nil })
		recorders = append(recorders, store)
		logger.Info("recording visits to postgres", zap.String("table", cfg.Report.Postgres.Table))
	}
	if cfg.Report.PubSub.TopicID != "" {
		pub, err := pubsubpublisher.Open(ctx, cfg.Report.PubSub.ProjectID, cfg.Report.PubSub.TopicID)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init pubsub publisher: %w", err)
		}
		a.addCloser("pubsub", pub.Close)
		recorders = append(recorders, report.NewPublishRecorder(pub, cfg.Report.PubSub.TopicID))
		logger.Info("publishing run summaries", zap.String("topic", cfg.Report.PubSub.TopicID))
	}

	launcher, err := browser.NewChromedp(browser.Config{
		Headless:          cfg.Browser.HeadlessEnabled(),
		Proxy:             cfg.Browser.Proxy,
		UserAgent:         cfg.Browser.UserAgent,
		WindowWidth:       cfg.Browser.WindowWidth,
		WindowHeight:      cfg.Browser.WindowHeight,
		NavigationTimeout: cfg.NavTimeout(),
	}, logger.Named("browser"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init browser launcher: %w", err)
	}

	a.comps = Components{
		Fetcher: links.New(links.Config{
			Timeout:   cfg.LinksTimeout(),
			UserAgent: cfg.Links.UserAgent,
		}, logger.Named("links")),
		Launcher:  launcher,
		Blobs:     blobs,
		Recorders: recorders,
		WorkerOptions: []worker.Option{
			worker.WithClock(system.New()),
			worker.WithIDGenerator(uuid.New()),
		},
	}
	return a, nil
}

// Assemble builds an App from explicit components.
func Assemble(cfg config.Config, logger *zap.Logger, comps Components) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{cfg: cfg, logger: logger, comps: comps}
}

func (a *App) openBlobStore(ctx context.Context) (storage.BlobStore, error) {
	switch a.cfg.Storage.Provider {
	case "gcs":
		store, err := gcs.Open(ctx, gcs.Config{Bucket: a.cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs storage: %w", err)
		}
		a.addCloser("gcs", store.Close)
		a.logger.Info("storing screenshots in gcs", zap.String("bucket", a.cfg.Storage.GCSBucket))
		return store, nil
	case "memory":
		a.logger.Info("storing screenshots in memory")
		return memory.NewBlobStore(), nil
	default:
		store, err := local.New(local.Config{BaseDir: a.cfg.Storage.ScreenshotsDir})
		if err != nil {
			return nil, fmt.Errorf("init local storage: %w", err)
		}
		a.logger.Info("storing screenshots locally", zap.String("dir", a.cfg.Storage.ScreenshotsDir))
		return store, nil
	}
}

func (a *App) addCloser(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Run fetches the link list, takes this node's share and visits it. It only
// returns once the worker loop is over; every failure along the way is
// logged and reflected in the returned summary.
func (a *App) Run(ctx context.Context) report.Summary {
	node := a.cfg.Node
	all, err := a.comps.Fetcher.Fetch(ctx, a.cfg.Links.URL)
	if err != nil {
		a.logger.Error("fetch links failed", zap.String("url", a.cfg.Links.URL), zap.Error(err))
		all = nil
	}
	if len(all) == 0 {
		a.logger.Warn("no links to process")
		return report.Summary{NodeIndex: node.Index, NodeTotal: node.Total}
	}

	start, end := partition.Bounds(len(all), node.Index, node.Total)
	mine := partition.Slice(all, node.Index, node.Total)
	a.logger.Info("node handling links",
		zap.Int("node_index", node.Index),
		zap.Int("node_total", node.Total),
		zap.Int("start", start),
		zap.Int("end", end),
		zap.Int("count", len(mine)),
		zap.Int("fetched", len(all)),
	)
	if len(mine) == 0 {
		a.logger.Warn("no links to process", zap.Int("node_index", node.Index))
		return report.Summary{NodeIndex: node.Index, NodeTotal: node.Total}
	}

	recorder := report.Multi(a.comps.Recorders)
	w := worker.New(
		a.comps.Launcher,
		a.comps.Blobs,
		recorder,
		worker.ConfigFrom(a.cfg),
		a.logger.Named("worker"),
		a.comps.WorkerOptions...,
	)

	if addr := a.cfg.Ops.ListenAddr; addr != "" {
		srv := api.NewServer(w.Ready, a.logger)
		srv.Start(addr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn("ops server shutdown failed", zap.Error(err))
			}
		}()
	}

	summary := w.Run(ctx, mine)

	finishCtx := context.WithoutCancel(ctx)
	if err := recorder.RecordSummary(finishCtx, summary); err != nil {
		a.logger.Warn("record summary failed", zap.Error(err))
	}
	if url := a.cfg.Metrics.PushgatewayURL; url != "" {
		pushCtx, cancel := context.WithTimeout(finishCtx, pushTimeout)
		defer cancel()
		if err := metrics.Push(pushCtx, url, a.cfg.Metrics.JobName, node.Index); err != nil {
			a.logger.Warn("metrics push failed", zap.Error(err))
		}
	}
	return summary
}

// Close releases every service opened by New, newest first, and flushes the logger.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.logger.Warn("close failed", zap.String("service", c.name), zap.Error(err))
		}
	}
	a.closers = nil
	// Sync on a terminal returns EINVAL; there is nowhere left to report it.
	_ = a.logger.Sync()
}
