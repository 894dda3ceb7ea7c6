// Package worker runs the per-node visit loop against one browser session.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkplayer/internal/browser"
	"github.com/JakeFAU/linkplayer/internal/clock/system"
	"github.com/JakeFAU/linkplayer/internal/config"
	"github.com/JakeFAU/linkplayer/internal/metrics"
	"github.com/JakeFAU/linkplayer/internal/report"
	"github.com/JakeFAU/linkplayer/internal/storage"
)

// ErrDriverUnavailable is returned when the browser could not be started.
var ErrDriverUnavailable = errors.New("browser driver unavailable")

// Visit stages reported on failure.
const (
	StageNavigate   = "navigate"
	StageWait       = "wait"
	StageWatch      = "watch"
	StageScreenshot = "screenshot"
	StageStore      = "store"
)

const (
	scrollDownScript = "window.scrollBy(0, 200);"
	scrollUpScript   = "window.scrollBy(0, -100);"
)

// Clock supplies time and cancellable sleeps.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// IDGenerator creates run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Config controls Worker behavior.
type Config struct {
	NodeIndex              int
	NodeTotal              int
	StartAttempts          int
	StartRetryDelay        time.Duration
	PlayXPath              string
	PlayerElementID        string
	ClickTimeout           time.Duration
	PageLoadWait           config.Delay
	ScrollPause            config.Delay
	WatchWait              config.Delay
	CooldownWait           config.Delay
	ExtraScrollProbability float64
	ScreenshotPrefix       string
}

// ConfigFrom maps the loaded configuration onto a worker Config.
func ConfigFrom(cfg config.Config) Config {
	return Config{
		NodeIndex:              cfg.Node.Index,
		NodeTotal:              cfg.Node.Total,
		StartAttempts:          cfg.Worker.StartAttempts,
		StartRetryDelay:        cfg.Worker.StartRetryDelay,
		PlayXPath:              cfg.Worker.PlayXPath,
		PlayerElementID:        cfg.Worker.PlayerElementID,
		ClickTimeout:           cfg.Worker.ClickTimeout,
		PageLoadWait:           cfg.Worker.PageLoadWait,
		ScrollPause:            cfg.Worker.ScrollPause,
		WatchWait:              cfg.Worker.WatchWait,
		CooldownWait:           cfg.Worker.CooldownWait,
		ExtraScrollProbability: cfg.Worker.ExtraScrollProbability,
		ScreenshotPrefix:       cfg.Storage.Prefix,
	}
}

// Option customizes a Worker.
type Option func(*Worker)

// WithClock replaces the wall clock.
func WithClock(clock Clock) Option {
	return func(w *Worker) { w.clock = clock }
}

// WithIDGenerator replaces the run ID source.
func WithIDGenerator(ids IDGenerator) Option {
	return func(w *Worker) { w.ids = ids }
}

// WithRand fixes the random source used for jitter and extra scrolls.
func WithRand(rnd *rand.Rand) Option {
	return func(w *Worker) { w.rnd = rnd }
}

// Worker visits a node's links with a single browser session.
type Worker struct {
	launcher browser.Launcher
	blobs    storage.BlobStore
	recorder report.Recorder
	clock    Clock
	ids      IDGenerator
	rnd      *rand.Rand
	pacer    *Pacer
	cfg      Config
	logger   *zap.Logger
	ready    atomic.Bool
}

// New constructs a Worker. Without options it uses the wall clock and
// leaves the run ID empty.
func New(
	launcher browser.Launcher,
	blobs storage.BlobStore,
	recorder report.Recorder,
	cfg Config,
	logger *zap.Logger,
	opts ...Option,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = report.NewLogRecorder(logger)
	}
	if cfg.StartAttempts <= 0 {
		cfg.StartAttempts = 1
	}
	if cfg.NodeTotal <= 0 {
		cfg.NodeTotal = 1
	}
	w := &Worker{
		launcher: launcher,
		blobs:    blobs,
		recorder: recorder,
		cfg:      cfg,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.clock == nil {
		w.clock = system.New()
	}
	w.pacer = NewPacer(w.clock, w.rnd)
	return w
}

// Ready reports whether the browser session is up.
func (w *Worker) Ready() bool {
	return w.ready.Load()
}

// Run starts the browser and visits links in order. Per-link failures and a
// driver that never starts are logged and reflected in the summary; Run
// itself never fails.
func (w *Worker) Run(ctx context.Context, links []string) report.Summary {
	summary := report.Summary{
		RunID:     w.newRunID(),
		NodeIndex: w.cfg.NodeIndex,
		NodeTotal: w.cfg.NodeTotal,
		Links:     len(links),
		StartedAt: w.clock.Now(),
	}
	logger := w.logger.With(zap.String("run_id", summary.RunID))
	if len(links) == 0 {
		summary.FinishedAt = w.clock.Now()
		return summary
	}

	session, err := w.startDriver(ctx, logger)
	if err != nil {
		logger.Error("cannot start driver", zap.Error(err))
		summary.FinishedAt = w.clock.Now()
		return summary
	}
	summary.DriverStarted = true
	w.ready.Store(true)
	defer w.release(session, logger)

	namer := NewNamer(w.clock)
	metrics.SetLinksRemaining(len(links))
	for i, link := range links {
		if ctx.Err() != nil {
			logger.Warn("run interrupted", zap.Int("remaining", len(links)-i), zap.Error(ctx.Err()))
			break
		}
		visit := w.visit(ctx, session, namer, summary.RunID, i, link, logger)
		summary.Add(visit)
		metrics.ObserveLink(string(visit.Outcome), visit.FinishedAt.Sub(visit.StartedAt))
		metrics.SetLinksRemaining(len(links) - i - 1)
		if err := w.recorder.RecordVisit(context.WithoutCancel(ctx), visit); err != nil {
			logger.Warn("record visit failed", zap.Int("index", i), zap.Error(err))
		}
	}
	summary.FinishedAt = w.clock.Now()
	return summary
}

func (w *Worker) newRunID() string {
	if w.ids == nil {
		return ""
	}
	id, err := w.ids.NewID()
	if err != nil {
		w.logger.Warn("run id generation failed", zap.Error(err))
		return ""
	}
	return id
}

func (w *Worker) startDriver(ctx context.Context, logger *zap.Logger) (browser.Session, error) {
	var (
		session browser.Session
		attempt int
	)
	operation := func() error {
		attempt++
		s, err := w.launcher.Launch(ctx)
		if err == nil && s == nil {
			err = errors.New("launcher returned no session")
		}
		metrics.ObserveDriverStart(err == nil)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		session = s
		return nil
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewConstantBackOff(w.cfg.StartRetryDelay),
			uint64(w.cfg.StartAttempts-1),
		),
		ctx,
	)
	notify := func(err error, next time.Duration) {
		logger.Warn("driver start failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", w.cfg.StartAttempts),
			zap.Duration("retry_in", next),
			zap.Error(err),
		)
	}
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, fmt.Errorf("%w after %d attempts: %w", ErrDriverUnavailable, attempt, err)
	}
	logger.Info("driver started", zap.Int("attempts", attempt))
	return session, nil
}

func (w *Worker) release(session browser.Session, logger *zap.Logger) {
	w.ready.Store(false)
	if err := session.Close(); err != nil {
		logger.Warn("driver release failed", zap.Error(err))
		return
	}
	logger.Info("driver released")
}

func (w *Worker) visit(
	ctx context.Context,
	session browser.Session,
	namer *Namer,
	runID string,
	index int,
	link string,
	logger *zap.Logger,
) report.Visit {
	v := report.Visit{
		RunID:      runID,
		NodeIndex:  w.cfg.NodeIndex,
		NodeTotal:  w.cfg.NodeTotal,
		Index:      index,
		URL:        link,
		PlayMethod: report.PlayNone,
		StartedAt:  w.clock.Now(),
	}
	logger = logger.With(zap.Int("index", index), zap.String("url", link))
	logger.Debug("visiting link")

	if err := session.Navigate(ctx, link); err != nil {
		return w.fail(v, StageNavigate, err)
	}
	if err := w.pacer.Wait(ctx, w.cfg.PageLoadWait); err != nil {
		return w.fail(v, StageWait, err)
	}

	w.interact(ctx, session, logger)

	v.PlayMethod = w.clickPlay(ctx, session, logger)
	metrics.ObservePlay(string(v.PlayMethod))
	if v.Played() {
		if err := w.pacer.Wait(ctx, w.cfg.WatchWait); err != nil {
			return w.fail(v, StageWatch, err)
		}
	}

	shot, err := session.Screenshot(ctx)
	if err != nil {
		return w.fail(v, StageScreenshot, err)
	}
	path := storage.ObjectPath(w.cfg.ScreenshotPrefix, namer.Next(index))
	uri, err := w.blobs.PutObject(ctx, path, "image/png", bytes.NewReader(shot))
	if err != nil {
		return w.fail(v, StageStore, err)
	}
	metrics.ObserveScreenshot(len(shot))
	v.ScreenshotURI = uri

	if w.pacer.Chance(w.cfg.ExtraScrollProbability) {
		if err := session.Evaluate(ctx, scrollDownScript); err != nil {
			logger.Debug("extra scroll failed", zap.Error(err))
		}
	}
	if err := w.pacer.Wait(ctx, w.cfg.CooldownWait); err != nil {
		logger.Debug("cooldown interrupted", zap.Error(err))
	}

	v.Outcome = report.OutcomeSucceeded
	v.FinishedAt = w.clock.Now()
	return v
}

// interact scrolls down then partly back up. Failures are ignored.
func (w *Worker) interact(ctx context.Context, session browser.Session, logger *zap.Logger) {
	if err := session.Evaluate(ctx, scrollDownScript); err != nil {
		logger.Debug("scroll down failed", zap.Error(err))
		return
	}
	if err := w.pacer.Wait(ctx, w.cfg.ScrollPause); err != nil {
		return
	}
	if err := session.Evaluate(ctx, scrollUpScript); err != nil {
		logger.Debug("scroll up failed", zap.Error(err))
	}
}

// clickPlay tries the play button, then the player element by script.
func (w *Worker) clickPlay(ctx context.Context, session browser.Session, logger *zap.Logger) report.PlayMethod {
	err := session.Click(ctx, w.cfg.PlayXPath, w.cfg.ClickTimeout)
	if err == nil {
		logger.Info("clicked play button")
		return report.PlayPrimary
	}
	logger.Debug("play button not clickable", zap.Error(err))

	if w.cfg.PlayerElementID != "" {
		fallbackErr := session.Evaluate(ctx, playerClickScript(w.cfg.PlayerElementID))
		if fallbackErr == nil {
			logger.Info("clicked player element")
			return report.PlayFallback
		}
		err = errors.Join(err, fallbackErr)
	}
	logger.Warn("playback not started", zap.Error(fmt.Errorf("%w: %w", browser.ErrNoPlayButton, err)))
	return report.PlayNone
}

func playerClickScript(id string) string {
	return fmt.Sprintf("document.getElementById(%q) && document.getElementById(%q).click();", id, id)
}

func (w *Worker) fail(v report.Visit, stage string, err error) report.Visit {
	v.Outcome = report.OutcomeFailed
	v.Stage = stage
	v.Error = err.Error()
	v.FinishedAt = w.clock.Now()
	return v
}
