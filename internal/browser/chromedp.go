package browser

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/linkplayer/internal/logging"
)

// hideWebdriverScript masks the automation flag on every new document.
const hideWebdriverScript = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined})`

// Config controls how Chrome is launched.
type Config struct {
	Headless          bool
	Proxy             string
	UserAgent         string
	WindowWidth       int
	WindowHeight      int
	NavigationTimeout time.Duration
}

// Chromedp implements Launcher with a locally spawned Chrome.
type Chromedp struct {
	cfg    Config
	logger *zap.Logger
	intn   func(int) int
}

// NewChromedp validates cfg and returns a launcher.
func NewChromedp(cfg Config, logger *zap.Logger) (*Chromedp, error) {
	if cfg.WindowWidth < 0 || cfg.WindowHeight < 0 {
		return nil, fmt.Errorf("window size must be >= 0")
	}
	if cfg.WindowWidth == 0 || cfg.WindowHeight == 0 {
		cfg.WindowWidth, cfg.WindowHeight = 1280, 800
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chromedp{cfg: cfg, logger: logger}, nil
}

// flags returns the Chrome command-line switches for a new session.
func (c *Chromedp) flags() map[string]any {
	ua := c.cfg.UserAgent
	if ua == "" {
		ua = randomUserAgent(c.intn)
	}
	flags := map[string]any{
		"disable-blink-features": "AutomationControlled",
		"enable-automation":      false,
		"no-sandbox":             true,
		"disable-dev-shm-usage":  true,
		"disable-gpu":            true,
		"window-size":            fmt.Sprintf("%d,%d", c.cfg.WindowWidth, c.cfg.WindowHeight),
		"user-agent":             ua,
	}
	if c.cfg.Headless {
		flags["headless"] = "new"
	} else {
		flags["headless"] = false
		flags["hide-scrollbars"] = false
	}
	if c.cfg.Proxy != "" {
		flags["proxy-server"] = c.cfg.Proxy
	}
	return flags
}

func (c *Chromedp) allocatorOptions() []chromedp.ExecAllocatorOption {
	flags := c.flags()
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)

	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	for _, name := range names {
		opts = append(opts, chromedp.Flag(name, flags[name]))
	}
	return opts
}

// Launch starts Chrome, opens a tab and installs the webdriver mask.
// The browser lives until Close; ctx only bounds the warmup.
func (c *Chromedp) Launch(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("launch canceled: %w", err)
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), c.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logging.Printf(c.logger, zapcore.DebugLevel)),
		chromedp.WithErrorf(logging.Printf(c.logger, zapcore.DebugLevel)),
	)

	stopForward := forwardCancel(ctx, browserCancel)
	err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		if _, err := page.AddScriptToEvaluateOnNewDocument(hideWebdriverScript).Do(ctx); err != nil {
			return fmt.Errorf("install webdriver mask: %w", err)
		}
		return nil
	}))
	stopForward()
	if err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	c.logger.Info("browser started",
		zap.Bool("headless", c.cfg.Headless),
		zap.Bool("proxy", c.cfg.Proxy != ""),
	)
	return &chromedpSession{
		ctx:         browserCtx,
		cancel:      browserCancel,
		allocCancel: allocCancel,
		navTimeout:  c.cfg.NavigationTimeout,
	}, nil
}

type chromedpSession struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	navTimeout  time.Duration
}

func (s *chromedpSession) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	taskCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	stopForward := forwardCancel(ctx, cancel)
	defer stopForward()
	return chromedp.Run(taskCtx, actions...)
}

func (s *chromedpSession) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, s.navTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (s *chromedpSession) Evaluate(ctx context.Context, script string) error {
	if err := s.run(ctx, s.navTimeout, chromedp.Evaluate(script, nil)); err != nil {
		return fmt.Errorf("evaluate script: %w", err)
	}
	return nil
}

func (s *chromedpSession) Click(ctx context.Context, xpath string, timeout time.Duration) error {
	err := s.run(ctx, timeout,
		chromedp.WaitVisible(xpath, chromedp.BySearch),
		chromedp.ScrollIntoView(xpath, chromedp.BySearch),
		chromedp.Click(xpath, chromedp.BySearch, chromedp.NodeVisible),
	)
	if err != nil {
		return fmt.Errorf("click %s: %w", xpath, err)
	}
	return nil
}

func (s *chromedpSession) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, s.navTimeout, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

// Close shuts the browser down gracefully, then tears down the allocator.
func (s *chromedpSession) Close() error {
	err := chromedp.Cancel(s.ctx)
	s.cancel()
	s.allocCancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

// forwardCancel calls cancel when parent is done, until the returned stop func runs.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
