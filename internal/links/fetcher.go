// Package links downloads the newline-delimited list of video URLs.
package links

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// ErrEmptyURL is returned when no list location is configured.
var ErrEmptyURL = errors.New("link list url is empty")

// Config controls the list download.
type Config struct {
	Timeout   time.Duration
	UserAgent string
}

// Fetcher downloads the link list with a single Colly GET.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.ParseHTTPErrorResponse(),
	)
	c.WithTransport(newHTTPTransport())
	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		logger:        logger,
	}
}

// Fetch performs one GET against rawURL and returns its trimmed, non-empty lines.
// Non-2xx responses and transport errors are returned as errors. There is no retry.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]string, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, ErrEmptyURL
	}

	var (
		body     []byte
		fetchErr error
	)
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	collector.OnResponse(func(r *colly.Response) {
		if r.StatusCode < http.StatusOK || r.StatusCode >= http.StatusMultipleChoices {
			fetchErr = fmt.Errorf("unexpected status %d from %s", r.StatusCode, r.Request.URL)
			return
		}
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	start := time.Now()
	if err := f.runCollector(ctx, collector, rawURL, &fetchErr); err != nil {
		return nil, err
	}

	lines := ParseLines(string(body))
	f.logger.Info("fetched link list",
		zap.String("url", rawURL),
		zap.Int("links", len(lines)),
		zap.Duration("duration", time.Since(start)),
	)
	return lines, nil
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("link list fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("link list visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("link list response failed: %w", *fetchErr)
		}
		return nil
	}
}

// ParseLines splits body on line breaks, trims each line and drops blanks.
// Bare carriage returns and the Unicode line and paragraph separators count
// as breaks too.
func ParseLines(body string) []string {
	var out []string
	for _, line := range strings.FieldsFunc(body, isLineBreak) {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func isLineBreak(r rune) bool {
	switch r {
	case '\n', '\r', '\v', '\f', '\x1c', '\x1d', '\x1e', '\u0085', '\u2028', '\u2029':
		return true
	}
	return false
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          4,
		IdleConnTimeout:       30 * time.Second,
	}
}
