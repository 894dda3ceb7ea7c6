package worker

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/linkplayer/internal/browser"
	"github.com/JakeFAU/linkplayer/internal/report"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	return ctx.Err()
}

func (c *fakeClock) slept() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

type fakeIDs struct{ id string }

func (f fakeIDs) NewID() (string, error) { return f.id, nil }

type fakeSession struct {
	mu          sync.Mutex
	navErr      map[string]error
	clickErr    error
	fallbackErr error
	shotErr     error
	closeErr    error
	navigated   []string
	evaluated   []string
	clicks      int
	screenshots int
	closed      bool
}

func (s *fakeSession) Navigate(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navigated = append(s.navigated, url)
	return s.navErr[url]
}

func (s *fakeSession) Evaluate(_ context.Context, script string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evaluated = append(s.evaluated, script)
	if strings.Contains(script, "getElementById") {
		return s.fallbackErr
	}
	return nil
}

func (s *fakeSession) Click(context.Context, string, time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clicks++
	return s.clickErr
}

func (s *fakeSession) Screenshot(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shotErr != nil {
		return nil, s.shotErr
	}
	s.screenshots++
	return []byte("\x89PNG"), nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.closeErr
}

func (s *fakeSession) evaluatedCount(script string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.evaluated {
		if e == script {
			n++
		}
	}
	return n
}

type fakeLauncher struct {
	mu       sync.Mutex
	fails    int
	attempts int
	session  *fakeSession
}

func (l *fakeLauncher) Launch(context.Context) (browser.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts++
	if l.attempts <= l.fails {
		return nil, errors.New("chrome failed to start")
	}
	return l.session, nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	visits  []report.Visit
	onVisit func(report.Visit)
}

func (r *fakeRecorder) RecordVisit(_ context.Context, v report.Visit) error {
	r.mu.Lock()
	r.visits = append(r.visits, v)
	hook := r.onVisit
	r.mu.Unlock()
	if hook != nil {
		hook(v)
	}
	return nil
}

func (*fakeRecorder) RecordSummary(context.Context, report.Summary) error { return nil }

type failingBlobStore struct{}

func (failingBlobStore) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("bucket unavailable")
}
