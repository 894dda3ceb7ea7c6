// Package browser wraps the headless Chrome session used to visit links.
//
// The worker only sees the Launcher and Session interfaces. The chromedp
// implementation lives in chromedp.go; tests substitute fakes.
package browser

import (
	"context"
	"errors"
	"time"
)

// ErrNoPlayButton is returned when neither the play button nor the player
// element could be clicked.
var ErrNoPlayButton = errors.New("no play button")

// Session is one live browser owned by a single worker for the whole run.
type Session interface {
	// Navigate loads url and waits for the page load event.
	Navigate(ctx context.Context, url string) error
	// Evaluate runs script in the page and discards its result.
	Evaluate(ctx context.Context, script string) error
	// Click waits up to timeout for the XPath element to become visible,
	// scrolls it into view and clicks it.
	Click(ctx context.Context, xpath string, timeout time.Duration) error
	// Screenshot captures the current viewport as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
	// Close releases the browser process.
	Close() error
}

// Launcher starts browser sessions.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}
