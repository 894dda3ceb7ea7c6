package browser

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewChromedpDefaults(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{WindowWidth: -1}, nil)
	require.Error(t, err)

	launcher, err := NewChromedp(Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1280, launcher.cfg.WindowWidth)
	assert.Equal(t, 800, launcher.cfg.WindowHeight)
	assert.Equal(t, 45*time.Second, launcher.cfg.NavigationTimeout)
}

func TestFlagsHeadlessWithProxy(t *testing.T) {
	t.Parallel()

	launcher, err := NewChromedp(Config{
		Headless:     true,
		Proxy:        "http://10.0.0.1:3128",
		WindowWidth:  1280,
		WindowHeight: 800,
	}, nil)
	require.NoError(t, err)
	launcher.intn = func(int) int { return 0 }

	flags := launcher.flags()
	assert.Equal(t, "new", flags["headless"])
	assert.Equal(t, "http://10.0.0.1:3128", flags["proxy-server"])
	assert.Equal(t, "AutomationControlled", flags["disable-blink-features"])
	assert.Equal(t, "1280,800", flags["window-size"])
	assert.Equal(t, true, flags["no-sandbox"])
	assert.Equal(t, true, flags["disable-dev-shm-usage"])
	assert.Equal(t, true, flags["disable-gpu"])
	assert.Equal(t, desktopUserAgents[0], flags["user-agent"])
	assert.NotEmpty(t, launcher.allocatorOptions())
}

func TestFlagsHeadedWithoutProxy(t *testing.T) {
	t.Parallel()

	launcher, err := NewChromedp(Config{UserAgent: "fixed-agent"}, nil)
	require.NoError(t, err)

	flags := launcher.flags()
	assert.Equal(t, false, flags["headless"])
	assert.NotContains(t, flags, "proxy-server")
	assert.Equal(t, "fixed-agent", flags["user-agent"])
}

func TestRandomUserAgentUsesPool(t *testing.T) {
	t.Parallel()

	last := len(desktopUserAgents) - 1
	assert.Equal(t, desktopUserAgents[last], randomUserAgent(func(n int) int { return n - 1 }))
	assert.Contains(t, desktopUserAgents, randomUserAgent(nil))
}

func TestLaunchCanceledContext(t *testing.T) {
	t.Parallel()

	launcher, err := NewChromedp(Config{Headless: true}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = launcher.Launch(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestForwardCancel(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	child, cancelChild := context.WithCancel(context.Background())
	defer cancelChild()

	stop := forwardCancel(parent, cancelChild)
	defer stop()
	cancelParent()

	select {
	case <-child.Done():
	case <-time.After(time.Second):
		t.Fatal("expected child to be canceled")
	}
}

func TestChromedpSessionEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<!doctype html><html><body style="height:3000px">
<button title="Play Video" onclick="document.title='playing'">Play</button>
</body></html>`)
	}))
	defer srv.Close()

	launcher, err := NewChromedp(Config{Headless: true, NavigationTimeout: 10 * time.Second}, zaptest.NewLogger(t))
	require.NoError(t, err)

	session, err := launcher.Launch(context.Background())
	if err != nil {
		t.Skipf("chrome unavailable: %v", err)
	}
	defer func() {
		assert.NoError(t, session.Close())
	}()

	ctx := context.Background()
	require.NoError(t, session.Navigate(ctx, srv.URL))
	require.NoError(t, session.Evaluate(ctx, "window.scrollBy(0, 200);"))
	require.NoError(t, session.Click(ctx, "//button[@title='Play Video']", 5*time.Second))
	require.Error(t, session.Click(ctx, "//button[@title='Missing']", 500*time.Millisecond))

	shot, err := session.Screenshot(ctx)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(shot, []byte("\x89PNG")), "expected PNG header")
}
