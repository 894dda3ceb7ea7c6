package worker

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/linkplayer/internal/config"
	"github.com/JakeFAU/linkplayer/internal/report"
	"github.com/JakeFAU/linkplayer/internal/storage/memory"
)

func testConfig() Config {
	return Config{
		NodeIndex:        1,
		NodeTotal:        2,
		StartAttempts:    3,
		StartRetryDelay:  time.Millisecond,
		PlayXPath:        "//button[@title='Play Video']",
		PlayerElementID:  "vplayer",
		ClickTimeout:     time.Second,
		PageLoadWait:     config.Delay{Base: 3 * time.Second},
		ScrollPause:      config.Delay{Base: 300 * time.Millisecond},
		WatchWait:        config.Delay{Base: 30 * time.Second},
		CooldownWait:     config.Delay{Base: 5 * time.Second},
		ScreenshotPrefix: "screens",
	}
}

type harness struct {
	worker   *Worker
	launcher *fakeLauncher
	session  *fakeSession
	blobs    *memory.BlobStore
	recorder *fakeRecorder
	clock    *fakeClock
}

func newHarness(t *testing.T, cfg Config, logger *zap.Logger) *harness {
	t.Helper()
	h := &harness{
		session:  &fakeSession{},
		blobs:    memory.NewBlobStore(),
		recorder: &fakeRecorder{},
		clock:    &fakeClock{now: time.Unix(100, 0).UTC()},
	}
	h.launcher = &fakeLauncher{session: h.session}
	if logger == nil {
		logger = zap.NewNop()
	}
	h.worker = New(h.launcher, h.blobs, h.recorder, cfg, logger,
		WithClock(h.clock),
		WithIDGenerator(fakeIDs{id: "run-1"}),
		WithRand(rand.New(rand.NewPCG(1, 2))),
	)
	return h
}

func TestWorker_Run_SuccessFlow(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), nil)
	summary := h.worker.Run(context.Background(), []string{"https://a.example", "https://b.example"})

	assert.Equal(t, "run-1", summary.RunID)
	assert.True(t, summary.DriverStarted)
	assert.Equal(t, 2, summary.Links)
	assert.Equal(t, 2, summary.Attempted)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 2, summary.Played)
	assert.Equal(t, 2, summary.Screenshots)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, h.session.navigated)
	assert.Equal(t, []string{"screens/shot_0_100.png", "screens/shot_1_100.png"}, h.blobs.Keys())
	assert.True(t, h.session.closed)
	assert.False(t, h.worker.Ready())

	require.Len(t, h.recorder.visits, 2)
	v := h.recorder.visits[0]
	assert.Equal(t, report.OutcomeSucceeded, v.Outcome)
	assert.Equal(t, report.PlayPrimary, v.PlayMethod)
	assert.Equal(t, "memory://screens/shot_0_100.png", v.ScreenshotURI)
	assert.Equal(t, 1, v.NodeIndex)
	assert.Equal(t, 2, v.NodeTotal)
	assert.Contains(t, h.clock.slept(), 30*time.Second)
}

func TestWorker_Run_ClickFailureStillTakesScreenshot(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), nil)
	h.session.clickErr = errors.New("no such element")
	h.session.fallbackErr = errors.New("script error")

	summary := h.worker.Run(context.Background(), []string{"https://a.example"})

	assert.Equal(t, 1, summary.Succeeded)
	assert.Zero(t, summary.Played)
	assert.Equal(t, 1, h.session.screenshots)
	assert.Equal(t, []string{"screens/shot_0_100.png"}, h.blobs.Keys())
	require.Len(t, h.recorder.visits, 1)
	assert.Equal(t, report.PlayNone, h.recorder.visits[0].PlayMethod)
	assert.NotContains(t, h.clock.slept(), 30*time.Second)
}

func TestWorker_Run_FallbackClick(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), nil)
	h.session.clickErr = errors.New("timeout waiting for element")

	h.worker.Run(context.Background(), []string{"https://a.example"})

	require.Len(t, h.recorder.visits, 1)
	assert.Equal(t, report.PlayFallback, h.recorder.visits[0].PlayMethod)
	assert.Equal(t, 1, h.session.evaluatedCount(
		`document.getElementById("vplayer") && document.getElementById("vplayer").click();`))
}

func TestWorker_Run_DriverNeverStarts(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.ErrorLevel)
	h := newHarness(t, testConfig(), zap.New(core))
	h.launcher.fails = 100

	var summary report.Summary
	require.NotPanics(t, func() {
		summary = h.worker.Run(context.Background(), []string{"https://a.example", "https://b.example"})
	})

	assert.Equal(t, 3, h.launcher.attempts)
	assert.False(t, summary.DriverStarted)
	assert.Zero(t, summary.Attempted)
	assert.Empty(t, h.session.navigated)
	assert.Empty(t, h.recorder.visits)

	entries := logs.FilterMessage("cannot start driver").All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].ContextMap()["error"], ErrDriverUnavailable.Error())
}

func TestWorker_Run_DriverRecoversOnLastAttempt(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), nil)
	h.launcher.fails = 2

	summary := h.worker.Run(context.Background(), []string{"https://a.example"})

	assert.Equal(t, 3, h.launcher.attempts)
	assert.True(t, summary.DriverStarted)
	assert.Equal(t, 1, summary.Succeeded)
}

func TestWorker_Run_NavigationErrorSkipsOnlyThatLink(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), nil)
	h.session.navErr = map[string]error{"https://b.example": errors.New("net::ERR_NAME_NOT_RESOLVED")}

	summary := h.worker.Run(context.Background(),
		[]string{"https://a.example", "https://b.example", "https://c.example"})

	assert.Equal(t, 3, summary.Attempted)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 2, h.session.screenshots)
	assert.Equal(t, []string{"screens/shot_0_100.png", "screens/shot_2_100.png"}, h.blobs.Keys())

	require.Len(t, h.recorder.visits, 3)
	failed := h.recorder.visits[1]
	assert.Equal(t, report.OutcomeFailed, failed.Outcome)
	assert.Equal(t, StageNavigate, failed.Stage)
	assert.Contains(t, failed.Error, "ERR_NAME_NOT_RESOLVED")
}

func TestWorker_Run_ScreenshotAndStoreFailures(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), nil)
	h.session.shotErr = errors.New("target closed")
	summary := h.worker.Run(context.Background(), []string{"https://a.example"})
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, StageScreenshot, h.recorder.visits[0].Stage)

	launcher := &fakeLauncher{session: &fakeSession{}}
	recorder := &fakeRecorder{}
	w := New(launcher, failingBlobStore{}, recorder, testConfig(), zap.NewNop(),
		WithClock(&fakeClock{now: time.Unix(100, 0)}))
	summary = w.Run(context.Background(), []string{"https://a.example"})
	assert.Equal(t, 1, summary.Failed)
	assert.Zero(t, summary.Screenshots)
	assert.Equal(t, StageStore, recorder.visits[0].Stage)
}

func TestWorker_Run_EmptyListSkipsDriver(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), nil)
	summary := h.worker.Run(context.Background(), nil)

	assert.Zero(t, h.launcher.attempts)
	assert.False(t, summary.DriverStarted)
	assert.Zero(t, summary.Attempted)
}

func TestWorker_Run_StopsWhenContextCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newHarness(t, testConfig(), nil)
	h.recorder.onVisit = func(report.Visit) {
		assert.True(t, h.worker.Ready())
		cancel()
	}

	summary := h.worker.Run(ctx, []string{"https://a.example", "https://b.example", "https://c.example"})

	assert.Equal(t, 1, summary.Attempted)
	assert.Equal(t, []string{"https://a.example"}, h.session.navigated)
	assert.True(t, h.session.closed)
}

func TestWorker_Run_ExtraScroll(t *testing.T) {
	t.Parallel()

	always := testConfig()
	always.ExtraScrollProbability = 1
	h := newHarness(t, always, nil)
	h.worker.Run(context.Background(), []string{"https://a.example"})
	assert.Equal(t, 2, h.session.evaluatedCount(scrollDownScript))
	assert.Equal(t, 1, h.session.evaluatedCount(scrollUpScript))

	never := testConfig()
	never.ExtraScrollProbability = 0
	h = newHarness(t, never, nil)
	h.worker.Run(context.Background(), []string{"https://a.example"})
	assert.Equal(t, 1, h.session.evaluatedCount(scrollDownScript))
}

func TestWorker_Run_ReleaseErrorIsSwallowed(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	h := newHarness(t, testConfig(), zap.New(core))
	h.session.closeErr = errors.New("browser already gone")

	summary := h.worker.Run(context.Background(), []string{"https://a.example"})

	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, logs.FilterMessage("driver release failed").Len())
}

func TestConfigFrom(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		Node: config.NodeConfig{Index: 2, Total: 5},
		Worker: config.WorkerConfig{
			StartAttempts:          3,
			PlayXPath:              "//button",
			ExtraScrollProbability: 0.4,
			WatchWait:              config.Delay{Base: 30 * time.Second, Jitter: 10 * time.Second},
		},
		Storage: config.StorageConfig{Prefix: "ci/run"},
	}
	got := ConfigFrom(cfg)

	assert.Equal(t, 2, got.NodeIndex)
	assert.Equal(t, 5, got.NodeTotal)
	assert.Equal(t, 3, got.StartAttempts)
	assert.Equal(t, "//button", got.PlayXPath)
	assert.Equal(t, cfg.Worker.WatchWait, got.WatchWait)
	assert.Equal(t, "ci/run", got.ScreenshotPrefix)
}
