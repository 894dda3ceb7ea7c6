package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubRecorder struct {
	visits    []Visit
	summaries []Summary
	err       error
}

func (s *stubRecorder) RecordVisit(_ context.Context, v Visit) error {
	s.visits = append(s.visits, v)
	return s.err
}

func (s *stubRecorder) RecordSummary(_ context.Context, sum Summary) error {
	s.summaries = append(s.summaries, sum)
	return s.err
}

type stubPublisher struct {
	topic   string
	payload any
	err     error
}

func (p *stubPublisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.topic = topic
	p.payload = payload
	return "id-1", p.err
}

func TestSummaryAdd(t *testing.T) {
	t.Parallel()

	var s Summary
	s.Add(Visit{Outcome: OutcomeSucceeded, PlayMethod: PlayPrimary, ScreenshotURI: "file://a.png"})
	s.Add(Visit{Outcome: OutcomeSucceeded, PlayMethod: PlayNone, ScreenshotURI: "file://b.png"})
	s.Add(Visit{Outcome: OutcomeFailed, PlayMethod: PlayFallback})

	assert.Equal(t, 3, s.Attempted)
	assert.Equal(t, 2, s.Succeeded)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 2, s.Played)
	assert.Equal(t, 2, s.Screenshots)
}

func TestMultiForwardsAndJoinsErrors(t *testing.T) {
	t.Parallel()

	ok := &stubRecorder{}
	broken := &stubRecorder{err: errors.New("db down")}
	multi := Multi{ok, broken}

	err := multi.RecordVisit(context.Background(), Visit{URL: "https://x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
	assert.Len(t, ok.visits, 1)
	assert.Len(t, broken.visits, 1)

	require.Error(t, multi.RecordSummary(context.Background(), Summary{RunID: "r"}))
	assert.Len(t, ok.summaries, 1)

	require.NoError(t, Multi{ok}.RecordSummary(context.Background(), Summary{}))
}

func TestLogRecorder(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	rec := NewLogRecorder(zap.New(core))
	start := time.Unix(1700000000, 0)

	require.NoError(t, rec.RecordVisit(context.Background(), Visit{
		URL: "https://a", Outcome: OutcomeSucceeded, PlayMethod: PlayPrimary,
		ScreenshotURI: "file://screens/shot_0_1.png", StartedAt: start, FinishedAt: start.Add(time.Second),
	}))
	require.NoError(t, rec.RecordVisit(context.Background(), Visit{
		URL: "https://b", Outcome: OutcomeFailed, Stage: "navigate", Error: "timeout",
	}))
	require.NoError(t, rec.RecordSummary(context.Background(), Summary{RunID: "run-1", Attempted: 2}))

	require.Equal(t, 1, logs.FilterMessage("visit finished").Len())
	failed := logs.FilterMessage("visit failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, zapcore.WarnLevel, failed[0].Level)
	assert.Equal(t, "navigate", failed[0].ContextMap()["stage"])
	assert.Equal(t, 1, logs.FilterMessage("run finished").Len())
}

func TestPublishRecorder(t *testing.T) {
	t.Parallel()

	pub := &stubPublisher{}
	rec := NewPublishRecorder(pub, "runs")

	require.NoError(t, rec.RecordVisit(context.Background(), Visit{}))
	assert.Nil(t, pub.payload)

	require.NoError(t, rec.RecordSummary(context.Background(), Summary{RunID: "run-9"}))
	assert.Equal(t, "runs", pub.topic)
	assert.Equal(t, Summary{RunID: "run-9"}, pub.payload)

	pub.err = errors.New("quota")
	require.ErrorContains(t, rec.RecordSummary(context.Background(), Summary{}), "quota")
}
