// Package report defines the records a run produces and the sinks that receive them.
package report

import (
	"context"
	"errors"
	"time"
)

// Outcome is the final state of one link visit.
type Outcome string

const (
	// OutcomeSucceeded means the page was visited and a screenshot stored.
	OutcomeSucceeded Outcome = "succeeded"
	// OutcomeFailed means a step aborted the visit; the loop moved on.
	OutcomeFailed Outcome = "failed"
)

// PlayMethod records how playback was triggered.
type PlayMethod string

const (
	// PlayPrimary is a click on the play button found by XPath.
	PlayPrimary PlayMethod = "primary"
	// PlayFallback is the script click on the player element.
	PlayFallback PlayMethod = "fallback"
	// PlayNone means neither strategy worked.
	PlayNone PlayMethod = "none"
)

// Visit is the record of one link processed by a worker.
type Visit struct {
	RunID         string     `json:"run_id"`
	NodeIndex     int        `json:"node_index"`
	NodeTotal     int        `json:"node_total"`
	Index         int        `json:"index"`
	URL           string     `json:"url"`
	Outcome       Outcome    `json:"outcome"`
	Stage         string     `json:"stage,omitempty"`
	PlayMethod    PlayMethod `json:"play_method"`
	ScreenshotURI string     `json:"screenshot_uri,omitempty"`
	Error         string     `json:"error,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    time.Time  `json:"finished_at"`
}

// Played reports whether either click strategy succeeded.
func (v Visit) Played() bool {
	return v.PlayMethod == PlayPrimary || v.PlayMethod == PlayFallback
}

// Summary aggregates a node run.
type Summary struct {
	RunID         string    `json:"run_id"`
	NodeIndex     int       `json:"node_index"`
	NodeTotal     int       `json:"node_total"`
	Links         int       `json:"links"`
	DriverStarted bool      `json:"driver_started"`
	Attempted     int       `json:"attempted"`
	Succeeded     int       `json:"succeeded"`
	Failed        int       `json:"failed"`
	Played        int       `json:"played"`
	Screenshots   int       `json:"screenshots"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

// Add folds one visit into the summary.
func (s *Summary) Add(v Visit) {
	s.Attempted++
	if v.Outcome == OutcomeSucceeded {
		s.Succeeded++
	} else {
		s.Failed++
	}
	if v.Played() {
		s.Played++
	}
	if v.ScreenshotURI != "" {
		s.Screenshots++
	}
}

// Recorder receives visits as they complete and the summary at run end.
type Recorder interface {
	RecordVisit(ctx context.Context, visit Visit) error
	RecordSummary(ctx context.Context, summary Summary) error
}

// Multi fans records out to every recorder and joins their errors.
type Multi []Recorder

// RecordVisit forwards visit to each recorder.
func (m Multi) RecordVisit(ctx context.Context, visit Visit) error {
	var errs []error
	for _, r := range m {
		if err := r.RecordVisit(ctx, visit); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordSummary forwards summary to each recorder.
func (m Multi) RecordSummary(ctx context.Context, summary Summary) error {
	var errs []error
	for _, r := range m {
		if err := r.RecordSummary(ctx, summary); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
