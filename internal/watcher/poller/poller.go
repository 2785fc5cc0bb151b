// Package poller runs the fetch, extract and compare cycle against the live odds page.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/Vodeneev/livewatch/internal/pkg/config"
	"github.com/Vodeneev/livewatch/internal/pkg/models"
	"github.com/Vodeneev/livewatch/internal/pkg/performance"
	"github.com/Vodeneev/livewatch/internal/watcher/fingerprint"
	"github.com/Vodeneev/livewatch/internal/watcher/sink"
)

// Fetcher retrieves the raw page.
type Fetcher interface {
	Fetch(ctx context.Context, url string, proxy *config.ProxyConfig) (string, error)
}

// Extractor turns a raw page into records.
type Extractor interface {
	Extract(raw string) ([]models.MatchRecord, error)
}

// State is carried from one tick to the next. It belongs to a single running loop.
type State struct {
	LastFingerprint   string
	ConsecutiveErrors int
	Previous          map[models.MatchKey]models.MatchRecord
}

// Options are the loop parameters.
type Options struct {
	URL            string
	Interval       time.Duration
	ErrorThreshold int
	Proxy          *config.ProxyConfig
}

// Loop polls one page and emits batches when its content changes.
type Loop struct {
	opts      Options
	fetcher   Fetcher
	extractor Extractor
	emitter   sink.Emitter
	clock     Clock
	tracker   *performance.Tracker
}

// Option configures a Loop.
type Option func(*Loop)

// WithClock replaces the real clock.
func WithClock(c Clock) Option {
	return func(l *Loop) { l.clock = c }
}

// WithTracker records per-tick metrics into t.
func WithTracker(t *performance.Tracker) Option {
	return func(l *Loop) { l.tracker = t }
}

// New creates a Loop. Zero interval and threshold fall back to the config defaults.
func New(opts Options, fetcher Fetcher, extractor Extractor, emitter sink.Emitter, options ...Option) *Loop {
	if opts.Interval <= 0 {
		opts.Interval = config.DefaultInterval
	}
	if opts.ErrorThreshold <= 0 {
		opts.ErrorThreshold = config.DefaultErrorThreshold
	}

	l := &Loop{
		opts:      opts,
		fetcher:   fetcher,
		extractor: extractor,
		emitter:   emitter,
		clock:     RealClock(),
		tracker:   performance.NewTracker(),
	}
	for _, o := range options {
		o(l)
	}
	return l
}

// Run polls until ctx is cancelled, then emits a stopped status and returns nil.
// A panic inside a tick is reported as a fatal status and returned as an error.
func (l *Loop) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Poll loop panicked", "panic", r, "stack", string(debug.Stack()))
			l.emitStatus(models.StatusEvent{Kind: models.StatusFatal, Message: fmt.Sprint(r)})
			err = fmt.Errorf("poll loop panic: %v", r)
		}
	}()

	slog.Info("Starting poll loop", "url", l.opts.URL, "interval", l.opts.Interval, "proxy", l.opts.Proxy != nil)
	l.emitStatus(models.StatusEvent{Kind: models.StatusStarting})

	var st State
	for ctx.Err() == nil {
		var wait time.Duration
		st, wait = l.Tick(ctx, st)
		if !l.sleep(ctx, wait) {
			break
		}
	}

	l.tracker.PrintSummary()
	l.emitStatus(models.StatusEvent{Kind: models.StatusStopped})
	return nil
}

// Tick performs one poll and returns the next state and how long to wait before the next tick.
func (l *Loop) Tick(ctx context.Context, st State) (State, time.Duration) {
	started := time.Now()
	timing := performance.TickTiming{At: l.clock.Now()}

	l.emitStatus(models.StatusEvent{Kind: models.StatusFetching, URL: l.opts.URL})

	raw, err := l.fetcher.Fetch(ctx, l.opts.URL, l.opts.Proxy)
	timing.Fetch = time.Since(started)
	if err != nil && ctx.Err() != nil {
		// cancelled mid-fetch; not a scrape failure
		return st, 0
	}

	var records []models.MatchRecord
	if err == nil {
		extractStarted := time.Now()
		records, err = l.extractor.Extract(raw)
		timing.Extract = time.Since(extractStarted)
		if err != nil {
			err = fmt.Errorf("extract: %w", err)
		}
	}

	if err != nil {
		timing.Total = time.Since(started)
		l.tracker.RecordTick(timing, err)
		return l.fail(st, err)
	}

	st.ConsecutiveErrors = 0
	fp := fingerprint.Of(records)
	now := l.clock.Now()

	timing.Records = len(records)
	timing.Success = true

	if fp == st.LastFingerprint {
		l.emitStatus(models.StatusEvent{Kind: models.StatusNoChange, Time: now})
	} else {
		changes := models.DiffRecords(st.Previous, records)
		st.LastFingerprint = fp
		st.Previous = models.IndexByKey(records)
		timing.Changed = true

		l.emitter.EmitBatch(models.Batch{
			Records:     records,
			Fingerprint: fp,
			FetchedAt:   now,
			Changes:     changes,
		})
		l.emitStatus(models.StatusEvent{Kind: models.StatusSuccess, Time: now})
	}

	timing.Total = time.Since(started)
	l.tracker.RecordTick(timing, nil)
	return st, l.opts.Interval
}

// fail counts a failed tick. Once the count exceeds the threshold the next wait is
// doubled and the count starts over.
func (l *Loop) fail(st State, err error) (State, time.Duration) {
	st.ConsecutiveErrors++
	l.emitStatus(models.StatusEvent{
		Kind:       models.StatusWarning,
		Time:       l.clock.Now(),
		ErrorCount: st.ConsecutiveErrors,
		Message:    err.Error(),
	})

	if st.ConsecutiveErrors <= l.opts.ErrorThreshold {
		return st, l.opts.Interval
	}

	wait := 2 * l.opts.Interval
	st.ConsecutiveErrors = 0
	l.tracker.RecordBackoff()
	l.emitStatus(models.StatusEvent{Kind: models.StatusBackoff, Time: l.clock.Now(), Wait: wait})
	return st, wait
}

// sleep waits d on the loop clock. It returns false if ctx is cancelled first.
func (l *Loop) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-l.clock.After(d):
		return true
	}
}

func (l *Loop) emitStatus(e models.StatusEvent) {
	if e.Time.IsZero() {
		e.Time = l.clock.Now()
	}
	l.emitter.EmitStatus(e)
}
