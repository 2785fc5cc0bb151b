package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vodeneev/livewatch/internal/pkg/config"
	"github.com/Vodeneev/livewatch/internal/pkg/models"
	"github.com/Vodeneev/livewatch/internal/pkg/performance"
	"github.com/Vodeneev/livewatch/internal/watcher/extractor"
)

const interval = 60 * time.Second

type stubFetcher struct {
	mu    sync.Mutex
	pages []string
	errs  []error
	calls int
	panic bool
}

func (f *stubFetcher) Fetch(_ context.Context, _ string, _ *config.ProxyConfig) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panic {
		panic("selector engine exploded")
	}
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if len(f.pages) == 0 {
		return "", errors.New("no page")
	}
	if i >= len(f.pages) {
		return f.pages[len(f.pages)-1], nil
	}
	return f.pages[i], nil
}

type failingExtractor struct{}

func (failingExtractor) Extract(string) ([]models.MatchRecord, error) {
	return nil, errors.New("reader failed")
}

type recorder struct {
	mu       sync.Mutex
	batches  []models.Batch
	statuses []models.StatusEvent
}

func (r *recorder) EmitBatch(b models.Batch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, b)
}

func (r *recorder) EmitStatus(e models.StatusEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, e)
}

func (r *recorder) kinds() []models.StatusKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.StatusKind, 0, len(r.statuses))
	for _, s := range r.statuses {
		out = append(out, s.Kind)
	}
	return out
}

// fakeClock fires every wait immediately and cancels the loop after maxWaits waits.
type fakeClock struct {
	mu       sync.Mutex
	now      time.Time
	waits    []time.Duration
	maxWaits int
	cancel   context.CancelFunc
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waits = append(c.waits, d)
	c.now = c.now.Add(d)
	if c.maxWaits > 0 && len(c.waits) >= c.maxWaits && c.cancel != nil {
		c.cancel()
	}
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func page(homeScore string) string {
	return `<article><h2>Premier League</h2><div class="event">
		<div class="btmarket__link-name--2-rows"><span>Arsenal</span><span>Chelsea</span></div>
		<span class="btmarket__livescore-item">` + homeScore + `</span>
		<span class="btmarket__livescore-item">0</span>
		<div class="btmarket__selection"><button data-name="Arsenal"><span class="betbutton__odds">2.10</span></button></div>
		<div class="btmarket__selection"><button data-name="Draw"><span class="betbutton__odds">3.40</span></button></div>
		<div class="btmarket__selection"><button data-name="Chelsea"><span class="betbutton__odds">3.20</span></button></div>
	</div></article>`
}

func newLoop(f Fetcher, x Extractor, r *recorder, clock *fakeClock, tracker *performance.Tracker) *Loop {
	return New(Options{URL: "https://example.test/in-play", Interval: interval, ErrorThreshold: 3},
		f, x, r, WithClock(clock), WithTracker(tracker))
}

func TestTick_EmitsOnChangeOnly(t *testing.T) {
	f := &stubFetcher{pages: []string{page("1"), page("1"), page("2")}}
	r := &recorder{}
	tracker := performance.NewTracker()
	l := newLoop(f, extractor.New(), r, &fakeClock{}, tracker)

	st, wait := l.Tick(context.Background(), State{})
	assert.Equal(t, interval, wait)
	require.Len(t, r.batches, 1)
	first := r.batches[0]
	require.Len(t, first.Records, 1)
	assert.Equal(t, "2.10", first.Records[0].OddsHome)
	assert.Equal(t, first.Fingerprint, st.LastFingerprint)
	assert.True(t, first.Changes[models.NewMatchKey("Arsenal", "Chelsea")].New)

	st, wait = l.Tick(context.Background(), st)
	assert.Equal(t, interval, wait)
	assert.Len(t, r.batches, 1, "identical markup must not emit")

	st, _ = l.Tick(context.Background(), st)
	require.Len(t, r.batches, 2)
	delta := r.batches[1].Changes[models.NewMatchKey("Arsenal", "Chelsea")]
	assert.False(t, delta.New)
	assert.Equal(t, []string{models.FieldHomeScore}, delta.Fields)
	assert.Equal(t, "2", st.Previous[models.NewMatchKey("Arsenal", "Chelsea")].HomeScore)

	assert.Equal(t, []models.StatusKind{
		models.StatusFetching, models.StatusSuccess,
		models.StatusFetching, models.StatusNoChange,
		models.StatusFetching, models.StatusSuccess,
	}, r.kinds())

	m := tracker.GetMetrics()
	assert.Equal(t, 3, m.Overall.TotalTicks)
	assert.Equal(t, 2, m.Overall.EmittedBatches)
	assert.Equal(t, 1, m.Overall.UnchangedTicks)
}

func TestTick_BackoffAfterThreshold(t *testing.T) {
	fail := errors.New("connection refused")
	f := &stubFetcher{errs: []error{fail, fail, fail, fail, fail}}
	r := &recorder{}
	tracker := performance.NewTracker()
	l := newLoop(f, extractor.New(), r, &fakeClock{}, tracker)

	var st State
	var wait time.Duration
	wantCounts := []int{1, 2, 3, 0, 1}
	wantWaits := []time.Duration{interval, interval, interval, 2 * interval, interval}
	for i := range wantCounts {
		st, wait = l.Tick(context.Background(), st)
		assert.Equal(t, wantCounts[i], st.ConsecutiveErrors, "tick %d", i+1)
		assert.Equal(t, wantWaits[i], wait, "tick %d", i+1)
	}

	assert.Empty(t, r.batches)
	var warnings, backoffs int
	for _, s := range r.statuses {
		switch s.Kind {
		case models.StatusWarning:
			warnings++
			assert.Contains(t, s.Message, "connection refused")
		case models.StatusBackoff:
			backoffs++
			assert.Equal(t, 2*interval, s.Wait)
		}
	}
	assert.Equal(t, 5, warnings)
	assert.Equal(t, 1, backoffs)
	assert.Equal(t, 1, tracker.GetMetrics().Overall.Backoffs)
}

func TestTick_SuccessResetsErrorCount(t *testing.T) {
	fail := errors.New("timeout")
	f := &stubFetcher{errs: []error{fail, fail, nil}, pages: []string{page("0")}}
	r := &recorder{}
	l := newLoop(f, extractor.New(), r, &fakeClock{}, performance.NewTracker())

	var st State
	st, _ = l.Tick(context.Background(), st)
	st, _ = l.Tick(context.Background(), st)
	assert.Equal(t, 2, st.ConsecutiveErrors)
	st, _ = l.Tick(context.Background(), st)
	assert.Equal(t, 0, st.ConsecutiveErrors)
	assert.Len(t, r.batches, 1)
}

func TestTick_ExtractorErrorCountsAsFailure(t *testing.T) {
	f := &stubFetcher{pages: []string{"<html></html>"}}
	r := &recorder{}
	l := newLoop(f, failingExtractor{}, r, &fakeClock{}, performance.NewTracker())

	st, wait := l.Tick(context.Background(), State{LastFingerprint: "keep"})
	assert.Equal(t, 1, st.ConsecutiveErrors)
	assert.Equal(t, "keep", st.LastFingerprint)
	assert.Equal(t, interval, wait)
	assert.Equal(t, []models.StatusKind{models.StatusFetching, models.StatusWarning}, r.kinds())
}

func TestTick_EmptyPageIsAChangeFromNothing(t *testing.T) {
	f := &stubFetcher{pages: []string{"<html><body></body></html>"}}
	r := &recorder{}
	l := newLoop(f, extractor.New(), r, &fakeClock{}, performance.NewTracker())

	st, _ := l.Tick(context.Background(), State{})
	require.Len(t, r.batches, 1)
	assert.Empty(t, r.batches[0].Records)

	l.Tick(context.Background(), st)
	assert.Len(t, r.batches, 1)
}

func TestRun_WaitsAndStopsOnCancel(t *testing.T) {
	fail := errors.New("refused")
	f := &stubFetcher{errs: []error{fail, fail, fail, fail, fail}}
	r := &recorder{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock := &fakeClock{maxWaits: 5, cancel: cancel}
	l := newLoop(f, extractor.New(), r, clock, performance.NewTracker())

	require.NoError(t, l.Run(ctx))

	assert.Equal(t, []time.Duration{interval, interval, interval, 2 * interval, interval}, clock.waits)
	kinds := r.kinds()
	require.NotEmpty(t, kinds)
	assert.Equal(t, models.StatusStarting, kinds[0])
	assert.Equal(t, models.StatusStopped, kinds[len(kinds)-1])
	assert.Equal(t, 5, f.calls)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	f := &stubFetcher{pages: []string{page("0")}}
	r := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := newLoop(f, extractor.New(), r, &fakeClock{}, performance.NewTracker())
	require.NoError(t, l.Run(ctx))
	assert.Equal(t, []models.StatusKind{models.StatusStarting, models.StatusStopped}, r.kinds())
	assert.Zero(t, f.calls)
}

func TestRun_PanicIsFatal(t *testing.T) {
	f := &stubFetcher{panic: true}
	r := &recorder{}
	l := newLoop(f, extractor.New(), r, &fakeClock{}, performance.NewTracker())

	err := l.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "selector engine exploded")

	kinds := r.kinds()
	assert.Equal(t, models.StatusFatal, kinds[len(kinds)-1])
	assert.Equal(t, "selector engine exploded", r.statuses[len(r.statuses)-1].Message)
}

type cancellingFetcher struct {
	cancel context.CancelFunc
}

func (f cancellingFetcher) Fetch(ctx context.Context, _ string, _ *config.ProxyConfig) (string, error) {
	f.cancel()
	<-ctx.Done()
	return "", ctx.Err()
}

func TestTick_CancelledMidFetchIsNotAFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &recorder{}
	tracker := performance.NewTracker()
	l := newLoop(cancellingFetcher{cancel: cancel}, extractor.New(), r, &fakeClock{}, tracker)

	before := State{LastFingerprint: "keep", ConsecutiveErrors: 2}
	st, wait := l.Tick(ctx, before)

	assert.Equal(t, before, st)
	assert.Zero(t, wait)
	assert.Empty(t, r.batches)
	assert.Equal(t, []models.StatusKind{models.StatusFetching}, r.kinds())
	assert.Zero(t, tracker.GetMetrics().Overall.FailedTicks)
}
