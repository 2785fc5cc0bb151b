package performance

import (
	"log/slog"
	"sync"
	"time"
)

// Tracker tracks poll loop metrics
type Tracker struct {
	mu sync.RWMutex

	startedAt time.Time

	// Tick counters
	TotalTicks      int
	SuccessTicks    int
	FailedTicks     int
	EmittedBatches  int
	UnchangedTicks  int
	Backoffs        int
	ProxyFallbacks  int
	DroppedMessages int

	// Timing
	TotalDuration   time.Duration
	FetchDuration   time.Duration
	ExtractDuration time.Duration

	LastRecords  int
	LastTickAt   time.Time
	LastError    string
	LastErrorAt  time.Time
	LastChangeAt time.Time

	// Sliding window of recent ticks
	recent []TickTiming
}

// TickTiming tracks timing for a single tick
type TickTiming struct {
	At      time.Time
	Fetch   time.Duration
	Extract time.Duration
	Total   time.Duration
	Records int
	Changed bool
	Success bool
}

const recentTicksLimit = 50

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		startedAt: time.Now(),
		recent:    make([]TickTiming, 0, recentTicksLimit),
	}
}

// Reset resets all metrics
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.startedAt = time.Now()
	t.TotalTicks = 0
	t.SuccessTicks = 0
	t.FailedTicks = 0
	t.EmittedBatches = 0
	t.UnchangedTicks = 0
	t.Backoffs = 0
	t.ProxyFallbacks = 0
	t.DroppedMessages = 0
	t.TotalDuration = 0
	t.FetchDuration = 0
	t.ExtractDuration = 0
	t.LastRecords = 0
	t.LastTickAt = time.Time{}
	t.LastError = ""
	t.LastErrorAt = time.Time{}
	t.LastChangeAt = time.Time{}
	t.recent = t.recent[:0]
}

// RecordTick records a completed tick.
func (t *Tracker) RecordTick(tick TickTiming, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.TotalTicks++
	t.TotalDuration += tick.Total
	t.FetchDuration += tick.Fetch
	t.ExtractDuration += tick.Extract
	t.LastTickAt = tick.At

	if err != nil {
		t.FailedTicks++
		t.LastError = err.Error()
		t.LastErrorAt = tick.At
	} else {
		t.SuccessTicks++
		t.LastRecords = tick.Records
		if tick.Changed {
			t.EmittedBatches++
			t.LastChangeAt = tick.At
		} else {
			t.UnchangedTicks++
		}
	}

	if len(t.recent) == recentTicksLimit {
		copy(t.recent, t.recent[1:])
		t.recent = t.recent[:recentTicksLimit-1]
	}
	t.recent = append(t.recent, tick)
}

// RecordBackoff counts an extended wait after repeated failures.
func (t *Tracker) RecordBackoff() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Backoffs++
}

// RecordProxyFallback counts a direct retry after a failed proxy attempt.
func (t *Tracker) RecordProxyFallback() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ProxyFallbacks++
}

// RecordDropped counts sink messages dropped because a queue was full.
func (t *Tracker) RecordDropped() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.DroppedMessages++
}

// PrintSummary logs a performance summary
func (t *Tracker) PrintSummary() {
	m := t.GetMetrics()
	if m.Overall.TotalTicks == 0 {
		slog.Info("No performance data collected yet")
		return
	}

	slog.Info("Poll loop summary",
		"uptime", m.Overall.Uptime,
		"total_ticks", m.Overall.TotalTicks,
		"success_ticks", m.Overall.SuccessTicks,
		"failed_ticks", m.Overall.FailedTicks,
		"emitted_batches", m.Overall.EmittedBatches,
		"unchanged_ticks", m.Overall.UnchangedTicks,
		"backoffs", m.Overall.Backoffs,
		"proxy_fallbacks", m.Overall.ProxyFallbacks,
		"dropped_messages", m.Overall.DroppedMessages)

	slog.Info("Timing breakdown (average per tick)",
		"fetch", m.Timing.AvgFetch, "fetch_percent", m.Timing.FetchPercent,
		"extract", m.Timing.AvgExtract, "extract_percent", m.Timing.ExtractPercent,
		"total", m.Timing.AvgTotal)
}

// MetricsResponse represents the JSON response structure for /metrics endpoint
type MetricsResponse struct {
	Overall struct {
		Uptime          string `json:"uptime"`
		TotalTicks      int    `json:"total_ticks"`
		SuccessTicks    int    `json:"success_ticks"`
		FailedTicks     int    `json:"failed_ticks"`
		EmittedBatches  int    `json:"emitted_batches"`
		UnchangedTicks  int    `json:"unchanged_ticks"`
		Backoffs        int    `json:"backoffs"`
		ProxyFallbacks  int    `json:"proxy_fallbacks"`
		DroppedMessages int    `json:"dropped_messages"`
	} `json:"overall"`

	Timing struct {
		AvgTotal       string  `json:"avg_total"`
		AvgFetch       string  `json:"avg_fetch"`
		AvgExtract     string  `json:"avg_extract"`
		FetchPercent   float64 `json:"fetch_percent"`
		ExtractPercent float64 `json:"extract_percent"`
	} `json:"timing"`

	Last struct {
		Records  int       `json:"records"`
		TickAt   time.Time `json:"tick_at"`
		ChangeAt time.Time `json:"change_at"`
		Error    string    `json:"error,omitempty"`
		ErrorAt  time.Time `json:"error_at"`
	} `json:"last"`

	Recent []struct {
		At      time.Time `json:"at"`
		Total   string    `json:"total"`
		Records int       `json:"records"`
		Changed bool      `json:"changed"`
		Success bool      `json:"success"`
	} `json:"recent"`
}

// GetMetrics returns structured metrics for JSON API
func (t *Tracker) GetMetrics() MetricsResponse {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var resp MetricsResponse

	resp.Overall.Uptime = time.Since(t.startedAt).Round(time.Second).String()
	resp.Overall.TotalTicks = t.TotalTicks
	resp.Overall.SuccessTicks = t.SuccessTicks
	resp.Overall.FailedTicks = t.FailedTicks
	resp.Overall.EmittedBatches = t.EmittedBatches
	resp.Overall.UnchangedTicks = t.UnchangedTicks
	resp.Overall.Backoffs = t.Backoffs
	resp.Overall.ProxyFallbacks = t.ProxyFallbacks
	resp.Overall.DroppedMessages = t.DroppedMessages

	if t.TotalTicks > 0 {
		n := time.Duration(t.TotalTicks)
		resp.Timing.AvgTotal = (t.TotalDuration / n).String()
		resp.Timing.AvgFetch = (t.FetchDuration / n).String()
		resp.Timing.AvgExtract = (t.ExtractDuration / n).String()
		if t.TotalDuration > 0 {
			resp.Timing.FetchPercent = float64(t.FetchDuration) / float64(t.TotalDuration) * 100
			resp.Timing.ExtractPercent = float64(t.ExtractDuration) / float64(t.TotalDuration) * 100
		}
	}

	resp.Last.Records = t.LastRecords
	resp.Last.TickAt = t.LastTickAt
	resp.Last.ChangeAt = t.LastChangeAt
	resp.Last.Error = t.LastError
	resp.Last.ErrorAt = t.LastErrorAt

	for _, tick := range t.recent {
		resp.Recent = append(resp.Recent, struct {
			At      time.Time `json:"at"`
			Total   string    `json:"total"`
			Records int       `json:"records"`
			Changed bool      `json:"changed"`
			Success bool      `json:"success"`
		}{
			At:      tick.At,
			Total:   tick.Total.String(),
			Records: tick.Records,
			Changed: tick.Changed,
			Success: tick.Success,
		})
	}

	return resp
}
