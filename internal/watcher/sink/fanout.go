package sink

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Vodeneev/livewatch/internal/pkg/models"
)

const (
	defaultQueueSize      = 100
	defaultPublishTimeout = 10 * time.Second
)

type message struct {
	batch  *models.Batch
	status *models.StatusEvent
}

type worker struct {
	sink  Sink
	queue chan message
	wake  chan struct{}

	// pending holds the newest batch that did not fit in the queue. It is delivered
	// once the queue drains and is superseded by any later batch.
	mu      sync.Mutex
	pending *models.Batch
}

// Fanout hands every emitted message to each sink through its own queue and goroutine.
type Fanout struct {
	workers        []*worker
	publishTimeout time.Duration
	onDrop         func(sinkName string)

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// FanoutOption configures a Fanout.
type FanoutOption func(*fanoutOptions)

type fanoutOptions struct {
	queueSize      int
	publishTimeout time.Duration
	onDrop         func(string)
}

// WithQueueSize sets the per-sink queue capacity.
func WithQueueSize(n int) FanoutOption {
	return func(o *fanoutOptions) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// WithPublishTimeout bounds a single sink call.
func WithPublishTimeout(d time.Duration) FanoutOption {
	return func(o *fanoutOptions) {
		if d > 0 {
			o.publishTimeout = d
		}
	}
}

// WithDropHook is called for every message dropped on a full queue.
func WithDropHook(fn func(sinkName string)) FanoutOption {
	return func(o *fanoutOptions) { o.onDrop = fn }
}

// NewFanout starts one worker per sink.
func NewFanout(sinks []Sink, opts ...FanoutOption) *Fanout {
	o := fanoutOptions{queueSize: defaultQueueSize, publishTimeout: defaultPublishTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	f := &Fanout{publishTimeout: o.publishTimeout, onDrop: o.onDrop}
	for _, s := range sinks {
		w := &worker{sink: s, queue: make(chan message, o.queueSize), wake: make(chan struct{}, 1)}
		f.workers = append(f.workers, w)
		f.wg.Add(1)
		go f.run(w)
	}
	return f
}

// EmitBatch enqueues a batch for every sink.
func (f *Fanout) EmitBatch(batch models.Batch) {
	f.enqueue(message{batch: &batch})
}

// EmitStatus enqueues a status event for every sink.
func (f *Fanout) EmitStatus(event models.StatusEvent) {
	f.enqueue(message{status: &event})
}

func (f *Fanout) enqueue(m message) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}

	for _, w := range f.workers {
		if m.batch != nil {
			f.enqueueBatch(w, m)
			continue
		}
		select {
		case w.queue <- m:
		default:
			f.dropped(w, "status")
		}
	}
}

// enqueueBatch never drops the newest batch: on a full queue it replaces the pending one.
func (f *Fanout) enqueueBatch(w *worker, m message) {
	w.mu.Lock()
	defer w.mu.Unlock()

	select {
	case w.queue <- m:
		if w.pending != nil {
			w.pending = nil
			f.dropped(w, "batch")
		}
	default:
		if w.pending != nil {
			f.dropped(w, "batch")
		}
		w.pending = m.batch
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
}

func (f *Fanout) dropped(w *worker, kind string) {
	slog.Warn("Sink queue full, dropping message", "sink", w.sink.Name(), "kind", kind)
	if f.onDrop != nil {
		f.onDrop(w.sink.Name())
	}
}

// Close stops accepting messages, delivers what is queued and waits for the workers.
func (f *Fanout) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	for _, w := range f.workers {
		close(w.queue)
	}
	f.mu.Unlock()

	f.wg.Wait()
}

func (f *Fanout) run(w *worker) {
	defer f.wg.Done()
	for {
		select {
		case m, ok := <-w.queue:
			if !ok {
				f.flushPending(w)
				return
			}
			f.publish(w, m)
			if len(w.queue) == 0 {
				f.flushPending(w)
			}
		case <-w.wake:
			if len(w.queue) == 0 {
				f.flushPending(w)
			}
		}
	}
}

func (f *Fanout) flushPending(w *worker) {
	w.mu.Lock()
	b := w.pending
	w.pending = nil
	w.mu.Unlock()

	if b != nil {
		f.publish(w, message{batch: b})
	}
}

func (f *Fanout) publish(w *worker, m message) {
	if err := f.deliver(w.sink, m); err != nil {
		slog.Warn("Sink publish failed", "sink", w.sink.Name(), "error", err)
	}
}

func (f *Fanout) deliver(s Sink, m message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), f.publishTimeout)
	defer cancel()

	if m.batch != nil {
		return s.PublishBatch(ctx, *m.batch)
	}
	return s.PublishStatus(ctx, *m.status)
}
