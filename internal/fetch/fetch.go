// Package fetch implements Quark's fetch worker (spec.md C3): the single
// background consumer that turns predicted paths into resident cache
// entries without ever making a reader wait on prefetch I/O.
package fetch

import (
	"context"
	"os"
	"sync"
	"sync/atomic"

	"github.com/oxtoacart/bpool"
	"golang.org/x/time/rate"

	"github.com/sonroyaalmerol/quark/internal/backing"
	"github.com/sonroyaalmerol/quark/internal/cache"
	"github.com/sonroyaalmerol/quark/internal/qlog"
)

// defaultQueueDepth bounds the pending-request queue. Once full, further
// enqueues are dropped rather than blocking the producer (spec.md §4.3:
// "enqueueing a prediction must never block the calling read path").
const defaultQueueDepth = 256

// Worker is the single-consumer fetch queue. Predictions are pushed by
// quarkfs.logAndPredict; the background goroutine pulls them off in FIFO
// order, reads the whole file from the backing root, and inserts it into
// the shared byte cache.
type Worker struct {
	root    *backing.Root
	cache   *cache.Cache
	limiter *rate.Limiter // nil disables throttling
	log     *qlog.Logger

	queue chan string
	bufs  *bpool.BufferPool

	quit chan struct{}
	wg   sync.WaitGroup

	enqueued  atomic.Int64
	dropped   atomic.Int64
	fetched   atomic.Int64
	skipped   atomic.Int64
}

// Option configures an optional, non-default behavior of a Worker.
type Option func(*Worker)

// WithRateLimit throttles fetches to at most r files per second, bursting
// up to b, grounded on internal/websockets/client.go's rate.NewLimiter
// usage. A nil option (the default) performs no throttling.
func WithRateLimit(r rate.Limit, b int) Option {
	return func(w *Worker) {
		w.limiter = rate.NewLimiter(r, b)
	}
}

// WithQueueDepth overrides the default pending-request queue capacity.
func WithQueueDepth(depth int) Option {
	return func(w *Worker) {
		w.queue = make(chan string, depth)
	}
}

// New constructs a Worker reading through root into c, logging via l.
func New(root *backing.Root, c *cache.Cache, l *qlog.Logger, opts ...Option) *Worker {
	w := &Worker{
		root:  root,
		cache: c,
		log:   l,
		queue: make(chan string, defaultQueueDepth),
		bufs:  bpool.NewBufferPool(defaultQueueDepth),
		quit:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the single background consumer goroutine. Safe to call
// once; ctx cancellation and Stop both terminate the worker.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the consumer to exit and waits for it to drain its current
// item, if any, before returning.
func (w *Worker) Stop() {
	close(w.quit)
	w.wg.Wait()
}

// Enqueue requests that path be prefetched into the cache. It never
// blocks: if the queue is full, the request is dropped and logged,
// matching the non-blocking-enqueue requirement of spec.md §4.3, grounded
// on internal/backend/arpc/fs.go's trackAccess select/default pattern.
func (w *Worker) Enqueue(path string) {
	select {
	case w.queue <- path:
		w.enqueued.Add(1)
	default:
		w.dropped.Add(1)
		if w.log != nil {
			w.log.Warn().WithField("path", path).WithMessage("fetch queue full, dropping prediction").Write()
		}
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-w.quit:
			return
		case <-ctx.Done():
			return
		case path := <-w.queue:
			w.fetch(ctx, path)
		}
	}
}

func (w *Worker) fetch(ctx context.Context, path string) {
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return
		}
	}

	if w.cache.Contains(path) {
		return
	}

	info, err := w.root.Stat(path)
	if err != nil {
		w.skipped.Add(1)
		if w.log != nil && !os.IsNotExist(err) {
			w.log.Error(err).WithField("path", path).WithMessage("fetch stat failed").Write()
		}
		return
	}
	if info.IsDir() {
		w.skipped.Add(1)
		return
	}
	if info.Size() > w.cache.Budget() {
		w.skipped.Add(1)
		if w.log != nil {
			w.log.Warn().WithField("path", path).WithField("size", info.Size()).
				WithMessage("file exceeds cache budget, skipping prefetch").Write()
		}
		return
	}

	buf := w.bufs.Get()
	defer w.bufs.Put(buf)

	f, err := w.root.Open(path)
	if err != nil {
		w.skipped.Add(1)
		return
	}
	_, err = buf.ReadFrom(f)
	f.Close()
	if err != nil {
		w.skipped.Add(1)
		if w.log != nil {
			w.log.Error(err).WithField("path", path).WithMessage("fetch read failed").Write()
		}
		return
	}

	if int64(buf.Len()) != info.Size() {
		w.skipped.Add(1)
		if w.log != nil {
			w.log.Warn().WithField("path", path).WithField("stat_size", info.Size()).
				WithField("read_size", buf.Len()).
				WithMessage("file changed during fetch, discarding").Write()
		}
		return
	}

	data := make([]byte, buf.Len())
	copy(data, buf.Bytes())

	if w.cache.Insert(path, data) {
		w.fetched.Add(1)
	}
}

// Stats reports lifetime counters for diagnostics and tests.
func (w *Worker) Stats() (enqueued, dropped, fetched, skipped int64) {
	return w.enqueued.Load(), w.dropped.Load(), w.fetched.Load(), w.skipped.Load()
}
