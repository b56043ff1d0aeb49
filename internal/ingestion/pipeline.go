// Package ingestion implements the Post Ingestion Pipeline (spec.md §4.6):
// a single long-running consumer draining a bounded, multi-producer queue
// of newly discovered posts into the catalog in batches.
package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maukemana/library-indexer/internal/catalog"
)

// Pipeline is the single-consumer, multi-producer post ingestion queue.
type Pipeline struct {
	store     *catalog.Store
	postRepo  *catalog.PostRepository
	queue     chan catalog.Post
	batchSize int

	pending int64

	flushMu   sync.Mutex
	flushCond *sync.Cond

	wg       sync.WaitGroup
	cancel   context.CancelFunc
	fatalErr atomic.Value // stores error
}

// New constructs a pipeline with the given channel capacity (≥10) and batch
// size (≥1), and starts its single consumer goroutine.
func New(store *catalog.Store, capacity, batchSize int) *Pipeline {
	if capacity < 10 {
		capacity = 10
	}
	if batchSize < 1 {
		batchSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &Pipeline{
		store:     store,
		postRepo:  catalog.NewPostRepository(store),
		queue:     make(chan catalog.Post, capacity),
		batchSize: batchSize,
		cancel:    cancel,
	}
	p.flushCond = sync.NewCond(&p.flushMu)

	p.wg.Add(1)
	go p.consume(ctx)

	return p
}

// Enqueue adds a fully constructed post record to the queue, blocking if the
// buffer is full (backpressure on scanners). It returns immediately with an
// error if the pipeline has failed catastrophically.
func (p *Pipeline) Enqueue(ctx context.Context, post catalog.Post) error {
	if err := p.FatalError(); err != nil {
		return err
	}
	atomic.AddInt64(&p.pending, 1)
	select {
	case p.queue <- post:
		return nil
	case <-ctx.Done():
		atomic.AddInt64(&p.pending, -1)
		return ctx.Err()
	}
}

// FatalError returns the error that stopped the consumer, if any.
func (p *Pipeline) FatalError() error {
	if v := p.fatalErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// Flush blocks until every enqueued post has been persisted (pending
// reaches zero), or returns the pipeline's fatal error if the consumer has
// died.
func (p *Pipeline) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.flushMu.Lock()
		for atomic.LoadInt64(&p.pending) != 0 && p.FatalError() == nil {
			p.flushCond.Wait()
		}
		p.flushMu.Unlock()
		close(done)
	}()
	select {
	case <-done:
		return p.FatalError()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close marks the queue closed; the consumer drains remaining items, then
// exits. Pending items already enqueued are not lost.
func (p *Pipeline) Close() {
	close(p.queue)
	p.wg.Wait()
	p.cancel()
}

func (p *Pipeline) consume(ctx context.Context) {
	defer p.wg.Done()

	batch := make([]catalog.Post, 0, p.batchSize)

	flushBatch := func() {
		if len(batch) == 0 {
			return
		}
		n := len(batch)
		if err := p.saveBatchWithRetry(ctx, batch); err != nil {
			slog.Error("ingestion: dropping batch after retry failure", "size", n, "error", err)
		}
		atomic.AddInt64(&p.pending, -int64(n))
		p.flushMu.Lock()
		p.flushCond.Broadcast()
		p.flushMu.Unlock()
		batch = batch[:0]
	}

drain:
	for {
		select {
		case post, ok := <-p.queue:
			if !ok {
				flushBatch()
				break drain
			}
			batch = append(batch, post)
			if len(batch) >= p.batchSize {
				flushBatch()
				continue
			}
			// Drain whatever else is immediately available up to batchSize.
			for len(batch) < p.batchSize {
				select {
				case next, ok := <-p.queue:
					if !ok {
						flushBatch()
						break drain
					}
					batch = append(batch, next)
				default:
					flushBatch()
					continue drain
				}
			}
			flushBatch()
		}
	}
}

// saveBatchWithRetry saves a batch in a single scoped session; on failure it
// sleeps 500ms and retries exactly once, then gives up and logs.
func (p *Pipeline) saveBatchWithRetry(ctx context.Context, batch []catalog.Post) error {
	posts := make([]catalog.Post, len(batch))
	copy(posts, batch)

	err := p.store.WithSession(ctx, func(sess catalog.Session) error {
		return p.postRepo.BatchInsert(ctx, sess, posts)
	})
	if err == nil {
		return nil
	}

	slog.Warn("ingestion: batch save failed, retrying once", "size", len(posts), "error", err)
	time.Sleep(500 * time.Millisecond)

	err = p.store.WithSession(ctx, func(sess catalog.Session) error {
		return p.postRepo.BatchInsert(ctx, sess, posts)
	})
	if err != nil {
		return fmt.Errorf("batch save failed twice: %w", err)
	}
	return nil
}
