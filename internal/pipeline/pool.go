package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const jobTimeout = 30 * time.Second

// Pool runs thumbnail jobs on a fixed number of workers
type Pool struct {
	queue       *JobQueue
	thumbnailer *Thumbnailer
	workers     int
	logger      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewPool creates a worker pool; call Start to begin processing
func NewPool(thumbnailer *Thumbnailer, workers, queueSize int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		queue:       NewJobQueue(queueSize),
		thumbnailer: thumbnailer,
		workers:     workers,
		logger:      logger.With(zap.String("component", "thumbnails")),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start launches the workers
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
	p.logger.Debug("thumbnail workers started", zap.Int("workers", p.workers))
}

// Enqueue schedules a thumbnail for a book's stored cover
func (p *Pool) Enqueue(bookID, coverType string) error {
	if err := p.queue.Enqueue(Job{BookID: bookID, CoverType: coverType}); err != nil {
		p.logger.Warn("thumbnail job rejected",
			zap.String("book_id", bookID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// Pending returns the number of queued jobs
func (p *Pool) Pending() int {
	return p.queue.Len()
}

// Close stops accepting jobs and waits for queued ones to finish.
// If ctx expires first, in-flight jobs are cancelled.
func (p *Pool) Close(ctx context.Context) error {
	p.once.Do(p.queue.Close)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

func (p *Pool) run(worker int) {
	defer p.wg.Done()

	for {
		job, ok := p.queue.DequeueNext()
		if ok {
			p.process(worker, job)
			continue
		}

		select {
		case _, open := <-p.queue.Ready():
			if !open && p.queue.Len() == 0 {
				return
			}
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Pool) process(worker int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("thumbnail job panicked",
				zap.String("book_id", job.BookID),
				zap.Any("panic", r),
			)
		}
	}()

	if p.ctx.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(p.ctx, jobTimeout)
	defer cancel()

	start := time.Now()
	if err := p.thumbnailer.Generate(ctx, job); err != nil {
		p.logger.Warn("thumbnail generation failed",
			zap.Int("worker", worker),
			zap.String("book_id", job.BookID),
			zap.Error(err),
		)
		return
	}
	p.logger.Debug("thumbnail generated",
		zap.Int("worker", worker),
		zap.String("book_id", job.BookID),
		zap.Duration("elapsed", time.Since(start)),
	)
}
