// Package worker implements the fixed-size pool that drains the Job
// Queue, running the full per-job ingestion pipeline in each worker
// goroutine.
package worker

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/arturkryukov/telegram-ioc-ingestor/internal/archive"
	"github.com/arturkryukov/telegram-ioc-ingestor/internal/backoff"
	"github.com/arturkryukov/telegram-ioc-ingestor/internal/contentstore"
	"github.com/arturkryukov/telegram-ioc-ingestor/internal/externalref"
	"github.com/arturkryukov/telegram-ioc-ingestor/internal/iocscan"
	"github.com/arturkryukov/telegram-ioc-ingestor/internal/metrics"
	"github.com/arturkryukov/telegram-ioc-ingestor/internal/queue"
	"github.com/arturkryukov/telegram-ioc-ingestor/internal/repository"
)

// Downloader streams an artifact's bytes from the upstream platform. The
// Telegram listener is the production implementation; tests substitute an
// in-memory fake.
type Downloader interface {
	Download(ctx context.Context, ref externalref.Ref) (io.ReadCloser, error)
}

// Config bundles everything the pipeline needs beyond the queue and pool
// size.
type Config struct {
	Repository    repository.Repository
	Store         *contentstore.Store
	Downloader    Downloader
	Matchers      *iocscan.Matchers
	ArchiveLimits archive.Limits
	MaxRetries    int
	TempDir       string
	Logger        *slog.Logger
}

// Pool runs a fixed number of worker goroutines, each draining Jobs from
// a shared Queue and running them through the pipeline.
type Pool struct {
	workers    int
	q          *queue.Queue
	repo       repository.Repository
	store      *contentstore.Store
	downloader Downloader
	matchers   *iocscan.Matchers
	archiveLim archive.Limits
	maxRetries int
	tempDir    string
	logger     *slog.Logger
	backoff    backoff.Policy

	wg sync.WaitGroup
}

// NewPool creates a pool of n workers draining q.
func NewPool(n int, q *queue.Queue, cfg Config) *Pool {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	return &Pool{
		workers:    n,
		q:          q,
		repo:       cfg.Repository,
		store:      cfg.Store,
		downloader: cfg.Downloader,
		matchers:   cfg.Matchers,
		archiveLim: cfg.ArchiveLimits,
		maxRetries: cfg.MaxRetries,
		tempDir:    cfg.TempDir,
		logger:     cfg.Logger,
		backoff:    backoff.Default(),
	}
}

// Start launches the worker goroutines. ctx governs cancellation of
// in-flight work; it is distinct from the queue's own lifecycle so the
// Supervisor can cancel downloads without closing the queue first.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.loop(ctx, i)
	}
}

// Wait blocks until every worker goroutine has exited — after the queue
// is closed and drained, or ctx is cancelled.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) loop(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		job, ok := p.q.Dequeue(ctx)
		if !ok {
			p.logger.Info("worker exiting", slog.Int("worker_id", id))
			return
		}
		metrics.QueueDepth.Set(float64(p.q.Len()))

		start := time.Now()
		p.process(ctx, id, job)
		metrics.JobDuration.Observe(time.Since(start).Seconds())
	}
}
