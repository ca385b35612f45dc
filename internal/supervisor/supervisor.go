// Package supervisor wires every component together and drives the
// process's boot and graceful-shutdown sequence, mirroring the order
// Database → Repository → Content Store → Queue → Worker Pool →
// Listener → metrics/health HTTP surface.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arturkryukov/telegram-ioc-ingestor/internal/archive"
	"github.com/arturkryukov/telegram-ioc-ingestor/internal/config"
	"github.com/arturkryukov/telegram-ioc-ingestor/internal/contentstore"
	"github.com/arturkryukov/telegram-ioc-ingestor/internal/database"
	"github.com/arturkryukov/telegram-ioc-ingestor/internal/iocscan"
	"github.com/arturkryukov/telegram-ioc-ingestor/internal/listener"
	"github.com/arturkryukov/telegram-ioc-ingestor/internal/metricsapi"
	"github.com/arturkryukov/telegram-ioc-ingestor/internal/queue"
	"github.com/arturkryukov/telegram-ioc-ingestor/internal/repository"
	"github.com/arturkryukov/telegram-ioc-ingestor/internal/worker"
)

// drainGrace is how long shutdown waits for in-flight jobs to finish
// after the listener stops producing and the queue is closed.
const drainGrace = 30 * time.Second

// channelListener is the subset of *listener.Listener that Run needs.
// Factoring it out as an interface lets tests substitute a fake that
// never touches the real Telegram MTProto connection.
type channelListener interface {
	Run(ctx context.Context) error
}

// Supervisor owns the lifetime of every long-running component.
type Supervisor struct {
	cfg     *config.Config
	logger  *slog.Logger
	pool    *pgxpool.Pool
	q       *queue.Queue
	workers *worker.Pool
	ln      channelListener
	metrics *metricsapi.Server
}

// newSupervisor assembles a Supervisor from already-constructed
// collaborators. Boot is the production path that builds those
// collaborators from cfg; tests call newSupervisor directly with
// in-memory/fake collaborators to exercise Run's lifecycle without a
// database or a real Telegram session.
func newSupervisor(cfg *config.Config, logger *slog.Logger, pool *pgxpool.Pool, q *queue.Queue, workers *worker.Pool, ln channelListener, metricsSrv *metricsapi.Server) *Supervisor {
	return &Supervisor{
		cfg:     cfg,
		logger:  logger,
		pool:    pool,
		q:       q,
		workers: workers,
		ln:      ln,
		metrics: metricsSrv,
	}
}

// Boot connects to the database, runs migrations, and wires every
// component in dependency order. It does not start the Listener or
// worker pool yet — call Run for that.
func Boot(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Supervisor, error) {
	if err := database.Migrate(cfg.DatabaseURL, logger); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	repo := repository.NewPostgres(pool)

	store, err := contentstore.New(cfg.StoragePath)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init content store: %w", err)
	}

	q := queue.New(cfg.QueueCapacity)

	ln := listener.New(listener.Config{
		Phone:                cfg.TelegramPhone,
		APIID:                cfg.TelegramAPIID,
		APIHash:              cfg.TelegramAPIHash,
		Channels:             cfg.TelegramChannels,
		SessionPath:          cfg.StoragePath,
		MaxDocumentSizeBytes: cfg.MaxDocumentSizeBytes,
	}, q, logger)

	matchers := iocscan.NewMatchers(cfg.IOCDomains, cfg.IOCEmails, cfg.IOCIPv4CIDRs)

	workers := worker.NewPool(cfg.WorkerCount, q, worker.Config{
		Repository: repo,
		Store:      store,
		Downloader: ln,
		Matchers:   matchers,
		ArchiveLimits: archive.Limits{
			MaxDecompressedBytes: cfg.MaxDecompressedBytes,
			MaxRatio:             cfg.MaxDecompressionRatio,
			MaxMembers:           cfg.MaxArchiveMembers,
		},
		MaxRetries: cfg.DownloadMaxRetries,
		TempDir:    cfg.StoragePath,
		Logger:     logger,
	})

	metricsSrv := metricsapi.New(cfg.MetricsAddr, pool)

	return newSupervisor(cfg, logger, pool, q, workers, ln, metricsSrv), nil
}

// Run starts every component and blocks until ctx is cancelled (normally
// by a SIGINT/SIGTERM handler upstream), then runs the graceful shutdown
// sequence: stop the listener, drain the queue with a grace window,
// cancel any still-in-flight work, close the repository/database.
func (s *Supervisor) Run(ctx context.Context) error {
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	s.workers.Start(workerCtx)
	s.logger.Info("worker_pool_started", slog.Int("workers", s.cfg.WorkerCount))

	go func() {
		if err := s.metrics.Serve(); err != nil {
			s.logger.Error("metrics_server_failed", slog.String("error", err.Error()))
		}
	}()
	s.logger.Info("metrics_server_started", slog.String("addr", s.cfg.MetricsAddr))

	listenerErrCh := make(chan error, 1)
	go func() {
		listenerErrCh <- s.ln.Run(ctx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case err := <-listenerErrCh:
		runErr = err
		s.logger.Error("listener_exited", slog.String("error", errString(err)))
	}

	s.logger.Info("shutdown_started")

	s.q.Close()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), drainGrace)
	defer drainCancel()

	drained := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		s.logger.Info("worker_pool_drained")
	case <-drainCtx.Done():
		s.logger.Warn("worker_pool_drain_timeout_forcing_cancel")
		cancelWorkers()
		<-drained
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := s.metrics.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("metrics_shutdown_failed", slog.String("error", err.Error()))
	}

	if s.pool != nil {
		s.pool.Close()
	}
	s.logger.Info("shutdown_complete")

	return runErr
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
