package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/arturkryukov/telegram-ioc-ingestor/internal/archive"
	"github.com/arturkryukov/telegram-ioc-ingestor/internal/externalref"
	"github.com/arturkryukov/telegram-ioc-ingestor/internal/ingesterr"
	"github.com/arturkryukov/telegram-ioc-ingestor/internal/iocscan"
	"github.com/arturkryukov/telegram-ioc-ingestor/internal/metrics"
	"github.com/arturkryukov/telegram-ioc-ingestor/internal/queue"
	"github.com/arturkryukov/telegram-ioc-ingestor/internal/repository"
)

// process runs one job end to end: dedup check, download-with-retry,
// content-addressed store, archive extraction, IOC scan, persistence.
// Every exit path is covered: either the job reaches JobCompleted, or it
// is marked JobFailed with an error classification — process never
// returns without settling the job's terminal status, except when the
// pre-download dedup check short-circuits it entirely.
func (p *Pool) process(ctx context.Context, workerID int, job queue.Job) {
	log := p.logger.With(
		slog.Int("worker_id", workerID),
		slog.String("telegram_file_id", job.Ref.Token()),
		slog.String("filename", job.Filename),
	)

	alreadyProcessed, err := p.repo.IsProcessed(ctx, job.Ref.Token())
	if err != nil {
		log.Error("dedup check failed", slog.String("error", err.Error()))
		metrics.JobFailuresTotal.WithLabelValues(ingesterr.Class(err)).Inc()
		return
	}
	if alreadyProcessed {
		log.Info("skipped_duplicate_pre")
		metrics.DuplicatesSkippedTotal.WithLabelValues("pre_download").Inc()
		return
	}

	jobID, err := p.repo.BeginJob(ctx, job.Ref.Token())
	if err != nil {
		log.Error("begin_job failed", slog.String("error", err.Error()))
		metrics.JobFailuresTotal.WithLabelValues(ingesterr.Class(err)).Inc()
		return
	}
	log = log.With(slog.String("job_id", jobID))

	if err := p.runJob(ctx, log, jobID, job); err != nil {
		errMsg := err.Error()
		class := ingesterr.Class(err)
		log.Error("job_failed", slog.String("error", errMsg), slog.String("error_class", class))
		metrics.JobsTotal.WithLabelValues(string(repository.JobFailed)).Inc()
		metrics.JobFailuresTotal.WithLabelValues(class).Inc()
		if markErr := p.repo.MarkJob(ctx, jobID, repository.JobFailed, &errMsg, nil); markErr != nil {
			log.Error("mark_job failed after job_failed", slog.String("error", markErr.Error()))
		}
		return
	}

	metrics.JobsTotal.WithLabelValues(string(repository.JobCompleted)).Inc()
	log.Info("job_completed")
}

// runJob is the happy-path body of process, factored out so every failure
// can be classified and reported through a single return path in process.
func (p *Pool) runJob(ctx context.Context, log *slog.Logger, jobID string, job queue.Job) error {
	rc, err := p.downloadWithRetry(ctx, log, job.Ref)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer rc.Close()

	put, err := p.store.PutStream(rc)
	if err != nil {
		return fmt.Errorf("store artifact: %w", err)
	}
	if put.AlreadyExisted {
		log.Info("skipped_duplicate_post", slog.String("file_hash", put.Hash))
		metrics.DuplicatesSkippedTotal.WithLabelValues("post_download").Inc()
	}

	if err := p.repo.MarkJob(ctx, jobID, repository.JobProcessing, nil, &put.Hash); err != nil {
		return fmt.Errorf("mark job processing: %w", err)
	}

	file := repository.ProcessedFile{
		TelegramFileID: job.Ref.Token(),
		ChannelID:      job.Ref.ChannelID,
		ChannelTitle:   job.ChannelTitle,
		Filename:       job.Filename,
		SizeBytes:      put.Size,
		FileHash:       put.Hash,
		StoragePath:    put.RelativePath,
	}
	if err := p.repo.UpsertProcessedFile(ctx, file); err != nil {
		return fmt.Errorf("upsert processed file: %w", err)
	}

	if err := p.repo.MarkJob(ctx, jobID, repository.JobCompleted, nil, &put.Hash); err != nil {
		return fmt.Errorf("mark job completed: %w", err)
	}

	if !archive.Supports(job.Filename) {
		return nil
	}

	indicators, err := p.scanArchive(ctx, log, job, put.Hash)
	if err != nil {
		// Archive extraction failures (unsafe archive, password-required,
		// storage I/O) do not unwind the already-completed file ingestion;
		// they are logged as archive_scan_skipped, no metric is recorded for
		// them, and they never re-fail a job whose artifact has already been
		// durably stored.
		log.Warn("archive_scan_skipped", slog.String("error", err.Error()), slog.String("error_class", ingesterr.Class(err)))
		return nil
	}

	if len(indicators) == 0 {
		return nil
	}
	if err := p.repo.UpsertIndicators(ctx, indicators); err != nil {
		return fmt.Errorf("upsert indicators: %w", err)
	}
	for _, ind := range indicators {
		metrics.IndicatorsFoundTotal.WithLabelValues(ind.IndicatorType).Inc()
	}
	return nil
}

// downloadWithRetry fetches the artifact's bytes, making at most
// p.maxRetries attempts in total and retrying only transient network
// failures, with capped exponential backoff between attempts. A
// non-transient error (auth, config) aborts immediately.
func (p *Pool) downloadWithRetry(ctx context.Context, log *slog.Logger, ref externalref.Ref) (io.ReadCloser, error) {
	var lastErr error
	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		log.Info("download_start", slog.Int("attempt", attempt))
		metrics.DownloadsTotal.WithLabelValues("start").Inc()
		rc, err := p.downloader.Download(ctx, ref)
		if err == nil {
			log.Info("download_complete", slog.Int("attempt", attempt))
			metrics.DownloadsTotal.WithLabelValues("complete").Inc()
			return rc, nil
		}
		lastErr = err

		if !errors.Is(err, ingesterr.ErrTransientNetwork) || attempt == p.maxRetries {
			return nil, err
		}

		metrics.DownloadsTotal.WithLabelValues("retry").Inc()
		log.Warn("download_retry", slog.Int("attempt", attempt), slog.String("error", err.Error()))
		if sleepErr := p.backoff.Sleep(ctx, attempt); sleepErr != nil {
			return nil, sleepErr
		}
	}
	return nil, lastErr
}

// scanArchive extracts job's stored artifact into a fresh isolated temp
// directory, scans every scannable member for indicators, and always
// removes the temp directory before returning.
func (p *Pool) scanArchive(ctx context.Context, log *slog.Logger, job queue.Job, fileHash string) ([]repository.ExtractedIndicator, error) {
	destDir := filepath.Join(p.tempDir, "extract-"+uuid.New().String())
	defer os.RemoveAll(destDir)

	log.Info("extract_start", slog.String("filename", job.Filename))

	// The stored artifact is named by its hash alone, so archive.Extract
	// sees the job's original suffix through a symlink beside destDir.
	storedPath, err := filepath.Abs(p.store.FullPath(filepath.Join(fileHash[0:2], fileHash[2:4], fileHash)))
	if err != nil {
		return nil, fmt.Errorf("resolve stored artifact path: %w: %w", err, ingesterr.ErrStorageIO)
	}
	archivePath := destDir + strings.ToLower(filepath.Ext(job.Filename))
	if err := os.Symlink(storedPath, archivePath); err != nil {
		return nil, fmt.Errorf("link archive for extraction: %w: %w", err, ingesterr.ErrStorageIO)
	}
	defer os.Remove(archivePath)

	members, err := archive.Extract(archivePath, destDir, p.archiveLim)
	if err != nil {
		logExtractFailure(log, err)
		return nil, err
	}

	var indicators []repository.ExtractedIndicator
	counts := map[string]int{}
	truncatedLines := 0
	for _, m := range members {
		if !iocscan.IsScannable(m) {
			continue
		}
		found, truncated, err := p.scanMember(m)
		if err != nil {
			log.Warn("member_scan_failed", slog.String("member", m.RelativePath), slog.String("error", err.Error()))
			continue
		}
		truncatedLines += truncated
		for _, f := range found {
			counts[string(f.Type)]++
			indicators = append(indicators, repository.ExtractedIndicator{
				IndicatorType:      string(f.Type),
				Value:              f.Value,
				SourceFileHash:     fileHash,
				SourceRelativePath: f.RelativePath,
				SourceLine:         f.Line,
				ChannelID:          job.Ref.ChannelID,
			})
		}
	}
	if truncatedLines > 0 {
		log.Warn("scan_lines_truncated", slog.Int("count", truncatedLines))
	}

	log.Info("extract_complete", slog.Int("member_count", len(members)))
	if len(indicators) > 0 {
		log.Info("indicators_found",
			slog.Int("domain", counts[string(iocscan.IndicatorDomain)]),
			slog.Int("email", counts[string(iocscan.IndicatorEmail)]),
			slog.Int("ipv4", counts[string(iocscan.IndicatorIPv4)]),
		)
	}
	return indicators, nil
}

// logExtractFailure maps an archive error to its named observability
// event. Path traversal and decompression-bomb both classify as
// ErrUnsafeArchive (§7's error kinds are coarser than the log event
// vocabulary), so the bomb case is distinguished here by its message —
// both guard sites in internal/archive say "ratio" or "ceiling".
func logExtractFailure(log *slog.Logger, err error) {
	msg := err.Error()
	switch {
	case errors.Is(err, ingesterr.ErrPasswordRequired):
		log.Info("extract_password_required")
	case errors.Is(err, ingesterr.ErrUnsafeArchive) && (strings.Contains(msg, "ratio") || strings.Contains(msg, "ceiling")):
		log.Warn("extract_bomb_aborted", slog.String("error", msg))
	case errors.Is(err, ingesterr.ErrUnsafeArchive):
		log.Warn("extract_unsafe_member", slog.String("error", msg))
	default:
		log.Warn("extract_failed", slog.String("error", msg))
	}
}

func (p *Pool) scanMember(m archive.Member) ([]iocscan.Indicator, int, error) {
	f, err := os.Open(m.DiskPath)
	if err != nil {
		return nil, 0, fmt.Errorf("open member: %w: %w", err, ingesterr.ErrStorageIO)
	}
	defer f.Close()
	indicators, truncated := p.matchers.ScanText(m.RelativePath, f)
	return indicators, truncated, nil
}
