package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arturkryukov/telegram-ioc-ingestor/internal/ingesterr"
)

const dbTimeout = 5 * time.Second

// Postgres implements Repository against a PostgreSQL pgxpool. Every
// exported method applies its own context timeout, same discipline as the
// teacher's prepared-statement repository, but upserts lean on
// PostgreSQL's ON CONFLICT clause rather than hand-rolled read-then-write.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an already-connected pool. The caller owns the pool's
// lifetime (created and closed by internal/database).
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) IsProcessed(ctx context.Context, telegramFileID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM processed_files WHERE telegram_file_id = $1)`,
		telegramFileID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("repository: is_processed: %w: %w", err, ingesterr.ErrDBTransient)
	}
	return exists, nil
}

func (p *Postgres) BeginJob(ctx context.Context, telegramFileID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	jobID := uuid.New().String()
	_, err := p.pool.Exec(ctx,
		`INSERT INTO processing_jobs (job_id, telegram_file_id, status, created_at, updated_at)
		 VALUES ($1, $2, $3, now(), now())`,
		jobID, telegramFileID, JobQueued,
	)
	if err != nil {
		return "", fmt.Errorf("repository: begin_job: %w: %w", err, ingesterr.ErrDBTransient)
	}
	return jobID, nil
}

func (p *Postgres) MarkJob(ctx context.Context, jobID string, status JobStatus, errMsg, fileHash *string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := p.pool.Exec(ctx,
		`UPDATE processing_jobs
		 SET status = $1, error = $2, file_hash = COALESCE($3, file_hash), updated_at = now()
		 WHERE job_id = $4`,
		status, errMsg, fileHash, jobID,
	)
	if err != nil {
		return fmt.Errorf("repository: mark_job: %w: %w", err, ingesterr.ErrDBTransient)
	}
	return nil
}

func (p *Postgres) UpsertProcessedFile(ctx context.Context, file ProcessedFile) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := p.pool.Exec(ctx,
		`INSERT INTO processed_files
		   (telegram_file_id, channel_id, channel_title, filename, size_bytes,
		    file_hash, storage_path, first_seen_at, last_seen_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		 ON CONFLICT (telegram_file_id) DO UPDATE
		   SET last_seen_at = now()`,
		file.TelegramFileID, file.ChannelID, file.ChannelTitle, file.Filename,
		file.SizeBytes, file.FileHash, file.StoragePath,
	)
	if err != nil {
		return fmt.Errorf("repository: upsert_processed_file: %w: %w", err, ingesterr.ErrDBTransient)
	}
	return nil
}

// indicatorChunkSize bounds how many rows go into one sub-transaction, so
// a large IOC batch never produces an unbounded statement.
const indicatorChunkSize = 500

func (p *Postgres) UpsertIndicators(ctx context.Context, indicators []ExtractedIndicator) error {
	for start := 0; start < len(indicators); start += indicatorChunkSize {
		end := start + indicatorChunkSize
		if end > len(indicators) {
			end = len(indicators)
		}
		if err := p.upsertIndicatorChunk(ctx, indicators[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// upsertIndicatorChunk writes one chunk in its own transaction using a
// pgx.Batch, so a crash mid-batch leaves only whole, independently
// idempotent chunks committed — safe to retry from the start of the
// failed chunk.
func (p *Postgres) upsertIndicatorChunk(ctx context.Context, chunk []ExtractedIndicator) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: begin indicator tx: %w: %w", err, ingesterr.ErrDBTransient)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, ind := range chunk {
		batch.Queue(
			`INSERT INTO extracted_indicators
			   (indicator_type, value, source_file_hash, source_relative_path,
			    source_line, channel_id, first_seen_at, last_seen_at)
			 VALUES ($1, $2, $3, $4, $5, $6, now(), now())
			 ON CONFLICT (indicator_type, value, source_file_hash, source_line) DO UPDATE
			   SET last_seen_at = now()`,
			ind.IndicatorType, ind.Value, ind.SourceFileHash, ind.SourceRelativePath,
			ind.SourceLine, ind.ChannelID,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for range chunk {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("repository: upsert indicator: %w: %w", err, ingesterr.ErrDBTransient)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("repository: close indicator batch: %w: %w", err, ingesterr.ErrDBTransient)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository: commit indicator tx: %w: %w", err, ingesterr.ErrDBTransient)
	}
	return nil
}
