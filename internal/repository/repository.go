// Package repository defines idempotent persistence for processed files,
// job history, and extracted indicators, and provides a PostgreSQL
// implementation plus an in-memory fake for tests.
package repository

import "context"

// Repository is the persistence boundary the worker pool depends on.
// Every write is idempotent: replaying the same event twice must produce
// no net change beyond last_seen_at timestamps.
type Repository interface {
	// IsProcessed reports whether telegramFileID already has a
	// ProcessedFile row — the pre-download dedup check.
	IsProcessed(ctx context.Context, telegramFileID string) (bool, error)

	// BeginJob inserts a new ProcessingJob row with status queued and
	// returns its generated job ID.
	BeginJob(ctx context.Context, telegramFileID string) (jobID string, err error)

	// MarkJob transitions a job to a new status, optionally recording an
	// error message and/or the computed file hash.
	MarkJob(ctx context.Context, jobID string, status JobStatus, errMsg, fileHash *string) error

	// UpsertProcessedFile inserts or updates a ProcessedFile by
	// telegram_file_id. On conflict, only last_seen_at is updated;
	// first_seen_at is left untouched.
	UpsertProcessedFile(ctx context.Context, file ProcessedFile) error

	// UpsertIndicators inserts or updates a batch of indicators by their
	// composite unique key. On conflict, only last_seen_at is updated.
	UpsertIndicators(ctx context.Context, indicators []ExtractedIndicator) error
}
