package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryUpsertProcessedFilePreservesFirstSeen(t *testing.T) {
	repo := NewMemory()
	ctx := context.Background()

	err := repo.UpsertProcessedFile(ctx, ProcessedFile{TelegramFileID: "42_7_1001", FileHash: "abc"})
	require.NoError(t, err)

	first := repo.Files()[0].FirstSeenAt

	err = repo.UpsertProcessedFile(ctx, ProcessedFile{TelegramFileID: "42_7_1001", FileHash: "abc"})
	require.NoError(t, err)

	files := repo.Files()
	require.Len(t, files, 1)
	require.Equal(t, first, files[0].FirstSeenAt)
	require.True(t, !files[0].LastSeenAt.Before(first))
}

func TestMemoryIsProcessed(t *testing.T) {
	repo := NewMemory()
	ctx := context.Background()

	processed, err := repo.IsProcessed(ctx, "42_7_1001")
	require.NoError(t, err)
	require.False(t, processed)

	require.NoError(t, repo.UpsertProcessedFile(ctx, ProcessedFile{TelegramFileID: "42_7_1001"}))

	processed, err = repo.IsProcessed(ctx, "42_7_1001")
	require.NoError(t, err)
	require.True(t, processed)
}

func TestMemoryUpsertIndicatorsIdempotent(t *testing.T) {
	repo := NewMemory()
	ctx := context.Background()

	ind := ExtractedIndicator{IndicatorType: "email", Value: "a@b.gov", SourceFileHash: "h1", SourceLine: 1}
	require.NoError(t, repo.UpsertIndicators(ctx, []ExtractedIndicator{ind}))
	require.NoError(t, repo.UpsertIndicators(ctx, []ExtractedIndicator{ind}))

	require.Len(t, repo.Indicators(), 1)
}

func TestMemoryBeginAndMarkJob(t *testing.T) {
	repo := NewMemory()
	ctx := context.Background()

	jobID, err := repo.BeginJob(ctx, "42_7_1001")
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	hash := "deadbeef"
	require.NoError(t, repo.MarkJob(ctx, jobID, JobCompleted, nil, &hash))

	jobs := repo.Jobs()
	require.Len(t, jobs, 1)
	require.Equal(t, JobCompleted, jobs[0].Status)
	require.Equal(t, &hash, jobs[0].FileHash)
}
