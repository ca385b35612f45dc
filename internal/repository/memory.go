package repository

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-memory Repository used by worker and supervisor tests.
// It enforces the same uniqueness/idempotence semantics as Postgres so
// tests exercise real dedup behavior, not a stub that always succeeds.
type Memory struct {
	mu         sync.Mutex
	files      map[string]ProcessedFile
	jobs       map[string]ProcessingJob
	indicators map[string]ExtractedIndicator
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{
		files:      make(map[string]ProcessedFile),
		jobs:       make(map[string]ProcessingJob),
		indicators: make(map[string]ExtractedIndicator),
	}
}

func (m *Memory) IsProcessed(_ context.Context, telegramFileID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[telegramFileID]
	return ok, nil
}

func (m *Memory) BeginJob(_ context.Context, telegramFileID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	now := time.Now().UTC()
	m.jobs[id] = ProcessingJob{
		JobID:          id,
		TelegramFileID: telegramFileID,
		Status:         JobQueued,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return id, nil
}

func (m *Memory) MarkJob(_ context.Context, jobID string, status JobStatus, errMsg, fileHash *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job := m.jobs[jobID]
	job.Status = status
	job.Error = errMsg
	if fileHash != nil {
		job.FileHash = fileHash
	}
	job.UpdatedAt = time.Now().UTC()
	m.jobs[jobID] = job
	return nil
}

func (m *Memory) UpsertProcessedFile(_ context.Context, file ProcessedFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	existing, ok := m.files[file.TelegramFileID]
	if ok {
		existing.LastSeenAt = now
		m.files[file.TelegramFileID] = existing
		return nil
	}
	file.FirstSeenAt = now
	file.LastSeenAt = now
	m.files[file.TelegramFileID] = file
	return nil
}

func (m *Memory) UpsertIndicators(_ context.Context, indicators []ExtractedIndicator) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	for _, ind := range indicators {
		key := ind.IndicatorType + "|" + ind.Value + "|" + ind.SourceFileHash + "|" + strconv.Itoa(ind.SourceLine)
		existing, ok := m.indicators[key]
		if ok {
			existing.LastSeenAt = now
			m.indicators[key] = existing
			continue
		}
		ind.FirstSeenAt = now
		ind.LastSeenAt = now
		m.indicators[key] = ind
	}
	return nil
}

// Files returns a snapshot of all processed files, for test assertions.
func (m *Memory) Files() []ProcessedFile {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ProcessedFile, 0, len(m.files))
	for _, f := range m.files {
		out = append(out, f)
	}
	return out
}

// Jobs returns a snapshot of all job rows, for test assertions.
func (m *Memory) Jobs() []ProcessingJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ProcessingJob, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j)
	}
	return out
}

// Indicators returns a snapshot of all indicator rows, for test assertions.
func (m *Memory) Indicators() []ExtractedIndicator {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ExtractedIndicator, 0, len(m.indicators))
	for _, i := range m.indicators {
		out = append(out, i)
	}
	return out
}
