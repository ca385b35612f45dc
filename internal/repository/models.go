package repository

import "time"

// JobStatus is the lifecycle state of a ProcessingJob.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// ProcessedFile is a successfully ingested artifact, keyed by its
// telegram_file_id (the rendered externalref.Ref token).
type ProcessedFile struct {
	TelegramFileID string
	ChannelID      int64
	ChannelTitle   string
	Filename       string
	SizeBytes      int64
	FileHash       string
	StoragePath    string
	FirstSeenAt    time.Time
	LastSeenAt     time.Time
}

// ProcessingJob is an attempt record, successful or not. It carries no
// foreign key to ProcessedFile: failed jobs are retained without one.
type ProcessingJob struct {
	JobID          string
	TelegramFileID string
	Status         JobStatus
	Error          *string
	FileHash       *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ExtractedIndicator is one IOC mined from an artifact's contents.
type ExtractedIndicator struct {
	IndicatorType      string
	Value              string
	SourceFileHash     string
	SourceRelativePath string
	SourceLine         int
	ChannelID          int64
	FirstSeenAt        time.Time
	LastSeenAt         time.Time
}
