package model

import (
	"time"

	"gorm.io/gorm"
)

// JobStatus represents the lifecycle status of a normalization Job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Job is the top-level unit of work: one PDF normalization run.
type Job struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
	UserID           uint           `gorm:"index;not null" json:"user_id"`
	Status           JobStatus      `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	TotalChunks      int            `gorm:"default:0" json:"total_chunks"`
	CompletedChunks  int            `gorm:"default:0" json:"completed_chunks"`
	ProgressPercent  int            `gorm:"default:0" json:"progress_percent"`
	CurrentStep      string         `gorm:"type:varchar(100)" json:"current_step,omitempty"`
	SourceRef        string         `gorm:"type:text" json:"-"`
	Model            string         `gorm:"type:varchar(50)" json:"model"`
	PricingVersion   string         `gorm:"type:varchar(20)" json:"pricing_version"`
	PricingRate      float64        `json:"pricing_rate"`
	EstimatedTokens  int            `json:"estimated_tokens"`
	EstimatedCredits int            `json:"estimated_credits"`
	ActualTokens     *int           `json:"actual_tokens,omitempty"`
	ActualCredits    *int           `json:"actual_credits,omitempty"`
	ErrorCode        string         `gorm:"type:varchar(50)" json:"error_code,omitempty"`
	ErrorMessage     string         `gorm:"type:text" json:"error_message,omitempty"`
	StartedAt        *time.Time     `json:"started_at,omitempty"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`

	Chunks  []JobChunk `gorm:"foreignKey:JobID;constraint:OnDelete:CASCADE" json:"chunks,omitempty"`
	History *History   `gorm:"foreignKey:JobID" json:"history,omitempty"`
}

// GetProgress returns the job's own progress_percent field, kept for
// parity with the teacher's IndexingJob.GetProgress helper even though
// progress is computed and stamped by JobEngine rather than derived.
func (j *Job) GetProgress() int {
	return j.ProgressPercent
}

// IsTerminal reports whether the job has reached a status that only
// admin force-finalize may further mutate.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted ||
		j.Status == JobStatusFailed ||
		j.Status == JobStatusCancelled
}
