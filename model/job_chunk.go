package model

import (
	"time"
)

// JobChunkStatus represents the lifecycle status of a JobChunk.
type JobChunkStatus string

const (
	JobChunkStatusPending   JobChunkStatus = "pending"
	JobChunkStatusRunning   JobChunkStatus = "running"
	JobChunkStatusSucceeded JobChunkStatus = "succeeded"
	JobChunkStatusFailed    JobChunkStatus = "failed"
)

// JobChunk is one contiguous page-range unit of work within a Job.
// Chunks are independent: no chunk may read another chunk's result
// while executing.
type JobChunk struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	JobID         uint           `gorm:"index:idx_job_status_idx,priority:1;index:idx_job_idx,priority:1;not null" json:"job_id"`
	ChunkIndex    int            `gorm:"index:idx_job_status_idx,priority:3;index:idx_job_idx,priority:2" json:"chunk_index"`
	PageStart     int            `json:"page_start"`
	PageEnd       int            `json:"page_end"`
	HasOverlap    bool           `json:"has_overlap"`
	Status        JobChunkStatus `gorm:"type:varchar(15);default:'pending';index:idx_job_status_idx,priority:2" json:"status"`
	Attempts      int            `gorm:"default:0" json:"attempts"`
	MaxRetries    int            `gorm:"default:3" json:"max_retries"`
	LastErrorCode string         `gorm:"type:varchar(50)" json:"last_error_code,omitempty"`
	LastError     string         `gorm:"type:text" json:"last_error,omitempty"`
	ResultRef     string         `gorm:"type:text" json:"result_ref,omitempty"`
	WorkerID      string         `gorm:"type:varchar(64)" json:"worker_id,omitempty"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	FinishedAt    *time.Time     `json:"finished_at,omitempty"`
	HeartbeatAt   *time.Time     `json:"heartbeat_at,omitempty"`

	Job Job `gorm:"foreignKey:JobID;constraint:OnDelete:CASCADE" json:"-"`
}

// IsTerminal reports whether the chunk has settled.
func (c *JobChunk) IsTerminal() bool {
	return c.Status == JobChunkStatusSucceeded || c.Status == JobChunkStatusFailed
}

// ExhaustedRetries reports whether another attempt is not permitted.
func (c *JobChunk) ExhaustedRetries() bool {
	return c.Attempts >= c.MaxRetries+1
}
