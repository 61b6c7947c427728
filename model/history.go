package model

import (
	"time"

	"gorm.io/datatypes"
)

// Sentence is one normalized, validated sentence retained in a
// completed job's History. Immutable once written.
type Sentence struct {
	Text          string `json:"text"`
	OriginalRef   string `json:"original_ref,omitempty"`
	SourceChunkID uint   `json:"source_chunk_id"`
	Position      int    `json:"position"`
}

// History is the immutable, merged output of a completed Job. Created
// atomically when a Job transitions to completed; never mutated after.
type History struct {
	ID               uint                                `gorm:"primaryKey" json:"id"`
	CreatedAt        time.Time                            `json:"created_at"`
	JobID            uint                                 `gorm:"uniqueIndex;not null" json:"job_id"`
	UserID           uint                                 `gorm:"index;not null" json:"user_id"`
	Filename         string                               `gorm:"type:varchar(255)" json:"filename"`
	Sentences        datatypes.JSONType[[]Sentence]       `gorm:"type:jsonb" json:"sentences"`
	ChunkIDs         datatypes.JSONType[[]uint]           `gorm:"type:jsonb" json:"chunk_ids"`
	SettingsSnapshot datatypes.JSONType[map[string]any]   `gorm:"type:jsonb" json:"settings_snapshot"`
	Exported         bool                                 `gorm:"default:false" json:"exported"`
}

func (History) TableName() string { return "histories" }
