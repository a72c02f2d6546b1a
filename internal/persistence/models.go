// Package persistence implements the two tables the pipeline writes (§6):
// recording_session and transcript_chunk, plus sqlite wiring for them.
package persistence

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RecordingSession mirrors the recording_session table.
type RecordingSession struct {
	ID             string     `gorm:"primaryKey;type:varchar(36)"`
	UserID         string     `gorm:"type:varchar(64);index;not null"`
	Title          string     `gorm:"type:text"`
	Status         string     `gorm:"type:varchar(20);not null;default:'recording'"`
	CreatedAt      time.Time  `gorm:"autoCreateTime"`
	TranscriptText *string    `gorm:"type:text"`
	Summary        *string    `gorm:"type:text"`
	DurationSeconds *float64  `gorm:"type:real"`
}

func (s *RecordingSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

// TranscriptChunk mirrors the transcript_chunk table.
type TranscriptChunk struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	SessionID  string    `gorm:"type:varchar(36);index;not null"`
	ChunkIndex int       `gorm:"not null"`
	Text       string    `gorm:"type:text;not null"`
	Timestamp  time.Time `gorm:"autoCreateTime"`
	Confidence *float64  `gorm:"type:real"`
}

func (TranscriptChunk) TableName() string {
	return "transcript_chunk"
}

func (RecordingSession) TableName() string {
	return "recording_session"
}
