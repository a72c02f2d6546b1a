package persistence

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// SessionStore implements ports.SessionStore over gorm.
type SessionStore struct {
	db *gorm.DB
}

func NewSessionStore(db *gorm.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) Create(ctx context.Context, sessionID, userID, title string) error {
	row := RecordingSession{
		ID:     sessionID,
		UserID: userID,
		Title:  title,
		Status: "recording",
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *SessionStore) UpdateState(ctx context.Context, sessionID string, state string) error {
	res := s.db.WithContext(ctx).Model(&RecordingSession{}).
		Where("id = ?", sessionID).Update("status", state)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("session %s: %w", sessionID, gorm.ErrRecordNotFound)
	}
	return nil
}

func (s *SessionStore) Complete(ctx context.Context, sessionID, transcriptText, summary string, durationSeconds float64) error {
	return s.db.WithContext(ctx).Model(&RecordingSession{}).
		Where("id = ?", sessionID).
		Updates(map[string]any{
			"status":           "completed",
			"transcript_text":  transcriptText,
			"summary":          summary,
			"duration_seconds": durationSeconds,
		}).Error
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (id, userID, state string, found bool, err error) {
	var row RecordingSession
	res := s.db.WithContext(ctx).Where("id = ?", sessionID).First(&row)
	if res.Error == gorm.ErrRecordNotFound {
		return "", "", "", false, nil
	}
	if res.Error != nil {
		return "", "", "", false, res.Error
	}
	return row.ID, row.UserID, row.Status, true, nil
}

func (s *SessionStore) ListActive(ctx context.Context) ([]string, []string, error) {
	var rows []RecordingSession
	if err := s.db.WithContext(ctx).
		Where("status IN ?", []string{"recording", "paused", "processing"}).
		Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	ids := make([]string, len(rows))
	states := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
		states[i] = r.Status
	}
	return ids, states, nil
}

// ChunkStore implements ports.ChunkStore over gorm.
type ChunkStore struct {
	db *gorm.DB
}

func NewChunkStore(db *gorm.DB) *ChunkStore {
	return &ChunkStore{db: db}
}

func (c *ChunkStore) Insert(ctx context.Context, sessionID string, index int, text string, confidence float64) error {
	row := TranscriptChunk{
		SessionID:  sessionID,
		ChunkIndex: index,
		Text:       text,
		Timestamp:  time.Now(),
		Confidence: &confidence,
	}
	return c.db.WithContext(ctx).Create(&row).Error
}

func (c *ChunkStore) ListTexts(ctx context.Context, sessionID string, lastN int) ([]string, error) {
	var rows []TranscriptChunk
	if err := c.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("chunk_index DESC").
		Limit(lastN).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	texts := make([]string, len(rows))
	for i := range rows {
		texts[len(rows)-1-i] = rows[i].Text
	}
	return texts, nil
}

func (c *ChunkStore) ListOrdered(ctx context.Context, sessionID string) ([]string, error) {
	var rows []TranscriptChunk
	if err := c.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("chunk_index ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	texts := make([]string, len(rows))
	for i, r := range rows {
		texts[i] = r.Text
	}
	return texts, nil
}

func (c *ChunkStore) Count(ctx context.Context, sessionID string) (int, error) {
	var count int64
	if err := c.db.WithContext(ctx).Model(&TranscriptChunk{}).
		Where("session_id = ?", sessionID).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}
