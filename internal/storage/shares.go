package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tazhate/countdowns/internal/domain"
)

func (s *Storage) CreateSharedEvent(se *domain.SharedEvent) error {
	payload, err := json.Marshal(se.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	se.CreatedAt = time.Now().UTC()

	result, err := s.db.Exec(`INSERT INTO shared_events (owner_user_id, payload, created_at) VALUES (?, ?, ?)`,
		se.OwnerID, string(payload), formatTime(se.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert shared event: %w", err)
	}
	if se.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	return nil
}

func (s *Storage) GetSharedEvent(id int64) (*domain.SharedEvent, error) {
	var se domain.SharedEvent
	var payload, createdAt string
	err := s.db.QueryRow(`SELECT id, owner_user_id, payload, created_at FROM shared_events WHERE id = ?`, id).
		Scan(&se.ID, &se.OwnerID, &payload, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get shared event: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &se.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	if se.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &se, nil
}

func (s *Storage) CreateShareToken(t *domain.ShareToken) error {
	t.CreatedAt = time.Now().UTC()
	result, err := s.db.Exec(`INSERT INTO share_tokens (shared_event_id, token, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		t.SharedEventID, t.Token, formatTimePtr(t.ExpiresAt), formatTime(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert share token: %w", err)
	}
	if t.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	return nil
}

func (s *Storage) GetShareToken(token string) (*domain.ShareToken, error) {
	var t domain.ShareToken
	var expiresAt sql.NullString
	var createdAt string
	err := s.db.QueryRow(`SELECT id, shared_event_id, token, expires_at, created_at FROM share_tokens WHERE token = ?`, token).
		Scan(&t.ID, &t.SharedEventID, &t.Token, &expiresAt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get share token: %w", err)
	}
	if t.ExpiresAt, err = parseNullTime(expiresAt); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &t, nil
}
