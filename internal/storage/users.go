package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/tazhate/countdowns/internal/domain"
)

// EnsureUser returns the user with name, creating it on first sight. The
// Telegram chat is kept in sync with configuration.
func (s *Storage) EnsureUser(name string, telegramID int64) (*domain.User, error) {
	now := formatTime(time.Now())
	_, err := s.db.Exec(`
		INSERT INTO users (name, telegram_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET telegram_id = excluded.telegram_id`,
		name, telegramID, now)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return s.GetUserByName(name)
}

func (s *Storage) GetUserByName(name string) (*domain.User, error) {
	return s.scanUser(s.db.QueryRow(`SELECT id, name, telegram_id, created_at FROM users WHERE name = ?`, name))
}

// GetUserByTelegramID returns nil when no configured user owns the chat.
func (s *Storage) GetUserByTelegramID(telegramID int64) (*domain.User, error) {
	if telegramID == 0 {
		return nil, nil
	}
	return s.scanUser(s.db.QueryRow(`SELECT id, name, telegram_id, created_at FROM users WHERE telegram_id = ?`, telegramID))
}

func (s *Storage) GetUser(id int64) (*domain.User, error) {
	return s.scanUser(s.db.QueryRow(`SELECT id, name, telegram_id, created_at FROM users WHERE id = ?`, id))
}

func (s *Storage) ListUsers() ([]*domain.User, error) {
	rows, err := s.db.Query(`SELECT id, name, telegram_id, created_at FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := s.scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *Storage) scanUser(row rowScanner) (*domain.User, error) {
	var u domain.User
	var createdAt string
	if err := row.Scan(&u.ID, &u.Name, &u.TelegramID, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	u.CreatedAt = t
	return &u, nil
}
