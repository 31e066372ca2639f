package domain

import "time"

type User struct {
	ID         int64
	Name       string
	TelegramID int64
	CreatedAt  time.Time
}

func (u *User) HasTelegram() bool {
	return u.TelegramID != 0
}
