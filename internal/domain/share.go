package domain

import "time"

// SharePayload is the snapshot of an event taken when a share link is created.
type SharePayload struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	EventDate   time.Time `json:"event_date"`
	Repeat      string    `json:"repeat_interval"`
	Timezone    string    `json:"timezone,omitempty"`
}

type SharedEvent struct {
	ID        int64
	OwnerID   int64
	Payload   SharePayload
	CreatedAt time.Time
}

type ShareToken struct {
	ID            int64
	SharedEventID int64
	Token         string
	ExpiresAt     *time.Time
	CreatedAt     time.Time
}

func (t *ShareToken) IsExpired(now time.Time) bool {
	return t.ExpiresAt != nil && t.ExpiresAt.Before(now)
}
