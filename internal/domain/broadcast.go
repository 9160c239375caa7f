package domain

import "time"

// Broadcast is an announcement sent to every guardian contact.
type Broadcast struct {
	ID         string
	Title      string
	Content    string
	Recipients int
	CreatedAt  time.Time
	SentAt     *time.Time
}
