// Package domain defines the records tracked by the timetrack service.
package domain

import (
	"encoding/json"
	"time"
)

// Activity is one tracked work interval. FinishedAt is nil while the
// activity is still being recorded.
type Activity struct {
	ID          string
	UserID      string
	Description string
	CategoryID  *string
	Tags        json.RawMessage
	StartedAt   time.Time
	FinishedAt  *time.Time
	CreatedAt   time.Time
}

// Pending reports whether the activity is still being recorded.
func (a Activity) Pending() bool {
	return a.FinishedAt == nil
}

// Category groups activities for one user.
type Category struct {
	ID        string
	UserID    string
	Name      string
	CreatedAt time.Time
}
