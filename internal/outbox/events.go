package outbox

import (
	"encoding/json"
	"time"
)

// TopicActivityEvents carries every activity lifecycle event, partitioned by
// owning user so one user's history replays in order.
const TopicActivityEvents = "activity_events"

// ActivityStarted is emitted when a new activity begins recording.
type ActivityStarted struct {
	ActivityID  string    `json:"activity_id"`
	UserID      string    `json:"user_id"`
	Description string    `json:"description"`
	StartedAt   time.Time `json:"started_at"`
}

// ActivityFinished is emitted when a pending activity is completed.
type ActivityFinished struct {
	ActivityID string    `json:"activity_id"`
	UserID     string    `json:"user_id"`
	FinishedAt time.Time `json:"finished_at"`
}

// ActivityUpdated is emitted for field edits on an existing activity.
type ActivityUpdated struct {
	ActivityID string    `json:"activity_id"`
	UserID     string    `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ActivityDeleted is emitted when an activity is removed.
type ActivityDeleted struct {
	ActivityID string    `json:"activity_id"`
	UserID     string    `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// MarshalPayload encodes an event payload for the outbox table.
func MarshalPayload(payload any) ([]byte, error) {
	return json.Marshal(payload)
}
