package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"example.com/timetrack/internal/domain"
	"example.com/timetrack/internal/remote"
	"example.com/timetrack/internal/service"
)

// KeyFinishFailed is recorded when finishing matches no pending activity.
const KeyFinishFailed = "toast.activityFinishError"

// ActivityStore owns the in-memory activity collection and the single
// tracking slot. Both are caches of remote truth, refreshed only by explicit
// store calls.
type ActivityStore struct {
	activities *service.Activities
	session    *SessionStore

	mu       sync.Mutex
	tracking *domain.Activity
	cache    []domain.Activity
	loading  bool
	err      string
}

// NewActivityStore constructs an ActivityStore bound to a session.
func NewActivityStore(activities *service.Activities, session *SessionStore) *ActivityStore {
	return &ActivityStore{activities: activities, session: session}
}

// TrackingActivity returns the cached pending activity, nil when none.
func (s *ActivityStore) TrackingActivity() *domain.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracking
}

// Activities returns the cached activity collection.
func (s *ActivityStore) Activities() []domain.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache
}

// Loading reports whether a remote operation is in flight.
func (s *ActivityStore) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Err returns the friendly message key of the last failed operation, empty
// when the last operation succeeded.
func (s *ActivityStore) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// LoadPendingActivity looks up the caller's unfinished activity and fills or
// clears the tracking slot. Without a signed-in user it returns silently.
func (s *ActivityStore) LoadPendingActivity(ctx context.Context) {
	user := s.session.User()
	if user == nil {
		return
	}
	s.begin()
	defer s.end()

	activity, err := s.activities.Pending(ctx, user.ID)
	if err != nil {
		s.setErr(remote.Classify(err))
		return
	}

	s.mu.Lock()
	s.tracking = activity
	s.mu.Unlock()
}

// StartRecordingActivity begins tracking a new activity, guarded by the
// one-pending-activity invariant: when a pending activity already exists the
// call is a silent no-op returning nil. The database enforces the same
// invariant, so a concurrent start surfaces as an already-tracking error.
func (s *ActivityStore) StartRecordingActivity(ctx context.Context, description string, categoryID *string, tags json.RawMessage) *domain.Activity {
	user := s.session.User()
	if user == nil {
		return nil
	}
	s.begin()
	defer s.end()

	pending, err := s.activities.Pending(ctx, user.ID)
	if err != nil {
		s.setErr(remote.Classify(err))
		return nil
	}
	if pending != nil {
		return nil
	}

	created, err := s.activities.Insert(ctx, domain.Activity{
		UserID:      user.ID,
		Description: description,
		CategoryID:  categoryID,
		Tags:        tags,
		StartedAt:   time.Now().UTC(),
	})
	if err != nil {
		s.setErr(remote.Classify(err))
		return nil
	}

	s.mu.Lock()
	s.tracking = created
	s.mu.Unlock()
	return created
}

// FinishRecordingActivity completes the pending activity with the given id,
// applying any extra field updates, and clears the tracking slot when it was
// the tracked one. It returns the updated record, or nil on failure.
func (s *ActivityStore) FinishRecordingActivity(ctx context.Context, activityID string, updates remote.Row) *domain.Activity {
	user := s.session.User()
	if user == nil {
		return nil
	}
	s.begin()
	defer s.end()

	merged := remote.Row{"finished_at": time.Now().UTC()}
	for k, v := range updates {
		if k == "finished_at" {
			continue
		}
		merged[k] = v
	}

	updated, err := s.activities.Update(ctx, merged, remote.Filter{
		"id":          activityID,
		"user_id":     user.ID,
		"finished_at": nil,
	})
	if err != nil {
		s.setErr(remote.Classify(err))
		return nil
	}
	if updated == nil {
		s.setErr(KeyFinishFailed)
		return nil
	}

	s.mu.Lock()
	if s.tracking != nil && s.tracking.ID == updated.ID {
		s.tracking = nil
	}
	s.mu.Unlock()
	return updated
}

// GetActivities fetches all of the user's activities and replaces the local
// cache entirely.
func (s *ActivityStore) GetActivities(ctx context.Context) []domain.Activity {
	user := s.session.User()
	if user == nil {
		return nil
	}
	s.begin()
	defer s.end()

	activities, err := s.activities.ByUser(ctx, user.ID)
	if err != nil {
		s.setErr(remote.Classify(err))
		return nil
	}

	s.mu.Lock()
	s.cache = activities
	s.mu.Unlock()
	return activities
}

// DeleteActivityByID removes the user's activity. On success the cached
// entry is dropped and the tracking slot cleared when it matched. It reports
// success and never surfaces an error key.
func (s *ActivityStore) DeleteActivityByID(ctx context.Context, activityID string) bool {
	user := s.session.User()
	if user == nil {
		return false
	}
	s.setErr("")

	deleted, err := s.activities.Delete(ctx, remote.Filter{"id": activityID, "user_id": user.ID})
	if err != nil || deleted == nil {
		return false
	}

	s.mu.Lock()
	kept := s.cache[:0]
	for _, a := range s.cache {
		if a.ID != activityID {
			kept = append(kept, a)
		}
	}
	s.cache = kept
	if s.tracking != nil && s.tracking.ID == activityID {
		s.tracking = nil
	}
	s.mu.Unlock()
	return true
}

// UpdateActivityByID applies field updates to the user's activity. Identity,
// creation, and completion fields are ignored. On success the cached entry
// is replaced in place and the tracking slot refreshed when it matched.
func (s *ActivityStore) UpdateActivityByID(ctx context.Context, activityID string, fields remote.Row) bool {
	user := s.session.User()
	if user == nil {
		return false
	}

	updates := remote.Row{}
	for k, v := range fields {
		switch k {
		case "id", "user_id", "created_at", "finished_at", "started_at":
			continue
		}
		updates[k] = v
	}
	if len(updates) == 0 {
		return false
	}

	updated, err := s.activities.Update(ctx, updates, remote.Filter{"id": activityID, "user_id": user.ID})
	if err != nil || updated == nil {
		return false
	}

	s.mu.Lock()
	for i := range s.cache {
		if s.cache[i].ID == activityID {
			s.cache[i] = *updated
			break
		}
	}
	if s.tracking != nil && s.tracking.ID == activityID {
		s.tracking = updated
	}
	s.mu.Unlock()
	return true
}

// begin brackets a remote operation: loading on, error slot cleared.
func (s *ActivityStore) begin() {
	s.mu.Lock()
	s.loading = true
	s.err = ""
	s.mu.Unlock()
}

func (s *ActivityStore) end() {
	s.mu.Lock()
	s.loading = false
	s.mu.Unlock()
}

func (s *ActivityStore) setErr(key string) {
	s.mu.Lock()
	s.err = key
	s.mu.Unlock()
}
