// Package service provides typed facades over the generic remote data
// contract, one per record collection.
package service

import (
	"context"
	"sort"

	"example.com/timetrack/internal/domain"
	"example.com/timetrack/internal/remote"
	"example.com/timetrack/internal/timeutil"
)

const activitiesCollection = "activities"

// Activities is the typed facade over the activities collection.
type Activities struct {
	client remote.DataClient
}

// NewActivities constructs the facade.
func NewActivities(client remote.DataClient) *Activities {
	return &Activities{client: client}
}

// Get returns all activities matching filter, newest first.
func (s *Activities) Get(ctx context.Context, filter remote.Filter) ([]domain.Activity, error) {
	rows, err := s.client.Get(ctx, activitiesCollection, filter)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Activity, 0, len(rows))
	for _, row := range rows {
		activity, err := activityFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *activity)
	}
	return out, nil
}

// GetSingle returns the one activity matching filter, nil when none does.
func (s *Activities) GetSingle(ctx context.Context, filter remote.Filter) (*domain.Activity, error) {
	row, err := s.client.GetSingle(ctx, activitiesCollection, filter)
	if err != nil || row == nil {
		return nil, err
	}
	return activityFromRow(row)
}

// Pending returns the user's unfinished activity, nil when there is none.
func (s *Activities) Pending(ctx context.Context, userID string) (*domain.Activity, error) {
	return s.GetSingle(ctx, remote.Filter{"user_id": userID, "finished_at": nil})
}

// ByUser returns every activity owned by the user.
func (s *Activities) ByUser(ctx context.Context, userID string) ([]domain.Activity, error) {
	return s.Get(ctx, remote.Filter{"user_id": userID})
}

// Insert stores a new activity. The identifier and creation timestamp are
// assigned by the remote store.
func (s *Activities) Insert(ctx context.Context, activity domain.Activity) (*domain.Activity, error) {
	row := remote.Row{
		"user_id":     activity.UserID,
		"description": activity.Description,
		"started_at":  activity.StartedAt,
		"finished_at": nil,
	}
	if activity.CategoryID != nil {
		row["category_id"] = *activity.CategoryID
	} else {
		row["category_id"] = nil
	}
	if activity.Tags != nil {
		row["tags"] = activity.Tags
	} else {
		row["tags"] = nil
	}
	if activity.FinishedAt != nil {
		row["finished_at"] = *activity.FinishedAt
	}

	inserted, err := s.client.Insert(ctx, activitiesCollection, row)
	if err != nil {
		return nil, err
	}
	return activityFromRow(inserted)
}

// Update applies partial field updates to the activity matching filter. It
// returns nil when nothing matched.
func (s *Activities) Update(ctx context.Context, updates remote.Row, filter remote.Filter) (*domain.Activity, error) {
	row, err := s.client.Update(ctx, activitiesCollection, updates, filter)
	if err != nil || row == nil {
		return nil, err
	}
	return activityFromRow(row)
}

// Delete removes the activity matching filter and returns it, nil when
// nothing matched.
func (s *Activities) Delete(ctx context.Context, filter remote.Filter) (*domain.Activity, error) {
	row, err := s.client.Delete(ctx, activitiesCollection, filter)
	if err != nil || row == nil {
		return nil, err
	}
	return activityFromRow(row)
}

// FilterMonth keeps the activities started in the given YYYY-MM month. An
// empty month keeps everything.
func FilterMonth(activities []domain.Activity, month string) []domain.Activity {
	if month == "" {
		return activities
	}
	out := make([]domain.Activity, 0, len(activities))
	for _, a := range activities {
		if timeutil.MonthKey(a.StartedAt) == month {
			out = append(out, a)
		}
	}
	return out
}

// SortByCreatedDesc orders activities newest-created first, the order the
// history table renders them in.
func SortByCreatedDesc(activities []domain.Activity) {
	sort.SliceStable(activities, func(i, j int) bool {
		return activities[i].CreatedAt.After(activities[j].CreatedAt)
	})
}
