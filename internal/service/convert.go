package service

import (
	"encoding/json"
	"fmt"
	"time"

	"example.com/timetrack/internal/domain"
	"example.com/timetrack/internal/remote"
)

func activityFromRow(row remote.Row) (*domain.Activity, error) {
	activity := &domain.Activity{}
	var err error

	if activity.ID, err = stringField(row, "id"); err != nil {
		return nil, err
	}
	if activity.UserID, err = stringField(row, "user_id"); err != nil {
		return nil, err
	}
	if activity.Description, err = stringField(row, "description"); err != nil {
		return nil, err
	}
	if activity.StartedAt, err = timeField(row, "started_at"); err != nil {
		return nil, err
	}
	if activity.CreatedAt, err = timeField(row, "created_at"); err != nil {
		return nil, err
	}
	if activity.CategoryID, err = optionalStringField(row, "category_id"); err != nil {
		return nil, err
	}
	if activity.FinishedAt, err = optionalTimeField(row, "finished_at"); err != nil {
		return nil, err
	}

	if tags := row["tags"]; tags != nil {
		raw, err := json.Marshal(tags)
		if err != nil {
			return nil, fmt.Errorf("activity row: tags: %w", err)
		}
		activity.Tags = raw
	}
	return activity, nil
}

func categoryFromRow(row remote.Row) (*domain.Category, error) {
	category := &domain.Category{}
	var err error

	if category.ID, err = stringField(row, "id"); err != nil {
		return nil, err
	}
	if category.UserID, err = stringField(row, "user_id"); err != nil {
		return nil, err
	}
	if category.Name, err = stringField(row, "name"); err != nil {
		return nil, err
	}
	if category.CreatedAt, err = timeField(row, "created_at"); err != nil {
		return nil, err
	}
	return category, nil
}

func stringField(row remote.Row, key string) (string, error) {
	value, ok := row[key].(string)
	if !ok {
		return "", fmt.Errorf("row field %q: expected string, got %T", key, row[key])
	}
	return value, nil
}

func optionalStringField(row remote.Row, key string) (*string, error) {
	if row[key] == nil {
		return nil, nil
	}
	value, err := stringField(row, key)
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func timeField(row remote.Row, key string) (time.Time, error) {
	value, ok := row[key].(time.Time)
	if !ok {
		return time.Time{}, fmt.Errorf("row field %q: expected time, got %T", key, row[key])
	}
	return value, nil
}

func optionalTimeField(row remote.Row, key string) (*time.Time, error) {
	if row[key] == nil {
		return nil, nil
	}
	value, err := timeField(row, key)
	if err != nil {
		return nil, err
	}
	return &value, nil
}
