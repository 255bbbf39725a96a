package service

import (
	"context"

	"example.com/timetrack/internal/domain"
	"example.com/timetrack/internal/remote"
)

const categoriesCollection = "categories"

// Categories is the typed facade over the categories collection.
type Categories struct {
	client remote.DataClient
}

// NewCategories constructs the facade.
func NewCategories(client remote.DataClient) *Categories {
	return &Categories{client: client}
}

// ByUser returns every category owned by the user.
func (s *Categories) ByUser(ctx context.Context, userID string) ([]domain.Category, error) {
	rows, err := s.client.Get(ctx, categoriesCollection, remote.Filter{"user_id": userID})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Category, 0, len(rows))
	for _, row := range rows {
		category, err := categoryFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *category)
	}
	return out, nil
}

// Insert stores a new category. The per-user category limit is enforced by
// the remote store and surfaces as a categories-limit error.
func (s *Categories) Insert(ctx context.Context, category domain.Category) (*domain.Category, error) {
	row := remote.Row{
		"user_id": category.UserID,
		"name":    category.Name,
	}
	inserted, err := s.client.Insert(ctx, categoriesCollection, row)
	if err != nil {
		return nil, err
	}
	return categoryFromRow(inserted)
}

// Delete removes the user's category and returns it, nil when nothing
// matched.
func (s *Categories) Delete(ctx context.Context, id, userID string) (*domain.Category, error) {
	row, err := s.client.Delete(ctx, categoriesCollection, remote.Filter{"id": id, "user_id": userID})
	if err != nil || row == nil {
		return nil, err
	}
	return categoryFromRow(row)
}
