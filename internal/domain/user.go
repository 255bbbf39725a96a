package domain

import "time"

// User is an authenticated account owning activities and categories.
type User struct {
	ID        string
	Email     string
	CreatedAt time.Time
}
