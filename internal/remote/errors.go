package remote

import "fmt"

// Postgres SQLSTATE codes surfaced by the data layer.
const (
	CodeUniqueViolation     = "23505"
	CodeNotNullViolation    = "23502"
	CodeForeignKeyViolation = "23503"
	CodeCheckViolation      = "23514"
)

// Custom codes raised by database triggers and constraints.
const (
	CodeCategoriesLimit      = "P1001"
	CodeDailyActivitiesLimit = "P1002"
	CodeAlreadyTracking      = "P1003"
)

// Error is a typed data-layer failure. Every error returned by a DataClient
// implementation that originates in the backing store is an *Error; anything
// else (network, context cancellation) is passed through untyped.
type Error struct {
	Code    string
	Message string
	Details string
}

func (e *Error) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("remote error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("remote error %s: %s (%s)", e.Code, e.Message, e.Details)
}

// IsCode reports whether err is a remote *Error with the given code.
func IsCode(err error, code string) bool {
	re, ok := AsError(err)
	return ok && re.Code == code
}
