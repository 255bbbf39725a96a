package remote

import (
	"errors"
	"log"
)

// Friendly message keys looked up by the presentation layer. The apiError
// namespace matches the translation catalog.
const (
	KeyNetworkFailure         = "apiError.networkFailure"
	KeyDailyLimitReached      = "apiError.dailyLimitReached"
	KeyCategoriesLimitReached = "apiError.categoriesLimitReached"
	KeyAlreadyTracking        = "apiError.alreadyTracking"
	KeyUniqueViolation        = "apiError.uniqueViolation"
	KeyNotNullViolation       = "apiError.notNullViolation"
	KeyForeignKeyViolation    = "apiError.foreignKeyViolation"
	KeyCheckViolation         = "apiError.checkViolation"
	KeyUnexpected             = "apiError.unexpected"
)

// AsError unwraps err to a remote *Error if it is one.
func AsError(err error) (*Error, bool) {
	var re *Error
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// Classify maps any error to a friendly message key. It never fails: errors
// that are not typed data-layer errors are treated as network failures.
func Classify(err error) string {
	re, ok := AsError(err)
	if !ok {
		log.Printf("remote: unclassified error: %v", err)
		return KeyNetworkFailure
	}

	switch re.Code {
	case CodeDailyActivitiesLimit:
		log.Printf("remote: daily activity limit hit: %v", re)
		return KeyDailyLimitReached
	case CodeCategoriesLimit:
		log.Printf("remote: categories limit hit: %v", re)
		return KeyCategoriesLimitReached
	case CodeAlreadyTracking:
		log.Printf("remote: pending activity conflict: %v", re)
		return KeyAlreadyTracking
	case CodeUniqueViolation:
		log.Printf("remote: unique violation: %v", re)
		return KeyUniqueViolation
	case CodeNotNullViolation:
		log.Printf("remote: not-null violation: %v", re)
		return KeyNotNullViolation
	case CodeForeignKeyViolation:
		log.Printf("remote: foreign key violation: %v", re)
		return KeyForeignKeyViolation
	case CodeCheckViolation:
		log.Printf("remote: check violation: %v", re)
		return KeyCheckViolation
	default:
		log.Printf("remote: unexpected error: %v", re)
		return KeyUnexpected
	}
}
