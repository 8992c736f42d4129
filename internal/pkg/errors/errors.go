package errors

import "errors"

var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
	ErrInvalid   = errors.New("invalid")
	ErrConflict  = errors.New("conflict")
	// ErrExternal wraps failures of the like, player-info and shortener APIs.
	ErrExternal = errors.New("external service")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}
