package repositories

import "errors"

// ErrNotFound is returned when a requested record does not exist.
type ErrNotFound struct{}

func (e *ErrNotFound) Error() string {
	return "not found"
}

func IsNotFound(err error) bool {
	var notFound *ErrNotFound
	return errors.As(err, &notFound)
}
