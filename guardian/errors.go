package guardian

import "errors"

// ErrDuplicateSource is returned when a source with the same URL already exists.
var ErrDuplicateSource = errors.New("guardian: source with this URL already exists")

// ErrInvalidInput is returned when source input fails validation.
var ErrInvalidInput = errors.New("guardian: invalid input")

// ErrQuotaExceeded is returned when the tenant's plan source limit is reached.
var ErrQuotaExceeded = errors.New("guardian: source quota exceeded")

// ErrNotFound is returned when the referenced record does not exist.
var ErrNotFound = errors.New("guardian: not found")
