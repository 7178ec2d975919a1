package domain

import "errors"

var (
	// ErrMissingState is returned when an environment update carries no mental state.
	ErrMissingState = errors.New("mental state is required")
	// ErrClassifierUnavailable wraps any failure of the external classifier.
	ErrClassifierUnavailable = errors.New("classifier unavailable")
)
