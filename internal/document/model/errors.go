package model

import "errors"

// Failure taxonomy for backend writes. Every intent boundary maps whatever
// the transport produced onto one of these before anything else sees it.
var (
	// ErrWriteRejected: the backend declined the mutation. Covers
	// authorization failures and domain rejections alike.
	ErrWriteRejected = errors.New("write rejected")

	// ErrUnavailable: transport-level failure, presumed transient.
	ErrUnavailable = errors.New("backend unavailable")
)

// ValidationError is a locally rejected input. It never reaches the backend.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// IsValidation reports whether err is a locally rejected input.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
