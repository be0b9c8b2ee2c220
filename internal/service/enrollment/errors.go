package enrollment

import "errors"

// Sentinel errors for the enrollment service layer.
var (
	ErrNotFound          = errors.New("enrollment not found")
	ErrInvalidTransition = errors.New("invalid enrollment status transition")
	ErrInvalidInput      = errors.New("invalid enrollment input")
)
