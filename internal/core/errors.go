package core

import "errors"

// Errors shared by several services.
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrTrackerNotFound = errors.New("tracker not found")
	ErrPremiumRequired = errors.New("premium subscription required")
	ErrInvalidInput    = errors.New("invalid input")
)
