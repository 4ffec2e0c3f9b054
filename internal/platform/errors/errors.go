package apperrors

import "errors"

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotFound         = errors.New("not found")
	ErrDaemonNotRunning = errors.New("appguard daemon is not running")
)
