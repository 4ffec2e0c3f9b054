package domain

import "errors"

var (
	// ErrSourceUnavailable means the platform refused access to usage events.
	// Polling stays suspended until an external re-authorization signal.
	ErrSourceUnavailable = errors.New("event source unavailable")
	// ErrSourceTransient means one query failed; the window is retried next tick.
	ErrSourceTransient = errors.New("event source query failed")
	// ErrPresentationFailure means an alert could not be shown on a channel.
	ErrPresentationFailure = errors.New("alert presentation failed")
	// ErrSubscriptionFailure means the settings feed broke; the last snapshot stays in effect.
	ErrSubscriptionFailure = errors.New("settings subscription failed")
)
