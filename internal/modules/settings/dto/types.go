package dto

import "time"

// SetInput updates only the fields that are non-nil.
type SetInput struct {
	AppID          string
	Enabled        *bool
	Kind           *string
	Content        *string
	Threshold      *time.Duration
	TimeoutMessage *string
}

type SettingsOutput struct {
	AppID          string
	Enabled        bool
	Kind           string
	Content        string
	Threshold      time.Duration
	TimeoutMessage string
	UpdatedAt      time.Time
}

type SnapshotOutput struct {
	Settings []SettingsOutput
	Err      error
}

type ImportOutput struct {
	Imported int
}
