package dto

import "time"

type SessionOutput struct {
	AppID     string
	StartedAt time.Time
	State     string
}

type StatusOutput struct {
	State      string
	Cursor     time.Time
	LastTickAt time.Time
	Ticks      uint64
	LastError  string
	Monitored  []string
	Sessions   []SessionOutput
	Restarts   int
	StartedAt  time.Time
	HTTPAddr   string
}

type DaemonStatusOutput struct {
	Running    bool
	PID        int
	SocketPath string
	Status     StatusOutput
}

type ActivityOutput struct {
	ID         string
	Type       string
	AppID      string
	Message    string
	Fields     map[string]string
	OccurredAt time.Time
}

// EventInput is a manually recorded foreground transition. A zero At means now.
type EventInput struct {
	AppID string
	Kind  string
	At    time.Time
}
