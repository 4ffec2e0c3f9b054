package domain

import (
	"fmt"
	"sort"
	"time"
)

type EventKind string

const (
	ForegroundEnter EventKind = "enter"
	ForegroundExit  EventKind = "exit"
)

func (k EventKind) Validate() error {
	switch k {
	case ForegroundEnter, ForegroundExit:
		return nil
	default:
		return fmt.Errorf("unknown event kind: %s", string(k))
	}
}

// Event is one foreground transition reported by the platform.
type Event struct {
	AppID string    `json:"app_id"`
	Kind  EventKind `json:"kind"`
	At    time.Time `json:"at"`
}

// InWindow reports whether e falls in the half-open window [from, to).
func (e Event) InWindow(from, to time.Time) bool {
	return !e.At.Before(from) && e.At.Before(to)
}

// SortEvents orders events by timestamp, keeping the source order for ties.
func SortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].At.Before(events[j].At)
	})
}
