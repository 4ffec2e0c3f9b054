package domain

import (
	"fmt"
	"sort"
	"time"
)

type PayloadKind string

const (
	PayloadText  PayloadKind = "text"
	PayloadImage PayloadKind = "image"
	PayloadAudio PayloadKind = "audio"
	PayloadVideo PayloadKind = "video"
)

// AlertPayload is the tagged content shown when a threshold is exceeded.
// Content is the text for PayloadText and a media path otherwise.
type AlertPayload struct {
	Kind    PayloadKind
	Content string
}

type MonitorConfig struct {
	AppID          string
	Enabled        bool
	Threshold      time.Duration
	Payload        AlertPayload
	TimeoutMessage string
}

// Message is the timeout message, or a generated one naming the threshold.
func (c MonitorConfig) Message() string {
	if c.TimeoutMessage != "" {
		return c.TimeoutMessage
	}
	return DefaultMessage(c.AppID, c.Threshold)
}

func DefaultMessage(appID string, threshold time.Duration) string {
	if threshold > 0 && threshold%time.Minute == 0 {
		minutes := int(threshold / time.Minute)
		unit := "minutes"
		if minutes == 1 {
			unit = "minute"
		}
		return fmt.Sprintf("You have used %s for %d %s", appID, minutes, unit)
	}
	return fmt.Sprintf("You have used %s for %s", appID, threshold)
}

// Snapshot is an immutable view of the enabled monitor configs keyed by app id.
type Snapshot struct {
	byApp map[string]MonitorConfig
}

// NewSnapshot keeps only enabled configs with a positive threshold.
// When an app id repeats, the last entry wins.
func NewSnapshot(configs []MonitorConfig) *Snapshot {
	byApp := make(map[string]MonitorConfig, len(configs))
	for _, c := range configs {
		if !c.Enabled || c.Threshold <= 0 || c.AppID == "" {
			delete(byApp, c.AppID)
			continue
		}
		byApp[c.AppID] = c
	}
	return &Snapshot{byApp: byApp}
}

func (s *Snapshot) Lookup(appID string) (MonitorConfig, bool) {
	if s == nil {
		return MonitorConfig{}, false
	}
	c, ok := s.byApp[appID]
	return c, ok
}

func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.byApp)
}

func (s *Snapshot) AppIDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.byApp))
	for id := range s.byApp {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
