package domain

import (
	"fmt"
	"sort"
	"time"
)

type State string

const (
	StateIdle    State = "idle"
	StateActive  State = "active"
	StateAlerted State = "alerted"
)

type DedupPolicy string

const (
	// DedupSession allows one alert per continuous foreground interval.
	DedupSession DedupPolicy = "session"
	// DedupProcess allows one alert per app for the lifetime of the tracker.
	DedupProcess DedupPolicy = "process"
)

func ParseDedupPolicy(raw string) (DedupPolicy, error) {
	switch DedupPolicy(raw) {
	case DedupSession, DedupProcess:
		return DedupPolicy(raw), nil
	case "":
		return DedupSession, nil
	default:
		return "", fmt.Errorf("unknown dedup policy: %s", raw)
	}
}

type Reason string

const ReasonThreshold Reason = "threshold"

type Session struct {
	AppID     string    `json:"app_id"`
	StartedAt time.Time `json:"started_at"`
	Alerted   bool      `json:"alerted"`
}

func (s Session) State() State {
	if s.Alerted {
		return StateAlerted
	}
	return StateActive
}

// Decision asks the dispatcher to alert once for a session. Config is the one
// in effect when the decision was made.
type Decision struct {
	Config    MonitorConfig
	Reason    Reason
	StartedAt time.Time
	At        time.Time
	Elapsed   time.Duration
}

// Tracker holds the live session of every monitored app. It is not safe for
// concurrent use; the polling loop owns it.
type Tracker struct {
	policy      DedupPolicy
	sessions    map[string]*Session
	everAlerted map[string]struct{}
}

func NewTracker(policy DedupPolicy) *Tracker {
	if policy == "" {
		policy = DedupSession
	}
	return &Tracker{
		policy:      policy,
		sessions:    map[string]*Session{},
		everAlerted: map[string]struct{}{},
	}
}

// Apply feeds one event. It returns a decision when an exit closes a session
// whose final elapsed time reached the threshold before any alert fired.
func (t *Tracker) Apply(ev Event, snap *Snapshot) (Decision, bool) {
	cfg, monitored := snap.Lookup(ev.AppID)
	live, open := t.sessions[ev.AppID]

	switch ev.Kind {
	case ForegroundEnter:
		if !monitored || open {
			// Duplicate enters keep the original start.
			return Decision{}, false
		}
		s := &Session{AppID: ev.AppID, StartedAt: ev.At}
		if t.policy == DedupProcess {
			_, s.Alerted = t.everAlerted[ev.AppID]
		}
		t.sessions[ev.AppID] = s
		return Decision{}, false

	case ForegroundExit:
		if !open {
			return Decision{}, false
		}
		delete(t.sessions, ev.AppID)
		if !monitored || live.Alerted {
			return Decision{}, false
		}
		elapsed := ev.At.Sub(live.StartedAt)
		if elapsed < cfg.Threshold {
			return Decision{}, false
		}
		t.markAlerted(live)
		return Decision{Config: cfg, Reason: ReasonThreshold, StartedAt: live.StartedAt, At: ev.At, Elapsed: elapsed}, true
	}
	return Decision{}, false
}

// Check runs the mid-session pass at now. Sessions whose app is no longer in
// the snapshot are dropped without alerting.
func (t *Tracker) Check(now time.Time, snap *Snapshot) []Decision {
	var out []Decision
	for _, appID := range t.appIDs() {
		live := t.sessions[appID]
		cfg, monitored := snap.Lookup(appID)
		if !monitored {
			delete(t.sessions, appID)
			continue
		}
		if live.Alerted {
			continue
		}
		elapsed := now.Sub(live.StartedAt)
		if elapsed < cfg.Threshold {
			continue
		}
		t.markAlerted(live)
		out = append(out, Decision{Config: cfg, Reason: ReasonThreshold, StartedAt: live.StartedAt, At: now, Elapsed: elapsed})
	}
	return out
}

// Reset drops every live session. Apps alerted under DedupProcess stay
// remembered.
func (t *Tracker) Reset() {
	clear(t.sessions)
}

func (t *Tracker) State(appID string) State {
	live, ok := t.sessions[appID]
	if !ok {
		return StateIdle
	}
	return live.State()
}

// Sessions returns a copy of the live sessions ordered by app id.
func (t *Tracker) Sessions() []Session {
	out := make([]Session, 0, len(t.sessions))
	for _, appID := range t.appIDs() {
		out = append(out, *t.sessions[appID])
	}
	return out
}

func (t *Tracker) Len() int {
	return len(t.sessions)
}

func (t *Tracker) markAlerted(s *Session) {
	s.Alerted = true
	if t.policy == DedupProcess {
		t.everAlerted[s.AppID] = struct{}{}
	}
}

func (t *Tracker) appIDs() []string {
	ids := make([]string, 0, len(t.sessions))
	for id := range t.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
