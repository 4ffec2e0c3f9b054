package domain

import "time"

type ActivityType string

const (
	ActivityDaemonStarted       ActivityType = "daemon_started"
	ActivityDaemonStopped       ActivityType = "daemon_stopped"
	ActivityAlertDispatched     ActivityType = "alert_dispatched"
	ActivityPresentationFailed  ActivityType = "presentation_failed"
	ActivitySourceUnavailable   ActivityType = "source_unavailable"
	ActivitySourceResumed       ActivityType = "source_resumed"
	ActivityLoopRestarted       ActivityType = "loop_restarted"
	ActivitySubscriptionFailure ActivityType = "subscription_failed"
)

type ActivityEvent struct {
	ID         string            `json:"id"`
	Type       ActivityType      `json:"type"`
	AppID      string            `json:"app_id,omitempty"`
	Message    string            `json:"message"`
	Fields     map[string]string `json:"fields,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}
