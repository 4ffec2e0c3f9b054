package domain

import "time"

// Alert is what a presentation channel receives.
type Alert struct {
	ID        string        `json:"id"`
	AppID     string        `json:"app_id"`
	Kind      PayloadKind   `json:"kind"`
	Content   string        `json:"content"`
	Message   string        `json:"message"`
	Reason    Reason        `json:"reason"`
	Threshold time.Duration `json:"threshold"`
	Elapsed   time.Duration `json:"elapsed"`
	StartedAt time.Time     `json:"started_at"`
	At        time.Time     `json:"at"`
}

// NewAlert selects the content for the payload kind. Text alerts carry the
// timeout message; media alerts carry the path with the message as caption.
func NewAlert(id string, d Decision) Alert {
	msg := d.Config.Message()
	kind := d.Config.Payload.Kind
	if kind == "" {
		kind = PayloadText
	}
	content := d.Config.Payload.Content
	if kind == PayloadText {
		content = msg
	}
	return Alert{
		ID:        id,
		AppID:     d.Config.AppID,
		Kind:      kind,
		Content:   content,
		Message:   msg,
		Reason:    d.Reason,
		Threshold: d.Config.Threshold,
		Elapsed:   d.Elapsed,
		StartedAt: d.StartedAt,
		At:        d.At,
	}
}

// AsText degrades a media alert to a plain text notification.
func (a Alert) AsText() Alert {
	if a.Kind == PayloadText {
		return a
	}
	out := a
	out.Kind = PayloadText
	out.Content = a.Message
	if a.Content != "" {
		out.Content = a.Message + " (" + a.Content + ")"
	}
	return out
}
