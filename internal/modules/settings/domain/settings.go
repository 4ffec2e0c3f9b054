package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type AlertKind string

const (
	AlertText  AlertKind = "text"
	AlertImage AlertKind = "image"
	AlertAudio AlertKind = "audio"
	AlertVideo AlertKind = "video"
)

const DefaultThreshold = 30 * time.Minute

var ErrInvalidSettings = errors.New("invalid app settings")

// AppSettings is the persisted per-application monitoring record.
type AppSettings struct {
	AppID          string
	Enabled        bool
	Kind           AlertKind
	Content        string
	Threshold      time.Duration
	TimeoutMessage string
	UpdatedAt      time.Time
}

// Defaults returns the record a freshly selected application starts with.
func Defaults(appID string) AppSettings {
	return AppSettings{
		AppID:     appID,
		Enabled:   false,
		Kind:      AlertText,
		Threshold: DefaultThreshold,
	}
}

func (s AppSettings) Validate() error {
	if strings.TrimSpace(s.AppID) == "" {
		return fmt.Errorf("%w: app id is required", ErrInvalidSettings)
	}
	if s.Threshold <= 0 {
		return fmt.Errorf("%w: threshold must be positive", ErrInvalidSettings)
	}
	if err := s.Kind.Validate(); err != nil {
		return err
	}
	if s.Kind != AlertText && strings.TrimSpace(s.Content) == "" && s.Enabled {
		return fmt.Errorf("%w: %s alert requires a media path", ErrInvalidSettings, s.Kind)
	}
	return nil
}

func (k AlertKind) Validate() error {
	switch k {
	case AlertText, AlertImage, AlertAudio, AlertVideo:
		return nil
	default:
		return fmt.Errorf("%w: unknown alert kind %q", ErrInvalidSettings, string(k))
	}
}

func ParseAlertKind(raw string) (AlertKind, error) {
	kind := AlertKind(strings.ToLower(strings.TrimSpace(raw)))
	if err := kind.Validate(); err != nil {
		return "", err
	}
	return kind, nil
}
