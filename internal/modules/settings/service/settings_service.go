package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"appguard/internal/modules/settings/domain"
	settingsout "appguard/internal/modules/settings/port/out"
	"appguard/internal/platform/clock"
	apperrors "appguard/internal/platform/errors"
	"appguard/internal/platform/tx"
)

type SettingsService struct {
	clock clock.Clock
	store settingsout.Store
	tx    tx.Manager
}

func NewSettingsService(clock clock.Clock, store settingsout.Store) *SettingsService {
	return &SettingsService{clock: clock, store: store, tx: tx.NoopManager{}}
}

// WithTx makes Import commit all records through m.
func (s *SettingsService) WithTx(m tx.Manager) *SettingsService {
	if m != nil {
		s.tx = m
	}
	return s
}

// Load returns the stored record for appID, or the defaults when none exists.
func (s *SettingsService) Load(ctx context.Context, appID string) (domain.AppSettings, bool, error) {
	settings, err := s.store.Get(ctx, appID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return domain.Defaults(appID), false, nil
		}
		return domain.AppSettings{}, false, err
	}
	return settings, true, nil
}

func (s *SettingsService) Save(ctx context.Context, settings domain.AppSettings) (domain.AppSettings, error) {
	settings.AppID = strings.TrimSpace(settings.AppID)
	settings.TimeoutMessage = strings.TrimSpace(settings.TimeoutMessage)
	if err := settings.Validate(); err != nil {
		return domain.AppSettings{}, err
	}
	settings.UpdatedAt = s.clock.Now().UTC()
	if err := s.store.Save(ctx, settings); err != nil {
		return domain.AppSettings{}, err
	}
	return settings, nil
}

func (s *SettingsService) Get(ctx context.Context, appID string) (domain.AppSettings, error) {
	return s.store.Get(ctx, appID)
}

func (s *SettingsService) List(ctx context.Context) ([]domain.AppSettings, error) {
	return s.store.List(ctx)
}

func (s *SettingsService) Delete(ctx context.Context, appID string) error {
	return s.store.Delete(ctx, appID)
}

func (s *SettingsService) Watch(ctx context.Context) (<-chan settingsout.Snapshot, error) {
	return s.store.Watch(ctx)
}

type document struct {
	Apps []documentEntry `yaml:"apps"`
}

type documentEntry struct {
	AppID          string `yaml:"app_id"`
	Enabled        bool   `yaml:"enabled"`
	Kind           string `yaml:"kind"`
	Content        string `yaml:"content,omitempty"`
	Threshold      string `yaml:"threshold"`
	TimeoutMessage string `yaml:"timeout_message,omitempty"`
}

func (s *SettingsService) Export(ctx context.Context, w io.Writer) error {
	list, err := s.store.List(ctx)
	if err != nil {
		return err
	}
	doc := document{Apps: make([]documentEntry, 0, len(list))}
	for _, item := range list {
		doc.Apps = append(doc.Apps, documentEntry{
			AppID:          item.AppID,
			Enabled:        item.Enabled,
			Kind:           string(item.Kind),
			Content:        item.Content,
			Threshold:      item.Threshold.String(),
			TimeoutMessage: item.TimeoutMessage,
		})
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode settings document: %w", err)
	}
	return enc.Close()
}

// Import validates the whole document before writing any record.
func (s *SettingsService) Import(ctx context.Context, r io.Reader) (int, error) {
	doc := document{}
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		return 0, fmt.Errorf("decode settings document: %w", err)
	}
	parsed := make([]domain.AppSettings, 0, len(doc.Apps))
	for i, entry := range doc.Apps {
		settings := domain.Defaults(entry.AppID)
		settings.Enabled = entry.Enabled
		settings.Content = entry.Content
		settings.TimeoutMessage = entry.TimeoutMessage
		if entry.Kind != "" {
			kind, err := domain.ParseAlertKind(entry.Kind)
			if err != nil {
				return 0, fmt.Errorf("entry %d: %w", i, err)
			}
			settings.Kind = kind
		}
		if entry.Threshold != "" {
			d, err := time.ParseDuration(entry.Threshold)
			if err != nil {
				return 0, fmt.Errorf("entry %d: %w: threshold %q", i, apperrors.ErrInvalidInput, entry.Threshold)
			}
			settings.Threshold = d
		}
		if err := settings.Validate(); err != nil {
			return 0, fmt.Errorf("entry %d: %w", i, err)
		}
		parsed = append(parsed, settings)
	}
	err := s.tx.Within(ctx, func(ctx context.Context) error {
		for _, settings := range parsed {
			if _, err := s.Save(ctx, settings); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(parsed), nil
}
