package usecase_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"appguard/internal/modules/settings/domain"
	settingsdto "appguard/internal/modules/settings/dto"
	portout "appguard/internal/modules/settings/port/out"
	"appguard/internal/modules/settings/service"
	"appguard/internal/modules/settings/usecase"
	apperrors "appguard/internal/platform/errors"
)

type memoryStore struct {
	mu    sync.Mutex
	items map[string]domain.AppSettings
}

func newMemoryStore() *memoryStore {
	return &memoryStore{items: map[string]domain.AppSettings{}}
}

func (m *memoryStore) Get(_ context.Context, appID string) (domain.AppSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[appID]
	if !ok {
		return domain.AppSettings{}, apperrors.ErrNotFound
	}
	return item, nil
}

func (m *memoryStore) List(context.Context) ([]domain.AppSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.AppSettings, 0, len(m.items))
	for _, item := range m.items {
		out = append(out, item)
	}
	return out, nil
}

func (m *memoryStore) Save(_ context.Context, s domain.AppSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[s.AppID] = s
	return nil
}

func (m *memoryStore) Delete(_ context.Context, appID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[appID]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.items, appID)
	return nil
}

func (m *memoryStore) Watch(ctx context.Context) (<-chan portout.Snapshot, error) {
	list, _ := m.List(ctx)
	out := make(chan portout.Snapshot, 1)
	out <- portout.Snapshot{Settings: list}
	close(out)
	return out, nil
}

func ptr[T any](v T) *T { return &v }

func TestSetAppliesOnlyProvidedFieldsOverDefaults(t *testing.T) {
	t.Parallel()
	store := newMemoryStore()
	clk := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	uc := usecase.NewInteractor(service.NewSettingsService(clk, store))

	out, err := uc.Set(context.Background(), settingsdto.SetInput{AppID: "game", Enabled: ptr(true)})
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if !out.Enabled || out.Kind != "text" || out.Threshold != 30*time.Minute {
		t.Fatalf("expected defaults plus enabled, got %+v", out)
	}
	if !out.UpdatedAt.Equal(clk.Now()) {
		t.Fatalf("expected updated_at from clock, got %s", out.UpdatedAt)
	}

	out, err = uc.Set(context.Background(), settingsdto.SetInput{AppID: "game", Threshold: ptr(45 * time.Minute), TimeoutMessage: ptr("  stop now ")})
	if err != nil {
		t.Fatalf("second set: %v", err)
	}
	if !out.Enabled || out.Threshold != 45*time.Minute || out.TimeoutMessage != "stop now" {
		t.Fatalf("expected merged update, got %+v", out)
	}
}

func TestSetRejectsInvalidInput(t *testing.T) {
	t.Parallel()
	uc := usecase.NewInteractor(service.NewSettingsService(clockwork.NewFakeClock(), newMemoryStore()))
	if _, err := uc.Set(context.Background(), settingsdto.SetInput{AppID: " "}); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected invalid input for blank app id, got %v", err)
	}
	if _, err := uc.Set(context.Background(), settingsdto.SetInput{AppID: "x", Kind: ptr("smell")}); !errors.Is(err, domain.ErrInvalidSettings) {
		t.Fatalf("expected invalid kind, got %v", err)
	}
	if _, err := uc.Set(context.Background(), settingsdto.SetInput{AppID: "x", Threshold: ptr(time.Duration(0))}); !errors.Is(err, domain.ErrInvalidSettings) {
		t.Fatalf("expected invalid threshold, got %v", err)
	}
	if _, err := uc.Set(context.Background(), settingsdto.SetInput{AppID: "x", Enabled: ptr(true), Kind: ptr("video")}); !errors.Is(err, domain.ErrInvalidSettings) {
		t.Fatalf("expected media path requirement, got %v", err)
	}
}

func TestExportThenImportIntoFreshStore(t *testing.T) {
	t.Parallel()
	src := newMemoryStore()
	uc := usecase.NewInteractor(service.NewSettingsService(clockwork.NewFakeClock(), src))
	if _, err := uc.Set(context.Background(), settingsdto.SetInput{AppID: "video.player", Enabled: ptr(true), Kind: ptr("image"), Content: ptr("/img/stop.png"), Threshold: ptr(90 * time.Second)}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	buf := bytes.Buffer{}
	if err := uc.Export(context.Background(), &buf); err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(buf.String(), "threshold: 1m30s") {
		t.Fatalf("expected human readable threshold in export: %s", buf.String())
	}

	dst := newMemoryStore()
	other := usecase.NewInteractor(service.NewSettingsService(clockwork.NewFakeClock(), dst))
	res, err := other.Import(context.Background(), &buf)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Imported != 1 {
		t.Fatalf("expected 1 imported, got %d", res.Imported)
	}
	got, err := other.Get(context.Background(), "video.player")
	if err != nil {
		t.Fatalf("get imported: %v", err)
	}
	if got.Kind != "image" || got.Content != "/img/stop.png" || got.Threshold != 90*time.Second {
		t.Fatalf("unexpected imported record: %+v", got)
	}
}

func TestImportIsAllOrNothing(t *testing.T) {
	t.Parallel()
	store := newMemoryStore()
	uc := usecase.NewInteractor(service.NewSettingsService(clockwork.NewFakeClock(), store))
	doc := `
apps:
  - app_id: good
    enabled: true
    threshold: 10m
  - app_id: bad
    threshold: soon
`
	if _, err := uc.Import(context.Background(), strings.NewReader(doc)); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected invalid threshold error, got %v", err)
	}
	if list, _ := uc.List(context.Background()); len(list) != 0 {
		t.Fatalf("no record should be written on failed import, got %+v", list)
	}
}

func TestWatchForwardsSnapshots(t *testing.T) {
	t.Parallel()
	store := newMemoryStore()
	uc := usecase.NewInteractor(service.NewSettingsService(clockwork.NewFakeClock(), store))
	if _, err := uc.Set(context.Background(), settingsdto.SetInput{AppID: "a", Enabled: ptr(true)}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	feed, err := uc.Watch(context.Background())
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	snap, ok := <-feed
	if !ok || len(snap.Settings) != 1 || snap.Settings[0].AppID != "a" {
		t.Fatalf("unexpected snapshot: %+v ok=%t", snap, ok)
	}
	if _, ok := <-feed; ok {
		t.Fatalf("feed should close when the store feed closes")
	}
}
