package out

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"appguard/internal/modules/settings/domain"
	settingsout "appguard/internal/modules/settings/port/out"
	"appguard/internal/platform/clock"
	apperrors "appguard/internal/platform/errors"
	"appguard/internal/platform/tx"

	_ "modernc.org/sqlite"
)

const defaultWatchPoll = 500 * time.Millisecond

type SQLiteStore struct {
	db        *sql.DB
	clock     clock.Clock
	pollEvery time.Duration

	mu       sync.Mutex
	watchers map[chan struct{}]struct{}
}

func NewSQLiteStore(dbPath string, clk clock.Clock) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	store := &SQLiteStore{
		db:        db,
		clock:     clk,
		pollEvery: defaultWatchPoll,
		watchers:  map[chan struct{}]struct{}{},
	}
	if err := store.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// WithPollInterval sets how often Watch checks for commits made by other processes.
func (s *SQLiteStore) WithPollInterval(d time.Duration) *SQLiteStore {
	if d > 0 {
		s.pollEvery = d
	}
	return s
}

// TxManager returns a manager whose transactions this store's writes join.
// Watchers are notified once per commit.
func (s *SQLiteStore) TxManager() tx.Manager {
	return tx.SQLManager{DB: s.db, AfterCommit: s.notify}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS app_settings (
  app_id TEXT PRIMARY KEY,
  enabled INTEGER NOT NULL,
  kind TEXT NOT NULL,
  content TEXT NOT NULL,
  threshold_ms INTEGER NOT NULL,
  timeout_message TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create app_settings table: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, appID string) (domain.AppSettings, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT app_id, enabled, kind, content, threshold_ms, timeout_message, updated_at
FROM app_settings WHERE app_id = ?`, appID)
	settings, err := scanSettings(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.AppSettings{}, fmt.Errorf("%w: app %s", apperrors.ErrNotFound, appID)
		}
		return domain.AppSettings{}, err
	}
	return settings, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]domain.AppSettings, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT app_id, enabled, kind, content, threshold_ms, timeout_message, updated_at
FROM app_settings ORDER BY app_id`)
	if err != nil {
		return nil, fmt.Errorf("query app settings: %w", err)
	}
	defer rows.Close()

	out := []domain.AppSettings{}
	for rows.Next() {
		settings, err := scanSettings(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, settings)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate app settings: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Save(ctx context.Context, settings domain.AppSettings) error {
	const stmt = `
INSERT INTO app_settings (app_id, enabled, kind, content, threshold_ms, timeout_message, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(app_id) DO UPDATE SET
  enabled=excluded.enabled,
  kind=excluded.kind,
  content=excluded.content,
  threshold_ms=excluded.threshold_ms,
  timeout_message=excluded.timeout_message,
  updated_at=excluded.updated_at;
`
	_, err := tx.From(ctx, s.db).ExecContext(ctx, stmt,
		settings.AppID,
		settings.Enabled,
		string(settings.Kind),
		settings.Content,
		settings.Threshold.Milliseconds(),
		settings.TimeoutMessage,
		settings.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert app settings: %w", err)
	}
	if !tx.Active(ctx) {
		s.notify()
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, appID string) error {
	res, err := tx.From(ctx, s.db).ExecContext(ctx, `DELETE FROM app_settings WHERE app_id = ?`, appID)
	if err != nil {
		return fmt.Errorf("delete app settings: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: app %s", apperrors.ErrNotFound, appID)
	}
	if !tx.Active(ctx) {
		s.notify()
	}
	return nil
}

func (s *SQLiteStore) Watch(ctx context.Context) (<-chan settingsout.Snapshot, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("open watch connection: %w", err)
	}
	version, err := dataVersion(ctx, conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	changed := s.register()
	out := make(chan settingsout.Snapshot, 1)
	go func() {
		defer close(out)
		defer s.unregister(changed)
		defer conn.Close()

		send := func() bool {
			list, err := s.List(ctx)
			if err != nil && ctx.Err() != nil {
				return false
			}
			select {
			case out <- settingsout.Snapshot{Settings: list, Err: err}:
				return true
			case <-ctx.Done():
				return false
			}
		}
		if !send() {
			return
		}

		ticker := s.clock.NewTicker(s.pollEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-changed:
				if v, err := dataVersion(ctx, conn); err == nil {
					version = v
				}
			case <-ticker.Chan():
				v, err := dataVersion(ctx, conn)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					select {
					case out <- settingsout.Snapshot{Err: err}:
					case <-ctx.Done():
						return
					}
					continue
				}
				if v == version {
					continue
				}
				version = v
			}
			if !send() {
				return
			}
		}
	}()
	return out, nil
}

func (s *SQLiteStore) register() chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.watchers[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

func (s *SQLiteStore) unregister(ch chan struct{}) {
	s.mu.Lock()
	delete(s.watchers, ch)
	s.mu.Unlock()
}

func (s *SQLiteStore) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSettings(row rowScanner) (domain.AppSettings, error) {
	var (
		settings    domain.AppSettings
		kind        string
		thresholdMS int64
		updatedAt   string
	)
	if err := row.Scan(&settings.AppID, &settings.Enabled, &kind, &settings.Content, &thresholdMS, &settings.TimeoutMessage, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.AppSettings{}, err
		}
		return domain.AppSettings{}, fmt.Errorf("scan app settings: %w", err)
	}
	settings.Kind = domain.AlertKind(kind)
	settings.Threshold = time.Duration(thresholdMS) * time.Millisecond
	if parsed, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		settings.UpdatedAt = parsed
	}
	return settings, nil
}

func dataVersion(ctx context.Context, conn *sql.Conn) (int64, error) {
	var v int64
	if err := conn.QueryRowContext(ctx, `PRAGMA data_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read data_version: %w", err)
	}
	return v, nil
}

var _ settingsout.Store = (*SQLiteStore)(nil)
