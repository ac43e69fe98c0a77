package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"partnertrack/internal/db"
	"partnertrack/internal/domain"
	"partnertrack/internal/migrate"
)

// SQLiteBackend keeps the state blob in the app_state table, one row per key.
type SQLiteBackend struct {
	DB  *sql.DB
	Key string
	Now func() time.Time
	log *slog.Logger
}

// OpenSQLite opens the workspace database and applies migrations.
func OpenSQLite(ctx context.Context, workspace, key string, log *slog.Logger) (*SQLiteBackend, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return NewSQLiteBackend(conn, key, log), nil
}

// NewSQLiteBackend wraps an already migrated connection.
func NewSQLiteBackend(conn *sql.DB, key string, log *slog.Logger) *SQLiteBackend {
	if strings.TrimSpace(key) == "" {
		key = DefaultKey
	}
	if log == nil {
		log = slog.Default()
	}
	return &SQLiteBackend{DB: conn, Key: key, Now: time.Now, log: log}
}

func (b *SQLiteBackend) Load(ctx context.Context) domain.AppState {
	var value string
	err := b.DB.QueryRowContext(ctx, `SELECT value FROM app_state WHERE key=?`, b.Key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		b.log.DebugContext(ctx, "no persisted state, starting empty", slog.String("key", b.Key))
		return domain.Empty()
	}
	if err != nil {
		b.log.ErrorContext(ctx, "read state failed, starting empty", slog.String("key", b.Key), slog.Any("error", err))
		return domain.Empty()
	}
	state, err := Decode([]byte(value))
	if err != nil {
		b.log.ErrorContext(ctx, "failed to load state, starting empty", slog.String("key", b.Key), slog.Any("error", err))
		return domain.Empty()
	}
	return state
}

func (b *SQLiteBackend) Save(ctx context.Context, state domain.AppState) error {
	data, err := Encode(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	_, err = b.DB.ExecContext(ctx, `INSERT INTO app_state(key, value, updated_at) VALUES (?,?,?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		b.Key, string(data), now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Close() error { return b.DB.Close() }
