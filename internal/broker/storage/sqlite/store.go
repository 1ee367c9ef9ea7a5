package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/pagemesh/pagemesh/internal/broker/storage"
	"github.com/pagemesh/pagemesh/internal/broker/storage/sqlite/migrations"
	"github.com/pagemesh/pagemesh/internal/platform/storage/sqlitemigrate"
	_ "modernc.org/sqlite"
)

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store implements broker persistence over SQLite.
//
// One SQLite file backs both the registry and the subscription set so a
// restart restores exactly the shared-element surface that existed before.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a broker SQLite store and applies bundled migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, "."); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the underlying SQLite database. Nil-safe so callers can
// defer it in all startup paths.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// UpsertRegistration inserts or replaces a registration.
func (s *Store) UpsertRegistration(ctx context.Context, reg storage.Registration) error {
	const query = `
INSERT INTO shared_elements (domain, element_id, source_room_id, permission, scope, path, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (domain, element_id) DO UPDATE SET
    source_room_id = excluded.source_room_id,
    permission = excluded.permission,
    scope = excluded.scope,
    path = excluded.path,
    updated_at = excluded.updated_at;
`
	updatedAt := reg.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	_, err := s.sqlDB.ExecContext(ctx, query,
		reg.Domain, reg.ElementID, reg.SourceRoomID,
		string(reg.Permission), string(reg.Scope), reg.Path,
		toMillis(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert registration %s: %w", reg.Key(), err)
	}
	return nil
}

// GetRegistration returns a registration or storage.ErrNotFound.
func (s *Store) GetRegistration(ctx context.Context, domain, elementID string) (storage.Registration, error) {
	const query = `
SELECT domain, element_id, source_room_id, permission, scope, path, updated_at
FROM shared_elements
WHERE domain = ? AND element_id = ?;
`
	row := s.sqlDB.QueryRowContext(ctx, query, domain, elementID)
	reg, err := scanRegistration(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return storage.Registration{}, storage.ErrNotFound
		}
		return storage.Registration{}, fmt.Errorf("get registration %s#%s: %w", domain, elementID, err)
	}
	return reg, nil
}

// ListRegistrations returns all registrations for a domain ordered by
// element id.
func (s *Store) ListRegistrations(ctx context.Context, domain string) ([]storage.Registration, error) {
	const query = `
SELECT domain, element_id, source_room_id, permission, scope, path, updated_at
FROM shared_elements
WHERE domain = ?
ORDER BY element_id;
`
	rows, err := s.sqlDB.QueryContext(ctx, query, domain)
	if err != nil {
		return nil, fmt.Errorf("list registrations for %s: %w", domain, err)
	}
	defer rows.Close()

	var regs []storage.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registrations: %w", err)
	}
	return regs, nil
}

// DeleteRegistration removes a registration if present.
func (s *Store) DeleteRegistration(ctx context.Context, domain, elementID string) error {
	_, err := s.sqlDB.ExecContext(ctx,
		"DELETE FROM shared_elements WHERE domain = ? AND element_id = ?",
		domain, elementID,
	)
	if err != nil {
		return fmt.Errorf("delete registration %s#%s: %w", domain, elementID, err)
	}
	return nil
}

// AddSubscription records a subscriber room with set semantics.
func (s *Store) AddSubscription(ctx context.Context, elementKey, roomID string) error {
	_, err := s.sqlDB.ExecContext(ctx,
		"INSERT OR IGNORE INTO subscriptions (element_key, room_id, created_at) VALUES (?, ?, ?)",
		elementKey, roomID, toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("add subscription %s -> %s: %w", elementKey, roomID, err)
	}
	return nil
}

// ListSubscribers returns subscriber room ids for an element key.
func (s *Store) ListSubscribers(ctx context.Context, elementKey string) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		"SELECT room_id FROM subscriptions WHERE element_key = ? ORDER BY room_id",
		elementKey,
	)
	if err != nil {
		return nil, fmt.Errorf("list subscribers for %s: %w", elementKey, err)
	}
	defer rows.Close()

	var roomIDs []string
	for rows.Next() {
		var roomID string
		if err := rows.Scan(&roomID); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		roomIDs = append(roomIDs, roomID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscribers: %w", err)
	}
	return roomIDs, nil
}

// RemoveSubscription drops one subscriber. Missing rows are not an error.
func (s *Store) RemoveSubscription(ctx context.Context, elementKey, roomID string) error {
	_, err := s.sqlDB.ExecContext(ctx,
		"DELETE FROM subscriptions WHERE element_key = ? AND room_id = ?",
		elementKey, roomID,
	)
	if err != nil {
		return fmt.Errorf("remove subscription %s -> %s: %w", elementKey, roomID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegistration(row rowScanner) (storage.Registration, error) {
	var reg storage.Registration
	var permission, scope string
	var updatedAt int64
	if err := row.Scan(&reg.Domain, &reg.ElementID, &reg.SourceRoomID, &permission, &scope, &reg.Path, &updatedAt); err != nil {
		return storage.Registration{}, err
	}
	reg.Permission = storage.Permission(permission)
	reg.Scope = storage.Scope(scope)
	reg.UpdatedAt = fromMillis(updatedAt)
	return reg, nil
}
