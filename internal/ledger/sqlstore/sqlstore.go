// Package sqlstore persists the ledger in SQLite or Postgres through sqlx.
// Timestamps are stored as Unix milliseconds so both engines share one schema.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/DukeRupert/genapi/internal"
	"github.com/DukeRupert/genapi/internal/domain"
	"github.com/DukeRupert/genapi/internal/ledger"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// Store is a SQL-backed ledger.Store.
type Store struct {
	db *sqlx.DB
}

var _ ledger.Store = (*Store)(nil)

type subscriptionRow struct {
	CallerID        string `db:"caller_id"`
	Tier            string `db:"tier"`
	ImagesUsedToday int    `db:"images_used_today"`
	TotalImagesUsed int    `db:"total_images_used"`
	LastResetMs     int64  `db:"last_reset_ms"`
	CreatedAtMs     int64  `db:"created_at_ms"`
}

func (r subscriptionRow) toDomain() *domain.Subscription {
	return &domain.Subscription{
		CallerID:        r.CallerID,
		Tier:            domain.SubscriptionTier(r.Tier),
		ImagesUsedToday: r.ImagesUsedToday,
		TotalImagesUsed: r.TotalImagesUsed,
		LastReset:       time.UnixMilli(r.LastResetMs).UTC(),
		CreatedAt:       time.UnixMilli(r.CreatedAtMs).UTC(),
	}
}

func fromDomain(sub *domain.Subscription) subscriptionRow {
	return subscriptionRow{
		CallerID:        sub.CallerID,
		Tier:            string(sub.Tier),
		ImagesUsedToday: sub.ImagesUsedToday,
		TotalImagesUsed: sub.TotalImagesUsed,
		LastResetMs:     sub.LastReset.UnixMilli(),
		CreatedAtMs:     sub.CreatedAt.UnixMilli(),
	}
}

// Open connects to the database, runs migrations and returns a Store.
// For SQLite, dsn is a file path or ":memory:".
func Open(driver, dsn string) (*Store, error) {
	var dialect string
	switch driver {
	case DriverSQLite:
		dialect = "sqlite3"
		if dsn != ":memory:" && !strings.Contains(dsn, "?") {
			dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		dialect = "postgres"
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if driver == DriverSQLite {
		// One connection: SQLite serializes writers anyway and ":memory:"
		// databases are per connection.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := internal.RunMigrations(db.DB, dialect); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

const selectColumns = `caller_id, tier, images_used_today, total_images_used, last_reset_ms, created_at_ms`

func (s *Store) Get(ctx context.Context, callerID string) (*domain.Subscription, error) {
	query := s.db.Rebind(`SELECT ` + selectColumns + ` FROM subscriptions WHERE caller_id = ?`)

	var row subscriptionRow
	err := s.db.GetContext(ctx, &row, query, callerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) Put(ctx context.Context, sub *domain.Subscription) error {
	query := `
		INSERT INTO subscriptions (caller_id, tier, images_used_today, total_images_used, last_reset_ms, created_at_ms)
		VALUES (:caller_id, :tier, :images_used_today, :total_images_used, :last_reset_ms, :created_at_ms)
		ON CONFLICT (caller_id) DO UPDATE SET
			tier = excluded.tier,
			images_used_today = excluded.images_used_today,
			total_images_used = excluded.total_images_used,
			last_reset_ms = excluded.last_reset_ms`

	if _, err := s.db.NamedExecContext(ctx, query, fromDomain(sub)); err != nil {
		return fmt.Errorf("put subscription: %w", err)
	}
	return nil
}

func (s *Store) Increment(ctx context.Context, callerID string, delta int) (*domain.Subscription, error) {
	query := s.db.Rebind(`
		UPDATE subscriptions
		SET images_used_today = images_used_today + ?,
			total_images_used = total_images_used + ?
		WHERE caller_id = ?
		RETURNING ` + selectColumns)

	var row subscriptionRow
	err := s.db.QueryRowxContext(ctx, query, delta, delta, callerID).StructScan(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("increment subscription: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) DeleteIdle(ctx context.Context, tier domain.SubscriptionTier, before time.Time) (int, error) {
	query := s.db.Rebind(`
		DELETE FROM subscriptions
		WHERE tier = ? AND total_images_used = 0 AND last_reset_ms < ?`)

	res, err := s.db.ExecContext(ctx, query, string(tier), before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete idle subscriptions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM subscriptions`); err != nil {
		return 0, fmt.Errorf("count subscriptions: %w", err)
	}
	return n, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
