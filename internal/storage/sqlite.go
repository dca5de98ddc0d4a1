package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver registration.

	"rent_bot/internal/model"
	"rent_bot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// AddSubscription inserts a new enabled subscription with a fresh opaque ID
// and no delivery cursor. Duplicate policy is the caller's concern.
func (s *SQLite) AddSubscription(ctx context.Context, userID int64, filters model.FilterSpec) (string, error) {
	id := uuid.NewString()[:8]
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions (id, user_id, district, price_min, price_max, rooms, enabled, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, 1, ?)`,
		id, userID, nullString(filters.District), filters.PriceMin, filters.PriceMax, filters.Rooms, now,
	)
	if err != nil {
		return "", fmt.Errorf("insert subscription: %w", err)
	}
	return id, nil
}

// GetUserSubscriptions returns a snapshot of all subscriptions of the user.
func (s *SQLite) GetUserSubscriptions(ctx context.Context, userID int64) ([]model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, district, price_min, price_max, rooms, enabled, last_notified_post_id, created_at
		 FROM subscriptions WHERE user_id = ? ORDER BY rowid`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSubscriptions(rows)
}

// ToggleSubscription flips the enabled flag and returns the new state.
// Returns false without error when the subscription does not exist.
func (s *SQLite) ToggleSubscription(ctx context.Context, userID int64, subID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET enabled = 1 - enabled WHERE id = ? AND user_id = ?`,
		subID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("toggle subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	var enabled int
	err = s.db.QueryRowContext(ctx,
		`SELECT enabled FROM subscriptions WHERE id = ? AND user_id = ?`, subID, userID,
	).Scan(&enabled)
	if err != nil {
		return false, fmt.Errorf("read toggled state: %w", err)
	}
	return enabled == 1, nil
}

// DeleteSubscription removes a subscription by ID; false when not found.
func (s *SQLite) DeleteSubscription(ctx context.Context, userID int64, subID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE id = ? AND user_id = ?`, subID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("delete subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// ListActiveSubscriptions flattens enabled subscriptions across all users.
// This is the working set for every poll or event cycle.
func (s *SQLite) ListActiveSubscriptions(ctx context.Context) ([]model.UserSubscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, district, price_min, price_max, rooms, enabled, last_notified_post_id, created_at
		 FROM subscriptions WHERE enabled = 1 ORDER BY user_id, rowid`,
	)
	if err != nil {
		return nil, fmt.Errorf("query active subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	subs, err := scanSubscriptions(rows)
	if err != nil {
		return nil, err
	}
	result := make([]model.UserSubscription, 0, len(subs))
	for _, sub := range subs {
		result = append(result, model.UserSubscription{UserID: sub.UserID, Subscription: sub})
	}
	return result, nil
}

// UpdateLastNotifiedPost advances the per-subscription delivery cursor. The
// write keeps the maximum, so the cursor never decreases even under a
// misbehaving caller.
func (s *SQLite) UpdateLastNotifiedPost(ctx context.Context, userID int64, subID string, postID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions
		 SET last_notified_post_id = MAX(COALESCE(last_notified_post_id, 0), ?)
		 WHERE id = ? AND user_id = ?`,
		postID, subID, userID,
	)
	if err != nil {
		return fmt.Errorf("update last notified post: %w", err)
	}
	return nil
}

// LastCheckedPostID returns the global poll cursor, or nil when never set.
func (s *SQLite) LastCheckedPostID(ctx context.Context) (*int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_checked_post_id FROM poll_cursor WHERE id = 1`,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query poll cursor: %w", err)
	}
	return &id, nil
}

// SetLastCheckedPostID advances the global poll cursor monotonically: a value
// lower than the stored one is ignored.
func (s *SQLite) SetLastCheckedPostID(ctx context.Context, postID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO poll_cursor (id, last_checked_post_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET last_checked_post_id = MAX(last_checked_post_id, excluded.last_checked_post_id)`,
		postID,
	)
	if err != nil {
		return fmt.Errorf("set poll cursor: %w", err)
	}
	return nil
}

// SearchCount returns how many searches the user has performed.
func (s *SQLite) SearchCount(ctx context.Context, userID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT count FROM search_counts WHERE user_id = ?`, userID,
	).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query search count: %w", err)
	}
	return count, nil
}

// IncrementSearchCount bumps the user's search counter and returns the new value.
func (s *SQLite) IncrementSearchCount(ctx context.Context, userID int64) (int, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO search_counts (user_id, count) VALUES (?, 1)
		 ON CONFLICT(user_id) DO UPDATE SET count = count + 1`,
		userID,
	)
	if err != nil {
		return 0, fmt.Errorf("increment search count: %w", err)
	}
	return s.SearchCount(ctx, userID)
}

// ResetSearchCount clears the user's search counter.
func (s *SQLite) ResetSearchCount(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM search_counts WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("reset search count: %w", err)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSubscription(row scannable) (model.Subscription, error) {
	var sub model.Subscription
	var district sql.NullString
	var priceMin, priceMax, rooms, lastNotified sql.NullInt64
	var enabled int
	var created string

	err := row.Scan(&sub.ID, &sub.UserID, &district, &priceMin, &priceMax, &rooms, &enabled, &lastNotified, &created)
	if err != nil {
		return sub, fmt.Errorf("scan subscription: %w", err)
	}

	if district.Valid {
		sub.Filters.District = district.String
	}
	sub.Filters.PriceMin = nullableInt64(priceMin)
	sub.Filters.PriceMax = nullableInt64(priceMax)
	sub.Filters.Rooms = nullableInt64(rooms)
	sub.Enabled = enabled == 1
	sub.LastNotifiedPostID = nullableInt64(lastNotified)
	sub.CreatedAt, _ = time.Parse(timeLayout, created)
	return sub, nil
}

func scanSubscriptions(rows *sql.Rows) ([]model.Subscription, error) {
	var subs []model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func nullableInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
