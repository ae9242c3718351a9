package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists price history and alerts to an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the SQLite database and runs migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("database.sqlite_path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// single writer; also keeps one shared database when path is :memory:
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS price_history (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			route       TEXT NOT NULL,
			travel_date TEXT NOT NULL,
			price       TEXT NOT NULL,
			airline     TEXT,
			recorded_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_price_history_route_date
			ON price_history(route, travel_date, recorded_at)`,
		`CREATE TABLE IF NOT EXISTS users (
			id    INTEGER PRIMARY KEY AUTOINCREMENT,
			name  TEXT,
			phone TEXT,
			email TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id      INTEGER NOT NULL REFERENCES users(id),
			from_city    TEXT NOT NULL,
			to_city      TEXT NOT NULL,
			travel_date  TEXT NOT NULL,
			target_price TEXT,
			is_active    INTEGER NOT NULL DEFAULT 1,
			created_at   INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			alert_id    INTEGER NOT NULL,
			route       TEXT NOT NULL,
			travel_date TEXT NOT NULL,
			price       TEXT NOT NULL,
			action      TEXT NOT NULL,
			urgency     TEXT NOT NULL,
			channels    TEXT NOT NULL DEFAULT '',
			created_at  INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}
	return s.db, nil
}

// SavePrice appends a price observation.
func (s *SQLiteStore) SavePrice(ctx context.Context, obs PriceObservation) (PriceRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return PriceRecord{}, err
	}

	recordedAt := obs.RecordedAt.UTC()
	if obs.RecordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}
	travelDate := TruncateDate(obs.TravelDate)

	var carrier sql.NullString
	if obs.Carrier != "" {
		carrier = sql.NullString{String: obs.Carrier, Valid: true}
	}

	res, err := db.ExecContext(ctx,
		`INSERT INTO price_history (route, travel_date, price, airline, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		obs.Route, travelDate.Format(DateLayout), obs.Price.String(), carrier, recordedAt.UnixNano(),
	)
	if err != nil {
		return PriceRecord{}, fmt.Errorf("save price: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return PriceRecord{}, fmt.Errorf("save price: %w", err)
	}

	rec := PriceRecord{
		ID:         id,
		Route:      obs.Route,
		TravelDate: travelDate,
		Price:      obs.Price,
		RecordedAt: recordedAt,
	}
	if carrier.Valid {
		value := carrier.String
		rec.Carrier = &value
	}
	return rec, nil
}

// GetHistory lists the most recent observations for a route and travel date.
func (s *SQLiteStore) GetHistory(ctx context.Context, route string, travelDate time.Time, limit int) ([]PriceRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	limit = normalizeLimit(limit)
	rows, err := db.QueryContext(ctx,
		`SELECT id, route, travel_date, price, airline, recorded_at
		FROM price_history
		WHERE route = ? AND travel_date = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?`,
		route, TruncateDate(travelDate).Format(DateLayout), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get price history: %w", err)
	}
	defer rows.Close()

	records := make([]PriceRecord, 0, limit)
	for rows.Next() {
		var (
			rec        PriceRecord
			dateStr    string
			priceStr   string
			carrier    sql.NullString
			recordedAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.Route, &dateStr, &priceStr, &carrier, &recordedAt); err != nil {
			return nil, err
		}
		if rec.TravelDate, err = time.Parse(DateLayout, dateStr); err != nil {
			return nil, fmt.Errorf("parse travel date: %w", err)
		}
		if rec.Price, err = decimal.NewFromString(priceStr); err != nil {
			return nil, fmt.Errorf("parse price: %w", err)
		}
		if carrier.Valid {
			value := carrier.String
			rec.Carrier = &value
		}
		rec.RecordedAt = time.Unix(0, recordedAt).UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetLatest returns the newest observation, reporting false when none exists.
func (s *SQLiteStore) GetLatest(ctx context.Context, route string, travelDate time.Time) (PriceRecord, bool, error) {
	records, err := s.GetHistory(ctx, route, travelDate, 1)
	if err != nil {
		return PriceRecord{}, false, err
	}
	if len(records) == 0 {
		return PriceRecord{}, false, nil
	}
	return records[0], true, nil
}

// GetAverage averages every stored observation for a route and travel date.
// Prices are summed as decimals because SQLite's AVG works on floats.
func (s *SQLiteStore) GetAverage(ctx context.Context, route string, travelDate time.Time) (decimal.NullDecimal, error) {
	db, err := s.getDB()
	if err != nil {
		return decimal.NullDecimal{}, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT price FROM price_history WHERE route = ? AND travel_date = ?`,
		route, TruncateDate(travelDate).Format(DateLayout),
	)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("get average price: %w", err)
	}
	defer rows.Close()

	sum := decimal.Zero
	count := 0
	for rows.Next() {
		var priceStr string
		if err := rows.Scan(&priceStr); err != nil {
			return decimal.NullDecimal{}, err
		}
		price, err := decimal.NewFromString(priceStr)
		if err != nil {
			return decimal.NullDecimal{}, fmt.Errorf("parse price: %w", err)
		}
		sum = sum.Add(price)
		count++
	}
	if err := rows.Err(); err != nil {
		return decimal.NullDecimal{}, err
	}
	if count == 0 {
		return decimal.NullDecimal{}, nil
	}
	return decimal.NewNullDecimal(sum.Div(decimal.NewFromInt(int64(count)))), nil
}

// ListActiveSubscriptions lists active alerts whose travel date has not passed.
func (s *SQLiteStore) ListActiveSubscriptions(ctx context.Context, asOf time.Time) ([]Subscription, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT a.id, a.user_id, COALESCE(u.name, ''), COALESCE(u.phone, ''),
			a.from_city, a.to_city, a.travel_date, a.target_price, a.is_active, a.created_at
		FROM alerts a
		JOIN users u ON a.user_id = u.id
		WHERE a.is_active = 1 AND a.travel_date >= ?
		ORDER BY a.travel_date ASC, a.id ASC`,
		TruncateDate(asOf).Format(DateLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("list active subscriptions: %w", err)
	}
	defer rows.Close()

	subs := make([]Subscription, 0)
	for rows.Next() {
		var (
			sub       Subscription
			dateStr   string
			target    sql.NullString
			active    int64
			createdAt int64
		)
		if err := rows.Scan(
			&sub.ID,
			&sub.UserID,
			&sub.UserName,
			&sub.Phone,
			&sub.Origin,
			&sub.Destination,
			&dateStr,
			&target,
			&active,
			&createdAt,
		); err != nil {
			return nil, err
		}
		if sub.TravelDate, err = time.Parse(DateLayout, dateStr); err != nil {
			return nil, fmt.Errorf("parse travel date: %w", err)
		}
		if target.Valid && target.String != "" {
			value, convErr := decimal.NewFromString(target.String)
			if convErr != nil {
				return nil, fmt.Errorf("parse target price: %w", convErr)
			}
			sub.TargetPrice = decimal.NewNullDecimal(value)
		}
		sub.Active = active != 0
		sub.CreatedAt = time.Unix(0, createdAt).UTC()
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// InsertNotification persists a notification emission.
func (s *SQLiteStore) InsertNotification(ctx context.Context, rec NotificationRecord) (NotificationRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return NotificationRecord{}, err
	}

	createdAt := time.Now().UTC()
	res, err := db.ExecContext(ctx,
		`INSERT INTO notifications (alert_id, route, travel_date, price, action, urgency, channels, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SubscriptionID,
		rec.Route,
		TruncateDate(rec.TravelDate).Format(DateLayout),
		rec.Price.String(),
		rec.Action,
		rec.Urgency,
		strings.Join(rec.Channels, ","),
		createdAt.UnixNano(),
	)
	if err != nil {
		return NotificationRecord{}, fmt.Errorf("insert notification: %w", err)
	}
	if rec.ID, err = res.LastInsertId(); err != nil {
		return NotificationRecord{}, fmt.Errorf("insert notification: %w", err)
	}
	rec.CreatedAt = createdAt
	return rec, nil
}

// ListRecentNotifications lists most recent notifications.
func (s *SQLiteStore) ListRecentNotifications(ctx context.Context, limit int) ([]NotificationRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	limit = normalizeLimit(limit)
	rows, err := db.QueryContext(ctx,
		`SELECT id, alert_id, route, travel_date, price, action, urgency, channels, created_at
		FROM notifications
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list recent notifications: %w", err)
	}
	defer rows.Close()

	records := make([]NotificationRecord, 0, limit)
	for rows.Next() {
		var (
			rec       NotificationRecord
			dateStr   string
			priceStr  string
			channels  string
			createdAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.SubscriptionID, &rec.Route, &dateStr, &priceStr,
			&rec.Action, &rec.Urgency, &channels, &createdAt); err != nil {
			return nil, err
		}
		if rec.TravelDate, err = time.Parse(DateLayout, dateStr); err != nil {
			return nil, fmt.Errorf("parse travel date: %w", err)
		}
		if rec.Price, err = decimal.NewFromString(priceStr); err != nil {
			return nil, fmt.Errorf("parse notification price: %w", err)
		}
		if channels != "" {
			rec.Channels = strings.Split(channels, ",")
		}
		rec.CreatedAt = time.Unix(0, createdAt).UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

var _ Backend = (*SQLiteStore)(nil)
