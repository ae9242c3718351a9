package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"fare-alerts/internal/config"
)

const (
	savePriceSQL = `INSERT INTO price_history (
        route,
        travel_date,
        price,
        airline,
        recorded_at
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    RETURNING id, route, travel_date, price::text, airline, recorded_at;`

	getHistorySQL = `SELECT
        id,
        route,
        travel_date,
        price::text,
        airline,
        recorded_at
    FROM price_history
    WHERE route = $1
      AND travel_date = $2
    ORDER BY recorded_at DESC, id DESC
    LIMIT $3;`

	getAverageSQL = `SELECT AVG(price)::text
    FROM price_history
    WHERE route = $1
      AND travel_date = $2;`

	listActiveSubscriptionsSQL = `SELECT
        a.id,
        a.user_id,
        COALESCE(u.name, ''),
        COALESCE(u.phone, ''),
        a.from_city,
        a.to_city,
        a.travel_date,
        a.target_price::text,
        a.is_active,
        a.created_at
    FROM alerts a
    JOIN users u ON a.user_id = u.id
    WHERE a.is_active = TRUE
      AND a.travel_date >= $1
    ORDER BY a.travel_date ASC, a.id ASC;`

	insertNotificationSQL = `INSERT INTO notifications (
        alert_id,
        route,
        travel_date,
        price,
        action,
        urgency,
        channels
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    RETURNING id, created_at;`

	listRecentNotificationsSQL = `SELECT
        id,
        alert_id,
        route,
        travel_date,
        price::text,
        action,
        urgency,
        channels,
        created_at
    FROM notifications
    ORDER BY created_at DESC
    LIMIT $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

// PostgresStore implements every store interface on top of a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wires a pgx pool into a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *PostgresStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *PostgresStore) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// SavePrice appends a price observation.
func (s *PostgresStore) SavePrice(ctx context.Context, obs PriceObservation) (PriceRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return PriceRecord{}, err
	}

	var carrier interface{}
	if obs.Carrier != "" {
		carrier = obs.Carrier
	}
	recordedAt := obs.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	row := pool.QueryRow(ctx, savePriceSQL,
		obs.Route,
		TruncateDate(obs.TravelDate),
		obs.Price.String(),
		carrier,
		recordedAt,
	)
	rec, err := scanPriceRecord(row)
	if err != nil {
		return PriceRecord{}, fmt.Errorf("save price: %w", err)
	}
	return rec, nil
}

// GetHistory lists the most recent observations for a route and travel date.
func (s *PostgresStore) GetHistory(ctx context.Context, route string, travelDate time.Time, limit int) ([]PriceRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	limit = normalizeLimit(limit)
	rows, queryErr := pool.Query(ctx, getHistorySQL, route, TruncateDate(travelDate), limit)
	if queryErr != nil {
		return nil, fmt.Errorf("get price history: %w", queryErr)
	}
	defer rows.Close()

	records := make([]PriceRecord, 0, limit)
	for rows.Next() {
		rec, scanErr := scanPriceRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// GetLatest returns the newest observation, reporting false when none exists.
func (s *PostgresStore) GetLatest(ctx context.Context, route string, travelDate time.Time) (PriceRecord, bool, error) {
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
func (s *PostgresStore) GetAverage(ctx context.Context, route string, travelDate time.Time) (decimal.NullDecimal, error) {
	pool, err := s.getPool()
	if err != nil {
		return decimal.NullDecimal{}, err
	}

	var avg *string
	if scanErr := pool.QueryRow(ctx, getAverageSQL, route, TruncateDate(travelDate)).Scan(&avg); scanErr != nil {
		return decimal.NullDecimal{}, fmt.Errorf("get average price: %w", scanErr)
	}
	if avg == nil {
		return decimal.NullDecimal{}, nil
	}
	value, convErr := decimal.NewFromString(*avg)
	if convErr != nil {
		return decimal.NullDecimal{}, fmt.Errorf("parse average price: %w", convErr)
	}
	return decimal.NewNullDecimal(value), nil
}

// ListActiveSubscriptions lists active alerts whose travel date has not passed.
func (s *PostgresStore) ListActiveSubscriptions(ctx context.Context, asOf time.Time) ([]Subscription, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listActiveSubscriptionsSQL, TruncateDate(asOf))
	if queryErr != nil {
		return nil, fmt.Errorf("list active subscriptions: %w", queryErr)
	}
	defer rows.Close()

	subs := make([]Subscription, 0)
	for rows.Next() {
		var sub Subscription
		var target *string
		if err := rows.Scan(
			&sub.ID,
			&sub.UserID,
			&sub.UserName,
			&sub.Phone,
			&sub.Origin,
			&sub.Destination,
			&sub.TravelDate,
			&target,
			&sub.Active,
			&sub.CreatedAt,
		); err != nil {
			return nil, err
		}
		if target != nil {
			value, convErr := decimal.NewFromString(*target)
			if convErr != nil {
				return nil, fmt.Errorf("parse target price: %w", convErr)
			}
			sub.TargetPrice = decimal.NewNullDecimal(value)
		}
		subs = append(subs, sub)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return subs, nil
}

// InsertNotification persists a notification emission.
func (s *PostgresStore) InsertNotification(ctx context.Context, rec NotificationRecord) (NotificationRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return NotificationRecord{}, err
	}

	row := pool.QueryRow(ctx, insertNotificationSQL,
		rec.SubscriptionID,
		rec.Route,
		TruncateDate(rec.TravelDate),
		rec.Price.String(),
		rec.Action,
		rec.Urgency,
		rec.Channels,
	)
	if scanErr := row.Scan(&rec.ID, &rec.CreatedAt); scanErr != nil {
		return NotificationRecord{}, fmt.Errorf("insert notification: %w", scanErr)
	}
	return rec, nil
}

// ListRecentNotifications lists most recent notifications.
func (s *PostgresStore) ListRecentNotifications(ctx context.Context, limit int) ([]NotificationRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	limit = normalizeLimit(limit)
	rows, queryErr := pool.Query(ctx, listRecentNotificationsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent notifications: %w", queryErr)
	}
	defer rows.Close()

	records := make([]NotificationRecord, 0, limit)
	for rows.Next() {
		var rec NotificationRecord
		var priceStr string
		if err := rows.Scan(
			&rec.ID,
			&rec.SubscriptionID,
			&rec.Route,
			&rec.TravelDate,
			&priceStr,
			&rec.Action,
			&rec.Urgency,
			&rec.Channels,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}

		var convErr error
		rec.Price, convErr = decimal.NewFromString(priceStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse notification price: %w", convErr)
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func scanPriceRecord(row pgx.Row) (PriceRecord, error) {
	var (
		rec      PriceRecord
		priceStr string
	)
	if err := row.Scan(
		&rec.ID,
		&rec.Route,
		&rec.TravelDate,
		&priceStr,
		&rec.Carrier,
		&rec.RecordedAt,
	); err != nil {
		return PriceRecord{}, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return PriceRecord{}, fmt.Errorf("parse price: %w", err)
	}
	rec.Price = price
	return rec, nil
}

var (
	_ Backend        = (*PostgresStore)(nil)
	_ AdvisoryLocker = (*PostgresStore)(nil)
)
