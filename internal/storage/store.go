package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fare-alerts/internal/config"
)

var (
	// ErrNotConfigured indicates the storage backend was not initialised.
	ErrNotConfigured = errors.New("storage: backend not configured")
)

// PriceHistoryStore is the durable append-only log of price observations.
type PriceHistoryStore interface {
	SavePrice(ctx context.Context, obs PriceObservation) (PriceRecord, error)
	// GetHistory returns at most limit records ordered most-recent-first.
	GetHistory(ctx context.Context, route string, travelDate time.Time, limit int) ([]PriceRecord, error)
	GetLatest(ctx context.Context, route string, travelDate time.Time) (PriceRecord, bool, error)
	GetAverage(ctx context.Context, route string, travelDate time.Time) (decimal.NullDecimal, error)
}

// SubscriptionStore exposes the read side of fare alerts.
type SubscriptionStore interface {
	ListActiveSubscriptions(ctx context.Context, asOf time.Time) ([]Subscription, error)
}

// NotificationStore defines operations for notification auditing.
type NotificationStore interface {
	InsertNotification(ctx context.Context, rec NotificationRecord) (NotificationRecord, error)
	ListRecentNotifications(ctx context.Context, limit int) ([]NotificationRecord, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Backend aggregates every store the application needs.
type Backend interface {
	PriceHistoryStore
	SubscriptionStore
	NotificationStore
	Close() error
}

// Open connects the backend selected by database.driver.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Backend, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", config.DriverPostgres:
		pool, err := NewPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := Migrate(ctx, pool, cfg.MigrationsPath); err != nil {
			pool.Close()
			return nil, err
		}
		return NewPostgresStore(pool), nil
	case config.DriverSQLite:
		store, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 10
	}
	return limit
}
