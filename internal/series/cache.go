package series

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fare-alerts/internal/logging"
	"fare-alerts/internal/storage"
)

// DefaultHydrationLimit is how many stored points a hydration loads.
const DefaultHydrationLimit = 30

// PricePoint is a single immutable price observation.
type PricePoint struct {
	Timestamp time.Time
	Price     decimal.Decimal
	// Date is the travel date the observation was quoted for.
	Date time.Time
}

// Source is the read side of the durable price history used for hydration.
type Source interface {
	GetHistory(ctx context.Context, route string, travelDate time.Time, limit int) ([]storage.PriceRecord, error)
}

// RouteID builds the normalised ORIGIN-DESTINATION identifier.
func RouteID(origin, destination string) string {
	return strings.ToUpper(strings.TrimSpace(origin) + "-" + strings.TrimSpace(destination))
}

type hydrationState int

const (
	unhydrated hydrationState = iota
	hydrating
	hydrated
)

type hydrationKey struct {
	route string
	date  string
}

type hydration struct {
	state hydrationState
	done  chan struct{}
}

// Cache keeps ordered per-route price series in memory and hydrates them lazily
// from the durable store, at most once per (route, travel date).
type Cache struct {
	source Source
	limit  int
	logger zerolog.Logger

	mu     sync.Mutex
	series map[string][]PricePoint
	keys   map[hydrationKey]*hydration
}

// NewCache constructs an empty cache reading from source.
func NewCache(source Source, limit int, logger zerolog.Logger) *Cache {
	if limit <= 0 {
		limit = DefaultHydrationLimit
	}
	return &Cache{
		source: source,
		limit:  limit,
		logger: logging.Component(logger, "series_cache"),
		series: make(map[string][]PricePoint),
		keys:   make(map[hydrationKey]*hydration),
	}
}

func newKey(route string, travelDate time.Time) hydrationKey {
	return hydrationKey{
		route: normalize(route),
		date:  storage.TruncateDate(travelDate).Format(storage.DateLayout),
	}
}

func normalize(route string) string {
	return strings.ToUpper(strings.TrimSpace(route))
}

// Hydrate loads the most recent stored points for (route, travelDate) unless that
// key is already hydrated. Store failures are logged and swallowed; the series keeps
// whatever is already resident and the key stays unhydrated so a later call retries.
func (c *Cache) Hydrate(ctx context.Context, route string, travelDate time.Time) {
	key := newKey(route, travelDate)

	var h *hydration
	for {
		c.mu.Lock()
		current := c.keys[key]
		if current == nil {
			h = &hydration{state: hydrating, done: make(chan struct{})}
			c.keys[key] = h
			c.mu.Unlock()
			break
		}
		if current.state == hydrated {
			c.mu.Unlock()
			return
		}
		done := current.done
		c.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return
		}
	}

	var (
		records []storage.PriceRecord
		err     error
	)
	if c.source != nil {
		records, err = c.source.GetHistory(ctx, key.route, travelDate, c.limit)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	defer close(h.done)

	if err != nil {
		delete(c.keys, key)
		c.logger.Warn().Err(err).
			Str("route", key.route).
			Str("travel_date", key.date).
			Int("resident", len(c.series[key.route])).
			Msg("hydration failed; continuing with resident series")
		return
	}

	// records arrive newest-first
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		point := PricePoint{
			Timestamp: rec.RecordedAt,
			Price:     rec.Price,
			Date:      storage.TruncateDate(rec.TravelDate),
		}
		if c.containsLocked(key.route, point) {
			continue
		}
		c.insertLocked(key.route, point)
	}
	h.state = hydrated

	c.logger.Debug().
		Str("route", key.route).
		Str("travel_date", key.date).
		Int("loaded", len(records)).
		Msg("series hydrated")
}

// IsHydrated reports whether (route, travelDate) finished hydrating.
func (c *Cache) IsHydrated(route string, travelDate time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.keys[newKey(route, travelDate)]
	return h != nil && h.state == hydrated
}

// Append inserts a point keeping timestamp order. Points with equal timestamps
// keep their insertion order.
func (c *Cache) Append(route string, point PricePoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.insertLocked(normalize(route), point)
}

// Merge inserts point unless an identical observation is already resident,
// reporting whether it was added.
func (c *Cache) Merge(route string, point PricePoint) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	route = normalize(route)
	if c.containsLocked(route, point) {
		return false
	}
	c.insertLocked(route, point)
	return true
}

// Series returns a copy of the resident series for route, oldest first.
// It never hydrates.
func (c *Cache) Series(route string) []PricePoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	resident := c.series[normalize(route)]
	out := make([]PricePoint, len(resident))
	copy(out, resident)
	return out
}

// Recent returns at most n of the newest points for route, oldest first.
func (c *Cache) Recent(route string, n int) []PricePoint {
	all := c.Series(route)
	if n <= 0 || len(all) <= n {
		return all
	}
	return all[len(all)-n:]
}

// Invalidate clears the hydration marker so the next Hydrate reloads from the store.
func (c *Cache) Invalidate(route string, travelDate time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := newKey(route, travelDate)
	if h := c.keys[key]; h != nil && h.state == hydrated {
		delete(c.keys, key)
	}
}

// Reset drops every series and hydration marker.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.series = make(map[string][]PricePoint)
	c.keys = make(map[hydrationKey]*hydration)
}

func (c *Cache) insertLocked(route string, point PricePoint) {
	points := c.series[route]
	idx := sort.Search(len(points), func(i int) bool {
		return points[i].Timestamp.After(point.Timestamp)
	})
	points = append(points, PricePoint{})
	copy(points[idx+1:], points[idx:])
	points[idx] = point
	c.series[route] = points
}

func (c *Cache) containsLocked(route string, point PricePoint) bool {
	for _, existing := range c.series[route] {
		if existing.Timestamp.Equal(point.Timestamp) &&
			existing.Price.Equal(point.Price) &&
			existing.Date.Equal(point.Date) {
			return true
		}
	}
	return false
}

// Prices extracts the price column of a series.
func Prices(points []PricePoint) []decimal.Decimal {
	out := make([]decimal.Decimal, len(points))
	for i, p := range points {
		out[i] = p.Price
	}
	return out
}
