package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	_ "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/patrickwarner/moovie-ads/internal/models"
	"github.com/patrickwarner/moovie-ads/internal/observability"
)

// ErrUnavailable is returned when the analytics DB is not configured.
var ErrUnavailable = errors.New("analytics unavailable")

// AnalyticsService defines the interface for analytics operations.
// Implementations should handle cases where underlying storage is unavailable
// by returning ErrUnavailable.
type AnalyticsService interface {
	// RecordAdEvent stores one placement event.
	RecordAdEvent(ctx context.Context, ev models.AdEvent) error
	// QueryEvents returns events matching f, newest first.
	QueryEvents(ctx context.Context, f EventFilter) ([]models.AdEvent, error)
	// CountByReason aggregates suppressed events since the given time.
	CountByReason(ctx context.Context, since time.Time) (map[string]int, error)
}

// Analytics wraps a ClickHouse DB connection.
type Analytics struct {
	DB      *sql.DB
	Metrics observability.MetricsRegistry
}

// PoolConfig sizes the ClickHouse connection pool.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

const createTable = `CREATE TABLE IF NOT EXISTS ad_events (
       timestamp    DateTime64(3),
       event_type   LowCardinality(String),
       visitor_id   String,
       ad_type      LowCardinality(String),
       position     String,
       script_id    Nullable(String),
       network_id   Nullable(String),
       reason       LowCardinality(String),
       device_type  Nullable(String),
       country      Nullable(String)
   ) ENGINE=MergeTree() ORDER BY (event_type, timestamp)
   TTL toDateTime(timestamp) + INTERVAL 90 DAY`

// InitClickHouse connects to ClickHouse and ensures the ad_events table exists.
func InitClickHouse(dsn string, pool PoolConfig, metrics observability.MetricsRegistry) (*Analytics, error) {
	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, createTable); err != nil {
		return nil, fmt.Errorf("clickhouse create table: %w", err)
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}

	zap.L().Info("Connected to ClickHouse")
	return &Analytics{DB: db, Metrics: metrics}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// RecordAdEvent inserts a single event row into the ad_events table.
func (a *Analytics) RecordAdEvent(ctx context.Context, ev models.AdEvent) error {
	if a == nil || a.DB == nil {
		return ErrUnavailable
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	stmt := `INSERT INTO ad_events (timestamp, event_type, visitor_id, ad_type, position, script_id, network_id, reason, device_type, country) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := a.DB.ExecContext(ctx, stmt,
		ev.Timestamp, string(ev.Type), ev.VisitorID, string(ev.AdType), ev.Position,
		nullString(ev.ScriptID), nullString(ev.NetworkID), ev.Reason,
		nullString(ev.DeviceType), nullString(ev.Country))
	if err != nil {
		zap.L().Error("clickhouse insert failed", zap.Error(err), zap.String("event_type", string(ev.Type)))
		return fmt.Errorf("insert %s event: %w", ev.Type, err)
	}
	return nil
}

// EventFilter narrows QueryEvents. Zero fields match everything.
type EventFilter struct {
	VisitorID string
	EventType models.AdEventType
	AdType    models.AdType
	Since     time.Time
	Limit     int
}

// DefaultQueryLimit caps QueryEvents when no limit is given.
const DefaultQueryLimit = 100

func buildEventQuery(f EventFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if f.VisitorID != "" {
		where = append(where, "visitor_id = ?")
		args = append(args, f.VisitorID)
	}
	if f.EventType != "" {
		where = append(where, "event_type = ?")
		args = append(args, string(f.EventType))
	}
	if f.AdType != "" {
		where = append(where, "ad_type = ?")
		args = append(args, string(f.AdType))
	}
	if !f.Since.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, f.Since)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	var b strings.Builder
	b.WriteString(`SELECT timestamp, event_type, visitor_id, ad_type, position, script_id, network_id, reason, device_type, country FROM ad_events`)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	fmt.Fprintf(&b, " ORDER BY timestamp DESC LIMIT %d", limit)
	return b.String(), args
}

// QueryEvents returns events matching f ordered newest first.
func (a *Analytics) QueryEvents(ctx context.Context, f EventFilter) ([]models.AdEvent, error) {
	if a == nil || a.DB == nil {
		return nil, ErrUnavailable
	}
	query, args := buildEventQuery(f)
	rows, err := a.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Warn("rows close", zap.Error(err))
		}
	}()

	var events []models.AdEvent
	for rows.Next() {
		var (
			ev                                   models.AdEvent
			eventType, adType                    string
			scriptID, networkID, device, country sql.NullString
		)
		if err := rows.Scan(&ev.Timestamp, &eventType, &ev.VisitorID, &adType, &ev.Position, &scriptID, &networkID, &ev.Reason, &device, &country); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Type = models.AdEventType(eventType)
		ev.AdType = models.AdType(adType)
		ev.ScriptID = scriptID.String
		ev.NetworkID = networkID.String
		ev.DeviceType = device.String
		ev.Country = country.String
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return events, nil
}

// CountByReason returns the number of suppressed events per reason since the
// given time.
func (a *Analytics) CountByReason(ctx context.Context, since time.Time) (map[string]int, error) {
	if a == nil || a.DB == nil {
		return nil, ErrUnavailable
	}
	rows, err := a.DB.QueryContext(ctx,
		`SELECT reason, count() FROM ad_events WHERE event_type = ? AND timestamp >= ? GROUP BY reason`,
		string(models.AdEventSuppressed), since)
	if err != nil {
		return nil, fmt.Errorf("count by reason: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Warn("rows close", zap.Error(err))
		}
	}()

	out := make(map[string]int)
	for rows.Next() {
		var (
			reason string
			n      uint64
		)
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, fmt.Errorf("scan reason count: %w", err)
		}
		out[reason] = int(n)
	}
	return out, rows.Err()
}

// Close terminates the ClickHouse connection.
func (a *Analytics) Close() {
	if a != nil && a.DB != nil {
		if err := a.DB.Close(); err != nil {
			zap.L().Error("clickhouse close", zap.Error(err))
		}
	}
}
