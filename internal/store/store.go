// Package store persists readings, snapshots, and alerts behind a narrow
// interface, with in-memory, PostgreSQL, and Redis implementations.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Supported store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Store is the persistence surface used by the ingestion pipeline and the
// query API. Implementations must be safe for concurrent use.
type Store interface {
	// InsertReading appends one reading to the history.
	InsertReading(ctx context.Context, reading *Reading) error
	// UpsertSnapshot creates or replaces the per-sensor latest value.
	UpsertSnapshot(ctx context.Context, snapshot *Snapshot) error
	// ListSnapshots returns all snapshots ordered by sensor name.
	ListSnapshots(ctx context.Context) ([]Snapshot, error)
	// ListReadings returns up to limit readings for one sensor, most recent first.
	ListReadings(ctx context.Context, sensorName string, limit int) ([]Reading, error)
	// InsertAlert appends one alert to the log.
	InsertAlert(ctx context.Context, alert *AlertRecord) error
	// MostRecentAlert returns the newest alert for one sensor, or nil when the
	// sensor has never alerted.
	MostRecentAlert(ctx context.Context, sensorName string) (*AlertRecord, error)
	// ListAlerts returns up to limit alerts across all sensors, most recent first.
	ListAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	// ClearAlerts removes all alerts.
	ClearAlerts(ctx context.Context) error
	// Ping verifies the backing service is reachable.
	Ping(ctx context.Context) error
	// Close releases the underlying connections.
	Close() error
}

// Config selects and configures a store driver.
type Config struct {
	Logger   *slog.Logger
	Driver   string
	Postgres *PostgresConfig
	Redis    *RedisConfig
}

// Open builds the store selected by cfg.Driver. An empty driver selects the
// in-memory store.
func Open(cfg *Config) (Store, error) {
	if cfg == nil {
		return nil, errors.New("store config cannot be nil")
	}

	switch cfg.Driver {
	case DriverMemory, "":
		return NewMemory(), nil
	case DriverPostgres:
		pc := cfg.Postgres
		if pc == nil {
			return nil, errors.New("postgres config cannot be nil")
		}
		if pc.Logger == nil {
			pc.Logger = cfg.Logger
		}
		return NewPostgres(pc)
	case DriverRedis:
		rc := cfg.Redis
		if rc == nil {
			return nil, errors.New("redis config cannot be nil")
		}
		if rc.Logger == nil {
			rc.Logger = cfg.Logger
		}
		return NewRedis(rc)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
