package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// PostgresConfig holds the PostgreSQL store configuration.
type PostgresConfig struct {
	Logger   *slog.Logger
	Host     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	Port     int
}

// Postgres is a Store backed by PostgreSQL through GORM.
type Postgres struct {
	db     *gorm.DB
	logger *slog.Logger
}

var _ Store = (*Postgres)(nil)

// NewPostgres connects to PostgreSQL and runs migrations.
func NewPostgres(cfg *PostgresConfig) (*Postgres, error) {
	if cfg == nil {
		return nil, errors.New("postgres config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	cfg.Logger.Info("connecting to database",
		"host", cfg.Host,
		"port", cfg.Port,
		"dbname", cfg.DBName,
	)

	gormConfig := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent), // Use slog instead of GORM's logger
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	cfg.Logger.Info("database connection established")

	if err := runMigrations(db, cfg.Logger); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Postgres{db: db, logger: cfg.Logger}, nil
}

// runMigrations runs database migrations for all models.
func runMigrations(db *gorm.DB, logger *slog.Logger) error {
	logger.Info("running database migrations")

	if err := db.AutoMigrate(
		&Reading{},
		&Snapshot{},
		&AlertRecord{},
	); err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}

	logger.Info("database migrations completed successfully")
	return nil
}

// InsertReading appends one reading to the history.
func (p *Postgres) InsertReading(ctx context.Context, reading *Reading) error {
	if err := p.db.WithContext(ctx).Create(reading).Error; err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	return nil
}

// UpsertSnapshot creates or replaces the per-sensor latest value.
func (p *Postgres) UpsertSnapshot(ctx context.Context, snapshot *Snapshot) error {
	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "sensor_name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"updated_at", "kind", "unit", "location", "value",
		}),
	}).Create(snapshot).Error
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return nil
}

// ListSnapshots returns all snapshots ordered by sensor name.
func (p *Postgres) ListSnapshots(ctx context.Context) ([]Snapshot, error) {
	var snapshots []Snapshot
	err := p.db.WithContext(ctx).
		Order("sensor_name ASC").
		Find(&snapshots).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return snapshots, nil
}

// ListReadings returns up to limit readings for one sensor, most recent first.
func (p *Postgres) ListReadings(ctx context.Context, sensorName string, limit int) ([]Reading, error) {
	var readings []Reading
	q := p.db.WithContext(ctx).
		Where("sensor_name = ?", sensorName).
		Order("timestamp DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&readings).Error; err != nil {
		return nil, fmt.Errorf("failed to list readings: %w", err)
	}
	return readings, nil
}

// InsertAlert appends one alert to the log.
func (p *Postgres) InsertAlert(ctx context.Context, alert *AlertRecord) error {
	if err := p.db.WithContext(ctx).Create(alert).Error; err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// MostRecentAlert returns the newest alert for one sensor, or nil when the
// sensor has never alerted.
func (p *Postgres) MostRecentAlert(ctx context.Context, sensorName string) (*AlertRecord, error) {
	var alert AlertRecord
	err := p.db.WithContext(ctx).
		Where("sensor_name = ?", sensorName).
		Order("raised_at DESC, id DESC").
		First(&alert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find most recent alert: %w", err)
	}
	return &alert, nil
}

// ListAlerts returns up to limit alerts across all sensors, most recent first.
func (p *Postgres) ListAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	var alerts []AlertRecord
	q := p.db.WithContext(ctx).Order("raised_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}

// ClearAlerts removes all alerts.
func (p *Postgres) ClearAlerts(ctx context.Context) error {
	err := p.db.WithContext(ctx).
		Where("1 = 1").
		Delete(&AlertRecord{}).Error
	if err != nil {
		return fmt.Errorf("failed to clear alerts: %w", err)
	}
	return nil
}

// Ping verifies the database connection.
func (p *Postgres) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection.
func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	p.logger.Info("closing database connection")
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
