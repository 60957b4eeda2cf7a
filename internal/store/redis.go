package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/redis/go-redis/v9"
)

// Redis key layout. Snapshots live in one hash keyed by sensor name; readings
// and alerts are capped lists with the most recent entry at index zero.
const (
	redisSnapshotsKey    = "envmon:snapshots"
	redisAlertsKey       = "envmon:alerts"
	redisAlertSeqKey     = "envmon:alerts:seq"
	redisAlertSensorsKey = "envmon:alerts:sensors"
	redisReadingsPrefix  = "envmon:readings:"
	redisLastAlertPrefix = "envmon:alerts:last:"

	redisReadingCap = 1000
	redisAlertCap   = 1000
)

// RedisConfig holds the Redis store configuration.
type RedisConfig struct {
	Logger   *slog.Logger
	Addr     string
	Password string
	DB       int
}

// Redis is a Store backed by Redis. It favors fast snapshot reads over
// long-term history and is suited to realtime dashboards.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
}

var _ Store = (*Redis)(nil)

// NewRedis connects to Redis and verifies the connection.
func NewRedis(cfg *RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, errors.New("redis config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	cfg.Logger.Info("connecting to redis", "addr", cfg.Addr, "db", cfg.DB)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	cfg.Logger.Info("redis connection established")

	return &Redis{client: client, logger: cfg.Logger}, nil
}

// InsertReading appends one reading to the capped per-sensor history list.
func (r *Redis) InsertReading(ctx context.Context, reading *Reading) error {
	payload, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}

	key := redisReadingsPrefix + reading.SensorName
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, redisReadingCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	return nil
}

// UpsertSnapshot creates or replaces the per-sensor latest value.
func (r *Redis) UpsertSnapshot(ctx context.Context, snapshot *Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := r.client.HSet(ctx, redisSnapshotsKey, snapshot.SensorName, payload).Err(); err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return nil
}

// ListSnapshots returns all snapshots ordered by sensor name.
func (r *Redis) ListSnapshots(ctx context.Context) ([]Snapshot, error) {
	fields, err := r.client.HGetAll(ctx, redisSnapshotsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	snapshots := make([]Snapshot, 0, len(fields))
	for name, payload := range fields {
		var s Snapshot
		if err := json.Unmarshal([]byte(payload), &s); err != nil {
			return nil, fmt.Errorf("failed to unmarshal snapshot %q: %w", name, err)
		}
		snapshots = append(snapshots, s)
	}
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].SensorName < snapshots[j].SensorName
	})
	return snapshots, nil
}

// ListReadings returns up to limit readings for one sensor, most recent first.
func (r *Redis) ListReadings(ctx context.Context, sensorName string, limit int) ([]Reading, error) {
	if limit <= 0 || limit > redisReadingCap {
		limit = redisReadingCap
	}

	payloads, err := r.client.LRange(ctx, redisReadingsPrefix+sensorName, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list readings: %w", err)
	}

	readings := make([]Reading, 0, len(payloads))
	for _, payload := range payloads {
		var reading Reading
		if err := json.Unmarshal([]byte(payload), &reading); err != nil {
			return nil, fmt.Errorf("failed to unmarshal reading: %w", err)
		}
		readings = append(readings, reading)
	}
	return readings, nil
}

// InsertAlert appends one alert to the capped log and records it as the
// sensor's most recent alert.
func (r *Redis) InsertAlert(ctx context.Context, alert *AlertRecord) error {
	id, err := r.client.Incr(ctx, redisAlertSeqKey).Result()
	if err != nil {
		return fmt.Errorf("failed to assign alert id: %w", err)
	}
	alert.ID = uint(id)

	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, redisAlertsKey, payload)
	pipe.LTrim(ctx, redisAlertsKey, 0, redisAlertCap-1)
	pipe.Set(ctx, redisLastAlertPrefix+alert.SensorName, payload, 0)
	pipe.SAdd(ctx, redisAlertSensorsKey, alert.SensorName)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// MostRecentAlert returns the newest alert for one sensor, or nil when the
// sensor has never alerted.
func (r *Redis) MostRecentAlert(ctx context.Context, sensorName string) (*AlertRecord, error) {
	payload, err := r.client.Get(ctx, redisLastAlertPrefix+sensorName).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get most recent alert: %w", err)
	}

	var alert AlertRecord
	if err := json.Unmarshal([]byte(payload), &alert); err != nil {
		return nil, fmt.Errorf("failed to unmarshal alert: %w", err)
	}
	return &alert, nil
}

// ListAlerts returns up to limit alerts across all sensors, most recent first.
func (r *Redis) ListAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	if limit <= 0 || limit > redisAlertCap {
		limit = redisAlertCap
	}

	payloads, err := r.client.LRange(ctx, redisAlertsKey, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}

	alerts := make([]AlertRecord, 0, len(payloads))
	for _, payload := range payloads {
		var alert AlertRecord
		if err := json.Unmarshal([]byte(payload), &alert); err != nil {
			return nil, fmt.Errorf("failed to unmarshal alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	return alerts, nil
}

// clearAlertsScript drops the alert log and every per-sensor last-alert key
// in one atomic step, so an alert inserted concurrently can never leave a
// last-alert marker behind without a matching log entry.
var clearAlertsScript = redis.NewScript(`
for _, name in ipairs(redis.call("SMEMBERS", KEYS[2])) do
	redis.call("DEL", ARGV[1] .. name)
end
return redis.call("DEL", KEYS[1], KEYS[2])
`)

// ClearAlerts removes the alert log and all per-sensor last-alert entries.
func (r *Redis) ClearAlerts(ctx context.Context) error {
	keys := []string{redisAlertsKey, redisAlertSensorsKey}
	if err := clearAlertsScript.Run(ctx, r.client, keys, redisLastAlertPrefix).Err(); err != nil {
		return fmt.Errorf("failed to clear alerts: %w", err)
	}
	return nil
}

// Ping verifies the Redis connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	r.logger.Info("closing redis connection")
	return r.client.Close()
}
