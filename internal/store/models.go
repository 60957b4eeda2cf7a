package store

import (
	"time"
)

// AlertStatus classifies which threshold bound a value violated.
type AlertStatus string

const (
	// AlertStatusLow marks a value below the minimum bound.
	AlertStatusLow AlertStatus = "low"
	// AlertStatusHigh marks a value above the maximum bound.
	AlertStatusHigh AlertStatus = "high"
	// AlertStatusNone marks an in-range value. Never persisted.
	AlertStatusNone AlertStatus = ""
)

// Reading is one accepted measurement in the append-only history.
type Reading struct {
	Timestamp  time.Time `gorm:"index:idx_reading_sensor_ts;index:idx_reading_ts;not null" json:"timestamp"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"-"`
	SensorName string    `gorm:"index:idx_reading_sensor_ts;not null" json:"sensor_name"`
	Unit       string    `json:"unit,omitempty"`
	Value      float64   `gorm:"not null" json:"value"`
	ID         uint      `gorm:"primaryKey" json:"-"`
}

// TableName specifies the table name for the Reading model.
func (Reading) TableName() string {
	return "readings"
}

// Snapshot is the latest accepted value for one sensor. UpdatedAt carries the
// timestamp of the reading that produced it.
type Snapshot struct {
	UpdatedAt  time.Time `gorm:"not null" json:"updated_at"`
	SensorName string    `gorm:"uniqueIndex;not null" json:"sensor_name"`
	Kind       string    `json:"kind,omitempty"`
	Unit       string    `json:"unit,omitempty"`
	Location   string    `json:"location,omitempty"`
	Value      float64   `gorm:"not null" json:"value"`
	ID         uint      `gorm:"primaryKey" json:"-"`
}

// TableName specifies the table name for the Snapshot model.
func (Snapshot) TableName() string {
	return "snapshots"
}

// AlertRecord is one raised alert in the alert log.
type AlertRecord struct {
	RaisedAt   time.Time   `gorm:"index:idx_alert_raised;index:idx_alert_sensor_raised;not null" json:"raised_at"`
	CreatedAt  time.Time   `gorm:"autoCreateTime" json:"-"`
	SensorName string      `gorm:"index:idx_alert_sensor_raised;not null" json:"sensor_name"`
	Kind       string      `json:"kind,omitempty"`
	Unit       string      `json:"unit,omitempty"`
	Status     AlertStatus `gorm:"not null" json:"status"`
	Message    string      `json:"message"`
	Value      float64     `gorm:"not null" json:"value"`
	ID         uint        `gorm:"primaryKey" json:"id"`
}

// TableName specifies the table name for the AlertRecord model.
func (AlertRecord) TableName() string {
	return "alerts"
}
