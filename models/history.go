package models

import (
	"time"
)

// RefreshRun records one completed refresh in the history store
type RefreshRun struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID        string    `gorm:"uniqueIndex;not null;size:36" json:"run_id"`
	FetchedAt    time.Time `gorm:"index;not null" json:"fetched_at"`
	DurationMs   int64     `gorm:"not null" json:"duration_ms"`
	SensorCount  int       `gorm:"not null" json:"sensor_count"`
	OnlineCount  int       `gorm:"not null" json:"online_count"`
	LowConfCount int       `gorm:"not null" json:"low_confidence_count"`
	OfflineCount int       `gorm:"not null" json:"offline_count"`
	ErrorCount   int       `gorm:"not null" json:"error_count"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`

	Statuses []SensorStatusRecord `gorm:"foreignKey:RunID;references:RunID" json:"statuses,omitempty"`
}

// TableName customizes the table name
func (RefreshRun) TableName() string {
	return "refresh_runs"
}

// SensorStatusRecord is one sensor's status within a refresh run
type SensorStatusRecord struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID       string    `gorm:"index;not null;size:36" json:"run_id"`
	SensorIndex int       `gorm:"index:idx_sensor_fetched;not null" json:"sensor_index"`
	FetchedAt   time.Time `gorm:"index:idx_sensor_fetched;not null" json:"fetched_at"`
	Name        string    `gorm:"size:255" json:"name"`
	Kind        string    `gorm:"size:32;not null" json:"kind"`
	Label       string    `gorm:"size:255;not null" json:"label"`
	LastSeen    *int64    `json:"last_seen,omitempty"`
	Confidence  *int      `json:"confidence,omitempty"`
	PM25        *float64  `json:"pm25,omitempty"`
}

// TableName customizes the table name
func (SensorStatusRecord) TableName() string {
	return "sensor_status_history"
}

// GetAllModels returns all models for migration
func GetAllModels() []interface{} {
	return []interface{}{
		&RefreshRun{},
		&SensorStatusRecord{},
	}
}
