package database

import (
	"context"
	"fmt"

	"purpleair_status/models"
	"purpleair_status/status"

	"gorm.io/gorm"
)

// HistoryStore writes each completed refresh to the audit tables. Nothing
// here is read back into the live dashboard state.
type HistoryStore struct {
	db *gorm.DB
}

// NewHistoryStore creates a history store on an open connection
func NewHistoryStore(db *gorm.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// Name identifies the store in logs
func (h *HistoryStore) Name() string { return "history" }

// Consume records a snapshot
func (h *HistoryStore) Consume(ctx context.Context, snapshot *models.Snapshot) error {
	return h.SaveSnapshot(ctx, snapshot)
}

// SaveSnapshot stores the run and one row per sensor in a single transaction
func (h *HistoryStore) SaveSnapshot(ctx context.Context, snapshot *models.Snapshot) error {
	counts := snapshot.Counts()
	run := models.RefreshRun{
		RunID:        snapshot.ID,
		FetchedAt:    snapshot.FetchedAt,
		DurationMs:   snapshot.Duration.Milliseconds(),
		SensorCount:  len(snapshot.Readings),
		OnlineCount:  counts[status.Online],
		LowConfCount: counts[status.LowConfidence],
		OfflineCount: counts[status.Offline],
		ErrorCount:   counts[status.FetchError],
	}

	records := make([]models.SensorStatusRecord, 0, len(snapshot.Readings))
	for _, r := range snapshot.Readings {
		records = append(records, models.SensorStatusRecord{
			RunID:       snapshot.ID,
			SensorIndex: r.SensorIndex,
			FetchedAt:   snapshot.FetchedAt,
			Name:        r.Name,
			Kind:        string(r.Status),
			Label:       r.Label,
			LastSeen:    r.LastSeen,
			Confidence:  r.Confidence,
			PM25:        r.PM25,
		})
	}

	return h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Statuses").Create(&run).Error; err != nil {
			return fmt.Errorf("failed to save refresh run: %w", err)
		}
		if len(records) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(records, 500).Error; err != nil {
			return fmt.Errorf("failed to save sensor statuses: %w", err)
		}
		return nil
	})
}

// RecentRuns returns the latest runs, newest first
func (h *HistoryStore) RecentRuns(ctx context.Context, limit int) ([]models.RefreshRun, error) {
	var runs []models.RefreshRun
	err := h.db.WithContext(ctx).Order("fetched_at DESC").Order("id DESC").Limit(limit).Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load refresh runs: %w", err)
	}
	return runs, nil
}

// Run returns one run with its per-sensor statuses
func (h *HistoryStore) Run(ctx context.Context, runID string) (*models.RefreshRun, error) {
	var run models.RefreshRun
	err := h.db.WithContext(ctx).
		Preload("Statuses", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("run_id = ?", runID).
		First(&run).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load refresh run %s: %w", runID, err)
	}
	return &run, nil
}

// SensorHistory returns the latest statuses of one sensor, newest first
func (h *HistoryStore) SensorHistory(ctx context.Context, sensorIndex, limit int) ([]models.SensorStatusRecord, error) {
	var records []models.SensorStatusRecord
	err := h.db.WithContext(ctx).
		Where("sensor_index = ?", sensorIndex).
		Order("fetched_at DESC").Order("id DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load history for sensor %d: %w", sensorIndex, err)
	}
	return records, nil
}
