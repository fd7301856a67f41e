package database

import (
	"time"

	"gorm.io/gorm"
)

// RunRepository handles run history database operations
type RunRepository struct {
	db *gorm.DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create adds a new run record
func (r *RunRepository) Create(run *Run) error {
	return r.db.Create(run).Error
}

// GetByRunID retrieves a run by its uuid
func (r *RunRepository) GetByRunID(runID string) (*Run, error) {
	var run Run
	if err := r.db.Where("run_id = ?", runID).First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// GetRecent retrieves the most recent N runs
func (r *RunRepository) GetRecent(limit int) ([]Run, error) {
	var runs []Run
	err := r.db.Order("start_time DESC").Limit(limit).Find(&runs).Error
	return runs, err
}

// GetByCode retrieves runs for one code and decoder, ordered by Eb/N0
func (r *RunRepository) GetByCode(code, decoder string, limit int) ([]Run, error) {
	var runs []Run
	err := r.db.Where("code = ? AND decoder = ?", code, decoder).
		Order("ebn0 ASC, start_time DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

// Count returns the number of stored runs
func (r *RunRepository) Count() (int64, error) {
	var total int64
	err := r.db.Model(&Run{}).Count(&total).Error
	return total, err
}

// DeleteOlderThan deletes runs started before the specified time
func (r *RunRepository) DeleteOlderThan(before time.Time) (int64, error) {
	result := r.db.Where("start_time < ?", before).Delete(&Run{})
	return result.RowsAffected, result.Error
}
