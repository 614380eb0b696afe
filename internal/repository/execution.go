package repository

import (
	"time"

	"packrat/internal/model"

	"gorm.io/gorm"
)

type ExecutionRepository struct {
	db *gorm.DB
}

func NewExecutionRepository(db *gorm.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

func (r *ExecutionRepository) Create(exec *model.Execution) error {
	return r.db.Create(exec).Error
}

func (r *ExecutionRepository) GetByID(id uint) (model.Execution, error) {
	var exec model.Execution
	return exec, r.db.First(&exec, id).Error
}

// FindPaused returns the most recent paused execution for a job, or
// gorm.ErrRecordNotFound when there is nothing to resume.
func (r *ExecutionRepository) FindPaused(jobID uint) (model.Execution, error) {
	var exec model.Execution
	err := r.db.Where("job_id = ? AND status = ?", jobID, model.ExecutionPaused).
		Order("started_at desc").
		First(&exec).Error
	return exec, err
}

func (r *ExecutionRepository) ListPaused() ([]model.Execution, error) {
	var execs []model.Execution
	return execs, r.db.Where("status = ?", model.ExecutionPaused).
		Order("started_at desc").
		Find(&execs).Error
}

func (r *ExecutionRepository) GetRecent(limit int) ([]model.Execution, error) {
	var execs []model.Execution
	return execs, r.db.Order("started_at desc").Limit(limit).Find(&execs).Error
}

func (r *ExecutionRepository) MarkRunning(id uint, resumed bool) error {
	updates := map[string]any{"status": model.ExecutionRunning}
	if resumed {
		updates["resumed_at"] = time.Now().UTC()
	}
	return r.db.Model(&model.Execution{}).Where("id = ?", id).Updates(updates).Error
}

func (r *ExecutionRepository) MarkPaused(id uint) error {
	return r.db.Model(&model.Execution{}).Where("id = ?", id).Updates(map[string]any{
		"status":    model.ExecutionPaused,
		"paused_at": time.Now().UTC(),
	}).Error
}

// MarkTerminal finalizes an execution. errMsg is kept even when empty so a
// resumed run clears stale messages.
func (r *ExecutionRepository) MarkTerminal(id uint, status model.ExecutionStatus, errMsg string) error {
	return r.db.Model(&model.Execution{}).Where("id = ?", id).Updates(map[string]any{
		"status":        status,
		"completed_at":  time.Now().UTC(),
		"error_message": errMsg,
	}).Error
}

// SetTotals records the full scanned set size. Called once, when a brand-new
// execution starts; resumed executions keep their original totals so progress
// percentages stay stable.
func (r *ExecutionRepository) SetTotals(id uint, totalFiles int, totalBytes int64) error {
	return r.db.Model(&model.Execution{}).Where("id = ?", id).Updates(map[string]any{
		"total_files": totalFiles,
		"total_bytes": totalBytes,
	}).Error
}

// RecordProgress persists the running counters after each transfer attempt.
func (r *ExecutionRepository) RecordProgress(id uint, processed, failed int, transferredBytes int64) error {
	return r.db.Model(&model.Execution{}).Where("id = ?", id).Updates(map[string]any{
		"processed_files":   processed,
		"failed_files":      failed,
		"transferred_bytes": transferredBytes,
	}).Error
}

// PurgeOlderThan bulk-deletes terminal executions completed before the cutoff,
// together with their transfers. Non-terminal executions are never touched.
func (r *ExecutionRepository) PurgeOlderThan(days int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	terminal := []model.ExecutionStatus{
		model.ExecutionCompleted,
		model.ExecutionCompletedWithErrors,
		model.ExecutionFailed,
		model.ExecutionCancelled,
	}

	var purged int64
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var ids []uint
		if err := tx.Model(&model.Execution{}).
			Where("status IN ? AND completed_at < ?", terminal, cutoff).
			Pluck("id", &ids).Error; err != nil {
			return err
		}

		if len(ids) == 0 {
			return nil
		}

		if err := tx.Where("execution_id IN ?", ids).
			Delete(&model.Transfer{}).Error; err != nil {
			return err
		}

		result := tx.Delete(&model.Execution{}, ids)
		purged = result.RowsAffected
		return result.Error
	})

	return purged, err
}
