package repository

import (
	"errors"
	"time"

	"packrat/internal/model"

	"gorm.io/gorm"
)

type TransferRepository struct {
	db *gorm.DB
}

func NewTransferRepository(db *gorm.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

func (r *TransferRepository) Create(transfer *model.Transfer) error {
	return r.db.Create(transfer).Error
}

// CompletedSources returns the set of source paths already completed for an
// execution. Resume excludes these from the next plan.
func (r *TransferRepository) CompletedSources(executionID uint) (map[string]bool, error) {
	var paths []string
	err := r.db.Model(&model.Transfer{}).
		Where("execution_id = ? AND status = ?", executionID, model.TransferCompleted).
		Pluck("source_path", &paths).Error
	if err != nil {
		return nil, err
	}

	completed := make(map[string]bool, len(paths))
	for _, p := range paths {
		completed[p] = true
	}
	return completed, nil
}

func (r *TransferRepository) HasCompleted(executionID uint, sourcePath string) (bool, error) {
	var transfer model.Transfer
	err := r.db.Where("execution_id = ? AND source_path = ? AND status = ?",
		executionID, sourcePath, model.TransferCompleted).
		First(&transfer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r *TransferRepository) GetByExecution(executionID uint) ([]model.Transfer, error) {
	var transfers []model.Transfer
	return transfers, r.db.Where("execution_id = ?", executionID).
		Order("id").
		Find(&transfers).Error
}

func (r *TransferRepository) MarkCompleted(id uint, finalPath, checksum string, bytes int64) error {
	return r.db.Model(&model.Transfer{}).Where("id = ?", id).Updates(map[string]any{
		"status":            model.TransferCompleted,
		"target_path":       finalPath,
		"checksum":          checksum,
		"transferred_bytes": bytes,
		"completed_at":      time.Now().UTC(),
	}).Error
}

// MarkSkipped records a copy the connector declined under the skip policy.
// Skipped counts as success but is not a completed transfer, so a resumed
// run re-checks it (the re-check is a no-op copy).
func (r *TransferRepository) MarkSkipped(id uint, finalPath string) error {
	return r.db.Model(&model.Transfer{}).Where("id = ?", id).Updates(map[string]any{
		"status":       model.TransferSkipped,
		"target_path":  finalPath,
		"completed_at": time.Now().UTC(),
	}).Error
}

func (r *TransferRepository) MarkFailed(id uint, errMsg string) error {
	return r.db.Model(&model.Transfer{}).Where("id = ?", id).Updates(map[string]any{
		"status":        model.TransferFailed,
		"error_message": errMsg,
		"completed_at":  time.Now().UTC(),
	}).Error
}
