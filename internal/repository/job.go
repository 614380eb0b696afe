package repository

import (
	"packrat/internal/model"

	"gorm.io/gorm"
)

type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(job *model.Job) error {
	return r.db.Create(job).Error
}

func (r *JobRepository) GetByID(id uint) (model.Job, error) {
	var job model.Job
	return job, r.db.First(&job, id).Error
}

func (r *JobRepository) GetAll() ([]model.Job, error) {
	var jobs []model.Job
	return jobs, r.db.Where("active = ?", true).Order("id").Find(&jobs).Error
}

// Deactivate soft-deletes a job: the row stays, the engine stops offering it.
func (r *JobRepository) Deactivate(id uint) error {
	return r.db.Model(&model.Job{}).
		Where("id = ?", id).
		Update("active", false).Error
}

// Delete removes a job and cascades to its executions and their transfers.
func (r *JobRepository) Delete(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var execIDs []uint
		if err := tx.Model(&model.Execution{}).
			Where("job_id = ?", id).
			Pluck("id", &execIDs).Error; err != nil {
			return err
		}

		if len(execIDs) > 0 {
			if err := tx.Where("execution_id IN ?", execIDs).
				Delete(&model.Transfer{}).Error; err != nil {
				return err
			}
			if err := tx.Where("job_id = ?", id).
				Delete(&model.Execution{}).Error; err != nil {
				return err
			}
		}

		return tx.Delete(&model.Job{}, id).Error
	})
}
