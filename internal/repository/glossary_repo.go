package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyerfyer/poli-golly/internal/database"
	"github.com/fyerfyer/poli-golly/internal/models"
	"gorm.io/gorm"
)

// glossaryRepository 术语表任务仓储实现
type glossaryRepository struct {
	db *gorm.DB
}

// NewGlossaryRepository 创建术语表任务仓储
func NewGlossaryRepository() GlossaryRepository {
	return &glossaryRepository{db: database.MustDB()}
}

// NewGlossaryRepositoryWithDB 使用指定的数据库连接创建术语表任务仓储
func NewGlossaryRepositoryWithDB(db *gorm.DB) GlossaryRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &glossaryRepository{db: db}
}

// Create 创建任务记录
func (r *glossaryRepository) Create(job *models.GlossaryJob) error {
	if job.ID == "" {
		return errors.New("glossary job ID cannot be empty")
	}
	return r.db.Create(job).Error
}

// Update 更新任务记录
func (r *glossaryRepository) Update(job *models.GlossaryJob) error {
	if job.ID == "" {
		return errors.New("glossary job ID cannot be empty")
	}
	return r.db.Save(job).Error
}

// GetByID 根据ID获取任务
func (r *glossaryRepository) GetByID(id string) (*models.GlossaryJob, error) {
	var job models.GlossaryJob
	if err := r.db.Where("id = ?", id).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrGlossaryJobNotFound, id)
		}
		return nil, err
	}
	return &job, nil
}

// List 列出任务
func (r *glossaryRepository) List(offset, limit int) ([]*models.GlossaryJob, int64, error) {
	var jobs []*models.GlossaryJob
	var total int64

	query := r.db.Model(&models.GlossaryJob{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&jobs).Error
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

// UpdateStatus 更新任务状态
func (r *glossaryRepository) UpdateStatus(id string, status models.JobStatus, errorMsg string) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}
	if errorMsg != "" {
		updates["error"] = errorMsg
	}
	if status == models.JobStatusCompleted || status == models.JobStatusFailed {
		now := time.Now()
		updates["completed_at"] = &now
	}

	result := r.db.Model(&models.GlossaryJob{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", models.ErrGlossaryJobNotFound, id)
	}
	return nil
}

// UpdateProgress 更新任务进度
func (r *glossaryRepository) UpdateProgress(id string, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	return r.db.Model(&models.GlossaryJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"progress":   progress,
			"updated_at": time.Now(),
		}).Error
}
