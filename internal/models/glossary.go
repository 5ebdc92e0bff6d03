package models

import (
	"time"

	"gorm.io/gorm"
)

// JobStatus 术语表任务状态
type JobStatus string

const (
	// JobStatusPending 等待执行
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning 执行中
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted 已完成
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed 失败
	JobStatusFailed JobStatus = "failed"
)

// GlossaryJob 术语表构建任务
type GlossaryJob struct {
	ID              string     `gorm:"primaryKey"`         // 任务ID
	Status          JobStatus  `gorm:"not null;index"`     // 状态
	ChunksFile      string     `gorm:"not null"`           // 分块压缩包的存储ID
	ChunksName      string     `gorm:"not null"`           // 分块压缩包原始文件名
	DefinitionsFile string     `gorm:"not null"`           // 定义表的存储ID
	DefinitionsName string     `gorm:"not null"`           // 定义表原始文件名
	ResultFile      string     `gorm:"size:64"`            // 结果表格的存储ID
	ResultName      string     `gorm:"size:255"`           // 结果表格文件名
	Scorer          string     `gorm:"size:20"`            // 使用的评分器
	ChunkCount      int        `gorm:"not null;default:0"` // 分块数量
	TermCount       int        `gorm:"not null;default:0"` // 术语数量
	Progress        int        `gorm:"not null;default:0"` // 进度（0-100）
	Error           string     `gorm:"type:text"`          // 错误信息
	TaskID          string     `gorm:"size:50;index"`      // 关联的队列任务ID
	CreatedAt       time.Time  `gorm:"not null;index"`     // 创建时间
	UpdatedAt       time.Time  `gorm:"not null"`           // 更新时间
	CompletedAt     *time.Time `gorm:""`                   // 完成时间
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (j *GlossaryJob) BeforeCreate(tx *gorm.DB) (err error) {
	now := time.Now()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	return nil
}

// BeforeUpdate GORM的钩子函数，更新记录前自动设置更新时间
func (j *GlossaryJob) BeforeUpdate(tx *gorm.DB) (err error) {
	j.UpdatedAt = time.Now()
	return nil
}

// TableName 明确指定表名
func (GlossaryJob) TableName() string {
	return "glossary_jobs"
}

// IsFinished 任务是否已结束
func (j *GlossaryJob) IsFinished() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
