package repository

import "github.com/fyerfyer/poli-golly/internal/models"

// DocumentRepository 文档仓储接口
// 负责文档元数据及其分块区间的存储和检索
type DocumentRepository interface {
	// Create 创建文档记录
	Create(doc *models.Document) error

	// Update 更新文档记录
	Update(doc *models.Document) error

	// GetByID 根据ID获取文档
	GetByID(id string) (*models.Document, error)

	// List 列出文档列表，支持分页和筛选
	List(offset, limit int, filters map[string]interface{}) ([]*models.Document, int64, error)

	// Delete 删除文档及其分块
	Delete(id string) error

	// UpdateStatus 更新文档状态
	UpdateStatus(id string, status models.DocumentStatus, errorMsg string) error

	// UpdateProgress 更新文档处理进度
	UpdateProgress(id string, progress int) error

	// ReplaceChunks 用新的分块替换文档已有的全部分块
	ReplaceChunks(docID string, chunks []*models.DocumentChunk) error

	// GetChunks 获取文档的所有分块，按序号升序
	GetChunks(docID string) ([]*models.DocumentChunk, error)

	// GetChunk 获取文档的单个分块
	GetChunk(docID string, position int) (*models.DocumentChunk, error)

	// CountChunks 统计文档的分块数量
	CountChunks(docID string) (int, error)
}

// GlossaryRepository 术语表任务仓储接口
type GlossaryRepository interface {
	// Create 创建任务记录
	Create(job *models.GlossaryJob) error

	// Update 更新任务记录
	Update(job *models.GlossaryJob) error

	// GetByID 根据ID获取任务
	GetByID(id string) (*models.GlossaryJob, error)

	// List 列出任务，按创建时间倒序
	List(offset, limit int) ([]*models.GlossaryJob, int64, error)

	// UpdateStatus 更新任务状态
	UpdateStatus(id string, status models.JobStatus, errorMsg string) error

	// UpdateProgress 更新任务进度
	UpdateProgress(id string, progress int) error
}
