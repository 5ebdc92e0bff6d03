package services

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fyerfyer/poli-golly/internal/models"
	"github.com/fyerfyer/poli-golly/internal/repository"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// ChunkSummary 一次分块的统计信息
type ChunkSummary struct {
	Label        string // 分块名称前缀，为空时保持不变
	ChunkLevel   int    // 分块标题深度
	LineCount    int    // 总行数
	HeadingCount int    // 标题数量
	ChunkCount   int    // 分块数量
	CoverageGap  int    // 未覆盖的行数
	AnnexDepths  []int  // 附件标题所在的深度
}

// DocumentStatusManager 文档状态管理器
// 负责管理文档分块的生命周期状态
type DocumentStatusManager struct {
	repo   repository.DocumentRepository // 文档仓储接口
	logger *logrus.Logger                // 日志记录器
	mu     sync.Mutex                    // 互斥锁，保证状态转换的原子性
}

// NewDocumentStatusManager 创建文档状态管理器
func NewDocumentStatusManager(repo repository.DocumentRepository, logger *logrus.Logger) *DocumentStatusManager {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}

	return &DocumentStatusManager{
		repo:   repo,
		logger: logger,
	}
}

// MarkAsUploaded 创建已上传状态的文档记录
func (m *DocumentStatusManager) MarkAsUploaded(ctx context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"doc_id":   doc.ID,
		"filename": doc.FileName,
	}).Info("Marking document as uploaded")

	now := time.Now()
	if doc.FileType == "" {
		doc.FileType = getFileType(doc.FileName)
	}
	doc.Status = models.DocStatusUploaded
	doc.UploadedAt = now
	doc.UpdatedAt = now
	doc.Progress = 0

	return m.repo.Create(doc)
}

// MarkAsProcessing 将文档标记为分块中状态
// 已完成或失败的文档可以重新分块
func (m *DocumentStatusManager) MarkAsProcessing(ctx context.Context, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.repo.GetByID(docID)
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	if err := m.ValidateStateTransition(doc.Status, models.DocStatusProcessing); err != nil {
		return fmt.Errorf("%w: document %s is in %s state", err, docID, doc.Status)
	}

	m.logger.WithField("doc_id", docID).Info("Marking document as processing")

	doc.Status = models.DocStatusProcessing
	doc.Progress = 0
	doc.Error = ""
	doc.ProcessedAt = nil
	return m.repo.Update(doc)
}

// MarkAsCompleted 将文档标记为分块完成状态并记录统计信息
func (m *DocumentStatusManager) MarkAsCompleted(ctx context.Context, docID string, summary ChunkSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.repo.GetByID(docID)
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	if err := m.ValidateStateTransition(doc.Status, models.DocStatusCompleted); err != nil {
		return fmt.Errorf("%w: document %s is in %s state", err, docID, doc.Status)
	}

	m.logger.WithFields(logrus.Fields{
		"doc_id":        docID,
		"chunk_count":   summary.ChunkCount,
		"heading_count": summary.HeadingCount,
		"coverage_gap":  summary.CoverageGap,
	}).Info("Marking document as completed")

	depths, err := json.Marshal(summary.AnnexDepths)
	if err != nil {
		return fmt.Errorf("failed to encode annex depths: %w", err)
	}

	now := time.Now()
	doc.Status = models.DocStatusCompleted
	doc.Progress = 100
	doc.Error = ""
	doc.ProcessedAt = &now
	if summary.Label != "" {
		doc.Label = summary.Label
	}
	doc.ChunkLevel = summary.ChunkLevel
	doc.LineCount = summary.LineCount
	doc.HeadingCount = summary.HeadingCount
	doc.ChunkCount = summary.ChunkCount
	doc.CoverageGap = summary.CoverageGap
	doc.AnnexDepths = datatypes.JSON(depths)
	return m.repo.Update(doc)
}

// MarkAsFailed 将文档标记为分块失败状态
func (m *DocumentStatusManager) MarkAsFailed(ctx context.Context, docID string, errorMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.repo.GetByID(docID); err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	m.logger.WithFields(logrus.Fields{
		"doc_id": docID,
		"error":  errorMsg,
	}).Error("Marking document as failed")

	return m.repo.UpdateStatus(docID, models.DocStatusFailed, errorMsg)
}

// UpdateProgress 更新文档分块进度
func (m *DocumentStatusManager) UpdateProgress(ctx context.Context, docID string, progress int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.repo.GetByID(docID)
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	// 只有分块中的文档才能更新进度
	if doc.Status != models.DocStatusProcessing {
		return fmt.Errorf("cannot update progress: document %s is not in processing state", docID)
	}

	m.logger.WithFields(logrus.Fields{
		"doc_id":   docID,
		"progress": progress,
	}).Debug("Updating document progress")

	return m.repo.UpdateProgress(docID, progress)
}

// SetTask 记录文档当前关联的队列任务
func (m *DocumentStatusManager) SetTask(ctx context.Context, docID, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.repo.GetByID(docID)
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}
	doc.CurrentTaskID = taskID
	return m.repo.Update(doc)
}

// GetStatus 获取文档当前状态
func (m *DocumentStatusManager) GetStatus(ctx context.Context, docID string) (models.DocumentStatus, error) {
	doc, err := m.repo.GetByID(docID)
	if err != nil {
		return "", fmt.Errorf("failed to get document status: %w", err)
	}
	return doc.Status, nil
}

// GetDocument 获取完整的文档对象
func (m *DocumentStatusManager) GetDocument(ctx context.Context, docID string) (*models.Document, error) {
	return m.repo.GetByID(docID)
}

// ListDocuments 获取文档列表
func (m *DocumentStatusManager) ListDocuments(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.Document, int64, error) {
	return m.repo.List(offset, limit, filters)
}

// DeleteDocument 删除文档记录及分块
func (m *DocumentStatusManager) DeleteDocument(ctx context.Context, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.WithField("doc_id", docID).Info("Deleting document status record")
	return m.repo.Delete(docID)
}

// ValidateStateTransition 验证状态转换的有效性
func (m *DocumentStatusManager) ValidateStateTransition(from, to models.DocumentStatus) error {
	validTransitions := map[models.DocumentStatus][]models.DocumentStatus{
		models.DocStatusUploaded: {
			models.DocStatusProcessing,
			models.DocStatusCompleted,
			models.DocStatusFailed,
		},
		models.DocStatusProcessing: {
			models.DocStatusCompleted,
			models.DocStatusFailed,
		},
		// 以新的层级重新分块
		models.DocStatusCompleted: {models.DocStatusProcessing},
		// 允许重试
		models.DocStatusFailed: {models.DocStatusProcessing},
	}

	for _, validTo := range validTransitions[from] {
		if validTo == to {
			return nil
		}
	}
	return models.ErrInvalidDocumentStatus
}

// getFileType 根据文件名获取文件类型
func getFileType(fileName string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), ".")
}
