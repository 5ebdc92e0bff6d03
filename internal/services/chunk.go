package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/fyerfyer/poli-golly/internal/cache"
	"github.com/fyerfyer/poli-golly/internal/chunker"
	"github.com/fyerfyer/poli-golly/internal/document"
	"github.com/fyerfyer/poli-golly/internal/models"
	"github.com/fyerfyer/poli-golly/internal/repository"
	"github.com/fyerfyer/poli-golly/pkg/storage"
	"github.com/fyerfyer/poli-golly/pkg/taskqueue"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ChunkService 分块服务
// 负责协调文档存储、标题分块、分块持久化和打包导出
type ChunkService struct {
	storage       storage.Storage               // 文件存储服务
	extractor     document.Extractor            // Markdown文本读取
	repo          repository.DocumentRepository // 文档元数据存储
	statusManager *DocumentStatusManager        // 文档状态管理器
	cache         cache.Cache                   // 分块结果缓存
	cacheTTL      time.Duration                 // 缓存时间
	taskQueue     taskqueue.Queue               // 任务队列
	asyncEnabled  bool                          // 是否启用异步处理
	defaultLevel  int                           // 默认分块深度
	maxLines      int                           // 单个文档最大行数
	timeout       time.Duration                 // 处理超时时间
	logger        *logrus.Logger                // 日志记录器
}

// ChunkOption 分块服务配置选项
type ChunkOption func(*ChunkService)

// RenderedChunk 渲染后的单个分块
type RenderedChunk struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	FileName  string `json:"file_name"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Lines     string `json:"lines"`
	IsAnnex   bool   `json:"is_annex"`
	Markdown  string `json:"markdown"`
}

// NewChunkService 创建一个新的分块服务
func NewChunkService(storage storage.Storage, opts ...ChunkOption) *ChunkService {
	srv := &ChunkService{
		storage:      storage,
		extractor:    document.NewTextExtractor(),
		cacheTTL:     time.Hour,
		defaultLevel: 1,
		maxLines:     chunker.DefaultMaxLines,
		timeout:      time.Minute * 5,
		logger:       logrus.New(),
	}

	for _, opt := range opts {
		opt(srv)
	}

	return srv
}

// WithTimeout 设置处理超时时间
func WithTimeout(timeout time.Duration) ChunkOption {
	return func(s *ChunkService) {
		s.timeout = timeout
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) ChunkOption {
	return func(s *ChunkService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDocumentRepository 设置文档仓储
func WithDocumentRepository(repo repository.DocumentRepository) ChunkOption {
	return func(s *ChunkService) {
		s.repo = repo
	}
}

// WithStatusManager 设置状态管理器
func WithStatusManager(manager *DocumentStatusManager) ChunkOption {
	return func(s *ChunkService) {
		s.statusManager = manager
	}
}

// WithTaskQueue 设置任务队列
func WithTaskQueue(queue taskqueue.Queue) ChunkOption {
	return func(s *ChunkService) {
		s.taskQueue = queue
		s.asyncEnabled = queue != nil
	}
}

// WithAsyncProcessing 设置是否启用异步处理
func WithAsyncProcessing(enabled bool) ChunkOption {
	return func(s *ChunkService) {
		s.asyncEnabled = enabled
	}
}

// WithCache 设置分块结果缓存
func WithCache(c cache.Cache, ttl time.Duration) ChunkOption {
	return func(s *ChunkService) {
		s.cache = c
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithDefaultLevel 设置默认分块深度
func WithDefaultLevel(level int) ChunkOption {
	return func(s *ChunkService) {
		if chunker.ValidateLevel(level) == nil {
			s.defaultLevel = level
		}
	}
}

// WithMaxLines 设置单个文档的最大行数，0表示不限制
func WithMaxLines(n int) ChunkOption {
	return func(s *ChunkService) {
		if n >= 0 {
			s.maxLines = n
		}
	}
}

// Init 初始化分块服务
// 确保必要的依赖都已设置
func (s *ChunkService) Init() error {
	if s.storage == nil {
		return errors.New("storage is not configured")
	}

	// 如果没有设置仓储，创建默认仓储
	if s.repo == nil {
		s.repo = repository.NewDocumentRepository()
	}

	// 如果没有设置状态管理器，创建默认状态管理器
	if s.statusManager == nil {
		s.statusManager = NewDocumentStatusManager(s.repo, s.logger)
	}

	return nil
}

// DefaultLabel 文件名去掉最后一个扩展名后作为分块名称前缀
func DefaultLabel(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// UploadDocument 保存上传的Markdown文档并分块
// 启用任务队列时只入队，文档状态保持为uploaded
func (s *ChunkService) UploadDocument(ctx context.Context, r io.Reader, filename, label string, level int) (*models.Document, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}

	if !document.IsChunkable(filename) {
		return nil, fmt.Errorf("%w: %s", document.ErrUnsupportedType, filepath.Ext(filename))
	}
	if level == 0 {
		level = s.defaultLevel
	}
	if err := chunker.ValidateLevel(level); err != nil {
		return nil, err
	}
	if strings.TrimSpace(label) == "" {
		label = DefaultLabel(filename)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	sum := sha256.Sum256(data)

	info, err := s.storage.Save(ctx, bytes.NewReader(data), filename)
	if err != nil {
		return nil, fmt.Errorf("failed to save file: %w", err)
	}

	doc := &models.Document{
		ID:          uuid.New().String(),
		FileName:    filename,
		Label:       label,
		FilePath:    info.ID,
		FileSize:    info.Size,
		ContentHash: hex.EncodeToString(sum[:]),
		ChunkLevel:  level,
	}
	if err := s.statusManager.MarkAsUploaded(ctx, doc); err != nil {
		_ = s.storage.Delete(ctx, info.ID)
		return nil, fmt.Errorf("failed to create document record: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"doc_id":      doc.ID,
		"filename":    filename,
		"chunk_level": level,
		"async":       s.asyncEnabled,
	}).Info("Document uploaded")

	if s.asyncEnabled && s.taskQueue != nil {
		if err := s.enqueueChunking(ctx, doc.ID, level, label); err != nil {
			return nil, err
		}
	} else if _, err := s.ChunkDocument(ctx, doc.ID, level, label); err != nil {
		return nil, err
	}

	return s.repo.GetByID(doc.ID)
}

// RechunkDocument 以新的层级重新分块
func (s *ChunkService) RechunkDocument(ctx context.Context, docID string, level int, label string) (*models.Document, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}
	if err := chunker.ValidateLevel(level); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetByID(docID); err != nil {
		return nil, err
	}

	if s.asyncEnabled && s.taskQueue != nil {
		if err := s.enqueueChunking(ctx, docID, level, label); err != nil {
			return nil, err
		}
	} else if _, err := s.ChunkDocument(ctx, docID, level, label); err != nil {
		return nil, err
	}
	return s.repo.GetByID(docID)
}

// enqueueChunking 创建分块任务并记录到文档
func (s *ChunkService) enqueueChunking(ctx context.Context, docID string, level int, label string) error {
	payload := taskqueue.ChunkDocumentPayload{
		DocumentID: docID,
		ChunkLevel: level,
		Label:      label,
	}

	taskID, err := s.taskQueue.Enqueue(ctx, taskqueue.TaskChunkDocument, docID, payload)
	if err != nil {
		s.failDocument(ctx, docID, fmt.Sprintf("failed to create chunking task: %v", err))
		return fmt.Errorf("failed to create chunking task: %w", err)
	}

	if err := s.statusManager.SetTask(ctx, docID, taskID); err != nil {
		s.logger.WithError(err).Warn("Failed to record task on document")
	}

	s.logger.WithFields(logrus.Fields{
		"doc_id":  docID,
		"task_id": taskID,
	}).Info("Chunking task created successfully")
	return nil
}

// ChunkDocument 对已上传的文档进行分块
// level为0时使用文档记录中的层级，label为空时沿用文档记录中的名称前缀
func (s *ChunkService) ChunkDocument(ctx context.Context, docID string, level int, label string) (*chunker.Result, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	doc, err := s.repo.GetByID(docID)
	if err != nil {
		return nil, err
	}
	if level == 0 {
		level = doc.ChunkLevel
	}
	if err := chunker.ValidateLevel(level); err != nil {
		return nil, err
	}
	if label == "" {
		label = doc.Label
	}

	log := s.logger.WithFields(logrus.Fields{
		"doc_id":      docID,
		"chunk_level": level,
		"label":       label,
	})
	log.Info("Starting document chunking")

	if err := s.statusManager.MarkAsProcessing(ctx, docID); err != nil {
		log.WithError(err).Warn("Failed to mark document as processing")
	}

	text, err := s.loadText(ctx, doc)
	if err != nil {
		s.failDocument(ctx, docID, fmt.Sprintf("failed to load document: %v", err))
		return nil, fmt.Errorf("failed to load document: %w", err)
	}

	if err := s.statusManager.UpdateProgress(ctx, docID, 30); err != nil {
		log.WithError(err).Debug("Failed to update document progress")
	}

	result, err := s.plan(text, doc.ContentHash, level, label)
	if err != nil {
		s.failDocument(ctx, docID, fmt.Sprintf("failed to split document: %v", err))
		return nil, fmt.Errorf("failed to split document: %w", err)
	}

	names := chunker.UniqueFileNames(result.Chunks)
	rows := make([]*models.DocumentChunk, len(result.Chunks))
	for i, c := range result.Chunks {
		rows[i] = &models.DocumentChunk{
			DocumentID: docID,
			Position:   i,
			Name:       c.Name,
			FileName:   names[i],
			StartLine:  c.Start,
			EndLine:    c.End,
			IsAnnex:    c.IsAnnex,
		}
	}
	if err := s.repo.ReplaceChunks(docID, rows); err != nil {
		s.failDocument(ctx, docID, fmt.Sprintf("failed to save chunks: %v", err))
		return nil, fmt.Errorf("failed to save chunks: %w", err)
	}

	gap := result.Coverage.GapLines()
	if gap > 0 {
		log.WithField("uncovered_lines", gap).Warn("Chunks do not cover the whole document")
	}
	if !result.HasHeadings() {
		log.Warn("No headings detected, the whole document is a single chunk")
	}

	summary := ChunkSummary{
		Label:        label,
		ChunkLevel:   level,
		LineCount:    len(result.Lines),
		HeadingCount: len(result.Headings),
		ChunkCount:   len(result.Chunks),
		CoverageGap:  gap,
		AnnexDepths:  result.AnnexDepths,
	}
	if err := s.statusManager.MarkAsCompleted(ctx, docID, summary); err != nil {
		return nil, fmt.Errorf("failed to mark document as completed: %w", err)
	}

	log.WithFields(logrus.Fields{
		"heading_count": summary.HeadingCount,
		"chunk_count":   summary.ChunkCount,
	}).Info("Document chunking completed successfully")

	return result, nil
}

// plan 计算分块结果，相同内容、层级和名称前缀的结果从缓存读取
func (s *ChunkService) plan(text, contentHash string, level int, label string) (*chunker.Result, error) {
	splitter, err := chunker.NewHeadingSplitter(chunker.SplitterConfig{
		ChunkLevel: level,
		Label:      label,
		MaxLines:   s.maxLines,
	})
	if err != nil {
		return nil, err
	}

	// 行数上限不在缓存键中，命中缓存前也要校验
	lines := chunker.SplitLines(text)
	if err := chunker.CheckSize(len(lines), s.maxLines); err != nil {
		return nil, err
	}

	if s.cache == nil || contentHash == "" {
		return splitter.SplitLines(lines)
	}

	key := cache.PartitionKey(contentHash, level, label)
	var cached chunker.Result
	found, err := cache.GetJSON(s.cache, key, &cached)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to read partition cache")
	}
	if found {
		// 缓存中不保存原文
		cached.Lines = lines
		s.logger.WithField("key", key).Debug("Partition cache hit")
		return &cached, nil
	}

	result, err := splitter.SplitLines(lines)
	if err != nil {
		return nil, err
	}
	if err := cache.SetJSON(s.cache, key, result, s.cacheTTL); err != nil {
		s.logger.WithError(err).Warn("Failed to write partition cache")
	}
	return result, nil
}

// loadText 从存储中读取文档文本
func (s *ChunkService) loadText(ctx context.Context, doc *models.Document) (string, error) {
	rc, err := s.storage.Get(ctx, doc.FilePath)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	return s.extractor.Extract(ctx, rc)
}

// completedDocument 获取已完成分块的文档及其原文行
func (s *ChunkService) completedDocument(ctx context.Context, docID string) (*models.Document, []string, error) {
	if err := s.Init(); err != nil {
		return nil, nil, err
	}

	doc, err := s.repo.GetByID(docID)
	if err != nil {
		return nil, nil, err
	}
	if doc.Status != models.DocStatusCompleted {
		return nil, nil, fmt.Errorf("%w: document %s is in %s state", ErrDocumentNotReady, docID, doc.Status)
	}

	text, err := s.loadText(ctx, doc)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load document: %w", err)
	}
	return doc, chunker.SplitLines(text), nil
}

// toChunk 将分块记录转换为分块区间
func toChunk(row *models.DocumentChunk) chunker.Chunk {
	return chunker.Chunk{
		Name:    row.Name,
		Start:   row.StartLine,
		End:     row.EndLine,
		IsAnnex: row.IsAnnex,
	}
}

// RenderChunk 渲染文档的第index个分块
func (s *ChunkService) RenderChunk(ctx context.Context, docID string, index int) (*RenderedChunk, error) {
	_, lines, err := s.completedDocument(ctx, docID)
	if err != nil {
		return nil, err
	}

	row, err := s.repo.GetChunk(docID, index)
	if err != nil {
		return nil, err
	}

	c := toChunk(row)
	return &RenderedChunk{
		Index:     row.Position,
		Name:      row.Name,
		FileName:  row.FileName,
		StartLine: row.StartLine,
		EndLine:   row.EndLine,
		Lines:     chunker.LineRange(c),
		IsAnnex:   row.IsAnnex,
		Markdown:  chunker.Render(c, lines),
	}, nil
}

// PreviewChunk 将分块渲染为HTML
func (s *ChunkService) PreviewChunk(ctx context.Context, docID string, index int) ([]byte, error) {
	chunk, err := s.RenderChunk(ctx, docID, index)
	if err != nil {
		return nil, err
	}
	return document.RenderHTML(chunk.Markdown), nil
}

// ListChunks 获取文档的分块列表
func (s *ChunkService) ListChunks(ctx context.Context, docID string) ([]*models.DocumentChunk, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetByID(docID); err != nil {
		return nil, err
	}
	return s.repo.GetChunks(docID)
}

// BundleChunks 将文档的全部分块打包写入w，返回压缩包文件名
func (s *ChunkService) BundleChunks(ctx context.Context, docID string, w io.Writer) (string, error) {
	doc, lines, err := s.completedDocument(ctx, docID)
	if err != nil {
		return "", err
	}

	rows, err := s.repo.GetChunks(docID)
	if err != nil {
		return "", err
	}
	chunks := make([]chunker.Chunk, len(rows))
	for i, row := range rows {
		chunks[i] = toChunk(row)
	}

	if err := WriteBundle(w, &chunker.Result{Lines: lines, Chunks: chunks}); err != nil {
		return "", err
	}

	s.logger.WithFields(logrus.Fields{
		"doc_id":      docID,
		"chunk_count": len(chunks),
	}).Info("Chunks bundled")
	return chunker.BundleName(doc.Label), nil
}

// GetDocument 获取文档
func (s *ChunkService) GetDocument(ctx context.Context, docID string) (*models.Document, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}
	return s.statusManager.GetDocument(ctx, docID)
}

// ListDocuments 获取文档列表
func (s *ChunkService) ListDocuments(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.Document, int64, error) {
	if err := s.Init(); err != nil {
		return nil, 0, err
	}
	return s.statusManager.ListDocuments(ctx, offset, limit, filters)
}

// DeleteDocument 删除文档、分块记录和存储的原文
func (s *ChunkService) DeleteDocument(ctx context.Context, docID string) error {
	if err := s.Init(); err != nil {
		return err
	}

	doc, err := s.repo.GetByID(docID)
	if err != nil {
		return err
	}

	if err := s.storage.Delete(ctx, doc.FilePath); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.WithError(err).WithField("doc_id", docID).Warn("Failed to delete stored file")
	}

	return s.statusManager.DeleteDocument(ctx, docID)
}

// HandleChunkTask 处理队列中的分块任务
func (s *ChunkService) HandleChunkTask(ctx context.Context, task *taskqueue.Task) (interface{}, error) {
	var payload taskqueue.ChunkDocumentPayload
	if err := taskqueue.UnmarshalPayload(task.Payload, &payload); err != nil {
		return nil, err
	}
	if payload.DocumentID == "" {
		return nil, fmt.Errorf("%w: document_id is required", taskqueue.ErrInvalidPayload)
	}

	result, err := s.ChunkDocument(ctx, payload.DocumentID, payload.ChunkLevel, payload.Label)
	if err != nil {
		if errors.Is(err, models.ErrDocumentNotFound) || errors.Is(err, chunker.ErrInvalidChunkLevel) {
			return nil, fmt.Errorf("%w: %v", taskqueue.ErrInvalidPayload, err)
		}
		return nil, err
	}

	return taskqueue.ChunkDocumentResult{
		DocumentID:   payload.DocumentID,
		LineCount:    len(result.Lines),
		HeadingCount: len(result.Headings),
		ChunkCount:   len(result.Chunks),
		CoverageGap:  result.Coverage.GapLines(),
	}, nil
}

// failDocument 将文档标记为失败
func (s *ChunkService) failDocument(ctx context.Context, docID, msg string) {
	// 使用独立的上下文，避免超时导致状态无法写入
	if err := s.statusManager.MarkAsFailed(context.Background(), docID, msg); err != nil {
		s.logger.WithError(err).WithField("doc_id", docID).Error("Failed to mark document as failed")
	}
}
