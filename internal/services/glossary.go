package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fyerfyer/poli-golly/internal/definitions"
	"github.com/fyerfyer/poli-golly/internal/glossary"
	"github.com/fyerfyer/poli-golly/internal/models"
	"github.com/fyerfyer/poli-golly/internal/repository"
	"github.com/fyerfyer/poli-golly/pkg/storage"
	"github.com/fyerfyer/poli-golly/pkg/taskqueue"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// GlossaryService 术语表构建服务
// 对分块压缩包中的每个分块按定义表中的术语评分，结果保存为Excel表格
type GlossaryService struct {
	storage          storage.Storage               // 文件存储服务
	scorer           glossary.Scorer               // 术语评分器
	scorerName       string                        // 评分器名称
	repo             repository.GlossaryRepository // 任务记录存储
	taskQueue        taskqueue.Queue               // 任务队列
	asyncEnabled     bool                          // 是否启用异步处理
	concurrency      int                           // 并行评分的分块数
	requestInterval  time.Duration                 // 每个分块之后的等待时间
	termColumn       string                        // 术语列名
	definitionColumn string                        // 定义列名
	timeout          time.Duration                 // 单个任务的超时时间
	logger           *logrus.Logger                // 日志记录器
}

// GlossaryOption 术语表服务配置选项
type GlossaryOption func(*GlossaryService)

// GlossaryResults 术语表结果及可用于排序的术语
type GlossaryResults struct {
	Job      *models.GlossaryJob `json:"job"`
	Terms    []string            `json:"terms"`
	SortedBy string              `json:"sorted_by,omitempty"`
	Results  []glossary.Result   `json:"results"`
}

// NewGlossaryService 创建术语表服务
func NewGlossaryService(storage storage.Storage, scorer glossary.Scorer, opts ...GlossaryOption) *GlossaryService {
	srv := &GlossaryService{
		storage:          storage,
		scorer:           scorer,
		scorerName:       "keyword",
		concurrency:      1,
		termColumn:       definitions.DefaultTermColumn,
		definitionColumn: definitions.DefaultDefinitionColumn,
		timeout:          time.Hour,
		logger:           logrus.New(),
	}

	for _, opt := range opts {
		opt(srv)
	}

	return srv
}

// WithGlossaryLogger 设置日志记录器
func WithGlossaryLogger(logger *logrus.Logger) GlossaryOption {
	return func(s *GlossaryService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithGlossaryRepository 设置任务仓储
func WithGlossaryRepository(repo repository.GlossaryRepository) GlossaryOption {
	return func(s *GlossaryService) {
		s.repo = repo
	}
}

// WithGlossaryTaskQueue 设置任务队列
func WithGlossaryTaskQueue(queue taskqueue.Queue) GlossaryOption {
	return func(s *GlossaryService) {
		s.taskQueue = queue
		s.asyncEnabled = queue != nil
	}
}

// WithScorerName 设置记录在任务中的评分器名称
func WithScorerName(name string) GlossaryOption {
	return func(s *GlossaryService) {
		if name != "" {
			s.scorerName = name
		}
	}
}

// WithScoring 设置并发数和请求间隔
func WithScoring(concurrency int, interval time.Duration) GlossaryOption {
	return func(s *GlossaryService) {
		if concurrency > 0 {
			s.concurrency = concurrency
		}
		if interval >= 0 {
			s.requestInterval = interval
		}
	}
}

// WithTermColumns 设置定义表中的术语列和定义列
func WithTermColumns(term, definition string) GlossaryOption {
	return func(s *GlossaryService) {
		if term != "" {
			s.termColumn = term
		}
		if definition != "" {
			s.definitionColumn = definition
		}
	}
}

// WithGlossaryTimeout 设置单个任务的超时时间
func WithGlossaryTimeout(timeout time.Duration) GlossaryOption {
	return func(s *GlossaryService) {
		s.timeout = timeout
	}
}

// Init 初始化术语表服务
func (s *GlossaryService) Init() error {
	if s.storage == nil {
		return errors.New("storage is not configured")
	}
	if s.scorer == nil {
		return errors.New("scorer is not configured")
	}
	if s.repo == nil {
		s.repo = repository.NewGlossaryRepository()
	}
	return nil
}

// CreateJob 保存分块压缩包和定义表并创建术语表任务
// 两个文件都会先校验，启用任务队列时只入队
func (s *GlossaryService) CreateJob(ctx context.Context, chunks io.Reader, chunksName string, defs io.Reader, defsName string) (*models.GlossaryJob, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}

	defsData, err := io.ReadAll(defs)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions: %w", err)
	}
	terms, err := s.readTerms(defsData, defsName)
	if err != nil {
		return nil, err
	}

	chunksData, err := io.ReadAll(chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunks archive: %w", err)
	}
	chunkTexts, err := readChunkTexts(chunksData)
	if err != nil {
		return nil, err
	}

	chunksInfo, err := s.storage.Save(ctx, bytes.NewReader(chunksData), chunksName)
	if err != nil {
		return nil, fmt.Errorf("failed to save chunks archive: %w", err)
	}
	defsInfo, err := s.storage.Save(ctx, bytes.NewReader(defsData), defsName)
	if err != nil {
		_ = s.storage.Delete(ctx, chunksInfo.ID)
		return nil, fmt.Errorf("failed to save definitions: %w", err)
	}

	job := &models.GlossaryJob{
		ID:              uuid.New().String(),
		Status:          models.JobStatusPending,
		ChunksFile:      chunksInfo.ID,
		ChunksName:      chunksName,
		DefinitionsFile: defsInfo.ID,
		DefinitionsName: defsName,
		Scorer:          s.scorerName,
		ChunkCount:      len(chunkTexts),
		TermCount:       len(terms),
	}
	if err := s.repo.Create(job); err != nil {
		return nil, fmt.Errorf("failed to create glossary job: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"job_id":      job.ID,
		"chunk_count": job.ChunkCount,
		"term_count":  job.TermCount,
		"async":       s.asyncEnabled,
	}).Info("Glossary job created")

	if s.asyncEnabled && s.taskQueue != nil {
		taskID, err := s.taskQueue.Enqueue(ctx, taskqueue.TaskGlossaryBuild, job.ID, taskqueue.GlossaryBuildPayload{JobID: job.ID})
		if err != nil {
			s.failJob(job.ID, fmt.Sprintf("failed to create glossary task: %v", err))
			return nil, fmt.Errorf("failed to create glossary task: %w", err)
		}
		job.TaskID = taskID
		if err := s.repo.Update(job); err != nil {
			s.logger.WithError(err).Warn("Failed to record task on glossary job")
		}
		return job, nil
	}

	return s.RunJob(ctx, job.ID)
}

// RunJob 执行术语表任务
// 已完成的任务直接返回
func (s *GlossaryService) RunJob(ctx context.Context, jobID string) (*models.GlossaryJob, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	job, err := s.repo.GetByID(jobID)
	if err != nil {
		return nil, err
	}
	if job.Status == models.JobStatusCompleted {
		return job, nil
	}

	log := s.logger.WithField("job_id", jobID)
	if err := s.repo.UpdateStatus(jobID, models.JobStatusRunning, ""); err != nil {
		log.WithError(err).Warn("Failed to mark glossary job as running")
	}

	chunksData, err := storage.ReadAll(ctx, s.storage, job.ChunksFile)
	if err != nil {
		return nil, s.failJob(jobID, fmt.Sprintf("failed to load chunks archive: %v", err))
	}
	chunks, err := readChunkTexts(chunksData)
	if err != nil {
		return nil, s.failJob(jobID, err.Error())
	}

	defsData, err := storage.ReadAll(ctx, s.storage, job.DefinitionsFile)
	if err != nil {
		return nil, s.failJob(jobID, fmt.Sprintf("failed to load definitions: %v", err))
	}
	terms, err := s.readTerms(defsData, job.DefinitionsName)
	if err != nil {
		return nil, s.failJob(jobID, err.Error())
	}

	log.WithFields(logrus.Fields{
		"chunk_count": len(chunks),
		"term_count":  len(terms),
	}).Info("Starting glossary build")

	builder := glossary.NewBuilder(s.scorer, glossary.Options{
		Concurrency:     s.concurrency,
		RequestInterval: s.requestInterval,
		Logger:          s.logger,
		Progress: func(done, total int) {
			// 写出结果表格前最多报告到95%
			if err := s.repo.UpdateProgress(jobID, done*95/total); err != nil {
				log.WithError(err).Debug("Failed to update glossary job progress")
			}
		},
	})

	results, err := builder.Build(ctx, chunks, terms)
	if err != nil {
		return nil, s.failJob(jobID, fmt.Sprintf("glossary build interrupted: %v", err))
	}

	var buf bytes.Buffer
	if err := glossary.WriteXLSX(&buf, results); err != nil {
		return nil, s.failJob(jobID, fmt.Sprintf("failed to write results: %v", err))
	}
	name := glossary.ResultFileName(time.Now())
	info, err := s.storage.Save(ctx, &buf, name)
	if err != nil {
		return nil, s.failJob(jobID, fmt.Sprintf("failed to save results: %v", err))
	}

	// 重新读取，避免覆盖构建过程中写入的进度
	job, err = s.repo.GetByID(jobID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	job.Status = models.JobStatusCompleted
	job.Progress = 100
	job.Error = ""
	job.ResultFile = info.ID
	job.ResultName = name
	job.ChunkCount = len(chunks)
	job.TermCount = len(terms)
	job.CompletedAt = &now
	if err := s.repo.Update(job); err != nil {
		return nil, fmt.Errorf("failed to mark glossary job as completed: %w", err)
	}

	log.WithField("result", name).Info("Glossary build completed successfully")
	return job, nil
}

// GetJob 获取术语表任务
func (s *GlossaryService) GetJob(ctx context.Context, jobID string) (*models.GlossaryJob, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}
	return s.repo.GetByID(jobID)
}

// ListJobs 获取术语表任务列表
func (s *GlossaryService) ListJobs(ctx context.Context, offset, limit int) ([]*models.GlossaryJob, int64, error) {
	if err := s.Init(); err != nil {
		return nil, 0, err
	}
	return s.repo.List(offset, limit)
}

// Results 读取任务的结果，sortTerm不为空时按该术语得分降序排列
func (s *GlossaryService) Results(ctx context.Context, jobID, sortTerm string) (*GlossaryResults, error) {
	job, err := s.completedJob(jobID)
	if err != nil {
		return nil, err
	}

	data, err := storage.ReadAll(ctx, s.storage, job.ResultFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load results: %w", err)
	}
	results, err := glossary.ReadXLSX(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	return &GlossaryResults{
		Job:      job,
		Terms:    glossary.AvailableTerms(results),
		SortedBy: sortTerm,
		Results:  glossary.SortByTerm(results, sortTerm),
	}, nil
}

// OpenResult 打开任务的结果表格，返回内容和文件名
func (s *GlossaryService) OpenResult(ctx context.Context, jobID string) (io.ReadCloser, string, error) {
	job, err := s.completedJob(jobID)
	if err != nil {
		return nil, "", err
	}

	rc, err := s.storage.Get(ctx, job.ResultFile)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open results: %w", err)
	}
	return rc, job.ResultName, nil
}

// HandleGlossaryTask 处理队列中的术语表任务
func (s *GlossaryService) HandleGlossaryTask(ctx context.Context, task *taskqueue.Task) (interface{}, error) {
	var payload taskqueue.GlossaryBuildPayload
	if err := taskqueue.UnmarshalPayload(task.Payload, &payload); err != nil {
		return nil, err
	}
	if payload.JobID == "" {
		return nil, fmt.Errorf("%w: job_id is required", taskqueue.ErrInvalidPayload)
	}

	job, err := s.RunJob(ctx, payload.JobID)
	if err != nil {
		if errors.Is(err, models.ErrGlossaryJobNotFound) {
			return nil, fmt.Errorf("%w: %v", taskqueue.ErrInvalidPayload, err)
		}
		return nil, err
	}

	return taskqueue.GlossaryBuildResult{
		JobID:      job.ID,
		ResultFile: job.ResultFile,
		ResultName: job.ResultName,
		ChunkCount: job.ChunkCount,
		TermCount:  job.TermCount,
	}, nil
}

// completedJob 获取已完成的任务
func (s *GlossaryService) completedJob(jobID string) (*models.GlossaryJob, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}

	job, err := s.repo.GetByID(jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusCompleted {
		return nil, fmt.Errorf("%w: job %s is %s", ErrJobNotReady, jobID, job.Status)
	}
	return job, nil
}

// readTerms 解析定义表中的术语
func (s *GlossaryService) readTerms(data []byte, filename string) ([]definitions.Term, error) {
	table, err := definitions.Read(bytes.NewReader(data), filename)
	if err != nil {
		return nil, err
	}
	terms, err := table.Terms(s.termColumn, s.definitionColumn)
	if err != nil {
		return nil, err
	}
	if len(terms) == 0 {
		return nil, ErrNoTerms
	}
	return terms, nil
}

// readChunkTexts 读取压缩包中的分块
func readChunkTexts(data []byte) ([]glossary.ChunkText, error) {
	chunks, err := glossary.ReadChunks(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}
	return chunks, nil
}

// failJob 将任务标记为失败并返回对应的错误
func (s *GlossaryService) failJob(jobID, msg string) error {
	s.logger.WithFields(logrus.Fields{
		"job_id": jobID,
		"error":  msg,
	}).Error("Glossary job failed")

	if err := s.repo.UpdateStatus(jobID, models.JobStatusFailed, msg); err != nil {
		s.logger.WithError(err).WithField("job_id", jobID).Error("Failed to mark glossary job as failed")
	}
	return errors.New(msg)
}
