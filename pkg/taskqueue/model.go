package taskqueue

import (
	"encoding/json"
	"time"
)

// TaskType 任务类型
type TaskType string

const (
	// TaskChunkDocument 文档分块任务
	TaskChunkDocument TaskType = "chunk_document"
	// TaskGlossaryBuild 术语表构建任务
	TaskGlossaryBuild TaskType = "glossary_build"
)

// queueFor 任务类型对应的asynq队列
// 分块很快，优先处理；术语表构建可能持续数分钟
func queueFor(taskType TaskType) string {
	switch taskType {
	case TaskChunkDocument:
		return "critical"
	case TaskGlossaryBuild:
		return "low"
	default:
		return "default"
	}
}

// TaskStatus 任务状态
type TaskStatus string

const (
	// StatusPending 等待处理
	StatusPending TaskStatus = "pending"
	// StatusProcessing 处理中
	StatusProcessing TaskStatus = "processing"
	// StatusCompleted 已完成
	StatusCompleted TaskStatus = "completed"
	// StatusFailed 处理失败
	StatusFailed TaskStatus = "failed"
)

// IsFinal 是否为终态
func (s TaskStatus) IsFinal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task 任务基础结构
type Task struct {
	ID          string          `json:"id"`           // 任务唯一标识符
	Type        TaskType        `json:"type"`         // 任务类型
	OwnerID     string          `json:"owner_id"`     // 关联的文档ID或术语表任务ID
	Status      TaskStatus      `json:"status"`       // 任务状态
	Payload     json.RawMessage `json:"payload"`      // 任务载荷数据
	Result      json.RawMessage `json:"result"`       // 任务结果数据
	Error       string          `json:"error"`        // 最近一次错误信息
	Progress    int             `json:"progress"`     // 进度（0-100）
	CreatedAt   time.Time       `json:"created_at"`   // 创建时间
	UpdatedAt   time.Time       `json:"updated_at"`   // 更新时间
	StartedAt   *time.Time      `json:"started_at"`   // 开始处理时间
	CompletedAt *time.Time      `json:"completed_at"` // 完成时间
	Attempts    int             `json:"attempts"`     // 尝试次数
	MaxRetries  int             `json:"max_retries"`  // 最大重试次数
}

// ChunkDocumentPayload 文档分块任务载荷
type ChunkDocumentPayload struct {
	DocumentID string `json:"document_id"` // 文档ID
	ChunkLevel int    `json:"chunk_level"` // 分块标题深度
	Label      string `json:"label"`       // 分块名称前缀
}

// ChunkDocumentResult 文档分块任务结果
type ChunkDocumentResult struct {
	DocumentID   string `json:"document_id"`   // 文档ID
	LineCount    int    `json:"line_count"`    // 总行数
	HeadingCount int    `json:"heading_count"` // 标题数量
	ChunkCount   int    `json:"chunk_count"`   // 分块数量
	CoverageGap  int    `json:"coverage_gap"`  // 未覆盖的行数
}

// GlossaryBuildPayload 术语表构建任务载荷
type GlossaryBuildPayload struct {
	JobID string `json:"job_id"` // 术语表任务ID
}

// GlossaryBuildResult 术语表构建任务结果
type GlossaryBuildResult struct {
	JobID      string `json:"job_id"`      // 术语表任务ID
	ResultFile string `json:"result_file"` // 结果表格存储ID
	ResultName string `json:"result_name"` // 结果表格文件名
	ChunkCount int    `json:"chunk_count"` // 分块数量
	TermCount  int    `json:"term_count"`  // 术语数量
}
