package model

import (
	"encoding/json"
	"time"

	"github.com/fyerfyer/poli-golly/internal/chunker"
	"github.com/fyerfyer/poli-golly/internal/glossary"
	"github.com/fyerfyer/poli-golly/internal/models"
)

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`               // 响应状态码，0表示成功
	Message string      `json:"message"`            // 响应消息
	Data    interface{} `json:"data,omitempty"`     // 响应数据，可能为空
	TraceID string      `json:"trace_id,omitempty"` // 调用链追踪ID
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) *Response {
	return &Response{
		Code:    code,
		Message: message,
	}
}

// NoHeadingsWarning 未检测到标题时的提示
const NoHeadingsWarning = "未检测到标题，整个文件将作为一个分块"

// DocumentInfo 文档信息
type DocumentInfo struct {
	ID            string     `json:"id"`                        // 文档ID
	FileName      string     `json:"filename"`                  // 文件名
	Label         string     `json:"label"`                     // 分块名称前缀
	Status        string     `json:"status"`                    // 状态
	Progress      int        `json:"progress"`                  // 进度
	Error         string     `json:"error,omitempty"`           // 错误信息
	FileSize      int64      `json:"file_size"`                 // 文件大小
	ChunkLevel    int        `json:"chunk_level"`               // 分块标题深度
	LineCount     int        `json:"line_count"`                // 总行数
	HeadingCount  int        `json:"heading_count"`             // 标题数量
	ChunkCount    int        `json:"chunk_count"`               // 分块数量
	CoverageGap   int        `json:"coverage_gap"`              // 未覆盖的行数
	AnnexDepths   []int      `json:"annex_depths"`              // 附件标题深度
	Warning       string     `json:"warning,omitempty"`         // 提示信息
	CurrentTaskID string     `json:"current_task_id,omitempty"` // 当前任务ID
	UploadedAt    time.Time  `json:"uploaded_at"`               // 上传时间
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`    // 处理完成时间
}

// NewDocumentInfo 从文档模型构建响应
func NewDocumentInfo(doc *models.Document) DocumentInfo {
	info := DocumentInfo{
		ID:            doc.ID,
		FileName:      doc.FileName,
		Label:         doc.Label,
		Status:        string(doc.Status),
		Progress:      doc.Progress,
		Error:         doc.Error,
		FileSize:      doc.FileSize,
		ChunkLevel:    doc.ChunkLevel,
		LineCount:     doc.LineCount,
		HeadingCount:  doc.HeadingCount,
		ChunkCount:    doc.ChunkCount,
		CoverageGap:   doc.CoverageGap,
		AnnexDepths:   []int{},
		CurrentTaskID: doc.CurrentTaskID,
		UploadedAt:    doc.UploadedAt,
		ProcessedAt:   doc.ProcessedAt,
	}
	if len(doc.AnnexDepths) > 0 {
		_ = json.Unmarshal(doc.AnnexDepths, &info.AnnexDepths)
	}
	if doc.Status == models.DocStatusCompleted && !doc.HasHeadings() {
		info.Warning = NoHeadingsWarning
	}
	return info
}

// DocumentListResponse 文档列表响应
type DocumentListResponse struct {
	Total     int64          `json:"total"`     // 总数量
	Page      int            `json:"page"`      // 当前页码
	PageSize  int            `json:"page_size"` // 每页大小
	Documents []DocumentInfo `json:"documents"` // 文档列表
}

// DocumentDeleteResponse 文档删除响应
type DocumentDeleteResponse struct {
	Success bool   `json:"success"` // 是否成功
	ID      string `json:"id"`      // 文档ID
}

// ChunkInfo 分块信息
type ChunkInfo struct {
	Index     int    `json:"index"`      // 分块序号
	Name      string `json:"name"`       // 分块名称
	FileName  string `json:"file_name"`  // 导出文件名
	StartLine int    `json:"start_line"` // 起始行（包含，从0开始）
	EndLine   int    `json:"end_line"`   // 结束行（不包含）
	Lines     string `json:"lines"`      // 面向用户的行号范围
	IsAnnex   bool   `json:"is_annex"`   // 是否为附件
}

// NewChunkInfo 从分块模型构建响应
func NewChunkInfo(row *models.DocumentChunk) ChunkInfo {
	return ChunkInfo{
		Index:     row.Position,
		Name:      row.Name,
		FileName:  row.FileName,
		StartLine: row.StartLine,
		EndLine:   row.EndLine,
		Lines:     chunker.LineRange(chunker.Chunk{Start: row.StartLine, End: row.EndLine}),
		IsAnnex:   row.IsAnnex,
	}
}

// ChunkListResponse 分块列表响应
type ChunkListResponse struct {
	DocumentID string      `json:"document_id"`       // 文档ID
	Total      int         `json:"total"`             // 分块数量
	Warning    string      `json:"warning,omitempty"` // 提示信息
	Chunks     []ChunkInfo `json:"chunks"`            // 分块列表
}

// GlossaryJobInfo 术语表任务信息
type GlossaryJobInfo struct {
	ID              string     `json:"id"`                     // 任务ID
	Status          string     `json:"status"`                 // 状态
	Progress        int        `json:"progress"`               // 进度
	Error           string     `json:"error,omitempty"`        // 错误信息
	ChunksName      string     `json:"chunks_name"`            // 分块压缩包文件名
	DefinitionsName string     `json:"definitions_name"`       // 定义表文件名
	ResultName      string     `json:"result_name,omitempty"`  // 结果表格文件名
	Scorer          string     `json:"scorer"`                 // 评分器
	ChunkCount      int        `json:"chunk_count"`            // 分块数量
	TermCount       int        `json:"term_count"`             // 术语数量
	TaskID          string     `json:"task_id,omitempty"`      // 队列任务ID
	CreatedAt       time.Time  `json:"created_at"`             // 创建时间
	CompletedAt     *time.Time `json:"completed_at,omitempty"` // 完成时间
}

// NewGlossaryJobInfo 从任务模型构建响应
func NewGlossaryJobInfo(job *models.GlossaryJob) GlossaryJobInfo {
	return GlossaryJobInfo{
		ID:              job.ID,
		Status:          string(job.Status),
		Progress:        job.Progress,
		Error:           job.Error,
		ChunksName:      job.ChunksName,
		DefinitionsName: job.DefinitionsName,
		ResultName:      job.ResultName,
		Scorer:          job.Scorer,
		ChunkCount:      job.ChunkCount,
		TermCount:       job.TermCount,
		TaskID:          job.TaskID,
		CreatedAt:       job.CreatedAt,
		CompletedAt:     job.CompletedAt,
	}
}

// GlossaryResultRow 术语表结果行
type GlossaryResultRow struct {
	ChunkInfo string               `json:"chunk_info"` // 分块文件名
	ChunkText string               `json:"chunk_text"` // 分块内容
	KeyTerms  string               `json:"key_terms"`  // 原始key_terms字段
	Scores    []glossary.TermScore `json:"scores"`     // 解析后的术语得分
}

// NewGlossaryResultRows 构建结果行并解析术语得分
func NewGlossaryResultRows(results []glossary.Result) []GlossaryResultRow {
	rows := make([]GlossaryResultRow, len(results))
	for i, r := range results {
		rows[i] = GlossaryResultRow{
			ChunkInfo: r.ChunkInfo,
			ChunkText: r.ChunkText,
			KeyTerms:  r.KeyTerms,
			Scores:    glossary.ParseKeyTerms(r.KeyTerms),
		}
	}
	return rows
}

// GlossaryJobResponse 术语表任务及结果
type GlossaryJobResponse struct {
	Job      GlossaryJobInfo     `json:"job"`                 // 任务信息
	Terms    []string            `json:"terms,omitempty"`     // 可用于排序的术语
	SortedBy string              `json:"sorted_by,omitempty"` // 当前排序术语
	Results  []GlossaryResultRow `json:"results,omitempty"`   // 结果行
}

// GlossaryListResponse 术语表任务列表
type GlossaryListResponse struct {
	Total    int64             `json:"total"`     // 总数量
	Page     int               `json:"page"`      // 当前页码
	PageSize int               `json:"page_size"` // 每页大小
	Jobs     []GlossaryJobInfo `json:"jobs"`      // 任务列表
}
