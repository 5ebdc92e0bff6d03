package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DocumentStatus 文档处理状态类型
type DocumentStatus string

const (
	// DocStatusUploaded 文档已上传，等待分块
	DocStatusUploaded DocumentStatus = "uploaded"
	// DocStatusProcessing 文档分块中
	DocStatusProcessing DocumentStatus = "processing"
	// DocStatusCompleted 文档分块完成
	DocStatusCompleted DocumentStatus = "completed"
	// DocStatusFailed 文档分块失败
	DocStatusFailed DocumentStatus = "failed"
)

// Document 文档数据模型
// 保存上传的Markdown文档及其分块摘要
type Document struct {
	ID            string         `gorm:"primaryKey"`         // 文档ID，主键
	FileName      string         `gorm:"not null"`           // 原始文件名
	Label         string         `gorm:"not null"`           // 分块名称使用的文档基础名
	FileType      string         `gorm:"not null"`           // 文件类型
	FilePath      string         `gorm:"not null"`           // 存储中的文件ID
	FileSize      int64          `gorm:"not null"`           // 文件大小（字节）
	ContentHash   string         `gorm:"size:64;index"`      // 内容SHA-256
	ChunkLevel    int            `gorm:"not null;default:1"` // 分块标题深度
	Status        DocumentStatus `gorm:"not null;index"`     // 处理状态
	UploadedAt    time.Time      `gorm:"not null;index"`     // 上传时间
	ProcessedAt   *time.Time     `gorm:"index"`              // 处理完成时间
	UpdatedAt     time.Time      `gorm:"not null;index"`     // 更新时间
	Progress      int            `gorm:"not null;default:0"` // 处理进度（0-100）
	Error         string         `gorm:"type:text"`          // 错误信息
	LineCount     int            `gorm:"not null;default:0"` // 总行数
	HeadingCount  int            `gorm:"not null;default:0"` // 检测到的标题数量
	ChunkCount    int            `gorm:"not null;default:0"` // 分块数量
	CoverageGap   int            `gorm:"not null;default:0"` // 未被任何分块覆盖的行数
	AnnexDepths   datatypes.JSON `gorm:"type:json"`          // 出现附件标题的深度
	Metadata      datatypes.JSON `gorm:"type:json"`          // 元数据，JSON格式
	CurrentTaskID string         `gorm:"size:50;index"`      // 当前关联的任务ID
	RetryCount    int            `gorm:"default:0"`          // 重试次数
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (d *Document) BeforeCreate(tx *gorm.DB) (err error) {
	if d.UploadedAt.IsZero() {
		d.UploadedAt = time.Now()
	}
	d.UpdatedAt = time.Now()
	return nil
}

// BeforeUpdate GORM的钩子函数，更新记录前自动设置更新时间
func (d *Document) BeforeUpdate(tx *gorm.DB) (err error) {
	d.UpdatedAt = time.Now()
	return nil
}

// TableName 明确指定表名
func (Document) TableName() string {
	return "documents"
}

// HasHeadings 是否检测到了标题
// 分块完成后才有意义
func (d *Document) HasHeadings() bool {
	return d.HeadingCount > 0
}

// DocumentChunk 文档分块数据模型
// 只保存行号区间，正文在渲染时从原始文档中截取
type DocumentChunk struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`             // 主键ID
	DocumentID string    `gorm:"not null;index;uniqueIndex:idx_doc_pos"` // 所属文档ID
	Position   int       `gorm:"not null;uniqueIndex:idx_doc_pos"`       // 分块序号，从0开始
	Name       string    `gorm:"not null"`                             // 层级化名称
	FileName   string    `gorm:"not null"`                             // 导出时使用的文件名
	StartLine  int       `gorm:"not null"`                             // 起始行（包含）
	EndLine    int       `gorm:"not null"`                             // 结束行（不包含）
	IsAnnex    bool      `gorm:"not null;default:false"`               // 是否为附件
	CreatedAt  time.Time `gorm:"not null"`                             // 创建时间
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (c *DocumentChunk) BeforeCreate(tx *gorm.DB) (err error) {
	c.CreatedAt = time.Now()
	return nil
}

// TableName 明确指定表名
func (DocumentChunk) TableName() string {
	return "document_chunks"
}
