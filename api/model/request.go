package model

import (
	"mime/multipart"
)

// 分页请求参数
type PaginationRequest struct {
	Page     int `form:"page" json:"page" binding:"omitempty,min=1"`           // 当前页码，从1开始
	PageSize int `form:"page_size" json:"page_size" binding:"omitempty,min=1"` // 每页记录数
}

// GetPage 获取页码，默认为1
func (p *PaginationRequest) GetPage() int {
	if p.Page <= 0 {
		return 1
	}
	return p.Page
}

// GetPageSize 获取每页记录数，默认为10，最大为100
func (p *PaginationRequest) GetPageSize() int {
	if p.PageSize <= 0 {
		return 10
	}
	if p.PageSize > 100 {
		return 100
	}
	return p.PageSize
}

// Offset 计算分页偏移量
func (p *PaginationRequest) Offset() int {
	return (p.GetPage() - 1) * p.GetPageSize()
}

// DocumentUploadRequest 文档上传请求
type DocumentUploadRequest struct {
	File       *multipart.FileHeader `form:"file" binding:"required"`                           // 文件对象
	ChunkLevel int                   `form:"chunk_level" binding:"omitempty,min=1,max=6"`       // 分块标题深度，为空时使用默认值
	Label      string                `form:"label" json:"label" binding:"omitempty,max=200"`    // 分块名称前缀，为空时取文件名
}

// DocumentURI 文档路径参数
type DocumentURI struct {
	ID string `uri:"id" binding:"required"` // 文档ID
}

// ChunkURI 分块路径参数
type ChunkURI struct {
	ID    string `uri:"id" binding:"required"`       // 文档ID
	Index *int   `uri:"index" binding:"required,min=0"` // 分块序号
}

// RechunkRequest 重新分块请求
type RechunkRequest struct {
	ChunkLevel int    `form:"chunk_level" json:"chunk_level" binding:"required,min=1,max=6"` // 分块标题深度
	Label      string `form:"label" json:"label" binding:"omitempty,max=200"`                // 新的分块名称前缀
}

// DocumentListRequest 文档列表请求
type DocumentListRequest struct {
	PaginationRequest
	Status   string `form:"status" json:"status" binding:"omitempty,oneof=uploaded processing completed failed"` // 文档状态
	FileName string `form:"file_name" json:"file_name" binding:"omitempty"`                                        // 文件名过滤
	Label    string `form:"label" json:"label" binding:"omitempty"`                                                // 前缀过滤
}

// ConvertRequest 文档转换请求
type ConvertRequest struct {
	File       *multipart.FileHeader `form:"file" binding:"required"` // 源文件
	HeadingMap string                `form:"heading_map"`             // 标题映射，如 "Chapter:1,Article:2"
}

// DefinitionsRequest 定义表解析请求
type DefinitionsRequest struct {
	File *multipart.FileHeader `form:"file" binding:"required"` // CSV或XLSX文件
}

// GlossaryRequest 术语表任务创建请求
type GlossaryRequest struct {
	ZipFile         *multipart.FileHeader `form:"zip_file" binding:"required"`         // 分块压缩包
	DefinitionsFile *multipart.FileHeader `form:"definitions_file" binding:"required"` // 定义表
}

// GlossaryResultRequest 术语表结果查询参数
type GlossaryResultRequest struct {
	Sort string `form:"sort" json:"sort"` // 按指定术语得分降序排列
}
