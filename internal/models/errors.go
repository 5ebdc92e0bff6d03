package models

import "errors"

var (
	// ErrDocumentNotFound 文档不存在错误
	ErrDocumentNotFound = errors.New("document not found")

	// ErrInvalidDocumentStatus 无效的文档状态错误
	ErrInvalidDocumentStatus = errors.New("invalid document status")

	// ErrChunkNotFound 分块不存在错误
	ErrChunkNotFound = errors.New("chunk not found")

	// ErrGlossaryJobNotFound 术语表任务不存在错误
	ErrGlossaryJobNotFound = errors.New("glossary job not found")
)
