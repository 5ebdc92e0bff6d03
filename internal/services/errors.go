package services

import "errors"

var (
	// ErrDocumentNotReady 文档尚未完成分块
	ErrDocumentNotReady = errors.New("document chunks are not ready")

	// ErrJobNotReady 术语表任务尚未完成
	ErrJobNotReady = errors.New("glossary job is not finished")

	// ErrNoTerms 定义表中没有可用的术语
	ErrNoTerms = errors.New("definitions table contains no terms")

	// ErrNoChunks 压缩包中没有Markdown分块
	ErrNoChunks = errors.New("archive contains no markdown chunks")
)
