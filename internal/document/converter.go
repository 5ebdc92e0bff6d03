package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

var (
	// ErrUnsupportedType 不支持的文档类型
	ErrUnsupportedType = errors.New("unsupported document type")
	// ErrConversion 文档转换失败
	ErrConversion = errors.New("document conversion failed")
)

// Converter 文档转换器接口
// 负责将不同格式的文档转换为Markdown文本
type Converter interface {
	// Convert 读取文档并返回Markdown文本
	// filename用于确定文档类型，headingMap为空时不做标题映射
	Convert(ctx context.Context, r io.Reader, filename string, headingMap HeadingMap) (string, error)
}

// Extractor 单一格式的文本提取器
type Extractor interface {
	Extract(ctx context.Context, r io.Reader) (string, error)
}

// ContentType 表示文档的内容类型
type ContentType string

const (
	// PDF 文档类型
	PDF ContentType = "pdf"
	// HTML 文档类型
	HTML ContentType = "html"
	// Markdown 文档类型
	Markdown ContentType = "markdown"
	// PlainText 纯文本类型
	PlainText ContentType = "plaintext"
	// Unknown 未知类型
	Unknown ContentType = "unknown"
)

// DetectContentType 根据文件扩展名检测内容类型
func DetectContentType(filename string) ContentType {
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".pdf":
		return PDF
	case ".html", ".htm":
		return HTML
	case ".md", ".markdown":
		return Markdown
	case ".txt":
		return PlainText
	default:
		return Unknown
	}
}

// IsChunkable 文件能否直接作为Markdown进行分块
func IsChunkable(filename string) bool {
	ct := DetectContentType(filename)
	return ct == Markdown || ct == PlainText
}

// OutputName 转换结果的文件名，保留原文件名主体并改为.md扩展名
func OutputName(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".md"
}

// DocumentConverter 按文档类型分发到对应的提取器
type DocumentConverter struct {
	extractors map[ContentType]Extractor
}

// NewConverter 创建包含全部内置提取器的转换器
func NewConverter() *DocumentConverter {
	return &DocumentConverter{
		extractors: map[ContentType]Extractor{
			PDF:       NewPDFExtractor(),
			HTML:      NewHTMLExtractor(),
			Markdown:  NewTextExtractor(),
			PlainText: NewTextExtractor(),
		},
	}
}

// Register 注册或替换某种类型的提取器
func (c *DocumentConverter) Register(ct ContentType, e Extractor) {
	c.extractors[ct] = e
}

// Convert 实现Converter接口
func (c *DocumentConverter) Convert(ctx context.Context, r io.Reader, filename string, headingMap HeadingMap) (string, error) {
	ct := DetectContentType(filename)
	extractor, ok := c.extractors[ct]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, filepath.Ext(filename))
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	text, err := extractor.Extract(ctx, r)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", fmt.Errorf("%w: %s: %v", ErrConversion, filepath.Base(filename), err)
	}

	if ct == PDF {
		text = NormalizeHeadings(text)
	}
	return ApplyHeadingMap(text, headingMap), nil
}
