package document

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// TextExtractor Markdown和纯文本提取器，内容原样返回
type TextExtractor struct{}

// NewTextExtractor 创建新的文本提取器
func NewTextExtractor() Extractor {
	return &TextExtractor{}
}

// Extract 读取全部内容，去掉UTF-8 BOM
func (e *TextExtractor) Extract(ctx context.Context, r io.Reader) (string, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read text content: %w", err)
	}
	return strings.TrimPrefix(string(content), "\ufeff"), nil
}

// RenderHTML 将Markdown渲染为HTML，用于分块预览
func RenderHTML(md string) []byte {
	// 每次渲染都需要新的解析器
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs
	mdParser := parser.NewWithExtensions(extensions)
	doc := mdParser.Parse([]byte(md))

	// 上传文档中的原始HTML不输出，预览以text/html返回
	htmlFlags := html.CommonFlags | html.HrefTargetBlank | html.SkipHTML
	renderer := html.NewRenderer(html.RendererOptions{Flags: htmlFlags})

	return markdown.Render(doc, renderer)
}
