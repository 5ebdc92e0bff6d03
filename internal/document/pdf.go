package document

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFExtractor PDF文档提取器
// 先按页提取纯文本，失败或为空时退回到pdfcpu解出的内容流
type PDFExtractor struct{}

// NewPDFExtractor 创建一个新的PDF提取器
func NewPDFExtractor() Extractor {
	return &PDFExtractor{}
}

// Extract 提取PDF中的文本
func (p *PDFExtractor) Extract(ctx context.Context, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read pdf: %w", err)
	}

	text, plainErr := extractPlainText(ctx, data)
	if strings.TrimSpace(text) != "" {
		return text, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	text, err = extractContentStreams(data)
	if err != nil {
		if plainErr != nil {
			return "", fmt.Errorf("failed to extract text from PDF: %v; %w", plainErr, err)
		}
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no text content found in PDF")
	}
	return text, nil
}

// extractPlainText 使用ledongthuc/pdf逐页提取文本
func extractPlainText(ctx context.Context, data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// 跳过无法提取的页面
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}

// extractContentStreams 使用pdfcpu导出每页的内容流，再从文本操作符中取出字符串
func extractContentStreams(data []byte) (string, error) {
	tmpDir, err := os.MkdirTemp("", "pdfcpu_extract_")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	inFile := filepath.Join(tmpDir, "input.pdf")
	if err := os.WriteFile(inFile, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write temp pdf: %w", err)
	}

	outDir := filepath.Join(tmpDir, "out")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(inFile, outDir, nil, conf); err != nil {
		return "", fmt.Errorf("failed to extract content from PDF: %w", err)
	}

	files, err := os.ReadDir(outDir)
	if err != nil {
		return "", fmt.Errorf("failed to read extracted content dir: %w", err)
	}

	// 按文件名排序（页码顺序）
	sort.Slice(files, func(i, j int) bool {
		return files[i].Name() < files[j].Name()
	})

	var pages []string
	for _, f := range files {
		if !strings.HasSuffix(f.Name(), ".txt") {
			continue
		}
		content, err := os.ReadFile(filepath.Join(outDir, f.Name()))
		if err != nil {
			continue
		}
		if text := contentStreamText(string(content)); text != "" {
			pages = append(pages, text)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}

var (
	// (string) Tj 以及 ' 和 " 操作符
	showTextPattern = regexp.MustCompile(`\(((?:\\.|[^\\)])*)\)\s*(?:Tj|'|")`)
	// [(a) -250 (b)] TJ
	showArrayPattern = regexp.MustCompile(`\[((?:\\.|[^\\\]])*)\]\s*TJ`)
	stringPattern    = regexp.MustCompile(`\(((?:\\.|[^\\)])*)\)`)
)

// contentStreamText 每个文本显示操作输出一行
func contentStreamText(stream string) string {
	type hit struct {
		pos  int
		text string
	}
	var hits []hit

	for _, m := range showTextPattern.FindAllStringSubmatchIndex(stream, -1) {
		hits = append(hits, hit{m[0], unescapePDFString(stream[m[2]:m[3]])})
	}
	for _, m := range showArrayPattern.FindAllStringSubmatchIndex(stream, -1) {
		var sb strings.Builder
		for _, s := range stringPattern.FindAllStringSubmatch(stream[m[2]:m[3]], -1) {
			sb.WriteString(unescapePDFString(s[1]))
		}
		hits = append(hits, hit{m[0], sb.String()})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	lines := make([]string, 0, len(hits))
	for _, h := range hits {
		if t := strings.TrimSpace(h.text); t != "" {
			lines = append(lines, t)
		}
	}
	return strings.Join(lines, "\n")
}

// unescapePDFString 处理PDF字面字符串中的转义
func unescapePDFString(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			sb.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case 'b':
			sb.WriteByte('\b')
		case 'f':
			sb.WriteByte('\f')
		case '0', '1', '2', '3', '4', '5', '6', '7':
			// 最多三位八进制
			v, n := 0, 0
			for n < 3 && i < len(s) && s[i] >= '0' && s[i] <= '7' {
				v = v*8 + int(s[i]-'0')
				i++
				n++
			}
			i--
			sb.WriteByte(byte(v))
		default:
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}

// NormalizeHeadings 整理PDF转换得到的标题行
// 含annex的标题保留；以编号开头且标题首字母大写的按编号层数重设深度；其余标题去掉#号
func NormalizeHeadings(markdown string) string {
	lines := strings.Split(markdown, "\n")
	for i, line := range lines {
		if !strings.HasPrefix(line, "#") {
			continue
		}
		stripped := strings.TrimSpace(strings.TrimLeft(line, "#"))

		switch {
		case strings.Contains(strings.ToLower(stripped), "annex"):
			// 保持原样
		case stripped != "" && unicode.IsDigit([]rune(stripped)[0]):
			if depth := numberedHeadingDepth(stripped); depth > 0 {
				lines[i] = strings.Repeat("#", depth) + " " + stripped
			} else {
				lines[i] = stripped
			}
		default:
			lines[i] = stripped
		}
	}
	return strings.Join(lines, "\n")
}

// numberedHeadingDepth 形如"2.1 Scope"的标题返回编号层数，不是有效标题时返回0
func numberedHeadingDepth(stripped string) int {
	number, title, ok := strings.Cut(stripped, " ")
	if !ok {
		return 0
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return 0
	}
	first := []rune(title)[0]
	if unicode.ToUpper(first) != first {
		return 0
	}

	depth := 0
	for _, part := range strings.Split(number, ".") {
		if part != "" && strings.IndexFunc(part, func(r rune) bool { return !unicode.IsDigit(r) }) == -1 {
			depth++
		}
	}
	return depth
}
