package chunker

import (
	"regexp"
	"strings"
	"unicode"
)

// headingPattern 匹配Markdown标题行：1-6个#，至少一个空白，然后是标题文本
// 空白包括不换行空格等Unicode空格，转换得到的Markdown中较常见
var headingPattern = regexp.MustCompile(`^(#{1,6})[\s\x{00A0}\x{FEFF}\p{Zs}]+(.*)$`)

// HeadingRecord 标题记录
// 由ExtractHeadings一次扫描生成，之后只读
type HeadingRecord struct {
	Depth     int    `json:"depth"`      // 标题深度（#的数量，1-6）
	Text      string `json:"text"`       // 去掉#并修剪空白后的标题文本
	LineIndex int    `json:"line_index"` // 从0开始的行号
}

// IsAnnex 标题文本是否以annex开头（不区分大小写）
func (h HeadingRecord) IsAnnex() bool {
	return isAnnexText(h.Text)
}

// SplitLines 将文本按行切分
// \r\n 与 \n 等同处理，返回的行不含换行符
func SplitLines(text string) []string {
	return strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
}

// ExtractHeadings 提取所有标题行，按行号顺序返回
func ExtractHeadings(lines []string) []HeadingRecord {
	headings := make([]HeadingRecord, 0)
	for idx, line := range lines {
		depth, text, ok := matchHeading(line)
		if !ok {
			continue
		}
		headings = append(headings, HeadingRecord{
			Depth:     depth,
			Text:      text,
			LineIndex: idx,
		})
	}
	return headings
}

// matchHeading 判断单行是否为标题，返回深度和文本
func matchHeading(line string) (int, string, bool) {
	m := headingPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, "", false
	}
	return len(m[1]), strings.TrimFunc(m[2], isHeadingSpace), true
}

// isHeadingSpace 标题文本首尾需要去掉的空白
func isHeadingSpace(r rune) bool {
	return unicode.IsSpace(r) || r == '\uFEFF'
}

// isAnnexText 文本是否以annex开头（不区分大小写）
func isAnnexText(text string) bool {
	return strings.HasPrefix(strings.ToLower(text), "annex")
}
