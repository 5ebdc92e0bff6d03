package chunker

import (
	"fmt"
	"regexp"
	"strings"
)

// unsafeNamePattern 文件名中需要替换的字符：逗号或连续空白
var unsafeNamePattern = regexp.MustCompile(`,|[\s\x{00A0}\x{FEFF}\p{Zs}]+`)

// Render 渲染分块为独立的Markdown文本
// 首行为以分块名称作为一级标题的合成标题，随后是区间内的原始行
func Render(chunk Chunk, lines []string) string {
	start, end := clampRange(chunk.Start, chunk.End, len(lines))

	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(chunk.Name)
	b.WriteString("\n\n")
	b.WriteString(strings.Join(lines[start:end], "\n"))
	return b.String()
}

// Body 返回分块区间内的原始行文本，不含合成标题
func Body(chunk Chunk, lines []string) string {
	start, end := clampRange(chunk.Start, chunk.End, len(lines))
	return strings.Join(lines[start:end], "\n")
}

// SanitizeName 将名称中的逗号及连续空白替换为下划线
func SanitizeName(name string) string {
	return unsafeNamePattern.ReplaceAllString(name, "_")
}

// leadingDots 文件名开头的点，避免生成 . 或 .. 之类的路径
var leadingDots = regexp.MustCompile(`^\.+`)

// fileBase 分块名称转换为单个路径分量，不含扩展名
// 在SanitizeName的基础上把路径分隔符和开头的点替换为下划线
func fileBase(name string) string {
	base := strings.NewReplacer("/", "_", "\\", "_").Replace(SanitizeName(name))
	return leadingDots.ReplaceAllStringFunc(base, func(dots string) string {
		return strings.Repeat("_", len(dots))
	})
}

// FileName 分块对应的文件名
func FileName(name string) string {
	return fileBase(name) + ".md"
}

// BundleName 打包文件名
func BundleName(label string) string {
	return fileBase(label) + "_chunks.zip"
}

// UniqueFileNames 为分块生成互不重复的文件名
// 重名时依次追加 _2、_3 等后缀，顺序与分块顺序一致
func UniqueFileNames(chunks []Chunk) []string {
	names := make([]string, len(chunks))
	used := make(map[string]bool, len(chunks))

	for i, c := range chunks {
		base := fileBase(c.Name)
		candidate := base + ".md"
		for n := 2; used[candidate]; n++ {
			candidate = fmt.Sprintf("%s_%d.md", base, n)
		}
		used[candidate] = true
		names[i] = candidate
	}
	return names
}

// LineRange 面向用户展示的1起始行号范围
func LineRange(chunk Chunk) string {
	return fmt.Sprintf("%d - %d", chunk.Start+1, chunk.End)
}

// clampRange 将区间限制在 [0, n] 内
func clampRange(start, end, n int) (int, int) {
	if start < 0 {
		start = 0
	}
	if end > n {
		end = n
	}
	if start > end {
		start = end
	}
	return start, end
}
