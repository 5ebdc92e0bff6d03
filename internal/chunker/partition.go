package chunker

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// annexIDPattern 提取附件编号：annex 后跟可选空白与字母数字标识
var annexIDPattern = regexp.MustCompile(`(?i)annex[\s\x{00A0}\x{FEFF}\p{Zs}]*(\w+)`)

// Chunk 分块
// 以 [Start, End) 行号区间引用原始行序列
type Chunk struct {
	Name    string `json:"name"`     // 层级化的分块名称
	Start   int    `json:"start"`    // 起始行号（包含）
	End     int    `json:"end"`      // 结束行号（不包含）
	IsAnnex bool   `json:"is_annex"` // 是否为附件分块
}

// Len 分块包含的行数
func (c Chunk) Len() int {
	return c.End - c.Start
}

// structureEntry 当前仍打开的祖先标题
type structureEntry struct {
	depth int
	text  string
}

// foldState 逐行折叠时携带的累加器
// 每一步返回新的状态，旧状态不再被修改
type foldState struct {
	chunks  []Chunk
	current Chunk
	open    bool
	stack   []structureEntry
}

// Partition 按标题切分文档
// chunkLevel 为目标标题深度，label 为生成名称使用的文档基础名
func Partition(lines []string, headings []HeadingRecord, chunkLevel int, label string) []Chunk {
	chunks, _ := partition(lines, headings, chunkLevel, label)
	return chunks
}

// partition 切分实现，同时返回附件深度集合
func partition(lines []string, headings []HeadingRecord, chunkLevel int, label string) ([]Chunk, []int) {
	annexDepths := AnnexDepths(headings)

	state := foldState{chunks: make([]Chunk, 0)}
	for idx, line := range lines {
		state = step(state, idx, line, chunkLevel, label)
	}

	// 收尾：关闭最后一个分块
	chunks := state.chunks
	if state.open {
		last := state.current
		last.End = len(lines)
		chunks = append(chunks, last)
	}

	preface := Chunk{Name: prefaceName(label), Start: 0}
	switch {
	case len(headings) == 0:
		// 没有任何标题：整个文件作为前言
		preface.End = len(lines)
		return []Chunk{preface}, annexDepths
	case len(chunks) == 0:
		// 有标题但没有一个触发分块边界：整个文件作为一个分块
		preface.End = len(lines)
		return []Chunk{preface}, annexDepths
	case headings[0].LineIndex > 0:
		// 第一个标题之前的内容作为前言
		preface.End = headings[0].LineIndex
		return append([]Chunk{preface}, chunks...), annexDepths
	}

	return chunks, annexDepths
}

// step 处理单行，返回新的折叠状态
func step(state foldState, idx int, line string, chunkLevel int, label string) foldState {
	depth, text, ok := matchHeading(line)
	if !ok {
		return state
	}

	next := foldState{
		chunks:  state.chunks,
		current: state.current,
		open:    state.open,
	}

	annex := isAnnexText(text)
	if depth == chunkLevel || annex {
		if state.open {
			closed := state.current
			closed.End = idx
			next.chunks = append(next.chunks, closed)
		}

		next.current = Chunk{
			Name:    chunkName(label, depth, text, state.stack),
			Start:   idx,
			IsAnnex: annex,
		}
		next.open = true
	}

	next.stack = pushStructure(state.stack, depth, text)
	return next
}

// chunkName 生成分块名称
func chunkName(label string, depth int, text string, stack []structureEntry) string {
	if isAnnexText(text) {
		id := text
		if m := annexIDPattern.FindStringSubmatch(text); m != nil {
			id = m[1]
		}
		return fmt.Sprintf("%s, Annex %s", label, id)
	}

	var b strings.Builder
	b.WriteString(label)
	// 只包含比当前标题更浅的祖先
	for _, entry := range stack {
		if entry.depth < depth {
			b.WriteString(", ")
			b.WriteString(entry.text)
		}
	}
	b.WriteString(", ")
	b.WriteString(text)
	return b.String()
}

// pushStructure 弹出深度 >= depth 的祖先后压入当前标题
// 返回新切片，不修改传入的栈
func pushStructure(stack []structureEntry, depth int, text string) []structureEntry {
	n := len(stack)
	for n > 0 && stack[n-1].depth >= depth {
		n--
	}
	next := make([]structureEntry, n, n+1)
	copy(next, stack[:n])
	return append(next, structureEntry{depth: depth, text: text})
}

// prefaceName 前言分块名称
func prefaceName(label string) string {
	return label + ", Preface"
}

// AnnexDepths 返回出现过附件标题的所有深度（升序）
// 仅作信息用途，分块边界判断只依据标题文本前缀
func AnnexDepths(headings []HeadingRecord) []int {
	seen := make(map[int]bool)
	for _, h := range headings {
		if h.IsAnnex() {
			seen[h.Depth] = true
		}
	}

	depths := make([]int, 0, len(seen))
	for d := range seen {
		depths = append(depths, d)
	}
	sort.Ints(depths)
	return depths
}
