package chunker

// SplitterConfig 标题分块器配置
type SplitterConfig struct {
	ChunkLevel int    // 目标标题深度（1-6）
	Label      string // 文档基础名，用于生成分块名称
	MaxLines   int    // 最大行数（0表示不限制）
}

// DefaultSplitterConfig 返回默认分块器配置
func DefaultSplitterConfig() SplitterConfig {
	return SplitterConfig{
		ChunkLevel: 1,
		Label:      "document",
		MaxLines:   DefaultMaxLines,
	}
}

// Result 一次分块的完整结果
type Result struct {
	Lines       []string        `json:"-"`
	Headings    []HeadingRecord `json:"headings"`
	Chunks      []Chunk         `json:"chunks"`
	AnnexDepths []int           `json:"annex_depths"`
	Coverage    CoverageReport  `json:"coverage"`
}

// HasHeadings 文档中是否检测到标题
func (r *Result) HasHeadings() bool {
	return len(r.Headings) > 0
}

// Render 渲染第i个分块
func (r *Result) Render(i int) string {
	return Render(r.Chunks[i], r.Lines)
}

// HeadingSplitter 按Markdown标题切分文档
type HeadingSplitter struct {
	config SplitterConfig
}

// NewHeadingSplitter 创建标题分块器
func NewHeadingSplitter(config SplitterConfig) (*HeadingSplitter, error) {
	if err := ValidateLevel(config.ChunkLevel); err != nil {
		return nil, err
	}
	return &HeadingSplitter{config: config}, nil
}

// Config 返回分块器配置
func (s *HeadingSplitter) Config() SplitterConfig {
	return s.config
}

// Split 切分文本
func (s *HeadingSplitter) Split(text string) (*Result, error) {
	return s.SplitLines(SplitLines(text))
}

// SplitLines 切分已经按行拆好的文本
func (s *HeadingSplitter) SplitLines(lines []string) (*Result, error) {
	if err := CheckSize(len(lines), s.config.MaxLines); err != nil {
		return nil, err
	}

	headings := ExtractHeadings(lines)
	chunks, annexDepths := partition(lines, headings, s.config.ChunkLevel, s.config.Label)

	return &Result{
		Lines:       lines,
		Headings:    headings,
		Chunks:      chunks,
		AnnexDepths: annexDepths,
		Coverage:    Coverage(chunks, len(lines)),
	}, nil
}
