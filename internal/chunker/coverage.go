package chunker

// Span 行号区间 [Start, End)
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len 区间长度
func (s Span) Len() int {
	return s.End - s.Start
}

// CoverageReport 分块对原始行的覆盖情况
type CoverageReport struct {
	LineCount int    `json:"line_count"`
	Gaps      []Span `json:"gaps"`     // 未被任何分块覆盖的区间
	Overlaps  []Span `json:"overlaps"` // 被多个分块同时覆盖的区间
}

// Complete 是否恰好覆盖所有行
func (r CoverageReport) Complete() bool {
	return len(r.Gaps) == 0 && len(r.Overlaps) == 0
}

// GapLines 未被覆盖的总行数
func (r CoverageReport) GapLines() int {
	total := 0
	for _, g := range r.Gaps {
		total += g.Len()
	}
	return total
}

// Coverage 检查分块序列对 [0, lineCount) 的覆盖
// 分块需按起始行升序排列（Partition的输出即满足）
// 当首个标题位于第0行但不是分块边界时，首个边界之前的行不会被覆盖
func Coverage(chunks []Chunk, lineCount int) CoverageReport {
	report := CoverageReport{
		LineCount: lineCount,
		Gaps:      make([]Span, 0),
		Overlaps:  make([]Span, 0),
	}

	cursor := 0
	for _, c := range chunks {
		if c.Start > cursor {
			report.Gaps = append(report.Gaps, Span{Start: cursor, End: c.Start})
		} else if c.Start < cursor {
			end := c.End
			if end > cursor {
				end = cursor
			}
			report.Overlaps = append(report.Overlaps, Span{Start: c.Start, End: end})
		}
		if c.End > cursor {
			cursor = c.End
		}
	}

	if cursor < lineCount {
		report.Gaps = append(report.Gaps, Span{Start: cursor, End: lineCount})
	}
	return report
}
