package glossary

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	resultSheet = "Sheet1"
	// 分隔符与结果表格中的格式一致
	termSeparator  = "; "
	scoreSeparator = "||"
)

// ResultHeaders 结果表格的列
var ResultHeaders = []string{"chunk_info", "chunk_text", "key_terms"}

// TermScore 术语及其得分
type TermScore struct {
	Term  string  `json:"term"`
	Score float64 `json:"score"`
}

// FormatKeyTerms 输出 "term||0.750; other||0.100"，只保留大于0的得分
// 同名术语保留首次出现的位置和最后的得分
func FormatKeyTerms(scores []TermScore) string {
	var order []string
	byTerm := make(map[string]string)
	for _, s := range scores {
		if s.Score <= 0 {
			continue
		}
		if _, ok := byTerm[s.Term]; !ok {
			order = append(order, s.Term)
		}
		byTerm[s.Term] = strconv.FormatFloat(s.Score, 'f', 3, 64)
	}

	parts := make([]string, len(order))
	for i, term := range order {
		parts[i] = term + scoreSeparator + byTerm[term]
	}
	return strings.Join(parts, termSeparator)
}

// ParseKeyTerms 解析key_terms字段，无法解析的得分记为0
func ParseKeyTerms(keyTerms string) []TermScore {
	var scores []TermScore
	for _, entry := range strings.Split(keyTerms, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, raw, _ := strings.Cut(entry, scoreSeparator)
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		score, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil || score != score {
			score = 0
		}
		scores = append(scores, TermScore{Term: name, Score: score})
	}
	return scores
}

// ScoreFor 返回key_terms中某个术语的得分，不存在时为0
func ScoreFor(keyTerms, term string) float64 {
	for _, s := range ParseKeyTerms(keyTerms) {
		if s.Term == term {
			return s.Score
		}
	}
	return 0
}

// AvailableTerms 结果中出现过的全部术语，按字母排序
func AvailableTerms(results []Result) []string {
	set := make(map[string]struct{})
	for _, r := range results {
		for _, s := range ParseKeyTerms(r.KeyTerms) {
			set[s.Term] = struct{}{}
		}
	}

	terms := make([]string, 0, len(set))
	for t := range set {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms
}

// SortByTerm 按某个术语的得分降序排列，得分相同保持原顺序
// term为空时不排序
func SortByTerm(results []Result, term string) []Result {
	sorted := make([]Result, len(results))
	copy(sorted, results)
	if term == "" {
		return sorted
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		return ScoreFor(sorted[i].KeyTerms, term) > ScoreFor(sorted[j].KeyTerms, term)
	})
	return sorted
}

// ResultFileName 结果表格文件名
func ResultFileName(t time.Time) string {
	return fmt.Sprintf("glossary_results_%s.xlsx", t.Format("20060102_150405"))
}

// WriteXLSX 将结果写为Excel表格
func WriteXLSX(w io.Writer, results []Result) error {
	f := excelize.NewFile()
	defer f.Close()

	header := make([]interface{}, len(ResultHeaders))
	for i, h := range ResultHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(resultSheet, "A1", &header); err != nil {
		return fmt.Errorf("writing header row: %w", err)
	}

	for i, r := range results {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{r.ChunkInfo, r.ChunkText, r.KeyTerms}
		if err := f.SetSheetRow(resultSheet, cell, &row); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing xlsx: %w", err)
	}
	return nil
}

// ReadXLSX 读取WriteXLSX生成的结果表格
func ReadXLSX(r io.Reader) ([]Result, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening XLSX: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(resultSheet)
	if err != nil {
		return nil, fmt.Errorf("reading results sheet: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	col := make(map[string]int)
	for i, h := range rows[0] {
		col[h] = i
	}
	cell := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	results := make([]Result, 0, len(rows)-1)
	for _, row := range rows[1:] {
		results = append(results, Result{
			ChunkInfo: cell(row, "chunk_info"),
			ChunkText: cell(row, "chunk_text"),
			KeyTerms:  cell(row, "key_terms"),
		})
	}
	return results, nil
}
