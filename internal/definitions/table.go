package definitions

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	// DefaultTermColumn 术语列的默认表头
	DefaultTermColumn = "Sub-term"
	// DefaultDefinitionColumn 定义列的默认表头
	DefaultDefinitionColumn = "Definition"
)

var (
	// ErrUnsupportedFormat 不支持的表格格式
	ErrUnsupportedFormat = errors.New("unsupported file format, please upload a CSV or XLSX file")
	// ErrTooFewRows 表格至少需要表头和一行数据
	ErrTooFewRows = errors.New("table needs a header row and at least one data row")
	// ErrColumnNotFound 指定的列不存在
	ErrColumnNotFound = errors.New("column not found")
)

// Table 术语定义表
// Rows中每行的长度与Headers一致，缺失的单元格为空字符串
type Table struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// Term 术语及其定义
type Term struct {
	Name       string `json:"name"`
	Definition string `json:"definition"`
}

// Read 根据文件扩展名读取CSV或XLSX表格
func Read(r io.Reader, filename string) (*Table, error) {
	var (
		records [][]string
		err     error
	)

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		records, err = readCSV(r)
	case ".xlsx":
		records, err = readXLSX(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(filename))
	}
	if err != nil {
		return nil, err
	}
	return newTable(records)
}

// readCSV 读取CSV，允许各行字段数不同
func readCSV(r io.Reader) ([][]string, error) {
	br := bufio.NewReader(r)
	// 跳过UTF-8 BOM
	if b, err := br.Peek(3); err == nil && string(b) == "\xef\xbb\xbf" {
		_, _ = br.Discard(3)
	}

	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV: %w", err)
	}
	return records, nil
}

// readXLSX 读取第一个工作表
func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening XLSX: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrTooFewRows
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

// newTable 第一条非空记录作为表头，空白行被跳过
func newTable(records [][]string) (*Table, error) {
	var nonEmpty [][]string
	for _, rec := range records {
		if !isBlank(rec) {
			nonEmpty = append(nonEmpty, rec)
		}
	}
	if len(nonEmpty) < 2 {
		return nil, ErrTooFewRows
	}

	header := nonEmpty[0]
	headers := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("Unnamed: %d", i)
		}
		headers[i] = h
	}

	rows := make([][]string, 0, len(nonEmpty)-1)
	for _, rec := range nonEmpty[1:] {
		row := make([]string, len(headers))
		copy(row, rec)
		rows = append(rows, row)
	}

	return &Table{Headers: headers, Rows: rows}, nil
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Column 返回表头对应的列序号，大小写和首尾空白不敏感
func (t *Table) Column(name string) (int, error) {
	want := strings.ToLower(strings.TrimSpace(name))
	for i, h := range t.Headers {
		if strings.ToLower(h) == want {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
}

// Terms 按表格顺序提取术语
// 列名为空时使用默认列；术语名为空的行被跳过，重复的术语使用最后出现的定义
func (t *Table) Terms(termColumn, definitionColumn string) ([]Term, error) {
	if termColumn == "" {
		termColumn = DefaultTermColumn
	}
	if definitionColumn == "" {
		definitionColumn = DefaultDefinitionColumn
	}

	termIdx, err := t.Column(termColumn)
	if err != nil {
		return nil, err
	}
	defIdx, err := t.Column(definitionColumn)
	if err != nil {
		return nil, err
	}

	var terms []Term
	seen := make(map[string]int)
	for _, row := range t.Rows {
		name := strings.TrimSpace(row[termIdx])
		if name == "" {
			continue
		}
		def := strings.TrimSpace(row[defIdx])
		if i, ok := seen[name]; ok {
			terms[i].Definition = def
			continue
		}
		seen[name] = len(terms)
		terms = append(terms, Term{Name: name, Definition: def})
	}
	return terms, nil
}

// WriteCSV 将表格写为CSV
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Headers); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("writing CSV rows: %w", err)
	}
	return nil
}
