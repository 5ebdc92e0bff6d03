package chunker

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestExtractHeadings 测试标题提取
func TestExtractHeadings(t *testing.T) {
	t.Run("basic headings", func(t *testing.T) {
		lines := []string{"# Title", "text", "## Sub  ", "###\tTabbed", "plain"}
		headings := ExtractHeadings(lines)

		require.Len(t, headings, 3)
		assert.Equal(t, HeadingRecord{Depth: 1, Text: "Title", LineIndex: 0}, headings[0])
		assert.Equal(t, HeadingRecord{Depth: 2, Text: "Sub", LineIndex: 2}, headings[1])
		assert.Equal(t, HeadingRecord{Depth: 3, Text: "Tabbed", LineIndex: 3}, headings[2])
	})

	t.Run("non headings", func(t *testing.T) {
		lines := []string{
			"#NoSpace",
			"####### Seven",
			"  # Indented",
			"text # not heading",
			"",
		}
		assert.Empty(t, ExtractHeadings(lines))
	})

	t.Run("heading with empty text", func(t *testing.T) {
		headings := ExtractHeadings([]string{"##  "})
		require.Len(t, headings, 1)
		assert.Equal(t, 2, headings[0].Depth)
		assert.Equal(t, "", headings[0].Text)
	})

	t.Run("unicode space after hashes", func(t *testing.T) {
		lines := []string{"intro", "#\u00A0Annex A", "##\u2003Article 1\u00A0", "content"}
		headings := ExtractHeadings(lines)

		require.Len(t, headings, 2)
		assert.Equal(t, HeadingRecord{Depth: 1, Text: "Annex A", LineIndex: 1}, headings[0])
		assert.Equal(t, HeadingRecord{Depth: 2, Text: "Article 1", LineIndex: 2}, headings[1])

		chunks := Partition(lines, headings, 1, "doc")
		assert.Equal(t, []Chunk{
			{Name: "doc, Preface", Start: 0, End: 1},
			{Name: "doc, Annex A", Start: 1, End: 4, IsAnnex: true},
		}, chunks)

		chunks = Partition([]string{"#\u00A0Annex\u00A0B"}, ExtractHeadings([]string{"#\u00A0Annex\u00A0B"}), 1, "doc")
		require.Len(t, chunks, 1)
		assert.Equal(t, "doc, Annex B", chunks[0].Name)
	})

	t.Run("annex detection", func(t *testing.T) {
		headings := ExtractHeadings([]string{"## ANNEX IV", "# Annexes", "# The annex"})
		require.Len(t, headings, 3)
		assert.True(t, headings[0].IsAnnex())
		assert.True(t, headings[1].IsAnnex())
		assert.False(t, headings[2].IsAnnex())
	})
}

// TestSplitLines 测试行切分
func TestSplitLines(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SplitLines("a\r\nb\nc"))
	assert.Equal(t, []string{""}, SplitLines(""))
	assert.Equal(t, []string{"a", ""}, SplitLines("a\n"))
}

// TestPartitionScenarios 测试典型分块场景
func TestPartitionScenarios(t *testing.T) {
	t.Run("first heading above chunk level leaves gap", func(t *testing.T) {
		lines := []string{"# Chapter 1", "body A", "## Article 1", "body B", "## Article 2", "body C"}
		chunks := Partition(lines, ExtractHeadings(lines), 2, "doc")

		assert.Equal(t, []Chunk{
			{Name: "doc, Chapter 1, Article 1", Start: 2, End: 4},
			{Name: "doc, Chapter 1, Article 2", Start: 4, End: 6},
		}, chunks)

		report := Coverage(chunks, len(lines))
		assert.False(t, report.Complete())
		assert.Equal(t, []Span{{Start: 0, End: 2}}, report.Gaps)
		assert.Equal(t, 2, report.GapLines())
	})

	t.Run("preface and annex", func(t *testing.T) {
		lines := []string{"intro text", "# Annex A", "content"}
		chunks := Partition(lines, ExtractHeadings(lines), 1, "doc")

		assert.Equal(t, []Chunk{
			{Name: "doc, Preface", Start: 0, End: 1},
			{Name: "doc, Annex A", Start: 1, End: 3, IsAnnex: true},
		}, chunks)
		assert.True(t, Coverage(chunks, len(lines)).Complete())
	})

	t.Run("empty document", func(t *testing.T) {
		chunks := Partition([]string{}, nil, 1, "doc")
		assert.Equal(t, []Chunk{{Name: "doc, Preface", Start: 0, End: 0}}, chunks)
	})

	t.Run("no headings", func(t *testing.T) {
		lines := []string{"just", "some", "text"}
		chunks := Partition(lines, ExtractHeadings(lines), 1, "doc")
		assert.Equal(t, []Chunk{{Name: "doc, Preface", Start: 0, End: 3}}, chunks)
	})

	t.Run("headings but none at chunk level", func(t *testing.T) {
		lines := []string{"intro", "### Deep", "text"}
		chunks := Partition(lines, ExtractHeadings(lines), 1, "doc")
		assert.Equal(t, []Chunk{{Name: "doc, Preface", Start: 0, End: 3}}, chunks)
	})

	t.Run("annex at deeper depth", func(t *testing.T) {
		lines := []string{"# Part 1", "text", "### Annex 2", "annex body", "# Part 2", "x"}
		chunks := Partition(lines, ExtractHeadings(lines), 1, "doc")

		assert.Equal(t, []Chunk{
			{Name: "doc, Part 1", Start: 0, End: 2},
			{Name: "doc, Annex 2", Start: 2, End: 4, IsAnnex: true},
			{Name: "doc, Part 2", Start: 4, End: 6},
		}, chunks)
	})

	t.Run("annex id fallback and case", func(t *testing.T) {
		lines := []string{"# Annex", "a", "## ANNEX  IV - Tables", "b"}
		chunks := Partition(lines, ExtractHeadings(lines), 1, "doc")

		require.Len(t, chunks, 2)
		assert.Equal(t, "doc, Annex Annex", chunks[0].Name)
		assert.Equal(t, "doc, Annex IV", chunks[1].Name)
		assert.True(t, chunks[1].IsAnnex)
	})

	t.Run("deep hierarchy names", func(t *testing.T) {
		lines := []string{"# C1", "## A1", "### P1", "x", "## A2", "### P2"}
		chunks := Partition(lines, ExtractHeadings(lines), 3, "doc")

		assert.Equal(t, []Chunk{
			{Name: "doc, C1, A1, P1", Start: 2, End: 5},
			{Name: "doc, C1, A2, P2", Start: 5, End: 6},
		}, chunks)
	})

	t.Run("sibling pops deeper ancestors", func(t *testing.T) {
		lines := []string{"# C1", "## A1", "# C2", "## A2"}
		chunks := Partition(lines, ExtractHeadings(lines), 2, "doc")

		require.Len(t, chunks, 2)
		assert.Equal(t, "doc, C1, A1", chunks[0].Name)
		assert.Equal(t, "doc, C2, A2", chunks[1].Name)
	})

	t.Run("out of range level does not panic", func(t *testing.T) {
		lines := []string{"# A", "b"}
		assert.NotPanics(t, func() {
			chunks := Partition(lines, ExtractHeadings(lines), 99, "doc")
			assert.Equal(t, []Chunk{{Name: "doc, Preface", Start: 0, End: 2}}, chunks)
		})
		assert.NotPanics(t, func() {
			Partition(lines, ExtractHeadings(lines), -1, "doc")
		})
	})
}

// TestAnnexDepths 测试附件深度集合
func TestAnnexDepths(t *testing.T) {
	lines := []string{"### Annex 1", "# Annex 2", "## Other", "### annex 3"}
	assert.Equal(t, []int{1, 3}, AnnexDepths(ExtractHeadings(lines)))
	assert.Empty(t, AnnexDepths(nil))
}

// TestRenderAndNames 测试渲染与命名
func TestRenderAndNames(t *testing.T) {
	lines := []string{"intro", "# Title", "body", "more"}
	chunk := Chunk{Name: "doc, Title", Start: 1, End: 4}

	assert.Equal(t, "# doc, Title\n\n# Title\nbody\nmore", Render(chunk, lines))
	assert.Equal(t, "# Title\nbody\nmore", Body(chunk, lines))
	assert.Equal(t, "# doc, Empty\n\n", Render(Chunk{Name: "doc, Empty"}, nil))

	t.Run("render clamps range", func(t *testing.T) {
		out := Render(Chunk{Name: "x", Start: 2, End: 10}, lines)
		assert.Equal(t, "# x\n\nbody\nmore", out)
	})

	t.Run("sanitize", func(t *testing.T) {
		assert.Equal(t, "doc__Chapter_1__Article_1", SanitizeName("doc, Chapter 1, Article 1"))
		assert.Equal(t, "a_b", SanitizeName("a \t b"))
		assert.Equal(t, "doc__Annex_A.md", FileName("doc, Annex A"))
		assert.Equal(t, "doc_chunks.zip", BundleName("doc"))
	})

	t.Run("path characters in names", func(t *testing.T) {
		assert.Equal(t, "doc__Article_3_4.md", FileName("doc, Article 3/4"))
		assert.Equal(t, "doc__a_b.md", FileName("doc, a\\b"))
		assert.Equal(t, "doc__.._.._escaped.md", FileName("doc, ../../escaped"))
		assert.Equal(t, "___x.md", FileName("../x"))
		assert.Equal(t, "__.md", FileName(".."))
		assert.Equal(t, "_etc_chunks.zip", BundleName("/etc"))
		// SanitizeName只处理逗号和空白
		assert.Equal(t, "doc__3/4", SanitizeName("doc, 3/4"))

		chunks := []Chunk{{Name: "../escaped"}, {Name: "../escaped"}, {Name: "a/b"}}
		names := UniqueFileNames(chunks)
		assert.Equal(t, []string{"___escaped.md", "___escaped_2.md", "a_b.md"}, names)
		for _, n := range names {
			assert.NotContains(t, n, "/")
			assert.False(t, strings.HasPrefix(n, "."))
		}
	})

	t.Run("unique file names", func(t *testing.T) {
		chunks := []Chunk{
			{Name: "doc, A"},
			{Name: "doc, B"},
			{Name: "doc, A"},
			{Name: "doc ,A"},
		}
		assert.Equal(t, []string{
			"doc__A.md",
			"doc__B.md",
			"doc__A_2.md",
			"doc__A_3.md",
		}, UniqueFileNames(chunks))
	})

	assert.Equal(t, "2 - 4", LineRange(chunk))
}

// TestHeadingSplitter 测试分块器
func TestHeadingSplitter(t *testing.T) {
	t.Run("invalid level", func(t *testing.T) {
		for _, level := range []int{0, 7, -3} {
			_, err := NewHeadingSplitter(SplitterConfig{ChunkLevel: level, Label: "doc"})
			assert.ErrorIs(t, err, ErrInvalidChunkLevel)
		}
	})

	t.Run("input too large", func(t *testing.T) {
		splitter, err := NewHeadingSplitter(SplitterConfig{ChunkLevel: 1, Label: "doc", MaxLines: 2})
		require.NoError(t, err)

		_, err = splitter.Split("a\nb\nc")
		assert.ErrorIs(t, err, ErrInputTooLarge)
	})

	t.Run("split document", func(t *testing.T) {
		splitter, err := NewHeadingSplitter(SplitterConfig{ChunkLevel: 1, Label: "policy"})
		require.NoError(t, err)

		text := "Preamble\r\n# Scope\r\ntext\r\n## Annex B\r\nx"
		result, err := splitter.Split(text)
		require.NoError(t, err)

		assert.True(t, result.HasHeadings())
		assert.Equal(t, []int{2}, result.AnnexDepths)
		require.Len(t, result.Chunks, 3)
		assert.Equal(t, "policy, Preface", result.Chunks[0].Name)
		assert.Equal(t, "policy, Scope", result.Chunks[1].Name)
		assert.Equal(t, "policy, Annex B", result.Chunks[2].Name)
		assert.True(t, result.Coverage.Complete())
		assert.Equal(t, "# policy, Scope\n\n# Scope\ntext", result.Render(1))
	})

	t.Run("default config", func(t *testing.T) {
		splitter, err := NewHeadingSplitter(DefaultSplitterConfig())
		require.NoError(t, err)
		assert.Equal(t, 1, splitter.Config().ChunkLevel)
	})
}

// randomDocument 生成随机文档
func randomDocument(rng *rand.Rand, n int) []string {
	lines := make([]string, n)
	for i := range lines {
		switch rng.Intn(5) {
		case 0:
			depth := 1 + rng.Intn(6)
			lines[i] = strings.Repeat("#", depth) + " " + fmt.Sprintf("H%d", i)
		case 1:
			depth := 1 + rng.Intn(6)
			lines[i] = strings.Repeat("#", depth) + " " + fmt.Sprintf("Annex %d", i)
		default:
			lines[i] = fmt.Sprintf("line %d", i)
		}
	}
	return lines
}

// TestPartitionProperties 随机文档上的性质检查
func TestPartitionProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for iter := 0; iter < 500; iter++ {
		lines := randomDocument(rng, rng.Intn(40))
		level := 1 + rng.Intn(6)
		headings := ExtractHeadings(lines)
		chunks := Partition(lines, headings, level, "doc")

		require.NotEmpty(t, chunks)

		// 确定性
		assert.Equal(t, chunks, Partition(lines, headings, level, "doc"))

		// 起始行严格递增，区间非空（空文档除外）
		for i, c := range chunks {
			if len(lines) > 0 {
				assert.Less(t, c.Start, c.End, "chunk %d has empty range", i)
			}
			if i > 0 {
				assert.Less(t, chunks[i-1].Start, c.Start)
				assert.LessOrEqual(t, chunks[i-1].End, c.Start)
			}
		}

		report := Coverage(chunks, len(lines))
		assert.Empty(t, report.Overlaps)

		// 每个附件标题都开启一个分块
		starts := make(map[int]Chunk, len(chunks))
		for _, c := range chunks {
			starts[c.Start] = c
		}
		for _, h := range headings {
			if h.IsAnnex() {
				c, ok := starts[h.LineIndex]
				require.True(t, ok, "annex at line %d has no chunk", h.LineIndex)
				assert.True(t, c.IsAnnex)
			}
		}

		// 只有首个标题不是分块边界时才会出现缺口：从首个标题到首个边界
		firstBoundary := -1
		for _, h := range headings {
			if h.Depth == level || h.IsAnnex() {
				firstBoundary = h.LineIndex
				break
			}
		}
		switch {
		case len(headings) == 0 || firstBoundary < 0:
			assert.True(t, report.Complete())
		case firstBoundary == headings[0].LineIndex:
			assert.True(t, report.Complete(), "lines: %v level %d", lines, level)
		default:
			assert.Equal(t, []Span{{Start: headings[0].LineIndex, End: firstBoundary}}, report.Gaps)
		}
	}
}
