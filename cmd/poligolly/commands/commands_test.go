package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fyerfyer/poli-golly/internal/glossary"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const policyMarkdown = "Preamble text\n" +
	"# Chapter I General\n" +
	"## Article 1 Scope\n" +
	"Body one.\n" +
	"## Article 2, Terms\n" +
	"Body two.\n" +
	"# Annex I\n" +
	"Annex body."

// execute 运行根命令并返回标准输出和标准错误
func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()

	cmd := NewRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewRootCmd(t *testing.T) {
	cmd := NewRootCmd()
	assert.Equal(t, "poligolly", cmd.Use)
	assert.NotEmpty(t, cmd.Short)

	flag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, flag)
	assert.Equal(t, "v", flag.Shorthand)
	assert.Equal(t, "false", flag.DefValue)

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	for _, want := range []string{"chunk", "convert", "definitions", "glossary", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestVersionCmd(t *testing.T) {
	SetVersion("1.2.3", "abc123", "2026-01-01")
	defer SetVersion("dev", "none", "unknown")

	out, _, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "poligolly 1.2.3")
	assert.Contains(t, out, "Commit: abc123")
	assert.Contains(t, out, "Built:  2026-01-01")
}

func TestChunkCmd_Directory(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "act.md", policyMarkdown)
	outDir := filepath.Join(dir, "out")

	out, stderr, err := execute(t, "", "chunk", input, "--out", outDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote 3 chunk(s)")
	assert.Empty(t, stderr)

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"act__Preface.md", "act__Chapter_I_General.md", "act__Annex_I.md"}, names)

	data, err := os.ReadFile(filepath.Join(outDir, "act__Annex_I.md"))
	require.NoError(t, err)
	assert.Equal(t, "# act, Annex I\n\n# Annex I\nAnnex body.", string(data))
}

func TestChunkCmd_DryRun(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "act.md", policyMarkdown)

	out, _, err := execute(t, "", "chunk", input, "--level", "2", "--label", "AI Act", "--dry-run")
	require.NoError(t, err)

	assert.Contains(t, out, "1 - 2")
	assert.Contains(t, out, "AI Act, Preface")
	assert.Contains(t, out, "AI Act, Chapter I General, Article 1 Scope")
	assert.Contains(t, out, "AI Act, Chapter I General, Article 2, Terms")
	assert.Contains(t, out, "AI Act, Annex I")
	assert.Contains(t, out, "4 chunk(s)")

	_, err = os.Stat(filepath.Join(dir, "AI_Act_chunks"))
	assert.True(t, os.IsNotExist(err))
}

func TestChunkCmd_Zip(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "act.md", policyMarkdown)
	archive := filepath.Join(dir, "act_chunks.zip")

	out, _, err := execute(t, "", "chunk", input, "--level", "2", "--zip", archive)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote 4 chunk(s) to "+archive)

	chunks, err := readChunkArchive(archive)
	require.NoError(t, err)
	require.Len(t, chunks, 4)
	assert.Equal(t, "act__Chapter_I_General__Article_2__Terms.md", chunks[2].Name)
	assert.True(t, strings.HasPrefix(chunks[2].Text, "# act, Chapter I General, Article 2, Terms\n\n"))
}

func TestChunkCmd_CoverageGap(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "gap.md", "## Intro\ntext\n# Chapter A\nbody")

	_, stderr, err := execute(t, "", "chunk", input, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, stderr, "2 line(s) before the first chunk boundary")
}

func TestChunkCmd_NoHeadings(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "plain.md", "just text\nmore text")

	t.Run("declined", func(t *testing.T) {
		outDir := filepath.Join(dir, "declined")
		out, stderr, err := execute(t, "n\n", "chunk", input, "--out", outDir)
		require.NoError(t, err)
		assert.Contains(t, stderr, "no headings found")
		assert.Contains(t, out, "Aborted")

		_, err = os.Stat(outDir)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("confirmed", func(t *testing.T) {
		outDir := filepath.Join(dir, "confirmed")
		out, _, err := execute(t, "y\n", "chunk", input, "--out", outDir)
		require.NoError(t, err)
		assert.Contains(t, out, "Wrote 1 chunk(s)")

		data, err := os.ReadFile(filepath.Join(outDir, "plain__Preface.md"))
		require.NoError(t, err)
		assert.Equal(t, "# plain, Preface\n\njust text\nmore text", string(data))
	})

	t.Run("yes flag", func(t *testing.T) {
		outDir := filepath.Join(dir, "yes")
		out, _, err := execute(t, "", "chunk", input, "--out", outDir, "--yes")
		require.NoError(t, err)
		assert.Contains(t, out, "Wrote 1 chunk(s)")
	})
}

func TestChunkCmd_Errors(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "act.md", policyMarkdown)

	_, _, err := execute(t, "", "chunk", input, "--level", "7")
	assert.Error(t, err)

	_, _, err = execute(t, "", "chunk", filepath.Join(dir, "missing.md"))
	assert.Error(t, err)

	_, _, err = execute(t, "", "chunk")
	assert.Error(t, err)
}

func TestChunkCmd_PathCharactersInHeadings(t *testing.T) {
	root := t.TempDir()
	input := writeFile(t, root, "doc.md", "# Article 3/4\nx\n# ../../../escaped\ny")
	outDir := filepath.Join(root, "a", "b", "out")

	out, _, err := execute(t, "", "chunk", input, "--out", outDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote 2 chunk(s)")

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"doc__Article_3_4.md", "doc__.._.._.._escaped.md"}, names)

	var written []string
	require.NoError(t, filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() && path != input {
			written = append(written, path)
		}
		return err
	}))
	for _, path := range written {
		assert.Equal(t, outDir, filepath.Dir(path))
	}
	assert.Len(t, written, 2)
}

func TestChunkCmd_ByteOrderMark(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "bom.md", "\ufeff# Title\nbody")

	out, stderr, err := execute(t, "", "chunk", input, "--dry-run")
	require.NoError(t, err)
	assert.NotContains(t, stderr, "no headings found")
	assert.Contains(t, out, "1 - 2")
	assert.Contains(t, out, "bom, Title")
	assert.NotContains(t, out, "Preface")
}

func TestChunkCmd_ConvertsHTML(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "page.html",
		`<html><body><p>Chapter I General</p><p>Article 1 Scope</p><p>Body</p></body></html>`)

	out, _, err := execute(t, "", "chunk", input, "--level", "2", "--heading-map", "Chapter:1,Article:2", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "page, Chapter I General, Article 1 Scope")
}

func TestConvertCmd(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "page.html",
		`<html><body><p>Chapter I General</p><p>Article 1 Scope</p><p>Body</p></body></html>`)

	t.Run("stdout", func(t *testing.T) {
		out, _, err := execute(t, "", "convert", input, "--heading-map", "Chapter:1,Article:2", "--out", "-")
		require.NoError(t, err)
		assert.Equal(t, "# Chapter I General\n\n\n## Article 1 Scope\n\n\nBody\n", out)
	})

	t.Run("default output file", func(t *testing.T) {
		out, _, err := execute(t, "", "convert", input, "--heading-map", "Chapter:1,Article:2")
		require.NoError(t, err)
		assert.Contains(t, out, "page.md")

		data, err := os.ReadFile(filepath.Join(dir, "page.md"))
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(data), "# Chapter I General"))
	})

	t.Run("bad heading map", func(t *testing.T) {
		_, _, err := execute(t, "", "convert", input, "--heading-map", "Chapter:9")
		assert.Error(t, err)
	})
}

const definitionsCSV = "Sub-term,Definition\n" +
	"Provider,A natural or legal person that develops a system\n" +
	"Deployer,A person using a system under its authority\n"

func TestDefinitionsCmd(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "terms.csv", definitionsCSV)

	out, _, err := execute(t, "", "definitions", input)
	require.NoError(t, err)
	assert.Contains(t, out, "Sub-term")
	assert.Contains(t, out, "2 row(s)")

	out, _, err = execute(t, "", "definitions", input, "--terms")
	require.NoError(t, err)
	assert.Contains(t, out, "Deployer")
	assert.Contains(t, out, "2 term(s)")

	out, _, err = execute(t, "", "definitions", input, "--csv")
	require.NoError(t, err)
	assert.Equal(t, definitionsCSV, out)

	_, _, err = execute(t, "", "definitions", input, "--terms", "--term-column", "Name")
	assert.Error(t, err)
}

func TestGlossaryCmd(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "policy.md", "# Article 1\nThe provider shall register.\n# Article 2\nObligations of the deployer.")
	defs := writeFile(t, dir, "terms.csv", definitionsCSV)
	archive := filepath.Join(dir, "policy_chunks.zip")
	results := filepath.Join(dir, "results.xlsx")

	_, _, err := execute(t, "", "chunk", input, "--zip", archive)
	require.NoError(t, err)

	out, stderr, err := execute(t, "", "glossary", archive, defs, "--out", results, "--concurrency", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Scored 2 chunk(s) against 2 term(s)")
	assert.Contains(t, stderr, "Scored 2/2 chunks")

	f, err := os.Open(results)
	require.NoError(t, err)
	defer f.Close()

	rows, err := glossary.ReadXLSX(f)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "policy__Article_1.md", rows[0].ChunkInfo)
	assert.Equal(t, []glossary.TermScore{{Term: "Provider", Score: 1}}, glossary.ParseKeyTerms(rows[0].KeyTerms))
}

func TestGlossaryCmd_Errors(t *testing.T) {
	dir := t.TempDir()
	defs := writeFile(t, dir, "terms.csv", definitionsCSV)
	empty := writeFile(t, dir, "empty.csv", "Sub-term,Definition\n ,x\n")

	input := writeFile(t, dir, "policy.md", "# Article 1\ntext")
	archive := filepath.Join(dir, "policy_chunks.zip")
	_, _, err := execute(t, "", "chunk", input, "--zip", archive)
	require.NoError(t, err)

	_, _, err = execute(t, "", "glossary", archive, empty)
	assert.ErrorContains(t, err, "no terms")

	_, _, err = execute(t, "", "glossary", archive, defs, "--scorer", "unknown")
	assert.ErrorContains(t, err, "unknown scorer")

	_, _, err = execute(t, "", "glossary", defs, defs)
	assert.Error(t, err)
}
