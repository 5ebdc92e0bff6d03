package commands

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fyerfyer/poli-golly/internal/chunker"
	"github.com/fyerfyer/poli-golly/internal/document"
	"github.com/fyerfyer/poli-golly/internal/services"
	"github.com/spf13/cobra"
)

// chunkOptions chunk命令的参数
type chunkOptions struct {
	Level      int
	Label      string
	OutDir     string
	ZipFile    string
	HeadingMap string
	DryRun     bool
	Yes        bool
}

// NewChunkCmd 创建chunk命令
func NewChunkCmd() *cobra.Command {
	var opts chunkOptions

	cmd := &cobra.Command{
		Use:   "chunk <file>",
		Short: "Split a Markdown document into heading-based chunks",
		Long: `Split a Markdown document at headings of the chosen depth.

Each chunk is written as its own Markdown file whose first line is the
hierarchical chunk name. Annex headings always start a new chunk.
PDF and HTML files are converted to Markdown first.

Examples:
  poligolly chunk act.md
  poligolly chunk act.md --level 2 --out chunks/
  poligolly chunk act.md --level 3 --zip act_chunks.zip
  poligolly chunk act.pdf --heading-map "Chapter:1,Article:2" --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChunk(cmd, args[0], opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Level, "level", "l", 1, "Heading depth to split at (1-6)")
	cmd.Flags().StringVar(&opts.Label, "label", "", "Chunk name prefix (default: file name without extension)")
	cmd.Flags().StringVarP(&opts.OutDir, "out", "o", "", "Directory for chunk files (default: <label>_chunks)")
	cmd.Flags().StringVar(&opts.ZipFile, "zip", "", "Write all chunks into this zip file instead of a directory")
	cmd.Flags().StringVar(&opts.HeadingMap, "heading-map", "", "Heading map used when converting PDF or HTML input")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Only list chunk names and line ranges")
	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "Do not ask for confirmation when no headings are found")

	return cmd
}

func runChunk(cmd *cobra.Command, path string, opts chunkOptions) error {
	if err := chunker.ValidateLevel(opts.Level); err != nil {
		return err
	}

	text, err := readMarkdown(cmd.Context(), path, opts.HeadingMap)
	if err != nil {
		return err
	}

	label := opts.Label
	if label == "" {
		label = services.DefaultLabel(path)
	}

	splitter, err := chunker.NewHeadingSplitter(chunker.SplitterConfig{
		ChunkLevel: opts.Level,
		Label:      label,
	})
	if err != nil {
		return err
	}
	result, err := splitter.Split(text)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if !result.HasHeadings() {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: no headings found in %s, the whole file becomes one chunk\n", path)
		if !opts.Yes && !opts.DryRun {
			ok, err := confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), "Continue?")
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(out, "Aborted")
				return nil
			}
		}
	}
	if gap := result.Coverage.GapLines(); gap > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %d line(s) before the first chunk boundary are not in any chunk\n", gap)
	}

	logger.WithField("chunks", len(result.Chunks)).Debugf("Split %s at level %d", path, opts.Level)

	if opts.DryRun {
		for _, c := range result.Chunks {
			fmt.Fprintf(out, "%-12s %s\n", chunker.LineRange(c), c.Name)
		}
		fmt.Fprintf(out, "\n%d chunk(s)\n", len(result.Chunks))
		return nil
	}

	if opts.ZipFile != "" {
		if err := writeZip(opts.ZipFile, result); err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote %d chunk(s) to %s\n", len(result.Chunks), opts.ZipFile)
		return nil
	}

	dir := opts.OutDir
	if dir == "" {
		dir = strings.TrimSuffix(chunker.BundleName(label), ".zip")
	}
	if err := writeChunkFiles(dir, result); err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %d chunk(s) to %s\n", len(result.Chunks), dir)
	return nil
}

// readMarkdown 读取Markdown文件，其他受支持的格式先转换
func readMarkdown(ctx context.Context, path, headingMap string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if document.IsChunkable(path) {
		return document.NewTextExtractor().Extract(ctx, bytes.NewReader(data))
	}

	res, err := services.NewConvertService(nil, logger).Convert(ctx, bytes.NewReader(data), filepath.Base(path), headingMap)
	if err != nil {
		return "", err
	}
	return res.Markdown, nil
}

func writeZip(path string, result *chunker.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := services.WriteBundle(f, result); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeChunkFiles(dir string, result *chunker.Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	for i, name := range chunker.UniqueFileNames(result.Chunks) {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(result.Render(i)), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return nil
}

// confirm 询问是否继续，只有y或yes表示同意
func confirm(in io.Reader, out io.Writer, prompt string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
