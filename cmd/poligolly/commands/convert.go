package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fyerfyer/poli-golly/internal/services"
	"github.com/spf13/cobra"
)

// NewConvertCmd 创建convert命令
func NewConvertCmd() *cobra.Command {
	var (
		headingMap string
		outPath    string
	)

	cmd := &cobra.Command{
		Use:   "convert <file>",
		Short: "Convert a PDF or HTML document to Markdown",
		Long: `Convert a PDF or HTML document to Markdown with headings.

Lines that start with a prefix from the heading map become headings of
the mapped depth, for example "Chapter:1,Article:2" or
'{"Chapter": 1, "Article": 2}'.

Examples:
  poligolly convert act.pdf
  poligolly convert act.html --heading-map "Chapter:1,Article:2" -o act.md
  poligolly convert act.pdf --out -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", path, err)
			}
			defer f.Close()

			res, err := services.NewConvertService(nil, logger).Convert(cmd.Context(), f, filepath.Base(path), headingMap)
			if err != nil {
				return err
			}

			if outPath == "-" {
				_, err := io.WriteString(cmd.OutOrStdout(), res.Markdown)
				return err
			}
			if outPath == "" {
				outPath = filepath.Join(filepath.Dir(path), res.FileName)
			}
			if err := os.WriteFile(outPath, []byte(res.Markdown), 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", outPath, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Converted %s -> %s\n", path, outPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&headingMap, "heading-map", "", "Prefix to heading depth map")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", `Output file, "-" for stdout (default: <name>.md next to the input)`)

	return cmd
}
