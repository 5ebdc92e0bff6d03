package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/fyerfyer/poli-golly/internal/definitions"
	"github.com/spf13/cobra"
)

// NewDefinitionsCmd 创建definitions命令
func NewDefinitionsCmd() *cobra.Command {
	var (
		termColumn string
		defColumn  string
		termsOnly  bool
		asCSV      bool
	)

	cmd := &cobra.Command{
		Use:   "definitions <file>",
		Short: "Show a CSV or XLSX table of term definitions",
		Long: `Read a definitions table and print its rows or the extracted terms.

Examples:
  poligolly definitions terms.xlsx
  poligolly definitions terms.csv --terms
  poligolly definitions terms.xlsx --csv > terms.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := readTable(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if asCSV {
				return definitions.WriteCSV(out, table)
			}

			if termsOnly {
				terms, err := table.Terms(termColumn, defColumn)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				for _, t := range terms {
					fmt.Fprintf(tw, "%s\t%s\n", t.Name, t.Definition)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(out, "\n%d term(s)\n", len(terms))
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, strings.Join(table.Headers, "\t"))
			for _, row := range table.Rows {
				fmt.Fprintln(tw, strings.Join(row, "\t"))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%d row(s)\n", len(table.Rows))
			return nil
		},
	}

	cmd.Flags().StringVar(&termColumn, "term-column", definitions.DefaultTermColumn, "Column holding term names")
	cmd.Flags().StringVar(&defColumn, "definition-column", definitions.DefaultDefinitionColumn, "Column holding definitions")
	cmd.Flags().BoolVar(&termsOnly, "terms", false, "Print extracted terms instead of raw rows")
	cmd.Flags().BoolVar(&asCSV, "csv", false, "Print the table as CSV")

	return cmd
}

func readTable(path string) (*definitions.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	return definitions.Read(f, filepath.Base(path))
}
