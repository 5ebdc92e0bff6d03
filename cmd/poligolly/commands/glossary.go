package commands

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fyerfyer/poli-golly/internal/glossary"
	"github.com/spf13/cobra"
)

// glossaryOptions glossary命令的参数
type glossaryOptions struct {
	Scorer      string
	Model       string
	APIKey      string
	Endpoint    string
	Concurrency int
	Interval    time.Duration
	TermColumn  string
	DefColumn   string
	OutPath     string
}

// NewGlossaryCmd 创建glossary命令
func NewGlossaryCmd() *cobra.Command {
	var opts glossaryOptions

	cmd := &cobra.Command{
		Use:   "glossary <chunks.zip> <definitions>",
		Short: "Score every chunk against a table of term definitions",
		Long: `Score each Markdown chunk in a zip archive against every term of a
definitions table and write the results to an XLSX workbook.

The keyword scorer works offline. The openai scorer asks a chat model
and reads the API key from --api-key or OPENAI_API_KEY.

Examples:
  poligolly glossary act_chunks.zip terms.csv
  poligolly glossary act_chunks.zip terms.xlsx --scorer openai --concurrency 4
  poligolly glossary act_chunks.zip terms.csv --out results.xlsx`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGlossary(cmd, args[0], args[1], opts)
		},
	}

	cmd.Flags().StringVar(&opts.Scorer, "scorer", "keyword", "Scorer to use (keyword/openai)")
	cmd.Flags().StringVar(&opts.Model, "model", "", "Chat model for the openai scorer")
	cmd.Flags().StringVar(&opts.APIKey, "api-key", "", "API key for the openai scorer")
	cmd.Flags().StringVar(&opts.Endpoint, "endpoint", "", "OpenAI compatible endpoint")
	cmd.Flags().IntVarP(&opts.Concurrency, "concurrency", "c", 1, "Chunks scored in parallel")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "Pause after each chunk")
	cmd.Flags().StringVar(&opts.TermColumn, "term-column", "", "Column holding term names")
	cmd.Flags().StringVar(&opts.DefColumn, "definition-column", "", "Column holding definitions")
	cmd.Flags().StringVarP(&opts.OutPath, "out", "o", "", "Output XLSX file (default: glossary_results_<timestamp>.xlsx)")

	return cmd
}

func runGlossary(cmd *cobra.Command, zipPath, defsPath string, opts glossaryOptions) error {
	table, err := readTable(defsPath)
	if err != nil {
		return err
	}
	terms, err := table.Terms(opts.TermColumn, opts.DefColumn)
	if err != nil {
		return err
	}
	if len(terms) == 0 {
		return errors.New("no terms found in definitions table")
	}

	chunks, err := readChunkArchive(zipPath)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return fmt.Errorf("no markdown chunks found in %s", zipPath)
	}

	if opts.APIKey == "" {
		opts.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	scorer, err := glossary.NewScorer(glossary.Config{
		Scorer:   opts.Scorer,
		Model:    opts.Model,
		APIKey:   opts.APIKey,
		Endpoint: opts.Endpoint,
	})
	if err != nil {
		return err
	}

	stderr := cmd.ErrOrStderr()
	builder := glossary.NewBuilder(scorer, glossary.Options{
		Concurrency:     opts.Concurrency,
		RequestInterval: opts.Interval,
		Logger:          logger,
		Progress: func(done, total int) {
			fmt.Fprintf(stderr, "\rScored %d/%d chunks", done, total)
			if done == total {
				fmt.Fprintln(stderr)
			}
		},
	})

	results, err := builder.Build(cmd.Context(), chunks, terms)
	if err != nil {
		return err
	}

	out := opts.OutPath
	if out == "" {
		out = glossary.ResultFileName(time.Now())
	}
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", out, err)
	}
	if err := glossary.WriteXLSX(f, results); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Scored %d chunk(s) against %d term(s), results saved to %s\n", len(results), len(terms), out)
	return nil
}

func readChunkArchive(path string) ([]glossary.ChunkText, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return glossary.ReadChunks(f, info.Size())
}
