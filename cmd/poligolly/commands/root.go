package commands

import (
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewRootCmd 创建根命令
func NewRootCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "poligolly",
		Short: "Split policy documents into heading-based Markdown chunks",
		Long: `poligolly converts policy documents to Markdown, splits them into
chunks at a chosen heading depth and scores the chunks against a
table of term definitions.

Examples:
  poligolly convert act.pdf --heading-map "Chapter:1,Article:2"
  poligolly chunk act.md --level 2 --zip act_chunks.zip
  poligolly glossary act_chunks.zip terms.csv --out results.xlsx`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logger.SetLevel(logrus.DebugLevel)
			}
			logger.SetOutput(cmd.ErrOrStderr())
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(NewChunkCmd())
	cmd.AddCommand(NewConvertCmd())
	cmd.AddCommand(NewDefinitionsCmd())
	cmd.AddCommand(NewGlossaryCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute 执行根命令
func Execute() error {
	return NewRootCmd().Execute()
}

// logger 命令行共用的日志记录器，默认只输出警告
var logger = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.WarnLevel)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	l.SetOutput(io.Discard)
	return l
}
