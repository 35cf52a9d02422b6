package commands

import (
	"whatsapp-chat-parser/internal/adapters/exporter"
	"whatsapp-chat-parser/internal/ports"

	"github.com/spf13/cobra"
)

type parseOptions struct {
	json       bool
	transcript string
	xlsx       string
}

// NewParseCommand creates the parse command.
func NewParseCommand() *cobra.Command {
	opts := &parseOptions{}
	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Parse a chat export locally",
		Long: `Parse a WhatsApp chat export (.txt or .zip) without a server.

By default prints participants, a statistics table and attachments
that are referenced in the transcript but missing from the archive.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParse(cmd, args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.json, "json", false, "print the full result as JSON")
	cmd.Flags().StringVarP(&opts.transcript, "transcript", "t", "", "transcript to parse when the archive has several")
	cmd.Flags().StringVar(&opts.xlsx, "xlsx", "", "also write messages to this .xlsx file")

	return cmd
}

func runParse(cmd *cobra.Command, path string, opts *parseOptions) error {
	result, err := processLocal(cmd, path, opts.transcript)
	if err != nil {
		return err
	}

	var exp ports.Exporter
	if opts.json {
		exp = exporter.NewJSONExporter(cmd.OutOrStdout())
	} else {
		exp = exporter.NewConsoleExporter(exporter.WithWriter(cmd.OutOrStdout()))
	}
	if err := exp.Export(result); err != nil {
		return err
	}

	if opts.xlsx != "" {
		return exporter.NewExcelExporter(opts.xlsx).Export(result)
	}
	return nil
}
