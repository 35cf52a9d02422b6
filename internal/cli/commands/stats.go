package commands

import (
	"whatsapp-chat-parser/internal/adapters/exporter"

	"github.com/spf13/cobra"
)

// NewStatsCommand creates the stats command.
func NewStatsCommand() *cobra.Command {
	var transcript string
	cmd := &cobra.Command{
		Use:   "stats <file>",
		Short: "Print chat statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := processLocal(cmd, args[0], transcript)
			if err != nil {
				return err
			}
			return exporter.NewConsoleExporter(exporter.WithWriter(cmd.OutOrStdout()), exporter.StatsOnly()).Export(result)
		},
	}
	cmd.Flags().StringVarP(&transcript, "transcript", "t", "", "transcript to parse when the archive has several")
	return cmd
}
