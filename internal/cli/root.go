// Package cli provides the command-line interface for the WhatsApp chat parser.
package cli

import (
	"fmt"
	"os"
	"whatsapp-chat-parser/internal/cli/commands"

	"github.com/spf13/cobra"
)

// Execute runs the root command and returns the exit code.
func Execute() int {
	if err := NewRootCommand().Execute(); err != nil {
		// SilenceErrors prevents Cobra from printing the error itself.
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// NewRootCommand creates the root cobra command.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "chatctl",
		Short: "Parse and analyze WhatsApp chat exports",
		Long: `chatctl parses WhatsApp chat exports (.txt transcripts or .zip archives
with attachments) and prints participants, statistics and unresolved attachments.

Files can be parsed locally or uploaded to a running parser server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "config.yml", "path to the configuration file")

	rootCmd.AddCommand(commands.NewParseCommand())
	rootCmd.AddCommand(commands.NewStatsCommand())
	rootCmd.AddCommand(commands.NewUploadCommand())

	return rootCmd
}
