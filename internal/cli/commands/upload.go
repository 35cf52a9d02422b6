package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
	"whatsapp-chat-parser/internal/adapters/exporter"
	"whatsapp-chat-parser/internal/client"

	"github.com/spf13/cobra"
)

type uploadOptions struct {
	server     string
	interval   time.Duration
	timeout    time.Duration
	transcript string
	xlsx       string
}

// NewUploadCommand creates the upload command.
func NewUploadCommand() *cobra.Command {
	opts := &uploadOptions{}
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a chat export to the server and print its statistics",
		Long: `Upload a WhatsApp chat export to a running parser server, wait for
the task to finish and print the statistics table.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.server, "server", "http://localhost:8080", "server address")
	cmd.Flags().DurationVar(&opts.interval, "interval", time.Second, "status polling interval")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Minute, "overall wait timeout")
	cmd.Flags().StringVarP(&opts.transcript, "transcript", "t", "", "transcript to parse when the archive has several")
	cmd.Flags().StringVar(&opts.xlsx, "xlsx", "", "download the xlsx export to this file")

	return cmd
}

func runUpload(cmd *cobra.Command, path string, opts *uploadOptions) error {
	if opts.interval <= 0 {
		return fmt.Errorf("--interval must be positive")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	c := client.NewServerClient(opts.server, 0)
	out := cmd.OutOrStdout()

	taskID, err := uploadAndWait(ctx, c, path, opts.transcript, opts.interval)
	var failed *failedTask
	if errors.As(err, &failed) && len(failed.transcripts) > 0 {
		choice, chooseErr := chooseTranscript(failed.transcripts)
		if chooseErr != nil {
			return chooseErr
		}
		taskID, err = uploadAndWait(ctx, c, path, choice, opts.interval)
	}
	if err != nil {
		return err
	}

	stats, err := c.GetTaskStats(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}
	if _, err := io.WriteString(out, exporter.StatsTable(*stats).Render()); err != nil {
		return err
	}

	if opts.xlsx == "" {
		return nil
	}
	data, err := c.GetTaskExport(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to download export: %w", err)
	}
	if err := os.WriteFile(opts.xlsx, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", opts.xlsx, err)
	}
	fmt.Fprintf(out, "\nExport saved to %s\n", opts.xlsx)
	return nil
}

// failedTask — задача, завершившаяся на сервере с ошибкой.
type failedTask struct {
	message     string
	transcripts []string
}

func (e *failedTask) Error() string {
	return "task failed: " + e.message
}

func uploadAndWait(ctx context.Context, c *client.ServerClient, path, transcript string, interval time.Duration) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	started, err := c.StartTask(ctx, client.UploadFile{
		Name:       filepath.Base(path),
		Content:    f,
		Transcript: transcript,
	})
	if err != nil {
		return "", fmt.Errorf("failed to start task: %w", err)
	}

	status, err := c.WaitForTask(ctx, started.TaskID, interval)
	if errors.Is(err, client.ErrTaskFailed) {
		return "", &failedTask{message: status.ErrorMessage, transcripts: status.Transcripts}
	}
	if err != nil {
		return "", fmt.Errorf("failed to wait for task %s: %w", started.TaskID, err)
	}
	return started.TaskID, nil
}
