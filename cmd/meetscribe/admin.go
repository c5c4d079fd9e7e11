package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/meetscribe/meetscribe/config"
	"github.com/meetscribe/meetscribe/logger"
	"github.com/meetscribe/meetscribe/upload"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Adjust persistent settings",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "diarize <on|off>",
		Short: "Set the default for speaker diarization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var enabled bool
			switch args[0] {
			case "on":
				enabled = true
			case "off":
				enabled = false
			default:
				return fmt.Errorf("invalid value %q: use \"on\" or \"off\"", args[0])
			}
			if err := config.SetDiarize(enabled); err != nil {
				return err
			}
			fmt.Printf("Diarization default set to %s\n", args[0])
			return nil
		},
	})
	return cmd
}

func newLogsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logs [count]",
		Short: "Show recent log lines (default 50)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			count := 50
			if len(args) > 0 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return fmt.Errorf("invalid count %q", args[0])
				}
				count = n
			}

			lines, err := logger.RecentLines(count)
			if err != nil {
				return err
			}
			if len(lines) == 0 {
				fmt.Println("No log entries.")
				return nil
			}
			for _, line := range lines {
				fmt.Println(line)
			}
			return nil
		},
	}
}

func newLogsClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logs-clear",
		Short: "Delete the log file and rotated backups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := logger.ClearLogs()
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d log file(s)\n", removed)
			return nil
		},
	}
}

func newUploadCmd() *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "upload <folder>",
		Short: "Upload a session folder's artifacts to Google Drive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			results, err := upload.New(a.cfg.GDrive).Upload(cmd.Context(), args[0], raw)
			if err != nil {
				return err
			}
			for _, r := range results {
				fmt.Printf("Uploaded %s (%s)\n", r.Name, r.FileID)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "upload markdown verbatim instead of converting to Google Docs")
	return cmd
}
