package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/meetscribe/meetscribe/capture"
	"github.com/meetscribe/meetscribe/jobs"
	"github.com/meetscribe/meetscribe/llm"
	"github.com/meetscribe/meetscribe/logger"
	"github.com/meetscribe/meetscribe/state"
)

// statusPayload is the machine-readable status document. Scripts and the
// menu-bar integration parse this, so the field set is stable.
type statusPayload struct {
	Recording       bool        `json:"recording"`
	Phase           string      `json:"phase,omitempty"`
	Title           string      `json:"title,omitempty"`
	StartedAt       string      `json:"started_at,omitempty"`
	Processing      bool        `json:"processing"`
	ProcessingCount int         `json:"processing_count"`
	Jobs            []state.Job `json:"jobs"`
	OBSRunning      bool        `json:"obs_running"`
	DiarizeDefault  bool        `json:"diarize_default"`
	LLMEnabled      bool        `json:"llm_enabled"`
	LogFile         string      `json:"log_file,omitempty"`
}

func newStatusCmd() *cobra.Command {
	var reap bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report recording and processing state as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			registry, err := jobs.NewRegistry(a.store)
			if err != nil {
				return err
			}

			listed, err := registry.List()
			if err != nil {
				return err
			}
			if reap {
				if _, err := registry.ReapTerminal(); err != nil {
					return err
				}
			}

			payload := statusPayload{Jobs: listed}
			for _, job := range listed {
				if job.Status == state.StatusRunning {
					payload.ProcessingCount++
				}
			}
			payload.Processing = payload.ProcessingCount > 0

			if sess := a.store.LoadSession(); sess.Active {
				payload.Recording = true
				payload.Phase = string(sess.Phase)
				payload.Title = sess.Title
				payload.StartedAt = sess.StartedAt.Format(time.RFC3339)
			}

			payload.OBSRunning = capture.OBSRunning(cmd.Context(), a.executor)
			payload.DiarizeDefault = a.cfg.Transcription.Diarize
			payload.LLMEnabled = llm.Enabled(a.cfg.LLM)
			if logPath, err := logger.DefaultLogPath(); err == nil {
				payload.LogFile = logPath
			}

			out, err := json.MarshalIndent(payload, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().BoolVar(&reap, "reap", false, "remove finished jobs from the registry after reporting")
	return cmd
}

func newTypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List available call types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			ids := make([]string, 0, len(a.cfg.CallTypes))
			for id := range a.cfg.CallTypes {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			w := os.Stdout
			fmt.Fprintln(w, "Available call types:")
			for _, id := range ids {
				ct := a.cfg.CallTypes[id]
				line := fmt.Sprintf("  %-14s %s %s", id, ct.Icon, ct.Name)
				if ct.RequiresPersonName {
					line += " (requires --person)"
				}
				fmt.Fprintln(w, line)
			}
			return nil
		},
	}
}
