package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meetscribe/meetscribe/config"
	"github.com/meetscribe/meetscribe/jobs"
	"github.com/meetscribe/meetscribe/pipeline"
)

// newWorkerCmd is the internal entry point for detached processing jobs.
// The launcher re-invokes the binary as `meetscribe worker --job <spec>`.
func newWorkerCmd() *cobra.Command {
	var jobPath string

	cmd := &cobra.Command{
		Use:    "worker",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if jobPath == "" {
				return fmt.Errorf("--job is required")
			}
			spec, err := jobs.ReadSpec(jobPath)
			if err != nil {
				return err
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			worker, err := pipeline.NewWorker(a.cfg, a.executor, pipeline.ContextBases{
				Private: a.cfg.ContextBasePath,
				Bundled: config.ProjectConfigDir(),
			})
			if err != nil {
				return err
			}
			return worker.Run(cmd.Context(), spec)
		},
	}
	cmd.Flags().StringVar(&jobPath, "job", "", "path to the job spec file")
	return cmd
}
