package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meetscribe/meetscribe/cli"
	"github.com/meetscribe/meetscribe/session"
)

func newProcessCmd() *cobra.Command {
	var callType, person string
	var keepSource bool

	cmd := &cobra.Command{
		Use:   "process <path> [title]",
		Short: "Transcribe and analyze an existing video file",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if err := cli.CheckPrerequisites(cli.ForProcessing(a.cfg)); err != nil {
				return err
			}
			svc, err := a.service()
			if err != nil {
				return err
			}

			opts := session.ProcessOptions{
				Path:       args[0],
				CallTypeID: callType,
				PersonName: person,
				Diarize:    resolveDiarize(cmd, a.cfg),
				KeepSource: keepSource,
			}
			if len(args) > 1 {
				opts.Title = args[1]
			}

			job, err := svc.Process(cmd.Context(), opts)
			if err != nil {
				return err
			}
			fmt.Printf("Processing %s in background (job %s).\n", job.Title, job.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&callType, "call-type", "", "call type id (see \"meetscribe types\")")
	cmd.Flags().StringVar(&person, "person", "", "person name for 1:1 call types")
	cmd.Flags().BoolVar(&keepSource, "keep-source", false, "keep the source video after audio extraction")
	addDiarizeFlags(cmd)
	return cmd
}

func newAnalyzeCmd() *cobra.Command {
	var callType, person string

	cmd := &cobra.Command{
		Use:   "analyze <folder>",
		Short: "Re-run LLM analysis over an existing session folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			svc, err := a.service()
			if err != nil {
				return err
			}

			job, err := svc.Analyze(cmd.Context(), session.AnalyzeOptions{
				Folder:     args[0],
				CallTypeID: callType,
				PersonName: person,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Analyzing %s in background (job %s).\n", job.Title, job.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&callType, "call-type", "", "call type id (see \"meetscribe types\")")
	cmd.Flags().StringVar(&person, "person", "", "person name for 1:1 call types")
	return cmd
}
