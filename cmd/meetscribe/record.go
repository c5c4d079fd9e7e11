package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meetscribe/meetscribe/cli"
	"github.com/meetscribe/meetscribe/session"
)

func newStartCmd() *cobra.Command {
	var callType, person string

	cmd := &cobra.Command{
		Use:   "start [title]",
		Short: "Start recording a meeting",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if err := cli.CheckPrerequisites(cli.ForRecording(a.cfg)); err != nil {
				return err
			}
			svc, err := a.service()
			if err != nil {
				return err
			}

			opts := session.StartOptions{
				CallTypeID: callType,
				PersonName: person,
				Diarize:    resolveDiarize(cmd, a.cfg),
			}
			if len(args) > 0 {
				opts.Title = args[0]
			}

			sess, err := svc.Start(cmd.Context(), opts)
			if err != nil {
				return err
			}
			fmt.Printf("Recording started: %s\n", sess.Title)
			if sess.Diarize {
				fmt.Println("Speaker diarization enabled")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&callType, "call-type", "", "call type id (see \"meetscribe types\")")
	cmd.Flags().StringVar(&person, "person", "", "person name for 1:1 call types")
	addDiarizeFlags(cmd)
	return cmd
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the recording and process it in the background",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if err := cli.CheckPrerequisites(cli.ForRecording(a.cfg)); err != nil {
				return err
			}
			svc, err := a.service()
			if err != nil {
				return err
			}

			job, err := svc.Stop(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Recording stopped: %s\n", job.Title)
			fmt.Printf("Processing in background (job %s). Run \"meetscribe status\" to check progress.\n", job.ID)
			return nil
		},
	}
}
