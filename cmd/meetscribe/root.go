package main

import (
	"github.com/spf13/cobra"

	"github.com/meetscribe/meetscribe/capture"
	"github.com/meetscribe/meetscribe/config"
	pexec "github.com/meetscribe/meetscribe/exec"
	"github.com/meetscribe/meetscribe/jobs"
	"github.com/meetscribe/meetscribe/logger"
	"github.com/meetscribe/meetscribe/notify"
	"github.com/meetscribe/meetscribe/session"
	"github.com/meetscribe/meetscribe/state"
)

func newRootCmd() *cobra.Command {
	var debug bool

	root := &cobra.Command{
		Use:   "meetscribe",
		Short: "Record, transcribe, and analyze meetings",
		Long: `Meetscribe drives OBS to record meetings, extracts and transcribes the
audio with WhisperX, and writes an LLM analysis document per session.
Processing runs in detached background jobs; check on them with "status".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path, err := logger.DefaultLogPath()
			if err != nil {
				return err
			}
			if err := logger.Init(path); err != nil {
				return err
			}
			logger.SetDebug(debug)
			return nil
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newStartCmd(),
		newStopCmd(),
		newProcessCmd(),
		newAnalyzeCmd(),
		newStatusCmd(),
		newTypesCmd(),
		newConfigCmd(),
		newLogsCmd(),
		newLogsClearCmd(),
		newUploadCmd(),
		newWorkerCmd(),
	)
	return root
}

// app bundles the shared wiring every command needs: resolved config, the
// state store, and the real executor.
type app struct {
	cfg      *config.Config
	store    *state.Store
	executor pexec.CommandExecutor
}

func newApp() (*app, error) {
	cfg, err := config.Resolve()
	if err != nil {
		return nil, err
	}
	store, err := state.Default()
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, store: store, executor: pexec.NewRealExecutor()}, nil
}

func (a *app) service() (*session.Service, error) {
	launcher, err := jobs.NewLauncher(a.store, a.executor)
	if err != nil {
		return nil, err
	}
	controller := capture.New(a.cfg.Recording, a.executor)
	notifier := notify.New(a.executor, a.cfg.Notifications.Enabled)
	return session.NewService(a.cfg, a.store, controller, launcher, notifier), nil
}

// addDiarizeFlags registers the --diarize/--no-diarize pair. resolveDiarize
// applies them over the configured default: an explicit flag wins, otherwise
// transcription.diarize decides.
func addDiarizeFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("diarize", false, "enable speaker diarization")
	cmd.Flags().Bool("no-diarize", false, "disable speaker diarization")
}

func resolveDiarize(cmd *cobra.Command, cfg *config.Config) bool {
	if cmd.Flags().Changed("no-diarize") {
		return false
	}
	if cmd.Flags().Changed("diarize") {
		return true
	}
	return cfg.Transcription.Diarize
}
