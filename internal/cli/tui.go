package cli

import (
	"context"
	"fmt"

	"ghgcalc/internal/app"
	"ghgcalc/internal/logging"
	"ghgcalc/internal/storage"

	"github.com/gdamore/tcell/v2"
	"github.com/spf13/cobra"
)

func newTUICmd(opts *options) *cobra.Command {
	var open string
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Start the interactive formula form",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd.Context(), opts, open)
		},
	}
	cmd.Flags().StringVar(&open, "open", "", "load a saved formula on start")
	return cmd
}

// runTUI owns the terminal until the user quits. Logs go to the log file.
func runTUI(ctx context.Context, opts *options, open string) error {
	f, err := logging.OpenFile(opts.cfg.LogFile)
	if err != nil {
		return err
	}
	defer f.Close()
	logger := logging.New(opts.cfg.LogLevel, opts.cfg.LogFormat, f)
	lib := storage.NewLibrary(opts.cfg.LibraryPath, opts.cfg.LockTimeout.Duration, logger)

	a := app.NewApp(ctx, opts.cfg, lib, logger)
	if open != "" {
		def, err := lib.Get(ctx, open)
		if err != nil {
			return err
		}
		a.Load(def)
	}

	s, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("cannot create screen: %w", err)
	}
	if err := s.Init(); err != nil {
		return fmt.Errorf("cannot init screen: %w", err)
	}
	defer s.Fini()
	s.Clear()

	logger.Info("Form started.", "library", lib.Path())
	if opts.cfg.Splash {
		app.SplashScreen(s)
	}
	a.Run(s)
	logger.Info("Form closed.")
	return nil
}
