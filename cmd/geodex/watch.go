package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/geodex/geodex/internal/stage"
)

var watchUpdate bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch stage/ and archive files as they arrive",
	Long: `Watch runs until interrupted, archiving whatever lands in the driver's
stage directory once writes settle. Useful behind an out-of-band
download pipeline that drops files into stage/.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		w := stage.NewWatcher(a.repo, a.fetcher, cfg.Stage, watchUpdate, a.log)
		if err := w.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}

func init() {
	watchCmd.Flags().BoolVarP(&watchUpdate, "update", "u", false, "allow newer versions to replace archived assets")
}
