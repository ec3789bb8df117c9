package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dmaganga/majisync/internal/engine"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run periodic sync passes until interrupted",
	Long: `Run sync passes on the configured interval (MAJISYNC_SYNC_INTERVAL).
Each tick first probes server reachability; unreachable ticks are skipped
quietly so the daemon is safe to leave running on a device that is offline
for days. Stop with SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		theApp.log.Info(ctx, "sync daemon starting", "interval", theApp.cfg.SyncInterval)
		sched := engine.NewScheduler(theApp.engine, theApp.cfg.SyncInterval)
		err := sched.Run(ctx)
		if errors.Is(err, context.Canceled) {
			theApp.log.Info(cmd.Context(), "sync daemon stopped")
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
