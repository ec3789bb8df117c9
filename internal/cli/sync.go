package cli

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dmaganga/majisync/internal/engine"
)

var (
	syncUpOnly   bool
	syncDownOnly bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync pass against the billing server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var (
			res *engine.Result
			err error
		)
		switch {
		case syncUpOnly && syncDownOnly:
			return fmt.Errorf("--up and --down are mutually exclusive")
		case syncUpOnly:
			res, err = theApp.engine.SyncUp(cmd.Context())
		case syncDownOnly:
			res, err = theApp.engine.SyncDown(cmd.Context())
		default:
			res, err = theApp.engine.SyncAll(cmd.Context())
		}

		if errors.Is(err, engine.ErrSyncInProgress) {
			color.Yellow("another sync is already running")
			return nil
		}
		if res != nil {
			printResult(res)
		}
		return err
	},
}

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Fetch a full snapshot, replacing cached server data",
	Long: `Fetch the complete working set from the billing server and replace the
cached copy. Locally captured readings that have not reached the server are
kept. Use this for first-time setup or to recover a corrupted cache.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		res, err := theApp.engine.Bootstrap(cmd.Context())
		if errors.Is(err, engine.ErrSyncInProgress) {
			color.Yellow("another sync is already running")
			return nil
		}
		if res != nil {
			printResult(res)
		}
		return err
	},
}

func printResult(res *engine.Result) {
	fmt.Printf("uploaded:   %d\n", res.Uploaded)
	fmt.Printf("downloaded: %d\n", res.Downloaded)
	fmt.Printf("trimmed:    %d cycles\n", res.Trimmed)
	if res.Conflicts > 0 {
		color.Red("conflicts:  %d (run `majisync conflicts list`)", res.Conflicts)
	}
	if !res.Checkpoint.IsZero() {
		fmt.Printf("checkpoint: %s\n", res.Checkpoint.Format("2006-01-02 15:04:05 MST"))
	}
}

func init() {
	syncCmd.Flags().BoolVar(&syncUpOnly, "up", false, "only upload queued readings")
	syncCmd.Flags().BoolVar(&syncDownOnly, "down", false, "only download server changes")
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(bootstrapCmd)
}
