package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pending uploads, conflicts and the last sync time (offline)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := theApp.engine.Status(cmd.Context())
		if err != nil {
			return err
		}

		if st.LastCheckpoint.IsZero() {
			color.Yellow("never synced: run `majisync bootstrap` when online")
		} else {
			fmt.Printf("last sync:  %s\n", st.LastCheckpoint.Format("2006-01-02 15:04:05 MST"))
		}
		fmt.Printf("pending uploads: %d\n", st.PendingUploads)
		if st.UnresolvedConflicts > 0 {
			color.Red("unresolved conflicts: %d", st.UnresolvedConflicts)
		} else {
			fmt.Println("unresolved conflicts: 0")
		}
		if st.InProgress {
			fmt.Println("a sync pass is running")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
