package cli

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dmaganga/majisync/internal/models"
)

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Inspect and resolve reading conflicts",
}

var conflictsListAll bool

var conflictsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reading conflicts (unresolved by default)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var filter *bool
		if !conflictsListAll {
			f := false
			filter = &f
		}
		list, err := theApp.conflicts.List(cmd.Context(), filter)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			color.Green("no conflicts")
			return nil
		}

		for _, c := range list {
			state := color.RedString("open")
			if c.Resolved {
				state = color.GreenString("resolved")
			}
			fmt.Printf("#%d [%s] assignment %d, cycle %d\n", c.ID, state, c.AssignmentID, c.CycleID)
			fmt.Printf("    local %s m³ vs server %s m³ — %s\n", c.LocalValue, c.ServerValue, c.Reason)
			if c.Resolved && c.ResolutionNote != "" {
				fmt.Printf("    note: %s\n", c.ResolutionNote)
			}
		}
		return nil
	},
}

var (
	resolveNote   string
	resolveValue  string
	resolveReader string
)

var conflictsAcceptCmd = &cobra.Command{
	Use:   "accept <conflict-id>",
	Short: "Resolve a conflict by accepting the server value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if err := theApp.conflicts.AcceptServer(cmd.Context(), id, resolveNote); err != nil {
			return err
		}
		color.Green("conflict #%d resolved with the server value", id)
		return nil
	},
}

var conflictsResubmitCmd = &cobra.Command{
	Use:   "resubmit <conflict-id>",
	Short: "Resolve a conflict by submitting a corrected reading",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		value, err := models.ParseVolume(resolveValue)
		if err != nil {
			return fmt.Errorf("invalid reading value %q: %w", resolveValue, err)
		}
		if err := theApp.conflicts.Resubmit(cmd.Context(), id, value, resolveReader, resolveNote); err != nil {
			return err
		}
		color.Green("conflict #%d resolved: %s m³ queued for upload", id, value)
		return nil
	},
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid conflict id %q", s)
	}
	return id, nil
}

func init() {
	conflictsListCmd.Flags().BoolVarP(&conflictsListAll, "all", "a", false, "include resolved conflicts")

	conflictsAcceptCmd.Flags().StringVar(&resolveNote, "note", "", "resolution note")

	conflictsResubmitCmd.Flags().StringVar(&resolveValue, "value", "", "corrected absolute meter value in m³")
	conflictsResubmitCmd.Flags().StringVar(&resolveReader, "reader", "", "name or id of the person resubmitting")
	conflictsResubmitCmd.Flags().StringVar(&resolveNote, "note", "", "resolution note")
	_ = conflictsResubmitCmd.MarkFlagRequired("value")

	conflictsCmd.AddCommand(conflictsListCmd, conflictsAcceptCmd, conflictsResubmitCmd)
	rootCmd.AddCommand(conflictsCmd)
}
