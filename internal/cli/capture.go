package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dmaganga/majisync/internal/models"
	"github.com/dmaganga/majisync/internal/services"
)

var (
	captureAssignment int64
	captureCycle      int64
	captureValue      string
	captureReader     string
	captureNotes      string
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Record a meter reading (works fully offline)",
	Long: `Record an absolute meter reading for an assignment in a billing cycle.
The reading is stored locally and queued for upload; no network access is
needed or attempted.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		value, err := models.ParseVolume(captureValue)
		if err != nil {
			return fmt.Errorf("invalid reading value %q: %w", captureValue, err)
		}

		reading, err := theApp.capture.Capture(cmd.Context(), services.CaptureInput{
			AssignmentID: captureAssignment,
			CycleID:      captureCycle,
			Value:        value,
			SubmittedBy:  captureReader,
			Notes:        captureNotes,
		})
		if err != nil {
			return err
		}

		color.Green("reading captured: %s m³", reading.Value)
		fmt.Printf("  local id:   %s\n", reading.LocalID)
		fmt.Printf("  assignment: %d, cycle: %d\n", reading.AssignmentID, reading.CycleID)
		fmt.Println("  queued for upload on the next sync pass")
		return nil
	},
}

func init() {
	captureCmd.Flags().Int64Var(&captureAssignment, "assignment", 0, "meter assignment id")
	captureCmd.Flags().Int64Var(&captureCycle, "cycle", 0, "billing cycle id")
	captureCmd.Flags().StringVar(&captureValue, "value", "", "absolute meter value in m³, e.g. 1234.5678")
	captureCmd.Flags().StringVar(&captureReader, "reader", "", "name or id of the person reading the meter")
	captureCmd.Flags().StringVar(&captureNotes, "notes", "", "optional field notes")
	_ = captureCmd.MarkFlagRequired("assignment")
	_ = captureCmd.MarkFlagRequired("cycle")
	_ = captureCmd.MarkFlagRequired("value")
	rootCmd.AddCommand(captureCmd)
}
