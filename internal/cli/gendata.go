package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

const defaultPlanTotalMB = 102_400

var genTestDataCmd = &cobra.Command{
	Use:   "gen-test-data [plan_total_mb]",
	Short: "Synthesise ~90 days of plausible observations",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		planTotalMB := defaultPlanTotalMB
		if len(args) == 1 {
			parsed, err := strconv.Atoi(args[0])
			if err != nil || parsed <= 0 {
				return fmt.Errorf("invalid plan_total_mb value %q", args[0])
			}
			planTotalMB = parsed
		}
		return getApp().GenTestData(cmd.Context(), planTotalMB)
	},
}
