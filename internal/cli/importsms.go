package cli

import (
	"github.com/spf13/cobra"
)

var importSmsCmd = &cobra.Command{
	Use:   "import-sms",
	Short: "Backfill observations from the router SMS inbox",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ImportSMS(cmd.Context())
	},
}
