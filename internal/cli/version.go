package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is stamped at build time via -ldflags "-X ...cli.version=".
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the client version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Println("majisync", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
