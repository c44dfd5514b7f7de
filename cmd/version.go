package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/facchinm/aktualizr-lite/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build version info",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("%s (commit %s, built %s)\n", version.Version(), version.Commit(), version.BuildDate())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
