package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Set at build time with
// -ldflags "-X github.com/MrWong99/larder/cmd/larder/commands.Version=v1.0.0".
var (
	Version = "dev"
	Commit  = "unknown"
)

func versionString() string {
	return fmt.Sprintf("larder %s (%s) %s %s/%s", Version, Commit, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), versionString())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
