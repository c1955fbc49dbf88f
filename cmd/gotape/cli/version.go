package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// VersionInfo carries the build metadata stamped in at link time.
type VersionInfo struct {
	Version string
	Commit  string
}

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("gotape %s (%s/%s)\n", cmd.Root().Version, runtime.GOOS, runtime.GOARCH)
		},
	}
}
