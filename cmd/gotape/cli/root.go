package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func NewRootCommand(info VersionInfo) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:           "gotape",
		Short:         "GoTape Archive Manager",
		Long:          "Archives filesystem trees to sequential tape media and recovers them, backed by a durable searchable catalog with capacity and allocation analysis.",
		SilenceErrors: true,
		SilenceUsage:  true,

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(path)
		},
	}

	cmd.PersistentFlags().StringVar(&path, "config", "", "config file (default is ./config.yaml)")
	cmd.PersistentFlags().Bool("no-color", false, "Disables colored command output")
	cmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	viper.BindPFlag("log.level", cmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.no_color", cmd.PersistentFlags().Lookup("no-color"))

	cmd.Version = fmt.Sprintf("%s.%s", info.Version, info.Commit)

	return cmd
}
