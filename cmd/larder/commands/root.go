// Package commands implements the larder CLI.
package commands

import (
	"errors"
	"io/fs"
	"log/slog"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/MrWong99/larder/internal/config"
)

const defaultConfigPath = "larder.yaml"

var (
	configPath string

	// appFs backs config and inventory files. Tests swap in a MemMapFs.
	appFs afero.Fs = afero.NewOsFs()
)

var rootCmd = &cobra.Command{
	Use:   "larder",
	Short: "Voice-controlled fridge inventory assistant",
	Long: `larder listens for a wake phrase, then for one of a small set of
spoken commands: record an item being put in or taken out, show or clear
the inventory, recommend a recipe or return to the home screen.

Run 'larder run' to start the assistant. The inventory subcommands work
on the configured store without starting any audio.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to the YAML configuration file")
}

// loadConfig reads --config. A missing default file yields the defaults; a
// missing file named explicitly is an error.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadFile(appFs, configPath)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		slog.Debug("no config file, using defaults", "path", configPath)
		return config.Default(), nil
	}
	return nil, err
}
