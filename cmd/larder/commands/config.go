package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/larder/internal/app"
	"github.com/MrWong99/larder/internal/config"
	"github.com/MrWong99/larder/internal/observe"
)

var checkProviders bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration file",
	Long: `Load and validate --config, reporting every problem at once. With
--providers the configured providers are also constructed, which catches
missing API keys and unreadable model files.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if checkProviders {
			reg := config.NewRegistry()
			registerBuiltinProviders(reg)
			_, closeProviders, err := app.BuildProviders(cfg, reg, observe.DefaultMetrics())
			if err != nil {
				return err
			}
			if err := closeProviders(); err != nil {
				return err
			}
		}
		if _, err := app.CommandPhrases(cfg.Recognizer.Commands); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), startupSummary(cfg))
		fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", configPath)
		return nil
	},
}

var configDefaultCmd = &cobra.Command{
	Use:   "default",
	Short: "Print the built-in defaults as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(config.Default()); err != nil {
			return err
		}
		return enc.Close()
	},
}

func init() {
	configCheckCmd.Flags().BoolVar(&checkProviders, "providers", false, "also construct the configured providers")
	configCmd.AddCommand(configCheckCmd, configDefaultCmd)
	rootCmd.AddCommand(configCmd)
}
