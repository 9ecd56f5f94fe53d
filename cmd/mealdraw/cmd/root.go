package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/jmcleod/mealdraw/config"
)

// Version is set at build time with -ldflags.
var Version = "dev"

var (
	configPath string
	baseURL    string
	dataDir    string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "mealdraw",
	Short: "mealdraw records your daily meal choices",
	Long: `A session-aware client for the mealdraw backend. It signs you in,
remembers your session between runs and records meal choices, replaying a
choice made while signed out once you sign in.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("base-url") {
			c.BaseURL = baseURL
		}
		if cmd.Flags().Changed("data-dir") {
			c.DataDir = dataDir
		}
		if err := config.ValidateConfig(c); err != nil {
			return err
		}
		cfg = c
		return nil
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = Version
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "Backend base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Directory for the persisted session (overrides config)")
}
