package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yamakatsunamamugi/autoai/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "autoai",
	Short: "Drive multi-step tasks against slow interactive AI services",
	Long: `Autoai runs prompt tasks against browser-based AI services that offer
no completion callback: it submits the task, watches observable progress
signals until the response is complete, and extracts the result, with
tiered retry escalation and duplicate-submission protection along the way.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/autoai/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/autoai")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("AUTOAI")
	// Replace dots with underscores for nested keys in env vars
	// e.g., AUTOAI_RETRY_MAX_ATTEMPTS for retry.max_attempts
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
