// Package cli implements the mozart command line.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var buildVersion = "dev"

var rootCmd = &cobra.Command{
	Use:   "mozart",
	Short: "Multi-reviewer code review",
	Long: `mozart sends code to several LLM reviewers in parallel, compares their
per-criterion scores and, in full mode, asks a judge to reconcile them.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the entry point called from cmd/mozart.
func Execute(version string) {
	buildVersion = version
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.mozart/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Minimum log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text or json")
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	rootCmd.PersistentFlags().String("store-dsn", "", "Outcome store: memory, sqlite:PATH or mysql://DSN")
	_ = viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("store_dsn", rootCmd.PersistentFlags().Lookup("store-dsn"))
}

func initConfig() {
	configDir, err := configDirFunc()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot find config directory: %v\n", err)
		os.Exit(1)
	}

	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	bindEnv()
	setDefaults(configDir)

	// Config file is optional.
	_ = viper.ReadInConfig()
}

// ensureDir creates the directory holding a file-backed store.
func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
