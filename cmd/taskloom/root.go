package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/kmordal/taskloom/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "taskloom",
	Short: "Recursive task orchestration engine",
	Long: `Taskloom turns a single instruction into a tree of tasks worked by
agents. Every task is prepared by a process that discovers a systematic
framework, selects an agent, and attaches context and tools before
dispatch. Agents can break tasks down into subtasks or submit results for
evaluation; the scheduler drives the whole tree concurrently.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: .taskloom.yaml in a parent directory, then ~/.config/taskloom/config.yaml)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig resolves configuration honoring the --config flag.
func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.LoadFromPath(cfgFile)
	}
	return config.Load()
}

// configFilePath returns the config file in effect, or "" if only defaults
// and environment apply.
func configFilePath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if p := config.ProjectConfigPath(); p != "" {
		return p
	}
	if _, err := os.Stat(config.UserConfigPath()); err == nil {
		return config.UserConfigPath()
	}
	return ""
}
