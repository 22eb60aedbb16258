package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kmordal/taskloom/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the resolved configuration",
	RunE:  runConfig,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default user config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Save(config.Default()); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", config.UserConfigPath())
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if path := configFilePath(); path != "" {
		fmt.Printf("config file: %s\n\n", path)
	} else {
		fmt.Print("config file: (defaults and environment only)\n\n")
	}

	key := "(not set)"
	if cfg.Anthropic.APIKey != "" {
		key = "(set)"
	}
	fmt.Printf("anthropic.api_key: %s\n", key)
	fmt.Printf("anthropic.model: %s\n", valueOr(cfg.Anthropic.Model, "(sdk default)"))
	fmt.Printf("scheduler.max_concurrent_agents: %d\n", cfg.Scheduler.MaxConcurrentAgents)
	fmt.Printf("scheduler.step_mode: %v\n", cfg.Scheduler.StepMode)
	fmt.Printf("scheduler.poll_interval: %s\n", cfg.Scheduler.PollInterval)
	fmt.Printf("scheduler.child_wait: %s\n", cfg.Scheduler.ChildWait)
	fmt.Printf("store.path: %s\n", valueOr(cfg.Store.Path, "(in-memory)"))
	fmt.Printf("tui.refresh_rate: %s\n", cfg.TUI.RefreshRate)
	return nil
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
