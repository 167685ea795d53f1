// Package main provides the semflow binary entry point.
// Semflow is a multi-agent task orchestration service that executes
// macro workflows over governed context with built-in agent roles.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "semflow"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "semflow",
		Short: "Multi-agent task orchestration",
		Long: `Semflow executes macro workflows across built-in agent roles
(planner, researcher, writer, qa) with priority scheduling,
retry/fallback handling, and governed context retrieval.

Task history persists to sqlite and events can publish to NATS
and Prometheus.`,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	var (
		tasksPath  string
		ingestDirs []string
	)
	runCommand := &cobra.Command{
		Use:   "run",
		Short: "Execute a batch of tasks",
		Long: `Run loads task requests from a YAML file, retrieves context for
each from the ingested sources, and drains the queue in priority
order. The final state snapshot is printed as JSON.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, logLevel, tasksPath, ingestDirs)
		},
	}
	runCommand.Flags().StringVar(&tasksPath, "tasks", "", "Tasks file path (YAML, required)")
	runCommand.Flags().StringArrayVar(&ingestDirs, "ingest", nil, "Directory of context sources to ingest (repeatable)")
	_ = runCommand.MarkFlagRequired("tasks")
	cmd.AddCommand(runCommand)

	cmd.AddCommand(&cobra.Command{
		Use:   "macros",
		Short: "List registered macros",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listMacros(configPath, logLevel)
		},
	})

	var historyTaskID string
	historyCommand := &cobra.Command{
		Use:   "history",
		Short: "Show the journaled lifecycle of a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showHistory(configPath, logLevel, historyTaskID)
		},
	}
	historyCommand.Flags().StringVar(&historyTaskID, "task", "", "Task id (required)")
	_ = historyCommand.MarkFlagRequired("task")
	cmd.AddCommand(historyCommand)

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default user config if none exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			return initUserConfig(logLevel)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}
