// Package main provides the CLI entry point for the conversation engine.
//
// nexus is a thin operator surface over the core reasoning and
// orchestration engine: it wires the store, branch engine, tool registry
// and dispatcher, built-in executors, artifact runner, and scheduler
// described in the engine design, and exposes them as subcommands. The
// desktop shell, window manager, and IPC surface that would normally embed
// this engine are out of scope; this binary exists so the engine can be
// driven and inspected directly.
//
// # Basic usage
//
//	nexus serve --config engine.yaml
//	nexus conversation send --id conv-1 "what's in this repo?"
//	nexus mcp list --assistant default
//
// # Environment variables
//
//   - NEXUS_CONFIG: path to the YAML configuration file (default: engine.yaml)
//   - provider credentials are not read from the environment directly; a
//     config value such as ${ANTHROPIC_API_KEY} is expanded from it when the
//     file is loaded
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during release builds.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	root := buildRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "nexus",
		Short:         "Operate the conversation and tool-orchestration engine",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", resolveConfigPath(""), "path to YAML configuration file")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cmd.SetContext(withConfigPath(cmd.Context(), configPath))
		return nil
	}

	root.AddCommand(
		buildServeCmd(),
		buildConversationCmd(),
		buildMcpCmd(),
		buildArtifactCmd(),
		buildSkillCmd(),
		buildFsCmd(),
		buildSearchCmd(),
		buildConfigCmd(),
	)
	return root
}
