package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func buildMcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Inspect the MCP server/tool catalog",
	}
	cmd.AddCommand(buildMcpListCmd(), buildMcpResolveCmd())
	return cmd
}

func buildMcpListCmd() *cobra.Command {
	var assistantID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List enabled servers and tools available to an assistant",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(configPathFrom(cmd.Context()))
			if err != nil {
				return err
			}
			defer eng.Close()

			servers, err := eng.registry.ListServersForAssistant(cmd.Context(), assistantID)
			if err != nil {
				return err
			}
			for _, sw := range servers {
				fmt.Printf("%s (%s)\n", sw.Server.Name, sw.Server.Transport)
				for _, t := range sw.Tools {
					auto := ""
					if t.IsAutoRun {
						auto = " [auto-run]"
					}
					fmt.Printf("  - %s%s\n", t.ToolName, auto)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&assistantID, "assistant", "default", "assistant id to enumerate tools for")
	return cmd
}

func buildMcpResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve [server] [tool]",
		Short: "Resolve a (server, tool) name pair to a dispatch handle",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(configPathFrom(cmd.Context()))
			if err != nil {
				return err
			}
			defer eng.Close()

			handle, err := eng.registry.Resolve(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("kind=%s namespace=%s server=%s tool=%s\n", handle.Kind, handle.Namespace, handle.Server.Name, handle.Tool.ToolName)
			return nil
		},
	}
	return cmd
}
