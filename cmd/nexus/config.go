package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aipp-workbench/engine/internal/config"
)

// buildConfigCmd groups configuration inspection helpers.
func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect engine configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema for the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := config.JSONSchema()
			if err != nil {
				return fmt.Errorf("generate schema: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(schema))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Load and validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPathFrom(cmd.Context())
			if _, err := config.Load(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", path)
			return nil
		},
	})

	return cmd
}

type configPathKey struct{}

// resolveConfigPath applies the same precedence the engine's config loader
// expects: an explicit flag value, then NEXUS_CONFIG, then the default
// "engine.yaml" in the working directory.
func resolveConfigPath(flagValue string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	if env := strings.TrimSpace(os.Getenv("NEXUS_CONFIG")); env != "" {
		return env
	}
	return "engine.yaml"
}

func withConfigPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, configPathKey{}, path)
}

func configPathFrom(ctx context.Context) string {
	if v, ok := ctx.Value(configPathKey{}).(string); ok {
		return v
	}
	return resolveConfigPath("")
}
