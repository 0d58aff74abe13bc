package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aipp-workbench/engine/internal/artifactrunner"
)

func buildArtifactCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifact",
		Short: "Run and tear down the artifact preview dev server",
	}
	cmd.AddCommand(buildArtifactRunCmd(), buildArtifactCloseCmd())
	return cmd
}

func buildArtifactRunCmd() *cobra.Command {
	var kind, artifactID, componentFile string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Materialize a template and serve the given component",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(configPathFrom(cmd.Context()))
			if err != nil {
				return err
			}
			defer eng.Close()

			source, err := os.ReadFile(componentFile)
			if err != nil {
				return fmt.Errorf("read component file: %w", err)
			}
			url, err := eng.artifacts.RunArtifact(cmd.Context(), artifactrunner.Kind(kind), artifactID, string(source))
			if err != nil {
				return err
			}
			fmt.Println(url)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(artifactrunner.KindReact), "template kind: react|vue|react-artifacts|vue-artifacts")
	cmd.Flags().StringVar(&artifactID, "id", "", "artifact id (required)")
	cmd.Flags().StringVar(&componentFile, "component", "", "path to the component source file (required)")
	cmd.MarkFlagRequired("id")
	cmd.MarkFlagRequired("component")
	return cmd
}

func buildArtifactCloseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "close [server-id]",
		Short: "Terminate a running artifact preview's dev server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(configPathFrom(cmd.Context()))
			if err != nil {
				return err
			}
			defer eng.Close()
			return eng.artifacts.CloseArtifact(args[0])
		},
	}
	return cmd
}
