package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// buildSkillCmd exposes the skill scanner/loader for manual inspection of
// the sources an assistant's load_skill calls can resolve against.
func buildSkillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skill",
		Short: "List and load markdown skills from configured sources",
	}
	cmd.AddCommand(buildSkillListCmd(), buildSkillLoadCmd())
	return cmd
}

func buildSkillListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Scan every configured source and print discovered skills",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(configPathFrom(cmd.Context()))
			if err != nil {
				return err
			}
			defer eng.Close()

			for _, s := range eng.skills.ScanSources() {
				fmt.Printf("%s\t%s\n", s.Identifier, s.Metadata.Description)
			}
			return nil
		},
	}
	return cmd
}

func buildSkillLoadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load [identifier]",
		Short: "Print a skill's full content by its <source>:<relative_path> identifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(configPathFrom(cmd.Context()))
			if err != nil {
				return err
			}
			defer eng.Close()

			content, err := eng.skills.LoadSkill(args[0])
			if err != nil {
				return err
			}
			fmt.Println(content)
			return nil
		},
	}
	return cmd
}
