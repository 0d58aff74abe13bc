package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aipp-workbench/engine/internal/fsexec"
)

// buildFsCmd exposes the built-in fs/shell tool executors directly from
// the CLI for manual testing. A CLI invocation always pre-grants its own
// call through the conversation's gate: there is no interactive approval
// surface outside the orchestrator loop, so --yes-equivalent trust is
// implicit in running the command at all.
func buildFsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fs",
		Short: "Run a built-in filesystem or shell operation",
	}
	cmd.AddCommand(
		buildFsReadCmd(),
		buildFsWriteCmd(),
		buildFsEditCmd(),
		buildFsListCmd(),
		buildFsBashCmd(),
		buildFsBashOutputCmd(),
	)
	return cmd
}

const fsCliConversationID = "cli"

func buildFsReadCmd() *cobra.Command {
	var offset, limit int
	cmd := &cobra.Command{
		Use:   "read [path]",
		Short: "Read a file, optionally a line range",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(configPathFrom(cmd.Context()))
			if err != nil {
				return err
			}
			defer eng.Close()

			eng.gate.Grant(fsCliConversationID, fsexec.AllowRule{Kind: "read_file", Target: args[0]})
			out, err := eng.files.ReadFile(args[0], offset, limit)
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "first line to read (0-indexed)")
	cmd.Flags().IntVar(&limit, "limit", 0, "max lines to read (0 = default of 2000)")
	return cmd
}

func buildFsWriteCmd() *cobra.Command {
	var content string
	cmd := &cobra.Command{
		Use:   "write [path]",
		Short: "Overwrite a file with --content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(configPathFrom(cmd.Context()))
			if err != nil {
				return err
			}
			defer eng.Close()

			eng.gate.Grant(fsCliConversationID, fsexec.AllowRule{Kind: "write_file", Target: args[0]})
			return eng.files.WriteFile(args[0], content)
		},
	}
	cmd.Flags().StringVar(&content, "content", "", "full file content")
	return cmd
}

func buildFsEditCmd() *cobra.Command {
	var oldString, newString string
	var replaceAll bool
	cmd := &cobra.Command{
		Use:   "edit [path]",
		Short: "Replace an exact substring in a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(configPathFrom(cmd.Context()))
			if err != nil {
				return err
			}
			defer eng.Close()

			eng.gate.Grant(fsCliConversationID, fsexec.AllowRule{Kind: "edit_file", Target: args[0]})
			n, err := eng.files.EditFile(args[0], oldString, newString, replaceAll)
			if err != nil {
				return err
			}
			fmt.Printf("%d replacement(s)\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&oldString, "old", "", "exact substring to replace (required)")
	cmd.Flags().StringVar(&newString, "new", "", "replacement text")
	cmd.Flags().BoolVar(&replaceAll, "all", false, "replace every occurrence instead of requiring uniqueness")
	cmd.MarkFlagRequired("old")
	return cmd
}

func buildFsListCmd() *cobra.Command {
	var pattern string
	var recursive bool
	cmd := &cobra.Command{
		Use:   "list [path]",
		Short: "List directory entries, optionally filtered by glob",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := fsexec.ListDirectory(args[0], pattern, recursive)
			if err != nil {
				return err
			}
			for _, e := range entries {
				marker := ""
				if e.IsDir {
					marker = "/"
				}
				fmt.Printf("%s%s\n", e.Name, marker)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&pattern, "pattern", "", "glob pattern to filter entries")
	cmd.Flags().BoolVar(&recursive, "recursive", false, "descend into subdirectories")
	return cmd
}

func buildFsBashCmd() *cobra.Command {
	var background bool
	var timeoutMs int
	cmd := &cobra.Command{
		Use:   "bash [command]",
		Short: "Run a shell command in the foreground or background",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(configPathFrom(cmd.Context()))
			if err != nil {
				return err
			}
			defer eng.Close()

			eng.gate.Grant(fsCliConversationID, fsexec.AllowRule{Kind: "execute_bash", Target: args[0]})
			result, bashID, err := eng.shell.ExecuteBash(cmd.Context(), args[0], background, timeoutMs)
			if err != nil {
				return err
			}
			if background {
				fmt.Println(bashID)
				return nil
			}
			fmt.Print(result.Output)
			return nil
		},
	}
	cmd.Flags().BoolVar(&background, "background", false, "run detached and print a bash id for later polling")
	cmd.Flags().IntVar(&timeoutMs, "timeout-ms", 0, "foreground timeout in milliseconds (0 = default)")
	return cmd
}

func buildFsBashOutputCmd() *cobra.Command {
	var lastReadPos int
	var filter string
	cmd := &cobra.Command{
		Use:   "bash-output [bash-id]",
		Short: "Read incremental output from a background bash process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(configPathFrom(cmd.Context()))
			if err != nil {
				return err
			}
			defer eng.Close()

			out, err := eng.shell.GetBashOutput(args[0], lastReadPos, filter)
			if err != nil {
				return err
			}
			fmt.Print(out.Chunk)
			if out.Completed {
				fmt.Printf("\n[exit %d]\n", out.ExitCode)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&lastReadPos, "since", 0, "byte offset already read")
	cmd.Flags().StringVar(&filter, "filter", "", "regex filter applied to new output lines")
	return cmd
}
