package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/codeloops/internal/memory"
)

func newMemoryCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Manage free-form project memories",
		Long: `Manage free-form memories recorded alongside the knowledge graph.

Examples:
  # Remember something about the current project
  codeloops memory add --content "integration tests need docker" --tag testing

  # Search memories
  codeloops memory query --query docker

  # Forget a memory
  codeloops memory forget 1b9d... --reason "no longer true"`,
	}
	cmd.AddCommand(newMemoryAddCmd(c), newMemoryQueryCmd(c), newMemoryForgetCmd(c))
	return cmd
}

func newMemoryAddCmd(c *cli) *cobra.Command {
	var (
		project string
		e       memory.Entry
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a memory entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := projectFor(project)
			if err != nil {
				return err
			}
			e.Project = p
			reg, _, err := c.openRegistry()
			if err != nil {
				return err
			}
			added, err := reg.Memory().Add(cmd.Context(), e)
			if err != nil {
				return err
			}
			return c.printJSON(added)
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project name (defaults to the current directory)")
	cmd.Flags().StringVar(&e.Content, "content", "", "memory content (required)")
	cmd.Flags().StringSliceVar(&e.Tags, "tag", nil, "tags")
	cmd.Flags().StringVar(&e.SessionID, "session", "", "session identifier")
	cmd.Flags().StringVar(&e.Source, "source", "cli", "where the memory came from")
	cmd.Flags().StringVar(&e.Role, "role", "", "role of the author")
	_ = cmd.MarkFlagRequired("content")
	return cmd
}

func newMemoryQueryCmd(c *cli) *cobra.Command {
	var (
		project    string
		allProject bool
		f          memory.Filter
	)
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Search memory entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !allProject {
				p, err := projectFor(project)
				if err != nil {
					return err
				}
				f.Project = p
			}
			reg, _, err := c.openRegistry()
			if err != nil {
				return err
			}
			entries, err := reg.Memory().Query(cmd.Context(), f)
			if err != nil {
				return err
			}
			if c.jsonOutput {
				if entries == nil {
					entries = []memory.Entry{}
				}
				return c.printJSON(entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(c.out, "No memories found.")
				return nil
			}
			w := c.table()
			fmt.Fprintln(w, "ID\tPROJECT\tCREATED\tTAGS\tCONTENT")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					e.ID, e.Project, e.CreatedAt.Format(time.RFC3339), strings.Join(e.Tags, ","), oneLine(e.Content, 60))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project name (defaults to the current directory)")
	cmd.Flags().BoolVar(&allProject, "all-projects", false, "search every project")
	cmd.Flags().StringVar(&f.Query, "query", "", "case-insensitive substring of the content")
	cmd.Flags().StringSliceVar(&f.Tags, "tag", nil, "entries must carry every tag")
	cmd.Flags().StringVar(&f.SessionID, "session", "", "session identifier")
	cmd.Flags().StringVar(&f.Role, "role", "", "role of the author")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "keep only the most recent N entries")
	return cmd
}

func newMemoryForgetCmd(c *cli) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "forget <id>",
		Short: "Move a memory entry to the deleted log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, _, err := c.openRegistry()
			if err != nil {
				return err
			}
			deleted, err := reg.Memory().Forget(cmd.Context(), args[0], reason)
			if err != nil {
				return err
			}
			return c.printJSON(deleted)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the memory is forgotten")
	return cmd
}

// oneLine flattens s and truncates it to n runes.
func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-3]) + "..."
	}
	return s
}
