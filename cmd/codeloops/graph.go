package main

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/codeloops/internal/graph"
)

func newProjectsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List projects in the knowledge graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, _, err := c.openRegistry()
			if err != nil {
				return err
			}
			projects, err := reg.Graph().ListProjects(cmd.Context())
			if err != nil {
				return err
			}
			if c.jsonOutput {
				return c.printJSON(nonNilStrings(projects))
			}
			if len(projects) == 0 {
				fmt.Fprintln(c.out, "No projects found.")
				return nil
			}
			for _, p := range projects {
				fmt.Fprintln(c.out, p)
			}
			return nil
		},
	}
}

func newExportCmd(c *cli) *cobra.Command {
	var (
		project string
		role    string
		tags    []string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export live nodes of a project as JSON",
		Long: `Export live nodes of a project in insertion order.

Examples:
  # Export the current directory's project
  codeloops export

  # Only the last 10 critic nodes tagged "bugfix"
  codeloops export --project api --role critic --tag bugfix --limit 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := projectFor(project)
			if err != nil {
				return err
			}
			if role != "" && !graph.Role(role).Valid() {
				return fmt.Errorf("unknown role %q", role)
			}
			reg, _, err := c.openRegistry()
			if err != nil {
				return err
			}
			nodes, err := reg.Graph().Export(cmd.Context(), graph.ExportOptions{
				Project: p,
				Limit:   limit,
				Filter: func(n graph.Node) bool {
					if role != "" && n.Role != graph.Role(role) {
						return false
					}
					for _, t := range tags {
						if !slices.Contains(n.Tags, t) {
							return false
						}
					}
					return true
				},
			})
			if err != nil {
				return err
			}
			return c.printJSON(nonNilNodes(nodes))
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project name (defaults to the current directory)")
	cmd.Flags().StringVar(&role, "role", "", "only nodes with this role: actor, critic or summary")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "only nodes carrying every tag")
	cmd.Flags().IntVar(&limit, "limit", 0, "keep only the most recent N nodes")
	return cmd
}

func newResumeCmd(c *cli) *cobra.Command {
	var (
		project string
		limit   int
		diffs   string
	)
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Print the most recent context of a project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := projectFor(project)
			if err != nil {
				return err
			}
			reg, cfg, err := c.openRegistry()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("limit") {
				limit = cfg.Resume.Limit
			}
			if !cmd.Flags().Changed("diffs") {
				diffs = cfg.Resume.IncludeDiffs
			}
			policy, err := graph.ParseDiffPolicy(diffs)
			if err != nil {
				return err
			}
			nodes, err := reg.Graph().Resume(cmd.Context(), graph.ResumeOptions{
				Project:      p,
				Limit:        limit,
				IncludeDiffs: policy,
			})
			if err != nil {
				return err
			}
			return c.printJSON(nonNilNodes(nodes))
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project name (defaults to the current directory)")
	cmd.Flags().IntVar(&limit, "limit", graph.DefaultResumeLimit, "number of recent nodes")
	cmd.Flags().StringVar(&diffs, "diffs", string(graph.DiffLatest), "diffs to keep: none, latest or all")
	return cmd
}

func newShowCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show <node-id>",
		Short: "Print one live node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, _, err := c.openRegistry()
			if err != nil {
				return err
			}
			node, err := reg.Graph().GetNode(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if node == nil {
				return fmt.Errorf("%w: %s", graph.ErrNodeNotFound, args[0])
			}
			return c.printJSON(node)
		},
	}
}

func newStatsCmd(c *cli) *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize a project's nodes and verdicts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := projectFor(project)
			if err != nil {
				return err
			}
			reg, _, err := c.openRegistry()
			if err != nil {
				return err
			}
			stats, err := reg.Graph().Stats(cmd.Context(), p)
			if err != nil {
				return err
			}
			if c.jsonOutput {
				return c.printJSON(stats)
			}
			w := c.table()
			fmt.Fprintf(w, "Project:\t%s\n", stats.Project)
			fmt.Fprintf(w, "Nodes:\t%d\n", stats.Total)
			fmt.Fprintf(w, "Actor:\t%d\n", stats.ByRole[graph.RoleActor])
			fmt.Fprintf(w, "Critic:\t%d\n", stats.ByRole[graph.RoleCritic])
			fmt.Fprintf(w, "Summaries:\t%d\n", stats.Summaries)
			fmt.Fprintf(w, "Approved:\t%d\n", stats.ByVerdict[graph.VerdictApproved])
			fmt.Fprintf(w, "Needs revision:\t%d\n", stats.ByVerdict[graph.VerdictNeedsRevision])
			fmt.Fprintf(w, "Rejected:\t%d\n", stats.ByVerdict[graph.VerdictReject])
			fmt.Fprintf(w, "Deleted:\t%d\n", stats.Deleted)
			if !stats.LastActivity.IsZero() {
				fmt.Fprintf(w, "Last activity:\t%s\n", stats.LastActivity.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project name (defaults to the current directory)")
	return cmd
}

func newDeleteCmd(c *cli) *cobra.Command {
	var (
		project   string
		reason    string
		deletedBy string
	)
	cmd := &cobra.Command{
		Use:   "delete <node-id>...",
		Short: "Soft-delete nodes after backing up the graph",
		Long: `Move nodes from the live graph to the deleted log.

A backup of the live graph is written first. Surviving nodes lose their edges
to the deleted ones, and summaries covering a deleted node are reported.

Examples:
  codeloops delete 3f2c... --project api --reason "wrong approach"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := projectFor(project)
			if err != nil {
				return err
			}
			reg, _, err := c.openRegistry()
			if err != nil {
				return err
			}
			result, err := reg.Graph().SoftDeleteNodes(cmd.Context(), args, p, reason, deletedBy)
			if err != nil {
				return err
			}
			return c.printJSON(result)
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project name (defaults to the current directory)")
	cmd.Flags().StringVar(&reason, "reason", "", "why the nodes are deleted")
	cmd.Flags().StringVar(&deletedBy, "by", "cli", "who deleted the nodes")
	return cmd
}

func newRestoreCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <backup>",
		Short: "Replace the live graph with a backup",
		Long: `Replace the live graph with a backup, given by ID or path.

The current graph is backed up before it is replaced. Use "codeloops backups"
to list available backups.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, _, err := c.openRegistry()
			if err != nil {
				return err
			}
			result, err := reg.Graph().Restore(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.printJSON(result)
		},
	}
}

func newBackupsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "backups",
		Short: "List graph backups, newest first",
		Long: `List graph backups, newest first.

A backup is taken before every rewrite of the log, summary attachment
included. Only the newest storage.backup_keep backups are
retained (default 20); set it negative to keep every backup.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, _, err := c.openRegistry()
			if err != nil {
				return err
			}
			backups, err := reg.Backups().List(cmd.Context())
			if err != nil {
				return err
			}
			if c.jsonOutput {
				return c.printJSON(backups)
			}
			if len(backups) == 0 {
				fmt.Fprintln(c.out, "No backups found.")
				return nil
			}
			w := c.table()
			fmt.Fprintln(w, "ID\tCREATED\tSIZE")
			for _, b := range backups {
				fmt.Fprintf(w, "%s\t%s\t%d\n", b.ID, b.CreatedAt.Format(time.RFC3339), b.Size)
			}
			return w.Flush()
		},
	}
}

func nonNilNodes(nodes []graph.Node) []graph.Node {
	if nodes == nil {
		return []graph.Node{}
	}
	return nodes
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
