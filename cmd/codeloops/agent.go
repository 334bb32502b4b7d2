package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/codeloops/internal/agent"
	"github.com/fyrsmithlabs/codeloops/internal/graph"
	"github.com/fyrsmithlabs/codeloops/internal/orchestrator"
	"github.com/fyrsmithlabs/codeloops/internal/services"
)

// criticFlags selects a fixed verdict instead of the model-backed critic.
type criticFlags struct {
	verdict string
	reason  string
}

func (f *criticFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.verdict, "verdict", "", "record this verdict instead of asking the model: approved, needs_revision or reject")
	cmd.Flags().StringVar(&f.reason, "reason", "", "reason recorded with --verdict")
}

func (f *criticFlags) orchestrator(reg services.Registry) (*orchestrator.ActorCritic, error) {
	var critic orchestrator.Critic
	if f.verdict != "" {
		fixed, err := agent.NewFixedCritic(reg.Graph(), agent.Review{
			Verdict: graph.Verdict(f.verdict),
			Reason:  f.reason,
		})
		if err != nil {
			return nil, err
		}
		critic = fixed
	}
	return reg.NewOrchestrator(critic)
}

func newThinkCmd(c *cli) *cobra.Command {
	var (
		in       orchestrator.ThinkInput
		diffFile string
		parents  []string
		critic   criticFlags
	)
	cmd := &cobra.Command{
		Use:   "think",
		Short: "Record an actor thought and have it reviewed",
		Long: `Record an actor thought in the knowledge graph, then run the critic on it.
The critic node is printed.

Without --parent the thought is linked to the project's latest node.

Examples:
  # Review with the configured model
  codeloops think --context . --thought "add retry to the uploader" --tag feature

  # Record a fixed verdict
  codeloops think --context . --thought "rename config keys" --tag refactor \
    --verdict approved --reason "mechanical change"

  # Attach a diff
  git diff | codeloops think --context . --thought "fix nil check" --tag bugfix --diff-file -`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("parent") {
				in.Parents = append([]string{}, parents...)
			}
			if diffFile != "" {
				diff, err := readInput(cmd, diffFile)
				if err != nil {
					return err
				}
				in.Diff = diff
			}
			reg, _, err := c.openRegistry()
			if err != nil {
				return err
			}
			ac, err := critic.orchestrator(reg)
			if err != nil {
				return err
			}
			node, err := ac.ActorThink(cmd.Context(), in)
			if err != nil {
				return err
			}
			return c.printJSON(node)
		},
	}
	cmd.Flags().StringVar(&in.Thought, "thought", "", "the thought to record (required)")
	cmd.Flags().StringVar(&in.ProjectContext, "context", ".", "project directory")
	cmd.Flags().StringVar(&in.Project, "project", "", "project name (defaults to the context directory name)")
	cmd.Flags().StringSliceVar(&in.Tags, "tag", nil, "tags for the thought (at least one)")
	cmd.Flags().StringVar(&diffFile, "diff-file", "", "file holding a diff to attach, - for stdin")
	cmd.Flags().StringSliceVar(&parents, "parent", nil, "parent node IDs; pass --parent= for a root node")
	critic.register(cmd)
	_ = cmd.MarkFlagRequired("thought")
	return cmd
}

func newReviewCmd(c *cli) *cobra.Command {
	var (
		in     orchestrator.ReviewInput
		critic criticFlags
	)
	cmd := &cobra.Command{
		Use:   "review <actor-node-id>",
		Short: "Review an existing actor node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.ActorNodeID = args[0]
			reg, _, err := c.openRegistry()
			if err != nil {
				return err
			}
			if in.ProjectContext == "" || in.Project == "" {
				actor, err := reg.Graph().GetNode(cmd.Context(), in.ActorNodeID)
				if err != nil {
					return err
				}
				if actor == nil {
					return fmt.Errorf("%w: %s", graph.ErrNodeNotFound, in.ActorNodeID)
				}
				if in.ProjectContext == "" {
					in.ProjectContext = actor.ProjectContext
				}
				if in.Project == "" {
					in.Project = actor.Project
				}
			}
			ac, err := critic.orchestrator(reg)
			if err != nil {
				return err
			}
			node, err := ac.CriticReview(cmd.Context(), in)
			if err != nil {
				return err
			}
			return c.printJSON(node)
		},
	}
	cmd.Flags().StringVar(&in.ProjectContext, "context", "", "project directory recorded on the critic node (defaults to the actor's)")
	cmd.Flags().StringVar(&in.Project, "project", "", "project name (defaults to the actor's)")
	critic.register(cmd)
	return cmd
}

func readInput(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(b), nil
}
