// Codeloops records an actor/critic knowledge graph for coding agents.
//
// Usage:
//
//	# Serve the read-only HTTP API
//	codeloops serve
//
//	# Record a thought and review it
//	codeloops think --context . --thought "add retry to the uploader" --tag feature
//
//	# Resume recent context for the current project
//	codeloops resume
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/codeloops/internal/config"
	"github.com/fyrsmithlabs/codeloops/internal/logging"
	"github.com/fyrsmithlabs/codeloops/internal/sanitize"
	"github.com/fyrsmithlabs/codeloops/internal/services"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd(&cli{out: os.Stdout}).Execute(); err != nil {
		os.Exit(1)
	}
}

// cli holds the state shared by all commands.
type cli struct {
	configPath string
	dataDir    string
	jsonOutput bool

	out io.Writer

	// model replaces the configured language model in tests.
	model llms.Model
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "codeloops",
		Short: "Actor/critic knowledge graph for coding agents",
		Long: `codeloops records an agent's thoughts as actor nodes, has a critic review
each one, and keeps the result in an append-only knowledge graph per project.

Configuration is read from ~/.config/codeloops/config.yaml and CODELOOPS_*
environment variables.`,
		Version:      version,
		SilenceUsage: true,
	}
	root.SetOut(c.out)

	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default ~/.config/codeloops/config.yaml)")
	root.PersistentFlags().StringVar(&c.dataDir, "data-dir", "", "override the data directory")
	root.PersistentFlags().BoolVar(&c.jsonOutput, "json", false, "print lists as JSON")

	root.AddCommand(
		newServeCmd(c),
		newProjectsCmd(c),
		newExportCmd(c),
		newResumeCmd(c),
		newShowCmd(c),
		newStatsCmd(c),
		newDeleteCmd(c),
		newRestoreCmd(c),
		newBackupsCmd(c),
		newThinkCmd(c),
		newReviewCmd(c),
		newMemoryCmd(c),
		newVersionCmd(c),
	)
	return root
}

func newVersionCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(c.out, "codeloops by Fyrsmith Labs\n")
			fmt.Fprintf(c.out, "Version:    %s\n", version)
			fmt.Fprintf(c.out, "Commit:     %s\n", gitCommit)
			fmt.Fprintf(c.out, "Build Date: %s\n", buildDate)
		},
	}
}

// loadConfig loads configuration and applies command line overrides.
func (c *cli) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithFile(c.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if c.dataDir != "" {
		cfg.DataDir = c.dataDir
	}
	return cfg, nil
}

// openRegistry opens the stores for one-shot commands. Their logs go to
// stderr at warn level or above so stdout stays machine readable.
func (c *cli) openRegistry() (services.Registry, *config.Config, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logCfg, err := logging.FromSettings(cfg.Logging, false)
	if err != nil {
		return nil, nil, err
	}
	logCfg.Output.Stdout = false
	logCfg.Output.Stderr = true
	if logCfg.Level < zapcore.WarnLevel {
		logCfg.Level = zapcore.WarnLevel
	}
	logger, err := logging.NewLogger(logCfg, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	reg, err := services.NewRegistry(services.Options{
		Config: cfg,
		Logger: logger.Underlying(),
		Model:  c.model,
	})
	if err != nil {
		return nil, nil, err
	}
	return reg, cfg, nil
}

// projectFor returns the sanitized project name from the flag value or,
// when empty, from the working directory.
func projectFor(flag string) (string, error) {
	if flag != "" {
		if err := sanitize.ValidateProject(flag); err != nil {
			return "", err
		}
		return flag, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolving working directory: %w", err)
	}
	return sanitize.ProjectName(wd), nil
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) table() *tabwriter.Writer {
	return tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
}
