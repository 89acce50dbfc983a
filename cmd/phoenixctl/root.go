package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"solana-phoenix-scanner/internal/app"
	"solana-phoenix-scanner/internal/config"
	"solana-phoenix-scanner/internal/logger"
)

// cli carries state shared by every subcommand.
type cli struct {
	out        io.Writer
	configFile string
	envDir     string
	useMemory  bool
	jsonOutput bool
	verbose    bool

	cfg *config.ServiceConfig
	log *zap.Logger
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out}

	root := &cobra.Command{
		Use:   "phoenixctl",
		Short: "Operate the phoenix token scanner",
		Long: `phoenixctl runs discovery and token updates on demand, queries ranked
tokens and alerts, manages watchlists and maintains the databases.

Configuration is read the same way as the server: config.yaml, .env files
and PHOENIX_* environment variables.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
		PersistentPostRun: func(*cobra.Command, []string) { logger.Flush(2 * time.Second) },
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configFile, "config", "", "Path to config.yaml")
	flags.StringVar(&c.envDir, "env-dir", "", "Directory holding .env files (default config/)")
	flags.BoolVar(&c.useMemory, "memory", false, "Use in-memory storage instead of PostgreSQL")
	flags.BoolVar(&c.jsonOutput, "json", false, "Print JSON instead of tables")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "Log at debug level to stderr")

	root.AddCommand(
		c.discoverCmd(),
		c.updateCmd(),
		c.analyzeCmd(),
		c.topCmd(),
		c.alertsCmd(),
		c.watchCmd(),
		c.dispatchCmd(),
		c.migrateCmd(),
		c.pruneCmd(),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load("phoenixctl", c.configFile, c.envDir)
	if err != nil {
		return err
	}
	if c.useMemory {
		cfg.Storage.UseMemory = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	c.cfg = cfg

	if !c.verbose {
		c.log = logger.Nop()
		return nil
	}
	c.log, err = logger.Initialize(logger.Config{Debug: true, SentryDSN: cfg.SentryDSN})
	return err
}

// withApp builds the runtime for one command and closes it afterwards.
func (c *cli) withApp(ctx context.Context, fn func(*app.App) error) error {
	a, err := app.New(ctx, c.cfg, c.log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
