// Command minocc estimates occurrence thresholds for spike-pattern mining,
// exports the resulting job catalogues and serves them over HTTP.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/okian/minocc/internal/adapters/repository"
	"github.com/okian/minocc/internal/adapters/source"
	"github.com/okian/minocc/internal/config"
	"github.com/okian/minocc/pkg/logger"
)

var version = "0.1.0-dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// cli carries the state shared by every subcommand.
type cli struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg    *config.Config
	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr}

	rootCmd := &cobra.Command{
		Use:   "minocc",
		Short: "Occurrence-threshold estimation for spike-pattern mining",
		Long: `minocc derives, for every recording context, the minimum number of
occurrences a spike pattern of each size needs before it counts as
significant, and emits the resulting job catalogue for the pattern miner.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return c.setup(cmd.Context())
		},
	}

	rootCmd.PersistentFlags().StringVar(&c.configPath, "config", "", "YAML config file (default: $MINOCC_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Override log_level")
	rootCmd.PersistentFlags().StringVar(&c.logFormat, "log-format", "", "Override log_format (text or json)")

	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.AddCommand(
		newVersionCmd(c),
		newContextsCmd(c),
		newEstimateCmd(c),
		newExportCmd(c),
		newServeCmd(c),
	)
	return rootCmd
}

// setup loads the configuration and points the logger at stderr, keeping
// stdout for exported data.
func (c *cli) setup(ctx context.Context) error {
	cfg, err := config.Load(ctx, c.configPath)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	if c.logFormat != "" {
		cfg.LogFormat = c.logFormat
	}
	if err := logger.InitWith(logger.Options{Writer: c.stderr, Format: cfg.LogFormat, Level: cfg.LogLevel}); err != nil {
		return err
	}
	c.cfg = cfg
	return nil
}

func (c *cli) openSource(ctx context.Context) (source.Source, error) {
	return source.Open(ctx, source.Spec{
		Kind:   c.cfg.Source.Kind,
		Path:   c.cfg.Source.Path,
		Driver: c.cfg.Source.Driver,
		DSN:    c.cfg.Source.DSN,
	})
}

func (c *cli) openStore(ctx context.Context) (repository.Store, error) {
	return repository.Open(ctx, repository.Spec{
		Kind:    c.cfg.Store.Kind,
		Driver:  c.cfg.Store.Driver,
		DSN:     c.cfg.Store.DSN,
		MaxRuns: c.cfg.MaxRuns,
	})
}

func newVersionCmd(c *cli) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonOut {
				return json.NewEncoder(c.stdout).Encode(map[string]string{"version": version})
			}
			_, err := fmt.Fprintf(c.stdout, "minocc version %s\n", version)
			return err
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}
