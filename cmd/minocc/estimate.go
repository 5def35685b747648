package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/minocc/internal/adapters/export"
	service "github.com/okian/minocc/internal/app"
	"github.com/okian/minocc/internal/domain/model"
	"github.com/okian/minocc/internal/domain/types"
	"github.com/okian/minocc/pkg/logger"
)

// errContextsFailed makes the process exit non-zero after a partial run.
var errContextsFailed = errors.New("some contexts failed")

func newEstimateCmd(c *cli) *cobra.Command {
	var (
		failFast  bool
		output    string
		format    string
		req       types.RunRequest
		workerCnt int
	)

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate the job catalogue of the configured contexts",
		Long: `Reads the spike counts of every session/epoch/trial-type context, derives
the occurrence threshold of each pattern size, stores the run and writes the
catalogue to --output (stdout by default).

Contexts that cannot be estimated are reported and make the command exit
non-zero; the catalogue of the other contexts is still written. With
--fail-fast the first failure aborts the run instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := c.cfg
			if cmd.Flags().Changed("fail-fast") {
				cfg.FailFast = failFast
			}
			if cmd.Flags().Changed("workers") {
				cfg.WorkerCount = workerCnt
			}
			if output != "" {
				cfg.Output.Path = output
			}
			if format != "" {
				cfg.Output.Format = format
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			params, err := cfg.EstimationParams()
			if err != nil {
				return err
			}

			src, err := c.openSource(ctx)
			if err != nil {
				return err
			}
			defer src.Close()

			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}

			log := logger.Get().Named("estimate")
			svc := service.New(params, src,
				service.WithLogger(log),
				service.WithStore(store),
				service.WithWorkerCount(cfg.WorkerCount),
				service.WithQueueSize(cfg.QueueSize),
				service.WithMaxRuns(cfg.MaxRuns),
				service.WithFailFast(cfg.FailFast),
				service.WithDefaultContexts(cfg.Sessions, cfg.Epochs, cfg.TrialTypes),
			)
			if err := svc.Start(ctx); err != nil {
				return err
			}
			defer svc.Stop()

			run, err := svc.Run(ctx, req)
			if err != nil {
				return err
			}

			if err := writeCatalogue(c, run.Catalogue, params.WindowLength); err != nil {
				return err
			}

			for _, f := range run.Failures {
				log.Error(ctx, "context failed",
					logger.String("session", f.Key.Session),
					logger.String("context", f.Key.Context()),
					logger.String("error", f.Error),
				)
			}
			if run.Failed() {
				return fmt.Errorf("%w: %d of %d contexts in run %s", errContextsFailed,
					len(run.Failures), len(run.Failures)+run.Catalogue.ContextCount(), run.ID)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "Abort the run at the first failed context")
	cmd.Flags().IntVar(&workerCnt, "workers", 0, "Override worker_count")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path (a directory for the fim format)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "Output format: json, yaml, xlsx or fim")
	cmd.Flags().StringSliceVar(&req.Sessions, "sessions", nil, "Override sessions")
	cmd.Flags().StringSliceVar(&req.Epochs, "epochs", nil, "Override epochs")
	cmd.Flags().StringSliceVar(&req.TrialTypes, "trialtypes", nil, "Override trial types")
	return cmd
}

func writeCatalogue(c *cli, cat model.Catalogue, winlen int) error {
	out := c.cfg.Output
	if out.Path == "" {
		return export.Write(c.stdout, out.Format, cat, winlen)
	}
	return export.ToFile(out.Path, out.Format, cat, winlen)
}
