package main

import (
	"github.com/spf13/cobra"
)

func newExportCmd(c *cli) *cobra.Command {
	var (
		runID  string
		output string
		format string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the catalogue of a stored run",
		Long: `Reads a run from the configured store (the latest one unless --run is
given) and writes its catalogue. Only a sql store outlives the process that
produced the run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if output != "" {
				c.cfg.Output.Path = output
			}
			if format != "" {
				c.cfg.Output.Format = format
			}
			if err := c.cfg.Validate(); err != nil {
				return err
			}

			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.Latest(ctx)
			if runID != "" {
				run, err = store.Get(ctx, runID)
			}
			if err != nil {
				return err
			}
			return writeCatalogue(c, run.Catalogue, run.Params.WindowLength)
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "Run ID (default: latest)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path (a directory for the fim format)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "Output format: json, yaml, xlsx or fim")
	return cmd
}
