package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/minocc/internal/adapters/source"
)

type contextView struct {
	Session   string `json:"session"`
	Epoch     string `json:"epoch"`
	TrialType string `json:"trialtype"`
}

func newContextsCmd(c *cli) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "contexts",
		Short: "List the contexts the configured source holds counts for",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			src, err := c.openSource(ctx)
			if err != nil {
				return err
			}
			defer src.Close()

			keys, err := source.Discover(ctx, src)
			if err != nil {
				return err
			}

			if jsonOut {
				views := make([]contextView, len(keys))
				for i, k := range keys {
					views[i] = contextView{Session: k.Session, Epoch: k.Epoch, TrialType: k.TrialType}
				}
				enc := json.NewEncoder(c.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(views)
			}
			for _, k := range keys {
				if _, err := fmt.Fprintln(c.stdout, k.String()); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}
