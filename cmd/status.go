package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	statusTenderRef string
	statusReset     bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a tender's processing state and reconciled fields",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		tender, err := resolveTenderRef(ctx, env, statusTenderRef)
		if err != nil {
			return eris.Wrapf(err, "resolve tender %q", statusTenderRef)
		}

		if statusReset {
			if err := env.Pipeline.Reset(ctx, tender.ID); err != nil {
				return eris.Wrap(err, "reset tender")
			}
		}

		state, err := env.Pipeline.State(ctx, tender.ID)
		if err != nil {
			return err
		}
		fields, err := env.Pipeline.Fields(ctx, tender.ID)
		if err != nil {
			return err
		}

		return printJSON(map[string]any{
			"tender": tender,
			"state":  state,
			"fields": fields,
		})
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusTenderRef, "tender", "", "tender id or reference (required)")
	statusCmd.Flags().BoolVar(&statusReset, "reset", false, "reset the tender to pending before showing status")
	_ = statusCmd.MarkFlagRequired("tender")
	rootCmd.AddCommand(statusCmd)
}
