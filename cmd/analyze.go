package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	analyzeTenderRef string
	analyzeForce     bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the notice analysis pass on a tender",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		tender, err := resolveTenderRef(ctx, env, analyzeTenderRef)
		if err != nil {
			return eris.Wrapf(err, "resolve tender %q", analyzeTenderRef)
		}

		meta, err := env.Pipeline.Analyze(ctx, tender.ID, analyzeForce)
		if err != nil {
			return eris.Wrap(err, "analyze tender")
		}

		zap.L().Info("analysis complete",
			zap.String("tender_id", tender.ID.String()),
			zap.String("reference", meta.Reference),
			zap.Int("lots", len(meta.Lots)),
		)
		return printJSON(meta)
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeTenderRef, "tender", "", "tender id or reference (required)")
	analyzeCmd.Flags().BoolVar(&analyzeForce, "force", false, "reanalyze even if the tender is already completed")
	_ = analyzeCmd.MarkFlagRequired("tender")
	rootCmd.AddCommand(analyzeCmd)
}
