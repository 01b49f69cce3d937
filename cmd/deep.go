package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	deepTenderRef string
	deepForce     bool
)

var deepCmd = &cobra.Command{
	Use:   "deep-analyze",
	Short: "Run the deep multi-document analysis pass on a tender",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		tender, err := resolveTenderRef(ctx, env, deepTenderRef)
		if err != nil {
			return eris.Wrapf(err, "resolve tender %q", deepTenderRef)
		}

		deep, err := env.Pipeline.DeepAnalyze(ctx, tender.ID, deepForce)
		if err != nil {
			return eris.Wrap(err, "deep analysis")
		}

		zap.L().Info("deep analysis ready",
			zap.String("tender_id", tender.ID.String()),
			zap.Int("lots", len(deep.Lots)),
			zap.Bool("forced", deepForce),
		)
		return printJSON(deep)
	},
}

func init() {
	deepCmd.Flags().StringVar(&deepTenderRef, "tender", "", "tender id or reference (required)")
	deepCmd.Flags().BoolVar(&deepForce, "force", false, "reanalyze even when a deep analysis exists")
	_ = deepCmd.MarkFlagRequired("tender")
	rootCmd.AddCommand(deepCmd)
}
