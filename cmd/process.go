package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var processLimit int

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Extract and analyze all tenders waiting in the pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Pipeline.ProcessPending(ctx, processLimit); err != nil {
			return eris.Wrap(err, "process pending")
		}
		if err := env.Pipeline.AnalyzePending(ctx, processLimit); err != nil {
			return eris.Wrap(err, "analyze pending")
		}

		zap.L().Info("batch processing complete")
		return nil
	},
}

func init() {
	processCmd.Flags().IntVar(&processLimit, "limit", 20, "maximum tenders per stage")
	rootCmd.AddCommand(processCmd)
}
