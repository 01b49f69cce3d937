package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	askTenderRef string
	askQuestion  string
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Ask a question about a tender, answered from its documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		tender, err := resolveTenderRef(ctx, env, askTenderRef)
		if err != nil {
			return eris.Wrapf(err, "resolve tender %q", askTenderRef)
		}

		answer, err := env.Pipeline.Ask(ctx, tender.ID, askQuestion)
		if err != nil {
			return eris.Wrap(err, "answer question")
		}

		zap.L().Info("question answered",
			zap.String("tender_id", tender.ID.String()),
			zap.String("language", answer.Language),
			zap.Bool("grounded", answer.Grounded),
		)
		return printJSON(answer)
	},
}

func init() {
	askCmd.Flags().StringVar(&askTenderRef, "tender", "", "tender id or reference (required)")
	askCmd.Flags().StringVar(&askQuestion, "question", "", "question text (required)")
	_ = askCmd.MarkFlagRequired("tender")
	_ = askCmd.MarkFlagRequired("question")
	rootCmd.AddCommand(askCmd)
}
