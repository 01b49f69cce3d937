package main

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/soumtech/tender-cli/internal/model"
)

var extractTenderRef string

// resolveTenderRef accepts a tender UUID or a portal reference.
func resolveTenderRef(ctx context.Context, env *pipelineEnv, ref string) (*model.Tender, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return env.Store.GetTender(ctx, id)
	}
	return env.Store.GetTenderByReference(ctx, ref)
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Download and extract text from a tender's documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		tender, err := resolveTenderRef(ctx, env, extractTenderRef)
		if err != nil {
			return eris.Wrapf(err, "resolve tender %q", extractTenderRef)
		}

		if err := env.Pipeline.ExtractTender(ctx, tender.ID); err != nil {
			return eris.Wrap(err, "extract tender")
		}

		docs, err := env.Store.ListDocuments(ctx, tender.ID)
		if err != nil {
			return err
		}
		for _, d := range docs {
			zap.L().Info("document",
				zap.String("filename", d.Filename),
				zap.String("type", string(d.Type)),
				zap.String("status", string(d.OCRStatus)),
				zap.String("method", string(d.Method)),
				zap.Int("pages", d.PageCount),
			)
		}
		return nil
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractTenderRef, "tender", "", "tender id or reference (required)")
	_ = extractCmd.MarkFlagRequired("tender")
	rootCmd.AddCommand(extractCmd)
}
