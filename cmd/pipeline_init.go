package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/soumtech/tender-cli/internal/extract"
	"github.com/soumtech/tender-cli/internal/fetcher"
	"github.com/soumtech/tender-cli/internal/ocr"
	"github.com/soumtech/tender-cli/internal/pipeline"
	"github.com/soumtech/tender-cli/internal/store"
	anthropicpkg "github.com/soumtech/tender-cli/pkg/anthropic"
)

// pipelineEnv holds the initialized store and pipeline shared by the
// extract/analyze/ask/serve commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline opens the store, runs migrations and wires the extraction
// engine, fetcher and model client into a Pipeline. Callers should defer
// env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := store.New(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	ocrExt, err := ocr.NewExtractor(cfg.OCR)
	if err != nil {
		zap.L().Warn("ocr unavailable, scanned documents will fail extraction", zap.Error(err))
		ocrExt = nil
	}

	engine := extract.NewEngine(ocrExt)
	httpFetcher := fetcher.NewHTTPFetcher(cfg.Fetch)
	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)

	p := pipeline.New(st, engine, httpFetcher, anthropicClient, cfg.Anthropic, cfg.Pipeline)

	return &pipelineEnv{Store: st, Pipeline: p}, nil
}
