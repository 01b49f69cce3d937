// Package pipeline orchestrates tender processing: document extraction,
// the shallow and deep analysis passes, field reconciliation and grounded
// question answering. All model calls flow through one rate limiter and
// per-tender work serializes on a lock table.
package pipeline

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/soumtech/tender-cli/internal/config"
	"github.com/soumtech/tender-cli/internal/extract"
	"github.com/soumtech/tender-cli/internal/fetcher"
	"github.com/soumtech/tender-cli/internal/model"
	"github.com/soumtech/tender-cli/internal/store"
	"github.com/soumtech/tender-cli/pkg/anthropic"
)

// Pipeline wires the store, the extraction engine, the document fetcher and
// the model client into the processing stages.
type Pipeline struct {
	store   store.Store
	engine  *extract.Engine
	fetcher fetcher.Fetcher
	llm     anthropic.Client

	models    config.AnthropicConfig
	cfg       config.PipelineConfig
	limiter   *rate.Limiter
	locks     *lockTable
	deepCalls singleflight.Group
}

// New creates a Pipeline. The rate limiter spans every model call the
// pipeline makes, shallow, deep and QA alike.
func New(st store.Store, engine *extract.Engine, f fetcher.Fetcher, llm anthropic.Client, models config.AnthropicConfig, cfg config.PipelineConfig) *Pipeline {
	rpm := models.RequestsPerMin
	if rpm <= 0 {
		rpm = 50
	}
	return &Pipeline{
		store:   st,
		engine:  engine,
		fetcher: f,
		llm:     llm,
		models:  models,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(rpm/60), int(rpm/10)+1),
		locks:   newLockTable(),
	}
}

// Transition applies one state machine event to a tender under its lock and
// persists the resulting stage. Tenders without a state row start at pending.
func (p *Pipeline) Transition(ctx context.Context, tenderID uuid.UUID, event model.StageEvent) (model.Stage, error) {
	mu := p.locks.lock(tenderID)
	defer mu.Unlock()
	return p.transitionLocked(ctx, tenderID, event, "")
}

// Fail moves a tender to the failed stage, recording the cause. Failing an
// already-terminal tender is rejected by the state machine.
func (p *Pipeline) Fail(ctx context.Context, tenderID uuid.UUID, cause error) error {
	mu := p.locks.lock(tenderID)
	defer mu.Unlock()
	_, err := p.transitionLocked(ctx, tenderID, model.EventFailed, eris.ToString(cause, false))
	return err
}

// Reset moves a tender back to pending, the one backward edge. The retry
// counter advances so repeated resets stay visible.
func (p *Pipeline) Reset(ctx context.Context, tenderID uuid.UUID) error {
	mu := p.locks.lock(tenderID)
	defer mu.Unlock()

	st, err := p.loadState(ctx, tenderID)
	if err != nil {
		return err
	}
	next, err := model.Next(st.Stage, model.EventReset)
	if err != nil {
		return err
	}
	st.Stage = next
	st.LastError = ""
	st.RetryCount++
	if err := p.store.SaveState(ctx, st); err != nil {
		return err
	}
	zap.L().Info("tender reset",
		zap.String("tender_id", tenderID.String()),
		zap.Int("retry_count", st.RetryCount),
	)
	return nil
}

// State returns the current processing state, synthesizing pending for
// tenders that have never entered the pipeline.
func (p *Pipeline) State(ctx context.Context, tenderID uuid.UUID) (*model.ProcessingState, error) {
	return p.loadState(ctx, tenderID)
}

func (p *Pipeline) loadState(ctx context.Context, tenderID uuid.UUID) (*model.ProcessingState, error) {
	st, err := p.store.GetState(ctx, tenderID)
	if eris.Is(err, model.ErrNotFound) {
		return &model.ProcessingState{TenderID: tenderID, Stage: model.StagePending}, nil
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (p *Pipeline) transitionLocked(ctx context.Context, tenderID uuid.UUID, event model.StageEvent, lastError string) (model.Stage, error) {
	st, err := p.loadState(ctx, tenderID)
	if err != nil {
		return "", err
	}
	next, err := model.Next(st.Stage, event)
	if err != nil {
		return st.Stage, err
	}

	prev := st.Stage
	st.Stage = next
	st.LastError = lastError
	if err := p.store.SaveState(ctx, st); err != nil {
		return prev, err
	}
	zap.L().Debug("stage transition",
		zap.String("tender_id", tenderID.String()),
		zap.String("from", string(prev)),
		zap.String("event", string(event)),
		zap.String("to", string(next)),
	)
	return next, nil
}

// ExtractTender downloads and extracts every document of one tender that has
// not completed extraction yet. Each document commits atomically: either the
// full text, page count and completed status land together, or the document
// is marked failed and the others proceed. The tender enters the ocr stage
// up front and advances to analyzing once every document has been attempted
// and at least one produced text.
func (p *Pipeline) ExtractTender(ctx context.Context, tenderID uuid.UUID) error {
	mu := p.locks.lock(tenderID)
	defer mu.Unlock()

	if _, err := p.transitionLocked(ctx, tenderID, model.EventDocsDownloaded, ""); err != nil {
		return eris.Wrap(err, "pipeline: enter extraction")
	}

	docs, err := p.store.ListDocuments(ctx, tenderID)
	if err != nil {
		return eris.Wrap(err, "pipeline: list documents")
	}
	if len(docs) == 0 {
		return eris.Errorf("pipeline: tender %s has no documents", tenderID)
	}

	var extracted, failed int
	for i := range docs {
		doc := &docs[i]
		if doc.OCRStatus == model.OCRCompleted {
			extracted++
			continue
		}
		if err := p.extractDocument(ctx, doc); err != nil {
			failed++
			zap.L().Warn("document extraction failed",
				zap.String("tender_id", tenderID.String()),
				zap.String("document_id", doc.ID.String()),
				zap.String("filename", doc.Filename),
				zap.Error(err),
			)
			continue
		}
		extracted++
	}

	if extracted == 0 {
		cause := eris.Errorf("pipeline: all %d documents failed extraction", failed)
		if _, err := p.transitionLocked(ctx, tenderID, model.EventFailed, eris.ToString(cause, false)); err != nil {
			return err
		}
		return cause
	}

	if _, err := p.transitionLocked(ctx, tenderID, model.EventDocsExtracted, ""); err != nil {
		return eris.Wrap(err, "pipeline: leave extraction")
	}
	zap.L().Info("tender extracted",
		zap.String("tender_id", tenderID.String()),
		zap.Int("documents", extracted),
		zap.Int("failed", failed),
	)
	return nil
}

// extractDocument runs one document through fetch and extract, then writes
// the outcome in a single store call. Nothing is persisted mid-flight.
func (p *Pipeline) extractDocument(ctx context.Context, doc *model.Document) error {
	doc.OCRStatus = model.OCRProcessing
	doc.OCRError = ""
	if err := p.store.UpdateDocumentExtraction(ctx, doc); err != nil {
		return err
	}

	data, err := p.fetcher.Fetch(ctx, doc.DownloadURL)
	if err != nil {
		return p.markFailed(ctx, doc, eris.Wrap(err, "pipeline: fetch document"))
	}

	res, err := p.engine.Extract(ctx, doc.Filename, data)
	if err != nil {
		return p.markFailed(ctx, doc, err)
	}

	doc.Type = ClassifyDocument(doc.Type, res.Text)
	doc.OCRStatus = model.OCRCompleted
	doc.Method = res.Method
	doc.PageCount = res.PageCount
	doc.FileSize = int64(len(data))
	doc.ExtractedText = &res.Text
	return p.store.UpdateDocumentExtraction(ctx, doc)
}

func (p *Pipeline) markFailed(ctx context.Context, doc *model.Document, cause error) error {
	doc.OCRStatus = model.OCRFailed
	doc.OCRError = eris.ToString(cause, false)
	doc.ExtractedText = nil
	if err := p.store.UpdateDocumentExtraction(ctx, doc); err != nil {
		return err
	}
	return cause
}

// ProcessPending extracts every tender currently waiting in the ocr or
// pending stage, up to limit tenders, with bounded parallelism. One tender
// failing never stops the batch.
func (p *Pipeline) ProcessPending(ctx context.Context, limit int) error {
	var ids []uuid.UUID
	for _, stage := range []model.Stage{model.StageOCR, model.StageDownloading, model.StagePending} {
		batch, err := p.store.ListTendersInStage(ctx, stage, limit-len(ids))
		if err != nil {
			return eris.Wrap(err, "pipeline: list pending tenders")
		}
		ids = append(ids, batch...)
		if len(ids) >= limit {
			break
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxConcurrent())
	for _, id := range ids {
		g.Go(func() error {
			if err := p.ExtractTender(gctx, id); err != nil {
				zap.L().Error("tender extraction failed",
					zap.String("tender_id", id.String()),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	return g.Wait()
}

// AnalyzePending runs the shallow pass over every tender in the analyzing
// stage, up to limit tenders.
func (p *Pipeline) AnalyzePending(ctx context.Context, limit int) error {
	ids, err := p.store.ListTendersInStage(ctx, model.StageAnalyzing, limit)
	if err != nil {
		return eris.Wrap(err, "pipeline: list analyzing tenders")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxConcurrent())
	for _, id := range ids {
		g.Go(func() error {
			if _, err := p.Analyze(gctx, id, false); err != nil {
				zap.L().Error("tender analysis failed",
					zap.String("tender_id", id.String()),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	return g.Wait()
}

func (p *Pipeline) maxConcurrent() int {
	if p.cfg.MaxConcurrentTenders > 0 {
		return p.cfg.MaxConcurrentTenders
	}
	return 5
}

func (p *Pipeline) maxDocChars() int {
	if p.cfg.MaxCharsPerDocument > 0 {
		return p.cfg.MaxCharsPerDocument
	}
	return 40000
}

// callModel is the single funnel for model requests: it waits on the shared
// rate limiter, issues the request and logs cost attribution.
func (p *Pipeline) callModel(ctx context.Context, phase string, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "pipeline: rate limit wait")
	}
	resp, err := p.llm.CreateMessage(ctx, req)
	if err != nil {
		return nil, err
	}
	resp.Usage.LogCost(req.Model, phase)
	return resp, nil
}
