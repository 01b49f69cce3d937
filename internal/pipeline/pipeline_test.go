package pipeline

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soumtech/tender-cli/internal/config"
	"github.com/soumtech/tender-cli/internal/extract"
	"github.com/soumtech/tender-cli/internal/model"
)

func testModels() config.AnthropicConfig {
	return config.AnthropicConfig{
		AnalysisModel:  "claude-haiku-4-5-20251001",
		DeepModel:      "claude-sonnet-4-5-20250929",
		QAModel:        "claude-sonnet-4-5-20250929",
		MaxTokens:      4096,
		RequestsPerMin: 6000,
	}
}

func newTestPipeline(st *memStore, llm *fakeLLM, f *fakeFetcher) *Pipeline {
	return New(st, extract.NewEngine(nil), f, llm, testModels(), config.PipelineConfig{
		MaxConcurrentTenders: 2,
		MaxCharsPerDocument:  40000,
		QAContextBudget:      100000,
		HistoryDepth:         5,
	})
}

func seedTender(t *testing.T, st *memStore) *model.Tender {
	t.Helper()
	tender := &model.Tender{
		Reference:    "AO-12/2024",
		Title:        "Fourniture de matériel informatique",
		Organization: "Ministère de la Santé",
		Status:       model.TenderOpen,
	}
	require.NoError(t, st.CreateTender(context.Background(), tender))
	return tender
}

func seedDocument(t *testing.T, st *memStore, tenderID uuid.UUID, filename string, docType model.DocumentType, url string) *model.Document {
	t.Helper()
	doc := &model.Document{
		TenderID:    tenderID,
		Filename:    filename,
		Type:        docType,
		DownloadURL: url,
		OCRStatus:   model.OCRPending,
	}
	require.NoError(t, st.CreateDocument(context.Background(), doc))
	return doc
}

func TestExtractTender(t *testing.T) {
	st := newMemStore()
	tender := seedTender(t, st)
	seedDocument(t, st, tender.ID, "avis.docx", model.DocAvis, "http://portal/avis.docx")
	seedDocument(t, st, tender.ID, "cps.docx", model.DocOther, "http://portal/cps.docx")

	f := &fakeFetcher{files: map[string][]byte{
		"http://portal/avis.docx": buildDOCX("AVIS D'APPEL D'OFFRES OUVERT", "Séance publique le 15 juillet 2024"),
		"http://portal/cps.docx":  buildDOCX("CAHIER DES PRESCRIPTIONS SPÉCIALES", "Article 1: objet du marché"),
	}}
	p := newTestPipeline(st, &fakeLLM{}, f)

	require.NoError(t, p.ExtractTender(context.Background(), tender.ID))

	state, err := p.State(context.Background(), tender.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StageAnalyzing, state.Stage)

	docs, err := st.ListDocuments(context.Background(), tender.ID)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	for _, d := range docs {
		assert.Equal(t, model.OCRCompleted, d.OCRStatus)
		assert.Equal(t, model.MethodDigital, d.Method)
		assert.True(t, d.HasText())
	}

	// The mistyped CPS is reclassified from its content.
	assert.Equal(t, model.DocCPS, docs[1].Type)
}

func TestExtractTenderPartialFailure(t *testing.T) {
	st := newMemStore()
	tender := seedTender(t, st)
	seedDocument(t, st, tender.ID, "avis.docx", model.DocAvis, "http://portal/avis.docx")
	seedDocument(t, st, tender.ID, "missing.docx", model.DocRC, "http://portal/missing.docx")

	f := &fakeFetcher{files: map[string][]byte{
		"http://portal/avis.docx": buildDOCX("AVIS D'APPEL D'OFFRES"),
	}}
	p := newTestPipeline(st, &fakeLLM{}, f)

	require.NoError(t, p.ExtractTender(context.Background(), tender.ID))

	state, err := p.State(context.Background(), tender.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StageAnalyzing, state.Stage, "one good document is enough to advance")

	docs, _ := st.ListDocuments(context.Background(), tender.ID)
	assert.Equal(t, model.OCRCompleted, docs[0].OCRStatus)
	assert.Equal(t, model.OCRFailed, docs[1].OCRStatus)
	assert.NotEmpty(t, docs[1].OCRError)
}

func TestExtractTenderAllFail(t *testing.T) {
	st := newMemStore()
	tender := seedTender(t, st)
	seedDocument(t, st, tender.ID, "missing.docx", model.DocAvis, "http://portal/missing.docx")

	p := newTestPipeline(st, &fakeLLM{}, &fakeFetcher{files: map[string][]byte{}})

	err := p.ExtractTender(context.Background(), tender.ID)
	require.Error(t, err)

	state, serr := p.State(context.Background(), tender.ID)
	require.NoError(t, serr)
	assert.Equal(t, model.StageFailed, state.Stage)
	assert.NotEmpty(t, state.LastError)
}

func TestExtractTenderSkipsCompleted(t *testing.T) {
	st := newMemStore()
	tender := seedTender(t, st)
	text := "déjà extrait, contenu suffisant pour être utilisable par l'analyse"
	doc := seedDocument(t, st, tender.ID, "avis.docx", model.DocAvis, "http://portal/avis.docx")
	doc.OCRStatus = model.OCRCompleted
	doc.ExtractedText = &text
	require.NoError(t, st.UpdateDocumentExtraction(context.Background(), doc))

	// No fixture registered: a fetch attempt would fail the document.
	p := newTestPipeline(st, &fakeLLM{}, &fakeFetcher{files: map[string][]byte{}})
	require.NoError(t, p.ExtractTender(context.Background(), tender.ID))

	docs, _ := st.ListDocuments(context.Background(), tender.ID)
	assert.Equal(t, model.OCRCompleted, docs[0].OCRStatus)
}

func TestTransitionAndReset(t *testing.T) {
	st := newMemStore()
	tender := seedTender(t, st)
	p := newTestPipeline(st, &fakeLLM{}, &fakeFetcher{})
	ctx := context.Background()

	next, err := p.Transition(ctx, tender.ID, model.EventScrapeStarted)
	require.NoError(t, err)
	assert.Equal(t, model.StageScraping, next)

	_, err = p.Transition(ctx, tender.ID, model.EventAnalysisDone)
	require.Error(t, err, "skipping stages is rejected")

	require.NoError(t, p.Fail(ctx, tender.ID, assert.AnError))
	state, _ := p.State(ctx, tender.ID)
	assert.Equal(t, model.StageFailed, state.Stage)
	assert.NotEmpty(t, state.LastError)

	require.NoError(t, p.Reset(ctx, tender.ID))
	state, _ = p.State(ctx, tender.ID)
	assert.Equal(t, model.StagePending, state.Stage)
	assert.Empty(t, state.LastError)
	assert.Equal(t, 1, state.RetryCount)
}

func TestStateUnknownTenderIsPending(t *testing.T) {
	p := newTestPipeline(newMemStore(), &fakeLLM{}, &fakeFetcher{})
	state, err := p.State(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, model.StagePending, state.Stage)
}

func TestProcessPending(t *testing.T) {
	st := newMemStore()
	f := &fakeFetcher{files: map[string][]byte{}}
	p := newTestPipeline(st, &fakeLLM{}, f)
	ctx := context.Background()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		tender := &model.Tender{Reference: uuid.NewString(), Status: model.TenderOpen}
		require.NoError(t, st.CreateTender(ctx, tender))
		url := "http://portal/" + tender.ID.String() + ".docx"
		seedDocument(t, st, tender.ID, "avis.docx", model.DocAvis, url)
		f.files[url] = buildDOCX("AVIS D'APPEL D'OFFRES OUVERT")
		require.NoError(t, st.SaveState(ctx, &model.ProcessingState{TenderID: tender.ID, Stage: model.StageOCR}))
		ids = append(ids, tender.ID)
	}

	require.NoError(t, p.ProcessPending(ctx, 10))

	for _, id := range ids {
		state, err := p.State(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.StageAnalyzing, state.Stage)
	}
}
