package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soumtech/tender-cli/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seedTender(t *testing.T, s *SQLiteStore) *model.Tender {
	t.Helper()
	tender := &model.Tender{
		Reference:    "12/2024/DAL-" + uuid.NewString()[:8],
		Title:        "Acquisition de matériel informatique",
		Organization: "Ministère de la Santé",
		Category:     "fournitures",
		SourceURL:    "https://marchespublics.example/ao/12-2024",
	}
	require.NoError(t, s.CreateTender(context.Background(), tender))
	return tender
}

func TestSQLiteTenderLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tender := seedTender(t, s)
	assert.NotEqual(t, uuid.Nil, tender.ID)
	assert.Equal(t, model.TenderOpen, tender.Status)

	got, err := s.GetTender(ctx, tender.ID)
	require.NoError(t, err)
	assert.Equal(t, tender.Reference, got.Reference)
	assert.Nil(t, got.Deadline)
	assert.Nil(t, got.BudgetEstimate)

	byRef, err := s.GetTenderByReference(ctx, tender.Reference)
	require.NoError(t, err)
	assert.Equal(t, tender.ID, byRef.ID)

	deadline := time.Date(2024, 7, 15, 10, 0, 0, 0, time.UTC)
	budget := 1_500_000.0
	got.Deadline = &deadline
	got.BudgetEstimate = &budget
	got.Status = model.TenderClosed
	require.NoError(t, s.UpdateTender(ctx, got))

	updated, err := s.GetTender(ctx, tender.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.Deadline)
	assert.True(t, updated.Deadline.Equal(deadline))
	require.NotNil(t, updated.BudgetEstimate)
	assert.InDelta(t, budget, *updated.BudgetEstimate, 0.001)
	assert.Equal(t, model.TenderClosed, updated.Status)
}

func TestSQLiteTenderNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetTender(context.Background(), uuid.New())
	assert.ErrorIs(t, err, model.ErrNotFound)

	err = s.UpdateTender(context.Background(), &model.Tender{ID: uuid.New(), Reference: "x", Title: "y"})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSQLiteListTenders(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	t1 := seedTender(t, s)
	t2 := seedTender(t, s)
	t2ref, err := s.GetTender(ctx, t2.ID)
	require.NoError(t, err)
	t2ref.Status = model.TenderClosed
	require.NoError(t, s.UpdateTender(ctx, t2ref))

	all, err := s.ListTenders(ctx, TenderFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	open, err := s.ListTenders(ctx, TenderFilter{Status: model.TenderOpen})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, t1.ID, open[0].ID)
}

func TestSQLiteDocumentExtractionWrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tender := seedTender(t, s)

	doc := &model.Document{
		TenderID: tender.ID,
		Filename: "avis.pdf",
		Type:     model.DocAvis,
		FileSize: 12345,
	}
	require.NoError(t, s.CreateDocument(ctx, doc))
	assert.Equal(t, model.OCRPending, doc.OCRStatus)

	pending, err := s.ListPendingDocuments(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	text := "AVIS D'APPEL D'OFFRES OUVERT"
	doc.OCRStatus = model.OCRCompleted
	doc.Method = model.MethodDigital
	doc.PageCount = 2
	doc.ExtractedText = &text
	require.NoError(t, s.UpdateDocumentExtraction(ctx, doc))

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, got.HasText())
	assert.Equal(t, text, got.Text())
	assert.Equal(t, model.MethodDigital, got.Method)
	assert.Equal(t, 2, got.PageCount)

	pending, err = s.ListPendingDocuments(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	docs, err := s.ListDocuments(ctx, tender.ID)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestSQLiteStateUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tender := seedTender(t, s)

	_, err := s.GetState(ctx, tender.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	st := &model.ProcessingState{TenderID: tender.ID, Stage: model.StagePending}
	require.NoError(t, s.SaveState(ctx, st))

	st.Stage = model.StageOCR
	st.RetryCount = 1
	require.NoError(t, s.SaveState(ctx, st))

	got, err := s.GetState(ctx, tender.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StageOCR, got.Stage)
	assert.Equal(t, 1, got.RetryCount)

	ids, err := s.ListTendersInStage(ctx, model.StageOCR, 10)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{tender.ID}, ids)
}

func TestSQLiteFieldRecordsAppendOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tender := seedTender(t, s)
	docID := uuid.New()

	first := []model.FieldRecord{
		{TenderID: tender.ID, Name: "deadline", Value: "2024-07-15", Type: "date", Source: model.SourceScraped, Confidence: 0.95},
		{TenderID: tender.ID, Name: "budget_estimate", Value: "1500000", Type: "number", Source: model.SourceAI, DocumentID: &docID, DocumentType: model.DocCPS, Confidence: 0.9},
	}
	require.NoError(t, s.AppendFieldRecords(ctx, first))
	assert.NotZero(t, first[0].ID)

	// Reanalysis appends, never rewrites.
	second := []model.FieldRecord{
		{TenderID: tender.ID, Name: "deadline", Value: "2024-07-20", Type: "date", Source: model.SourceAI, DocumentID: &docID, DocumentType: model.DocAnnexe, Confidence: 0.85},
	}
	require.NoError(t, s.AppendFieldRecords(ctx, second))

	records, err := s.ListFieldRecords(ctx, tender.ID)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "2024-07-15", records[0].Value)
	assert.Equal(t, "2024-07-20", records[2].Value)
	assert.Equal(t, model.DocAnnexe, records[2].DocumentType)
	require.NotNil(t, records[1].DocumentID)
	assert.Equal(t, docID, *records[1].DocumentID)
}

func TestSQLiteSnapshotVersioning(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tender := seedTender(t, s)

	_, err := s.LatestSnapshot(ctx, tender.ID, model.AnalysisShallow)
	assert.ErrorIs(t, err, model.ErrNotFound)

	first := &model.AnalysisSnapshot{
		TenderID: tender.ID, Kind: model.AnalysisShallow,
		Model: "claude-haiku-4-5-20251001", Payload: []byte(`{"reference":"12/2024"}`),
	}
	require.NoError(t, s.SaveSnapshot(ctx, first))
	assert.Equal(t, 1, first.Version)

	second := &model.AnalysisSnapshot{
		TenderID: tender.ID, Kind: model.AnalysisShallow,
		Payload: []byte(`{"reference":"12/2024","title":"maj"}`),
	}
	require.NoError(t, s.SaveSnapshot(ctx, second))
	assert.Equal(t, 2, second.Version)

	deep := &model.AnalysisSnapshot{
		TenderID: tender.ID, Kind: model.AnalysisDeep, Payload: []byte(`{}`),
	}
	require.NoError(t, s.SaveSnapshot(ctx, deep))
	assert.Equal(t, 1, deep.Version, "deep versions are independent of shallow")

	latest, err := s.LatestSnapshot(ctx, tender.ID, model.AnalysisShallow)
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)
	assert.JSONEq(t, `{"reference":"12/2024","title":"maj"}`, string(latest.Payload))
}

func TestSQLiteConversationHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tender := seedTender(t, s)

	for i, q := range []string{"Quel est le délai?", "Quelle caution?", "Combien de lots?"} {
		ex := &model.Exchange{
			TenderID: tender.ID,
			Question: q,
			Answer:   model.Answer{Text: "réponse", Language: model.LangFrench, Confidence: 0.8, Grounded: true},
		}
		require.NoError(t, s.SaveExchange(ctx, ex))
		assert.EqualValues(t, i+1, ex.ID)
	}

	recent, err := s.RecentExchanges(ctx, tender.ID, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	// Two most recent, oldest first.
	assert.Equal(t, "Quelle caution?", recent[0].Question)
	assert.Equal(t, "Combien de lots?", recent[1].Question)
	assert.Equal(t, model.LangFrench, recent[0].Answer.Language)
}
