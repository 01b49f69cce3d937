package pipeline

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soumtech/tender-cli/internal/model"
)

func rec(name, value string, source model.FieldSource, docType model.DocumentType, conf float64, age time.Duration, id int64) model.FieldRecord {
	return model.FieldRecord{
		ID:           id,
		TenderID:     uuid.Nil,
		Name:         name,
		Value:        value,
		Source:       source,
		DocumentType: docType,
		Confidence:   conf,
		ExtractedAt:  time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC).Add(-age),
	}
}

func TestReconcileDeadlineScrapedWins(t *testing.T) {
	records := []model.FieldRecord{
		rec("deadline", "2024-07-20", model.SourceAI, model.DocAnnexe, 0.99, 0, 1),
		rec("deadline", "2024-07-15", model.SourceScraped, "", 0.7, time.Hour, 2),
		rec("deadline", "2024-07-18", model.SourceOCR, model.DocRC, 0.95, 0, 3),
	}

	got := ReconcileField("deadline", records)
	require.True(t, got.Specified)
	assert.Equal(t, "2024-07-15", got.Value, "portal deadline beats document deadlines regardless of confidence")
	assert.Equal(t, model.SourceScraped, got.Source)
}

func TestReconcileAnnexOverride(t *testing.T) {
	records := []model.FieldRecord{
		rec("budget_estimate", "1500000", model.SourceAI, model.DocCPS, 0.95, 0, 1),
		rec("budget_estimate", "1650000", model.SourceAI, model.DocAnnexe, 0.80, time.Hour, 2),
	}

	got := ReconcileField("budget_estimate", records)
	require.True(t, got.Specified)
	assert.Equal(t, "1650000", got.Value, "annex correction overrides the main document")
}

func TestReconcileConfidenceThenRecency(t *testing.T) {
	records := []model.FieldRecord{
		rec("organization", "Ministere A", model.SourceAI, model.DocAvis, 0.85, 2*time.Hour, 1),
		rec("organization", "Ministere B", model.SourceAI, model.DocAvis, 0.90, 3*time.Hour, 2),
	}
	got := ReconcileField("organization", records)
	assert.Equal(t, "Ministere B", got.Value)

	// Equal confidence: the newer record wins.
	records = []model.FieldRecord{
		rec("organization", "ancien", model.SourceAI, model.DocAvis, 0.85, 2*time.Hour, 1),
		rec("organization", "recent", model.SourceAI, model.DocAvis, 0.85, time.Hour, 2),
	}
	got = ReconcileField("organization", records)
	assert.Equal(t, "recent", got.Value)
}

func TestReconcileUnspecifiedWhenEmpty(t *testing.T) {
	got := ReconcileField("caution_amount", nil)
	assert.False(t, got.Specified)
	assert.Empty(t, got.Value)

	// Records for other fields never leak in.
	got = ReconcileField("caution_amount", []model.FieldRecord{
		rec("deadline", "2024-07-15", model.SourceScraped, "", 0.95, 0, 1),
	})
	assert.False(t, got.Specified)
}

func TestReconcileDeterministicUnderShuffle(t *testing.T) {
	records := []model.FieldRecord{
		rec("deadline", "2024-07-15", model.SourceScraped, "", 0.7, time.Hour, 1),
		rec("deadline", "2024-07-20", model.SourceAI, model.DocAnnexe, 0.99, 0, 2),
		rec("budget_estimate", "1500000", model.SourceAI, model.DocCPS, 0.95, 0, 3),
		rec("budget_estimate", "1650000", model.SourceAI, model.DocAnnexe, 0.80, 0, 4),
		rec("organization", "Ministere A", model.SourceAI, model.DocAvis, 0.85, 0, 5),
		rec("organization", "Ministere B", model.SourceOCR, model.DocAvis, 0.85, 0, 6),
	}

	want := Reconcile(records)
	for i := 0; i < 20; i++ {
		shuffled := make([]model.FieldRecord, len(records))
		copy(shuffled, records)
		rand.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, Reconcile(shuffled))
	}
}

func TestReconcileEqualEverythingFallsBackToID(t *testing.T) {
	records := []model.FieldRecord{
		rec("category", "travaux", model.SourceAI, model.DocAvis, 0.85, time.Hour, 1),
		rec("category", "fournitures", model.SourceAI, model.DocAvis, 0.85, time.Hour, 2),
	}
	got := ReconcileField("category", records)
	assert.Equal(t, "fournitures", got.Value, "later append wins when confidence and time tie")
}
