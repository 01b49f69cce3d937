package pipeline

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/soumtech/tender-cli/internal/model"
	"github.com/soumtech/tender-cli/internal/schema"
	"github.com/soumtech/tender-cli/pkg/anthropic"
)

// Confidence assigned to shallow-pass field records. Scalar fields read more
// reliably than free text; the portal listing beats both for the deadline.
const (
	confAvisBase      = 0.85
	confAvisScalar    = 0.90
	confPortalScraped = 0.95
)

const avisSystemPrompt = `Tu es un analyste des marchés publics marocains. On te donne le texte d'un document d'appel d'offres (avis, règlement de consultation, CPS ou annexe). Extrais les champs demandés et réponds UNIQUEMENT avec un objet JSON valide, sans texte autour. Omets tout champ absent du document; n'invente jamais de valeur. Les montants sont en dirhams, sans séparateurs. Les dates sont au format YYYY-MM-DD.`

// Analyze runs the shallow pass on a tender: one model call per document
// with extracted text, field records appended with per-document provenance,
// reconciled values synced to the tender row, and an immutable snapshot
// saved. Annex-sourced records enter the trail here, which is what lets
// reconciliation prefer them over the main documents. The tender advances
// to completed; a tender already completed returns its stored analysis
// unless force is set.
func (p *Pipeline) Analyze(ctx context.Context, tenderID uuid.UUID, force bool) (*model.AvisMetadata, error) {
	mu := p.locks.lock(tenderID)
	defer mu.Unlock()

	if !force {
		state, err := p.loadState(ctx, tenderID)
		if err != nil {
			return nil, err
		}
		if state.Stage == model.StageCompleted {
			meta, err := p.LatestAnalysis(ctx, tenderID)
			if err == nil {
				return meta, nil
			}
			if !eris.Is(err, model.ErrNotFound) {
				return nil, err
			}
		}
	}

	tender, err := p.store.GetTender(ctx, tenderID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load tender")
	}

	docs, err := p.analyzableDocuments(ctx, tenderID)
	if err != nil {
		return nil, err
	}

	sc, err := schema.Avis()
	if err != nil {
		return nil, err
	}

	var (
		primary             *model.AvisMetadata
		payload             []byte
		records             []model.FieldRecord
		modelName           string
		tokensIn, tokensOut int64
		failed              int
	)
	for i := range docs {
		doc := &docs[i]
		meta, pl, resp, err := p.analyzeDocument(ctx, sc, doc)
		if err != nil {
			failed++
			zap.L().Warn("document analysis failed",
				zap.String("tender_id", tenderID.String()),
				zap.String("filename", doc.Filename),
				zap.Error(err),
			)
			continue
		}
		records = append(records, avisFieldRecords(tender, doc, meta)...)
		if primary == nil {
			// The notice leads the document order, so the first success is
			// the one the snapshot and the return value describe.
			primary = meta
			payload = pl
		}
		modelName = resp.Model
		tokensIn += resp.Usage.InputTokens
		tokensOut += resp.Usage.OutputTokens
	}
	if primary == nil {
		return nil, eris.Errorf("pipeline: all %d documents failed analysis", failed)
	}

	if tender.Deadline != nil {
		records = append(records, scrapedDeadlineRecord(tender))
	}
	if len(records) > 0 {
		if err := p.store.AppendFieldRecords(ctx, records); err != nil {
			return nil, eris.Wrap(err, "pipeline: append field records")
		}
	}

	all, err := p.store.ListFieldRecords(ctx, tenderID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list field records")
	}
	syncTender(tender, Reconcile(all))
	if err := p.store.UpdateTender(ctx, tender); err != nil {
		return nil, eris.Wrap(err, "pipeline: sync tender")
	}

	snap := &model.AnalysisSnapshot{
		TenderID:  tenderID,
		Kind:      model.AnalysisShallow,
		Model:     modelName,
		Payload:   payload,
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
	}
	if err := p.store.SaveSnapshot(ctx, snap); err != nil {
		return nil, eris.Wrap(err, "pipeline: save snapshot")
	}

	if _, err := p.transitionLocked(ctx, tenderID, model.EventAnalysisDone, ""); err != nil {
		// The analysis itself landed; a tender already completed (re-analysis)
		// keeps its stage.
		zap.L().Debug("analysis done without stage change",
			zap.String("tender_id", tenderID.String()),
			zap.Error(err),
		)
	}

	zap.L().Info("shallow analysis complete",
		zap.String("tender_id", tenderID.String()),
		zap.Int("documents", len(docs)-failed),
		zap.Int("documents_failed", failed),
		zap.Int("field_records", len(records)),
		zap.Int("snapshot_version", snap.Version),
	)
	return primary, nil
}

// analyzeDocument runs one model call over one document's text and decodes
// the structured reply.
func (p *Pipeline) analyzeDocument(ctx context.Context, sc *schema.Schema, doc *model.Document) (*model.AvisMetadata, []byte, *anthropic.MessageResponse, error) {
	var user strings.Builder
	user.WriteString("Champs à extraire:\n")
	user.WriteString(sc.PromptLines())
	user.WriteString("\nTexte du document ")
	user.WriteString(doc.Filename)
	user.WriteString(" (")
	user.WriteString(string(doc.Type))
	user.WriteString("):\n\n")
	user.WriteString(truncate(doc.Text(), p.maxDocChars()))

	temp := 0.0
	resp, err := p.callModel(ctx, "avis_analysis", anthropic.MessageRequest{
		Model:       p.models.AnalysisModel,
		MaxTokens:   int64(p.models.MaxTokens),
		System:      []anthropic.SystemBlock{{Text: avisSystemPrompt}},
		Messages:    []anthropic.Message{{Role: "user", Content: user.String()}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, nil, nil, eris.Wrap(err, "pipeline: avis analysis call")
	}

	var meta model.AvisMetadata
	payload, err := decodeModelJSON(resp.Text(), &meta)
	if err != nil {
		return nil, nil, nil, eris.Wrap(err, "pipeline: parse avis analysis")
	}
	return &meta, payload, resp, nil
}

// LatestAnalysis returns the most recent shallow analysis for a tender.
func (p *Pipeline) LatestAnalysis(ctx context.Context, tenderID uuid.UUID) (*model.AvisMetadata, error) {
	snap, err := p.store.LatestSnapshot(ctx, tenderID, model.AnalysisShallow)
	if err != nil {
		return nil, err
	}
	var meta model.AvisMetadata
	if err := json.Unmarshal(snap.Payload, &meta); err != nil {
		return nil, eris.Wrap(err, "pipeline: decode shallow snapshot")
	}
	return &meta, nil
}

// Fields returns the reconciled canonical values for a tender.
func (p *Pipeline) Fields(ctx context.Context, tenderID uuid.UUID) (map[string]model.CanonicalValue, error) {
	records, err := p.store.ListFieldRecords(ctx, tenderID)
	if err != nil {
		return nil, err
	}
	return Reconcile(records), nil
}

// Provenance returns the full append-only field record trail for a tender.
func (p *Pipeline) Provenance(ctx context.Context, tenderID uuid.UUID) ([]model.FieldRecord, error) {
	return p.store.ListFieldRecords(ctx, tenderID)
}

// analyzableDocuments returns every document with extracted text, notices
// first so the avis drives the stored snapshot and the returned metadata.
func (p *Pipeline) analyzableDocuments(ctx context.Context, tenderID uuid.UUID) ([]model.Document, error) {
	docs, err := p.store.ListDocuments(ctx, tenderID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list documents")
	}
	var out []model.Document
	for _, d := range docs {
		if d.HasText() {
			out = append(out, d)
		}
	}
	if len(out) == 0 {
		return nil, eris.Wrapf(model.ErrAnalysisUnavailable, "pipeline: tender %s has no extracted text", tenderID)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Type == model.DocAvis && out[j].Type != model.DocAvis
	})
	return out, nil
}

// avisFieldRecords converts one document's model output into provenance
// records, tagged with the document type so annex-sourced values can win
// reconciliation.
func avisFieldRecords(tender *model.Tender, doc *model.Document, meta *model.AvisMetadata) []model.FieldRecord {
	now := time.Now().UTC()
	docID := doc.ID

	base := func(name, value, typ string, conf float64) model.FieldRecord {
		return model.FieldRecord{
			TenderID:     tender.ID,
			Name:         name,
			Value:        value,
			Type:         typ,
			Source:       model.SourceAI,
			DocumentID:   &docID,
			DocumentType: doc.Type,
			Confidence:   conf,
			ExtractedAt:  now,
		}
	}

	var records []model.FieldRecord
	add := func(name, value, typ string, conf float64) {
		if value == "" {
			return
		}
		records = append(records, base(name, value, typ, conf))
	}

	add("reference", meta.Reference, "text", confAvisBase)
	add("title", meta.Title, "text", confAvisBase)
	add("organization", meta.Organization, "text", confAvisBase)
	add("category", meta.Category, "text", confAvisBase)
	add("publication_date", meta.PublicationDate, "date", confAvisScalar)
	add("deadline", meta.Deadline, "date", confAvisScalar)
	add("opening_date", meta.OpeningDate, "date", confAvisScalar)
	add("submission_address", meta.SubmissionAddress, "text", confAvisBase)
	add("opening_location", meta.OpeningLocation, "text", confAvisBase)
	if meta.BudgetEstimate != nil {
		add("budget_estimate", formatAmount(*meta.BudgetEstimate), "number", confAvisScalar)
	}
	if meta.CautionAmount != nil {
		add("caution_amount", formatAmount(*meta.CautionAmount), "number", confAvisScalar)
	}

	return records
}

// scrapedDeadlineRecord captures the portal listing deadline, which
// reconciliation treats as authoritative over any document-derived date.
func scrapedDeadlineRecord(tender *model.Tender) model.FieldRecord {
	return model.FieldRecord{
		TenderID:    tender.ID,
		Name:        model.FieldDeadline,
		Value:       tender.Deadline.Format("2006-01-02"),
		Type:        "date",
		Source:      model.SourceScraped,
		Confidence:  confPortalScraped,
		ExtractedAt: time.Now().UTC(),
	}
}

// syncTender writes reconciled values back onto the tender row. Unspecified
// fields are left alone; existing values are never blanked.
func syncTender(t *model.Tender, canon map[string]model.CanonicalValue) {
	if v, ok := canon["title"]; ok && v.Specified {
		t.Title = v.Value
	}
	if v, ok := canon["organization"]; ok && v.Specified {
		t.Organization = v.Value
	}
	if v, ok := canon["category"]; ok && v.Specified {
		t.Category = v.Value
	}
	if v, ok := canon["reference"]; ok && v.Specified && t.Reference == "" {
		t.Reference = v.Value
	}
	if v, ok := canon["publication_date"]; ok && v.Specified {
		if ts, err := parseDate(v.Value); err == nil {
			t.PublicationDate = &ts
		}
	}
	if v, ok := canon["deadline"]; ok && v.Specified {
		if ts, err := parseDate(v.Value); err == nil {
			t.Deadline = &ts
		}
	}
	if v, ok := canon["opening_date"]; ok && v.Specified {
		if ts, err := parseDate(v.Value); err == nil {
			t.OpeningDate = &ts
		}
	}
	if v, ok := canon["budget_estimate"]; ok && v.Specified {
		if f, err := strconv.ParseFloat(v.Value, 64); err == nil {
			t.BudgetEstimate = &f
		}
	}
	if v, ok := canon["caution_amount"]; ok && v.Specified {
		if f, err := strconv.ParseFloat(v.Value, 64); err == nil {
			t.CautionAmount = &f
		}
	}
}

var dateLayouts = []string{"2006-01-02", "02/01/2006", time.RFC3339}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, eris.Errorf("pipeline: unparseable date %q", s)
}

func formatAmount(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// Back up to a rune boundary so Arabic text is never cut mid-character.
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// decodeModelJSON strips markdown fences the model sometimes wraps its JSON
// in, unmarshals into dst and returns the cleaned payload bytes.
func decodeModelJSON(raw string, dst any) ([]byte, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	// Models occasionally preface the object; cut to the first brace.
	if i := strings.Index(s, "{"); i > 0 {
		s = s[i:]
	}
	if err := json.Unmarshal([]byte(s), dst); err != nil {
		return nil, eris.Wrap(err, "decode model json")
	}
	return []byte(s), nil
}
