package pipeline

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/soumtech/tender-cli/internal/model"
	"github.com/soumtech/tender-cli/internal/schema"
	"github.com/soumtech/tender-cli/pkg/anthropic"
)

const deepSystemPrompt = `Tu es un analyste des marchés publics marocains. On te donne les documents complets d'un appel d'offres, dans l'ordre avis, règlement de consultation, CPS, puis annexes. Quand deux documents se contredisent, la valeur du document le plus tardif dans cet ordre fait foi. Extrais les champs demandés et réponds UNIQUEMENT avec un objet JSON valide. Omets tout champ absent; n'invente jamais de valeur. Recopie les descriptions d'articles mot pour mot depuis le document. Les montants sont en dirhams.`

// deepDocOrder feeds documents to the model lowest precedence first, so an
// annex printed last in the prompt naturally overrides the main documents.
var deepDocOrder = map[model.DocumentType]int{
	model.DocOther:  0,
	model.DocAvis:   1,
	model.DocRC:     2,
	model.DocCPS:    3,
	model.DocAnnexe: 4,
}

// DeepAnalyze runs the deep multi-document pass. Without force, an existing
// deep snapshot is returned as-is; with force a fresh model call always runs.
// Concurrent calls for the same tender collapse into one model call through
// singleflight, and every caller gets that one result.
func (p *Pipeline) DeepAnalyze(ctx context.Context, tenderID uuid.UUID, force bool) (*model.DeepAnalysis, error) {
	v, err, shared := p.deepCalls.Do(tenderID.String(), func() (any, error) {
		return p.deepAnalyzeOnce(ctx, tenderID, force)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		zap.L().Debug("deep analysis deduplicated",
			zap.String("tender_id", tenderID.String()),
		)
	}
	return v.(*model.DeepAnalysis), nil
}

func (p *Pipeline) deepAnalyzeOnce(ctx context.Context, tenderID uuid.UUID, force bool) (*model.DeepAnalysis, error) {
	if !force {
		if existing, err := p.LatestDeep(ctx, tenderID); err == nil {
			return existing, nil
		} else if !eris.Is(err, model.ErrNotFound) {
			return nil, err
		}
	}

	docs, err := p.store.ListDocuments(ctx, tenderID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list documents")
	}

	var withText []model.Document
	for _, d := range docs {
		if d.HasText() {
			withText = append(withText, d)
		}
	}
	if len(withText) == 0 {
		return nil, eris.Wrapf(model.ErrAnalysisUnavailable, "pipeline: tender %s has no extracted text", tenderID)
	}
	sortDocsForDeep(withText)

	sc, err := schema.Deep()
	if err != nil {
		return nil, err
	}

	var user strings.Builder
	user.WriteString("Champs à extraire:\n")
	user.WriteString(sc.PromptLines())
	user.WriteString("\nDocuments du dossier:\n")
	for _, d := range withText {
		user.WriteString("\n=== Document: ")
		user.WriteString(d.Filename)
		user.WriteString(" (")
		user.WriteString(string(d.Type))
		user.WriteString(") ===\n")
		user.WriteString(truncate(d.Text(), p.maxDocChars()))
		user.WriteString("\n")
	}

	temp := 0.0
	resp, err := p.callModel(ctx, "deep_analysis", anthropic.MessageRequest{
		Model:       p.models.DeepModel,
		MaxTokens:   int64(p.models.MaxTokens),
		System:      []anthropic.SystemBlock{{Text: deepSystemPrompt}},
		Messages:    []anthropic.Message{{Role: "user", Content: user.String()}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: deep analysis call")
	}

	var deep model.DeepAnalysis
	if _, err := decodeModelJSON(resp.Text(), &deep); err != nil {
		return nil, eris.Wrap(err, "pipeline: parse deep analysis")
	}
	deep.ComputeCautionDefinitive()

	records := deepFieldRecords(tenderID, deepPrimaryDocument(withText), &deep)
	if len(records) > 0 {
		if err := p.store.AppendFieldRecords(ctx, records); err != nil {
			return nil, eris.Wrap(err, "pipeline: append deep field records")
		}
	}

	payload, err := json.Marshal(&deep)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: encode deep analysis")
	}
	snap := &model.AnalysisSnapshot{
		TenderID:  tenderID,
		Kind:      model.AnalysisDeep,
		Model:     resp.Model,
		Payload:   payload,
		TokensIn:  resp.Usage.InputTokens,
		TokensOut: resp.Usage.OutputTokens,
	}
	if err := p.store.SaveSnapshot(ctx, snap); err != nil {
		return nil, eris.Wrap(err, "pipeline: save deep snapshot")
	}

	zap.L().Info("deep analysis complete",
		zap.String("tender_id", tenderID.String()),
		zap.Int("documents", len(withText)),
		zap.Int("lots", len(deep.Lots)),
		zap.Int("field_records", len(records)),
		zap.Int("snapshot_version", snap.Version),
	)
	return &deep, nil
}

const confDeep = 0.90

// deepPrimaryDocument picks the provenance anchor for deep-derived fields:
// the CPS carries most commercial terms, the RC is next best.
func deepPrimaryDocument(docs []model.Document) *model.Document {
	for _, typ := range []model.DocumentType{model.DocCPS, model.DocRC} {
		for i := range docs {
			if docs[i].Type == typ {
				return &docs[i]
			}
		}
	}
	return &docs[0]
}

// deepFieldRecords flattens the deep result's scalar fields into provenance
// records, so both passes share the same append-only trail and the same
// reconciliation rules. Deep fields carry their own names and complement
// the shallow records rather than competing with them.
func deepFieldRecords(tenderID uuid.UUID, doc *model.Document, deep *model.DeepAnalysis) []model.FieldRecord {
	now := time.Now().UTC()
	docID := doc.ID

	var records []model.FieldRecord
	add := func(name, value, typ string) {
		if value == "" {
			return
		}
		records = append(records, model.FieldRecord{
			TenderID:     tenderID,
			Name:         name,
			Value:        value,
			Type:         typ,
			Source:       model.SourceAI,
			DocumentID:   &docID,
			DocumentType: doc.Type,
			Confidence:   confDeep,
			ExtractedAt:  now,
		})
	}

	add("deep_reference", deep.Reference, "text")
	add("deep_tender_type", deep.TenderType, "text")
	add("deep_institution", deep.Institution, "text")
	add("deep_institution_address", deep.InstitutionAddress, "text")
	add("deep_subject", deep.Subject, "text")
	add("deep_opening_location", deep.OpeningLocation, "text")
	add("deep_deadline_date", deep.Deadline.Date, "date")
	add("deep_deadline_time", deep.Deadline.Time, "text")
	if deep.TotalEstimate != nil {
		add("deep_total_estimate", formatAmount(*deep.TotalEstimate), "number")
	}
	if len(deep.Lots) > 0 {
		if lots, err := json.Marshal(deep.Lots); err == nil {
			add("deep_lots", string(lots), "json")
		}
	}
	return records
}

// LatestDeep returns the most recent deep analysis for a tender.
func (p *Pipeline) LatestDeep(ctx context.Context, tenderID uuid.UUID) (*model.DeepAnalysis, error) {
	snap, err := p.store.LatestSnapshot(ctx, tenderID, model.AnalysisDeep)
	if err != nil {
		return nil, err
	}
	var deep model.DeepAnalysis
	if err := json.Unmarshal(snap.Payload, &deep); err != nil {
		return nil, eris.Wrap(err, "pipeline: decode deep snapshot")
	}
	return &deep, nil
}

func sortDocsForDeep(docs []model.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		return deepDocOrder[docs[i].Type] < deepDocOrder[docs[j].Type]
	})
}
