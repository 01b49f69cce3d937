package pipeline

import (
	"sort"

	"github.com/soumtech/tender-cli/internal/model"
)

// Reconcile derives the canonical value of every field appearing in the
// record set. It is a pure function: same records in, same values out,
// regardless of append order. Precedence per field:
//
//  1. deadline only: a scraped record wins over any document-derived one;
//     the portal listing is authoritative for dates.
//  2. records from annex documents override the main documents, annexes
//     being later corrections.
//  3. higher confidence wins.
//  4. on equal confidence, the most recently extracted record wins.
//
// Fields with no records at all do not appear in the result; callers ask
// for them through ReconcileField, which reports Specified=false.
func Reconcile(records []model.FieldRecord) map[string]model.CanonicalValue {
	byName := make(map[string][]model.FieldRecord)
	for _, r := range records {
		byName[r.Name] = append(byName[r.Name], r)
	}

	out := make(map[string]model.CanonicalValue, len(byName))
	for name, recs := range byName {
		out[name] = ReconcileField(name, recs)
	}
	return out
}

// ReconcileField derives the canonical value for one field from its
// candidate records. Records for other fields are ignored.
func ReconcileField(name string, records []model.FieldRecord) model.CanonicalValue {
	candidates := make([]model.FieldRecord, 0, len(records))
	for _, r := range records {
		if r.Name == name {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return model.CanonicalValue{Name: name, Specified: false}
	}

	if name == model.FieldDeadline {
		if scraped := filterRecords(candidates, func(r model.FieldRecord) bool {
			return r.Source == model.SourceScraped
		}); len(scraped) > 0 {
			candidates = scraped
		}
	}

	if annex := filterRecords(candidates, func(r model.FieldRecord) bool {
		return r.DocumentType == model.DocAnnexe
	}); len(annex) > 0 {
		candidates = annex
	}

	best := pickBest(candidates)
	return model.CanonicalValue{
		Name:       name,
		Value:      best.Value,
		Type:       best.Type,
		Source:     best.Source,
		DocumentID: best.DocumentID,
		Confidence: best.Confidence,
		Specified:  true,
	}
}

func filterRecords(records []model.FieldRecord, keep func(model.FieldRecord) bool) []model.FieldRecord {
	var out []model.FieldRecord
	for _, r := range records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// pickBest sorts by confidence, then extraction time, then record id, so
// the winner is stable no matter how the input is ordered.
func pickBest(candidates []model.FieldRecord) model.FieldRecord {
	sorted := make([]model.FieldRecord, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if !a.ExtractedAt.Equal(b.ExtractedAt) {
			return a.ExtractedAt.After(b.ExtractedAt)
		}
		return a.ID > b.ID
	})
	return sorted[0]
}
