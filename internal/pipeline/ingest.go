package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/soumtech/tender-cli/internal/fetcher"
	"github.com/soumtech/tender-cli/internal/model"
)

// Ingest pulls one tender and its document listing from a portal source and
// registers them. Re-ingesting a known reference refreshes the tender row
// and attaches only documents not seen before. The tender lands in the
// downloading stage; extraction picks it up from there.
func (p *Pipeline) Ingest(ctx context.Context, src fetcher.Source, sourceID string) (*model.Tender, error) {
	discovered, err := src.DiscoverTender(ctx, sourceID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: discover tender")
	}

	tender, err := p.store.GetTenderByReference(ctx, discovered.Reference)
	switch {
	case err == nil:
		// Refresh portal-sourced fields on the existing row.
		tender.Title = discovered.Title
		tender.Organization = discovered.Organization
		tender.Category = discovered.Category
		tender.Deadline = discovered.Deadline
		tender.Status = discovered.Status
		tender.SourceURL = discovered.SourceURL
		if err := p.store.UpdateTender(ctx, tender); err != nil {
			return nil, eris.Wrap(err, "pipeline: refresh tender")
		}
	case eris.Is(err, model.ErrNotFound):
		tender = discovered
		if err := p.store.CreateTender(ctx, tender); err != nil {
			return nil, eris.Wrap(err, "pipeline: create tender")
		}
	default:
		return nil, eris.Wrap(err, "pipeline: lookup tender")
	}

	mu := p.locks.lock(tender.ID)
	defer mu.Unlock()

	// A refreshed tender already past pending keeps its stage; only fresh
	// tenders walk the scraping edge.
	st, err := p.loadState(ctx, tender.ID)
	if err != nil {
		return nil, err
	}
	fresh := st.Stage == model.StagePending
	if fresh {
		if _, err := p.transitionLocked(ctx, tender.ID, model.EventScrapeStarted, ""); err != nil {
			return nil, eris.Wrap(err, "pipeline: enter scraping")
		}
	}

	listed, err := src.ListTenderDocuments(ctx, tender.ID, sourceID)
	if err != nil {
		if fresh {
			if _, ferr := p.transitionLocked(ctx, tender.ID, model.EventFailed, eris.ToString(err, false)); ferr != nil {
				return nil, ferr
			}
		}
		return nil, eris.Wrap(err, "pipeline: list portal documents")
	}

	existing, err := p.store.ListDocuments(ctx, tender.ID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list stored documents")
	}
	seen := make(map[string]bool, len(existing))
	for _, d := range existing {
		seen[d.Filename] = true
	}

	var created int
	for i := range listed {
		d := &listed[i]
		if seen[d.Filename] {
			continue
		}
		d.TenderID = tender.ID
		d.OCRStatus = model.OCRPending
		if err := p.store.CreateDocument(ctx, d); err != nil {
			return nil, eris.Wrap(err, "pipeline: create document")
		}
		created++
	}

	if fresh {
		if _, err := p.transitionLocked(ctx, tender.ID, model.EventDocsDiscovered, ""); err != nil {
			return nil, eris.Wrap(err, "pipeline: leave scraping")
		}
	}

	zap.L().Info("tender ingested",
		zap.String("tender_id", tender.ID.String()),
		zap.String("reference", tender.Reference),
		zap.Int("new_documents", created),
		zap.Int("total_documents", len(existing)+created),
	)
	return tender, nil
}
