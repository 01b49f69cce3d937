// Package fetcher downloads tender document blobs from their source portal.
package fetcher

import (
	"context"

	"github.com/google/uuid"

	"github.com/soumtech/tender-cli/internal/model"
)

// Fetcher downloads a document payload from its portal URL.
type Fetcher interface {
	// Fetch retrieves the document bytes at the given URL.
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Source is the scraping collaborator boundary. The pipeline never talks to
// the portal wire format directly; a Source hands it tenders and their
// document listings.
type Source interface {
	// DiscoverTender fetches or refreshes the metadata of one tender.
	DiscoverTender(ctx context.Context, sourceID string) (*model.Tender, error)

	// ListTenderDocuments returns the document listing of one tender. The
	// documents carry DownloadURL but no payload.
	ListTenderDocuments(ctx context.Context, tenderID uuid.UUID, sourceID string) ([]model.Document, error)
}
