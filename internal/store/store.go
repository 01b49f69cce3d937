package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/soumtech/tender-cli/internal/config"
	"github.com/soumtech/tender-cli/internal/model"
)

// TenderFilter specifies criteria for listing tenders.
type TenderFilter struct {
	Status       model.TenderStatus `json:"status,omitempty"`
	Organization string             `json:"organization,omitempty"`
	Limit        int                `json:"limit,omitempty"`
	Offset       int                `json:"offset,omitempty"`
}

// Store defines the persistence interface for the tender pipeline.
// Field records are append-only: there is deliberately no update or delete.
type Store interface {
	// Tenders
	CreateTender(ctx context.Context, t *model.Tender) error
	GetTender(ctx context.Context, id uuid.UUID) (*model.Tender, error)
	GetTenderByReference(ctx context.Context, reference string) (*model.Tender, error)
	UpdateTender(ctx context.Context, t *model.Tender) error
	ListTenders(ctx context.Context, filter TenderFilter) ([]model.Tender, error)

	// Documents
	CreateDocument(ctx context.Context, d *model.Document) error
	GetDocument(ctx context.Context, id uuid.UUID) (*model.Document, error)
	ListDocuments(ctx context.Context, tenderID uuid.UUID) ([]model.Document, error)
	UpdateDocumentExtraction(ctx context.Context, d *model.Document) error
	ListPendingDocuments(ctx context.Context, limit int) ([]model.Document, error)

	// Processing state
	GetState(ctx context.Context, tenderID uuid.UUID) (*model.ProcessingState, error)
	SaveState(ctx context.Context, st *model.ProcessingState) error
	ListTendersInStage(ctx context.Context, stage model.Stage, limit int) ([]uuid.UUID, error)

	// Field records (append-only provenance trail)
	AppendFieldRecords(ctx context.Context, records []model.FieldRecord) error
	ListFieldRecords(ctx context.Context, tenderID uuid.UUID) ([]model.FieldRecord, error)

	// Analysis snapshots (immutable, versioned)
	SaveSnapshot(ctx context.Context, snap *model.AnalysisSnapshot) error
	LatestSnapshot(ctx context.Context, tenderID uuid.UUID, kind model.AnalysisKind) (*model.AnalysisSnapshot, error)

	// QA conversation history
	SaveExchange(ctx context.Context, ex *model.Exchange) error
	RecentExchanges(ctx context.Context, tenderID uuid.UUID, limit int) ([]model.Exchange, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// New creates a Store from config, dispatching on the configured driver.
func New(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return NewSQLite(cfg.DatabaseURL)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
