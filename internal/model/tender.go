package model

import (
	"time"

	"github.com/google/uuid"
)

// TenderStatus is the lifecycle status of a tender on the source portal.
type TenderStatus string

const (
	TenderOpen      TenderStatus = "open"
	TenderClosed    TenderStatus = "closed"
	TenderAwarded   TenderStatus = "awarded"
	TenderCancelled TenderStatus = "cancelled"
)

// DocumentType classifies an attached document by its role in the tender
// dossier. RC is the consultation rules, CPS the special prescriptions,
// annexes are later addenda and override the main documents during
// reconciliation.
type DocumentType string

const (
	DocRC     DocumentType = "rc"
	DocCPS    DocumentType = "cps"
	DocAnnexe DocumentType = "annexe"
	DocAvis   DocumentType = "avis"
	DocOther  DocumentType = "other"
)

// OCRStatus tracks text extraction progress for one document.
type OCRStatus string

const (
	OCRPending    OCRStatus = "pending"
	OCRProcessing OCRStatus = "processing"
	OCRCompleted  OCRStatus = "completed"
	OCRFailed     OCRStatus = "failed"
)

// ExtractionMethod records how a document's text was obtained.
type ExtractionMethod string

const (
	MethodDigital ExtractionMethod = "digital"
	MethodOCR     ExtractionMethod = "ocr"
)

// Tender is the canonical record for one public tender. The scraping
// collaborator creates and refreshes it; analysis stages only ever touch
// derived fields through FieldRecords.
type Tender struct {
	ID              uuid.UUID    `json:"id"`
	Reference       string       `json:"reference"`
	Title           string       `json:"title"`
	Organization    string       `json:"organization"`
	Category        string       `json:"category"`
	PublicationDate *time.Time   `json:"publication_date,omitempty"`
	Deadline        *time.Time   `json:"deadline,omitempty"`
	OpeningDate     *time.Time   `json:"opening_date,omitempty"`
	BudgetEstimate  *float64     `json:"budget_estimate,omitempty"`
	CautionAmount   *float64     `json:"caution_amount,omitempty"`
	Status          TenderStatus `json:"status"`
	SourceURL       string       `json:"source_url"`
	SourceID        string       `json:"source_id,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// Document is one file attached to a tender. Only the extraction engine
// mutates it (OCR status, extracted text); the core never deletes documents.
type Document struct {
	ID          uuid.UUID    `json:"id"`
	TenderID    uuid.UUID    `json:"tender_id"`
	Filename    string       `json:"filename"`
	Type        DocumentType `json:"type"`
	FileSize    int64        `json:"file_size"`
	DownloadURL string       `json:"download_url,omitempty"`

	OCRStatus OCRStatus        `json:"ocr_status"`
	OCRError  string           `json:"ocr_error,omitempty"`
	Method    ExtractionMethod `json:"extraction_method,omitempty"`
	PageCount int              `json:"page_count,omitempty"`
	// ExtractedText is nil until extraction succeeds. An empty string after
	// a completed extraction means the document genuinely holds no text.
	ExtractedText *string `json:"extracted_text,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasText reports whether extraction completed and produced usable text.
func (d *Document) HasText() bool {
	return d.OCRStatus == OCRCompleted && d.ExtractedText != nil && *d.ExtractedText != ""
}

// Text returns the extracted text, or "" when extraction has not succeeded.
func (d *Document) Text() string {
	if d.ExtractedText == nil {
		return ""
	}
	return *d.ExtractedText
}
