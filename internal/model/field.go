package model

import (
	"time"

	"github.com/google/uuid"
)

// FieldSource says where a field value came from.
type FieldSource string

const (
	SourceScraped FieldSource = "scraped" // portal HTML, authoritative for dates
	SourceOCR     FieldSource = "ocr"     // read directly off an extracted document
	SourceAI      FieldSource = "ai"      // model-extracted
	SourceManual  FieldSource = "manual"  // operator-entered
)

// Field names with special reconciliation handling.
const (
	FieldDeadline = "deadline"
)

// FieldRecord is one candidate value for one field of one tender, tagged
// with full provenance. Records are append-only: reanalysis inserts new rows
// and never rewrites old ones, so the audit trail survives every re-run.
type FieldRecord struct {
	ID       int64     `json:"id,omitempty"`
	TenderID uuid.UUID `json:"tender_id"`
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	// Type hints how Value is encoded: text, date, number, list, json.
	Type   string      `json:"type"`
	Source FieldSource `json:"source"`
	// DocumentID is the origin document for document-derived values.
	DocumentID *uuid.UUID `json:"document_id,omitempty"`
	// DocumentType is captured at append time so reconciliation stays a pure
	// function of the records alone.
	DocumentType DocumentType `json:"document_type,omitempty"`
	Confidence   float64      `json:"confidence"`
	Location     string       `json:"location,omitempty"`
	ExtractedAt  time.Time    `json:"extracted_at"`
}

// CanonicalValue is the single reconciled value for one field, derived from
// the FieldRecord set by the precedence rules. Specified is false when no
// candidate record exists; the value is then empty, never a guessed default.
type CanonicalValue struct {
	Name       string      `json:"name"`
	Value      string      `json:"value,omitempty"`
	Type       string      `json:"type,omitempty"`
	Source     FieldSource `json:"source,omitempty"`
	DocumentID *uuid.UUID  `json:"document_id,omitempty"`
	Confidence float64     `json:"confidence"`
	Specified  bool        `json:"specified"`
}
