package model

import (
	"time"

	"github.com/google/uuid"
)

// AnalysisKind distinguishes the two snapshot flavors in storage.
type AnalysisKind string

const (
	AnalysisShallow AnalysisKind = "shallow"
	AnalysisDeep    AnalysisKind = "deep"
)

// Keywords holds per-language keyword lists from the shallow pass.
type Keywords struct {
	FR []string `json:"fr,omitempty" yaml:"fr"`
	AR []string `json:"ar,omitempty" yaml:"ar"`
	EN []string `json:"en,omitempty" yaml:"en"`
}

// AvisLot is one lot as listed in the tender notice.
type AvisLot struct {
	Number      string   `json:"number,omitempty"`
	Subject     string   `json:"subject,omitempty"`
	Budget      *float64 `json:"budget,omitempty"`
	Caution     *float64 `json:"caution,omitempty"`
	Description string   `json:"description,omitempty"`
}

// AvisMetadata is the structured output of the shallow notice analysis.
// Every field is optional; the model omits what the notice does not state.
type AvisMetadata struct {
	Reference    string `json:"reference,omitempty"`
	Title        string `json:"title,omitempty"`
	Organization string `json:"organization,omitempty"`
	Category     string `json:"category,omitempty"`

	PublicationDate string `json:"publication_date,omitempty"`
	Deadline        string `json:"deadline,omitempty"`
	OpeningDate     string `json:"opening_date,omitempty"`

	BudgetEstimate *float64 `json:"budget_estimate,omitempty"`
	CautionAmount  *float64 `json:"caution_amount,omitempty"`

	Keywords Keywords `json:"keywords,omitempty"`

	EligibilityRequirements []string `json:"eligibility_requirements,omitempty"`
	SubmissionRequirements  []string `json:"submission_requirements,omitempty"`
	TechnicalRequirements   []string `json:"technical_requirements,omitempty"`
	RequiredDocuments       []string `json:"required_documents,omitempty"`

	SubmissionAddress string    `json:"submission_address,omitempty"`
	OpeningLocation   string    `json:"opening_location,omitempty"`
	Lots              []AvisLot `json:"lots,omitempty"`
	Notes             string    `json:"notes,omitempty"`
}

// DeadlineDetail is the split date and time of the submission deadline as
// printed in the consultation rules.
type DeadlineDetail struct {
	Date string `json:"date,omitempty"`
	Time string `json:"time,omitempty"`
}

// LotItem is one line of a lot's bill of quantities. Description is kept
// verbatim from the document so technical teams can quote it.
type LotItem struct {
	Name        string `json:"name,omitempty"`
	Quantity    string `json:"quantity,omitempty"`
	Description string `json:"description,omitempty"`
}

// DeepLot is one lot with the commercial details the deep pass pulls out of
// the RC, CPS and annexes.
type DeepLot struct {
	Number                  string    `json:"number,omitempty"`
	Subject                 string    `json:"subject,omitempty"`
	EstimatedValue          *float64  `json:"estimated_value,omitempty"`
	CautionProvisoire       *float64  `json:"caution_provisoire,omitempty"`
	CautionDefinitivePct    *float64  `json:"caution_definitive_pct,omitempty"`
	CautionDefinitiveAmount *float64  `json:"caution_definitive_amount,omitempty"`
	ExecutionDate           string    `json:"execution_date,omitempty"`
	Items                   []LotItem `json:"items,omitempty"`
}

// DeepAnalysis is the structured output of the deep multi-document pass.
type DeepAnalysis struct {
	Reference          string         `json:"reference,omitempty"`
	TenderType         string         `json:"tender_type,omitempty"`
	Institution        string         `json:"institution,omitempty"`
	InstitutionAddress string         `json:"institution_address,omitempty"`
	Deadline           DeadlineDetail `json:"deadline,omitempty"`
	OpeningLocation    string         `json:"opening_location,omitempty"`
	Subject            string         `json:"subject,omitempty"`
	TotalEstimate      *float64       `json:"total_estimate,omitempty"`
	Lots               []DeepLot      `json:"lots,omitempty"`
}

// ComputeCautionDefinitive fills CautionDefinitiveAmount on every lot where
// both the percentage and the estimated value are present. Lots missing
// either operand are left untouched; the amount is never guessed.
func (d *DeepAnalysis) ComputeCautionDefinitive() {
	for i := range d.Lots {
		lot := &d.Lots[i]
		if lot.CautionDefinitivePct == nil || lot.EstimatedValue == nil {
			continue
		}
		amount := *lot.EstimatedValue * *lot.CautionDefinitivePct / 100
		lot.CautionDefinitiveAmount = &amount
	}
}

// AnalysisSnapshot is one stored analysis run. Snapshots are immutable;
// reanalysis appends a new snapshot with a higher version.
type AnalysisSnapshot struct {
	ID        int64        `json:"id,omitempty"`
	TenderID  uuid.UUID    `json:"tender_id"`
	Kind      AnalysisKind `json:"kind"`
	Version   int          `json:"version"`
	Model     string       `json:"model,omitempty"`
	Payload   []byte       `json:"payload"`
	TokensIn  int64        `json:"tokens_in,omitempty"`
	TokensOut int64        `json:"tokens_out,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}
