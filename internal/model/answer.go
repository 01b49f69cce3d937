package model

import (
	"time"

	"github.com/google/uuid"
)

// Language codes the QA engine answers in.
const (
	LangFrench  = "fr"
	LangDarija  = "ar-ma"
	LangArabic  = "ar"
	LangEnglish = "en"
)

// Citation points a claim in an answer at a place in a tender document.
type Citation struct {
	Document string `json:"document"`
	Excerpt  string `json:"excerpt,omitempty"`
	Location string `json:"location,omitempty"`
}

// Answer is one grounded response from the QA engine. Citations have been
// validated against the document set the model was shown; Grounded is false
// when every claimed citation named an unknown document.
type Answer struct {
	Text        string     `json:"answer"`
	Language    string     `json:"language_detected"`
	Citations   []Citation `json:"citations,omitempty"`
	Confidence  float64    `json:"confidence"`
	FollowUps   []string   `json:"follow_up_suggestions,omitempty"`
	Grounded    bool       `json:"grounded"`
	GeneratedAt time.Time  `json:"generated_at"`
}

// Exchange is one stored question/answer pair, threaded into follow-up
// conversations.
type Exchange struct {
	ID        int64     `json:"id,omitempty"`
	TenderID  uuid.UUID `json:"tender_id"`
	Question  string    `json:"question"`
	Answer    Answer    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}
