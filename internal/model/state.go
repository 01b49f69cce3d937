package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// Stage is the pipeline stage a tender is currently in. Stages advance
// monotonically along stageOrder; failed is reachable from any non-terminal
// stage and reset-to-pending is the only backward edge.
type Stage string

const (
	StagePending     Stage = "pending"
	StageScraping    Stage = "scraping"
	StageDownloading Stage = "downloading"
	StageOCR         Stage = "ocr"
	StageAnalyzing   Stage = "analyzing"
	StageCompleted   Stage = "completed"
	StageFailed      Stage = "failed"
)

// StageEvent drives a transition in the processing state machine.
type StageEvent string

const (
	EventScrapeStarted  StageEvent = "scrape_started"
	EventDocsDiscovered StageEvent = "docs_discovered"
	EventDocsDownloaded StageEvent = "docs_downloaded"
	EventDocsExtracted  StageEvent = "docs_extracted"
	EventAnalysisDone   StageEvent = "analysis_done"
	EventFailed         StageEvent = "failed"
	EventReset          StageEvent = "reset"
)

// ProcessingState is the per-tender lifecycle record. One row per tender.
type ProcessingState struct {
	TenderID   uuid.UUID `json:"tender_id"`
	Stage      Stage     `json:"stage"`
	LastError  string    `json:"last_error,omitempty"`
	RetryCount int       `json:"retry_count"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Terminal reports whether the stage ends the current run.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

var stageTransitions = map[Stage]map[StageEvent]Stage{
	StagePending: {
		EventScrapeStarted: StageScraping,
		// Tenders created with documents already attached skip straight to
		// extraction when the extract trigger fires.
		EventDocsDownloaded: StageOCR,
	},
	StageScraping: {
		EventDocsDiscovered: StageDownloading,
	},
	StageDownloading: {
		EventDocsDownloaded: StageOCR,
	},
	StageOCR: {
		EventDocsExtracted: StageAnalyzing,
		// Idempotent re-entry: re-running extraction on remaining pending
		// documents keeps the tender in the ocr stage.
		EventDocsDownloaded: StageOCR,
	},
	StageAnalyzing: {
		EventAnalysisDone: StageCompleted,
		// Re-analysis of an already-analyzing tender is a no-op transition.
		EventDocsExtracted: StageAnalyzing,
	},
}

// Next is the pure transition function of the processing state machine.
// It returns the stage that follows current on event, or an error when the
// transition is not legal. It never touches storage.
func Next(current Stage, event StageEvent) (Stage, error) {
	if event == EventReset {
		return StagePending, nil
	}
	if event == EventFailed {
		if current.Terminal() {
			return current, eris.Errorf("state: cannot fail terminal stage %q", current)
		}
		return StageFailed, nil
	}
	if next, ok := stageTransitions[current][event]; ok {
		return next, nil
	}
	return current, eris.Errorf("state: illegal transition %q on %q", event, current)
}
