package model

import "github.com/rotisserie/eris"

// Error taxonomy shared across the pipeline. Callers match with errors.Is;
// eris wrapping preserves the sentinel through every boundary.
var (
	// ErrUnsupportedFormat marks documents no extractor can handle, such as
	// legacy .doc and .xls binaries. Permanent, never retried.
	ErrUnsupportedFormat = eris.New("unsupported document format")

	// ErrOCRFailed marks an OCR provider failure after retries.
	ErrOCRFailed = eris.New("ocr extraction failed")

	// ErrAnalysisUnavailable means a tender has no extracted text to analyze
	// or no stored snapshot to serve.
	ErrAnalysisUnavailable = eris.New("analysis unavailable")

	// ErrNotFound is the storage-level missing-row sentinel.
	ErrNotFound = eris.New("not found")
)
