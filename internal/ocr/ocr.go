package ocr

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/soumtech/tender-cli/internal/config"
)

// Result is the outcome of one OCR run.
type Result struct {
	Text      string
	PageCount int
}

// Extractor recovers text from scanned PDF documents. Implementations
// receive the raw PDF bytes; the caller owns persistence.
type Extractor interface {
	ExtractText(ctx context.Context, data []byte) (Result, error)
}

// NewExtractor creates an Extractor based on config. The recognition
// language reaches the Mistral provider; the local provider reads the
// embedded text layer and needs no language hint.
func NewExtractor(cfg config.OCRConfig) (Extractor, error) {
	switch cfg.Provider {
	case "local", "":
		return NewPdfToText(cfg.PdfToTextPath), nil
	case "mistral":
		if cfg.MistralKey == "" {
			return nil, eris.New("ocr: mistral provider requires mistral_api_key")
		}
		return NewMistralOCR(cfg.MistralKey, cfg.MistralModel, cfg.Language), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}
