package extract

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/soumtech/tender-cli/internal/model"
	"github.com/soumtech/tender-cli/internal/ocr"
)

// minTextLength is the smallest usable text layer. Scanned PDFs often carry
// a few stray characters of metadata; anything below this goes to OCR.
const minTextLength = 50

// Result is the outcome of one extraction.
type Result struct {
	Text      string
	Method    model.ExtractionMethod
	PageCount int
}

// Engine extracts text from tender documents, dispatching on format and
// falling back to OCR for scanned PDFs. It does not touch storage.
type Engine struct {
	ocr ocr.Extractor
}

// NewEngine creates an Engine. The OCR extractor may be nil, in which case
// scanned PDFs fail with an OCR error instead of falling back.
func NewEngine(ocrExt ocr.Extractor) *Engine {
	return &Engine{ocr: ocrExt}
}

// Extract pulls text from a document. The format is sniffed from the bytes
// first and the filename extension second; legacy binary Office formats are
// rejected with model.ErrUnsupportedFormat.
func (e *Engine) Extract(ctx context.Context, filename string, data []byte) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if len(data) == 0 {
		return Result{}, eris.New("extract: empty document")
	}

	switch detectFormat(filename, data) {
	case formatPDF:
		return e.extractPDF(ctx, filename, data)
	case formatDOCX:
		text, err := extractDOCX(data)
		if err != nil {
			return Result{}, err
		}
		return Result{Text: text, Method: model.MethodDigital}, nil
	case formatXLSX:
		text, err := extractXLSX(data)
		if err != nil {
			return Result{}, err
		}
		return Result{Text: text, Method: model.MethodDigital}, nil
	case formatLegacy:
		return Result{}, eris.Wrapf(model.ErrUnsupportedFormat, "extract: %s", filename)
	default:
		return Result{}, eris.Wrapf(model.ErrUnsupportedFormat, "extract: %s", filename)
	}
}

// extractPDF tries the digital text layer first. A text layer below
// minTextLength means the document is scanned; the OCR fallback then decides
// the outcome. Digital failure never masks a usable OCR result.
func (e *Engine) extractPDF(ctx context.Context, filename string, data []byte) (Result, error) {
	text, pages, digitalErr := pdfTextLayer(data)

	if digitalErr == nil && len(strings.TrimSpace(text)) >= minTextLength {
		return Result{Text: text, Method: model.MethodDigital, PageCount: pages}, nil
	}

	if e.ocr == nil {
		if digitalErr != nil {
			return Result{}, eris.Wrapf(model.ErrOCRFailed, "extract: %s: no text layer and no ocr provider", filename)
		}
		// Digital succeeded but the layer is too thin to trust.
		return Result{}, eris.Wrapf(model.ErrOCRFailed, "extract: %s: text layer below threshold and no ocr provider", filename)
	}

	zap.L().Info("falling back to ocr",
		zap.String("filename", filename),
		zap.Int("text_layer_chars", len(strings.TrimSpace(text))),
	)

	res, err := e.ocr.ExtractText(ctx, data)
	if err != nil {
		return Result{}, eris.Wrapf(model.ErrOCRFailed, "extract: %s: %v", filename, err)
	}
	// An empty OCR result is a failure, never a blank document; callers must
	// be able to tell "no content" from "extraction not possible".
	if got := len(strings.TrimSpace(res.Text)); got < minTextLength {
		return Result{}, eris.Wrapf(model.ErrOCRFailed, "extract: %s: ocr produced %d usable chars", filename, got)
	}
	return Result{Text: res.Text, Method: model.MethodOCR, PageCount: res.PageCount}, nil
}

func pdfTextLayer(data []byte) (string, int, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, eris.Wrap(err, "extract: open pdf")
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", 0, eris.Wrap(err, "extract: read pdf text layer")
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", 0, eris.Wrap(err, "extract: copy pdf text")
	}
	return buf.String(), reader.NumPage(), nil
}
