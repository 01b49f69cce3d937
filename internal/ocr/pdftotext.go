package ocr

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// PdfToText extracts text from PDFs using the pdftotext CLI tool.
type PdfToText struct {
	binPath string
}

// NewPdfToText creates a PdfToText extractor. If binPath is empty, "pdftotext" is used.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

// ExtractText writes the PDF bytes to a temp file and runs pdftotext -layout
// on it, returning stdout. Pages are separated by form feeds in the output.
func (p *PdfToText) ExtractText(ctx context.Context, data []byte) (Result, error) {
	dir, err := os.MkdirTemp("", "tender-ocr-*")
	if err != nil {
		return Result{}, eris.Wrap(err, "ocr: create temp dir")
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	pdfPath := filepath.Join(dir, "doc.pdf")
	if err := os.WriteFile(pdfPath, data, 0600); err != nil {
		return Result{}, eris.Wrap(err, "ocr: write temp PDF")
	}

	cmd := exec.CommandContext(ctx, p.binPath, "-layout", pdfPath, "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Result{}, eris.Wrapf(err, "ocr: pdftotext failed: %s", stderr.String())
	}

	text := stdout.String()
	pages := strings.Count(text, "\f")
	if pages == 0 && text != "" {
		pages = 1
	}
	return Result{Text: text, PageCount: pages}, nil
}
