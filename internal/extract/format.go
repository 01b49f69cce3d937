package extract

import (
	"archive/zip"
	"bytes"
	"path/filepath"
	"strings"
)

type format int

const (
	formatUnknown format = iota
	formatPDF
	formatDOCX
	formatXLSX
	formatLegacy
)

// detectFormat sniffs the payload before trusting the extension. OOXML files
// are zip archives, so the archive contents decide docx vs xlsx; legacy .doc
// and .xls are OLE compound files and unsupported.
func detectFormat(filename string, data []byte) format {
	if bytes.HasPrefix(data, []byte("%PDF")) {
		return formatPDF
	}

	// OLE compound file magic, the container of legacy Office binaries.
	if bytes.HasPrefix(data, []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}) {
		return formatLegacy
	}

	if bytes.HasPrefix(data, []byte("PK")) {
		if f := sniffOOXML(data); f != formatUnknown {
			return f
		}
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return formatPDF
	case ".docx":
		return formatDOCX
	case ".xlsx":
		return formatXLSX
	case ".doc", ".xls":
		return formatLegacy
	default:
		return formatUnknown
	}
}

func sniffOOXML(data []byte) format {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return formatUnknown
	}
	for _, f := range zr.File {
		switch strings.ReplaceAll(f.Name, "\\", "/") {
		case "word/document.xml":
			return formatDOCX
		case "xl/workbook.xml":
			return formatXLSX
		}
	}
	return formatUnknown
}
