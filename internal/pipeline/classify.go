package pipeline

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/soumtech/tender-cli/internal/model"
)

// classifyWindow is how much of the document head is scanned for type
// keywords. Titles and headings live in the first pages.
const classifyWindow = 3000

var typeKeywords = map[model.DocumentType][]string{
	model.DocRC: {
		"reglement de consultation",
		"reglement de la consultation",
		"r.c.",
	},
	model.DocCPS: {
		"cahier des prescriptions speciales",
		"cahier des prescriptions techniques",
		"c.p.s",
	},
	model.DocAnnexe: {
		"annexe",
		"additif",
		"avenant",
		"bordereau des prix",
	},
	model.DocAvis: {
		"avis d'appel d'offres",
		"avis de consultation",
		"avis rectificatif",
	},
}

// Order matters: an annexe to the CPS mentions the CPS, so the more
// specific types are checked first.
var classifyOrder = []model.DocumentType{
	model.DocAnnexe, model.DocRC, model.DocCPS, model.DocAvis,
}

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldAccents strips diacritics so "règlement" matches "reglement".
func foldAccents(s string) string {
	out, _, err := transform.String(foldTransformer, s)
	if err != nil {
		return s
	}
	return out
}

// ClassifyDocument infers a document's role from its extracted text,
// falling back to the declared type when no keyword matches.
func ClassifyDocument(declared model.DocumentType, text string) model.DocumentType {
	if text == "" {
		return declaredOrOther(declared)
	}

	head := text
	if len(head) > classifyWindow {
		head = head[:classifyWindow]
	}
	head = strings.ToLower(foldAccents(head))

	for _, docType := range classifyOrder {
		for _, kw := range typeKeywords[docType] {
			if strings.Contains(head, kw) {
				return docType
			}
		}
	}
	return declaredOrOther(declared)
}

func declaredOrOther(declared model.DocumentType) model.DocumentType {
	if declared == "" {
		return model.DocOther
	}
	return declared
}
