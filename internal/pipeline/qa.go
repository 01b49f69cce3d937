package pipeline

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/soumtech/tender-cli/internal/model"
	"github.com/soumtech/tender-cli/pkg/anthropic"
)

const qaSystemPrompt = `Tu es un assistant spécialisé dans les marchés publics marocains. Tu réponds aux questions des soumissionnaires en te fondant EXCLUSIVEMENT sur les documents fournis. Chaque affirmation factuelle doit citer le document d'origine. Si les documents ne contiennent pas la réponse, dis-le clairement au lieu d'inventer. Réponds dans la langue indiquée. Réponds UNIQUEMENT avec un objet JSON de la forme:
{"answer": "...", "citations": [{"document": "nom du fichier", "excerpt": "extrait exact", "location": "page ou section"}], "confidence": 0.0, "follow_up_suggestions": ["..."]}`

const ungroundedCaveat = "Attention: cette réponse n'a pas pu être vérifiée dans les documents du dossier."

// Darija function words that do not occur in standard Arabic prose. A single
// hit flips detection from ar to ar-ma.
var darijaMarkers = []string{
	"شنو", "كيفاش", "فين", "علاش", "واش", "شحال",
	"خاص", "بغيت", "عندي", "ديال", "ماشي", "كاين",
}

var englishMarkers = []string{
	"what", "when", "where", "which", "how", "who",
	"is", "are", "does", "the", "deadline", "can",
}

var frenchMarkers = []string{
	"quel", "quelle", "quels", "quelles", "quand", "comment",
	"est", "sont", "le", "la", "les", "combien", "date", "délai",
}

// DetectLanguage classifies a question as French, Moroccan Darija, standard
// Arabic or English. Arabic script wins on character ratio; Darija is Arabic
// script plus at least one Darija marker. Latin text defaults to French, the
// working language of Moroccan procurement.
func DetectLanguage(question string) string {
	var arabic, letters int
	for _, r := range question {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.Is(unicode.Arabic, r) {
			arabic++
		}
	}
	if letters == 0 {
		return model.LangFrench
	}

	if float64(arabic)/float64(letters) > 0.3 {
		for _, marker := range darijaMarkers {
			if strings.Contains(question, marker) {
				return model.LangDarija
			}
		}
		return model.LangArabic
	}

	words := strings.Fields(strings.ToLower(question))
	var en, fr int
	for _, w := range words {
		w = strings.Trim(w, ".,;:!?'\"()")
		for _, m := range englishMarkers {
			if w == m {
				en++
			}
		}
		for _, m := range frenchMarkers {
			if w == m {
				fr++
			}
		}
	}
	if en > fr {
		return model.LangEnglish
	}
	return model.LangFrench
}

// qaReply is the raw model output before citation validation.
type qaReply struct {
	Answer     string           `json:"answer"`
	Citations  []model.Citation `json:"citations"`
	Confidence float64          `json:"confidence"`
	FollowUps  []string         `json:"follow_up_suggestions"`
}

// Ask answers a question about one tender, grounded in its extracted
// documents. Citations the model claims are validated against the document
// set it was actually shown; confidence never exceeds what the surviving
// citations support. The exchange is stored for follow-up threading.
func (p *Pipeline) Ask(ctx context.Context, tenderID uuid.UUID, question string) (*model.Answer, error) {
	tender, err := p.store.GetTender(ctx, tenderID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load tender")
	}

	docs, err := p.store.ListDocuments(ctx, tenderID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list documents")
	}
	var withText []model.Document
	for _, d := range docs {
		if d.HasText() {
			withText = append(withText, d)
		}
	}
	if len(withText) == 0 {
		return nil, eris.Wrapf(model.ErrAnalysisUnavailable, "pipeline: tender %s has no extracted text", tenderID)
	}

	lang := DetectLanguage(question)

	history, err := p.store.RecentExchanges(ctx, tenderID, p.historyDepth())
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load history")
	}

	messages := make([]anthropic.Message, 0, 2*len(history)+1)
	for _, ex := range history {
		messages = append(messages,
			anthropic.Message{Role: "user", Content: ex.Question},
			anthropic.Message{Role: "assistant", Content: ex.Answer.Text},
		)
	}
	messages = append(messages, anthropic.Message{
		Role:    "user",
		Content: "Langue de réponse: " + lang + "\nQuestion: " + question,
	})

	// The dossier context repeats across follow-up questions; a cached
	// system block keeps it out of per-turn input tokens.
	system := []anthropic.SystemBlock{{Text: qaSystemPrompt}}
	system = append(system, anthropic.BuildCachedSystemBlocks(p.qaContext(ctx, tender, withText))...)

	temp := 0.0
	resp, err := p.callModel(ctx, "qa", anthropic.MessageRequest{
		Model:       p.models.QAModel,
		MaxTokens:   int64(p.models.MaxTokens),
		System:      system,
		Messages:    messages,
		Temperature: &temp,
	})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: qa call")
	}

	var reply qaReply
	if _, err := decodeModelJSON(resp.Text(), &reply); err != nil {
		return nil, eris.Wrap(err, "pipeline: parse qa reply")
	}

	answer := p.validateAnswer(&reply, withText, lang)

	ex := &model.Exchange{TenderID: tenderID, Question: question, Answer: *answer}
	if err := p.store.SaveExchange(ctx, ex); err != nil {
		return nil, eris.Wrap(err, "pipeline: save exchange")
	}

	zap.L().Info("question answered",
		zap.String("tender_id", tenderID.String()),
		zap.String("language", lang),
		zap.Int("citations", len(answer.Citations)),
		zap.Bool("grounded", answer.Grounded),
		zap.Float64("confidence", answer.Confidence),
	)
	return answer, nil
}

// qaContext assembles the dossier context: a tender header, the latest
// notice analysis when one exists, then the document texts under the
// configured budget split evenly so no single file crowds out the rest.
func (p *Pipeline) qaContext(ctx context.Context, tender *model.Tender, docs []model.Document) string {
	perDoc := p.contextBudget() / len(docs)
	if max := p.maxDocChars(); perDoc > max {
		perDoc = max
	}

	var sb strings.Builder
	sb.WriteString("Appel d'offres: ")
	sb.WriteString(tender.Reference)
	if tender.Title != "" {
		sb.WriteString(" - ")
		sb.WriteString(tender.Title)
	}
	sb.WriteString("\n")
	if tender.Organization != "" {
		sb.WriteString("Organisme: ")
		sb.WriteString(tender.Organization)
		sb.WriteString("\n")
	}
	if tender.Deadline != nil {
		sb.WriteString("Date limite: ")
		sb.WriteString(tender.Deadline.Format("2006-01-02"))
		sb.WriteString("\n")
	}

	if snap, err := p.store.LatestSnapshot(ctx, tender.ID, model.AnalysisShallow); err == nil {
		sb.WriteString("\nSynthèse de l'avis:\n")
		sb.Write(snap.Payload)
		sb.WriteString("\n")
	}

	sb.WriteString("\nDocuments du dossier:\n")
	for _, d := range docs {
		sb.WriteString("\n=== Document: ")
		sb.WriteString(d.Filename)
		sb.WriteString(" (")
		sb.WriteString(string(d.Type))
		sb.WriteString(") ===\n")
		sb.WriteString(truncate(d.Text(), perDoc))
		sb.WriteString("\n")
	}
	return sb.String()
}

// validateAnswer drops citations naming documents the model was never shown
// and caps confidence by citation coverage: an answer with no surviving
// citation can never score above 0.2, full coverage keeps the model's own
// estimate.
func (p *Pipeline) validateAnswer(reply *qaReply, docs []model.Document, lang string) *model.Answer {
	known := make(map[string]bool, len(docs))
	for _, d := range docs {
		known[strings.ToLower(d.Filename)] = true
	}

	var valid []model.Citation
	for _, c := range reply.Citations {
		if known[strings.ToLower(c.Document)] {
			valid = append(valid, c)
		}
	}

	coverage := 0.0
	if len(reply.Citations) > 0 {
		coverage = float64(len(valid)) / float64(len(reply.Citations))
	}
	confidence := reply.Confidence
	if limit := 0.2 + 0.8*coverage; confidence > limit {
		confidence = limit
	}

	grounded := len(valid) > 0
	text := reply.Answer
	if !grounded {
		text = text + "\n\n" + ungroundedCaveat
	}

	return &model.Answer{
		Text:        text,
		Language:    lang,
		Citations:   valid,
		Confidence:  confidence,
		FollowUps:   reply.FollowUps,
		Grounded:    grounded,
		GeneratedAt: time.Now().UTC(),
	}
}

func (p *Pipeline) historyDepth() int {
	if p.cfg.HistoryDepth > 0 {
		return p.cfg.HistoryDepth
	}
	return 5
}

func (p *Pipeline) contextBudget() int {
	if p.cfg.QAContextBudget > 0 {
		return p.cfg.QAContextBudget
	}
	return 100000
}
