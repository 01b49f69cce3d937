package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/soumtech/tender-cli/internal/model"
	"github.com/soumtech/tender-cli/internal/store"
	"github.com/soumtech/tender-cli/pkg/anthropic"
)

// memStore is an in-memory Store for pipeline tests.
type memStore struct {
	mu         sync.Mutex
	tenders    map[uuid.UUID]*model.Tender
	documents  map[uuid.UUID]*model.Document
	docOrder   []uuid.UUID
	states     map[uuid.UUID]*model.ProcessingState
	records    []model.FieldRecord
	snapshots  []model.AnalysisSnapshot
	exchanges  []model.Exchange
	nextRecID  int64
	nextSnapID int64
	nextExID   int64
}

func newMemStore() *memStore {
	return &memStore{
		tenders:   make(map[uuid.UUID]*model.Tender),
		documents: make(map[uuid.UUID]*model.Document),
		states:    make(map[uuid.UUID]*model.ProcessingState),
	}
}

func (s *memStore) CreateTender(_ context.Context, t *model.Tender) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	cp := *t
	s.tenders[t.ID] = &cp
	return nil
}

func (s *memStore) GetTender(_ context.Context, id uuid.UUID) (*model.Tender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenders[id]
	if !ok {
		return nil, eris.Wrap(model.ErrNotFound, "memstore: tender")
	}
	cp := *t
	return &cp, nil
}

func (s *memStore) GetTenderByReference(_ context.Context, ref string) (*model.Tender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tenders {
		if t.Reference == ref {
			cp := *t
			return &cp, nil
		}
	}
	return nil, eris.Wrap(model.ErrNotFound, "memstore: tender by reference")
}

func (s *memStore) UpdateTender(_ context.Context, t *model.Tender) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenders[t.ID]; !ok {
		return eris.Wrap(model.ErrNotFound, "memstore: update tender")
	}
	cp := *t
	s.tenders[t.ID] = &cp
	return nil
}

func (s *memStore) ListTenders(_ context.Context, _ store.TenderFilter) ([]model.Tender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Tender, 0, len(s.tenders))
	for _, t := range s.tenders {
		out = append(out, *t)
	}
	return out, nil
}

func (s *memStore) CreateDocument(_ context.Context, d *model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.CreatedAt = time.Now().UTC()
	cp := *d
	s.documents[d.ID] = &cp
	s.docOrder = append(s.docOrder, d.ID)
	return nil
}

func (s *memStore) GetDocument(_ context.Context, id uuid.UUID) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[id]
	if !ok {
		return nil, eris.Wrap(model.ErrNotFound, "memstore: document")
	}
	cp := *d
	return &cp, nil
}

func (s *memStore) ListDocuments(_ context.Context, tenderID uuid.UUID) ([]model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Document
	for _, id := range s.docOrder {
		if d := s.documents[id]; d.TenderID == tenderID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *memStore) UpdateDocumentExtraction(_ context.Context, d *model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[d.ID]; !ok {
		return eris.Wrap(model.ErrNotFound, "memstore: update document")
	}
	cp := *d
	s.documents[d.ID] = &cp
	return nil
}

func (s *memStore) ListPendingDocuments(_ context.Context, limit int) ([]model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Document
	for _, d := range s.documents {
		if d.OCRStatus == model.OCRPending && len(out) < limit {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *memStore) GetState(_ context.Context, tenderID uuid.UUID) (*model.ProcessingState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[tenderID]
	if !ok {
		return nil, eris.Wrap(model.ErrNotFound, "memstore: state")
	}
	cp := *st
	return &cp, nil
}

func (s *memStore) SaveState(_ context.Context, st *model.ProcessingState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st.UpdatedAt = time.Now().UTC()
	cp := *st
	s.states[st.TenderID] = &cp
	return nil
}

func (s *memStore) ListTendersInStage(_ context.Context, stage model.Stage, limit int) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []uuid.UUID
	for id, st := range s.states {
		if st.Stage == stage && len(out) < limit {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *memStore) AppendFieldRecords(_ context.Context, records []model.FieldRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range records {
		s.nextRecID++
		records[i].ID = s.nextRecID
		s.records = append(s.records, records[i])
	}
	return nil
}

func (s *memStore) ListFieldRecords(_ context.Context, tenderID uuid.UUID) ([]model.FieldRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.FieldRecord
	for _, r := range s.records {
		if r.TenderID == tenderID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) SaveSnapshot(_ context.Context, snap *model.AnalysisSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSnapID++
	snap.ID = s.nextSnapID
	snap.Version = 1
	for _, old := range s.snapshots {
		if old.TenderID == snap.TenderID && old.Kind == snap.Kind && old.Version >= snap.Version {
			snap.Version = old.Version + 1
		}
	}
	snap.CreatedAt = time.Now().UTC()
	s.snapshots = append(s.snapshots, *snap)
	return nil
}

func (s *memStore) LatestSnapshot(_ context.Context, tenderID uuid.UUID, kind model.AnalysisKind) (*model.AnalysisSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *model.AnalysisSnapshot
	for i := range s.snapshots {
		snap := &s.snapshots[i]
		if snap.TenderID != tenderID || snap.Kind != kind {
			continue
		}
		if best == nil || snap.Version > best.Version {
			best = snap
		}
	}
	if best == nil {
		return nil, eris.Wrap(model.ErrNotFound, "memstore: snapshot")
	}
	cp := *best
	return &cp, nil
}

func (s *memStore) SaveExchange(_ context.Context, ex *model.Exchange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextExID++
	ex.ID = s.nextExID
	ex.CreatedAt = time.Now().UTC()
	s.exchanges = append(s.exchanges, *ex)
	return nil
}

func (s *memStore) RecentExchanges(_ context.Context, tenderID uuid.UUID, limit int) ([]model.Exchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []model.Exchange
	for _, ex := range s.exchanges {
		if ex.TenderID == tenderID {
			all = append(all, ex)
		}
	}
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (s *memStore) Migrate(context.Context) error { return nil }
func (s *memStore) Close() error                  { return nil }

// fakeLLM returns canned responses in order and counts calls. An optional
// delay keeps calls in flight long enough to observe deduplication.
type fakeLLM struct {
	mu        sync.Mutex
	responses []string
	requests  []anthropic.MessageRequest
	delay     time.Duration
	err       error
}

func (f *fakeLLM) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	n := len(f.requests)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	idx := n - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return &anthropic.MessageResponse{
		Model:   req.Model,
		Content: []anthropic.ContentBlock{{Type: "text", Text: f.responses[idx]}},
		Usage:   anthropic.TokenUsage{InputTokens: 100, OutputTokens: 50},
	}, nil
}

func (f *fakeLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeLLM) lastRequest() anthropic.MessageRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func (f *fakeLLM) request(i int) anthropic.MessageRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

// fakeFetcher serves canned bytes by URL.
type fakeFetcher struct {
	files map[string][]byte
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	data, ok := f.files[url]
	if !ok {
		return nil, eris.Errorf("fakefetcher: no fixture for %s", url)
	}
	return data, nil
}

// buildDOCX assembles a minimal word processing file holding the given
// paragraphs, good enough for the extraction engine.
func buildDOCX(paragraphs ...string) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("word/document.xml")

	var doc bytes.Buffer
	doc.WriteString(`<?xml version="1.0"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		doc.WriteString(`<w:p><w:r><w:t>`)
		doc.WriteString(p)
		doc.WriteString(`</w:t></w:r></w:p>`)
	}
	doc.WriteString(`</w:body></w:document>`)
	w.Write(doc.Bytes())
	zw.Close()
	return buf.Bytes()
}
