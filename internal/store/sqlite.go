package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/soumtech/tender-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS tenders (
	id               TEXT PRIMARY KEY,
	reference        TEXT NOT NULL UNIQUE,
	title            TEXT NOT NULL,
	organization     TEXT NOT NULL DEFAULT '',
	category         TEXT NOT NULL DEFAULT '',
	publication_date DATETIME,
	deadline         DATETIME,
	opening_date     DATETIME,
	budget_estimate  REAL,
	caution_amount   REAL,
	status           TEXT NOT NULL DEFAULT 'open',
	source_url       TEXT NOT NULL DEFAULT '',
	source_id        TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	id                TEXT PRIMARY KEY,
	tender_id         TEXT NOT NULL REFERENCES tenders(id),
	filename          TEXT NOT NULL,
	type              TEXT NOT NULL DEFAULT 'other',
	file_size         INTEGER NOT NULL DEFAULT 0,
	download_url      TEXT NOT NULL DEFAULT '',
	ocr_status        TEXT NOT NULL DEFAULT 'pending',
	ocr_error         TEXT NOT NULL DEFAULT '',
	extraction_method TEXT NOT NULL DEFAULT '',
	page_count        INTEGER NOT NULL DEFAULT 0,
	extracted_text    TEXT,
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS processing_states (
	tender_id   TEXT PRIMARY KEY REFERENCES tenders(id),
	stage       TEXT NOT NULL DEFAULT 'pending',
	last_error  TEXT NOT NULL DEFAULT '',
	retry_count INTEGER NOT NULL DEFAULT 0,
	updated_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS field_records (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	tender_id     TEXT NOT NULL REFERENCES tenders(id),
	name          TEXT NOT NULL,
	value         TEXT NOT NULL,
	type          TEXT NOT NULL DEFAULT 'text',
	source        TEXT NOT NULL,
	document_id   TEXT,
	document_type TEXT NOT NULL DEFAULT '',
	confidence    REAL NOT NULL DEFAULT 0,
	location      TEXT NOT NULL DEFAULT '',
	extracted_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS analysis_snapshots (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	tender_id  TEXT NOT NULL REFERENCES tenders(id),
	kind       TEXT NOT NULL,
	version    INTEGER NOT NULL,
	model      TEXT NOT NULL DEFAULT '',
	payload    TEXT NOT NULL,
	tokens_in  INTEGER NOT NULL DEFAULT 0,
	tokens_out INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS conversations (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	tender_id  TEXT NOT NULL REFERENCES tenders(id),
	question   TEXT NOT NULL,
	answer     TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_tender ON documents(tender_id);
CREATE INDEX IF NOT EXISTS idx_documents_ocr_status ON documents(ocr_status);
CREATE INDEX IF NOT EXISTS idx_states_stage ON processing_states(stage);
CREATE INDEX IF NOT EXISTS idx_field_records_tender ON field_records(tender_id, name);
CREATE INDEX IF NOT EXISTS idx_snapshots_tender_kind ON analysis_snapshots(tender_id, kind, version);
CREATE INDEX IF NOT EXISTS idx_conversations_tender ON conversations(tender_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- tenders ---

func (s *SQLiteStore) CreateTender(ctx context.Context, t *model.Tender) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if t.Status == "" {
		t.Status = model.TenderOpen
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenders (id, reference, title, organization, category, publication_date,
		 deadline, opening_date, budget_estimate, caution_amount, status, source_url, source_id,
		 created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID.String(), t.Reference, t.Title, t.Organization, t.Category,
		nullTime(t.PublicationDate), nullTime(t.Deadline), nullTime(t.OpeningDate),
		nullFloat(t.BudgetEstimate), nullFloat(t.CautionAmount),
		string(t.Status), t.SourceURL, t.SourceID, t.CreatedAt, t.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert tender %s", t.Reference)
}

func (s *SQLiteStore) GetTender(ctx context.Context, id uuid.UUID) (*model.Tender, error) {
	row := s.db.QueryRowContext(ctx, selectTender+` WHERE id = ?`, id.String())
	return scanTender(row)
}

func (s *SQLiteStore) GetTenderByReference(ctx context.Context, reference string) (*model.Tender, error) {
	row := s.db.QueryRowContext(ctx, selectTender+` WHERE reference = ?`, reference)
	return scanTender(row)
}

func (s *SQLiteStore) UpdateTender(ctx context.Context, t *model.Tender) error {
	t.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE tenders SET reference = ?, title = ?, organization = ?, category = ?,
		 publication_date = ?, deadline = ?, opening_date = ?, budget_estimate = ?,
		 caution_amount = ?, status = ?, source_url = ?, source_id = ?, updated_at = ?
		 WHERE id = ?`,
		t.Reference, t.Title, t.Organization, t.Category,
		nullTime(t.PublicationDate), nullTime(t.Deadline), nullTime(t.OpeningDate),
		nullFloat(t.BudgetEstimate), nullFloat(t.CautionAmount),
		string(t.Status), t.SourceURL, t.SourceID, t.UpdatedAt, t.ID.String(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update tender %s", t.ID)
	}
	return checkRowsAffected(res, "tender", t.ID.String())
}

func (s *SQLiteStore) ListTenders(ctx context.Context, filter TenderFilter) ([]model.Tender, error) {
	query := selectTender + ` WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Organization != "" {
		query += ` AND organization = ?`
		args = append(args, filter.Organization)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list tenders")
	}
	defer rows.Close()

	var tenders []model.Tender
	for rows.Next() {
		t, err := scanTender(rows)
		if err != nil {
			return nil, err
		}
		tenders = append(tenders, *t)
	}
	return tenders, eris.Wrap(rows.Err(), "sqlite: list tenders iterate")
}

// --- documents ---

func (s *SQLiteStore) CreateDocument(ctx context.Context, d *model.Document) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	if d.OCRStatus == "" {
		d.OCRStatus = model.OCRPending
	}
	if d.Type == "" {
		d.Type = model.DocOther
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, tender_id, filename, type, file_size, download_url,
		 ocr_status, ocr_error, extraction_method, page_count, extracted_text, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID.String(), d.TenderID.String(), d.Filename, string(d.Type), d.FileSize, d.DownloadURL,
		string(d.OCRStatus), d.OCRError, string(d.Method), d.PageCount,
		nullString(d.ExtractedText), d.CreatedAt, d.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert document %s", d.Filename)
}

func (s *SQLiteStore) GetDocument(ctx context.Context, id uuid.UUID) (*model.Document, error) {
	row := s.db.QueryRowContext(ctx, selectDocument+` WHERE id = ?`, id.String())
	return scanDocument(row)
}

func (s *SQLiteStore) ListDocuments(ctx context.Context, tenderID uuid.UUID) ([]model.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		selectDocument+` WHERE tender_id = ? ORDER BY created_at`, tenderID.String())
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list documents")
	}
	defer rows.Close()
	return collectDocuments(rows)
}

// UpdateDocumentExtraction persists the outcome of one extraction attempt:
// status, method, page count, error, text and the reclassified type move
// together in one write.
func (s *SQLiteStore) UpdateDocumentExtraction(ctx context.Context, d *model.Document) error {
	d.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET type = ?, ocr_status = ?, ocr_error = ?, extraction_method = ?,
		 page_count = ?, extracted_text = ?, updated_at = ? WHERE id = ?`,
		string(d.Type), string(d.OCRStatus), d.OCRError, string(d.Method), d.PageCount,
		nullString(d.ExtractedText), d.UpdatedAt, d.ID.String(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update document extraction %s", d.ID)
	}
	return checkRowsAffected(res, "document", d.ID.String())
}

func (s *SQLiteStore) ListPendingDocuments(ctx context.Context, limit int) ([]model.Document, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		selectDocument+` WHERE ocr_status = ? ORDER BY created_at LIMIT ?`,
		string(model.OCRPending), limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pending documents")
	}
	defer rows.Close()
	return collectDocuments(rows)
}

// --- processing state ---

func (s *SQLiteStore) GetState(ctx context.Context, tenderID uuid.UUID) (*model.ProcessingState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT tender_id, stage, last_error, retry_count, updated_at
		 FROM processing_states WHERE tender_id = ?`, tenderID.String())

	var st model.ProcessingState
	var id string
	err := row.Scan(&id, &st.Stage, &st.LastError, &st.RetryCount, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(model.ErrNotFound, "sqlite: state for tender %s", tenderID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get state")
	}
	st.TenderID, err = uuid.Parse(id)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: parse state tender id")
	}
	return &st, nil
}

func (s *SQLiteStore) SaveState(ctx context.Context, st *model.ProcessingState) error {
	st.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO processing_states (tender_id, stage, last_error, retry_count, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(tender_id) DO UPDATE SET
		   stage = excluded.stage, last_error = excluded.last_error,
		   retry_count = excluded.retry_count, updated_at = excluded.updated_at`,
		st.TenderID.String(), string(st.Stage), st.LastError, st.RetryCount, st.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: save state %s", st.TenderID)
}

func (s *SQLiteStore) ListTendersInStage(ctx context.Context, stage model.Stage, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT tender_id FROM processing_states WHERE stage = ? ORDER BY updated_at LIMIT ?`,
		string(stage), limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list tenders in stage")
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan tender id")
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: parse tender id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: list tenders in stage iterate")
}

// --- field records ---

func (s *SQLiteStore) AppendFieldRecords(ctx context.Context, records []model.FieldRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin append field records")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for i := range records {
		r := &records[i]
		if r.ExtractedAt.IsZero() {
			r.ExtractedAt = now
		}
		var docID any
		if r.DocumentID != nil {
			docID = r.DocumentID.String()
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO field_records (tender_id, name, value, type, source, document_id,
			 document_type, confidence, location, extracted_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.TenderID.String(), r.Name, r.Value, r.Type, string(r.Source), docID,
			string(r.DocumentType), r.Confidence, r.Location, r.ExtractedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: append field record %s", r.Name)
		}
		if id, err := res.LastInsertId(); err == nil {
			r.ID = id
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit field records")
}

func (s *SQLiteStore) ListFieldRecords(ctx context.Context, tenderID uuid.UUID) ([]model.FieldRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tender_id, name, value, type, source, document_id, document_type,
		 confidence, location, extracted_at
		 FROM field_records WHERE tender_id = ? ORDER BY id`, tenderID.String())
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list field records")
	}
	defer rows.Close()

	var records []model.FieldRecord
	for rows.Next() {
		var r model.FieldRecord
		var tid string
		var docID sql.NullString
		err := rows.Scan(&r.ID, &tid, &r.Name, &r.Value, &r.Type, &r.Source,
			&docID, &r.DocumentType, &r.Confidence, &r.Location, &r.ExtractedAt)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan field record")
		}
		if r.TenderID, err = uuid.Parse(tid); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse record tender id")
		}
		if docID.Valid {
			parsed, err := uuid.Parse(docID.String)
			if err != nil {
				return nil, eris.Wrap(err, "sqlite: parse record document id")
			}
			r.DocumentID = &parsed
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list field records iterate")
}

// --- snapshots ---

func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap *model.AnalysisSnapshot) error {
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM analysis_snapshots WHERE tender_id = ? AND kind = ?`,
		snap.TenderID.String(), string(snap.Kind))
	if err := row.Scan(&snap.Version); err != nil {
		return eris.Wrap(err, "sqlite: next snapshot version")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO analysis_snapshots (tender_id, kind, version, model, payload, tokens_in, tokens_out, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.TenderID.String(), string(snap.Kind), snap.Version, snap.Model,
		string(snap.Payload), snap.TokensIn, snap.TokensOut, snap.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert snapshot %s/%s", snap.TenderID, snap.Kind)
	}
	if id, err := res.LastInsertId(); err == nil {
		snap.ID = id
	}
	return nil
}

func (s *SQLiteStore) LatestSnapshot(ctx context.Context, tenderID uuid.UUID, kind model.AnalysisKind) (*model.AnalysisSnapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, tender_id, kind, version, model, payload, tokens_in, tokens_out, created_at
		 FROM analysis_snapshots WHERE tender_id = ? AND kind = ?
		 ORDER BY version DESC LIMIT 1`,
		tenderID.String(), string(kind))

	var snap model.AnalysisSnapshot
	var tid, payload string
	err := row.Scan(&snap.ID, &tid, &snap.Kind, &snap.Version, &snap.Model,
		&payload, &snap.TokensIn, &snap.TokensOut, &snap.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(model.ErrNotFound, "sqlite: %s snapshot for tender %s", kind, tenderID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get latest snapshot")
	}
	if snap.TenderID, err = uuid.Parse(tid); err != nil {
		return nil, eris.Wrap(err, "sqlite: parse snapshot tender id")
	}
	snap.Payload = []byte(payload)
	return &snap, nil
}

// --- conversations ---

func (s *SQLiteStore) SaveExchange(ctx context.Context, ex *model.Exchange) error {
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now().UTC()
	}
	answerJSON, err := json.Marshal(ex.Answer)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal answer")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (tender_id, question, answer, created_at) VALUES (?, ?, ?, ?)`,
		ex.TenderID.String(), ex.Question, string(answerJSON), ex.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert exchange for %s", ex.TenderID)
	}
	if id, err := res.LastInsertId(); err == nil {
		ex.ID = id
	}
	return nil
}

func (s *SQLiteStore) RecentExchanges(ctx context.Context, tenderID uuid.UUID, limit int) ([]model.Exchange, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tender_id, question, answer, created_at FROM conversations
		 WHERE tender_id = ? ORDER BY id DESC LIMIT ?`,
		tenderID.String(), limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: recent exchanges")
	}
	defer rows.Close()

	var out []model.Exchange
	for rows.Next() {
		var ex model.Exchange
		var tid, answerJSON string
		if err := rows.Scan(&ex.ID, &tid, &ex.Question, &answerJSON, &ex.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan exchange")
		}
		if ex.TenderID, err = uuid.Parse(tid); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse exchange tender id")
		}
		if err := json.Unmarshal([]byte(answerJSON), &ex.Answer); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal answer")
		}
		out = append(out, ex)
	}
	// Oldest first, the order conversations are threaded in.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, eris.Wrap(rows.Err(), "sqlite: recent exchanges iterate")
}

// --- helpers ---

const selectTender = `SELECT id, reference, title, organization, category, publication_date,
 deadline, opening_date, budget_estimate, caution_amount, status, source_url, source_id,
 created_at, updated_at FROM tenders`

const selectDocument = `SELECT id, tender_id, filename, type, file_size, download_url,
 ocr_status, ocr_error, extraction_method, page_count, extracted_text, created_at, updated_at
 FROM documents`

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(model.ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTender(row scannable) (*model.Tender, error) {
	var t model.Tender
	var id string
	var pub, deadline, opening sql.NullTime
	var budget, caution sql.NullFloat64

	err := row.Scan(&id, &t.Reference, &t.Title, &t.Organization, &t.Category,
		&pub, &deadline, &opening, &budget, &caution,
		&t.Status, &t.SourceURL, &t.SourceID, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(model.ErrNotFound, "tender")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan tender")
	}

	if t.ID, err = uuid.Parse(id); err != nil {
		return nil, eris.Wrap(err, "sqlite: parse tender id")
	}
	t.PublicationDate = timePtr(pub)
	t.Deadline = timePtr(deadline)
	t.OpeningDate = timePtr(opening)
	t.BudgetEstimate = floatPtr(budget)
	t.CautionAmount = floatPtr(caution)
	return &t, nil
}

func scanDocument(row scannable) (*model.Document, error) {
	var d model.Document
	var id, tid string
	var text sql.NullString

	err := row.Scan(&id, &tid, &d.Filename, &d.Type, &d.FileSize, &d.DownloadURL,
		&d.OCRStatus, &d.OCRError, &d.Method, &d.PageCount, &text, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(model.ErrNotFound, "document")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan document")
	}

	if d.ID, err = uuid.Parse(id); err != nil {
		return nil, eris.Wrap(err, "sqlite: parse document id")
	}
	if d.TenderID, err = uuid.Parse(tid); err != nil {
		return nil, eris.Wrap(err, "sqlite: parse document tender id")
	}
	if text.Valid {
		d.ExtractedText = &text.String
	}
	return &d, nil
}

func collectDocuments(rows *sql.Rows) ([]model.Document, error) {
	var docs []model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *d)
	}
	return docs, eris.Wrap(rows.Err(), "sqlite: iterate documents")
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	f := n.Float64
	return &f
}
