package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/soumtech/tender-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it,
// which keeps the Postgres store testable without a live database.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS tenders (
	id               UUID PRIMARY KEY,
	reference        TEXT NOT NULL UNIQUE,
	title            TEXT NOT NULL,
	organization     TEXT NOT NULL DEFAULT '',
	category         TEXT NOT NULL DEFAULT '',
	publication_date TIMESTAMPTZ,
	deadline         TIMESTAMPTZ,
	opening_date     TIMESTAMPTZ,
	budget_estimate  DOUBLE PRECISION,
	caution_amount   DOUBLE PRECISION,
	status           TEXT NOT NULL DEFAULT 'open',
	source_url       TEXT NOT NULL DEFAULT '',
	source_id        TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS documents (
	id                UUID PRIMARY KEY,
	tender_id         UUID NOT NULL REFERENCES tenders(id),
	filename          TEXT NOT NULL,
	type              TEXT NOT NULL DEFAULT 'other',
	file_size         BIGINT NOT NULL DEFAULT 0,
	download_url      TEXT NOT NULL DEFAULT '',
	ocr_status        TEXT NOT NULL DEFAULT 'pending',
	ocr_error         TEXT NOT NULL DEFAULT '',
	extraction_method TEXT NOT NULL DEFAULT '',
	page_count        INTEGER NOT NULL DEFAULT 0,
	extracted_text    TEXT,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS processing_states (
	tender_id   UUID PRIMARY KEY REFERENCES tenders(id),
	stage       TEXT NOT NULL DEFAULT 'pending',
	last_error  TEXT NOT NULL DEFAULT '',
	retry_count INTEGER NOT NULL DEFAULT 0,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS field_records (
	id            BIGSERIAL PRIMARY KEY,
	tender_id     UUID NOT NULL REFERENCES tenders(id),
	name          TEXT NOT NULL,
	value         TEXT NOT NULL,
	type          TEXT NOT NULL DEFAULT 'text',
	source        TEXT NOT NULL,
	document_id   UUID,
	document_type TEXT NOT NULL DEFAULT '',
	confidence    DOUBLE PRECISION NOT NULL DEFAULT 0,
	location      TEXT NOT NULL DEFAULT '',
	extracted_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS analysis_snapshots (
	id         BIGSERIAL PRIMARY KEY,
	tender_id  UUID NOT NULL REFERENCES tenders(id),
	kind       TEXT NOT NULL,
	version    INTEGER NOT NULL,
	model      TEXT NOT NULL DEFAULT '',
	payload    JSONB NOT NULL,
	tokens_in  BIGINT NOT NULL DEFAULT 0,
	tokens_out BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS conversations (
	id         BIGSERIAL PRIMARY KEY,
	tender_id  UUID NOT NULL REFERENCES tenders(id),
	question   TEXT NOT NULL,
	answer     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_documents_tender ON documents(tender_id);
CREATE INDEX IF NOT EXISTS idx_documents_ocr_status ON documents(ocr_status);
CREATE INDEX IF NOT EXISTS idx_states_stage ON processing_states(stage);
CREATE INDEX IF NOT EXISTS idx_field_records_tender ON field_records(tender_id, name);
CREATE INDEX IF NOT EXISTS idx_snapshots_tender_kind ON analysis_snapshots(tender_id, kind, version);
CREATE INDEX IF NOT EXISTS idx_conversations_tender ON conversations(tender_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// --- tenders ---

const pgSelectTender = `SELECT id, reference, title, organization, category, publication_date,
 deadline, opening_date, budget_estimate, caution_amount, status, source_url, source_id,
 created_at, updated_at FROM tenders`

func (s *PostgresStore) CreateTender(ctx context.Context, t *model.Tender) error {
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

	_, err := s.pool.Exec(ctx,
		`INSERT INTO tenders (id, reference, title, organization, category, publication_date,
		 deadline, opening_date, budget_estimate, caution_amount, status, source_url, source_id,
		 created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		t.ID, t.Reference, t.Title, t.Organization, t.Category,
		t.PublicationDate, t.Deadline, t.OpeningDate, t.BudgetEstimate, t.CautionAmount,
		string(t.Status), t.SourceURL, t.SourceID, t.CreatedAt, t.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: insert tender %s", t.Reference)
}

func (s *PostgresStore) GetTender(ctx context.Context, id uuid.UUID) (*model.Tender, error) {
	return scanPgTender(s.pool.QueryRow(ctx, pgSelectTender+` WHERE id = $1`, id))
}

func (s *PostgresStore) GetTenderByReference(ctx context.Context, reference string) (*model.Tender, error) {
	return scanPgTender(s.pool.QueryRow(ctx, pgSelectTender+` WHERE reference = $1`, reference))
}

func (s *PostgresStore) UpdateTender(ctx context.Context, t *model.Tender) error {
	t.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE tenders SET reference = $1, title = $2, organization = $3, category = $4,
		 publication_date = $5, deadline = $6, opening_date = $7, budget_estimate = $8,
		 caution_amount = $9, status = $10, source_url = $11, source_id = $12, updated_at = $13
		 WHERE id = $14`,
		t.Reference, t.Title, t.Organization, t.Category,
		t.PublicationDate, t.Deadline, t.OpeningDate, t.BudgetEstimate, t.CautionAmount,
		string(t.Status), t.SourceURL, t.SourceID, t.UpdatedAt, t.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update tender %s", t.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(model.ErrNotFound, "tender %s", t.ID)
	}
	return nil
}

func (s *PostgresStore) ListTenders(ctx context.Context, filter TenderFilter) ([]model.Tender, error) {
	query := pgSelectTender + ` WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $1`
	}
	if filter.Organization != "" {
		args = append(args, filter.Organization)
		query += ` AND organization = $` + itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list tenders")
	}
	defer rows.Close()

	var tenders []model.Tender
	for rows.Next() {
		t, err := scanPgTender(rows)
		if err != nil {
			return nil, err
		}
		tenders = append(tenders, *t)
	}
	return tenders, eris.Wrap(rows.Err(), "postgres: list tenders iterate")
}

// --- documents ---

const pgSelectDocument = `SELECT id, tender_id, filename, type, file_size, download_url,
 ocr_status, ocr_error, extraction_method, page_count, extracted_text, created_at, updated_at
 FROM documents`

func (s *PostgresStore) CreateDocument(ctx context.Context, d *model.Document) error {
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

	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, tender_id, filename, type, file_size, download_url,
		 ocr_status, ocr_error, extraction_method, page_count, extracted_text, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		d.ID, d.TenderID, d.Filename, string(d.Type), d.FileSize, d.DownloadURL,
		string(d.OCRStatus), d.OCRError, string(d.Method), d.PageCount,
		d.ExtractedText, d.CreatedAt, d.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: insert document %s", d.Filename)
}

func (s *PostgresStore) GetDocument(ctx context.Context, id uuid.UUID) (*model.Document, error) {
	return scanPgDocument(s.pool.QueryRow(ctx, pgSelectDocument+` WHERE id = $1`, id))
}

func (s *PostgresStore) ListDocuments(ctx context.Context, tenderID uuid.UUID) ([]model.Document, error) {
	rows, err := s.pool.Query(ctx, pgSelectDocument+` WHERE tender_id = $1 ORDER BY created_at`, tenderID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list documents")
	}
	defer rows.Close()
	return collectPgDocuments(rows)
}

func (s *PostgresStore) UpdateDocumentExtraction(ctx context.Context, d *model.Document) error {
	d.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET type = $1, ocr_status = $2, ocr_error = $3, extraction_method = $4,
		 page_count = $5, extracted_text = $6, updated_at = $7 WHERE id = $8`,
		string(d.Type), string(d.OCRStatus), d.OCRError, string(d.Method), d.PageCount,
		d.ExtractedText, d.UpdatedAt, d.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update document extraction %s", d.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(model.ErrNotFound, "document %s", d.ID)
	}
	return nil
}

func (s *PostgresStore) ListPendingDocuments(ctx context.Context, limit int) ([]model.Document, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		pgSelectDocument+` WHERE ocr_status = $1 ORDER BY created_at LIMIT $2`,
		string(model.OCRPending), limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pending documents")
	}
	defer rows.Close()
	return collectPgDocuments(rows)
}

// --- processing state ---

func (s *PostgresStore) GetState(ctx context.Context, tenderID uuid.UUID) (*model.ProcessingState, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT tender_id, stage, last_error, retry_count, updated_at
		 FROM processing_states WHERE tender_id = $1`, tenderID)

	var st model.ProcessingState
	err := row.Scan(&st.TenderID, &st.Stage, &st.LastError, &st.RetryCount, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(model.ErrNotFound, "postgres: state for tender %s", tenderID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get state")
	}
	return &st, nil
}

func (s *PostgresStore) SaveState(ctx context.Context, st *model.ProcessingState) error {
	st.UpdatedAt = time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO processing_states (tender_id, stage, last_error, retry_count, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (tender_id) DO UPDATE SET
		   stage = EXCLUDED.stage, last_error = EXCLUDED.last_error,
		   retry_count = EXCLUDED.retry_count, updated_at = EXCLUDED.updated_at`,
		st.TenderID, string(st.Stage), st.LastError, st.RetryCount, st.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: save state %s", st.TenderID)
}

func (s *PostgresStore) ListTendersInStage(ctx context.Context, stage model.Stage, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT tender_id FROM processing_states WHERE stage = $1 ORDER BY updated_at LIMIT $2`,
		string(stage), limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list tenders in stage")
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan tender id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "postgres: list tenders in stage iterate")
}

// --- field records ---

func (s *PostgresStore) AppendFieldRecords(ctx context.Context, records []model.FieldRecord) error {
	now := time.Now().UTC()
	for i := range records {
		r := &records[i]
		if r.ExtractedAt.IsZero() {
			r.ExtractedAt = now
		}
		row := s.pool.QueryRow(ctx,
			`INSERT INTO field_records (tender_id, name, value, type, source, document_id,
			 document_type, confidence, location, extracted_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
			r.TenderID, r.Name, r.Value, r.Type, string(r.Source), r.DocumentID,
			string(r.DocumentType), r.Confidence, r.Location, r.ExtractedAt,
		)
		if err := row.Scan(&r.ID); err != nil {
			return eris.Wrapf(err, "postgres: append field record %s", r.Name)
		}
	}
	return nil
}

func (s *PostgresStore) ListFieldRecords(ctx context.Context, tenderID uuid.UUID) ([]model.FieldRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tender_id, name, value, type, source, document_id, document_type,
		 confidence, location, extracted_at
		 FROM field_records WHERE tender_id = $1 ORDER BY id`, tenderID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list field records")
	}
	defer rows.Close()

	var records []model.FieldRecord
	for rows.Next() {
		var r model.FieldRecord
		err := rows.Scan(&r.ID, &r.TenderID, &r.Name, &r.Value, &r.Type, &r.Source,
			&r.DocumentID, &r.DocumentType, &r.Confidence, &r.Location, &r.ExtractedAt)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan field record")
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list field records iterate")
}

// --- snapshots ---

func (s *PostgresStore) SaveSnapshot(ctx context.Context, snap *model.AnalysisSnapshot) error {
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO analysis_snapshots (tender_id, kind, version, model, payload, tokens_in, tokens_out, created_at)
		 SELECT $1, $2, COALESCE(MAX(version), 0) + 1, $3, $4, $5, $6, $7
		 FROM analysis_snapshots WHERE tender_id = $1 AND kind = $2
		 RETURNING id, version`,
		snap.TenderID, string(snap.Kind), snap.Model, snap.Payload,
		snap.TokensIn, snap.TokensOut, snap.CreatedAt,
	)
	if err := row.Scan(&snap.ID, &snap.Version); err != nil {
		return eris.Wrapf(err, "postgres: insert snapshot %s/%s", snap.TenderID, snap.Kind)
	}
	return nil
}

func (s *PostgresStore) LatestSnapshot(ctx context.Context, tenderID uuid.UUID, kind model.AnalysisKind) (*model.AnalysisSnapshot, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, tender_id, kind, version, model, payload, tokens_in, tokens_out, created_at
		 FROM analysis_snapshots WHERE tender_id = $1 AND kind = $2
		 ORDER BY version DESC LIMIT 1`,
		tenderID, string(kind))

	var snap model.AnalysisSnapshot
	err := row.Scan(&snap.ID, &snap.TenderID, &snap.Kind, &snap.Version, &snap.Model,
		&snap.Payload, &snap.TokensIn, &snap.TokensOut, &snap.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(model.ErrNotFound, "postgres: %s snapshot for tender %s", kind, tenderID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get latest snapshot")
	}
	return &snap, nil
}

// --- conversations ---

func (s *PostgresStore) SaveExchange(ctx context.Context, ex *model.Exchange) error {
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now().UTC()
	}
	answerJSON, err := json.Marshal(ex.Answer)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal answer")
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO conversations (tender_id, question, answer, created_at)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		ex.TenderID, ex.Question, answerJSON, ex.CreatedAt,
	)
	return eris.Wrapf(row.Scan(&ex.ID), "postgres: insert exchange for %s", ex.TenderID)
}

func (s *PostgresStore) RecentExchanges(ctx context.Context, tenderID uuid.UUID, limit int) ([]model.Exchange, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, tender_id, question, answer, created_at FROM conversations
		 WHERE tender_id = $1 ORDER BY id DESC LIMIT $2`,
		tenderID, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: recent exchanges")
	}
	defer rows.Close()

	var out []model.Exchange
	for rows.Next() {
		var ex model.Exchange
		var answerJSON []byte
		if err := rows.Scan(&ex.ID, &ex.TenderID, &ex.Question, &answerJSON, &ex.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan exchange")
		}
		if err := json.Unmarshal(answerJSON, &ex.Answer); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal answer")
		}
		out = append(out, ex)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, eris.Wrap(rows.Err(), "postgres: recent exchanges iterate")
}

// --- helpers ---

type pgScannable interface {
	Scan(dest ...any) error
}

func scanPgTender(row pgScannable) (*model.Tender, error) {
	var t model.Tender
	err := row.Scan(&t.ID, &t.Reference, &t.Title, &t.Organization, &t.Category,
		&t.PublicationDate, &t.Deadline, &t.OpeningDate, &t.BudgetEstimate, &t.CautionAmount,
		&t.Status, &t.SourceURL, &t.SourceID, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(model.ErrNotFound, "tender")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan tender")
	}
	return &t, nil
}

func scanPgDocument(row pgScannable) (*model.Document, error) {
	var d model.Document
	err := row.Scan(&d.ID, &d.TenderID, &d.Filename, &d.Type, &d.FileSize, &d.DownloadURL,
		&d.OCRStatus, &d.OCRError, &d.Method, &d.PageCount, &d.ExtractedText,
		&d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(model.ErrNotFound, "document")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan document")
	}
	return &d, nil
}

func collectPgDocuments(rows pgx.Rows) ([]model.Document, error) {
	var docs []model.Document
	for rows.Next() {
		d, err := scanPgDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *d)
	}
	return docs, eris.Wrap(rows.Err(), "postgres: iterate documents")
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
