package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/childcare-cli/internal/db"
	"github.com/sells-group/childcare-cli/internal/model"
)

var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	insertContactSQL = `INSERT INTO contact_extractions (id, school_id, school_type, page_url, emails, is_contact_page, care_details, model, prompt_version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	insertChildcareSQL = `INSERT INTO childcare_extractions (` + childcareColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
	insertCombinedSQL = `INSERT INTO combined_extractions (` + combinedColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
)

// preparedStatements lists the per-record appends prepared on each new
// connection.
var preparedStatements = map[string]string{
	"insert_contact":   insertContactSQL,
	"insert_childcare": insertChildcareSQL,
	"insert_combined":  insertCombinedSQL,
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

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS crawled_pages (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	crawl_index INTEGER NOT NULL DEFAULT 0,
	school_id   BIGINT NOT NULL,
	school_name TEXT NOT NULL,
	school_type TEXT NOT NULL,
	page_url    TEXT NOT NULL,
	page_title  TEXT,
	description TEXT,
	status_code INTEGER NOT NULL,
	markdown    TEXT,
	html        TEXT,
	crawled_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS contact_extractions (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	school_id       BIGINT NOT NULL,
	school_type     TEXT NOT NULL,
	page_url        TEXT NOT NULL,
	emails          JSONB NOT NULL DEFAULT '[]',
	is_contact_page BOOLEAN NOT NULL DEFAULT false,
	care_details    TEXT NOT NULL DEFAULT '',
	model           TEXT NOT NULL,
	prompt_version  TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS childcare_extractions (
	id                                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	school_id                          BIGINT NOT NULL,
	page_url                           TEXT NOT NULL,
	webpage_year                       TEXT,
	provides_before_care               BOOLEAN,
	before_care_start_time             TEXT,
	before_care_provider               TEXT,
	before_care_quote_snippet          TEXT,
	before_care_quote_snippet_verified BOOLEAN,
	provides_after_care                BOOLEAN,
	after_care_end_time                TEXT,
	after_care_provider                TEXT,
	after_care_quote_snippet           TEXT,
	after_care_quote_snippet_verified  BOOLEAN,
	model                              TEXT NOT NULL,
	prompt_version                     TEXT NOT NULL,
	created_at                         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS combined_extractions (
	id                            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	school_id                     BIGINT NOT NULL,
	provides_before_care          BOOLEAN,
	before_care_start_time        TEXT,
	before_care_provider          TEXT,
	before_care_citations         JSONB NOT NULL DEFAULT '[]',
	before_care_citation_snippets JSONB NOT NULL DEFAULT '[]',
	provides_after_care           BOOLEAN,
	after_care_end_time           TEXT,
	after_care_provider           TEXT,
	after_care_citations          JSONB NOT NULL DEFAULT '[]',
	after_care_citation_snippets  JSONB NOT NULL DEFAULT '[]',
	model                         TEXT NOT NULL,
	prompt_version                TEXT NOT NULL,
	created_at                    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS eval_labels (
	school_id  BIGINT NOT NULL,
	page_url   TEXT NOT NULL,
	label      TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_crawled_pages_school_page ON crawled_pages(school_id, page_url);
CREATE INDEX IF NOT EXISTS idx_contact_key ON contact_extractions(school_id, page_url, model, prompt_version);
CREATE INDEX IF NOT EXISTS idx_childcare_key ON childcare_extractions(school_id, page_url, model, prompt_version);
CREATE INDEX IF NOT EXISTS idx_combined_key ON combined_extractions(school_id, prompt_version);
CREATE INDEX IF NOT EXISTS idx_eval_labels_school_page ON eval_labels(school_id, page_url);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) AppendPages(ctx context.Context, pages []model.CrawledPage) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(pages))
	for _, p := range pages {
		crawledAt := p.CrawledAt
		if crawledAt.IsZero() {
			crawledAt = now
		}
		rows = append(rows, []any{
			uuid.New().String(), p.Index, p.SchoolID, p.SchoolName, p.SchoolType, p.URL,
			nullIfEmpty(p.Title), nullIfEmpty(p.Description), p.StatusCode,
			nullIfEmpty(p.Markdown), nullIfEmpty(p.HTML), crawledAt,
		})
	}

	n, err := db.CopyFrom(ctx, s.pool, "crawled_pages", strings.Split(pageColumns, ", "), rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: append pages")
	}
	return n, nil
}

func (s *PostgresStore) CrawledSchoolIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT school_id FROM crawled_pages ORDER BY school_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: crawled school ids")
	}
	defer rows.Close()
	return collectIDs(rows, "postgres: crawled school ids")
}

func (s *PostgresStore) Schools(ctx context.Context) ([]model.School, error) {
	rows, err := s.pool.Query(ctx, schoolsQuery)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: schools")
	}
	defer rows.Close()
	return collectSchools(rows, "postgres: schools")
}

func (s *PostgresStore) PendingPages(ctx context.Context, f PendingFilter) ([]model.CrawledPage, error) {
	query, args, err := buildPendingQuery(dialectPostgres, f)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: pending pages for %s", f.Pass)
	}
	defer rows.Close()

	var pages []model.CrawledPage
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: pending pages")
		}
		pages = append(pages, p)
	}
	return pages, eris.Wrap(rows.Err(), "postgres: pending pages rows")
}

func (s *PostgresStore) CountPending(ctx context.Context, f PendingFilter) (int64, error) {
	query, args, err := buildCountPendingQuery(dialectPostgres, f)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, eris.Wrapf(err, "postgres: count pending pages for %s", f.Pass)
	}
	return n, nil
}

func (s *PostgresStore) AppendExtraction(ctx context.Context, rec *model.ExtractionRecord) error {
	stampRecord(&rec.ID, &rec.CreatedAt)
	emails, err := json.Marshal(orEmpty(rec.Emails))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal emails")
	}

	_, err = s.pool.Exec(ctx, insertContactSQL,
		rec.ID, rec.SchoolID, rec.SchoolType, rec.PageURL, emails, rec.IsContactPage,
		rec.CareDetails, rec.Model, rec.PromptVersion, rec.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: append contact extraction %s", rec.PageURL)
}

func (s *PostgresStore) AppendChildcare(ctx context.Context, rec *model.ChildcareExtraction) error {
	stampRecord(&rec.ID, &rec.CreatedAt)
	_, err := s.pool.Exec(ctx, insertChildcareSQL,
		rec.ID, rec.SchoolID, rec.PageURL, rec.WebpageYear,
		rec.ProvidesBeforeCare, rec.BeforeCareStartTime, rec.BeforeCareProvider, rec.BeforeCareQuoteSnippet, rec.BeforeCareQuoteSnippetVerified,
		rec.ProvidesAfterCare, rec.AfterCareEndTime, rec.AfterCareProvider, rec.AfterCareQuoteSnippet, rec.AfterCareQuoteSnippetVerified,
		rec.Model, rec.PromptVersion, rec.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: append childcare extraction %s", rec.PageURL)
}

func (s *PostgresStore) PositiveChildcare(ctx context.Context, schoolID int64, source *model.ExtractionKey) ([]model.ChildcareExtraction, error) {
	query, args := buildPositiveChildcareQuery(dialectPostgres, schoolID, source)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: positive childcare for school %d", schoolID)
	}
	defer rows.Close()

	var out []model.ChildcareExtraction
	for rows.Next() {
		c, err := scanChildcare(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: positive childcare")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: positive childcare rows")
}

func (s *PostgresStore) SchoolsPendingCombination(ctx context.Context, target CombineTarget) ([]int64, error) {
	query, args, err := buildPendingCombinationQuery(dialectPostgres, target)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: schools pending combination")
	}
	defer rows.Close()
	return collectIDs(rows, "postgres: schools pending combination")
}

func (s *PostgresStore) AppendCombined(ctx context.Context, rec *model.CombinedExtraction) error {
	stampRecord(&rec.ID, &rec.CreatedAt)
	cites, err := combinedJSON(rec)
	if err != nil {
		return eris.Wrap(err, "postgres: append combined extraction")
	}

	_, err = s.pool.Exec(ctx, insertCombinedSQL,
		rec.ID, rec.SchoolID,
		rec.ProvidesBeforeCare, rec.BeforeCareStartTime, rec.BeforeCareProvider, cites[0], cites[1],
		rec.ProvidesAfterCare, rec.AfterCareEndTime, rec.AfterCareProvider, cites[2], cites[3],
		rec.Model, rec.PromptVersion, rec.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: append combined extraction for school %d", rec.SchoolID)
}

func (s *PostgresStore) ListCombined(ctx context.Context, filter CombinedFilter) ([]model.CombinedExtraction, error) {
	query, args := buildListCombinedQuery(dialectPostgres, filter)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list combined")
	}
	defer rows.Close()

	var out []model.CombinedExtraction
	for rows.Next() {
		c, err := scanCombined(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: list combined")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list combined rows")
}

func (s *PostgresStore) AppendEvalLabels(ctx context.Context, labels []model.EvalLabel) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(labels))
	for _, l := range labels {
		createdAt := l.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		rows = append(rows, []any{l.SchoolID, l.PageURL, nullIfEmpty(l.Label), createdAt})
	}

	n, err := db.CopyFrom(ctx, s.pool, "eval_labels", []string{"school_id", "page_url", "label", "created_at"}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: append eval labels")
	}
	return n, nil
}
