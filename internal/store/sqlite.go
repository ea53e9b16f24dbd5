package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/childcare-cli/internal/model"
)

var _ Store = (*SQLiteStore)(nil)

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
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS crawled_pages (
	id          TEXT PRIMARY KEY,
	crawl_index INTEGER NOT NULL DEFAULT 0,
	school_id   INTEGER NOT NULL,
	school_name TEXT NOT NULL,
	school_type TEXT NOT NULL,
	page_url    TEXT NOT NULL,
	page_title  TEXT,
	description TEXT,
	status_code INTEGER NOT NULL,
	markdown    TEXT,
	html        TEXT,
	crawled_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS contact_extractions (
	id              TEXT PRIMARY KEY,
	school_id       INTEGER NOT NULL,
	school_type     TEXT NOT NULL,
	page_url        TEXT NOT NULL,
	emails          TEXT NOT NULL DEFAULT '[]',
	is_contact_page INTEGER NOT NULL DEFAULT 0,
	care_details    TEXT NOT NULL DEFAULT '',
	model           TEXT NOT NULL,
	prompt_version  TEXT NOT NULL,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS childcare_extractions (
	id                                 TEXT PRIMARY KEY,
	school_id                          INTEGER NOT NULL,
	page_url                           TEXT NOT NULL,
	webpage_year                       TEXT,
	provides_before_care               INTEGER,
	before_care_start_time             TEXT,
	before_care_provider               TEXT,
	before_care_quote_snippet          TEXT,
	before_care_quote_snippet_verified INTEGER,
	provides_after_care                INTEGER,
	after_care_end_time                TEXT,
	after_care_provider                TEXT,
	after_care_quote_snippet           TEXT,
	after_care_quote_snippet_verified  INTEGER,
	model                              TEXT NOT NULL,
	prompt_version                     TEXT NOT NULL,
	created_at                         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS combined_extractions (
	id                            TEXT PRIMARY KEY,
	school_id                     INTEGER NOT NULL,
	provides_before_care          INTEGER,
	before_care_start_time        TEXT,
	before_care_provider          TEXT,
	before_care_citations         TEXT NOT NULL DEFAULT '[]',
	before_care_citation_snippets TEXT NOT NULL DEFAULT '[]',
	provides_after_care           INTEGER,
	after_care_end_time           TEXT,
	after_care_provider           TEXT,
	after_care_citations          TEXT NOT NULL DEFAULT '[]',
	after_care_citation_snippets  TEXT NOT NULL DEFAULT '[]',
	model                         TEXT NOT NULL,
	prompt_version                TEXT NOT NULL,
	created_at                    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS eval_labels (
	school_id  INTEGER NOT NULL,
	page_url   TEXT NOT NULL,
	label      TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_crawled_pages_school_page ON crawled_pages(school_id, page_url);
CREATE INDEX IF NOT EXISTS idx_contact_key ON contact_extractions(school_id, page_url, model, prompt_version);
CREATE INDEX IF NOT EXISTS idx_childcare_key ON childcare_extractions(school_id, page_url, model, prompt_version);
CREATE INDEX IF NOT EXISTS idx_combined_key ON combined_extractions(school_id, prompt_version);
CREATE INDEX IF NOT EXISTS idx_eval_labels_school_page ON eval_labels(school_id, page_url);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) AppendPages(ctx context.Context, pages []model.CrawledPage) (int64, error) {
	if len(pages) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin append pages")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO crawled_pages (`+pageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare append pages")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	for _, p := range pages {
		crawledAt := p.CrawledAt
		if crawledAt.IsZero() {
			crawledAt = now
		}
		_, err := stmt.ExecContext(ctx,
			uuid.New().String(), p.Index, p.SchoolID, p.SchoolName, p.SchoolType, p.URL,
			nullIfEmpty(p.Title), nullIfEmpty(p.Description), p.StatusCode,
			nullIfEmpty(p.Markdown), nullIfEmpty(p.HTML), crawledAt,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: append page %s", p.URL)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit append pages")
	}
	return int64(len(pages)), nil
}

func (s *SQLiteStore) CrawledSchoolIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT school_id FROM crawled_pages ORDER BY school_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: crawled school ids")
	}
	defer rows.Close() //nolint:errcheck
	return collectIDs(rows, "sqlite: crawled school ids")
}

func (s *SQLiteStore) Schools(ctx context.Context) ([]model.School, error) {
	rows, err := s.db.QueryContext(ctx, schoolsQuery)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: schools")
	}
	defer rows.Close() //nolint:errcheck
	return collectSchools(rows, "sqlite: schools")
}

func (s *SQLiteStore) PendingPages(ctx context.Context, f PendingFilter) ([]model.CrawledPage, error) {
	query, args, err := buildPendingQuery(dialectSQLite, f)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: pending pages for %s", f.Pass)
	}
	defer rows.Close() //nolint:errcheck

	var pages []model.CrawledPage
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: pending pages")
		}
		pages = append(pages, p)
	}
	return pages, eris.Wrap(rows.Err(), "sqlite: pending pages rows")
}

func (s *SQLiteStore) CountPending(ctx context.Context, f PendingFilter) (int64, error) {
	query, args, err := buildCountPendingQuery(dialectSQLite, f)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, eris.Wrapf(err, "sqlite: count pending pages for %s", f.Pass)
	}
	return n, nil
}

func (s *SQLiteStore) AppendExtraction(ctx context.Context, rec *model.ExtractionRecord) error {
	stampRecord(&rec.ID, &rec.CreatedAt)
	emails, err := json.Marshal(orEmpty(rec.Emails))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal emails")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO contact_extractions (id, school_id, school_type, page_url, emails, is_contact_page, care_details, model, prompt_version, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SchoolID, rec.SchoolType, rec.PageURL, string(emails), rec.IsContactPage,
		rec.CareDetails, rec.Model, rec.PromptVersion, rec.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: append contact extraction %s", rec.PageURL)
}

func (s *SQLiteStore) AppendChildcare(ctx context.Context, rec *model.ChildcareExtraction) error {
	stampRecord(&rec.ID, &rec.CreatedAt)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO childcare_extractions (`+childcareColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SchoolID, rec.PageURL, rec.WebpageYear,
		rec.ProvidesBeforeCare, rec.BeforeCareStartTime, rec.BeforeCareProvider, rec.BeforeCareQuoteSnippet, rec.BeforeCareQuoteSnippetVerified,
		rec.ProvidesAfterCare, rec.AfterCareEndTime, rec.AfterCareProvider, rec.AfterCareQuoteSnippet, rec.AfterCareQuoteSnippetVerified,
		rec.Model, rec.PromptVersion, rec.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: append childcare extraction %s", rec.PageURL)
}

func (s *SQLiteStore) PositiveChildcare(ctx context.Context, schoolID int64, source *model.ExtractionKey) ([]model.ChildcareExtraction, error) {
	query, args := buildPositiveChildcareQuery(dialectSQLite, schoolID, source)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: positive childcare for school %d", schoolID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ChildcareExtraction
	for rows.Next() {
		c, err := scanChildcare(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: positive childcare")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: positive childcare rows")
}

func (s *SQLiteStore) SchoolsPendingCombination(ctx context.Context, target CombineTarget) ([]int64, error) {
	query, args, err := buildPendingCombinationQuery(dialectSQLite, target)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: schools pending combination")
	}
	defer rows.Close() //nolint:errcheck
	return collectIDs(rows, "sqlite: schools pending combination")
}

func (s *SQLiteStore) AppendCombined(ctx context.Context, rec *model.CombinedExtraction) error {
	stampRecord(&rec.ID, &rec.CreatedAt)
	cites, err := combinedJSON(rec)
	if err != nil {
		return eris.Wrap(err, "sqlite: append combined extraction")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO combined_extractions (`+combinedColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SchoolID,
		rec.ProvidesBeforeCare, rec.BeforeCareStartTime, rec.BeforeCareProvider, string(cites[0]), string(cites[1]),
		rec.ProvidesAfterCare, rec.AfterCareEndTime, rec.AfterCareProvider, string(cites[2]), string(cites[3]),
		rec.Model, rec.PromptVersion, rec.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: append combined extraction for school %d", rec.SchoolID)
}

func (s *SQLiteStore) ListCombined(ctx context.Context, filter CombinedFilter) ([]model.CombinedExtraction, error) {
	query, args := buildListCombinedQuery(dialectSQLite, filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list combined")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.CombinedExtraction
	for rows.Next() {
		c, err := scanCombined(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: list combined")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list combined rows")
}

func (s *SQLiteStore) AppendEvalLabels(ctx context.Context, labels []model.EvalLabel) (int64, error) {
	if len(labels) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin append eval labels")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for _, l := range labels {
		createdAt := l.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO eval_labels (school_id, page_url, label, created_at) VALUES (?, ?, ?, ?)`,
			l.SchoolID, l.PageURL, nullIfEmpty(l.Label), createdAt,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: append eval label %s", l.PageURL)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit eval labels")
	}
	return int64(len(labels)), nil
}

type idRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func collectIDs(rows idRows, op string) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, op)
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), op)
}

func collectSchools(rows idRows, op string) ([]model.School, error) {
	var schools []model.School
	for rows.Next() {
		var sc model.School
		if err := rows.Scan(&sc.ID, &sc.Index, &sc.Name, &sc.Type); err != nil {
			return nil, eris.Wrap(err, op)
		}
		schools = append(schools, sc)
	}
	return schools, eris.Wrap(rows.Err(), op)
}

func stampRecord(id *string, createdAt *time.Time) {
	if *id == "" {
		*id = uuid.New().String()
	}
	if createdAt.IsZero() {
		*createdAt = time.Now().UTC()
	}
}
