// Package store persists crawled pages and the append-only extraction
// tables written by each pipeline pass.
package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/childcare-cli/internal/model"
)

// CombinedFilter specifies criteria for listing combined extractions.
type CombinedFilter struct {
	SchoolID      int64  `json:"school_id,omitempty"`
	Model         string `json:"model,omitempty"`
	PromptVersion string `json:"prompt_version,omitempty"`
	Limit         int    `json:"limit,omitempty"`
	Offset        int    `json:"offset,omitempty"`
}

// CombineTarget selects schools awaiting reconciliation. Schools with a
// combined row under PromptVersion are excluded. Source, when set, restricts
// the childcare rows that make a school eligible.
type CombineTarget struct {
	PromptVersion string
	Source        *model.ExtractionKey
}

// Store defines the persistence interface for the childcare pipeline.
// Every extraction table is append-only; nothing is updated or deleted.
type Store interface {
	// Crawled pages
	AppendPages(ctx context.Context, pages []model.CrawledPage) (int64, error)
	CrawledSchoolIDs(ctx context.Context) ([]int64, error)
	Schools(ctx context.Context) ([]model.School, error)
	PendingPages(ctx context.Context, f PendingFilter) ([]model.CrawledPage, error)
	CountPending(ctx context.Context, f PendingFilter) (int64, error)

	// Pass 1
	AppendExtraction(ctx context.Context, rec *model.ExtractionRecord) error

	// Pass 2
	AppendChildcare(ctx context.Context, rec *model.ChildcareExtraction) error
	PositiveChildcare(ctx context.Context, schoolID int64, source *model.ExtractionKey) ([]model.ChildcareExtraction, error)

	// Pass 3
	SchoolsPendingCombination(ctx context.Context, target CombineTarget) ([]int64, error)
	AppendCombined(ctx context.Context, rec *model.CombinedExtraction) error
	ListCombined(ctx context.Context, filter CombinedFilter) ([]model.CombinedExtraction, error)

	// Evaluation allow-list
	AppendEvalLabels(ctx context.Context, labels []model.EvalLabel) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// schoolsQuery derives one row per crawled school from its pages.
const schoolsQuery = `SELECT school_id, MIN(crawl_index), MAX(school_name), MAX(school_type)
FROM crawled_pages
GROUP BY school_id
ORDER BY school_id`

const pageColumns = `id, crawl_index, school_id, school_name, school_type, page_url, page_title, description, status_code, markdown, html, crawled_at`

const childcareColumns = `id, school_id, page_url, webpage_year,
	provides_before_care, before_care_start_time, before_care_provider, before_care_quote_snippet, before_care_quote_snippet_verified,
	provides_after_care, after_care_end_time, after_care_provider, after_care_quote_snippet, after_care_quote_snippet_verified,
	model, prompt_version, created_at`

const combinedColumns = `id, school_id,
	provides_before_care, before_care_start_time, before_care_provider, before_care_citations, before_care_citation_snippets,
	provides_after_care, after_care_end_time, after_care_provider, after_care_citations, after_care_citation_snippets,
	model, prompt_version, created_at`

type scannable interface {
	Scan(dest ...any) error
}

func scanPage(row scannable) (model.CrawledPage, error) {
	var p model.CrawledPage
	var title, desc, markdown, html *string
	err := row.Scan(&p.ID, &p.Index, &p.SchoolID, &p.SchoolName, &p.SchoolType, &p.URL,
		&title, &desc, &p.StatusCode, &markdown, &html, &p.CrawledAt)
	if err != nil {
		return p, eris.Wrap(err, "scan page")
	}
	p.Title = deref(title)
	p.Description = deref(desc)
	p.Markdown = deref(markdown)
	p.HTML = deref(html)
	return p, nil
}

func scanChildcare(row scannable) (model.ChildcareExtraction, error) {
	var c model.ChildcareExtraction
	err := row.Scan(&c.ID, &c.SchoolID, &c.PageURL, &c.WebpageYear,
		&c.ProvidesBeforeCare, &c.BeforeCareStartTime, &c.BeforeCareProvider, &c.BeforeCareQuoteSnippet, &c.BeforeCareQuoteSnippetVerified,
		&c.ProvidesAfterCare, &c.AfterCareEndTime, &c.AfterCareProvider, &c.AfterCareQuoteSnippet, &c.AfterCareQuoteSnippetVerified,
		&c.Model, &c.PromptVersion, &c.CreatedAt)
	if err != nil {
		return c, eris.Wrap(err, "scan childcare extraction")
	}
	return c, nil
}

func scanCombined(row scannable) (model.CombinedExtraction, error) {
	var c model.CombinedExtraction
	var beforeCites, beforeSnips, afterCites, afterSnips []byte
	err := row.Scan(&c.ID, &c.SchoolID,
		&c.ProvidesBeforeCare, &c.BeforeCareStartTime, &c.BeforeCareProvider, &beforeCites, &beforeSnips,
		&c.ProvidesAfterCare, &c.AfterCareEndTime, &c.AfterCareProvider, &afterCites, &afterSnips,
		&c.Model, &c.PromptVersion, &c.CreatedAt)
	if err != nil {
		return c, eris.Wrap(err, "scan combined extraction")
	}
	for _, f := range []struct {
		raw []byte
		dst any
	}{
		{beforeCites, &c.BeforeCareCitations},
		{beforeSnips, &c.BeforeCareCitationSnippets},
		{afterCites, &c.AfterCareCitations},
		{afterSnips, &c.AfterCareCitationSnippets},
	} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return c, eris.Wrap(err, "unmarshal citations")
		}
	}
	return c, nil
}

// combinedJSON encodes the four citation columns of a combined row.
func combinedJSON(rec *model.CombinedExtraction) ([4][]byte, error) {
	var out [4][]byte
	for i, v := range []any{
		orEmpty(rec.BeforeCareCitations),
		orEmpty(rec.BeforeCareCitationSnippets),
		orEmpty(rec.AfterCareCitations),
		orEmpty(rec.AfterCareCitationSnippets),
	} {
		b, err := json.Marshal(v)
		if err != nil {
			return out, eris.Wrap(err, "marshal citations")
		}
		out[i] = b
	}
	return out, nil
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
