package model

import (
	"fmt"
	"time"
)

// Pass identifies one LLM stage of the pipeline.
type Pass string

const (
	// PassContact extracts emails, contact-page flag and a care blurb per page.
	PassContact Pass = "contact"
	// PassChildcare extracts structured before/after care details per page.
	PassChildcare Pass = "childcare"
	// PassCombine reconciles childcare extractions into one answer per school.
	PassCombine Pass = "combine"
)

// ExtractionKey is the (model, prompt version) half of a record's identity.
// Together with (school id, page URL) it decides whether a page was processed.
type ExtractionKey struct {
	Model         string `json:"model"`
	PromptVersion string `json:"prompt_version"`
}

func (k ExtractionKey) String() string {
	return fmt.Sprintf("%s@%s", k.Model, k.PromptVersion)
}

// ExtractionRecord is the pass-1 output for one page.
// An empty CareDetails means nothing about before/after care was found.
type ExtractionRecord struct {
	ID            string    `json:"id"`
	SchoolID      int64     `json:"school_id"`
	SchoolType    string    `json:"school_type"`
	PageURL       string    `json:"page_url"`
	Emails        []string  `json:"emails"`
	IsContactPage bool      `json:"is_contact_page"`
	CareDetails   string    `json:"before_or_after_care_details"`
	Model         string    `json:"model"`
	PromptVersion string    `json:"prompt_version"`
	CreatedAt     time.Time `json:"created_at"`
}

// Key returns the record's model/prompt key.
func (r ExtractionRecord) Key() ExtractionKey {
	return ExtractionKey{Model: r.Model, PromptVersion: r.PromptVersion}
}

// ChildcareExtraction is the pass-2 output for one page. Nil pointers mean
// the model reported the value as unknown.
type ChildcareExtraction struct {
	ID       string `json:"id"`
	SchoolID int64  `json:"school_id"`
	PageURL  string `json:"page_url"`

	WebpageYear *string `json:"webpage_year"`

	ProvidesBeforeCare             *bool   `json:"provides_before_care"`
	BeforeCareStartTime            *string `json:"before_care_start_time"`
	BeforeCareProvider             *string `json:"before_care_provider"`
	BeforeCareQuoteSnippet         *string `json:"before_care_quote_snippet"`
	BeforeCareQuoteSnippetVerified *bool   `json:"before_care_quote_snippet_verified"`

	ProvidesAfterCare             *bool   `json:"provides_after_care"`
	AfterCareEndTime              *string `json:"after_care_end_time"`
	AfterCareProvider             *string `json:"after_care_provider"`
	AfterCareQuoteSnippet         *string `json:"after_care_quote_snippet"`
	AfterCareQuoteSnippetVerified *bool   `json:"after_care_quote_snippet_verified"`

	Model         string    `json:"model"`
	PromptVersion string    `json:"prompt_version"`
	CreatedAt     time.Time `json:"created_at"`
}

// Positive reports whether the page claims before or after care is offered.
func (c ChildcareExtraction) Positive() bool {
	return isTrue(c.ProvidesBeforeCare) || isTrue(c.ProvidesAfterCare)
}

// CitationSnippet is one resolved citation: the page it came from and the
// quote that page's extraction recorded.
type CitationSnippet struct {
	URL     *string `json:"url"`
	Snippet *string `json:"snippet"`
}

// CombinedExtraction is the pass-3 answer for one school.
type CombinedExtraction struct {
	ID       string `json:"id"`
	SchoolID int64  `json:"school_id"`

	ProvidesBeforeCare         *bool             `json:"provides_before_care"`
	BeforeCareStartTime        *string           `json:"before_care_start_time"`
	BeforeCareProvider         *string           `json:"before_care_provider"`
	BeforeCareCitations        []int             `json:"before_care_citations"`
	BeforeCareCitationSnippets []CitationSnippet `json:"before_care_citation_snippets"`

	ProvidesAfterCare         *bool             `json:"provides_after_care"`
	AfterCareEndTime          *string           `json:"after_care_end_time"`
	AfterCareProvider         *string           `json:"after_care_provider"`
	AfterCareCitations        []int             `json:"after_care_citations"`
	AfterCareCitationSnippets []CitationSnippet `json:"after_care_citation_snippets"`

	Model         string    `json:"model"`
	PromptVersion string    `json:"prompt_version"`
	CreatedAt     time.Time `json:"created_at"`
}

func isTrue(b *bool) bool {
	return b != nil && *b
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
