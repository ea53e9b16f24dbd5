package reconcile

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/childcare-cli/internal/model"
)

// Direction names the before-care or after-care half of an answer.
type Direction string

const (
	Before Direction = "before"
	After  Direction = "after"
)

// CitationIndexError reports a citation number outside the evidence list
// shown to the model.
type CitationIndexError struct {
	Direction Direction
	Index     int
	Length    int
}

func (e *CitationIndexError) Error() string {
	return fmt.Sprintf("%s care citation %d out of range: evidence has %d entries", e.Direction, e.Index, e.Length)
}

// evidenceEntry is the compact projection of a childcare row shown to the
// model. Field order is the rendering order.
type evidenceEntry struct {
	PageURL     string  `json:"page_url"`
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
}

// Evidence is the numbered list of page extractions behind one combined
// answer. Entry n is rendered as "[n]".
type Evidence struct {
	rows []model.ChildcareExtraction
}

// NewEvidence numbers rows in the order given.
func NewEvidence(rows []model.ChildcareExtraction) Evidence {
	return Evidence{rows: rows}
}

// Len returns the number of entries.
func (ev Evidence) Len() int {
	return len(ev.rows)
}

// Render returns the numbered list, one "[n] {json}" entry per row.
func (ev Evidence) Render() (string, error) {
	var b strings.Builder
	for i, r := range ev.rows {
		raw, err := json.Marshal(evidenceEntry{
			PageURL:                        r.PageURL,
			WebpageYear:                    r.WebpageYear,
			ProvidesBeforeCare:             r.ProvidesBeforeCare,
			BeforeCareStartTime:            r.BeforeCareStartTime,
			BeforeCareProvider:             r.BeforeCareProvider,
			BeforeCareQuoteSnippet:         r.BeforeCareQuoteSnippet,
			BeforeCareQuoteSnippetVerified: r.BeforeCareQuoteSnippetVerified,
			ProvidesAfterCare:              r.ProvidesAfterCare,
			AfterCareEndTime:               r.AfterCareEndTime,
			AfterCareProvider:              r.AfterCareProvider,
			AfterCareQuoteSnippet:          r.AfterCareQuoteSnippet,
			AfterCareQuoteSnippetVerified:  r.AfterCareQuoteSnippetVerified,
		})
		if err != nil {
			return "", eris.Wrapf(err, "reconcile: render evidence %d", i)
		}
		fmt.Fprintf(&b, "[%d] %s\n\n", i, raw)
	}
	return b.String(), nil
}

// Resolve maps citation numbers to the stored URL and quote of each cited
// entry, in the order given. Any out-of-range number fails the whole call.
func (ev Evidence) Resolve(dir Direction, indices []int) ([]model.CitationSnippet, error) {
	out := make([]model.CitationSnippet, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(ev.rows) {
			return nil, &CitationIndexError{Direction: dir, Index: idx, Length: len(ev.rows)}
		}
		r := ev.rows[idx]
		snippet := r.BeforeCareQuoteSnippet
		if dir == After {
			snippet = r.AfterCareQuoteSnippet
		}
		out = append(out, model.CitationSnippet{URL: model.Ptr(r.PageURL), Snippet: snippet})
	}
	return out, nil
}
