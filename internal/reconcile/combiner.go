// Package reconcile merges a school's per-page childcare extractions into
// one citation-backed answer.
package reconcile

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/childcare-cli/internal/extract"
	"github.com/sells-group/childcare-cli/internal/model"
)

// EvidenceSource loads the positive childcare rows of a school. A non-nil
// source key restricts rows to that model and prompt version.
type EvidenceSource interface {
	PositiveChildcare(ctx context.Context, schoolID int64, source *model.ExtractionKey) ([]model.ChildcareExtraction, error)
}

// Combiner runs the combine pass for one school at a time.
type Combiner struct {
	engine *extract.Engine
	rows   EvidenceSource
	source *model.ExtractionKey
}

// CombinerOption configures a Combiner.
type CombinerOption func(*Combiner)

// WithSource restricts evidence to childcare rows written under key.
func WithSource(key *model.ExtractionKey) CombinerOption {
	return func(c *Combiner) { c.source = key }
}

// NewCombiner creates a Combiner.
func NewCombiner(engine *extract.Engine, rows EvidenceSource, opts ...CombinerOption) *Combiner {
	c := &Combiner{engine: engine, rows: rows}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Combine produces the combined answer for a school. It returns nil, nil when
// the school has no current positive evidence. Citation snippets are rebuilt
// from the evidence list; a citation outside it fails with
// *CitationIndexError and no record is returned.
func (c *Combiner) Combine(ctx context.Context, schoolID int64, key model.ExtractionKey) (*model.CombinedExtraction, error) {
	log := zap.L().With(zap.Int64("school_id", schoolID), zap.String("prompt_version", key.PromptVersion))

	rows, err := c.rows.PositiveChildcare(ctx, schoolID, c.source)
	if err != nil {
		return nil, eris.Wrapf(err, "reconcile: load evidence for school %d", schoolID)
	}

	var current []model.ChildcareExtraction
	for _, r := range rows {
		if IsCurrentYear(r.WebpageYear) {
			current = append(current, r)
		}
	}
	if len(current) == 0 {
		log.Debug("no current evidence", zap.Int("positive_rows", len(rows)))
		return nil, nil
	}

	evidence := NewEvidence(current)
	list, err := evidence.Render()
	if err != nil {
		return nil, err
	}
	prompt, err := extract.CombinePrompt(key.PromptVersion, list)
	if err != nil {
		return nil, err
	}

	resp, err := extract.Structured(ctx, c.engine, extract.Request[extract.CombinedResponse]{
		Key:       key,
		Prompt:    prompt,
		Schema:    extract.CombinedSchema,
		LogFields: []zap.Field{zap.Int64("school_id", schoolID)},
	})
	if err != nil {
		return nil, err
	}

	before, err := evidence.Resolve(Before, resp.BeforeCareCitations)
	if err != nil {
		return nil, eris.Wrapf(err, "reconcile: school %d", schoolID)
	}
	after, err := evidence.Resolve(After, resp.AfterCareCitations)
	if err != nil {
		return nil, eris.Wrapf(err, "reconcile: school %d", schoolID)
	}

	log.Debug("combined school",
		zap.Int("evidence", evidence.Len()),
		zap.Int("stale_dropped", len(rows)-len(current)),
	)

	return &model.CombinedExtraction{
		SchoolID: schoolID,

		ProvidesBeforeCare:         resp.ProvidesBeforeCare,
		BeforeCareStartTime:        resp.BeforeCareStartTime,
		BeforeCareProvider:         resp.BeforeCareProvider,
		BeforeCareCitations:        orEmpty(resp.BeforeCareCitations),
		BeforeCareCitationSnippets: before,

		ProvidesAfterCare:         resp.ProvidesAfterCare,
		AfterCareEndTime:          resp.AfterCareEndTime,
		AfterCareProvider:         resp.AfterCareProvider,
		AfterCareCitations:        orEmpty(resp.AfterCareCitations),
		AfterCareCitationSnippets: after,

		Model:         key.Model,
		PromptVersion: key.PromptVersion,
	}, nil
}

func orEmpty(v []int) []int {
	if v == nil {
		return []int{}
	}
	return v
}
