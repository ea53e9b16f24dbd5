package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/childcare-cli/internal/extract"
	"github.com/sells-group/childcare-cli/internal/model"
	"github.com/sells-group/childcare-cli/internal/store"
)

// PageOptions selects the pages a per-page pass runs over.
type PageOptions struct {
	Key model.ExtractionKey

	// Upstream gates the childcare pass on pass-1 records with a non-empty
	// care blurb under this key. Ignored by the contact pass and in
	// evaluation mode, where the label alone selects the page.
	Upstream *model.ExtractionKey

	EvalOnly  bool
	SchoolIDs []int64
	Limit     int
}

// CombineOptions selects the schools the combine pass runs over.
type CombineOptions struct {
	Key model.ExtractionKey

	// Source restricts which childcare rows make a school eligible.
	Source *model.ExtractionKey

	SchoolIDs []int64
	Limit     int
}

// RunContact extracts emails, the contact-page flag and the care blurb from
// every pending page and appends one record per page.
func (r *Runner) RunContact(ctx context.Context, opts PageOptions) (model.PassSummary, error) {
	start := time.Now()
	before := r.costSoFar(model.PassContact)

	if err := extract.CheckVersion(model.PassContact, opts.Key.PromptVersion); err != nil {
		return model.PassSummary{Pass: model.PassContact, Key: opts.Key}, err
	}

	pages, err := r.store.PendingPages(ctx, store.PendingFilter{
		Pass:      model.PassContact,
		Target:    opts.Key,
		EvalOnly:  opts.EvalOnly,
		SchoolIDs: opts.SchoolIDs,
		Limit:     opts.Limit,
	})
	if err != nil {
		return model.PassSummary{Pass: model.PassContact, Key: opts.Key}, eris.Wrap(err, "pipeline: select contact pages")
	}
	zap.L().Info("pipeline: contact pass selected pages", zap.Int("pages", len(pages)), zap.String("key", opts.Key.String()))

	sum := forEach(ctx, r, model.PassContact, pages, func(ctx context.Context, page model.CrawledPage) (outcome, error) {
		log := pageLogger(page)
		rec, err := r.extractor.ExtractContact(ctx, page, opts.Key)
		if err != nil {
			log.Warn("pipeline: contact extraction failed, skipping page", zap.Error(err))
			return outcomeFailed, err
		}
		if err := r.store.AppendExtraction(ctx, rec); err != nil {
			log.Error("pipeline: append contact extraction failed", zap.Error(err))
			return outcomeFailed, err
		}
		log.Debug("pipeline: contact extraction stored",
			zap.Int("emails", len(rec.Emails)),
			zap.Bool("care_details", rec.CareDetails != ""),
		)
		return outcomeSuccess, nil
	})
	sum.Key = opts.Key

	return r.finish(ctx, sum, start, before), ctx.Err()
}

// RunChildcare extracts structured care details from every pending page
// and appends one record per page.
func (r *Runner) RunChildcare(ctx context.Context, opts PageOptions) (model.PassSummary, error) {
	start := time.Now()
	before := r.costSoFar(model.PassChildcare)

	if err := extract.CheckVersion(model.PassChildcare, opts.Key.PromptVersion); err != nil {
		return model.PassSummary{Pass: model.PassChildcare, Key: opts.Key}, err
	}

	upstream := opts.Upstream
	if opts.EvalOnly {
		upstream = nil
	}
	pages, err := r.store.PendingPages(ctx, store.PendingFilter{
		Pass:      model.PassChildcare,
		Target:    opts.Key,
		Upstream:  upstream,
		EvalOnly:  opts.EvalOnly,
		SchoolIDs: opts.SchoolIDs,
		Limit:     opts.Limit,
	})
	if err != nil {
		return model.PassSummary{Pass: model.PassChildcare, Key: opts.Key}, eris.Wrap(err, "pipeline: select childcare pages")
	}
	zap.L().Info("pipeline: childcare pass selected pages", zap.Int("pages", len(pages)), zap.String("key", opts.Key.String()))

	sum := forEach(ctx, r, model.PassChildcare, pages, func(ctx context.Context, page model.CrawledPage) (outcome, error) {
		log := pageLogger(page)
		rec, err := r.extractor.ExtractChildcare(ctx, page, opts.Key)
		if err != nil {
			log.Warn("pipeline: childcare extraction failed, skipping page", zap.Error(err))
			return outcomeFailed, err
		}
		if err := r.store.AppendChildcare(ctx, rec); err != nil {
			log.Error("pipeline: append childcare extraction failed", zap.Error(err))
			return outcomeFailed, err
		}
		log.Debug("pipeline: childcare extraction stored", zap.Bool("positive", rec.Positive()))
		return outcomeSuccess, nil
	})
	sum.Key = opts.Key

	return r.finish(ctx, sum, start, before), ctx.Err()
}

// RunCombine reconciles every school awaiting the target prompt version.
// Schools without current evidence write nothing and stay eligible.
func (r *Runner) RunCombine(ctx context.Context, opts CombineOptions) (model.PassSummary, error) {
	start := time.Now()
	before := r.costSoFar(model.PassCombine)

	if err := extract.CheckVersion(model.PassCombine, opts.Key.PromptVersion); err != nil {
		return model.PassSummary{Pass: model.PassCombine, Key: opts.Key}, err
	}

	ids, err := r.store.SchoolsPendingCombination(ctx, store.CombineTarget{
		PromptVersion: opts.Key.PromptVersion,
		Source:        opts.Source,
	})
	if err != nil {
		return model.PassSummary{Pass: model.PassCombine, Key: opts.Key}, eris.Wrap(err, "pipeline: select schools to combine")
	}
	ids = restrictSchools(ids, opts.SchoolIDs)
	if opts.Limit > 0 && len(ids) > opts.Limit {
		ids = ids[:opts.Limit]
	}
	zap.L().Info("pipeline: combine pass selected schools", zap.Int("schools", len(ids)), zap.String("key", opts.Key.String()))

	sum := forEach(ctx, r, model.PassCombine, ids, func(ctx context.Context, schoolID int64) (outcome, error) {
		log := zap.L().With(zap.Int64("school_id", schoolID))
		rec, err := r.combiner.Combine(ctx, schoolID, opts.Key)
		if err != nil {
			log.Warn("pipeline: combine failed, skipping school", zap.Error(err))
			return outcomeFailed, err
		}
		if rec == nil {
			log.Info("pipeline: no current evidence to combine")
			return outcomeEmpty, nil
		}
		if err := r.store.AppendCombined(ctx, rec); err != nil {
			log.Error("pipeline: append combined extraction failed", zap.Error(err))
			return outcomeFailed, err
		}
		return outcomeSuccess, nil
	})
	sum.Key = opts.Key

	return r.finish(ctx, sum, start, before), ctx.Err()
}

// AllOptions configures a full run of the three passes.
type AllOptions struct {
	Contact   model.ExtractionKey
	Childcare model.ExtractionKey
	Combine   model.ExtractionKey
	Source    *model.ExtractionKey
	EvalOnly  bool
	SchoolIDs []int64
	Limit     int
}

// RunAll runs contact, childcare and combine in order. Outside evaluation
// mode the childcare pass is gated on the contact key just written. It stops at the first pass that
// fails to select or is cancelled.
func (r *Runner) RunAll(ctx context.Context, opts AllOptions) ([]model.PassSummary, error) {
	var out []model.PassSummary

	sum, err := r.RunContact(ctx, PageOptions{
		Key: opts.Contact, EvalOnly: opts.EvalOnly, SchoolIDs: opts.SchoolIDs, Limit: opts.Limit,
	})
	out = append(out, sum)
	if err != nil {
		return out, err
	}

	childcare := PageOptions{Key: opts.Childcare, EvalOnly: opts.EvalOnly, SchoolIDs: opts.SchoolIDs, Limit: opts.Limit}
	if !opts.EvalOnly {
		upstream := opts.Contact
		childcare.Upstream = &upstream
	}
	sum, err = r.RunChildcare(ctx, childcare)
	out = append(out, sum)
	if err != nil {
		return out, err
	}

	sum, err = r.RunCombine(ctx, CombineOptions{
		Key: opts.Combine, Source: opts.Source, SchoolIDs: opts.SchoolIDs, Limit: opts.Limit,
	})
	out = append(out, sum)
	return out, err
}

func pageLogger(page model.CrawledPage) *zap.Logger {
	return zap.L().With(zap.Int64("school_id", page.SchoolID), zap.String("page_url", page.URL))
}

func restrictSchools(ids, only []int64) []int64 {
	if len(only) == 0 {
		return ids
	}
	keep := make(map[int64]struct{}, len(only))
	for _, id := range only {
		keep[id] = struct{}{}
	}
	var out []int64
	for _, id := range ids {
		if _, ok := keep[id]; ok {
			out = append(out, id)
		}
	}
	return out
}
