package ingest

import (
	"context"
	"io"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/childcare-cli/internal/fetcher"
	"github.com/sells-group/childcare-cli/internal/model"
)

// ReadSchools parses a school list. Required columns: school_id and
// website_url; index, name and type are optional.
func ReadSchools(ctx context.Context, r io.Reader) ([]model.School, error) {
	recs, err := fetcher.ReadRecords(ctx, r, fetcher.CSVOptions{Required: []string{"school_id"}})
	if err != nil {
		return nil, eris.Wrap(err, "ingest: read schools")
	}

	schools := make([]model.School, 0, len(recs))
	for i, rec := range recs {
		id, err := strconv.ParseInt(rec.Get("school_id"), 10, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: row %d: invalid school_id %q", i+2, rec.Get("school_id"))
		}
		s := model.School{
			ID:         id,
			Name:       rec.Get("name", "school_name"),
			Type:       rec.Get("type", "school_type"),
			WebsiteURL: rec.Get("website_url", "websiteurl", "url"),
		}
		if v := rec.Get("index"); v != "" {
			idx, err := strconv.Atoi(v)
			if err != nil {
				return nil, eris.Wrapf(err, "ingest: row %d: invalid index %q", i+2, v)
			}
			s.Index = idx
		}
		schools = append(schools, s)
	}
	return schools, nil
}

// ReadEvalLabels parses an evaluation allow-list with school_id and
// page_url columns and an optional label.
func ReadEvalLabels(ctx context.Context, r io.Reader) ([]model.EvalLabel, error) {
	recs, err := fetcher.ReadRecords(ctx, r, fetcher.CSVOptions{Required: []string{"school_id", "page_url"}})
	if err != nil {
		return nil, eris.Wrap(err, "ingest: read eval labels")
	}

	labels := make([]model.EvalLabel, 0, len(recs))
	for i, rec := range recs {
		id, err := strconv.ParseInt(rec.Get("school_id"), 10, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: row %d: invalid school_id %q", i+2, rec.Get("school_id"))
		}
		url := rec.Get("page_url")
		if url == "" {
			return nil, eris.Errorf("ingest: row %d: empty page_url", i+2)
		}
		labels = append(labels, model.EvalLabel{SchoolID: id, PageURL: url, Label: rec.Get("label")})
	}
	return labels, nil
}
