// Package fetcher reads the tabular input files the CLI loads: school lists
// for crawling and evaluation labels.
package fetcher

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// CSVOptions configures the streaming CSV parser.
type CSVOptions struct {
	Delimiter rune // default ','
	Comment   rune // comment character (0 = none)

	// Required lists header names that must be present after normalization.
	Required []string
}

// Record is one data row keyed by normalized header name.
type Record map[string]string

// Get returns the first non-empty value among the given column names.
func (r Record) Get(names ...string) string {
	for _, n := range names {
		if v := r[NormalizeHeader(n)]; v != "" {
			return v
		}
	}
	return ""
}

// NormalizeHeader lowercases a header and folds spaces and hyphens to
// underscores, so "School ID", "school-id" and "school_id" match.
func NormalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(h)
}

// StreamRecords reads a CSV with a header row and sends each data row as a
// Record. Caller must consume the returned record channel. Errors are sent
// on the error channel. Both channels are closed when processing completes.
func StreamRecords(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan Record, <-chan error) {
	recCh := make(chan Record, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(recCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		if opts.Comment != 0 {
			reader.Comment = opts.Comment
		}
		reader.FieldsPerRecord = -1 // allow ragged rows

		header, err := reader.Read()
		if err == io.EOF {
			errCh <- eris.New("csv: missing header row")
			return
		}
		if err != nil {
			errCh <- eris.Wrap(err, "csv: read header")
			return
		}
		for i, h := range header {
			header[i] = NormalizeHeader(h)
		}
		if missing := missingColumns(header, opts.Required); len(missing) > 0 {
			errCh <- eris.Errorf("csv: missing required columns: %s", strings.Join(missing, ", "))
			return
		}

		line := 1
		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			row, err := reader.Read()
			if err == io.EOF {
				return
			}
			line++
			if err != nil {
				errCh <- eris.Wrapf(err, "csv: read row %d", line)
				return
			}

			rec := make(Record, len(header))
			for i, name := range header {
				if i < len(row) {
					rec[name] = strings.TrimSpace(row[i])
				}
			}

			select {
			case recCh <- rec:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return recCh, errCh
}

// ReadRecords collects every record from StreamRecords.
func ReadRecords(ctx context.Context, r io.Reader, opts CSVOptions) ([]Record, error) {
	recCh, errCh := StreamRecords(ctx, r, opts)
	var out []Record
	for rec := range recCh {
		out = append(out, rec)
	}
	if err := <-errCh; err != nil {
		return out, err
	}
	return out, nil
}

func missingColumns(header, required []string) []string {
	have := make(map[string]bool, len(header))
	for _, h := range header {
		have[h] = true
	}
	var missing []string
	for _, r := range required {
		if !have[NormalizeHeader(r)] {
			missing = append(missing, r)
		}
	}
	return missing
}
