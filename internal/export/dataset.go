// Package export writes the final per-school childcare dataset.
package export

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/childcare-cli/internal/model"
	"github.com/sells-group/childcare-cli/internal/store"
)

// Columns is the ordered header of the exported dataset.
var Columns = []string{
	"School ID",
	"School",
	"Type",
	"Provides Before Care",
	"Before Care Start Time",
	"Before Care Provider",
	"Before Care Info",
	"Provides After Care",
	"After Care End Time",
	"After Care Provider",
	"After Care Info",
	"Model",
	"Prompt Version",
}

// Filter selects which combined answers are exported.
type Filter struct {
	Model         string
	PromptVersion string

	// SchoolTypes keeps only schools whose type is listed. Empty keeps all.
	SchoolTypes []string
}

// Rows loads the latest combined answer per school and renders the dataset
// rows, sorted by school name and then id.
func Rows(ctx context.Context, st store.Store, f Filter) ([][]string, error) {
	combined, err := st.ListCombined(ctx, store.CombinedFilter{Model: f.Model, PromptVersion: f.PromptVersion})
	if err != nil {
		return nil, eris.Wrap(err, "export: list combined")
	}
	schools, err := st.Schools(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "export: list schools")
	}
	byID := make(map[int64]model.School, len(schools))
	for _, s := range schools {
		byID[s.ID] = s
	}

	keepType := make(map[string]bool, len(f.SchoolTypes))
	for _, t := range f.SchoolTypes {
		keepType[t] = true
	}

	// ListCombined orders newest first within a school.
	seen := make(map[int64]bool)
	type entry struct {
		school model.School
		rec    model.CombinedExtraction
	}
	var entries []entry
	for _, rec := range combined {
		if seen[rec.SchoolID] {
			continue
		}
		seen[rec.SchoolID] = true

		school, ok := byID[rec.SchoolID]
		if !ok {
			school = model.School{ID: rec.SchoolID}
		}
		if len(keepType) > 0 && !keepType[school.Type] {
			continue
		}
		entries = append(entries, entry{school: school, rec: rec})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].school.Name != entries[j].school.Name {
			return entries[i].school.Name < entries[j].school.Name
		}
		return entries[i].school.ID < entries[j].school.ID
	})

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, Row(e.school, e.rec))
	}
	return rows, nil
}

// Row renders one school's answer in Columns order.
func Row(school model.School, rec model.CombinedExtraction) []string {
	return []string{
		fmt.Sprintf("%d", rec.SchoolID),
		school.Name,
		school.Type,
		formatBool(rec.ProvidesBeforeCare),
		deref(rec.BeforeCareStartTime),
		deref(rec.BeforeCareProvider),
		FormatCitations(rec.BeforeCareCitationSnippets),
		formatBool(rec.ProvidesAfterCare),
		deref(rec.AfterCareEndTime),
		deref(rec.AfterCareProvider),
		FormatCitations(rec.AfterCareCitationSnippets),
		rec.Model,
		rec.PromptVersion,
	}
}

// FormatCitations renders resolved citations as one numbered link per line:
// "snippet" <a href="url" target="_blank" rel="noopener noreferrer">[n]</a>
func FormatCitations(snippets []model.CitationSnippet) string {
	var sb strings.Builder
	for i, c := range snippets {
		fmt.Fprintf(&sb, "\"%s\" <a href=\"%s\" target=\"_blank\" rel=\"noopener noreferrer\">[%d]</a>\n",
			deref(c.Snippet), deref(c.URL), i+1)
	}
	return sb.String()
}

func formatBool(b *bool) string {
	if b == nil {
		return ""
	}
	if *b {
		return "true"
	}
	return "false"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
