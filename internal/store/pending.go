package store

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/childcare-cli/internal/model"
)

// PendingFilter declares which crawled pages still need a pass. A page is
// pending when it was fetched with status 200, has a non-empty markdown body
// and has no row in the pass's table for the exact (school, page, model,
// prompt version) key. Changing Target re-admits every page.
type PendingFilter struct {
	Pass   model.Pass
	Target model.ExtractionKey

	// Upstream gates the childcare pass on the latest pass-1 record under
	// this key having a non-empty care blurb.
	Upstream *model.ExtractionKey

	// EvalOnly restricts selection to pages on the evaluation allow-list.
	// It replaces the upstream gate and cannot be combined with it.
	EvalOnly bool

	SchoolIDs []int64
	Limit     int
}

// Validate reports filters that cannot be compiled.
func (f PendingFilter) Validate() error {
	if _, err := passTable(f.Pass); err != nil {
		return err
	}
	if f.Target.Model == "" || f.Target.PromptVersion == "" {
		return eris.New("pending filter: target model and prompt version are required")
	}
	if f.Upstream != nil {
		if f.Pass != model.PassChildcare {
			return eris.Errorf("pending filter: upstream gate is only valid for the %s pass", model.PassChildcare)
		}
		if f.Upstream.Model == "" || f.Upstream.PromptVersion == "" {
			return eris.New("pending filter: upstream model and prompt version are required")
		}
		if f.EvalOnly {
			return eris.New("pending filter: evaluation mode and upstream gate are exclusive")
		}
	}
	if f.Limit < 0 {
		return eris.New("pending filter: limit must not be negative")
	}
	return nil
}

func passTable(p model.Pass) (string, error) {
	switch p {
	case model.PassContact:
		return "contact_extractions", nil
	case model.PassChildcare:
		return "childcare_extractions", nil
	default:
		return "", eris.Errorf("pending filter: no page-level table for pass %q", p)
	}
}

// dialect renders bind parameters for one SQL engine.
type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

type queryBuilder struct {
	dialect dialect
	args    []any
}

func (b *queryBuilder) bind(v any) string {
	b.args = append(b.args, v)
	if b.dialect == dialectPostgres {
		return "$" + strconv.Itoa(len(b.args))
	}
	return "?"
}

// buildPendingQuery compiles f into a NOT EXISTS anti-join.
func buildPendingQuery(d dialect, f PendingFilter) (string, []any, error) {
	if err := f.Validate(); err != nil {
		return "", nil, err
	}
	table, _ := passTable(f.Pass)

	b := &queryBuilder{dialect: d}
	var sb strings.Builder
	sb.WriteString("SELECT p.")
	sb.WriteString(strings.ReplaceAll(pageColumns, ", ", ", p."))
	sb.WriteString("\nFROM crawled_pages p")
	sb.WriteString("\nWHERE p.status_code = " + b.bind(model.StatusOK))
	sb.WriteString("\n  AND p.markdown IS NOT NULL AND TRIM(p.markdown) <> ''")

	sb.WriteString("\n  AND NOT EXISTS (SELECT 1 FROM " + table + " e")
	sb.WriteString(" WHERE e.school_id = p.school_id AND e.page_url = p.page_url")
	sb.WriteString(" AND e.model = " + b.bind(f.Target.Model))
	sb.WriteString(" AND e.prompt_version = " + b.bind(f.Target.PromptVersion) + ")")

	if f.EvalOnly {
		sb.WriteString("\n  AND EXISTS (SELECT 1 FROM eval_labels l")
		sb.WriteString(" WHERE l.school_id = p.school_id AND l.page_url = p.page_url)")
	}

	if f.Upstream != nil {
		sb.WriteString("\n  AND EXISTS (SELECT 1 FROM contact_extractions u")
		sb.WriteString(" WHERE u.school_id = p.school_id AND u.page_url = p.page_url")
		sb.WriteString(" AND u.model = " + b.bind(f.Upstream.Model))
		sb.WriteString(" AND u.prompt_version = " + b.bind(f.Upstream.PromptVersion))
		sb.WriteString(" AND u.care_details <> ''")
		sb.WriteString(" AND NOT EXISTS (SELECT 1 FROM contact_extractions n")
		sb.WriteString(" WHERE n.school_id = u.school_id AND n.page_url = u.page_url")
		sb.WriteString(" AND n.model = u.model AND n.prompt_version = u.prompt_version")
		sb.WriteString(" AND n.created_at > u.created_at))")
	}

	if len(f.SchoolIDs) > 0 {
		ph := make([]string, len(f.SchoolIDs))
		for i, id := range f.SchoolIDs {
			ph[i] = b.bind(id)
		}
		sb.WriteString("\n  AND p.school_id IN (" + strings.Join(ph, ", ") + ")")
	}

	sb.WriteString("\nORDER BY p.school_id, p.page_url, p.crawled_at")
	if f.Limit > 0 {
		sb.WriteString("\nLIMIT " + b.bind(f.Limit))
	}
	return sb.String(), b.args, nil
}

// buildCountPendingQuery counts the rows buildPendingQuery would return,
// ignoring Limit.
func buildCountPendingQuery(d dialect, f PendingFilter) (string, []any, error) {
	f.Limit = 0
	query, args, err := buildPendingQuery(d, f)
	if err != nil {
		return "", nil, err
	}
	return "SELECT COUNT(*) FROM (\n" + query + "\n) pending", args, nil
}

// buildPendingCombinationQuery selects schools with childcare rows and no
// combined row under the target prompt version.
func buildPendingCombinationQuery(d dialect, t CombineTarget) (string, []any, error) {
	if t.PromptVersion == "" {
		return "", nil, eris.New("combine target: prompt version is required")
	}

	b := &queryBuilder{dialect: d}
	var sb strings.Builder
	sb.WriteString("SELECT DISTINCT c.school_id FROM childcare_extractions c")
	sb.WriteString("\nWHERE NOT EXISTS (SELECT 1 FROM combined_extractions x")
	sb.WriteString(" WHERE x.school_id = c.school_id AND x.prompt_version = " + b.bind(t.PromptVersion) + ")")
	if t.Source != nil {
		sb.WriteString("\n  AND c.model = " + b.bind(t.Source.Model))
		sb.WriteString(" AND c.prompt_version = " + b.bind(t.Source.PromptVersion))
	}
	sb.WriteString("\nORDER BY c.school_id")
	return sb.String(), b.args, nil
}

// buildPositiveChildcareQuery selects a school's rows that claim before or
// after care is offered.
func buildPositiveChildcareQuery(d dialect, schoolID int64, source *model.ExtractionKey) (string, []any) {
	b := &queryBuilder{dialect: d}
	var sb strings.Builder
	sb.WriteString("SELECT " + childcareColumns + "\nFROM childcare_extractions")
	sb.WriteString("\nWHERE school_id = " + b.bind(schoolID))
	sb.WriteString("\n  AND (provides_before_care = " + b.bind(true) + " OR provides_after_care = " + b.bind(true) + ")")
	if source != nil {
		sb.WriteString("\n  AND model = " + b.bind(source.Model))
		sb.WriteString(" AND prompt_version = " + b.bind(source.PromptVersion))
	}
	sb.WriteString("\nORDER BY created_at, page_url")
	return sb.String(), b.args
}

func buildListCombinedQuery(d dialect, f CombinedFilter) (string, []any) {
	b := &queryBuilder{dialect: d}
	var conds []string
	if f.SchoolID != 0 {
		conds = append(conds, "school_id = "+b.bind(f.SchoolID))
	}
	if f.Model != "" {
		conds = append(conds, "model = "+b.bind(f.Model))
	}
	if f.PromptVersion != "" {
		conds = append(conds, "prompt_version = "+b.bind(f.PromptVersion))
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + combinedColumns + "\nFROM combined_extractions")
	if len(conds) > 0 {
		sb.WriteString("\nWHERE " + strings.Join(conds, " AND "))
	}
	sb.WriteString("\nORDER BY school_id, created_at DESC")

	limit := f.Limit
	if limit <= 0 && f.Offset > 0 {
		limit = -1
	}
	if limit != 0 {
		if limit < 0 && d == dialectPostgres {
			sb.WriteString("\nLIMIT ALL")
		} else {
			sb.WriteString("\nLIMIT " + b.bind(limit))
		}
	}
	if f.Offset > 0 {
		sb.WriteString(" OFFSET " + b.bind(f.Offset))
	}
	return sb.String(), b.args
}
