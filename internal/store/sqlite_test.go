package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/childcare-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

var (
	haikuV1 = model.ExtractionKey{Model: "claude-haiku-4-5-20251001", PromptVersion: "v1"}
	haikuV2 = model.ExtractionKey{Model: "claude-haiku-4-5-20251001", PromptVersion: "v2"}
	sonnet1 = model.ExtractionKey{Model: "claude-sonnet-4-5-20250929", PromptVersion: "v1"}
)

func seedPages(t *testing.T, st Store) {
	t.Helper()
	n, err := st.AppendPages(context.Background(), []model.CrawledPage{
		{SchoolID: 100, SchoolName: "Peirce", SchoolType: "Neighborhood", URL: "https://peirce.example/", Title: "Home", StatusCode: 200, Markdown: "# Welcome"},
		{SchoolID: 100, SchoolName: "Peirce", SchoolType: "Neighborhood", URL: "https://peirce.example/care", StatusCode: 200, Markdown: "Before care runs 7:00-8:00 am."},
		{SchoolID: 100, SchoolName: "Peirce", SchoolType: "Neighborhood", URL: "https://peirce.example/missing", StatusCode: 404, Markdown: "Not found"},
		{SchoolID: 200, SchoolName: "Hale", SchoolType: "Magnet", URL: "https://hale.example/", StatusCode: 200, Markdown: ""},
		{SchoolID: 200, SchoolName: "Hale", SchoolType: "Magnet", URL: "https://hale.example/contact", StatusCode: 200, Markdown: "office@hale.example"},
	})
	require.NoError(t, err)
	require.Equal(t, int64(5), n)
}

func urls(pages []model.CrawledPage) []string {
	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = p.URL
	}
	return out
}

func TestSQLite_AppendPages_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)
	n, err := st.AppendPages(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLite_CrawledSchoolIDs(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedPages(t, st)

	ids, err := st.CrawledSchoolIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{100, 200}, ids)
}

func TestSQLite_Schools(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedPages(t, st)

	schools, err := st.Schools(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.School{
		{ID: 100, Name: "Peirce", Type: "Neighborhood"},
		{ID: 200, Name: "Hale", Type: "Magnet"},
	}, schools)
}

func TestSQLite_PendingPages_OnlySuccessfulWithBody(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedPages(t, st)

	pages, err := st.PendingPages(context.Background(), PendingFilter{Pass: model.PassContact, Target: haikuV1})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://peirce.example/",
		"https://peirce.example/care",
		"https://hale.example/contact",
	}, urls(pages))

	assert.Equal(t, "Home", pages[0].Title)
	assert.Equal(t, "Peirce", pages[0].SchoolName)
	assert.False(t, pages[0].CrawledAt.IsZero())
}

func TestSQLite_PendingPages_ReadmitsOnKeyChange(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedPages(t, st)

	require.NoError(t, st.AppendExtraction(ctx, &model.ExtractionRecord{
		SchoolID: 100, SchoolType: "Neighborhood", PageURL: "https://peirce.example/care",
		Model: haikuV1.Model, PromptVersion: haikuV1.PromptVersion,
	}))

	pending, err := st.PendingPages(ctx, PendingFilter{Pass: model.PassContact, Target: haikuV1})
	require.NoError(t, err)
	assert.NotContains(t, urls(pending), "https://peirce.example/care")
	assert.Len(t, pending, 2)

	// A different prompt version or model re-admits the page.
	for _, key := range []model.ExtractionKey{haikuV2, sonnet1} {
		pending, err := st.PendingPages(ctx, PendingFilter{Pass: model.PassContact, Target: key})
		require.NoError(t, err)
		assert.Contains(t, urls(pending), "https://peirce.example/care", key.String())
		assert.Len(t, pending, 3)
	}
}

func TestSQLite_PendingPages_EvalOnly(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedPages(t, st)

	n, err := st.AppendEvalLabels(ctx, []model.EvalLabel{
		{SchoolID: 200, PageURL: "https://hale.example/contact", Label: "contact"},
		{SchoolID: 100, PageURL: "https://peirce.example/missing"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	pending, err := st.PendingPages(ctx, PendingFilter{Pass: model.PassContact, Target: haikuV1, EvalOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://hale.example/contact"}, urls(pending))
}

func TestSQLite_PendingPages_UpstreamGate(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedPages(t, st)

	for _, rec := range []*model.ExtractionRecord{
		{SchoolID: 100, PageURL: "https://peirce.example/care", CareDetails: "YMCA before care 7-8am", Model: haikuV1.Model, PromptVersion: haikuV1.PromptVersion},
		{SchoolID: 100, PageURL: "https://peirce.example/", CareDetails: "", Model: haikuV1.Model, PromptVersion: haikuV1.PromptVersion},
		{SchoolID: 200, PageURL: "https://hale.example/contact", CareDetails: "After care until 6pm", Model: haikuV2.Model, PromptVersion: haikuV2.PromptVersion},
	} {
		require.NoError(t, st.AppendExtraction(ctx, rec))
	}

	upstream := haikuV1
	f := PendingFilter{Pass: model.PassChildcare, Target: haikuV1, Upstream: &upstream}
	pending, err := st.PendingPages(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://peirce.example/care"}, urls(pending))

	require.NoError(t, st.AppendChildcare(ctx, &model.ChildcareExtraction{
		SchoolID: 100, PageURL: "https://peirce.example/care", Model: haikuV1.Model, PromptVersion: haikuV1.PromptVersion,
	}))
	pending, err = st.PendingPages(ctx, f)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSQLite_PendingPages_UpstreamLatestRowWins(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedPages(t, st)

	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, rec := range []*model.ExtractionRecord{
		{SchoolID: 100, PageURL: "https://peirce.example/care", CareDetails: "YMCA before care 7-8am", CreatedAt: older},
		{SchoolID: 100, PageURL: "https://peirce.example/care", CareDetails: "", CreatedAt: older.Add(time.Hour)},
		{SchoolID: 100, PageURL: "https://peirce.example/", CareDetails: "", CreatedAt: older},
		{SchoolID: 100, PageURL: "https://peirce.example/", CareDetails: "After care until 6pm", CreatedAt: older.Add(time.Hour)},
	} {
		rec.Model, rec.PromptVersion = haikuV1.Model, haikuV1.PromptVersion
		require.NoError(t, st.AppendExtraction(ctx, rec))
	}

	upstream := haikuV1
	pending, err := st.PendingPages(ctx, PendingFilter{Pass: model.PassChildcare, Target: haikuV1, Upstream: &upstream})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://peirce.example/"}, urls(pending))
}

func TestSQLite_PendingPages_EvalChildcareIgnoresBlurb(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedPages(t, st)

	require.NoError(t, st.AppendExtraction(ctx, &model.ExtractionRecord{
		SchoolID: 100, PageURL: "https://peirce.example/care", CareDetails: "", Model: haikuV1.Model, PromptVersion: haikuV1.PromptVersion,
	}))
	_, err := st.AppendEvalLabels(ctx, []model.EvalLabel{{SchoolID: 100, PageURL: "https://peirce.example/care"}})
	require.NoError(t, err)

	pending, err := st.PendingPages(ctx, PendingFilter{Pass: model.PassChildcare, Target: haikuV1, EvalOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://peirce.example/care"}, urls(pending))
}

func TestSQLite_PendingPages_LimitAndSchools(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedPages(t, st)

	pending, err := st.PendingPages(context.Background(), PendingFilter{
		Pass: model.PassContact, Target: haikuV1, SchoolIDs: []int64{100}, Limit: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://peirce.example/"}, urls(pending))
}

func TestSQLite_CountPending(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedPages(t, st)

	f := PendingFilter{Pass: model.PassContact, Target: haikuV1, Limit: 1}
	n, err := st.CountPending(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.NoError(t, st.AppendExtraction(ctx, &model.ExtractionRecord{
		SchoolID: 200, PageURL: "https://hale.example/contact", Model: haikuV1.Model, PromptVersion: haikuV1.PromptVersion,
	}))
	n, err = st.CountPending(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = st.CountPending(ctx, PendingFilter{Pass: model.PassContact})
	assert.Error(t, err)
}

func TestSQLite_PendingPages_InvalidFilter(t *testing.T) {
	st := newTestSQLiteStore(t)
	_, err := st.PendingPages(context.Background(), PendingFilter{Pass: model.PassCombine, Target: haikuV1})
	require.Error(t, err)
}

func TestSQLite_PositiveChildcare(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rows := []*model.ChildcareExtraction{
		{SchoolID: 100, PageURL: "https://peirce.example/care", WebpageYear: model.Ptr("2024-2025"),
			ProvidesBeforeCare: model.Ptr(true), BeforeCareStartTime: model.Ptr("7:00 am"),
			BeforeCareQuoteSnippet: model.Ptr("Before care runs 7:00-8:00 am."), BeforeCareQuoteSnippetVerified: model.Ptr(true),
			Model: haikuV1.Model, PromptVersion: haikuV1.PromptVersion},
		{SchoolID: 100, PageURL: "https://peirce.example/", ProvidesBeforeCare: model.Ptr(false), ProvidesAfterCare: model.Ptr(false),
			Model: haikuV1.Model, PromptVersion: haikuV1.PromptVersion},
		{SchoolID: 100, PageURL: "https://peirce.example/old", ProvidesAfterCare: model.Ptr(true),
			Model: sonnet1.Model, PromptVersion: sonnet1.PromptVersion},
		{SchoolID: 200, PageURL: "https://hale.example/care", ProvidesAfterCare: model.Ptr(true),
			Model: haikuV1.Model, PromptVersion: haikuV1.PromptVersion},
	}
	for _, r := range rows {
		require.NoError(t, st.AppendChildcare(ctx, r))
		assert.NotEmpty(t, r.ID)
	}

	all, err := st.PositiveChildcare(ctx, 100, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)

	src := haikuV1
	scoped, err := st.PositiveChildcare(ctx, 100, &src)
	require.NoError(t, err)
	require.Len(t, scoped, 1)

	got := scoped[0]
	assert.Equal(t, "https://peirce.example/care", got.PageURL)
	assert.Equal(t, "2024-2025", *got.WebpageYear)
	assert.True(t, *got.ProvidesBeforeCare)
	assert.Nil(t, got.ProvidesAfterCare)
	assert.True(t, *got.BeforeCareQuoteSnippetVerified)
	assert.Nil(t, got.AfterCareQuoteSnippetVerified)
}

func TestSQLite_SchoolsPendingCombination(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for _, r := range []*model.ChildcareExtraction{
		{SchoolID: 100, PageURL: "https://peirce.example/care", Model: haikuV1.Model, PromptVersion: haikuV1.PromptVersion},
		{SchoolID: 200, PageURL: "https://hale.example/care", Model: sonnet1.Model, PromptVersion: sonnet1.PromptVersion},
	} {
		require.NoError(t, st.AppendChildcare(ctx, r))
	}

	ids, err := st.SchoolsPendingCombination(ctx, CombineTarget{PromptVersion: "v2"})
	require.NoError(t, err)
	assert.Equal(t, []int64{100, 200}, ids)

	src := haikuV1
	ids, err = st.SchoolsPendingCombination(ctx, CombineTarget{PromptVersion: "v2", Source: &src})
	require.NoError(t, err)
	assert.Equal(t, []int64{100}, ids)

	require.NoError(t, st.AppendCombined(ctx, &model.CombinedExtraction{SchoolID: 100, Model: haikuV1.Model, PromptVersion: "v2"}))
	ids, err = st.SchoolsPendingCombination(ctx, CombineTarget{PromptVersion: "v2"})
	require.NoError(t, err)
	assert.Equal(t, []int64{200}, ids)

	// Another prompt version is still pending for both schools.
	ids, err = st.SchoolsPendingCombination(ctx, CombineTarget{PromptVersion: "v3"})
	require.NoError(t, err)
	assert.Equal(t, []int64{100, 200}, ids)

	_, err = st.SchoolsPendingCombination(ctx, CombineTarget{})
	require.Error(t, err)
}

func TestSQLite_CombinedRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := &model.CombinedExtraction{
		SchoolID:            100,
		ProvidesBeforeCare:  model.Ptr(true),
		BeforeCareStartTime: model.Ptr("7:00 am"),
		BeforeCareProvider:  model.Ptr("YMCA"),
		BeforeCareCitations: []int{1, 0},
		BeforeCareCitationSnippets: []model.CitationSnippet{
			{URL: model.Ptr("https://peirce.example/b"), Snippet: model.Ptr("B")},
			{URL: model.Ptr("https://peirce.example/a"), Snippet: nil},
		},
		ProvidesAfterCare: model.Ptr(false),
		Model:             haikuV1.Model,
		PromptVersion:     "v2",
	}
	require.NoError(t, st.AppendCombined(ctx, rec))
	require.NoError(t, st.AppendCombined(ctx, &model.CombinedExtraction{SchoolID: 200, Model: haikuV1.Model, PromptVersion: "v1"}))

	got, err := st.ListCombined(ctx, CombinedFilter{PromptVersion: "v2"})
	require.NoError(t, err)
	require.Len(t, got, 1)

	c := got[0]
	assert.Equal(t, rec.ID, c.ID)
	assert.Equal(t, []int{1, 0}, c.BeforeCareCitations)
	require.Len(t, c.BeforeCareCitationSnippets, 2)
	assert.Equal(t, "B", *c.BeforeCareCitationSnippets[0].Snippet)
	assert.Nil(t, c.BeforeCareCitationSnippets[1].Snippet)
	assert.Empty(t, c.AfterCareCitations)
	assert.False(t, *c.ProvidesAfterCare)
	assert.Nil(t, c.AfterCareEndTime)

	all, err := st.ListCombined(ctx, CombinedFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	paged, err := st.ListCombined(ctx, CombinedFilter{Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, int64(200), paged[0].SchoolID)

	one, err := st.ListCombined(ctx, CombinedFilter{SchoolID: 200})
	require.NoError(t, err)
	require.Len(t, one, 1)
}

func TestSQLite_AppendExtraction_AppendOnly(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := model.ExtractionRecord{
		SchoolID: 100, PageURL: "https://peirce.example/care",
		Emails: []string{"office@peirce.example"}, IsContactPage: true,
		Model: haikuV1.Model, PromptVersion: haikuV1.PromptVersion,
	}
	first, second := rec, rec
	require.NoError(t, st.AppendExtraction(ctx, &first))
	require.NoError(t, st.AppendExtraction(ctx, &second))
	assert.NotEqual(t, first.ID, second.ID)

	var count int
	require.NoError(t, st.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contact_extractions`).Scan(&count))
	assert.Equal(t, 2, count)
}
