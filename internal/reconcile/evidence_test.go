package reconcile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/childcare-cli/internal/model"
)

func evidenceRows() []model.ChildcareExtraction {
	return []model.ChildcareExtraction{
		{
			PageURL:                "https://school.org/a",
			ProvidesBeforeCare:     model.Ptr(true),
			BeforeCareQuoteSnippet: model.Ptr("A"),
			AfterCareQuoteSnippet:  model.Ptr("after A"),
		},
		{
			PageURL:                "https://school.org/b",
			WebpageYear:            model.Ptr("2024-2025"),
			ProvidesBeforeCare:     model.Ptr(true),
			BeforeCareQuoteSnippet: model.Ptr("B"),
		},
		{
			PageURL:               "https://school.org/c",
			ProvidesAfterCare:     model.Ptr(true),
			AfterCareQuoteSnippet: model.Ptr("after C"),
		},
	}
}

func TestEvidence_Render(t *testing.T) {
	out, err := NewEvidence(evidenceRows()).Render()
	require.NoError(t, err)

	entries := strings.Split(strings.TrimSpace(out), "\n\n")
	require.Len(t, entries, 3)
	assert.True(t, strings.HasPrefix(entries[0], `[0] {"page_url":"https://school.org/a","webpage_year":null,`))
	assert.True(t, strings.HasPrefix(entries[1], `[1] {"page_url":"https://school.org/b","webpage_year":"2024-2025",`))
	assert.Contains(t, entries[2], `"after_care_quote_snippet":"after C"`)
	assert.Contains(t, entries[2], `"after_care_quote_snippet_verified":null`)
	assert.NotContains(t, out, "model")
}

func TestEvidence_ResolveOrder(t *testing.T) {
	ev := NewEvidence(evidenceRows())

	snips, err := ev.Resolve(Before, []int{1, 0})
	require.NoError(t, err)
	require.Len(t, snips, 2)
	assert.Equal(t, "B", *snips[0].Snippet)
	assert.Equal(t, "A", *snips[1].Snippet)
	assert.Equal(t, "https://school.org/b", *snips[0].URL)

	after, err := ev.Resolve(After, []int{2, 1})
	require.NoError(t, err)
	assert.Equal(t, "after C", *after[0].Snippet)
	assert.Nil(t, after[1].Snippet)

	empty, err := ev.Resolve(After, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestEvidence_ResolveOutOfRange(t *testing.T) {
	ev := NewEvidence(evidenceRows())

	for _, idx := range []int{5, 3, -1} {
		_, err := ev.Resolve(After, []int{0, idx})
		var cerr *CitationIndexError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, After, cerr.Direction)
		assert.Equal(t, idx, cerr.Index)
		assert.Equal(t, 3, cerr.Length)
	}

	_, err := ev.Resolve(Before, []int{5})
	assert.EqualError(t, err, "before care citation 5 out of range: evidence has 3 entries")
}
