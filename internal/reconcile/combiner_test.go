package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/childcare-cli/internal/extract"
	"github.com/sells-group/childcare-cli/internal/model"
	"github.com/sells-group/childcare-cli/internal/resilience"
	"github.com/sells-group/childcare-cli/pkg/anthropic"
	"github.com/sells-group/childcare-cli/pkg/anthropic/mocks"
)

var combineKey = model.ExtractionKey{Model: extract.ModelSonnet, PromptVersion: "v2"}

type fakeSource struct {
	rows      []model.ChildcareExtraction
	err       error
	gotSource *model.ExtractionKey
}

func (f *fakeSource) PositiveChildcare(_ context.Context, _ int64, source *model.ExtractionKey) ([]model.ChildcareExtraction, error) {
	f.gotSource = source
	return f.rows, f.err
}

func newTestEngine(client anthropic.Client) *extract.Engine {
	return extract.New(client,
		extract.WithTokenCounter(extract.CounterFunc(func(context.Context, string, extract.Prompt) (int64, error) {
			return 100, nil
		})),
		extract.WithRetryConfig(resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond}),
	)
}

func combinedResponse(before, after any) *anthropic.MessageResponse {
	raw, _ := json.Marshal(map[string]any{
		"provides_before_care":   true,
		"before_care_start_time": "7:00 am",
		"before_care_provider":   "YMCA",
		"before_care_citations":  before,
		"provides_after_care":    true,
		"after_care_end_time":    "6:00 pm",
		"after_care_provider":    nil,
		"after_care_citations":   after,
	})
	return &anthropic.MessageResponse{
		Model:   extract.ModelSonnet,
		Content: []anthropic.ContentBlock{{Type: "tool_use", Name: extract.CombinedSchema.Name, Input: raw}},
	}
}

func TestCombine_RehydratesCitations(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(combinedResponse([]int{1, 0}, []int{2}), nil).Once()

	src := &fakeSource{rows: evidenceRows()}
	c := NewCombiner(newTestEngine(client), src)

	rec, err := c.Combine(context.Background(), 42, combineKey)
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, int64(42), rec.SchoolID)
	assert.Equal(t, []int{1, 0}, rec.BeforeCareCitations)
	require.Len(t, rec.BeforeCareCitationSnippets, 2)
	assert.Equal(t, "B", *rec.BeforeCareCitationSnippets[0].Snippet)
	assert.Equal(t, "A", *rec.BeforeCareCitationSnippets[1].Snippet)
	assert.Equal(t, "after C", *rec.AfterCareCitationSnippets[0].Snippet)
	assert.Equal(t, "YMCA", *rec.BeforeCareProvider)
	assert.Nil(t, rec.AfterCareProvider)
	assert.Equal(t, combineKey.Model, rec.Model)
	assert.Equal(t, "v2", rec.PromptVersion)
	assert.Nil(t, src.gotSource)
}

func TestCombine_NullCitations(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(combinedResponse(nil, nil), nil).Once()

	rec, err := NewCombiner(newTestEngine(client), &fakeSource{rows: evidenceRows()}).
		Combine(context.Background(), 42, combineKey)
	require.NoError(t, err)
	assert.Equal(t, []int{}, rec.BeforeCareCitations)
	assert.Empty(t, rec.AfterCareCitationSnippets)
}

func TestCombine_OutOfRangeCitation(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(combinedResponse([]int{0}, []int{5}), nil).Once()

	rec, err := NewCombiner(newTestEngine(client), &fakeSource{rows: evidenceRows()}).
		Combine(context.Background(), 42, combineKey)
	require.Error(t, err)
	assert.Nil(t, rec)

	var cerr *CitationIndexError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, After, cerr.Direction)
	assert.Equal(t, 5, cerr.Index)
	assert.Equal(t, 3, cerr.Length)
	assert.False(t, extract.IsDocumentTooLong(err))
	client.AssertNumberOfCalls(t, "CreateMessage", 1)
}

func TestCombine_StaleRowsExcludedFromEvidence(t *testing.T) {
	rows := append(evidenceRows(), model.ChildcareExtraction{
		PageURL:                "https://school.org/old",
		WebpageYear:            model.Ptr("2019-2020"),
		ProvidesBeforeCare:     model.Ptr(true),
		BeforeCareQuoteSnippet: model.Ptr("old"),
	})

	client := mocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		prompt := req.Messages[0].Content
		return !strings.Contains(prompt, "https://school.org/old") &&
			strings.Contains(prompt, "[2] ") &&
			!strings.Contains(prompt, "[3] ")
	})).Return(combinedResponse([]int{0}, []int{}), nil).Once()

	rec, err := NewCombiner(newTestEngine(client), &fakeSource{rows: rows}).
		Combine(context.Background(), 42, combineKey)
	require.NoError(t, err)
	require.NotNil(t, rec)
}

func TestCombine_NoCurrentEvidence(t *testing.T) {
	client := mocks.NewMockClient(t)
	c := NewCombiner(newTestEngine(client), &fakeSource{rows: []model.ChildcareExtraction{{
		PageURL:           "https://school.org/old",
		WebpageYear:       model.Ptr("2015"),
		ProvidesAfterCare: model.Ptr(true),
	}}})

	rec, err := c.Combine(context.Background(), 42, combineKey)
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = NewCombiner(newTestEngine(client), &fakeSource{}).Combine(context.Background(), 42, combineKey)
	require.NoError(t, err)
	assert.Nil(t, rec)
	client.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestCombine_SourceFilterAndErrors(t *testing.T) {
	client := mocks.NewMockClient(t)
	source := &model.ExtractionKey{Model: extract.ModelHaiku, PromptVersion: "v1"}

	src := &fakeSource{err: errors.New("db down")}
	_, err := NewCombiner(newTestEngine(client), src, WithSource(source)).Combine(context.Background(), 7, combineKey)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load evidence for school 7")
	assert.Equal(t, source, src.gotSource)

	_, err = NewCombiner(newTestEngine(client), &fakeSource{rows: evidenceRows()}).
		Combine(context.Background(), 7, model.ExtractionKey{Model: extract.ModelSonnet, PromptVersion: "v7"})
	assert.ErrorIs(t, err, extract.ErrUnknownPromptVersion)
}
