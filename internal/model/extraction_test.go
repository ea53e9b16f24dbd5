package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChildcareExtraction_Positive(t *testing.T) {
	tests := []struct {
		name   string
		before *bool
		after  *bool
		want   bool
	}{
		{"both unknown", nil, nil, false},
		{"both false", Ptr(false), Ptr(false), false},
		{"before only", Ptr(true), nil, true},
		{"after only", Ptr(false), Ptr(true), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ChildcareExtraction{ProvidesBeforeCare: tt.before, ProvidesAfterCare: tt.after}
			assert.Equal(t, tt.want, c.Positive())
		})
	}
}

func TestCrawledPage_Extractable(t *testing.T) {
	assert.True(t, CrawledPage{StatusCode: 200, Markdown: "# Hi"}.Extractable())
	assert.False(t, CrawledPage{StatusCode: 404, Markdown: "# Hi"}.Extractable())
	assert.False(t, CrawledPage{StatusCode: 200, Markdown: "  \n"}.Extractable())
}

func TestExtractionKey_String(t *testing.T) {
	k := ExtractionKey{Model: "claude-haiku-4-5-20251001", PromptVersion: "v2"}
	assert.Equal(t, "claude-haiku-4-5-20251001@v2", k.String())
	assert.Equal(t, k, ExtractionRecord{Model: k.Model, PromptVersion: k.PromptVersion}.Key())
}

func TestPassSummary_FailureRate(t *testing.T) {
	assert.Zero(t, PassSummary{}.FailureRate())
	assert.InDelta(t, 0.25, PassSummary{Succeeded: 2, Empty: 1, Failed: 1}.FailureRate(), 1e-9)
	assert.InDelta(t, 1.0, PassSummary{Failed: 3}.FailureRate(), 1e-9)
}
