package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/childcare-cli/internal/model"
)

func TestReadSchools(t *testing.T) {
	input := "Index,School_ID,Name,Type,websiteURL\n" +
		"1,609772,Agassiz Elementary,Elementary School,https://agassiz.example/\n" +
		"2,609773,Alcott,ElementaryCharter,\n"

	schools, err := ReadSchools(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, schools, 2)
	assert.Equal(t, model.School{
		Index: 1, ID: 609772, Name: "Agassiz Elementary", Type: "Elementary School", WebsiteURL: "https://agassiz.example/",
	}, schools[0])
	assert.Empty(t, schools[1].WebsiteURL)
}

func TestReadSchools_InvalidID(t *testing.T) {
	_, err := ReadSchools(context.Background(), strings.NewReader("school_id\nabc\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `row 2: invalid school_id "abc"`)
}

func TestReadSchools_MissingColumn(t *testing.T) {
	_, err := ReadSchools(context.Background(), strings.NewReader("name\nAgassiz\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "school_id")
}

func TestReadEvalLabels(t *testing.T) {
	input := "school_id,page_url,label\n609772,https://agassiz.example/care,positive\n609773,https://alcott.example/,\n"
	labels, err := ReadEvalLabels(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, labels, 2)
	assert.Equal(t, int64(609772), labels[0].SchoolID)
	assert.Equal(t, "https://agassiz.example/care", labels[0].PageURL)
	assert.Equal(t, "positive", labels[0].Label)
	assert.Empty(t, labels[1].Label)
}

func TestReadEvalLabels_EmptyURL(t *testing.T) {
	_, err := ReadEvalLabels(context.Background(), strings.NewReader("school_id,page_url\n1,\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty page_url")
}
