package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/childcare-cli/internal/model"
)

func TestIsCurrentYear(t *testing.T) {
	tests := []struct {
		year *string
		want bool
	}{
		{nil, true},
		{model.Ptr("2019-2020"), false},
		{model.Ptr("2019 - 20"), false},
		{model.Ptr("2008"), false},
		{model.Ptr("2022"), false},
		{model.Ptr("2021/2022"), false},
		{model.Ptr("2021/22"), false},
		{model.Ptr("2008-09"), false},
		{model.Ptr("2018-2020"), false},
		{model.Ptr("2019â€“2020"), false},
		{model.Ptr("2019–2020"), false},
		{model.Ptr("2022-2023"), true},
		{model.Ptr("2023"), true},
		{model.Ptr("2024-2025"), true},
		{model.Ptr("2007"), true},
		{model.Ptr("2017-2019"), true},
		{model.Ptr("Fall 2019"), true},
		{model.Ptr(""), true},
	}
	for _, tt := range tests {
		name := "<nil>"
		if tt.year != nil {
			name = *tt.year
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCurrentYear(tt.year))
		})
	}
}

func TestStaleYears_Size(t *testing.T) {
	// 15 single years, 4 forms for each of 14 consecutive pairs, one legacy range.
	assert.Len(t, staleYears, 15+4*14+1)
}
