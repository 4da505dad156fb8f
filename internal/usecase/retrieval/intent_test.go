package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/SkyChan0819/ntu-admin-helper/internal/domain"
)

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected Intent
	}{
		{
			name:     "location query",
			query:    "註冊組在哪裡",
			expected: IntentLocation,
		},
		{
			name:     "floor question is location",
			query:    "出納組在幾樓",
			expected: IntentLocation,
		},
		{
			name:     "english location keyword",
			query:    "where is the registration division",
			expected: IntentLocation,
		},
		{
			name:     "procedure query",
			query:    "如何申請休學",
			expected: IntentProcedure,
		},
		{
			name:     "regulation query is procedure",
			query:    "學分抵免規定",
			expected: IntentProcedure,
		},
		{
			name:     "mixed location and procedure prefers location",
			query:    "休學要去哪裡辦",
			expected: IntentLocation,
		},
		{
			name:     "no signal defaults to general",
			query:    "學校的歷史",
			expected: IntentGeneral,
		},
		{
			name:     "empty query is general",
			query:    "",
			expected: IntentGeneral,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifyIntent(tt.query))
		})
	}
}

func TestIntent_Category(t *testing.T) {
	assert.Equal(t, domain.CategoryLocation, IntentLocation.Category())
	assert.Equal(t, domain.CategoryProcedure, IntentProcedure.Category())
	assert.Equal(t, domain.Category(""), IntentGeneral.Category())
}
