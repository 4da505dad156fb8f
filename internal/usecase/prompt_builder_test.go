package usecase

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SkyChan0819/ntu-admin-helper/internal/domain"
)

func promptContexts() domain.RankedContext {
	return domain.RankedContext{
		{
			Passage: domain.Passage{
				ID:        uuid.New(),
				Text:      "休學申請應於學期開始前辦理。",
				Title:     "休學辦法",
				SourceURL: "https://reg.ntu.edu.tw/leave.html",
			},
			Score: 0.9,
		},
		{
			Passage: domain.Passage{
				ID:   uuid.New(),
				Text: "註冊組位於行政大樓一樓。",
			},
			Score: 0.7,
		},
	}
}

func TestGroundedPromptBuilder_Build(t *testing.T) {
	builder := NewGroundedPromptBuilder()

	prompt, err := builder.Build(PromptInput{
		Query:    "休學怎麼辦理",
		Contexts: promptContexts(),
	})

	require.NoError(t, err)
	assert.Contains(t, prompt, "台大行政小助手")
	assert.Contains(t, prompt, "【回答守則】")
	assert.Contains(t, prompt, "【參考資料】")
	assert.Contains(t, prompt, "資料來源 1: [休學辦法](https://reg.ntu.edu.tw/leave.html)")
	assert.Contains(t, prompt, "休學申請應於學期開始前辦理。")
	// Untitled passages still render with placeholders.
	assert.Contains(t, prompt, "資料來源 2: [無標題](#)")
	assert.Contains(t, prompt, "【使用者問題】\n休學怎麼辦理")
	assert.NotContains(t, prompt, "【使用者身分資訊】")
}

func TestGroundedPromptBuilder_IdentityBlock(t *testing.T) {
	builder := NewGroundedPromptBuilder()

	prompt, err := builder.Build(PromptInput{
		Query:    "休學怎麼辦理",
		Identity: &Identity{College: "醫學院", Degree: "碩士班"},
		Contexts: promptContexts(),
	})

	require.NoError(t, err)
	assert.Contains(t, prompt, "【使用者身分資訊】")
	assert.Contains(t, prompt, "- 學院：醫學院")
	assert.Contains(t, prompt, "- 學制：碩士班")
}

func TestGroundedPromptBuilder_LocationHints(t *testing.T) {
	builder := NewGroundedPromptBuilder()

	prompt, err := builder.Build(PromptInput{
		Query:         "註冊組在哪裡",
		Contexts:      promptContexts(),
		LocationHints: []string{"- 註冊組：行政大樓 1樓 106室"},
	})

	require.NoError(t, err)
	assert.Contains(t, prompt, "【辦理地點（若適用）】")
	assert.Contains(t, prompt, "- 註冊組：行政大樓 1樓 106室")
}

func TestGroundedPromptBuilder_TruncatesLongPassages(t *testing.T) {
	builder := NewGroundedPromptBuilder()
	long := strings.Repeat("規", contextPreviewLimit+100)

	prompt, err := builder.Build(PromptInput{
		Query: "休學",
		Contexts: domain.RankedContext{
			{Passage: domain.Passage{ID: uuid.New(), Text: long}},
		},
	})

	require.NoError(t, err)
	assert.NotContains(t, prompt, long)
	assert.Contains(t, prompt, strings.Repeat("規", contextPreviewLimit)+"...")
}

func TestGroundedPromptBuilder_EmptyQueryRejected(t *testing.T) {
	builder := NewGroundedPromptBuilder()

	_, err := builder.Build(PromptInput{Query: "  "})
	require.Error(t, err)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "短文", truncateRunes("短文", 10))
	assert.Equal(t, "這是一...", truncateRunes("這是一段長文", 3))
}
