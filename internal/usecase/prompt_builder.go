package usecase

import (
	"fmt"
	"strings"

	"github.com/SkyChan0819/ntu-admin-helper/internal/domain"
)

// contextPreviewLimit truncates long passages before prompting to avoid
// token overflow; 500 runes keeps the useful head of scraped pages.
const contextPreviewLimit = 500

// PromptInput contains the pieces that feed into the prompt builder.
type PromptInput struct {
	Query         string
	Identity      *Identity
	Contexts      domain.RankedContext
	LocationHints []string
}

// PromptBuilder renders the generation prompt for a grounded answer.
type PromptBuilder interface {
	Build(input PromptInput) (string, error)
}

// GroundedPromptBuilder builds the strict Traditional-Chinese answering
// prompt: the model may only use the numbered reference passages.
type GroundedPromptBuilder struct{}

// NewGroundedPromptBuilder creates the default prompt builder.
func NewGroundedPromptBuilder() PromptBuilder {
	return &GroundedPromptBuilder{}
}

// Build renders the full prompt string.
func (b *GroundedPromptBuilder) Build(input PromptInput) (string, error) {
	if strings.TrimSpace(input.Query) == "" {
		return "", fmt.Errorf("query is required")
	}

	var sb strings.Builder
	sb.WriteString("你是一個專業的「台大行政小助手」。請根據以下提供的【參考資料】來回答使用者的問題。\n\n")
	sb.WriteString("【回答守則】\n")
	sb.WriteString("1. 你的回答必須**嚴格基於**提供的參考資料。如果參考資料沒有提及，請直接說「抱歉，目前的資料庫中沒有相關資訊」。\n")
	sb.WriteString("2. 若參考資料中有辦理地點資訊，請在回答開頭以「辦理地點：」列出（可多筆）。\n")
	sb.WriteString("3. 回答請條理分明，使用點列式整理重點。\n")
	sb.WriteString("4. 語氣請保持親切、專業。\n")
	sb.WriteString("5. 請使用繁體中文回答。\n")

	if input.Identity != nil && (input.Identity.College != "" || input.Identity.Degree != "") {
		sb.WriteString("\n【使用者身分資訊】\n")
		if input.Identity.College != "" {
			sb.WriteString("- 學院：")
			sb.WriteString(input.Identity.College)
			sb.WriteString("\n")
		}
		if input.Identity.Degree != "" {
			sb.WriteString("- 學制：")
			sb.WriteString(input.Identity.Degree)
			sb.WriteString("\n")
		}
		sb.WriteString("請務必根據上述使用者身分（學院/學制），優先提供適用的規定或流程。若不同身分有不同規定，請明確指出。\n")
	}

	sb.WriteString("\n【參考資料】\n")
	if len(input.LocationHints) > 0 {
		sb.WriteString("【辦理地點（若適用）】\n")
		for _, hint := range input.LocationHints {
			sb.WriteString(hint)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	for i, res := range input.Contexts {
		title := res.Passage.Title
		if title == "" {
			title = "無標題"
		}
		url := res.Passage.SourceURL
		if url == "" {
			url = "#"
		}
		fmt.Fprintf(&sb, "\n--- 資料來源 %d: [%s](%s) ---\n%s\n", i+1, title, url, truncateRunes(res.Passage.Text, contextPreviewLimit))
	}

	sb.WriteString("\n【使用者問題】\n")
	sb.WriteString(input.Query)
	sb.WriteString("\n")

	return sb.String(), nil
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
