package retrieval

import (
	"strings"

	"github.com/SkyChan0819/ntu-admin-helper/internal/domain"
)

// Intent is the dominant information need of a query.
type Intent string

const (
	IntentLocation  Intent = "location"
	IntentProcedure Intent = "procedure"
	IntentGeneral   Intent = "general"
)

// Category returns the passage category this intent prefers, or empty for
// general.
func (i Intent) Category() domain.Category {
	switch i {
	case IntentLocation:
		return domain.CategoryLocation
	case IntentProcedure:
		return domain.CategoryProcedure
	default:
		return ""
	}
}

var locationKeywords = []string{
	"在哪", "哪裡", "哪里", "位置", "地址", "怎麼去", "如何到", "幾樓",
	"where", "location",
}

var procedureKeywords = []string{
	"申請", "辦理", "流程", "規定", "要件", "服務", "業務", "職掌",
	"how to", "apply", "procedure",
}

// ClassifyIntent picks exactly one intent for the query. Location signals
// win over procedure signals because a query like 休學要去哪裡辦 mixes
// both and the asker wants a place. Absent or ambiguous signals default
// to general; classification never fails.
func ClassifyIntent(query string) Intent {
	lower := strings.ToLower(query)
	for _, kw := range locationKeywords {
		if strings.Contains(lower, kw) {
			return IntentLocation
		}
	}
	for _, kw := range procedureKeywords {
		if strings.Contains(lower, kw) {
			return IntentProcedure
		}
	}
	return IntentGeneral
}
