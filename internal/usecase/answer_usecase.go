package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/SkyChan0819/ntu-admin-helper/internal/domain"
)

const noDataAnswer = "抱歉，目前的資料庫中沒有相關資訊。"

// Message is one turn of the conversation history supplied by the caller.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// AnswerInput encapsulates the parameters that drive an answer request.
type AnswerInput struct {
	Query    string
	Identity *Identity
	History  []Message
}

// AnswerOutput is the normalized answer response returned to API clients.
type AnswerOutput struct {
	Answer         string
	Contexts       domain.RankedContext
	Units          domain.UnitSet
	MapPin         *domain.Building
	Fallback       bool
	Reason         string
	RetrievalSetID string
}

// AnswerUsecase defines the contract for generating grounded answers.
type AnswerUsecase interface {
	Execute(ctx context.Context, input AnswerInput) (*AnswerOutput, error)
}

type answerUsecase struct {
	retrieve      RetrieveContextUsecase
	promptBuilder PromptBuilder
	llmClient     domain.LLMClient
	locator       domain.BuildingLocator
	cache         *expirable.LRU[string, AnswerOutput]
	maxTokens     int
	logger        *slog.Logger
}

// AnswerOption customizes the answer usecase.
type AnswerOption func(*answerUsecase)

// WithAnswerCache enables an expirable LRU over (query, identity) keys.
// The retrieval core stays a pure function; caching lives only here.
func WithAnswerCache(size int, ttl time.Duration) AnswerOption {
	return func(u *answerUsecase) {
		u.cache = expirable.NewLRU[string, AnswerOutput](size, nil, ttl)
	}
}

// WithBuildingLocator enables map-pin resolution for location answers.
func WithBuildingLocator(locator domain.BuildingLocator) AnswerOption {
	return func(u *answerUsecase) {
		u.locator = locator
	}
}

// NewAnswerUsecase wires together the components needed to generate a
// grounded answer.
func NewAnswerUsecase(
	retrieve RetrieveContextUsecase,
	promptBuilder PromptBuilder,
	llmClient domain.LLMClient,
	maxTokens int,
	logger *slog.Logger,
	opts ...AnswerOption,
) AnswerUsecase {
	u := &answerUsecase{
		retrieve:      retrieve,
		promptBuilder: promptBuilder,
		llmClient:     llmClient,
		maxTokens:     maxTokens,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func (u *answerUsecase) Execute(ctx context.Context, input AnswerInput) (*AnswerOutput, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, fmt.Errorf("query is required")
	}

	query := u.rewriteWithHistory(ctx, input)

	cacheKey := answerCacheKey(query, input.Identity)
	if u.cache != nil {
		if cached, ok := u.cache.Get(cacheKey); ok {
			u.logger.Info("answer_cache_hit", slog.String("query", query))
			return &cached, nil
		}
	}

	retrieved, err := u.retrieve.Execute(ctx, RetrieveContextInput{
		Query:    query,
		Identity: input.Identity,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	if len(retrieved.Contexts) == 0 {
		return &AnswerOutput{
			Answer:         noDataAnswer,
			Fallback:       true,
			Reason:         "no matching passages",
			Units:          retrieved.Units,
			RetrievalSetID: retrieved.RetrievalSetID,
		}, nil
	}

	hints := locationHints(retrieved.Contexts)
	prompt, err := u.promptBuilder.Build(PromptInput{
		Query:         query,
		Identity:      input.Identity,
		Contexts:      retrieved.Contexts,
		LocationHints: hints,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build prompt: %w", err)
	}

	output := &AnswerOutput{
		Contexts:       retrieved.Contexts,
		Units:          retrieved.Units,
		RetrievalSetID: retrieved.RetrievalSetID,
	}

	llmResp, err := u.llmClient.Generate(ctx, prompt, u.maxTokens)
	if err != nil || llmResp == nil || strings.TrimSpace(llmResp.Text) == "" {
		reason := "empty llm response"
		if err != nil {
			reason = fmt.Sprintf("llm generation failed: %v", err)
		}
		u.logger.Warn("answer_generation_fallback",
			slog.String("retrieval_set_id", retrieved.RetrievalSetID),
			slog.String("reason", reason))
		output.Answer = noDataAnswer
		output.Fallback = true
		output.Reason = reason
		return output, nil
	}

	answer := strings.TrimSpace(llmResp.Text)
	if len(hints) > 0 && !strings.Contains(answer, "辦理地點") {
		answer = "辦理地點：\n" + strings.Join(hints, "\n") + "\n\n" + answer
	}
	output.Answer = answer
	output.MapPin = u.resolveMapPin(ctx, retrieved.Contexts)

	if u.cache != nil {
		u.cache.Add(cacheKey, *output)
	}
	return output, nil
}

// rewriteWithHistory turns a follow-up question into a self-contained
// search query using recent dialogue. On any failure the raw query is
// used; rewriting is best-effort.
func (u *answerUsecase) rewriteWithHistory(ctx context.Context, input AnswerInput) string {
	if len(input.History) == 0 {
		return input.Query
	}

	recent := input.History
	if len(recent) > 6 { // last 3 turns (user+assistant)
		recent = recent[len(recent)-6:]
	}
	var dialogue strings.Builder
	for _, msg := range recent {
		role := "助理"
		if msg.Role == "user" {
			role = "使用者"
		}
		dialogue.WriteString(role)
		dialogue.WriteString(": ")
		dialogue.WriteString(msg.Content)
		dialogue.WriteString("\n")
	}

	prompt := fmt.Sprintf(`請將使用者的問題改寫為**完整、可獨立檢索**的查詢句。
要求：
1. 必須結合最近對話上下文（包含助理回答），補全代詞與單位名稱。
2. 不要加入對話中不存在的新資訊。
3. 只輸出改寫後的查詢句，勿加註解。

【最近對話】
%s
【使用者最新問題】
%s`, dialogue.String(), input.Query)

	resp, err := u.llmClient.Generate(ctx, prompt, 100)
	if err != nil || resp == nil {
		u.logger.Warn("query_rewrite_failed", slog.String("error", fmt.Sprint(err)))
		return input.Query
	}
	rewritten := strings.TrimSpace(resp.Text)
	if rewritten == "" {
		return input.Query
	}
	u.logger.Info("query_rewritten",
		slog.String("original", input.Query),
		slog.String("rewritten", rewritten))
	return rewritten
}

// resolveMapPin extracts the building of the best location passage and
// resolves its coordinates. A missing locator or unknown building simply
// yields no pin.
func (u *answerUsecase) resolveMapPin(ctx context.Context, contexts domain.RankedContext) *domain.Building {
	if u.locator == nil {
		return nil
	}
	for _, res := range contexts {
		if res.Passage.Category != domain.CategoryLocation || res.Passage.Building == "" {
			continue
		}
		building, err := u.locator.Locate(ctx, res.Passage.Building)
		if err != nil {
			u.logger.Warn("map_pin_lookup_failed",
				slog.String("building", res.Passage.Building),
				slog.String("error", err.Error()))
			return nil
		}
		return building
	}
	return nil
}

// locationHints assembles 辦理地點 lines from location-category passages.
func locationHints(contexts domain.RankedContext) []string {
	seen := make(map[string]struct{})
	var hints []string
	for _, res := range contexts {
		p := res.Passage
		if p.Category != domain.CategoryLocation {
			continue
		}
		location := strings.TrimSpace(fmt.Sprintf("%s %s %s", p.Building, p.Floor, p.Room))
		if location == "" {
			continue
		}
		unit := p.UnitName
		if unit == "" {
			unit = p.Title
		}
		line := "- " + location
		if unit != "" {
			line = fmt.Sprintf("- %s：%s", unit, location)
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		hints = append(hints, line)
	}
	return hints
}

func answerCacheKey(query string, id *Identity) string {
	if id == nil {
		return query
	}
	return query + "|" + id.College + "|" + id.Degree
}
