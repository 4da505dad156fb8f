package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/SkyChan0819/ntu-admin-helper/internal/domain"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiClient implements domain.LLMClient against the Gemini
// generateContent REST API. Calls are rate limited and quota errors
// (HTTP 429) are retried with exponential backoff before giving up.
type GeminiClient struct {
	BaseURL    string
	Model      string
	apiKey     string
	maxRetries int
	retryDelay time.Duration
	limiter    *rate.Limiter
	client     *http.Client
	logger     *slog.Logger
}

// NewGeminiClient constructs a Gemini client. requestsPerMinute bounds
// the request rate toward the API; maxRetries bounds 429 retries.
func NewGeminiClient(baseURL, model, apiKey string, requestsPerMinute float64, maxRetries int, timeout time.Duration, logger *slog.Logger, client *http.Client) *GeminiClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	return &GeminiClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Model:      model,
		apiKey:     apiKey,
		maxRetries: maxRetries,
		retryDelay: 5 * time.Second,
		limiter:    rate.NewLimiter(rate.Limit(requestsPerMinute/60.0), 1),
		client:     client,
		logger:     logger,
	}
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
}

// Generate sends the prompt and returns the first candidate's text.
func (g *GeminiClient) Generate(ctx context.Context, prompt string, maxTokens int) (*domain.LLMResponse, error) {
	reqBody := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: &generationConfig{
			Temperature: 0.2,
		},
	}
	if maxTokens > 0 {
		reqBody.GenerationConfig.MaxOutputTokens = maxTokens
	}
	jsonPayload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.BaseURL, g.Model)

	for attempt := 0; ; attempt++ {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		resp, err := g.doRequest(ctx, url, jsonPayload)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusTooManyRequests && attempt < g.maxRetries {
			_ = resp.Body.Close()
			wait := g.retryDelay * (1 << attempt)
			g.logger.Warn("gemini_quota_exceeded_retrying",
				slog.Int("attempt", attempt+1),
				slog.Duration("wait", wait))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		return g.decodeResponse(resp)
	}
}

func (g *GeminiClient) doRequest(ctx context.Context, url string, payload []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call gemini: %w", err)
	}
	return resp, nil
}

func (g *GeminiClient) decodeResponse(resp *http.Response) (*domain.LLMResponse, error) {
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("gemini returned status %d: %s", resp.StatusCode, string(body))
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(genResp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	cand := genResp.Candidates[0]
	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		sb.WriteString(p.Text)
	}
	return &domain.LLMResponse{
		Text: sb.String(),
		Done: cand.FinishReason == "" || cand.FinishReason == "STOP",
	}, nil
}

// Version returns the model identifier for logging.
func (g *GeminiClient) Version() string {
	return g.Model
}

var _ domain.LLMClient = (*GeminiClient)(nil)
