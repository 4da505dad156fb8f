package rag_http

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/SkyChan0819/ntu-admin-helper/internal/domain"
	"github.com/SkyChan0819/ntu-admin-helper/internal/usecase"
)

// Handler exposes the retrieval pipeline and the answer flow over HTTP.
type Handler struct {
	retrieveUsecase usecase.RetrieveContextUsecase
	answerUsecase   usecase.AnswerUsecase
	jobRepo         domain.IngestJobRepository
}

// NewHandler wires the HTTP surface.
func NewHandler(
	retrieveUsecase usecase.RetrieveContextUsecase,
	answerUsecase usecase.AnswerUsecase,
	jobRepo domain.IngestJobRepository,
) *Handler {
	return &Handler{
		retrieveUsecase: retrieveUsecase,
		answerUsecase:   answerUsecase,
		jobRepo:         jobRepo,
	}
}

// RetrieveRequest is the body of POST /v1/retrieve.
type RetrieveRequest struct {
	Query   string `json:"query"`
	College string `json:"college,omitempty"`
	Degree  string `json:"degree,omitempty"`
}

// PassageContext is one ranked context entry in API responses.
type PassageContext struct {
	PassageID string  `json:"passage_id"`
	Text      string  `json:"text"`
	Unit      string  `json:"unit,omitempty"`
	UnitName  string  `json:"unit_name,omitempty"`
	Category  string  `json:"category"`
	Title     string  `json:"title,omitempty"`
	SourceURL string  `json:"source_url,omitempty"`
	Score     float32 `json:"score"`
	Stage     string  `json:"stage"`
}

// RetrieveResponse is the body returned by POST /v1/retrieve.
type RetrieveResponse struct {
	Contexts []PassageContext `json:"contexts"`
	Units    []string         `json:"units"`
	Intent   string           `json:"intent"`
}

// AskRequest is the body of POST /v1/ask.
type AskRequest struct {
	Query   string        `json:"query"`
	College string        `json:"college,omitempty"`
	Degree  string        `json:"degree,omitempty"`
	History []chatMessage `json:"history,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// MapPin is the optional campus map marker on an answer.
type MapPin struct {
	Name   string  `json:"name"`
	NameEn string  `json:"name_en,omitempty"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
}

// AskResponse is the body returned by POST /v1/ask.
type AskResponse struct {
	Answer         string           `json:"answer"`
	Contexts       []PassageContext `json:"contexts"`
	Units          []string         `json:"units"`
	MapPin         *MapPin          `json:"map_pin,omitempty"`
	Fallback       bool             `json:"fallback"`
	Reason         string           `json:"reason,omitempty"`
	RetrievalSetID string           `json:"retrieval_set_id"`
}

// Retrieve runs the two-stage retrieval pipeline without generation.
// (POST /v1/retrieve)
func (h *Handler) Retrieve(ctx echo.Context) error {
	var req RetrieveRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if req.Query == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "query is required"})
	}

	output, err := h.retrieveUsecase.Execute(ctx.Request().Context(), usecase.RetrieveContextInput{
		Query:    req.Query,
		Identity: identityFrom(req.College, req.Degree),
	})
	if err != nil {
		return storeAwareError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, RetrieveResponse{
		Contexts: toPassageContexts(output.Contexts),
		Units:    output.Units.IDs(),
		Intent:   string(output.Intent),
	})
}

// Ask answers a question with generation grounded on retrieved context.
// (POST /v1/ask)
func (h *Handler) Ask(ctx echo.Context) error {
	var req AskRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if req.Query == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "query is required"})
	}

	input := usecase.AnswerInput{
		Query:    req.Query,
		Identity: identityFrom(req.College, req.Degree),
	}
	for _, msg := range req.History {
		input.History = append(input.History, usecase.Message{Role: msg.Role, Content: msg.Content})
	}

	output, err := h.answerUsecase.Execute(ctx.Request().Context(), input)
	if err != nil {
		return storeAwareError(ctx, err)
	}

	resp := AskResponse{
		Answer:         output.Answer,
		Contexts:       toPassageContexts(output.Contexts),
		Units:          output.Units.IDs(),
		Fallback:       output.Fallback,
		Reason:         output.Reason,
		RetrievalSetID: output.RetrievalSetID,
	}
	if output.MapPin != nil {
		resp.MapPin = &MapPin{
			Name:   output.MapPin.Name,
			NameEn: output.MapPin.NameEn,
			Lat:    output.MapPin.Lat,
			Lon:    output.MapPin.Lon,
		}
	}
	return ctx.JSON(http.StatusOK, resp)
}

// BackfillRequest is the body of POST /internal/index/backfill.
type BackfillRequest struct {
	SourceURL string            `json:"source_url"`
	Passages  []backfillPassage `json:"passages"`
}

type backfillPassage struct {
	Text     string `json:"text"`
	Unit     string `json:"unit,omitempty"`
	UnitName string `json:"unit_name,omitempty"`
	Category string `json:"category,omitempty"`
	Title    string `json:"title,omitempty"`
	Building string `json:"building,omitempty"`
	Floor    string `json:"floor,omitempty"`
	Room     string `json:"room,omitempty"`
}

// Backfill enqueues one source document's processed passages for
// asynchronous indexing. (POST /internal/index/backfill)
func (h *Handler) Backfill(ctx echo.Context) error {
	var req BackfillRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if req.SourceURL == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "missing source_url"})
	}
	if len(req.Passages) == 0 {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "missing passages"})
	}

	passages := make([]interface{}, len(req.Passages))
	for i, p := range req.Passages {
		passages[i] = map[string]interface{}{
			"text":      p.Text,
			"unit":      p.Unit,
			"unit_name": p.UnitName,
			"category":  p.Category,
			"title":     p.Title,
			"building":  p.Building,
			"floor":     p.Floor,
			"room":      p.Room,
		}
	}

	job := &domain.IngestJob{
		ID: uuid.New(),
		Payload: map[string]interface{}{
			"source_url": req.SourceURL,
			"passages":   passages,
		},
		Status:    "new",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := h.jobRepo.Enqueue(ctx.Request().Context(), job); err != nil {
		ctx.Logger().Error(err)
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
	return ctx.JSON(http.StatusAccepted, map[string]string{"job_id": job.ID.String(), "status": "queued"})
}

func identityFrom(college, degree string) *usecase.Identity {
	if college == "" && degree == "" {
		return nil
	}
	return &usecase.Identity{College: college, Degree: degree}
}

func toPassageContexts(contexts domain.RankedContext) []PassageContext {
	out := make([]PassageContext, 0, len(contexts))
	for _, res := range contexts {
		out = append(out, PassageContext{
			PassageID: res.Passage.ID.String(),
			Text:      res.Passage.Text,
			Unit:      res.Passage.Unit,
			UnitName:  res.Passage.UnitName,
			Category:  string(res.Passage.Category),
			Title:     res.Passage.Title,
			SourceURL: res.Passage.SourceURL,
			Score:     res.Score,
			Stage:     string(res.Stage),
		})
	}
	return out
}

// storeAwareError maps store-level failures to 503 so callers can show a
// "try again" state instead of a hard failure. Other errors are logged
// server-side; clients get a fixed message, wrapped errors can carry
// backend addresses.
func storeAwareError(ctx echo.Context, err error) error {
	if errors.Is(err, domain.ErrStoreUnavailable) || errors.Is(err, domain.ErrStoreTimeout) {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "retrieval backend unavailable, please try again",
		})
	}
	ctx.Logger().Error(err)
	return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
}
