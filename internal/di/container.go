package di

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SkyChan0819/ntu-admin-helper/internal/adapter/campusmap"
	"github.com/SkyChan0819/ntu-admin-helper/internal/adapter/embedding"
	"github.com/SkyChan0819/ntu-admin-helper/internal/adapter/genai"
	"github.com/SkyChan0819/ntu-admin-helper/internal/adapter/repository"
	"github.com/SkyChan0819/ntu-admin-helper/internal/domain"
	"github.com/SkyChan0819/ntu-admin-helper/internal/infra/config"
	"github.com/SkyChan0819/ntu-admin-helper/internal/infra/httpclient"
	"github.com/SkyChan0819/ntu-admin-helper/internal/usecase"
	"github.com/SkyChan0819/ntu-admin-helper/internal/worker"
)

const (
	embedderTimeout  = 30 * time.Second
	geminiTimeout    = 60 * time.Second
	campusMapTimeout = 10 * time.Second
	mapCacheSize     = 512
)

// ApplicationComponents holds all wired dependencies for the application.
type ApplicationComponents struct {
	// Repositories
	PassageStore domain.PassageStore
	JobRepo      domain.IngestJobRepository

	// Usecases
	IndexUsecase    usecase.IndexPassagesUsecase
	RetrieveUsecase usecase.RetrieveContextUsecase
	AnswerUsecase   usecase.AnswerUsecase

	// Worker
	Worker *worker.IngestWorker
}

// NewApplicationComponents wires all dependencies from config and database pool.
func NewApplicationComponents(cfg *config.Config, pool *pgxpool.Pool, log *slog.Logger) (*ApplicationComponents, error) {
	// Repositories
	passageStore := repository.NewPassageRepository(pool)
	jobRepo := repository.NewIngestJobRepository(pool)
	txManager := repository.NewPostgresTransactionManager(pool)

	// Shared HTTP clients with connection pooling
	embedderHTTP := httpclient.NewPooledClient(embedderTimeout)
	geminiHTTP := httpclient.NewPooledClient(geminiTimeout)
	mapHTTP := httpclient.NewPooledClient(campusMapTimeout)

	// External clients
	embedder := embedding.NewOllamaEmbedder(cfg.EmbedderURL, cfg.EmbeddingModel, embedderTimeout, embedderHTTP)
	llmClient := genai.NewGeminiClient(
		cfg.GeminiBaseURL, cfg.GeminiModel, cfg.GeminiAPIKey,
		float64(cfg.GeminiRPM), cfg.GeminiRetries, geminiTimeout, log, geminiHTTP,
	)
	locator, err := campusmap.NewClient(cfg.CampusMapURL, campusMapTimeout, mapCacheSize, mapHTTP)
	if err != nil {
		return nil, fmt.Errorf("failed to create campus map client: %w", err)
	}

	// Index usecase
	indexUsecase := usecase.NewIndexPassagesUsecase(passageStore, txManager, embedder)

	// Retrieval config
	retrievalConfig := usecase.RetrievalConfig{
		BroadK:       cfg.BroadK,
		MaxUnits:     cfg.MaxUnits,
		PerUnitK:     cfg.PerUnitK,
		MaxContext:   cfg.MaxContext,
		StoreRetries: cfg.StoreRetries,
		StoreTimeout: cfg.StoreTimeout,
	}

	// Retrieve usecase
	retrieveUsecase := usecase.NewRetrieveContextUsecase(passageStore, embedder, retrievalConfig, log)

	// Answer usecase
	promptBuilder := usecase.NewGroundedPromptBuilder()
	answerUsecase := usecase.NewAnswerUsecase(
		retrieveUsecase, promptBuilder, llmClient, cfg.AnswerMaxTokens, log,
		usecase.WithAnswerCache(cfg.AnswerCacheSize, cfg.AnswerCacheTTL),
		usecase.WithBuildingLocator(locator),
	)

	// Worker
	ingestWorker := worker.NewIngestWorker(jobRepo, indexUsecase, log, cfg.WorkerPollInterval)

	return &ApplicationComponents{
		PassageStore:    passageStore,
		JobRepo:         jobRepo,
		IndexUsecase:    indexUsecase,
		RetrieveUsecase: retrieveUsecase,
		AnswerUsecase:   answerUsecase,
		Worker:          ingestWorker,
	}, nil
}
