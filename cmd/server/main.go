package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"campus-compass/internal/adapter/docstore"
	"campus-compass/internal/adapter/extractor"
	"campus-compass/internal/adapter/httpapi"
	"campus-compass/internal/adapter/ollama"
	"campus-compass/internal/adapter/repository"
	"campus-compass/internal/adapter/tokenizer"
	"campus-compass/internal/domain"
	"campus-compass/internal/infra"
	"campus-compass/internal/infra/config"
	"campus-compass/internal/infra/httpclient"
	"campus-compass/internal/infra/logger"
	"campus-compass/internal/usecase"
	"campus-compass/internal/worker"
)

func main() {
	// 1. Load Config
	cfg := config.Load()

	// 2. Initialize Logger
	log := logger.NewWithOTel(cfg.OTelEnabled)

	// 3. Initialize DB
	ctx := context.Background()
	dbPool, err := infra.NewPostgresDB(ctx, cfg.DatabaseURL())
	if err != nil {
		log.Error("failed to connect to db", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := repository.InitSchema(ctx, dbPool, cfg.EmbeddingDimension); err != nil {
		log.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}

	// 4. Initialize Adapters
	vectorIndex := repository.NewVectorIndexRepository(dbPool, cfg.EmbeddingDimension)
	metadataRepo := repository.NewIndexMetadataRepository(dbPool)
	txManager := repository.NewPostgresTransactionManager(dbPool)

	httpClient := httpclient.NewPooledClient(cfg.HTTPClientTimeout)
	embedder := ollama.NewEmbedder(cfg.OllamaURL, cfg.EmbeddingModel, cfg.HTTPClientTimeout, httpClient)
	generator := ollama.NewGenerator(cfg.OllamaURL, cfg.CompletionModel, cfg.HTTPClientTimeout, httpClient)
	textExtractor := extractor.NewHTTPExtractor(cfg.ExtractorURL, cfg.HTTPClientTimeout, httpClient)
	store := docstore.NewFilesystemStore(cfg.CorpusDir)

	var reranker domain.Reranker
	if cfg.RerankerEnabled {
		reranker = ollama.NewRerankerClient(cfg.RerankerURL, cfg.RerankerModel, cfg.HTTPClientTimeout, log, httpClient)
	}

	var counter domain.TokenCounter
	if tc, err := tokenizer.NewTiktokenCounter(cfg.TokenEncoding); err != nil {
		log.Warn("token counter unavailable, token counts disabled", "error", err)
	} else {
		counter = tc
	}

	// 5. Initialize Usecases
	hasher := domain.NewContentHashPolicy()
	chunker := domain.NewChunker(domain.ChunkingConfig{
		Size:    cfg.ChunkSize,
		Overlap: cfg.ChunkOverlap,
	})

	retrievalCfg := usecase.DefaultRetrievalConfig()
	retrievalCfg.TopK = cfg.TopK
	retrievalCfg.SimilarityThreshold = cfg.SimilarityThreshold
	retrievalCfg.Reranking.Enabled = cfg.RerankerEnabled
	retrievalCfg.Reranking.PoolMultiplier = cfg.RerankPoolMultiplier

	retrieveUsecase, err := usecase.NewRetrieveDocumentsUsecase(vectorIndex, embedder, reranker, retrievalCfg)
	if err != nil {
		log.Error("failed to create retrieve usecase", "error", err)
		os.Exit(1)
	}

	citationManager, err := usecase.NewCitationManager(usecase.CitationConfig{
		GroundingThreshold: cfg.GroundingThreshold,
	})
	if err != nil {
		log.Error("failed to create citation manager", "error", err)
		os.Exit(1)
	}

	budget := usecase.DefaultContextBudget()
	budget.MaxChars = cfg.ContextMaxChars
	promptBuilder, err := usecase.NewPromptBuilder(budget, citationManager)
	if err != nil {
		log.Error("failed to create prompt builder", "error", err)
		os.Exit(1)
	}

	answerCfg := usecase.DefaultAnswerConfig()
	answerCfg.Temperature = cfg.Temperature
	answerCfg.MaxTokens = cfg.AnswerMaxTokens

	answerUsecase, err := usecase.NewAnswerWithRAGUsecase(
		retrieveUsecase,
		promptBuilder,
		generator,
		citationManager,
		answerCfg,
	)
	if err != nil {
		log.Error("failed to create answer usecase", "error", err)
		os.Exit(1)
	}

	indexingCfg := usecase.DefaultIndexingConfig()
	indexingCfg.ExtractionWorkers = cfg.ExtractionWorkers
	indexingCfg.BatchSize = cfg.InsertBatchSize
	indexingCfg.EmbedRatePerSecond = cfg.EmbedRatePerSecond

	indexUsecase, err := usecase.NewIndexDocumentsUsecase(
		store,
		textExtractor,
		chunker,
		embedder,
		counter,
		vectorIndex,
		metadataRepo,
		txManager,
		hasher,
		indexingCfg,
	)
	if err != nil {
		log.Error("failed to create index usecase", "error", err)
		os.Exit(1)
	}

	handlers := usecase.NewFunctionHandlers(retrieveUsecase, answerUsecase, promptBuilder, citationManager, answerCfg)
	router := usecase.NewIntentRouter(handlers, answerUsecase)

	// 6. Initialize & Start Watcher
	if cfg.WatcherEnabled {
		corpusWatcher := worker.NewCorpusWatcher(cfg.CorpusDir, cfg.WatcherDebounce, indexUsecase, log)
		if err := corpusWatcher.Start(); err != nil {
			log.Error("failed to start corpus watcher", "error", err)
			os.Exit(1)
		}
		defer corpusWatcher.Stop()
	}

	// 7. Initialize Echo
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	// 8. Register Handlers
	handler := httpapi.NewHandler(router, answerUsecase, retrieveUsecase, indexUsecase)
	handler.Register(e)

	// 9. Start Server
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		log.Info("Starting server", "addr", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal("shutting down the server")
		}
	}()

	// 10. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		e.Logger.Fatal(err)
	}
}
