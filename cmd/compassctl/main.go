package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"campus-compass/internal/adapter/docstore"
	"campus-compass/internal/adapter/extractor"
	"campus-compass/internal/adapter/ollama"
	"campus-compass/internal/adapter/repository"
	"campus-compass/internal/adapter/tokenizer"
	"campus-compass/internal/domain"
	"campus-compass/internal/infra"
	"campus-compass/internal/infra/config"
	"campus-compass/internal/infra/httpclient"
	"campus-compass/internal/infra/logger"
	"campus-compass/internal/usecase"
)

type app struct {
	pool     *pgxpool.Pool
	indexer  usecase.IndexDocumentsUsecase
	retrieve usecase.RetrieveDocumentsUsecase
}

func buildApp(ctx context.Context) (*app, error) {
	cfg := config.Load()
	log := logger.New()

	pool, err := infra.NewPostgresDB(ctx, cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}
	if err := repository.InitSchema(ctx, pool, cfg.EmbeddingDimension); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	vectorIndex := repository.NewVectorIndexRepository(pool, cfg.EmbeddingDimension)
	metadataRepo := repository.NewIndexMetadataRepository(pool)
	txManager := repository.NewPostgresTransactionManager(pool)

	httpClient := httpclient.NewPooledClient(cfg.HTTPClientTimeout)
	embedder := ollama.NewEmbedder(cfg.OllamaURL, cfg.EmbeddingModel, cfg.HTTPClientTimeout, httpClient)
	textExtractor := extractor.NewHTTPExtractor(cfg.ExtractorURL, cfg.HTTPClientTimeout, httpClient)
	store := docstore.NewFilesystemStore(cfg.CorpusDir)

	var reranker domain.Reranker
	if cfg.RerankerEnabled {
		reranker = ollama.NewRerankerClient(cfg.RerankerURL, cfg.RerankerModel, cfg.HTTPClientTimeout, log, httpClient)
	}

	var counter domain.TokenCounter
	if tc, err := tokenizer.NewTiktokenCounter(cfg.TokenEncoding); err == nil {
		counter = tc
	}

	chunker := domain.NewChunker(domain.ChunkingConfig{
		Size:    cfg.ChunkSize,
		Overlap: cfg.ChunkOverlap,
	})

	indexingCfg := usecase.DefaultIndexingConfig()
	indexingCfg.ExtractionWorkers = cfg.ExtractionWorkers
	indexingCfg.BatchSize = cfg.InsertBatchSize
	indexingCfg.EmbedRatePerSecond = cfg.EmbedRatePerSecond

	indexer, err := usecase.NewIndexDocumentsUsecase(
		store,
		textExtractor,
		chunker,
		embedder,
		counter,
		vectorIndex,
		metadataRepo,
		txManager,
		domain.NewContentHashPolicy(),
		indexingCfg,
	)
	if err != nil {
		pool.Close()
		return nil, err
	}

	retrievalCfg := usecase.DefaultRetrievalConfig()
	retrievalCfg.TopK = cfg.TopK
	retrievalCfg.SimilarityThreshold = cfg.SimilarityThreshold
	retrievalCfg.Reranking.Enabled = cfg.RerankerEnabled
	retrievalCfg.Reranking.PoolMultiplier = cfg.RerankPoolMultiplier

	retrieve, err := usecase.NewRetrieveDocumentsUsecase(vectorIndex, embedder, reranker, retrievalCfg)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &app{pool: pool, indexer: indexer, retrieve: retrieve}, nil
}

func (a *app) close() {
	a.pool.Close()
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func newIndexCmd() *cobra.Command {
	var full, noIncremental bool
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Run an indexing pass over the document corpus",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			report, err := a.indexer.IndexAll(cmd.Context(), usecase.IndexOptions{
				Incremental:   !full && !noIncremental,
				ClearExisting: full,
			})
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "clear the index and rebuild from scratch")
	cmd.Flags().BoolVar(&noIncremental, "no-incremental", false, "reprocess every file even if unchanged")
	return cmd
}

func newReindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex <category/file>",
		Short: "Force reindexing of a single document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			report, err := a.indexer.ReindexFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check index health and report inconsistencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			report, err := a.indexer.ValidateIndex(cmd.Context())
			if err != nil {
				return err
			}
			if err := printJSON(report); err != nil {
				return err
			}
			if !report.Valid {
				return fmt.Errorf("index validation found %d issue(s)", len(report.Issues))
			}
			return nil
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			stats, err := a.retrieve.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(stats)
		},
	}
}

func main() {
	root := &cobra.Command{
		Use:          "compassctl",
		Short:        "Operational tooling for the campus document index",
		SilenceUsage: true,
	}
	root.AddCommand(newIndexCmd(), newReindexCmd(), newValidateCmd(), newStatsCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
