package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/specsift/specsift/internal/async"
	"github.com/specsift/specsift/internal/common"
	"github.com/specsift/specsift/internal/embedding"
	"github.com/specsift/specsift/internal/embedding/openai"
	"github.com/specsift/specsift/internal/export"
	"github.com/specsift/specsift/internal/extract"
	"github.com/specsift/specsift/internal/pipeline"
	"github.com/specsift/specsift/internal/refine"
	repo "github.com/specsift/specsift/internal/repository"
	"github.com/specsift/specsift/internal/retrieval"
	"github.com/specsift/specsift/internal/terms"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	_ = godotenv.Load()

	var (
		inmem   = flag.Bool("inmem", false, "use in-memory SQLite database")
		doc     = flag.String("doc", "", "single document file to process (.json pages or plain text)")
		dir     = flag.String("dir", "", "directory of documents to process")
		out     = flag.String("out", "", "output XLSX file path (optional)")
		verbose = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if *doc == "" && *dir == "" {
		printError("Error: one of --doc or --dir is required\n")
		os.Exit(1)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx := context.Background()

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		// Missing AI credentials degrade output; everything else is fatal.
		if len(cfg.AI.PrimaryKeys) == 0 && cfg.AI.FallbackKey == "" {
			logger.Warn("no AI credentials configured, records will be rule-only", "error", err)
		} else {
			logger.Error("invalid configuration", "error", err)
			os.Exit(1)
		}
	}
	if *inmem {
		cfg.Database.DSN = ""
		cfg.Database.Path = ":memory:"
	}

	db, err := repo.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer repo.Close(db, logger)
	if err := repo.Migrate(ctx, db); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}
	runs := repo.NewRunRepository(db, logger)

	materials, err := terms.Load(cfg.Retrieval.TermsFile)
	if err != nil {
		logger.Error("failed to load material taxonomy", "error", err)
		os.Exit(1)
	}
	logger.Info("material taxonomy loaded", "materials", len(materials))

	// Corpus-fitted embedders (tfidf) must not be shared across documents,
	// so the processor gets a factory and builds one per document. The
	// remote client is stateless and safe to reuse.
	var newEmbedder func() embedding.Embedder
	switch cfg.Embedding.Type {
	case "openai":
		client := openai.NewClient(openai.Config{
			BaseURL: cfg.Embedding.BaseURL,
			APIKey:  cfg.Embedding.APIKey,
			Model:   cfg.Embedding.Model,
			Timeout: cfg.Embedding.Timeout,
		}, logger)
		newEmbedder = func() embedding.Embedder { return client }
	default:
		newEmbedder = func() embedding.Embedder { return embedding.NewTFIDF() }
	}
	logger.Info("embedder initialized", "type", cfg.Embedding.Type)

	orchestrator := buildOrchestrator(cfg, logger)

	processor := pipeline.NewProcessor(pipeline.ProcessorOptions{
		Materials:         materials,
		NewEmbedder:       newEmbedder,
		Retriever:         retrieval.NewRetriever(materials, cfg.Retrieval.TopK, logger),
		Extractor:         extract.NewExtractor(logger),
		Orchestrator:      orchestrator,
		Repository:        runs,
		Metric:            retrieval.Metric(cfg.Retrieval.SemanticMetric),
		Threshold:         cfg.Retrieval.SemanticThreshold,
		DocumentTimeout:   cfg.Pipeline.DocumentTimeout,
		RefineConcurrency: cfg.Pipeline.RefineConcurrency,
		Logger:            logger,
	})

	paths, err := collectDocuments(*doc, *dir)
	if err != nil {
		logger.Error("failed to collect documents", "error", err)
		os.Exit(1)
	}
	if len(paths) == 0 {
		printError("Error: no documents found\n")
		os.Exit(1)
	}

	queue := async.NewProcessorQueue(processor, logger,
		async.WithWorkers(cfg.Pipeline.Workers),
		async.WithQueueSize(cfg.Pipeline.QueueSize),
		async.WithJobTimeout(cfg.Pipeline.DocumentTimeout+time.Minute),
	)
	for _, p := range paths {
		_ = queue.Enqueue(ctx, async.Job{Path: p, SubmittedAt: time.Now()})
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, time.Duration(len(paths))*(cfg.Pipeline.DocumentTimeout+time.Minute))
	queue.Shutdown(shutdownCtx)
	cancel()

	if *out != "" {
		docIDs := make([]string, 0, len(paths))
		for _, p := range paths {
			base := filepath.Base(p)
			docIDs = append(docIDs, strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base))))
		}
		svc := export.NewService(runs, logger)
		xlsxBytes, err := svc.ExportDocumentsXLSX(ctx, docIDs)
		if err != nil {
			logger.Error("failed to export records", "error", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*out, xlsxBytes, 0644); err != nil {
			logger.Error("failed to write output file", "error", err)
			os.Exit(1)
		}
		logger.Info("export written", "output_file", *out)
	}

	fmt.Printf("Processing complete!\n")
	fmt.Printf("- Documents submitted: %d\n", len(paths))
	if *out != "" {
		fmt.Printf("- Output: %s\n", *out)
	}
}

func buildOrchestrator(cfg *common.Config, logger *slog.Logger) *refine.Orchestrator {
	opts := refine.Options{
		MaxRetries:     cfg.AI.MaxRetries,
		MaxPromptBytes: cfg.AI.MaxPromptBytes,
		Logger:         logger,
	}
	if len(cfg.AI.PrimaryKeys) > 0 {
		opts.Primary = refine.NewChatClient("primary", cfg.AI.PrimaryBaseURL, cfg.AI.PrimaryModel, cfg.AI.Timeout, logger)
		opts.PrimaryKeys = cfg.AI.PrimaryKeys
	}
	if cfg.AI.FallbackKey != "" {
		opts.Fallback = refine.NewChatClient("fallback", cfg.AI.FallbackBaseURL, cfg.AI.FallbackModel, cfg.AI.Timeout, logger)
		opts.FallbackKey = cfg.AI.FallbackKey
	}
	orchestrator, err := refine.NewOrchestrator(opts)
	if err != nil {
		logger.Warn("AI refinement disabled", "error", err)
		return nil
	}
	logger.Info("AI refinement initialized",
		"primary_keys", len(cfg.AI.PrimaryKeys),
		"fallback", cfg.AI.FallbackKey != "",
	)
	return orchestrator
}

func collectDocuments(doc, dir string) ([]string, error) {
	var paths []string
	if doc != "" {
		paths = append(paths, doc)
	}
	if dir == "" {
		return paths, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".json", ".txt":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	return paths, nil
}
