package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/specsift/specsift/internal/common"
	"github.com/specsift/specsift/internal/evalharness"
	repo "github.com/specsift/specsift/internal/repository"
)

func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	_ = godotenv.Load()

	var (
		truthPath = flag.String("truth", "", "ground truth file, .csv or .xlsx (required)")
		predPath  = flag.String("predicted", "", "predicted items file instead of the database (optional)")
		asJSON    = flag.Bool("json", false, "emit the report as JSON")
	)
	flag.Parse()

	if *truthPath == "" {
		printError("Error: --truth is required\n")
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	ctx := context.Background()

	truth, err := evalharness.LoadItems(*truthPath)
	if err != nil {
		logger.Error("failed to load ground truth", "error", err)
		os.Exit(1)
	}
	logger.Info("ground truth loaded", "items", len(truth))

	var predicted []evalharness.Item
	if *predPath != "" {
		predicted, err = evalharness.LoadItems(*predPath)
		if err != nil {
			logger.Error("failed to load predictions", "error", err)
			os.Exit(1)
		}
	} else {
		predicted, err = predictionsFromDB(ctx, truth, logger)
		if err != nil {
			logger.Error("failed to load predictions from database", "error", err)
			os.Exit(1)
		}
	}
	logger.Info("predictions loaded", "items", len(predicted))

	report := evalharness.Evaluate(predicted, truth)

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			logger.Error("failed to encode report", "error", err)
			os.Exit(1)
		}
		return
	}

	fmt.Printf("Overall: P=%.3f R=%.3f F1=%.3f (TP=%d FP=%d FN=%d)\n",
		report.Overall.Precision, report.Overall.Recall, report.Overall.F1,
		report.Overall.TruePositives, report.Overall.FalsePositives, report.Overall.FalseNegatives)
	for _, mm := range report.PerMaterial {
		fmt.Printf("  %-30s P=%.3f R=%.3f F1=%.3f\n",
			mm.Material, mm.Metrics.Precision, mm.Metrics.Recall, mm.Metrics.F1)
	}
}

// predictionsFromDB reads the stored records for every document named in the
// ground truth and flattens their attributes into evaluation items.
func predictionsFromDB(ctx context.Context, truth []evalharness.Item, logger *slog.Logger) ([]evalharness.Item, error) {
	cfg := common.LoadConfig()
	db, err := repo.Open(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	defer repo.Close(db, logger)
	if err := repo.Migrate(ctx, db); err != nil {
		return nil, err
	}
	runs := repo.NewRunRepository(db, logger)

	seen := make(map[string]struct{})
	var predicted []evalharness.Item
	for _, t := range truth {
		docID := evalharness.Normalize(t.DocumentID)
		if _, ok := seen[docID]; ok {
			continue
		}
		seen[docID] = struct{}{}

		recs, err := runs.ListRecordsByDocument(ctx, docID)
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			for attr, value := range rec.Attributes {
				predicted = append(predicted, evalharness.Item{
					DocumentID: rec.DocumentID,
					Material:   rec.Material,
					Attribute:  attr,
					Value:      value,
				})
			}
		}
	}
	return predicted, nil
}
