package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/specsift/specsift/constants"
	"github.com/specsift/specsift/internal/common"
	"github.com/specsift/specsift/internal/refine"
)

// Run is one processing pass over one document.
type Run struct {
	ID                string
	DocumentID        string
	DocumentPath      string
	Status            constants.RunStatus
	MaterialsTotal    int
	MaterialsDegraded int
	StartedAt         time.Time
	FinishedAt        *time.Time
}

// RunRepository persists runs and their material records.
type RunRepository interface {
	CreateRun(ctx context.Context, documentID, documentPath string) (*Run, error)
	FinishRun(ctx context.Context, runID string, status constants.RunStatus, total, degraded int) error
	SaveRecords(ctx context.Context, runID string, records []refine.Record) error
	ListRecords(ctx context.Context, runID string) ([]refine.Record, error)
	ListRecordsByDocument(ctx context.Context, documentID string) ([]refine.Record, error)
}

type runRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRunRepository wraps db in a RunRepository.
func NewRunRepository(db *sql.DB, logger *slog.Logger) RunRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &runRepository{db: db, logger: logger}
}

func (r *runRepository) CreateRun(ctx context.Context, documentID, documentPath string) (*Run, error) {
	run := &Run{
		ID:           uuid.New().String(),
		DocumentID:   documentID,
		DocumentPath: documentPath,
		Status:       constants.RunStatusRunning,
		StartedAt:    now(),
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO runs (id, document_id, document_path, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.DocumentID, run.DocumentPath, string(run.Status), run.StartedAt,
	)
	if err != nil {
		r.logger.Error("repo.create_run_failed", "document_id", documentID, "error", err)
		return nil, common.WrapError(common.ErrDatabase, fmt.Sprintf("create run for %s", documentID))
	}
	return run, nil
}

func (r *runRepository) FinishRun(ctx context.Context, runID string, status constants.RunStatus, total, degraded int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE runs SET status = $1, materials_total = $2, materials_degraded = $3, finished_at = $4 WHERE id = $5`,
		string(status), total, degraded, now(), runID,
	)
	if err != nil {
		r.logger.Error("repo.finish_run_failed", "run_id", runID, "error", err)
		return common.WrapError(common.ErrDatabase, fmt.Sprintf("finish run %s", runID))
	}
	return nil
}

func (r *runRepository) SaveRecords(ctx context.Context, runID string, records []refine.Record) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return common.WrapError(common.ErrDatabase, "begin record transaction")
	}
	defer func() { _ = tx.Rollback() }()

	for _, rec := range records {
		attrs, err := json.Marshal(rec.Attributes)
		if err != nil {
			return fmt.Errorf("encode attributes for %s: %w", rec.Material, err)
		}
		passages, err := json.Marshal(rec.SourcePassages)
		if err != nil {
			return fmt.Errorf("encode source passages for %s: %w", rec.Material, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO records
				(id, run_id, document_id, material, attributes, summary, source_passages, provider, confidence, degraded, state, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			rec.ID, runID, rec.DocumentID, rec.Material, string(attrs), rec.Summary,
			string(passages), rec.Provider, rec.Confidence, rec.Degraded, string(rec.State), now(),
		)
		if err != nil {
			r.logger.Error("repo.save_record_failed", "run_id", runID, "material", rec.Material, "error", err)
			return common.WrapError(common.ErrDatabase, fmt.Sprintf("save record for %s", rec.Material))
		}
	}
	if err := tx.Commit(); err != nil {
		return common.WrapError(common.ErrDatabase, "commit records")
	}
	r.logger.Info("repo.records_saved", "run_id", runID, "count", len(records))
	return nil
}

func (r *runRepository) ListRecords(ctx context.Context, runID string) ([]refine.Record, error) {
	return r.queryRecords(ctx,
		`SELECT id, document_id, material, attributes, summary, source_passages, provider, confidence, degraded, state
		 FROM records WHERE run_id = $1 ORDER BY material`, runID)
}

func (r *runRepository) ListRecordsByDocument(ctx context.Context, documentID string) ([]refine.Record, error) {
	return r.queryRecords(ctx,
		`SELECT id, document_id, material, attributes, summary, source_passages, provider, confidence, degraded, state
		 FROM records WHERE document_id = $1 ORDER BY material`, documentID)
}

func (r *runRepository) queryRecords(ctx context.Context, query string, arg any) ([]refine.Record, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, common.WrapError(common.ErrDatabase, "query records")
	}
	defer rows.Close()

	var out []refine.Record
	for rows.Next() {
		var rec refine.Record
		var attrs, passages, state string
		if err := rows.Scan(&rec.ID, &rec.DocumentID, &rec.Material, &attrs, &rec.Summary,
			&passages, &rec.Provider, &rec.Confidence, &rec.Degraded, &state); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if err := json.Unmarshal([]byte(attrs), &rec.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes of record %s: %w", rec.ID, err)
		}
		if err := json.Unmarshal([]byte(passages), &rec.SourcePassages); err != nil {
			return nil, fmt.Errorf("decode source passages of record %s: %w", rec.ID, err)
		}
		rec.State = refine.State(state)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}
