package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specsift/specsift/constants"
	"github.com/specsift/specsift/internal/common"
	"github.com/specsift/specsift/internal/refine"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(context.Background(), common.DatabaseConfig{Path: ":memory:"}, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(context.Background(), db))
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)
	require.NoError(t, Migrate(context.Background(), db))
}

func TestRunRecordRoundtrip(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository(testDB(t), slog.Default())

	run, err := repo.CreateRun(ctx, "doc-1", "/tmp/doc-1.txt")
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, constants.RunStatusRunning, run.Status)

	records := []refine.Record{
		{
			ID:             "rec-2",
			DocumentID:     "doc-1",
			Material:       "Steel",
			Attributes:     map[string]string{"grade": "Fe 415"},
			SourcePassages: []string{"p7"},
			Provider:       "primary",
			Confidence:     0.9,
			Degraded:       false,
			State:          refine.StatePrimaryActive,
		},
		{
			ID:             "rec-1",
			DocumentID:     "doc-1",
			Material:       "Cement",
			Attributes:     map[string]string{"standard_code": "IS 269", "heading": "2.1 Cement (Page 4)"},
			Summary:        "ordinary portland cement",
			SourcePassages: []string{"p1", "p2"},
			Confidence:     0.4,
			Degraded:       true,
			State:          refine.StateFailed,
		},
	}
	require.NoError(t, repo.SaveRecords(ctx, run.ID, records))
	require.NoError(t, repo.FinishRun(ctx, run.ID, constants.RunStatusDegraded, 2, 1))

	got, err := repo.ListRecords(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Ordered by material.
	assert.Equal(t, "Cement", got[0].Material)
	assert.Equal(t, "Steel", got[1].Material)

	assert.Equal(t, map[string]string{"standard_code": "IS 269", "heading": "2.1 Cement (Page 4)"}, got[0].Attributes)
	assert.Equal(t, []string{"p1", "p2"}, got[0].SourcePassages)
	assert.True(t, got[0].Degraded)
	assert.Equal(t, refine.StateFailed, got[0].State)
	assert.Equal(t, "ordinary portland cement", got[0].Summary)

	assert.Equal(t, "primary", got[1].Provider)
	assert.False(t, got[1].Degraded)
	assert.InDelta(t, 0.9, got[1].Confidence, 1e-9)

	byDoc, err := repo.ListRecordsByDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Len(t, byDoc, 2)

	empty, err := repo.ListRecordsByDocument(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSaveRecordsEmptyIsNoop(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository(testDB(t), slog.Default())

	run, err := repo.CreateRun(ctx, "doc-1", "/tmp/doc-1.txt")
	require.NoError(t, err)
	require.NoError(t, repo.SaveRecords(ctx, run.ID, nil))

	got, err := repo.ListRecords(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
}
