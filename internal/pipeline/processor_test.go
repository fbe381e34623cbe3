package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specsift/specsift/constants"
	"github.com/specsift/specsift/internal/common"
	"github.com/specsift/specsift/internal/embedding"
	"github.com/specsift/specsift/internal/extract"
	"github.com/specsift/specsift/internal/refine"
	"github.com/specsift/specsift/internal/repository"
	"github.com/specsift/specsift/internal/retrieval"
	"github.com/specsift/specsift/internal/terms"
)

const specText = `2.1 CEMENT
Cement shall be 43 Grade Ordinary Portland Cement conforming to IS 269.
Refer to Table 2.1 for fineness requirements.
2.2 REINFORCEMENT
Reinforcement shall be TMT bars of grade Fe 415 conforming to IS 1786:2008.
`

func testRepo(t *testing.T) repository.RunRepository {
	t.Helper()
	db, err := repository.Open(context.Background(), common.DatabaseConfig{Path: ":memory:"}, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, repository.Migrate(context.Background(), db))
	return repository.NewRunRepository(db, slog.Default())
}

func testMaterials() []terms.MaterialTerm {
	return terms.FilterOverlapping([]terms.MaterialTerm{
		{Canonical: "Cement", Synonyms: []string{"OPC"}},
		{Canonical: "Reinforcement", Synonyms: []string{"TMT bars"}},
		{Canonical: "Bitumen"},
	})
}

func testProcessor(t *testing.T, repo repository.RunRepository, orch *refine.Orchestrator) *Processor {
	t.Helper()
	materials := testMaterials()
	return NewProcessor(ProcessorOptions{
		Materials:         materials,
		NewEmbedder:       func() embedding.Embedder { return embedding.NewTFIDF() },
		Retriever:         retrieval.NewRetriever(materials, 35, nil),
		Extractor:         extract.NewExtractor(nil),
		Orchestrator:      orch,
		Repository:        repo,
		Metric:            retrieval.MetricCosine,
		Threshold:         0.1,
		DocumentTimeout:   time.Minute,
		RefineConcurrency: 2,
	})
}

func writeDoc(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestProcessDocumentRuleOnly(t *testing.T) {
	repo := testRepo(t)
	p := testProcessor(t, repo, nil)

	result, err := p.ProcessDocument(context.Background(), writeDoc(t, "Site-Spec.txt", specText))
	require.NoError(t, err)

	// Without an orchestrator every record is degraded.
	assert.Equal(t, constants.RunStatusDegraded, result.Run.Status)
	assert.Equal(t, "site-spec", result.Run.DocumentID)
	require.Len(t, result.Records, 2)

	// Sorted by material.
	cement, reinf := result.Records[0], result.Records[1]
	assert.Equal(t, "Cement", cement.Material)
	assert.Equal(t, "Reinforcement", reinf.Material)

	assert.Contains(t, cement.Attributes["standard_code"], "IS 269")
	assert.Contains(t, cement.Attributes["numeric_spec"], "43 Grade")
	assert.NotEmpty(t, cement.SourcePassages)
	assert.True(t, cement.Degraded)

	assert.Contains(t, reinf.Attributes["standard_code"], "IS 1786:2008")

	// Persisted and readable back.
	stored, err := repo.ListRecords(context.Background(), result.Run.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

type staticProvider struct{ text string }

func (p *staticProvider) Name() string { return "static" }
func (p *staticProvider) Complete(context.Context, string, string) (string, error) {
	return p.text, nil
}

func TestProcessDocumentWithRefinement(t *testing.T) {
	repo := testRepo(t)
	orch, err := refine.NewOrchestrator(refine.Options{
		Primary:     &staticProvider{text: `{"material":"x","attributes":{"summary_grade":"43"},"confidence":0.9}`},
		PrimaryKeys: []string{"k1"},
	})
	require.NoError(t, err)

	p := testProcessor(t, repo, orch)
	result, err := p.ProcessDocument(context.Background(), writeDoc(t, "doc.txt", specText))
	require.NoError(t, err)

	assert.Equal(t, constants.RunStatusOK, result.Run.Status)
	for _, rec := range result.Records {
		assert.False(t, rec.Degraded)
		assert.Equal(t, "static", rec.Provider)
		assert.Equal(t, "43", rec.Attributes["summary_grade"])
	}
}

func TestProcessDocumentsGetIsolatedEmbedders(t *testing.T) {
	repo := testRepo(t)

	var (
		mu        sync.Mutex
		embedders []*embedding.TFIDF
	)
	materials := testMaterials()
	p := NewProcessor(ProcessorOptions{
		Materials: materials,
		NewEmbedder: func() embedding.Embedder {
			e := embedding.NewTFIDF()
			mu.Lock()
			embedders = append(embedders, e)
			mu.Unlock()
			return e
		},
		Retriever:         retrieval.NewRetriever(materials, 35, nil),
		Extractor:         extract.NewExtractor(nil),
		Repository:        repo,
		Metric:            retrieval.MetricCosine,
		Threshold:         0.1,
		DocumentTimeout:   time.Minute,
		RefineConcurrency: 2,
	})

	paths := []string{
		writeDoc(t, "doc-a.txt", specText),
		writeDoc(t, "doc-b.txt", "Bitumen shall conform to IS 73.\n"),
	}

	var wg sync.WaitGroup
	results := make([]*Result, len(paths))
	errs := make([]error, len(paths))
	for i, path := range paths {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			results[i], errs[i] = p.ProcessDocument(context.Background(), path)
		}(i, path)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	// One embedder per document; the vocabulary fitted for one run is never
	// visible to the other.
	require.Len(t, embedders, 2)
	assert.NotSame(t, embedders[0], embedders[1])

	require.Len(t, results[0].Records, 2)
	assert.Equal(t, "Cement", results[0].Records[0].Material)
	require.Len(t, results[1].Records, 1)
	assert.Equal(t, "Bitumen", results[1].Records[0].Material)
	assert.Contains(t, results[1].Records[0].Attributes["standard_code"], "IS 73")
}

// stallingProvider blocks until the caller's context expires.
type stallingProvider struct{}

func (p *stallingProvider) Name() string { return "stalling" }
func (p *stallingProvider) Complete(ctx context.Context, _, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestProcessDocumentTimeoutYieldsDegradedRecords(t *testing.T) {
	repo := testRepo(t)
	orch, err := refine.NewOrchestrator(refine.Options{
		Primary:     &stallingProvider{},
		PrimaryKeys: []string{"k1"},
	})
	require.NoError(t, err)

	materials := testMaterials()
	p := NewProcessor(ProcessorOptions{
		Materials:         materials,
		NewEmbedder:       func() embedding.Embedder { return embedding.NewTFIDF() },
		Retriever:         retrieval.NewRetriever(materials, 35, nil),
		Extractor:         extract.NewExtractor(nil),
		Orchestrator:      orch,
		Repository:        repo,
		Metric:            retrieval.MetricCosine,
		Threshold:         0.1,
		DocumentTimeout:   100 * time.Millisecond,
		RefineConcurrency: 2,
	})

	result, err := p.ProcessDocument(context.Background(), writeDoc(t, "slow.txt", specText))
	require.NoError(t, err)

	// The expired document deadline leaves every pending material degraded,
	// with its reconciled rule attributes intact, and the run still persists.
	assert.Equal(t, constants.RunStatusDegraded, result.Run.Status)
	require.Len(t, result.Records, 2)
	for _, rec := range result.Records {
		assert.True(t, rec.Degraded)
		assert.Equal(t, refine.StateFailed, rec.State)
		assert.NotEmpty(t, rec.Attributes)
	}
	assert.Contains(t, result.Records[0].Attributes["standard_code"], "IS 269")

	stored, err := repo.ListRecords(context.Background(), result.Run.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestProcessDocumentEmptyFails(t *testing.T) {
	repo := testRepo(t)
	p := testProcessor(t, repo, nil)

	_, err := p.ProcessDocument(context.Background(), writeDoc(t, "empty.txt", "\n  \n"))
	require.Error(t, err)

	_, err = p.ProcessDocument(context.Background(), filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}

func TestDocumentIDFromPath(t *testing.T) {
	assert.Equal(t, "site-spec", documentID("/tmp/a/Site-Spec.txt"))
	assert.Equal(t, "pages", documentID("pages.json"))
	assert.Equal(t, "noext", documentID("noext"))
}
