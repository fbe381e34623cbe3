package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/specsift/specsift/constants"
	"github.com/specsift/specsift/internal/common"
	"github.com/specsift/specsift/internal/document"
	"github.com/specsift/specsift/internal/embedding"
	"github.com/specsift/specsift/internal/extract"
	"github.com/specsift/specsift/internal/refine"
	"github.com/specsift/specsift/internal/repository"
	"github.com/specsift/specsift/internal/retrieval"
	"github.com/specsift/specsift/internal/terms"
)

// maxPromptPassages caps how many candidate passages feed the refinement
// prompt; the byte bound in the orchestrator is the hard limit.
const maxPromptPassages = 10

// Result is one completed document run.
type Result struct {
	Run     *repository.Run
	Records []refine.Record
}

// Processor coordinates one document end to end: ingest, index, retrieve,
// extract, refine, persist. Failures stay local to a material; only an
// unreadable or empty document fails the run.
type Processor struct {
	logger       *slog.Logger
	materials    []terms.MaterialTerm
	newEmbedder  func() embedding.Embedder
	retriever    *retrieval.Retriever
	extractor    *extract.Extractor
	orchestrator *refine.Orchestrator
	repo         repository.RunRepository

	metric      retrieval.Metric
	threshold   float64
	docTimeout  time.Duration
	concurrency int
}

// ProcessorOptions wires a Processor. Orchestrator may be nil, in which case
// every record is persisted degraded (rule output only). NewEmbedder is called
// once per document so corpus-fitted embedders are never shared across
// concurrently processed documents; nil disables the semantic path.
type ProcessorOptions struct {
	Materials    []terms.MaterialTerm
	NewEmbedder  func() embedding.Embedder
	Retriever    *retrieval.Retriever
	Extractor    *extract.Extractor
	Orchestrator *refine.Orchestrator
	Repository   repository.RunRepository

	Metric            retrieval.Metric
	Threshold         float64
	DocumentTimeout   time.Duration
	RefineConcurrency int
	Logger            *slog.Logger
}

// NewProcessor builds a processor from its options.
func NewProcessor(opts ProcessorOptions) *Processor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := opts.RefineConcurrency
	if concurrency <= 0 {
		concurrency = 3
	}
	return &Processor{
		logger:       logger,
		materials:    opts.Materials,
		newEmbedder:  opts.NewEmbedder,
		retriever:    opts.Retriever,
		extractor:    opts.Extractor,
		orchestrator: opts.Orchestrator,
		repo:         opts.Repository,
		metric:       opts.Metric,
		threshold:    opts.Threshold,
		docTimeout:   opts.DocumentTimeout,
		concurrency:  concurrency,
	}
}

// ProcessDocument runs the full pipeline over one document file. The document
// timeout covers indexing through refinement; when it fires, materials still
// awaiting AI output are persisted degraded with their rule attributes intact.
func (p *Processor) ProcessDocument(ctx context.Context, path string) (*Result, error) {
	docID := documentID(path)
	log := p.logger.With("document_id", docID)

	pages, err := document.LoadPages(path)
	if err != nil {
		return nil, common.WrapError(err, fmt.Sprintf("load document %s", path))
	}
	store := document.NewStore(docID, pages)
	if store.Len() == 0 {
		return nil, common.NewAppError("EMPTY_DOCUMENT", fmt.Sprintf("document %s has no usable text", path), common.ErrInvalidInput)
	}
	log.Info("pipeline.document.loaded", "pages", len(pages), "passages", store.Len())

	run, err := p.repo.CreateRun(ctx, docID, path)
	if err != nil {
		return nil, err
	}

	docCtx := ctx
	if p.docTimeout > 0 {
		var cancel context.CancelFunc
		docCtx, cancel = context.WithTimeout(ctx, p.docTimeout)
		defer cancel()
	}

	index := p.buildIndex(docCtx, store, log)
	candidates := p.retriever.Retrieve(docCtx, store, index, p.materials)
	records := p.refineAll(docCtx, store, docID, candidates, log)

	// Persistence must survive the document timeout.
	saveCtx := context.WithoutCancel(ctx)
	if err := p.repo.SaveRecords(saveCtx, run.ID, records); err != nil {
		_ = p.repo.FinishRun(saveCtx, run.ID, constants.RunStatusFailed, len(records), 0)
		return nil, err
	}

	degraded := 0
	for _, rec := range records {
		if rec.Degraded {
			degraded++
		}
	}
	status := constants.RunStatusOK
	if degraded > 0 {
		status = constants.RunStatusDegraded
	}
	if err := p.repo.FinishRun(saveCtx, run.ID, status, len(records), degraded); err != nil {
		return nil, err
	}
	run.Status = status
	run.MaterialsTotal = len(records)
	run.MaterialsDegraded = degraded

	log.Info("pipeline.document.done",
		"run_id", run.ID, "status", string(status),
		"records", len(records), "degraded", degraded,
	)
	return &Result{Run: run, Records: records}, nil
}

// buildIndex embeds the passage corpus once, on a fresh per-document embedder.
// Embedding failure downgrades the run to keyword-only retrieval instead of
// failing it.
func (p *Processor) buildIndex(ctx context.Context, store *document.Store, log *slog.Logger) *retrieval.Index {
	if p.newEmbedder == nil {
		return nil
	}
	emb := p.newEmbedder()
	if emb == nil {
		return nil
	}
	index, err := retrieval.BuildIndex(ctx, emb, store, p.metric, p.threshold, log)
	if err != nil {
		log.Warn("pipeline.index.unavailable", "error", err)
		return nil
	}
	return index
}

func (p *Processor) refineAll(ctx context.Context, store *document.Store, docID string, candidates map[string][]retrieval.CandidateHit, log *slog.Logger) []refine.Record {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		records []refine.Record
	)
	sem := make(chan struct{}, p.concurrency)

	for _, mat := range p.materials {
		hits := candidates[mat.Canonical]
		if len(hits) == 0 {
			continue
		}
		fields := p.extractor.Extract(store, hits)
		if len(fields) == 0 {
			log.Debug("pipeline.extract.empty", "material", mat.Canonical)
			continue
		}

		wg.Add(1)
		go func(material string, fields []extract.Field, passages []string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			var rec refine.Record
			if p.orchestrator != nil {
				rec = p.orchestrator.RefineWithPassages(ctx, docID, material, fields, passages)
			} else {
				rec = refine.NewBaseRecord(docID, material, fields)
			}
			mu.Lock()
			records = append(records, rec)
			mu.Unlock()
		}(mat.Canonical, fields, passageTexts(store, hits))
	}
	wg.Wait()

	// Deterministic persistence order regardless of goroutine completion.
	sortRecords(records)
	return records
}

func passageTexts(store *document.Store, hits []retrieval.CandidateHit) []string {
	n := len(hits)
	if n > maxPromptPassages {
		n = maxPromptPassages
	}
	texts := make([]string, 0, n)
	for _, h := range hits[:n] {
		if passage, ok := store.Passage(h.PassageID); ok {
			texts = append(texts, passage.Text)
		}
	}
	return texts
}

func sortRecords(records []refine.Record) {
	sort.Slice(records, func(a, b int) bool { return records[a].Material < records[b].Material })
}

// documentID derives the stable document identifier from the file path: the
// base name without extension, lowercased. Ground truth files key on this.
func documentID(path string) string {
	base := filepath.Base(path)
	return strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
}
