package refine

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/specsift/specsift/internal/extract"
)

// Options configures the refinement orchestrator.
type Options struct {
	Primary     Provider
	PrimaryKeys []string
	Fallback    Provider
	FallbackKey string

	// MaxRetries bounds timeout retries per provider call.
	MaxRetries int
	// MaxPromptBytes bounds the rendered prompt; 0 means unbounded.
	MaxPromptBytes int
	Logger         *slog.Logger
}

// Orchestrator drives one material's fields through AI refinement. Rotation
// and fallback state is local to each Refine call; the only shared state is a
// counter that staggers which primary credential each call tries first, so
// quota use spreads across the pool.
type Orchestrator struct {
	opts   Options
	log    *slog.Logger
	cursor atomic.Uint64
}

// NewOrchestrator validates the provider wiring and returns an orchestrator.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Primary == nil && opts.Fallback == nil {
		return nil, ErrNoCredentials
	}
	if opts.Primary != nil && len(opts.PrimaryKeys) == 0 {
		return nil, ErrNoCredentials
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Orchestrator{opts: opts, log: opts.Logger}, nil
}

// Refine runs the state machine for one material and always returns a usable
// record. PRIMARY_ACTIVE tries each primary credential exactly once (quota
// errors rotate to the next key; any other provider failure abandons the
// primary). PRIMARY_EXHAUSTED transitions to FALLBACK_ACTIVE for a single
// fallback attempt. FAILED yields a degraded record that keeps the reconciled
// rule attributes. A canceled context short-circuits to the degraded record.
func (o *Orchestrator) Refine(ctx context.Context, documentID, material string, fields []extract.Field) Record {
	return o.refineRecord(ctx, NewBaseRecord(documentID, material, fields), nil)
}

// RefineWithPassages is Refine with the source passage texts included in the
// prompt. The pipeline uses this path; Refine without passages exists for
// callers that only have reconciled attributes.
func (o *Orchestrator) RefineWithPassages(ctx context.Context, documentID, material string, fields []extract.Field, passages []string) Record {
	rec := NewBaseRecord(documentID, material, fields)
	return o.refineRecord(ctx, rec, passages)
}

func (o *Orchestrator) refineRecord(ctx context.Context, rec Record, passages []string) Record {
	prompt := BuildPrompt(rec.Material, rec.Attributes, passages, o.opts.MaxPromptBytes)
	state := StatePrimaryActive

	if o.opts.Primary != nil {
		keys := o.opts.PrimaryKeys
		start := int(o.cursor.Add(1)-1) % len(keys)
		for i := 0; i < len(keys); i++ {
			if ctx.Err() != nil {
				return rec
			}
			key := keys[(start+i)%len(keys)]
			ref, err := o.callProvider(ctx, o.opts.Primary, key, prompt)
			if err == nil {
				return o.applyRefinement(rec, ref, o.opts.Primary.Name(), state)
			}
			if errors.Is(err, ErrQuotaExceeded) {
				o.log.Info("refine.key_rotated",
					"material", rec.Material, "key_index", (start+i)%len(keys), "error", err)
				continue
			}
			if ctx.Err() != nil {
				return rec
			}
			// Timeouts (already retried), unavailability, and persistently
			// malformed output are provider-level failures, not key-level.
			o.log.Warn("refine.primary_failed", "material", rec.Material, "error", err)
			break
		}
	}

	state = StatePrimaryExhausted
	if o.opts.Primary != nil {
		o.log.Warn("refine.primary_exhausted", "material", rec.Material, "document_id", rec.DocumentID)
	}

	if o.opts.Fallback != nil && ctx.Err() == nil {
		state = StateFallbackActive
		ref, err := o.callProvider(ctx, o.opts.Fallback, o.opts.FallbackKey, prompt)
		if err == nil {
			return o.applyRefinement(rec, ref, o.opts.Fallback.Name(), state)
		}
		o.log.Warn("refine.fallback_failed", "material", rec.Material, "error", err)
	}

	rec.State = StateFailed
	rec.Degraded = true
	o.log.Warn("refine.degraded",
		"material", rec.Material, "document_id", rec.DocumentID,
		"attributes", len(rec.Attributes),
	)
	return rec
}

// callProvider performs one logical provider attempt: timeouts retry with
// bounded backoff, and a malformed response earns exactly one retry on the
// same provider before escalating.
func (o *Orchestrator) callProvider(ctx context.Context, p Provider, key, prompt string) (*refinement, error) {
	text, err := o.completeWithRetry(ctx, p, key, prompt)
	if err != nil {
		return nil, err
	}
	ref, perr := ParseRefinement(text)
	if perr == nil {
		return ref, nil
	}
	o.log.Warn("refine.malformed_response", "provider", p.Name(), "error", perr)

	text, err = o.completeWithRetry(ctx, p, key, prompt)
	if err != nil {
		return nil, err
	}
	return ParseRefinement(text)
}

func (o *Orchestrator) completeWithRetry(ctx context.Context, p Provider, key, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= o.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryDelay(attempt)):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		text, err := p.Complete(ctx, key, prompt)
		if err == nil {
			return text, nil
		}
		if !errors.Is(err, ErrTimeout) {
			return "", err
		}
		lastErr = err
		o.log.Warn("refine.timeout_retry", "provider", p.Name(), "attempt", attempt+1)
	}
	return "", lastErr
}

func retryDelay(attempt int) time.Duration {
	d := 500 * time.Millisecond << (attempt - 1)
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func (o *Orchestrator) applyRefinement(rec Record, ref *refinement, provider string, state State) Record {
	merged := make(map[string]string, len(rec.Attributes)+len(ref.Attributes))
	for k, v := range rec.Attributes {
		merged[k] = v
	}
	for k, v := range ref.Attributes {
		merged[k] = v
	}
	rec.Attributes = merged
	rec.Summary = ref.Summary
	rec.Provider = provider
	rec.Confidence = ref.Confidence
	if rec.Confidence == 0 {
		rec.Confidence = defaultAIConfidence
	}
	rec.Degraded = false
	rec.State = state
	o.log.Info("refine.ok",
		"material", rec.Material, "provider", provider,
		"state", string(state), "attributes", len(rec.Attributes),
	)
	return rec
}
