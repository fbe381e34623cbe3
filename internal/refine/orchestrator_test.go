package refine

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specsift/specsift/internal/extract"
)

const validResponse = `{"material":"Cement","attributes":{"standard_code":"IS 269:2015","grade":"43"},"summary":"ordinary portland cement","confidence":0.8}`

// fakeProvider scripts responses per call and records which keys were used.
type fakeProvider struct {
	mu        sync.Mutex
	name      string
	responses []func(key string) (string, error)
	calls     int
	keysUsed  []string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(_ context.Context, key, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keysUsed = append(f.keysUsed, key)
	i := f.calls
	f.calls++
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return f.responses[i](key)
}

func always(text string, err error) []func(string) (string, error) {
	return []func(string) (string, error){func(string) (string, error) { return text, err }}
}

func cementFields() []extract.Field {
	return []extract.Field{
		{Material: "Cement", Attribute: "standard_code", RawValue: "IS 269", PassageID: "p1"},
		{Material: "Cement", Attribute: "heading", RawValue: "2.1 Cement (Page 4)", PassageID: "p1"},
	}
}

func TestRefinePrimarySuccess(t *testing.T) {
	primary := &fakeProvider{name: "primary", responses: always(validResponse, nil)}
	o, err := NewOrchestrator(Options{Primary: primary, PrimaryKeys: []string{"k1"}})
	require.NoError(t, err)

	rec := o.Refine(context.Background(), "doc-1", "Cement", cementFields())

	assert.False(t, rec.Degraded)
	assert.Equal(t, StatePrimaryActive, rec.State)
	assert.Equal(t, "primary", rec.Provider)
	assert.InDelta(t, 0.8, rec.Confidence, 1e-9)
	assert.Equal(t, "ordinary portland cement", rec.Summary)

	// AI attributes overlay the reconciled rule attributes.
	assert.Equal(t, "IS 269:2015", rec.Attributes["standard_code"])
	assert.Equal(t, "43", rec.Attributes["grade"])
	assert.Equal(t, "2.1 Cement (Page 4)", rec.Attributes["heading"])
	assert.Equal(t, []string{"p1"}, rec.SourcePassages)
}

func TestRefineRotatesEveryKeyOnceBeforeFallback(t *testing.T) {
	primary := &fakeProvider{name: "primary", responses: always("", ErrQuotaExceeded)}
	fallback := &fakeProvider{name: "fallback", responses: always(validResponse, nil)}

	o, err := NewOrchestrator(Options{
		Primary:     primary,
		PrimaryKeys: []string{"k1", "k2", "k3"},
		Fallback:    fallback,
		FallbackKey: "fb",
	})
	require.NoError(t, err)

	rec := o.Refine(context.Background(), "doc-1", "Cement", cementFields())

	// Each primary key tried exactly once, in rotation order, then fallback.
	require.Len(t, primary.keysUsed, 3)
	assert.ElementsMatch(t, []string{"k1", "k2", "k3"}, primary.keysUsed)
	assert.Equal(t, []string{"fb"}, fallback.keysUsed)

	assert.False(t, rec.Degraded)
	assert.Equal(t, StateFallbackActive, rec.State)
	assert.Equal(t, "fallback", rec.Provider)
}

func TestRefineDegradedKeepsReconciledAttributes(t *testing.T) {
	primary := &fakeProvider{name: "primary", responses: always("", ErrQuotaExceeded)}
	fallback := &fakeProvider{name: "fallback", responses: always("", ErrQuotaExceeded)}

	o, err := NewOrchestrator(Options{
		Primary:     primary,
		PrimaryKeys: []string{"k1", "k2"},
		Fallback:    fallback,
		FallbackKey: "fb",
	})
	require.NoError(t, err)

	rec := o.Refine(context.Background(), "doc-1", "Cement", cementFields())

	assert.True(t, rec.Degraded)
	assert.Equal(t, StateFailed, rec.State)
	assert.Empty(t, rec.Provider)
	assert.Equal(t, "IS 269", rec.Attributes["standard_code"])
	assert.Equal(t, "2.1 Cement (Page 4)", rec.Attributes["heading"])
	assert.InDelta(t, ruleOnlyConfidence, rec.Confidence, 1e-9)
}

func TestRefineMalformedGetsSingleRetry(t *testing.T) {
	primary := &fakeProvider{name: "primary", responses: []func(string) (string, error){
		func(string) (string, error) { return "sorry, no JSON here", nil },
		func(string) (string, error) { return validResponse, nil },
	}}
	o, err := NewOrchestrator(Options{Primary: primary, PrimaryKeys: []string{"k1"}})
	require.NoError(t, err)

	rec := o.Refine(context.Background(), "doc-1", "Cement", cementFields())

	assert.Equal(t, 2, primary.calls)
	assert.False(t, rec.Degraded)
	assert.Equal(t, "primary", rec.Provider)
}

func TestRefineMalformedTwiceEscalatesToFallback(t *testing.T) {
	primary := &fakeProvider{name: "primary", responses: always("still not JSON", nil)}
	fallback := &fakeProvider{name: "fallback", responses: always(validResponse, nil)}

	o, err := NewOrchestrator(Options{
		Primary:     primary,
		PrimaryKeys: []string{"k1", "k2"},
		Fallback:    fallback,
		FallbackKey: "fb",
	})
	require.NoError(t, err)

	rec := o.Refine(context.Background(), "doc-1", "Cement", cementFields())

	// One attempt plus one retry on the same provider, no key rotation for
	// malformed output, then the fallback.
	assert.Equal(t, 2, primary.calls)
	assert.Equal(t, []string{"k1", "k1"}, primary.keysUsed)
	assert.Equal(t, "fallback", rec.Provider)
}

func TestRefineCanceledContextReturnsDegraded(t *testing.T) {
	primary := &fakeProvider{name: "primary", responses: always(validResponse, nil)}
	o, err := NewOrchestrator(Options{Primary: primary, PrimaryKeys: []string{"k1"}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := o.Refine(ctx, "doc-1", "Cement", cementFields())

	assert.True(t, rec.Degraded)
	assert.Equal(t, StateFailed, rec.State)
	assert.Zero(t, primary.calls)
	assert.Equal(t, "IS 269", rec.Attributes["standard_code"])
}

func TestRefineNoFallbackConfigured(t *testing.T) {
	primary := &fakeProvider{name: "primary", responses: always("", ErrUnavailable)}
	o, err := NewOrchestrator(Options{Primary: primary, PrimaryKeys: []string{"k1", "k2"}})
	require.NoError(t, err)

	rec := o.Refine(context.Background(), "doc-1", "Cement", cementFields())

	// Unavailability is a provider failure: no key rotation, straight to degraded.
	assert.Equal(t, 1, primary.calls)
	assert.True(t, rec.Degraded)
}

func TestRefineRotationCursorSpreadsAcrossCalls(t *testing.T) {
	primary := &fakeProvider{name: "primary", responses: always(validResponse, nil)}
	o, err := NewOrchestrator(Options{Primary: primary, PrimaryKeys: []string{"k1", "k2"}})
	require.NoError(t, err)

	o.Refine(context.Background(), "doc-1", "Cement", cementFields())
	o.Refine(context.Background(), "doc-1", "Steel", cementFields())

	assert.Equal(t, []string{"k1", "k2"}, primary.keysUsed)
}

// captureHandler records log messages for assertions.
type captureHandler struct {
	mu   sync.Mutex
	msgs []string
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, r.Message)
	return nil
}
func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(string) slog.Handler      { return h }

func TestRefineFallbackOnlyDoesNotLogPrimaryExhausted(t *testing.T) {
	fallback := &fakeProvider{name: "fallback", responses: always(validResponse, nil)}
	capture := &captureHandler{}
	o, err := NewOrchestrator(Options{
		Fallback:    fallback,
		FallbackKey: "fb",
		Logger:      slog.New(capture),
	})
	require.NoError(t, err)

	rec := o.Refine(context.Background(), "doc-1", "Cement", cementFields())

	assert.False(t, rec.Degraded)
	assert.Equal(t, StateFallbackActive, rec.State)
	assert.Equal(t, []string{"fb"}, fallback.keysUsed)

	// With no primary pool configured there is nothing to exhaust.
	assert.NotContains(t, capture.msgs, "refine.primary_exhausted")
}

func TestNewOrchestratorRequiresCredentials(t *testing.T) {
	_, err := NewOrchestrator(Options{})
	assert.ErrorIs(t, err, ErrNoCredentials)

	_, err = NewOrchestrator(Options{Primary: &fakeProvider{name: "p"}})
	assert.ErrorIs(t, err, ErrNoCredentials)
}
