package generate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dshills/taxgen/internal/domain"
	"github.com/dshills/taxgen/internal/llm"
	"github.com/dshills/taxgen/internal/schema"
	"github.com/dshills/taxgen/internal/store"
	"github.com/dshills/taxgen/internal/validate"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var goodFacts = llm.FactSet{
	Facts: []string{
		"Maria spent $500 on a client dinner.",
		"Business meals are limited to 50% under IRC Section 274.",
		"Therefore only part of the meal qualifies for a deduction.",
	},
	Answer: "$250",
}

// fakeSource scripts generator responses. Facts responses are consumed per
// domain in order; the last one repeats.
type fakeSource struct {
	mu        sync.Mutex
	facts     map[string][]llm.FactSet
	factsErrs map[string][]error
	answer    string
	reasoning []string
	calls     map[string]int
	factCalls map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		facts:     map[string][]llm.FactSet{},
		factsErrs: map[string][]error{},
		answer:    "$250 (50% of $500)",
		reasoning: []string{"The dinner cost $500.", "Half of $500 is $250."},
		calls:     map[string]int{},
		factCalls: map[string]int{},
	}
}

func (f *fakeSource) Facts(_ context.Context, d, _ string) (llm.FactSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["facts"]++
	n := f.factCalls[d]
	f.factCalls[d]++
	if errs := f.factsErrs[d]; n < len(errs) && errs[n] != nil {
		return llm.FactSet{}, errs[n]
	}
	script, ok := f.facts[d]
	if !ok || len(script) == 0 {
		return goodFacts, nil
	}
	if n >= len(script) {
		n = len(script) - 1
	}
	return script[n], nil
}

func (f *fakeSource) Narrative(context.Context, string, []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["narrative"]++
	return "Maria hosted a prospective client at a downtown restaurant.", nil
}

func (f *fakeSource) Answer(context.Context, string, []string, string, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["answer"]++
	return f.answer, nil
}

func (f *fakeSource) Reasoning(context.Context, string, []string, string, string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["reasoning"]++
	return f.reasoning, nil
}

func (f *fakeSource) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[call]
}

var fixedNow = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

func TestGenerateCase_AcceptsFirstAttempt(t *testing.T) {
	src := newFakeSource()
	st := store.NewMemoryStore()
	o := New(domain.Builtin(), src, WithStore(st), WithBackend("mock/test"), WithClock(fixedNow))

	res, err := o.GenerateCase(context.Background(), "business_meal_deduction", Options{})
	require.NoError(t, err)
	require.True(t, res.OK())
	assert.Equal(t, StateAccepted, res.State)
	assert.False(t, res.Cached)
	assert.Len(t, res.Attempts, 1)
	assert.Equal(t, "memory://business_meal_deduction", res.Location)

	c := res.Case
	assert.Equal(t, "How much of the meal expense is deductible?", c.Question)
	assert.Equal(t, "$250", c.Answer, "consistent embedded answer should be kept")
	assert.Equal(t, 0, src.count("answer"))
	assert.Equal(t, []schema.Category{schema.CategorySituational, schema.CategoryRule, schema.CategoryConclusion},
		[]schema.Category{c.Facts[0].Category, c.Facts[1].Category, c.Facts[2].Category})
	assert.Equal(t, "1", c.Metadata[schema.MetaAttempts])
	assert.Equal(t, "mock/test", c.Metadata[schema.MetaBackend])
	assert.Equal(t, "scaled", c.Metadata[schema.MetaDerivation])
	assert.Equal(t, "2026-01-02T03:04:05Z", c.Metadata[schema.MetaGeneratedAt])
	assert.Equal(t, o.RunID(), c.Metadata[schema.MetaRunID])
	assert.NotContains(t, c.Metadata, schema.MetaDefects)

	ok, err := st.Exists(context.Background(), "business_meal_deduction")
	require.NoError(t, err)
	assert.True(t, ok)

	s := o.Stats()
	assert.Equal(t, 1, s.CasesGenerated)
	assert.Equal(t, 1, s.ValidationsPassed)
	assert.Equal(t, 0, s.Regenerations)
	assert.Equal(t, []string{"business_meal_deduction"}, o.GeneratedDomains())
}

func TestGenerateCase_CacheHitIsIdempotent(t *testing.T) {
	src := newFakeSource()
	o := New(domain.Builtin(), src)
	ctx := context.Background()

	first, err := o.GenerateCase(ctx, "business_meal_deduction", Options{})
	require.NoError(t, err)
	before := o.Stats()
	calls := src.count("facts")

	second, err := o.GenerateCase(ctx, "business_meal_deduction", Options{})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Same(t, first.Case, second.Case)
	assert.Equal(t, calls, src.count("facts"), "cache hit must not call the generator")

	after := o.Stats()
	assert.Equal(t, before.CasesGenerated, after.CasesGenerated)
	assert.Equal(t, before.ValidationsPassed, after.ValidationsPassed)
	assert.Equal(t, before.CacheHits+1, after.CacheHits)
}

func TestGenerateCase_StoreHitSkipsGeneration(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	stored := &schema.Case{Domain: "home_office_deduction", Narrative: "stored", Answer: "12.5%"}
	_, err := st.Save(ctx, stored)
	require.NoError(t, err)

	src := newFakeSource()
	o := New(domain.Builtin(), src, WithStore(st))
	res, err := o.GenerateCase(ctx, "home_office_deduction", Options{})
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Equal(t, "stored", res.Case.Narrative)
	assert.Equal(t, 0, src.count("facts"))
	assert.Equal(t, 0, o.Stats().ValidationsPassed+o.Stats().ValidationsFailed, "cached cases are not revalidated")
}

func TestGenerateCase_UnreadableStoreEntryRegenerates(t *testing.T) {
	dir := t.TempDir()
	fs := store.NewFileStore(dir)
	path := fs.Path("business_meal_deduction")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))

	src := newFakeSource()
	o := New(domain.Builtin(), src, WithStore(fs))
	res, err := o.GenerateCase(context.Background(), "business_meal_deduction", Options{})
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.True(t, res.OK())

	reloaded, err := fs.Load(context.Background(), "business_meal_deduction")
	require.NoError(t, err, "regenerated case should replace the broken file")
	assert.Equal(t, "$250", reloaded.Answer)
}

func TestGenerateCase_ForceRegenerate(t *testing.T) {
	src := newFakeSource()
	st := store.NewMemoryStore()
	o := New(domain.Builtin(), src, WithStore(st))
	ctx := context.Background()

	_, err := o.GenerateCase(ctx, "business_meal_deduction", Options{})
	require.NoError(t, err)
	res, err := o.GenerateCase(ctx, "business_meal_deduction", Options{ForceRegenerate: true})
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, 2, src.count("facts"))
	assert.Equal(t, 2, o.Stats().CasesGenerated)
}

func TestGenerateCase_TooFewFactsExhaustsExactly(t *testing.T) {
	src := newFakeSource()
	src.facts["business_meal_deduction"] = []llm.FactSet{{Facts: []string{"Spent $500", "Meals are 50% deductible"}}}
	o := New(domain.Builtin(), src, WithConfig(Config{MaxAttempts: 4, MinFacts: 3, StrictConsistency: true}))

	res, err := o.GenerateCase(context.Background(), "business_meal_deduction", Options{})
	require.NoError(t, err, "exhaustion is not an error")
	assert.Equal(t, StateExhausted, res.State)
	assert.Nil(t, res.Case)
	assert.Equal(t, 4, src.count("facts"))
	assert.Equal(t, 0, src.count("narrative"))
	for _, a := range res.Attempts {
		assert.Equal(t, OutcomeTooFewFacts, a.Outcome)
	}

	var ex *ExhaustedError
	require.True(t, errors.As(res.Failure(), &ex))
	assert.Equal(t, "business_meal_deduction", ex.Domain)
	assert.Len(t, ex.Attempts, 4)
	assert.Contains(t, ex.Error(), "4 attempts")

	s := o.Stats()
	assert.Equal(t, 3, s.Regenerations)
	assert.Equal(t, 1, s.Exhausted)
	assert.Equal(t, 4, s.TooFewFacts)
	assert.Equal(t, 0, s.CasesGenerated)
	assert.Empty(t, o.GeneratedDomains())
}

func TestGenerateCase_MaxAttemptsOption(t *testing.T) {
	src := newFakeSource()
	src.facts["business_meal_deduction"] = []llm.FactSet{{Facts: []string{"only one"}}}
	o := New(domain.Builtin(), src)
	res, err := o.GenerateCase(context.Background(), "business_meal_deduction", Options{MaxAttempts: 2})
	require.NoError(t, err)
	assert.Len(t, res.Attempts, 2)
	assert.Equal(t, 2, src.count("facts"))
}

func TestGenerateCase_RetryAfterTooFewFacts(t *testing.T) {
	src := newFakeSource()
	src.facts["business_meal_deduction"] = []llm.FactSet{{Facts: []string{"a", "b"}}, goodFacts}
	o := New(domain.Builtin(), src)
	res, err := o.GenerateCase(context.Background(), "business_meal_deduction", Options{})
	require.NoError(t, err)
	require.True(t, res.OK())
	assert.Len(t, res.Attempts, 2)
	assert.Equal(t, "2", res.Case.Metadata[schema.MetaAttempts])
	assert.Equal(t, 1, o.Stats().Regenerations)
	assert.Equal(t, 2.0, o.Stats().MeanAttempts())
}

func TestGenerateCase_BackendErrorRetried(t *testing.T) {
	src := newFakeSource()
	src.factsErrs["business_meal_deduction"] = []error{errors.New("503 overloaded")}
	o := New(domain.Builtin(), src)
	res, err := o.GenerateCase(context.Background(), "business_meal_deduction", Options{})
	require.NoError(t, err)
	require.True(t, res.OK())
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, OutcomeBackendError, res.Attempts[0].Outcome)
	assert.Equal(t, 1, o.Stats().BackendErrors)
}

func TestGenerateCase_InconsistentEmbeddedAnswerRederived(t *testing.T) {
	src := newFakeSource()
	bad := goodFacts
	bad.Answer = "$999"
	src.facts["business_meal_deduction"] = []llm.FactSet{bad}
	o := New(domain.Builtin(), src)

	res, err := o.GenerateCase(context.Background(), "business_meal_deduction", Options{})
	require.NoError(t, err)
	require.True(t, res.OK())
	assert.Equal(t, 1, src.count("answer"))
	assert.Equal(t, "$250 (50% of $500)", res.Case.Answer)
}

func TestGenerateCase_TrustEmbeddedAnswer(t *testing.T) {
	src := newFakeSource()
	bad := goodFacts
	bad.Answer = "$999"
	src.facts["business_meal_deduction"] = []llm.FactSet{bad}
	o := New(domain.Builtin(), src, WithConfig(Config{MaxAttempts: 2, TrustEmbeddedAnswer: true}))

	res, err := o.GenerateCase(context.Background(), "business_meal_deduction", Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, src.count("answer"))
	require.True(t, res.OK(), "lenient mode accepts the trusted answer")
	assert.Contains(t, res.Case.Metadata[schema.MetaDefects], "numerical values inconsistent")
}

func TestGenerateCase_StrictRejectsDefects(t *testing.T) {
	src := newFakeSource()
	flat := llm.FactSet{Facts: []string{"Maria spent $500.", "She met a client.", "They ate steak."}, Answer: "$500"}
	src.facts["business_meal_deduction"] = []llm.FactSet{flat}
	src.reasoning = []string{"She spent $500."}
	o := New(domain.Builtin(), src)

	res, err := o.GenerateCase(context.Background(), "business_meal_deduction", Options{})
	require.NoError(t, err)
	assert.Equal(t, StateExhausted, res.State)
	for _, a := range res.Attempts {
		assert.Equal(t, OutcomeInconsistent, a.Outcome)
		assert.True(t, validate.HasField(a.Defects, validate.FieldDiversity))
	}
	assert.Equal(t, 3, o.Stats().ValidationsFailed)
	assert.Equal(t, 0.0, o.Stats().SuccessRate())
}

func TestGenerateCase_LenientAcceptsWithDefects(t *testing.T) {
	src := newFakeSource()
	flat := llm.FactSet{Facts: []string{"Maria spent $500.", "She met a client.", "They ate steak."}, Answer: "$500"}
	src.facts["business_meal_deduction"] = []llm.FactSet{flat}
	src.reasoning = []string{"She spent $500."}
	o := New(domain.Builtin(), src, WithConfig(Config{StrictConsistency: false}))

	res, err := o.GenerateCase(context.Background(), "business_meal_deduction", Options{})
	require.NoError(t, err)
	require.True(t, res.OK())
	assert.Contains(t, res.Case.Metadata[schema.MetaDefects], "insufficient fact diversity")
	assert.Equal(t, 1, o.Stats().ValidationsFailed)
}

func TestGenerateCase_UnknownDomain(t *testing.T) {
	src := newFakeSource()
	o := New(domain.Builtin(), src)
	res, err := o.GenerateCase(context.Background(), "estate_tax", Options{})
	assert.Nil(t, res)
	var ude *domain.UnknownDomainError
	require.True(t, errors.As(err, &ude))
	assert.Contains(t, ude.Available, "business_meal_deduction")
	assert.Equal(t, 0, src.count("facts"))
}

func TestGenerateCase_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o := New(domain.Builtin(), newFakeSource())
	res, err := o.GenerateCase(ctx, "business_meal_deduction", Options{})
	assert.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, res)
	assert.Equal(t, StateAttempting, res.State)
	assert.NoError(t, res.Failure(), "a cancelled run is not exhausted")
	assert.Zero(t, o.Stats().Exhausted)
}

type failingStore struct{ store.Store }

func (failingStore) Exists(context.Context, string) (bool, error) { return false, nil }
func (failingStore) Save(context.Context, *schema.Case) (string, error) {
	return "", errors.New("disk full")
}

func TestGenerateCase_PersistFailure(t *testing.T) {
	o := New(domain.Builtin(), newFakeSource(), WithStore(failingStore{}))
	res, err := o.GenerateCase(context.Background(), "business_meal_deduction", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	require.NotNil(t, res)
	assert.NotNil(t, res.Case)
	assert.Empty(t, o.GeneratedDomains(), "unpersisted case must not be cached")
}

func TestGenerateAllDomains_CollectsFailures(t *testing.T) {
	src := newFakeSource()
	src.facts["home_office_deduction"] = []llm.FactSet{{Facts: []string{"too", "few"}}}
	o := New(domain.Builtin(), src)

	batch, err := o.GenerateAllDomains(context.Background(), Options{})
	require.NoError(t, err)
	assert.Len(t, batch.Cases, 4)
	require.Len(t, batch.Failures, 1)
	assert.Equal(t, "home_office_deduction", batch.Failures[0].Domain)
	var ex *ExhaustedError
	assert.True(t, errors.As(batch.Failures[0].Err, &ex))
	assert.Len(t, batch.Results, 5)

	want := []string{"business_meal_deduction", "travel_expense_deduction", "charitable_donation_deduction", "vehicle_expense_deduction"}
	var got []string
	for _, c := range batch.Cases {
		got = append(got, c.Domain)
	}
	assert.Equal(t, want, got, "cases follow template order")
}

func TestGenerateCase_ConcurrentCallsGenerateOnce(t *testing.T) {
	src := newFakeSource()
	o := New(domain.Builtin(), src)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := o.GenerateCase(context.Background(), "business_meal_deduction", Options{})
			assert.NoError(t, err)
			assert.True(t, res.OK())
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, src.count("facts"))
	assert.Equal(t, 7, o.Stats().CacheHits)
}

func TestStats_SuccessRateDefaults(t *testing.T) {
	var s Stats
	assert.Equal(t, 100.0, s.SuccessRate())
	assert.Equal(t, 0.0, s.MeanAttempts())
	s = Stats{ValidationsPassed: 3, ValidationsFailed: 1, AttemptsPerCase: []float64{1, 1, 3}}
	assert.Equal(t, 75.0, s.SuccessRate())
	assert.Equal(t, 1.0, s.MedianAttempts())
}

func TestDomainAccessors(t *testing.T) {
	o := New(domain.Builtin(), newFakeSource())
	assert.Len(t, o.AvailableDomains(), 5)
	tmpl, err := o.DomainInfo("vehicle_expense_deduction")
	require.NoError(t, err)
	assert.Equal(t, "vehicle_expense_deduction", tmpl.Name)
	assert.Equal(t, "accepted", OutcomeAccepted.String())
	assert.Equal(t, "exhausted", StateExhausted.String())
}
