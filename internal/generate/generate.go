// Package generate drives case generation for tax domains: it asks a content
// source for the parts of a case, validates the assembled case, retries up to
// a bounded number of attempts and hands accepted cases to the case store.
package generate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dshills/taxgen/internal/classify"
	"github.com/dshills/taxgen/internal/domain"
	"github.com/dshills/taxgen/internal/llm"
	"github.com/dshills/taxgen/internal/numeric"
	"github.com/dshills/taxgen/internal/schema"
	"github.com/dshills/taxgen/internal/store"
	"github.com/dshills/taxgen/internal/validate"
)

// Source produces the raw parts of a case. *llm.Generator implements it.
type Source interface {
	Facts(ctx context.Context, domain, domainContext string) (llm.FactSet, error)
	Narrative(ctx context.Context, domain string, facts []string) (string, error)
	Answer(ctx context.Context, domain string, facts []string, narrative, question string) (string, error)
	Reasoning(ctx context.Context, domain string, facts []string, question, answer string) ([]string, error)
}

// Config holds the orchestrator's policy knobs.
type Config struct {
	MaxAttempts int
	MinFacts    int
	// StrictConsistency rejects any case with defects. When false, a case
	// with defects is accepted and the defects are recorded in its metadata.
	StrictConsistency bool
	// TrustEmbeddedAnswer accepts an answer returned alongside the facts
	// without re-checking it against them.
	TrustEmbeddedAnswer bool
}

// DefaultConfig returns the standard policy.
func DefaultConfig() Config {
	return Config{MaxAttempts: 3, MinFacts: 3, StrictConsistency: true}
}

// Options configures a single generation call.
type Options struct {
	ForceRegenerate bool
	MaxAttempts     int    // overrides Config.MaxAttempts when > 0
	Context         string // extra context appended to the domain context
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStore persists accepted cases to s and consults it for cache hits.
func WithStore(s store.Store) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithConfig replaces the default policy.
func WithConfig(c Config) Option {
	return func(o *Orchestrator) { o.cfg = c }
}

// WithClassifier replaces the default fact classifier.
func WithClassifier(c *classify.Classifier) Option {
	return func(o *Orchestrator) { o.classifier = c }
}

// WithChecker replaces the default numeric checker, for both embedded answer
// checks and case validation.
func WithChecker(c *numeric.Checker) Option {
	return func(o *Orchestrator) { o.checker = c }
}

// WithBackend names the content backend in case metadata.
func WithBackend(name string) Option {
	return func(o *Orchestrator) { o.backend = name }
}

// WithClock overrides the time source used for metadata timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator generates cases. It is safe for concurrent use; generation for
// a single domain is serialized.
type Orchestrator struct {
	domains    domain.Provider
	source     Source
	store      store.Store
	classifier *classify.Classifier
	checker    *numeric.Checker
	validator  *validate.Validator
	cfg        Config
	logger     *zap.Logger
	backend    string
	now        func() time.Time
	runID      string

	locks keyedMutex

	mu        sync.Mutex // guards generated and stats
	generated map[string]*schema.Case
	stats     Stats
}

// New returns an Orchestrator drawing templates from domains and content
// from source.
func New(domains domain.Provider, source Source, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		domains:   domains,
		source:    source,
		cfg:       DefaultConfig(),
		logger:    zap.NewNop(),
		now:       time.Now,
		runID:     uuid.NewString(),
		generated: make(map[string]*schema.Case),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.classifier == nil {
		o.classifier = classify.New()
	}
	if o.checker == nil {
		o.checker = numeric.NewChecker()
	}
	o.validator = validate.New(o.checker)
	if o.cfg.MaxAttempts <= 0 {
		o.cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if o.cfg.MinFacts <= 0 {
		o.cfg.MinFacts = DefaultConfig().MinFacts
	}
	o.logger = o.logger.With(zap.String("run_id", o.runID))
	return o
}

// RunID identifies this orchestrator's run in case metadata and logs.
func (o *Orchestrator) RunID() string { return o.runID }

// ExhaustedError reports that every attempt for a domain failed.
type ExhaustedError struct {
	Domain   string
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	last := ""
	if n := len(e.Attempts); n > 0 {
		last = fmt.Sprintf(" (last outcome: %s)", e.Attempts[n-1].Outcome)
	}
	return fmt.Sprintf("generate: %s: no valid case after %d attempts%s", e.Domain, len(e.Attempts), last)
}

// Result is the outcome of a GenerateCase call.
type Result struct {
	Domain   string
	State    State
	Case     *schema.Case // nil unless State is StateAccepted
	Cached   bool
	Location string // where the case was persisted, if it was
	Attempts []Attempt
}

// OK reports whether a case was produced.
func (r *Result) OK() bool { return r.State == StateAccepted && r.Case != nil }

// Failure returns the exhaustion error for an exhausted result, or nil.
func (r *Result) Failure() error {
	if r.State != StateExhausted {
		return nil
	}
	return &ExhaustedError{Domain: r.Domain, Attempts: r.Attempts}
}

// GenerateCase returns a case for domainName, from cache when possible.
//
// The returned error is non-nil only for an unknown domain, a cancelled
// context, or a failure to persist an accepted case. Exhausting every attempt
// is reported through Result.State and Result.Failure.
func (o *Orchestrator) GenerateCase(ctx context.Context, domainName string, opts Options) (*Result, error) {
	tmpl, err := o.domains.Get(domainName)
	if err != nil {
		return nil, err
	}

	unlock := o.locks.lock(domainName)
	defer unlock()

	if !opts.ForceRegenerate {
		if c := o.cached(ctx, domainName); c != nil {
			return &Result{Domain: domainName, State: StateAccepted, Case: c, Cached: true}, nil
		}
	}

	maxAttempts := o.cfg.MaxAttempts
	if opts.MaxAttempts > 0 {
		maxAttempts = opts.MaxAttempts
	}
	domainContext, err := o.domains.Context(domainName)
	if err != nil {
		return nil, err
	}
	if opts.Context != "" {
		domainContext += "\nAdditional context: " + opts.Context + "\n"
	}
	question, err := o.domains.Question(domainName)
	if err != nil {
		return nil, err
	}

	res := &Result{Domain: tmpl.Name, State: StateAttempting}
	log := o.logger.With(zap.String("domain", domainName))

	for i := 1; i <= maxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("generate: %s: %w", domainName, err)
		}
		att, c := o.attempt(ctx, domainName, domainContext, question)
		att.Index = i
		res.Attempts = append(res.Attempts, att)
		o.recordAttempt(att)

		if att.Outcome != OutcomeAccepted {
			log.Debug("attempt rejected",
				zap.Int("attempt", i),
				zap.Stringer("outcome", att.Outcome),
				zap.Error(att.err()))
			continue
		}

		o.stamp(c, i)
		res.State = StateAccepted
		res.Case = c

		// An unpersisted case is returned but not cached, so the next call
		// regenerates it.
		if o.store != nil {
			loc, err := o.store.Save(ctx, c)
			if err != nil {
				return res, fmt.Errorf("generate: %s: persist: %w", domainName, err)
			}
			res.Location = loc
		}
		o.recordAccepted(domainName, c, i)
		log.Info("case accepted",
			zap.Int("attempt", i),
			zap.Int("facts", len(c.Facts)),
			zap.String("location", res.Location))
		return res, nil
	}

	res.State = StateExhausted
	o.recordExhausted()
	log.Warn("attempts exhausted", zap.Int("attempts", maxAttempts))
	return res, nil
}

// cached returns a previously accepted case from memory or the store.
func (o *Orchestrator) cached(ctx context.Context, domainName string) *schema.Case {
	o.mu.Lock()
	c, ok := o.generated[domainName]
	o.mu.Unlock()
	if ok {
		o.recordCacheHit()
		return c
	}
	if o.store == nil {
		return nil
	}
	exists, err := o.store.Exists(ctx, domainName)
	if err != nil {
		o.logger.Warn("case store lookup failed", zap.String("domain", domainName), zap.Error(err))
		return nil
	}
	if !exists {
		return nil
	}
	c, err = o.store.Load(ctx, domainName)
	if err != nil {
		o.logger.Warn("stored case unreadable; regenerating", zap.String("domain", domainName), zap.Error(err))
		return nil
	}
	o.mu.Lock()
	o.generated[domainName] = c
	o.mu.Unlock()
	o.recordCacheHit()
	return c
}

// attempt runs one generation attempt and returns its outcome, plus the
// candidate case when accepted.
func (o *Orchestrator) attempt(ctx context.Context, domainName, domainContext, question string) (Attempt, *schema.Case) {
	fs, err := o.source.Facts(ctx, domainName, domainContext)
	if err != nil {
		return Attempt{Outcome: OutcomeBackendError, Err: err}, nil
	}
	if len(fs.Facts) < o.cfg.MinFacts {
		return Attempt{Outcome: OutcomeTooFewFacts, FactCount: len(fs.Facts)}, nil
	}

	narrative, err := o.source.Narrative(ctx, domainName, fs.Facts)
	if err != nil {
		return Attempt{Outcome: OutcomeBackendError, Err: err}, nil
	}

	answer := fs.Answer
	if answer != "" && !o.cfg.TrustEmbeddedAnswer && !o.checker.IsConsistent(fs.Facts, answer) {
		o.logger.Debug("embedded answer inconsistent with facts; deriving independently",
			zap.String("domain", domainName), zap.String("answer", answer))
		answer = ""
	}
	if answer == "" {
		answer, err = o.source.Answer(ctx, domainName, fs.Facts, narrative, question)
		if err != nil {
			return Attempt{Outcome: OutcomeBackendError, Err: err}, nil
		}
	}

	steps, err := o.source.Reasoning(ctx, domainName, fs.Facts, question, answer)
	if err != nil {
		return Attempt{Outcome: OutcomeBackendError, Err: err}, nil
	}

	c := &schema.Case{
		Domain:         domainName,
		Narrative:      narrative,
		Facts:          o.classifier.Facts(fs.Facts),
		Question:       question,
		Answer:         answer,
		ReasoningSteps: steps,
	}

	defects := o.validator.Validate(c)
	if len(defects) > 0 {
		if o.cfg.StrictConsistency {
			return Attempt{Outcome: OutcomeInconsistent, Defects: defects, FactCount: len(fs.Facts)}, nil
		}
		c.SetMeta(schema.MetaDefects, validate.Summary(defects))
	}
	return Attempt{Outcome: OutcomeAccepted, Defects: defects, FactCount: len(fs.Facts)}, c
}

// stamp records provenance metadata on an accepted case.
func (o *Orchestrator) stamp(c *schema.Case, attempts int) {
	c.SetMeta(schema.MetaGeneratedAt, o.now().UTC().Format(time.RFC3339))
	c.SetMeta(schema.MetaAttempts, strconv.Itoa(attempts))
	c.SetMeta(schema.MetaRunID, o.runID)
	if o.backend != "" {
		c.SetMeta(schema.MetaBackend, o.backend)
	}
	if res := o.checker.Check(c.FactContents(), c.Answer); res.Operator != "" {
		c.SetMeta(schema.MetaDerivation, res.Operator)
	}
}

// Failure names a domain that produced no case in a batch run.
type Failure struct {
	Domain string
	Err    error
}

// BatchResult collects the outcome of GenerateAllDomains.
type BatchResult struct {
	Results  []*Result
	Cases    []*schema.Case
	Failures []Failure
}

// GenerateAllDomains generates a case for every domain in template order.
// A failing domain is recorded and the batch moves on; only a cancelled
// context stops it early.
func (o *Orchestrator) GenerateAllDomains(ctx context.Context, opts Options) (*BatchResult, error) {
	batch := &BatchResult{}
	for _, name := range o.domains.List() {
		res, err := o.GenerateCase(ctx, name, opts)
		if res != nil {
			batch.Results = append(batch.Results, res)
		}
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return batch, err
		case err != nil:
			batch.Failures = append(batch.Failures, Failure{Domain: name, Err: err})
			o.logger.Warn("domain failed", zap.String("domain", name), zap.Error(err))
		case res.OK():
			batch.Cases = append(batch.Cases, res.Case)
		default:
			batch.Failures = append(batch.Failures, Failure{Domain: name, Err: res.Failure()})
		}
	}
	return batch, nil
}

// AvailableDomains lists every domain the orchestrator can generate.
func (o *Orchestrator) AvailableDomains() []string {
	return o.domains.List()
}

// DomainInfo returns the template for a domain.
func (o *Orchestrator) DomainInfo(name string) (schema.Template, error) {
	return o.domains.Get(name)
}

// GeneratedDomains lists domains with an accepted case in this run, in
// template order.
func (o *Orchestrator) GeneratedDomains() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []string
	for _, name := range o.domains.List() {
		if _, ok := o.generated[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// keyedMutex hands out one mutex per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()
	m.Lock()
	return m.Unlock
}
