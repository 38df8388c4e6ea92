package generate

import (
	"fmt"

	"github.com/montanaflynn/stats"

	"github.com/dshills/taxgen/internal/schema"
	"github.com/dshills/taxgen/internal/validate"
)

// State is the lifecycle of a single GenerateCase call.
type State int

const (
	StateIdle State = iota
	StateAttempting
	StateAccepted
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAttempting:
		return "attempting"
	case StateAccepted:
		return "accepted"
	case StateExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Outcome classifies one generation attempt.
type Outcome int

const (
	OutcomeAccepted Outcome = iota
	OutcomeTooFewFacts
	OutcomeInconsistent
	OutcomeBackendError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeTooFewFacts:
		return "too_few_facts"
	case OutcomeInconsistent:
		return "inconsistent"
	case OutcomeBackendError:
		return "backend_error"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Attempt records one pass through the generate-validate cycle.
type Attempt struct {
	Index     int
	Outcome   Outcome
	FactCount int
	Defects   []validate.Defect
	Err       error
}

// err summarizes why the attempt was rejected, for logging.
func (a Attempt) err() error {
	switch {
	case a.Err != nil:
		return a.Err
	case a.Outcome == OutcomeTooFewFacts:
		return fmt.Errorf("%d facts returned", a.FactCount)
	case len(a.Defects) > 0:
		return fmt.Errorf("%s", validate.Summary(a.Defects))
	default:
		return nil
	}
}

// Stats are the run statistics of one orchestrator.
type Stats struct {
	CasesGenerated    int
	ValidationsPassed int
	ValidationsFailed int
	// Regenerations counts attempts after the first for any domain.
	Regenerations int
	Exhausted     int
	CacheHits     int
	BackendErrors int
	TooFewFacts   int
	// AttemptsPerCase holds, for each accepted case, the attempt it was
	// accepted on.
	AttemptsPerCase []float64
}

// SuccessRate is the percentage of validations that passed, 100 when none ran.
func (s Stats) SuccessRate() float64 {
	total := s.ValidationsPassed + s.ValidationsFailed
	if total == 0 {
		return 100
	}
	return float64(s.ValidationsPassed) / float64(total) * 100
}

// MeanAttempts is the average attempt number cases were accepted on.
func (s Stats) MeanAttempts() float64 {
	m, err := stats.Mean(s.AttemptsPerCase)
	if err != nil {
		return 0
	}
	return m
}

// MedianAttempts is the median attempt number cases were accepted on.
func (s Stats) MedianAttempts() float64 {
	m, err := stats.Median(s.AttemptsPerCase)
	if err != nil {
		return 0
	}
	return m
}

// Stats returns a snapshot of the run statistics.
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.stats
	s.AttemptsPerCase = append([]float64(nil), o.stats.AttemptsPerCase...)
	return s
}

// recordAttempt counts validator verdicts and failure kinds. Only attempts
// that reached the validator count toward the success rate.
func (o *Orchestrator) recordAttempt(a Attempt) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if a.Index > 1 {
		o.stats.Regenerations++
	}
	switch a.Outcome {
	case OutcomeAccepted:
		if len(a.Defects) == 0 {
			o.stats.ValidationsPassed++
		} else {
			o.stats.ValidationsFailed++
		}
	case OutcomeInconsistent:
		o.stats.ValidationsFailed++
	case OutcomeTooFewFacts:
		o.stats.TooFewFacts++
	case OutcomeBackendError:
		o.stats.BackendErrors++
	}
}

// recordAccepted marks domainName as generated with c.
func (o *Orchestrator) recordAccepted(domainName string, c *schema.Case, attempt int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.generated[domainName] = c
	o.stats.CasesGenerated++
	o.stats.AttemptsPerCase = append(o.stats.AttemptsPerCase, float64(attempt))
}

func (o *Orchestrator) recordExhausted() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stats.Exhausted++
}

func (o *Orchestrator) recordCacheHit() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stats.CacheHits++
}
