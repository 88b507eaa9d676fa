// Package chaos runs resilience drills against a live bookstore API and checks the database
// stays consistent while they run.
package chaos

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var ErrSteadyStateInvalid = errors.New("steady state invalid")

// Threshold is the range a probe value must stay in.
type Threshold struct {
	Operator string // >, <, >=, <=, ==
	Value    float64
}

// Holds reports whether v satisfies the threshold. Unknown operators never hold.
func (t Threshold) Holds(v float64) bool {
	switch t.Operator {
	case ">":
		return v > t.Value
	case "<":
		return v < t.Value
	case ">=":
		return v >= t.Value
	case "<=":
		return v <= t.Value
	case "==":
		return v == t.Value
	default:
		return false
	}
}

// Probe measures one property of the system.
type Probe struct {
	Name      string
	Query     func(context.Context) (float64, error)
	Threshold Threshold
}

// Action injects a fault or load, or undoes it.
type Action struct {
	Name string
	Run  func(context.Context) error
}

// Assertion checks the last observed value of a probe once the drill is over.
type Assertion struct {
	Probe     string
	Condition func(float64) bool
	Message   string
}

// Drill is one experiment: the steady state must hold before the method runs and is sampled
// while the system is observed.
type Drill struct {
	Name        string
	Hypothesis  string
	SteadyState []Probe
	// Observe probes are only meaningful after the method ran.
	Observe    []Probe
	Method     []Action
	Rollback   []Action
	Validation []Assertion
	Window     time.Duration
}

type Sample struct {
	At    time.Time `json:"at"`
	Value float64   `json:"value"`
}

type Violation struct {
	Probe    string    `json:"probe"`
	Expected Threshold `json:"expected"`
	Actual   float64   `json:"actual"`
	At       time.Time `json:"at"`
}

// Result is what happened during one drill.
type Result struct {
	Drill            string              `json:"drill"`
	Start            time.Time           `json:"start"`
	End              time.Time           `json:"end"`
	SteadyStateValid bool                `json:"steady_state_valid"`
	HypothesisHeld   bool                `json:"hypothesis_held"`
	Violations       []Violation         `json:"violations"`
	Observations     map[string][]Sample `json:"observations"`
	Errors           []string            `json:"errors"`
	Failed           []string            `json:"failed_assertions"`
	// MTTR is the time from the first violation to the first sample back within threshold.
	MTTR *time.Duration `json:"mttr,omitempty"`
}

// Engine runs registered drills one after another.
type Engine struct {
	tracer   trace.Tracer
	interval time.Duration
	now      func() time.Time

	mu     sync.Mutex
	drills []Drill
}

// NewEngine creates an engine sampling probes every interval.
func NewEngine(interval time.Duration) *Engine {
	return &Engine{
		tracer:   otel.Tracer("bookstore/chaos"),
		interval: interval,
		now:      time.Now,
	}
}

func (e *Engine) Register(drills ...Drill) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.drills = append(e.drills, drills...)
}

func (e *Engine) Drills() []Drill {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Drill(nil), e.drills...)
}

// Run executes a drill. The error is non-nil only when the drill could not start.
func (e *Engine) Run(ctx context.Context, d Drill) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "chaos.run_drill", trace.WithAttributes(attribute.String("drill.name", d.Name)))
	defer span.End()

	res := &Result{
		Drill:        d.Name,
		Start:        e.now(),
		Observations: make(map[string][]Sample),
	}

	span.AddEvent("steady_state")
	for _, p := range d.SteadyState {
		v, err := p.Query(ctx)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", p.Name, err))
			continue
		}
		if !p.Threshold.Holds(v) {
			res.Violations = append(res.Violations, Violation{Probe: p.Name, Expected: p.Threshold, Actual: v, At: e.now()})
		}
	}
	if len(res.Errors) > 0 || len(res.Violations) > 0 {
		res.End = e.now()
		return res, ErrSteadyStateInvalid
	}
	res.SteadyStateValid = true

	span.AddEvent("method")
	for _, a := range d.Method {
		if err := a.Run(ctx); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", a.Name, err))
			span.RecordError(err)
			break
		}
	}

	span.AddEvent("observe")
	e.observe(ctx, d, res)

	span.AddEvent("rollback")
	for _, a := range d.Rollback {
		if err := a.Run(ctx); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", a.Name, err))
			span.RecordError(err)
		}
	}

	res.Failed = validate(d.Validation, res.Observations)
	res.HypothesisHeld = len(res.Failed) == 0 && len(res.Errors) == 0
	res.End = e.now()

	span.SetAttributes(
		attribute.Bool("drill.hypothesis_held", res.HypothesisHeld),
		attribute.Int("drill.violations", len(res.Violations)),
	)
	return res, nil
}

// observe samples every probe at least once, then every interval until the window closes.
func (e *Engine) observe(ctx context.Context, d Drill, res *Result) {
	probes := append(append([]Probe(nil), d.SteadyState...), d.Observe...)
	var violatedAt time.Time
	sample := func() {
		for _, p := range probes {
			v, err := p.Query(ctx)
			if err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", p.Name, err))
				continue
			}
			now := e.now()
			res.Observations[p.Name] = append(res.Observations[p.Name], Sample{At: now, Value: v})
			switch {
			case !p.Threshold.Holds(v):
				res.Violations = append(res.Violations, Violation{Probe: p.Name, Expected: p.Threshold, Actual: v, At: now})
				if violatedAt.IsZero() {
					violatedAt = now
				}
			case !violatedAt.IsZero() && res.MTTR == nil:
				mttr := now.Sub(violatedAt)
				res.MTTR = &mttr
			}
		}
	}

	sample()
	if d.Window <= 0 {
		return
	}

	window, cancel := context.WithTimeout(ctx, d.Window)
	defer cancel()
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-window.Done():
			return
		case <-ticker.C:
			sample()
		}
	}
}

func validate(assertions []Assertion, observations map[string][]Sample) []string {
	var failed []string
	for _, a := range assertions {
		samples := observations[a.Probe]
		if len(samples) == 0 {
			failed = append(failed, fmt.Sprintf("%s (no observations of %s)", a.Message, a.Probe))
			continue
		}
		if last := samples[len(samples)-1].Value; !a.Condition(last) {
			failed = append(failed, fmt.Sprintf("%s (last %s = %g)", a.Message, a.Probe, last))
		}
	}
	return failed
}

// RunAll runs every registered drill, pausing between them, and logs each outcome.
func (e *Engine) RunAll(ctx context.Context, pause time.Duration) []*Result {
	drills := e.Drills()
	results := make([]*Result, 0, len(drills))

	for i, d := range drills {
		if i > 0 && pause > 0 {
			select {
			case <-ctx.Done():
				return results
			case <-time.After(pause):
			}
		}

		log.Printf("Drill %d/%d %s: %s", i+1, len(drills), d.Name, d.Hypothesis)
		res, err := e.Run(ctx, d)
		if err != nil {
			log.Printf("Drill %s did not start: %v (violations: %v, errors: %v)", d.Name, err, res.Violations, res.Errors)
		} else {
			logResult(res)
		}
		results = append(results, res)
	}
	return results
}

func logResult(res *Result) {
	verdict := "held"
	if !res.HypothesisHeld {
		verdict = "VIOLATED"
	}
	log.Printf("Drill %s: hypothesis %s in %s", res.Drill, verdict, res.End.Sub(res.Start).Round(time.Millisecond))
	for _, v := range res.Violations {
		log.Printf("  violation %s: expected %s %g, got %g", v.Probe, v.Expected.Operator, v.Expected.Value, v.Actual)
	}
	for _, msg := range res.Failed {
		log.Printf("  failed: %s", msg)
	}
	for _, msg := range res.Errors {
		log.Printf("  error: %s", msg)
	}
	if res.MTTR != nil {
		log.Printf("  recovered after %s", *res.MTTR)
	}
}
