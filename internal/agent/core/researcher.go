package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mohammad-safakhou/researchchat/internal/agent/telemetry"
	"github.com/mohammad-safakhou/researchchat/internal/budget"
	"github.com/mohammad-safakhou/researchchat/internal/planner"
	"github.com/mohammad-safakhou/researchchat/provider"
	"github.com/mohammad-safakhou/researchchat/tools/web_search"
)

var researchTracer trace.Tracer = otel.Tracer("researchchat/internal/agent/core")

// ErrEmptyQuery is returned by Run when the request carries no query.
var ErrEmptyQuery = errors.New("query is required")

// Researcher runs the plan, search, analyse and reflect loop for one query
// and hands the collected evidence to the report writer.
type Researcher struct {
	fast      provider.Model
	search    web_search.WebSearcher
	writer    *Synthesizer
	limits    func(budget.Mode) budget.Limits
	telemetry *telemetry.Telemetry
	logger    *log.Logger
	now       func() time.Time
	newID     func() string
	observe   func(*Session, Event)
}

// Option customises a Researcher.
type Option func(*Researcher)

// WithLimits sets the budget lookup per response mode.
func WithLimits(fn func(budget.Mode) budget.Limits) Option {
	return func(r *Researcher) {
		if fn != nil {
			r.limits = fn
		}
	}
}

func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(r *Researcher) { r.telemetry = t }
}

func WithLogger(l *log.Logger) Option {
	return func(r *Researcher) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides the time source used for event stamps and the date.
func WithClock(now func() time.Time) Option {
	return func(r *Researcher) {
		if now != nil {
			r.now = now
		}
	}
}

// WithObserver registers a hook called after every emitted event with the
// live session state.
func WithObserver(fn func(*Session, Event)) Option {
	return func(r *Researcher) { r.observe = fn }
}

// NewResearcher wires a loop. deep may be nil, in which case fast also writes
// the report.
func NewResearcher(fast, deep provider.Model, search web_search.WebSearcher, opts ...Option) *Researcher {
	if deep == nil {
		deep = fast
	}
	r := &Researcher{
		fast:   fast,
		search: search,
		limits: budget.Defaults,
		logger: log.New(log.Writer(), "[RESEARCH] ", log.LstdFlags),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.writer = &Synthesizer{model: deep, telemetry: r.telemetry, logger: r.logger, now: r.now}
	return r
}

// Run executes one research session, streaming progress to sink. Only a
// failed planning call (or an invalid request) is returned as an error; the
// Outcome is non-nil whenever a session was started.
func (r *Researcher) Run(ctx context.Context, req Request, sink Sink) (*Outcome, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	mode := req.Mode
	if mode == "" {
		mode = budget.ModeConcise
	}
	limits := r.limits(mode)
	if err := limits.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s limits: %w", mode, err)
	}
	today := req.Now
	if today.IsZero() {
		today = r.now()
	}

	started := time.Now()
	s := newSession(r.newID(), query, mode)
	em := &emitter{sink: sink, now: r.now}
	if r.observe != nil {
		em.observe = func(e Event) { r.observe(s, e) }
	}
	mon := budget.NewMonitor(limits)

	ctx, span := researchTracer.Start(ctx, "research.session", trace.WithAttributes(
		attribute.String("session.id", s.ID),
		attribute.String("session.mode", string(mode)),
	))
	defer span.End()

	r.logger.Printf("session %s started (mode=%s)", s.ID, mode)
	if err := r.plan(ctx, s, em, limits, today); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "planning failed")
		out := r.outcome(s, nil, started)
		r.telemetry.RecordSessionEvent(ctx, telemetry.SessionEvent{
			ID: s.ID, Mode: string(mode), Duration: out.Duration, Err: err,
		})
		return out, err
	}

	r.loop(ctx, s, em, mon)

	evidence := DedupeEvidence(s.Evidence)
	if dropped := len(s.Evidence) - len(evidence); dropped > 0 {
		s.record("final dedup removed %d duplicate evidence items", dropped)
	}
	report, reportErr := r.writer.stream(ctx, s.Query, s.Mode, evidence, em, today)
	if reportErr != nil {
		s.record("report generation failed: %v", reportErr)
		r.logger.Printf("session %s report failed: %v", s.ID, reportErr)
	}

	out := r.outcome(s, evidence, started)
	out.Report = report
	out.ReportErr = reportErr
	span.SetAttributes(
		attribute.String("session.stop_reason", string(s.StopReason)),
		attribute.Int("session.iterations", s.Iteration),
		attribute.Int("session.evidence", len(evidence)),
	)
	r.telemetry.RecordSessionEvent(ctx, telemetry.SessionEvent{
		ID:         s.ID,
		Mode:       string(mode),
		StopReason: string(s.StopReason),
		Iterations: s.Iteration,
		Goals:      s.GoalCount(),
		Evidence:   len(evidence),
		Duration:   out.Duration,
	})
	r.logger.Printf("session %s finished in %s: stop=%s iterations=%d evidence=%d",
		s.ID, mon.Elapsed().Round(time.Millisecond), s.StopReason, s.Iteration, len(evidence))
	return out, nil
}

func (r *Researcher) outcome(s *Session, evidence []Evidence, started time.Time) *Outcome {
	return &Outcome{
		SessionID:  s.ID,
		Query:      s.Query,
		Mode:       s.Mode,
		StopReason: s.StopReason,
		Iterations: s.Iteration,
		Goals:      s.Goals(),
		Evidence:   evidence,
		History:    append([]string(nil), s.History...),
		Duration:   time.Since(started),
	}
}

// loop processes goals until the queue empties, a budget is reached or the
// context ends. Exactly one stop reason is recorded.
func (r *Researcher) loop(ctx context.Context, s *Session, em *emitter, mon *budget.Monitor) {
	for {
		if s.Active.Len() == 0 {
			s.StopReason = StopCompleted
			break
		}
		if err := ctx.Err(); err != nil {
			s.StopReason = StopCancelled
			r.logger.Printf("session %s cancelled with %d goals pending: %v", s.ID, s.Active.Len(), err)
			break
		}
		if err := mon.CheckIteration(s.Iteration); err != nil {
			s.StopReason = StopMaxIterations
			r.logger.Printf("session %s stopping: %v (%d goals left pending)", s.ID, err, s.Active.Len())
			break
		}
		if err := mon.CheckGoals(s.GoalCount()); err != nil {
			s.StopReason = StopMaxGoals
			r.logger.Printf("session %s stopping: %v", s.ID, err)
			for _, g := range s.Active.Drain() {
				r.completeGoal(s, em, g, "goal budget reached")
			}
			break
		}
		r.step(ctx, s, em, mon)
	}
	s.record("session stopped: %s", s.StopReason)
	em.emit(EventSessionStop, SessionStopPayload{
		Reason:     s.StopReason,
		Iterations: s.Iteration,
		Completed:  len(s.Completed),
		Active:     s.Active.Len(),
		Evidence:   len(s.Evidence),
	})
}

// step processes the goal at the head of the queue once.
func (r *Researcher) step(ctx context.Context, s *Session, em *emitter, mon *budget.Monitor) {
	limits := mon.Limits()
	current := s.Active.PopFront()
	s.Iteration++
	current.Status = StatusInProgress

	ctx, span := researchTracer.Start(ctx, "research.goal", trace.WithAttributes(
		attribute.Int("goal.id", current.ID),
		attribute.Int("goal.iteration", s.Iteration),
	))
	defer span.End()

	em.emit(EventGoalIterationStart, GoalIterationPayload{GoalID: current.ID, Goal: current.Text, Iteration: s.Iteration})

	if !mon.CanSearch(current.SearchesAttempted, len(current.SearchQueries)) {
		r.completeGoal(s, em, current, "all queries attempted")
		return
	}
	query, _ := current.NextQuery()
	queries := []string{query}

	outcomes := r.searchBatch(ctx, s, em, current, queries, limits)
	current.SearchesAttempted += len(queries)

	pooled := poolResponses(outcomes)
	angles := r.analyze(ctx, s, em, current, pooled)

	em.emit(EventGoalProgress, GoalProgressPayload{
		GoalID:            current.ID,
		SearchesAttempted: current.SearchesAttempted,
		MaxSearches:       limits.MaxSearchesPerGoal,
		RelevantResults:   len(current.RelevantResults),
		TotalEvidence:     len(s.Evidence),
	})

	r.reflect(ctx, s, em, mon, current, angles)
}

func (r *Researcher) completeGoal(s *Session, em *emitter, g *Goal, reason string) {
	s.finish(g, StatusCompleted)
	s.record("goal %d completed: %s", g.ID, reason)
	em.emit(EventGoalCompleted, GoalStatusPayload{
		GoalID: g.ID, Status: g.Status, Reason: reason, SearchesAttempted: g.SearchesAttempted,
	})
}

// callStructured runs one schema-bound model call and records its telemetry.
func callStructured[T any](ctx context.Context, r *Researcher, purpose string, m provider.Model, schema *planner.Schema, system, prompt string) (T, error) {
	var zero T
	raw, err := schema.Raw()
	if err != nil {
		return zero, err
	}
	req := provider.Request{
		System:   system,
		Messages: []provider.Message{{Role: provider.RoleUser, Content: prompt}},
		Schema:   &provider.Schema{Name: schema.Name(), Doc: raw, Validate: schema.Validate},
	}
	start := time.Now()
	out, err := provider.Structured[T](ctx, m, req)
	r.telemetry.RecordLLMEvent(ctx, telemetry.LLMEvent{
		Purpose: purpose, Model: m.Name(), Duration: time.Since(start), Err: err,
	})
	return out, err
}

// sanitizeProposals trims goal proposals, drops empty or query-less ones and
// caps the number of goals and queries per goal.
func sanitizeProposals(in []planner.GoalProposal, maxGoals, maxQueries int) []planner.GoalProposal {
	var out []planner.GoalProposal
	for _, p := range in {
		if maxGoals > 0 && len(out) >= maxGoals {
			break
		}
		text := strings.TrimSpace(p.Goal)
		if text == "" {
			continue
		}
		seen := make(map[string]struct{}, len(p.SearchQueries))
		var queries []string
		for _, q := range p.SearchQueries {
			q = strings.TrimSpace(q)
			key := strings.ToLower(q)
			if q == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			queries = append(queries, q)
			if maxQueries > 0 && len(queries) >= maxQueries {
				break
			}
		}
		if len(queries) == 0 {
			continue
		}
		out = append(out, planner.GoalProposal{Goal: text, SearchQueries: queries})
	}
	return out
}
