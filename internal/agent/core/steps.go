package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/researchchat/internal/agent/telemetry"
	"github.com/mohammad-safakhou/researchchat/internal/budget"
	"github.com/mohammad-safakhou/researchchat/internal/planner"
	"github.com/mohammad-safakhou/researchchat/tools/web_search"
	"github.com/mohammad-safakhou/researchchat/tools/web_search/models"
)

// reflectionQueries caps the queries attached to a goal proposed mid-session.
const reflectionQueries = 2

// searchOutcome is the result of one query in a search batch.
type searchOutcome struct {
	Query    string
	Response models.Response
	Err      error
}

type judgement struct {
	doc planner.RelevanceDocument
	err error
}

// plan asks the fast model for the initial goals and seeds the queue.
func (r *Researcher) plan(ctx context.Context, s *Session, em *emitter, limits budget.Limits, today time.Time) error {
	date := today.Format("2006-01-02")
	em.emit(EventPlanStart, PlanStartPayload{Query: s.Query, Mode: string(s.Mode), Date: date})

	doc, err := callStructured[planner.PlanDocument](ctx, r, "plan", r.fast, planner.PlanSchema,
		planningSystem, planningPrompt(s.Query, date, limits))
	var proposals []planner.GoalProposal
	if err == nil {
		proposals = sanitizeProposals(doc.Goals, limits.PlanGoals, limits.SeedQueries)
		if len(proposals) == 0 {
			err = errors.New("plan contained no usable goals")
		}
	}
	if err != nil {
		s.record("planning failed: %v", err)
		r.logger.Printf("session %s planning failed: %v", s.ID, err)
		em.emit(EventPlanError, ErrorPayload{Error: err.Error()})
		return &PlanError{Err: err}
	}

	views := make([]GoalView, 0, len(proposals))
	for _, p := range proposals {
		g := s.newGoal(p.Goal, p.SearchQueries)
		s.Active.PushBack(g)
		views = append(views, viewOf(g))
	}
	s.record("planned %d goals", len(views))
	em.emit(EventPlanResult, PlanResultPayload{Goals: views})
	return nil
}

// searchBatch issues queries concurrently. Call events precede the fan-out;
// result and error events follow the join in batch order.
func (r *Researcher) searchBatch(ctx context.Context, s *Session, em *emitter, goal *Goal, queries []string, limits budget.Limits) []searchOutcome {
	em.emit(EventSearchStart, SearchStartPayload{GoalID: goal.ID, Queries: queries})
	opts := web_search.Options{MaxResults: limits.ResultsPerQuery, Depth: limits.Depth}
	for _, q := range queries {
		em.emit(EventSearchCall, SearchCallPayload{GoalID: goal.ID, Query: q, Depth: opts.Depth, MaxResults: opts.MaxResults})
	}

	outcomes := make([]searchOutcome, len(queries))
	var g errgroup.Group
	for i, q := range queries {
		g.Go(func() error {
			start := time.Now()
			defer func() {
				if p := recover(); p != nil {
					outcomes[i] = searchOutcome{Query: q, Err: fmt.Errorf("search panicked: %v", p)}
				}
				r.telemetry.RecordSearchEvent(ctx, telemetry.SearchEvent{
					Provider: r.search.Name(),
					Query:    q,
					Duration: time.Since(start),
					Results:  len(outcomes[i].Response.Results),
					Err:      outcomes[i].Err,
				})
			}()
			resp, serr := r.search.Search(ctx, q, opts)
			resp.Query = q
			outcomes[i] = searchOutcome{Query: q, Response: resp, Err: serr}
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		if o.Err != nil {
			s.record("goal %d: search %q failed: %v", goal.ID, o.Query, o.Err)
			r.logger.Printf("goal %d search %q failed: %v", goal.ID, o.Query, o.Err)
			em.emit(EventSearchError, ErrorPayload{GoalID: goal.ID, Query: o.Query, Error: o.Err.Error()})
			continue
		}
		payload := SearchResultPayload{GoalID: goal.ID, Query: o.Query, Images: len(o.Response.Images)}
		for _, res := range o.Response.Results {
			payload.URLs = append(payload.URLs, res.URL)
			payload.Titles = append(payload.Titles, res.Title)
		}
		em.emit(EventSearchResult, payload)
	}
	return outcomes
}

// analyze judges every pooled response concurrently, stores relevant ones as
// evidence and returns the new angles the judgements flagged.
func (r *Researcher) analyze(ctx context.Context, s *Session, em *emitter, goal *Goal, pooled []searchOutcome) []string {
	if len(pooled) == 0 {
		s.record("goal %d: no usable search results", goal.ID)
		return nil
	}
	em.emit(EventAnalysisCall, AnalysisCallPayload{GoalID: goal.ID, Responses: len(pooled)})

	results := make([]judgement, len(pooled))
	var g errgroup.Group
	for i, o := range pooled {
		g.Go(func() error {
			doc, err := callStructured[planner.RelevanceDocument](ctx, r, "relevance", r.fast, planner.RelevanceSchema,
				relevanceSystem, relevancePrompt(goal, o.Response))
			results[i] = judgement{doc: doc, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var angles []string
	for i, j := range results {
		o := pooled[i]
		if j.err != nil {
			s.record("goal %d: relevance check for %q failed: %v", goal.ID, o.Query, j.err)
			r.logger.Printf("goal %d relevance check for %q failed: %v", goal.ID, o.Query, j.err)
			em.emit(EventAnalysisError, ErrorPayload{GoalID: goal.ID, Query: o.Query, Error: j.err.Error()})
			continue
		}
		em.emit(EventAnalysisResult, AnalysisResultPayload{
			GoalID:           goal.ID,
			Query:            o.Query,
			IsRelevant:       j.doc.IsRelevant,
			Reason:           j.doc.Reason,
			NewAngle:         j.doc.NewAngle,
			AngleDescription: j.doc.AngleDescription,
		})
		if j.doc.NewAngle && j.doc.AngleDescription != "" {
			angles = append(angles, j.doc.AngleDescription)
		}
		if !j.doc.IsRelevant {
			continue
		}
		resp := o.Response
		s.addEvidence(goal, Evidence{Reason: j.doc.Reason, Query: o.Query, Result: &resp})
	}
	return angles
}

// reflect decides the goal's fate and admits proposed goals when the goal
// budget allows all of them.
func (r *Researcher) reflect(ctx context.Context, s *Session, em *emitter, mon *budget.Monitor, current *Goal, angles []string) {
	limits := mon.Limits()
	em.emit(EventReflectionCall, ReflectionCallPayload{GoalID: current.ID})

	doc, err := callStructured[planner.ReflectionDocument](ctx, r, "reflection", r.fast, planner.ReflectionSchema,
		reflectionSystem, reflectionPrompt(reflectionInput{
			Goal:        current,
			MaxSearches: limits.MaxSearchesPerGoal,
			Angles:      angles,
			OtherGoals:  goalTexts(s),
			SeedQueries: reflectionQueries,
		}))
	if err != nil {
		s.record("goal %d: reflection failed: %v", current.ID, err)
		r.logger.Printf("goal %d reflection failed, completing it: %v", current.ID, err)
		em.emit(EventReflectionError, ErrorPayload{GoalID: current.ID, Error: err.Error()})
		r.completeGoal(s, em, current, "reflection failed")
		return
	}

	proposals := sanitizeProposals(doc.NewGoals, 0, reflectionQueries)
	var added []*Goal
	discarded := 0
	if len(proposals) > 0 {
		if err := mon.AdmitGoals(s.GoalCount(), len(proposals)); err != nil {
			discarded = len(proposals)
			s.record("goal %d: discarded %d proposed goals: %v", current.ID, discarded, err)
			r.logger.Printf("goal %d: goal cap hit, discarding %d proposals", current.ID, discarded)
		} else {
			for _, p := range proposals {
				g := s.newGoal(p.Goal, p.SearchQueries)
				s.Active.PushBack(g)
				added = append(added, g)
			}
			s.record("goal %d: added %d goals", current.ID, len(added))
		}
	}
	em.emit(EventReflectionResult, ReflectionResultPayload{
		GoalID:         current.ID,
		Assessment:     doc.Assessment,
		NextAction:     doc.NextAction,
		ProposedGoals:  len(doc.NewGoals),
		AcceptedGoals:  len(added),
		DiscardedGoals: discarded,
	})
	for _, g := range added {
		em.emit(EventGoalAdded, GoalAddedPayload{Goal: viewOf(g), ParentID: current.ID})
	}

	switch doc.Assessment {
	case planner.AssessmentNeedsMoreSearches:
		if mon.CanSearch(current.SearchesAttempted, len(current.SearchQueries)) {
			current.Status = StatusPending
			s.Active.PushFront(current)
			s.record("goal %d requeued for more searches", current.ID)
			em.emit(EventGoalRequeued, GoalStatusPayload{
				GoalID: current.ID, Status: current.Status, Reason: doc.NextAction, SearchesAttempted: current.SearchesAttempted,
			})
			return
		}
		r.completeGoal(s, em, current, "search budget exhausted")
	case planner.AssessmentFailed:
		s.finish(current, StatusFailed)
		s.record("goal %d failed: %s", current.ID, doc.NextAction)
		em.emit(EventGoalFailed, GoalStatusPayload{
			GoalID: current.ID, Status: current.Status, Reason: doc.NextAction, SearchesAttempted: current.SearchesAttempted,
		})
	default:
		r.completeGoal(s, em, current, "assessed as complete")
	}
}

func goalTexts(s *Session) []string {
	goals := s.Goals()
	out := make([]string, 0, len(goals))
	for _, g := range goals {
		out = append(out, g.Text)
	}
	return out
}
