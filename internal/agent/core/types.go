package core

import (
	"fmt"
	"time"

	"github.com/mohammad-safakhou/researchchat/internal/budget"
	"github.com/mohammad-safakhou/researchchat/tools/web_search/models"
)

// GoalStatus is the lifecycle state of a Goal.
type GoalStatus string

const (
	StatusPending    GoalStatus = "pending"
	StatusInProgress GoalStatus = "in_progress"
	StatusCompleted  GoalStatus = "completed"
	StatusFailed     GoalStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s GoalStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Goal is a unit of research work. SearchQueries are fixed at creation and
// SearchesAttempted is the cursor of the next query to issue.
type Goal struct {
	ID                int        `json:"id"`
	Text              string     `json:"goal"`
	SearchQueries     []string   `json:"search_queries"`
	Status            GoalStatus `json:"status"`
	RelevantResults   []Evidence `json:"relevant_results"`
	SearchesAttempted int        `json:"searches_attempted"`
}

// NextQuery returns the next unattempted query, if any.
func (g *Goal) NextQuery() (string, bool) {
	if g.SearchesAttempted >= len(g.SearchQueries) {
		return "", false
	}
	return g.SearchQueries[g.SearchesAttempted], true
}

// Evidence is a search response the relevance step accepted for a goal.
type Evidence struct {
	Reason string           `json:"reason"`
	Query  string           `json:"query"`
	Result *models.Response `json:"result"`
}

// StopReason records why the research loop ended.
type StopReason string

const (
	StopCompleted     StopReason = "completed"
	StopMaxIterations StopReason = "max_iterations"
	StopMaxGoals      StopReason = "max_goals"
	StopCancelled     StopReason = "cancelled"
)

// Session is the request-scoped state of one research run. It is owned by the
// loop's control goroutine; concurrent fan-out tasks never touch it.
type Session struct {
	ID         string
	Query      string
	Mode       budget.Mode
	Active     *GoalQueue
	Completed  []*Goal
	Evidence   []Evidence
	Iteration  int
	History    []string
	StopReason StopReason

	nextID int
}

func newSession(id, query string, mode budget.Mode) *Session {
	return &Session{ID: id, Query: query, Mode: mode, Active: NewGoalQueue()}
}

// newGoal creates a pending goal with the next session-scoped id.
func (s *Session) newGoal(text string, queries []string) *Goal {
	s.nextID++
	return &Goal{
		ID:            s.nextID,
		Text:          text,
		SearchQueries: append([]string(nil), queries...),
		Status:        StatusPending,
	}
}

// GoalCount is the number of goals tracked in the active queue and the
// completed set. A goal being processed is in neither.
func (s *Session) GoalCount() int {
	return len(s.Completed) + s.Active.Len()
}

func (s *Session) record(format string, args ...any) {
	s.History = append(s.History, fmt.Sprintf(format, args...))
}

// addEvidence appends an accepted finding to its goal and to the session.
func (s *Session) addEvidence(g *Goal, ev Evidence) {
	g.RelevantResults = append(g.RelevantResults, ev)
	s.Evidence = append(s.Evidence, ev)
}

func (s *Session) finish(g *Goal, status GoalStatus) {
	g.Status = status
	s.Completed = append(s.Completed, g)
}

// Goals returns completed goals followed by still-active ones.
func (s *Session) Goals() []*Goal {
	out := append([]*Goal(nil), s.Completed...)
	return append(out, s.Active.Items()...)
}

// Request starts one research session.
type Request struct {
	Query string
	Mode  budget.Mode
	// Now overrides the date given to the planner.
	Now time.Time
}

// Outcome is the result of a research session.
type Outcome struct {
	SessionID  string        `json:"session_id"`
	Query      string        `json:"query"`
	Mode       budget.Mode   `json:"mode"`
	StopReason StopReason    `json:"stop_reason"`
	Iterations int           `json:"iterations"`
	Goals      []*Goal       `json:"goals"`
	Evidence   []Evidence    `json:"evidence"`
	History    []string      `json:"history"`
	Report     string        `json:"report"`
	ReportErr  error         `json:"-"`
	Duration   time.Duration `json:"duration"`
}

// PlanError aborts a session whose planning call failed.
type PlanError struct {
	Err error
}

func (e *PlanError) Error() string { return "planning failed: " + e.Err.Error() }

func (e *PlanError) Unwrap() error { return e.Err }
