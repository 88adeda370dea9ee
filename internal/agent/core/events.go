package core

import (
	"encoding/json"
	"sync"
	"time"
)

// EventType tags a progress event.
type EventType string

const (
	EventPlanStart          EventType = "plan_start"
	EventPlanResult         EventType = "plan_result"
	EventPlanError          EventType = "plan_error"
	EventGoalIterationStart EventType = "goal_iteration_start"
	EventSearchStart        EventType = "search_start"
	EventSearchCall         EventType = "search_call"
	EventSearchResult       EventType = "search_result"
	EventSearchError        EventType = "search_error"
	EventAnalysisCall       EventType = "analysis_call"
	EventAnalysisResult     EventType = "analysis_result"
	EventAnalysisError      EventType = "analysis_error"
	EventGoalProgress       EventType = "goal_progress"
	EventReflectionCall     EventType = "reflection_call"
	EventReflectionResult   EventType = "reflection_result"
	EventReflectionError    EventType = "reflection_error"
	EventGoalAdded          EventType = "goal_added"
	EventGoalCompleted      EventType = "goal_completed"
	EventGoalRequeued       EventType = "goal_requeued"
	EventGoalFailed         EventType = "goal_failed"
	EventSessionStop        EventType = "session_stop"
	EventReportCall         EventType = "report_call"
	EventReportDelta        EventType = "report_delta"
	EventReportResult       EventType = "report_result"
	EventReportError        EventType = "report_error"
)

// Event is one progress annotation. On the wire the payload fields sit next
// to type, seq and ts in a single flat object.
type Event struct {
	Seq  int
	Type EventType
	Time time.Time
	Data any
}

func (e Event) MarshalJSON() ([]byte, error) {
	fields := map[string]any{}
	if e.Data != nil {
		raw, err := json.Marshal(e.Data)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &fields); err != nil {
			fields = map[string]any{"data": json.RawMessage(raw)}
		}
	}
	fields["type"] = e.Type
	fields["seq"] = e.Seq
	fields["ts"] = e.Time.UTC().Format(time.RFC3339Nano)
	return json.Marshal(fields)
}

// Sink receives progress events in order. Emit must not block on slow
// consumers.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Recorder is a Sink that keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events with type t.
func (r *Recorder) OfType(t EventType) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// emitter stamps events with a sequence number and time before forwarding.
type emitter struct {
	sink    Sink
	seq     int
	now     func() time.Time
	observe func(Event)
}

func (em *emitter) emit(t EventType, data any) {
	em.seq++
	ev := Event{Seq: em.seq, Type: t, Time: em.now(), Data: data}
	if em.sink != nil {
		em.sink.Emit(ev)
	}
	if em.observe != nil {
		em.observe(ev)
	}
}

// GoalView is the event representation of a goal.
type GoalView struct {
	ID            int        `json:"id"`
	Goal          string     `json:"goal"`
	SearchQueries []string   `json:"search_queries"`
	Status        GoalStatus `json:"status"`
}

func viewOf(g *Goal) GoalView {
	return GoalView{ID: g.ID, Goal: g.Text, SearchQueries: g.SearchQueries, Status: g.Status}
}

type PlanStartPayload struct {
	Query string `json:"query"`
	Mode  string `json:"mode"`
	Date  string `json:"date"`
}

type PlanResultPayload struct {
	Goals []GoalView `json:"goals"`
}

type ErrorPayload struct {
	GoalID int    `json:"goal_id,omitempty"`
	Query  string `json:"query,omitempty"`
	Error  string `json:"error"`
}

type GoalIterationPayload struct {
	GoalID    int    `json:"goal_id"`
	Goal      string `json:"goal"`
	Iteration int    `json:"iteration"`
}

type SearchStartPayload struct {
	GoalID  int      `json:"goal_id"`
	Queries []string `json:"queries"`
}

type SearchCallPayload struct {
	GoalID     int    `json:"goal_id"`
	Query      string `json:"query"`
	Depth      string `json:"depth"`
	MaxResults int    `json:"max_results"`
}

type SearchResultPayload struct {
	GoalID int      `json:"goal_id"`
	Query  string   `json:"query"`
	URLs   []string `json:"urls"`
	Titles []string `json:"titles"`
	Images int      `json:"images"`
}

type AnalysisCallPayload struct {
	GoalID    int `json:"goal_id"`
	Responses int `json:"responses"`
}

type AnalysisResultPayload struct {
	GoalID           int    `json:"goal_id"`
	Query            string `json:"query"`
	IsRelevant       bool   `json:"is_relevant"`
	Reason           string `json:"reason"`
	NewAngle         bool   `json:"new_angle"`
	AngleDescription string `json:"angle_description,omitempty"`
}

type GoalProgressPayload struct {
	GoalID            int `json:"goal_id"`
	SearchesAttempted int `json:"searches_attempted"`
	MaxSearches       int `json:"max_searches"`
	RelevantResults   int `json:"relevant_results"`
	TotalEvidence     int `json:"total_evidence"`
}

type ReflectionCallPayload struct {
	GoalID int `json:"goal_id"`
}

type ReflectionResultPayload struct {
	GoalID         int    `json:"goal_id"`
	Assessment     string `json:"assessment"`
	NextAction     string `json:"next_action"`
	ProposedGoals  int    `json:"proposed_goals"`
	AcceptedGoals  int    `json:"accepted_goals"`
	DiscardedGoals int    `json:"discarded_goals"`
}

type GoalAddedPayload struct {
	Goal     GoalView `json:"goal"`
	ParentID int      `json:"parent_id"`
}

type GoalStatusPayload struct {
	GoalID            int        `json:"goal_id"`
	Status            GoalStatus `json:"status"`
	Reason            string     `json:"reason,omitempty"`
	SearchesAttempted int        `json:"searches_attempted"`
}

type SessionStopPayload struct {
	Reason     StopReason `json:"reason"`
	Iterations int        `json:"iterations"`
	Completed  int        `json:"completed_goals"`
	Active     int        `json:"active_goals"`
	Evidence   int        `json:"evidence"`
}

type ReportCallPayload struct {
	Mode     string `json:"mode"`
	Evidence int    `json:"evidence"`
	Sources  int    `json:"sources"`
}

type ReportDeltaPayload struct {
	Text string `json:"text"`
}

type ReportResultPayload struct {
	Length           int      `json:"length"`
	Citations        int      `json:"citations"`
	UnknownCitations []string `json:"unknown_citations,omitempty"`
}
