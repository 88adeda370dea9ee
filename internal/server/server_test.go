package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mohammad-safakhou/researchchat/config"
	"github.com/mohammad-safakhou/researchchat/internal/agent/core"
	"github.com/mohammad-safakhou/researchchat/internal/budget"
	"github.com/mohammad-safakhou/researchchat/internal/store"
	"github.com/mohammad-safakhou/researchchat/tools/web_search/models"
)

type stubResearcher struct {
	mu   sync.Mutex
	reqs []core.Request
	run  func(ctx context.Context, sink core.Sink) (*core.Outcome, error)
}

func (s *stubResearcher) Run(ctx context.Context, req core.Request, sink core.Sink) (*core.Outcome, error) {
	s.mu.Lock()
	s.reqs = append(s.reqs, req)
	s.mu.Unlock()
	return s.run(ctx, sink)
}

type stubLedger struct {
	mu    sync.Mutex
	saved []store.RunRecord
	runs  []store.RunRecord
	limit int
	err   error
}

func (l *stubLedger) SaveRun(ctx context.Context, rec store.RunRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.saved = append(l.saved, rec)
	return nil
}

func (l *stubLedger) ListRuns(ctx context.Context, limit int) ([]store.RunRecord, error) {
	l.limit = limit
	return l.runs, l.err
}

func (l *stubLedger) GetRun(ctx context.Context, id string) (store.RunRecord, bool, error) {
	for _, r := range l.runs {
		if r.ID == id {
			return r, true, nil
		}
	}
	return store.RunRecord{}, false, nil
}

func (l *stubLedger) savedRuns() []store.RunRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]store.RunRecord(nil), l.saved...)
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func successfulRun(ctx context.Context, sink core.Sink) (*core.Outcome, error) {
	now := time.Now()
	sink.Emit(core.Event{Seq: 1, Type: core.EventPlanStart, Time: now, Data: core.PlanStartPayload{Query: "q"}})
	sink.Emit(core.Event{Seq: 2, Type: core.EventReportDelta, Time: now, Data: core.ReportDeltaPayload{Text: "Answer"}})
	sink.Emit(core.Event{Seq: 3, Type: core.EventReportResult, Time: now, Data: core.ReportResultPayload{Length: 6}})
	resp := models.Response{Results: []models.Result{{URL: "https://a.example", Title: "A"}}}
	return &core.Outcome{
		SessionID:  "s-1",
		StopReason: core.StopCompleted,
		Iterations: 1,
		Goals:      []*core.Goal{{ID: 1}},
		Evidence:   []core.Evidence{{Query: "q", Result: &resp}},
		Report:     "Answer",
	}, nil
}

type sseFrame struct {
	event string
	data  map[string]any
}

func parseSSE(t *testing.T, body string) []sseFrame {
	t.Helper()
	var frames []sseFrame
	for _, block := range strings.Split(strings.TrimSpace(body), "\n\n") {
		var f sseFrame
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				f.event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &f.data); err != nil {
					t.Fatalf("bad data line %q: %v", line, err)
				}
			}
		}
		frames = append(frames, f)
	}
	return frames
}

func TestChatStreamsEvents(t *testing.T) {
	researcher := &stubResearcher{run: successfulRun}
	ledger := &stubLedger{}
	e := New(config.ServerConfig{}, researcher, Options{Ledger: ledger, Logger: quietLogger()})

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"query":"what is go?","mode":"research"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %s", ct)
	}
	frames := parseSSE(t, rec.Body.String())
	if len(frames) != 4 {
		t.Fatalf("frames = %d: %s", len(frames), rec.Body.String())
	}
	if frames[0].event != "plan_start" || frames[0].data["type"] != "plan_start" || frames[0].data["query"] != "q" {
		t.Fatalf("unexpected first frame %+v", frames[0])
	}
	if frames[1].data["text"] != "Answer" {
		t.Fatalf("delta payload not flattened: %+v", frames[1])
	}
	done := frames[3]
	if done.event != "done" || done.data["status"] != "ok" || done.data["session_id"] != "s-1" {
		t.Fatalf("unexpected done frame %+v", done)
	}
	if sources, _ := done.data["sources"].([]any); len(sources) != 1 {
		t.Fatalf("sources = %v", done.data["sources"])
	}
	if got := researcher.reqs[0]; got.Mode != budget.ModeResearch || got.Query != "what is go?" {
		t.Fatalf("unexpected request %+v", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(ledger.savedRuns()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	saved := ledger.savedRuns()
	if len(saved) != 1 || saved[0].ID != "s-1" || saved[0].Mode != "research" || saved[0].Goals != 1 {
		t.Fatalf("unexpected ledger writes %+v", saved)
	}
}

func TestChatPlanFailure(t *testing.T) {
	researcher := &stubResearcher{run: func(ctx context.Context, sink core.Sink) (*core.Outcome, error) {
		sink.Emit(core.Event{Seq: 1, Type: core.EventPlanError, Data: core.ErrorPayload{Error: "boom"}})
		return &core.Outcome{SessionID: "s-2"}, &core.PlanError{Err: errors.New("boom")}
	}}
	e := New(config.ServerConfig{}, researcher, Options{Logger: quietLogger()})

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"query":"q"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	frames := parseSSE(t, rec.Body.String())
	if len(frames) != 2 || frames[0].event != "plan_error" {
		t.Fatalf("unexpected frames %+v", frames)
	}
	if frames[1].data["status"] != store.RunStatusPlanFailed {
		t.Fatalf("done status = %v", frames[1].data["status"])
	}
}

func TestChatResearcherPanicEndsStream(t *testing.T) {
	researcher := &stubResearcher{run: func(ctx context.Context, sink core.Sink) (*core.Outcome, error) {
		sink.Emit(core.Event{Seq: 1, Type: core.EventPlanStart, Data: core.PlanStartPayload{Query: "q"}})
		panic("adapter exploded")
	}}
	ledger := &stubLedger{}
	e := New(config.ServerConfig{}, researcher, Options{Ledger: ledger, Logger: quietLogger()})

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"query":"q"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	finished := make(chan struct{})
	go func() {
		e.ServeHTTP(rec, req)
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatalf("handler did not return after the session panicked")
	}

	frames := parseSSE(t, rec.Body.String())
	if len(frames) != 2 || frames[0].event != "plan_start" || frames[1].event != "done" {
		t.Fatalf("unexpected frames %+v", frames)
	}
	if frames[1].data["status"] != store.RunStatusFailed {
		t.Fatalf("done status = %v", frames[1].data["status"])
	}
	if msg, _ := frames[1].data["error"].(string); !strings.Contains(msg, "adapter exploded") {
		t.Fatalf("done error = %v", frames[1].data["error"])
	}
}

func TestChatQueryFromMessages(t *testing.T) {
	researcher := &stubResearcher{run: successfulRun}
	e := New(config.ServerConfig{}, researcher, Options{Logger: quietLogger()})

	body := `{"messages":[{"role":"user","content":"first"},{"role":"assistant","content":"reply"},{"role":"user","content":" second "}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := researcher.reqs[0]; got.Query != "second" || got.Mode != budget.ModeConcise {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestChatRejectsBadRequests(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"empty query", `{"query":"  "}`},
		{"assistant only", `{"messages":[{"role":"assistant","content":"hi"}]}`},
		{"unknown mode", `{"query":"q","mode":"essay"}`},
		{"bad json", `{"query":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			researcher := &stubResearcher{run: successfulRun}
			e := New(config.ServerConfig{}, researcher, Options{Logger: quietLogger()})
			req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", rec.Code)
			}
			var resp map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp["error"] == "" {
				t.Fatalf("expected JSON error body, got %s", rec.Body.String())
			}
			if len(researcher.reqs) != 0 {
				t.Fatalf("session started for a bad request")
			}
		})
	}
}

func TestChatAppliesSessionTimeout(t *testing.T) {
	researcher := &stubResearcher{run: func(ctx context.Context, sink core.Sink) (*core.Outcome, error) {
		<-ctx.Done()
		return &core.Outcome{SessionID: "s-3", StopReason: core.StopCancelled}, nil
	}}
	e := New(config.ServerConfig{SessionTimeout: 20 * time.Millisecond}, researcher, Options{Logger: quietLogger()})

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"query":"q"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	frames := parseSSE(t, rec.Body.String())
	if len(frames) != 1 || frames[0].data["stop_reason"] != "cancelled" {
		t.Fatalf("unexpected frames %+v", frames)
	}
}

func TestRunsEndpoints(t *testing.T) {
	ledger := &stubLedger{runs: []store.RunRecord{{ID: "r-1", Mode: "concise", Status: "ok"}}}
	e := New(config.ServerConfig{}, &stubResearcher{run: successfulRun}, Options{Ledger: ledger, Logger: quietLogger()})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs?limit=5", nil))
	if rec.Code != http.StatusOK || ledger.limit != 5 {
		t.Fatalf("status = %d, limit = %d", rec.Code, ledger.limit)
	}
	var body struct {
		Runs []store.RunRecord `json:"runs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || len(body.Runs) != 1 {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs?limit=abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/r-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing run status = %d", rec.Code)
	}

	ledger.err = errors.New("db down")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("ledger error status = %d", rec.Code)
	}
}

func TestRunsDisabled(t *testing.T) {
	e := New(config.ServerConfig{}, &stubResearcher{run: successfulRun}, Options{Logger: quietLogger()})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	e := New(config.ServerConfig{}, &stubResearcher{run: successfulRun}, Options{Logger: quietLogger()})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rec.Code, rec.Body.String())
	}
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics = %d", rec.Code)
	}
}

func TestStreamSinkDrainAfterClose(t *testing.T) {
	s := newStreamSink()
	s.Emit(core.Event{Seq: 1})
	s.Emit(core.Event{Seq: 2})
	s.close()
	s.Emit(core.Event{Seq: 3})
	events, closed := s.drain()
	if len(events) != 2 || !closed {
		t.Fatalf("drain = %d events, closed=%v", len(events), closed)
	}
}
