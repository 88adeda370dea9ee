package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/mohammad-safakhou/researchchat/internal/agent/core"
	"github.com/mohammad-safakhou/researchchat/internal/budget"
	"github.com/mohammad-safakhou/researchchat/internal/store"
)

var chatTracer = otel.Tracer("researchchat/internal/server/chat")

// Researcher runs one research session.
type Researcher interface {
	Run(ctx context.Context, req core.Request, sink core.Sink) (*core.Outcome, error)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Query    string        `json:"query"`
	Mode     string        `json:"mode"`
	Messages []chatMessage `json:"messages"`
}

// question returns the explicit query or, failing that, the last user message.
func (r chatRequest) question() string {
	if q := strings.TrimSpace(r.Query); q != "" {
		return q
	}
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if strings.EqualFold(r.Messages[i].Role, "user") {
			if q := strings.TrimSpace(r.Messages[i].Content); q != "" {
				return q
			}
		}
	}
	return ""
}

// donePayload closes every stream.
type donePayload struct {
	SessionID  string          `json:"session_id,omitempty"`
	Status     string          `json:"status"`
	StopReason core.StopReason `json:"stop_reason,omitempty"`
	Iterations int             `json:"iterations"`
	Goals      int             `json:"goals"`
	Evidence   int             `json:"evidence"`
	Sources    []sourceView    `json:"sources,omitempty"`
	Error      string          `json:"error,omitempty"`
}

type sourceView struct {
	Index int    `json:"index"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

type ChatHandler struct {
	researcher Researcher
	ledger     RunLedger
	timeout    time.Duration
	logger     *log.Logger
	events     otelmetric.Int64Counter
}

func (h *ChatHandler) Register(g *echo.Group) {
	g.POST("/chat", h.chat)
}

// chat runs a research session and streams its events as SSE frames.
func (h *ChatHandler) chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	query := req.question()
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	mode, err := budget.ParseMode(req.Mode)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, span := chatTracer.Start(c.Request().Context(), "ChatHandler.chat")
	defer span.End()
	span.SetAttributes(attribute.String("mode", string(mode)))
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	resp := c.Response()
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	flusher.Flush()

	type result struct {
		out *core.Outcome
		err error
	}
	sink := newStreamSink()
	done := make(chan result, 1)
	started := time.Now()
	go func() {
		defer sink.close()
		defer func() {
			if p := recover(); p != nil {
				h.logger.Printf("research session panicked: %v", p)
				done <- result{err: fmt.Errorf("research session panicked: %v", p)}
			}
		}()
		out, err := h.researcher.Run(ctx, core.Request{Query: query, Mode: mode}, sink)
		done <- result{out: out, err: err}
	}()

	writeFailed := false
	for {
		events, closed := sink.drain()
		for _, ev := range events {
			if writeFailed {
				break
			}
			if err := writeSSE(resp, string(ev.Type), ev); err != nil {
				h.logger.Printf("stream write failed, cancelling session: %v", err)
				writeFailed = true
				cancel()
				break
			}
			h.countEvent(ctx, ev.Type)
		}
		if !writeFailed {
			flusher.Flush()
		}
		if closed {
			break
		}
		<-sink.notify
	}

	res := <-done
	final := summarize(res.out, res.err)
	if res.err != nil {
		span.RecordError(res.err)
		span.SetStatus(codes.Error, res.err.Error())
	}
	h.record(final, mode, started)
	if writeFailed {
		return nil
	}
	if err := writeSSE(resp, "done", final); err != nil {
		h.logger.Printf("stream write failed: %v", err)
		return nil
	}
	flusher.Flush()
	return nil
}

func (h *ChatHandler) countEvent(ctx context.Context, t core.EventType) {
	if h.events == nil {
		return
	}
	h.events.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("type", string(t))))
}

func summarize(out *core.Outcome, err error) donePayload {
	p := donePayload{Status: store.RunStatusOK}
	if out != nil {
		p.SessionID = out.SessionID
		p.StopReason = out.StopReason
		p.Iterations = out.Iterations
		p.Goals = len(out.Goals)
		p.Evidence = len(out.Evidence)
		citations, _ := core.BuildCitations(out.Evidence)
		for _, c := range citations {
			p.Sources = append(p.Sources, sourceView{Index: c.Index, Title: c.Title, URL: c.URL})
		}
		if out.ReportErr != nil {
			p.Status = store.RunStatusReportFailed
			p.Error = out.ReportErr.Error()
		}
	}
	if err != nil {
		p.Status = store.RunStatusPlanFailed
		var planErr *core.PlanError
		if !errors.As(err, &planErr) {
			p.Status = store.RunStatusFailed
		}
		p.Error = err.Error()
	}
	return p
}

// record writes the run to the ledger in the background.
func (h *ChatHandler) record(p donePayload, mode budget.Mode, started time.Time) {
	if h.ledger == nil || p.SessionID == "" {
		return
	}
	rec := store.RunRecord{
		ID:         p.SessionID,
		Mode:       string(mode),
		Status:     p.Status,
		StopReason: string(p.StopReason),
		Iterations: p.Iterations,
		Goals:      p.Goals,
		Evidence:   p.Evidence,
		DurationMS: time.Since(started).Milliseconds(),
		CreatedAt:  started.UTC(),
	}
	if p.Error != "" {
		msg := p.Error
		rec.Error = &msg
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.ledger.SaveRun(ctx, rec); err != nil {
			h.logger.Printf("save run %s failed: %v", rec.ID, err)
		}
	}()
}
