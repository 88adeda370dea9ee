package core

import (
	"context"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/mohammad-safakhou/researchchat/internal/agent/telemetry"
	"github.com/mohammad-safakhou/researchchat/internal/budget"
	"github.com/mohammad-safakhou/researchchat/internal/helpers"
	"github.com/mohammad-safakhou/researchchat/provider"
)

// Synthesizer writes the final report from the collected evidence with a
// streaming model.
type Synthesizer struct {
	model     provider.Model
	telemetry *telemetry.Telemetry
	logger    *log.Logger
	now       func() time.Time
}

// NewSynthesizer returns a report writer backed by model. tel and logger may
// be nil.
func NewSynthesizer(model provider.Model, tel *telemetry.Telemetry, logger *log.Logger) *Synthesizer {
	if logger == nil {
		logger = log.New(log.Writer(), "[REPORT] ", log.LstdFlags)
	}
	return &Synthesizer{model: model, telemetry: tel, logger: logger, now: time.Now}
}

// Stream writes the report for query, emitting report_call, report_delta per
// chunk and then report_result or report_error to sink. On failure the text
// streamed so far is returned with the error.
func (sy *Synthesizer) Stream(ctx context.Context, query string, mode budget.Mode, evidence []Evidence, sink Sink) (string, error) {
	em := &emitter{sink: sink, now: sy.now}
	return sy.stream(ctx, query, mode, evidence, em, sy.now())
}

func (sy *Synthesizer) stream(ctx context.Context, query string, mode budget.Mode, evidence []Evidence, em *emitter, today time.Time) (string, error) {
	ctx, span := researchTracer.Start(ctx, "research.report")
	defer span.End()

	citations, known := BuildCitations(evidence)
	em.emit(EventReportCall, ReportCallPayload{Mode: string(mode), Evidence: len(evidence), Sources: len(citations)})

	req := provider.Request{
		System: reportSystem(mode),
		Messages: []provider.Message{{
			Role:    provider.RoleUser,
			Content: reportPrompt(query, today.Format("2006-01-02"), helpers.FormatContext(citations)),
		}},
	}

	start := time.Now()
	var b strings.Builder
	var streamErr error
	for chunk, err := range sy.model.StreamText(ctx, req) {
		if err != nil {
			streamErr = err
			break
		}
		if chunk == "" {
			continue
		}
		b.WriteString(chunk)
		em.emit(EventReportDelta, ReportDeltaPayload{Text: chunk})
	}
	sy.telemetry.RecordLLMEvent(ctx, telemetry.LLMEvent{
		Purpose: "report", Model: sy.model.Name(), Duration: time.Since(start), Err: streamErr,
	})

	report := b.String()
	if streamErr != nil {
		span.RecordError(streamErr)
		span.SetStatus(codes.Error, "report failed")
		em.emit(EventReportError, ErrorPayload{Error: streamErr.Error()})
		return report, streamErr
	}

	unknown := helpers.UnknownCitations(report, known)
	if len(unknown) > 0 {
		sy.logger.Printf("report cites %d URLs that are not among its sources", len(unknown))
	}
	em.emit(EventReportResult, ReportResultPayload{
		Length:           len(report),
		Citations:        len(helpers.CitedURLs(report)),
		UnknownCitations: unknown,
	})
	return report, nil
}

// BuildCitations numbers every distinct result URL across the evidence, in
// evidence order, and returns the URLs the report may cite.
func BuildCitations(evidence []Evidence) ([]helpers.Citation, []string) {
	var citations []helpers.Citation
	var known []string
	seen := make(map[string]struct{})
	for _, ev := range evidence {
		if ev.Result == nil {
			continue
		}
		for _, res := range ev.Result.Results {
			key := helpers.NormalizeURL(res.URL)
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			citations = append(citations, helpers.Citation{
				Index:   len(citations) + 1,
				Title:   res.Title,
				URL:     res.URL,
				Snippet: res.Snippet,
				Query:   ev.Query,
			})
			known = append(known, res.URL)
		}
	}
	return citations, known
}
