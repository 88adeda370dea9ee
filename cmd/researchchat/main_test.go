package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/researchchat/internal/agent/core"
	"github.com/mohammad-safakhou/researchchat/internal/budget"
	"github.com/mohammad-safakhou/researchchat/tools/web_search/models"
)

func TestRootCommands(t *testing.T) {
	root := rootCMD()
	for _, name := range []string{"serve", "migrate", "ask"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("command %q not registered: %v", name, err)
		}
	}
	if root.PersistentFlags().Lookup("config") == nil {
		t.Fatalf("expected persistent --config flag")
	}
}

func TestAskRejectsUnknownMode(t *testing.T) {
	root := rootCMD()
	root.SetArgs([]string{"ask", "--mode", "verbose", "what is go"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestPrintEvent(t *testing.T) {
	cases := []struct {
		name  string
		event core.Event
		json  bool
		want  string
	}{
		{"search", core.Event{Type: core.EventSearchCall, Data: core.SearchCallPayload{GoalID: 1, Query: "go generics"}}, false, "search: go generics"},
		{"error", core.Event{Type: core.EventSearchError, Data: core.ErrorPayload{GoalID: 1, Error: "boom"}}, false, "search_error: boom"},
		{"stop", core.Event{Type: core.EventSessionStop, Data: core.SessionStopPayload{Reason: core.StopCompleted, Iterations: 2}}, false, "stopped: completed after 2 iterations"},
		{"json", core.Event{Seq: 3, Type: core.EventReportDelta, Time: time.Unix(0, 0), Data: core.ReportDeltaPayload{Text: "hi"}}, true, `"type":"report_delta"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			printEvent(&buf, tc.event, tc.json)
			if !strings.Contains(buf.String(), tc.want) {
				t.Fatalf("got %q, want substring %q", buf.String(), tc.want)
			}
		})
	}
}

func TestWriteReportListsSources(t *testing.T) {
	out := &core.Outcome{
		Mode:   budget.ModeConcise,
		Report: "Answer [A](https://a.example/1).",
		Evidence: []core.Evidence{
			{Query: "q1", Result: &models.Response{Query: "q1", Results: []models.Result{{URL: "https://a.example/1", Title: "A"}}}},
		},
	}
	var buf bytes.Buffer
	writeReport(&buf, out)
	got := buf.String()
	if !strings.Contains(got, "Answer") || !strings.Contains(got, "[1] A") || !strings.Contains(got, "<https://a.example/1>") {
		t.Fatalf("unexpected report output: %q", got)
	}
}
