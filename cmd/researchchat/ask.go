package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/researchchat/config"
	"github.com/mohammad-safakhou/researchchat/internal/agent/core"
	"github.com/mohammad-safakhou/researchchat/internal/budget"
	"github.com/mohammad-safakhou/researchchat/internal/helpers"
)

func askCMD(cfgPath *string) *cobra.Command {
	var mode string
	var jsonEvents bool
	var ask = &cobra.Command{
		Use:   "ask <query>",
		Short: "Research a question and print the report",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := budget.ParseMode(mode)
			if err != nil {
				return err
			}
			cfg, err := config.LoadConfig(*cfgPath)
			if err != nil {
				return err
			}
			researcher, err := core.NewResearcherFromConfig(cmd.Context(), cfg, nil, nil)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Server.SessionTimeout)
			defer cancel()

			stderr := cmd.ErrOrStderr()
			sink := core.SinkFunc(func(e core.Event) { printEvent(stderr, e, jsonEvents) })
			out, err := researcher.Run(ctx, core.Request{Query: strings.Join(args, " "), Mode: m}, sink)
			if err != nil {
				return err
			}
			writeReport(cmd.OutOrStdout(), out)
			fmt.Fprintf(stderr, "stop=%s iterations=%d evidence=%d duration=%s\n",
				out.StopReason, out.Iterations, len(out.Evidence), out.Duration.Round(time.Millisecond))
			return out.ReportErr
		},
	}
	ask.Flags().StringVarP(&mode, "mode", "m", string(budget.ModeConcise), "response mode: concise or research")
	ask.Flags().BoolVar(&jsonEvents, "json", false, "print progress events as JSON lines")
	return ask
}

func writeReport(w io.Writer, out *core.Outcome) {
	fmt.Fprintln(w, out.Report)
	citations, _ := core.BuildCitations(out.Evidence)
	if len(citations) == 0 {
		return
	}
	fmt.Fprintln(w, "\nSources:")
	for _, c := range citations {
		fmt.Fprintln(w, helpers.FormatCitation(c, helpers.WithMaxSnippetLength(160)))
	}
}

func printEvent(w io.Writer, e core.Event, asJSON bool) {
	if asJSON {
		raw, err := json.Marshal(e)
		if err == nil {
			fmt.Fprintln(w, string(raw))
		}
		return
	}
	switch p := e.Data.(type) {
	case core.GoalIterationPayload:
		fmt.Fprintf(w, "> goal %d (iteration %d): %s\n", p.GoalID, p.Iteration, p.Goal)
	case core.SearchCallPayload:
		fmt.Fprintf(w, "  search: %s\n", p.Query)
	case core.ErrorPayload:
		fmt.Fprintf(w, "  %s: %s\n", e.Type, p.Error)
	case core.GoalStatusPayload:
		fmt.Fprintf(w, "  goal %d %s %s\n", p.GoalID, p.Status, p.Reason)
	case core.GoalAddedPayload:
		fmt.Fprintf(w, "  + goal %d: %s\n", p.Goal.ID, p.Goal.Goal)
	case core.SessionStopPayload:
		fmt.Fprintf(w, "stopped: %s after %d iterations\n", p.Reason, p.Iterations)
	}
}
