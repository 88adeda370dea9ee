package core

import (
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/researchchat/internal/budget"
	"github.com/mohammad-safakhou/researchchat/tools/web_search/models"
)

const planningSystem = `You are a research planner. Break the user's question into high-level research goals that can be answered with web searches.`

func planningPrompt(query, date string, limits budget.Limits) string {
	return fmt.Sprintf(`Today's date is %s.

USER QUERY: %s

Propose between 1 and %d research goals. Each goal states what must be learned and carries between 1 and %d web search queries that would find it.

REQUIREMENTS:
1. Goals must not overlap.
2. Queries are short, specific and phrased the way a person types into a search engine.
3. Use the date when the question concerns recent events.

Respond with JSON: {"goals": [{"goal": "...", "search_queries": ["..."]}]}`,
		date, query, limits.PlanGoals, limits.SeedQueries)
}

const relevanceSystem = `You judge whether web search results help answer a research goal.`

func relevancePrompt(goal *Goal, resp models.Response) string {
	var b strings.Builder
	fmt.Fprintf(&b, "RESEARCH GOAL: %s\n", goal.Text)
	fmt.Fprintf(&b, "SEARCH QUERY: %s\n\nRESULTS:\n", resp.Query)
	for i, r := range resp.Results {
		fmt.Fprintf(&b, "%d. %s <%s>\n   %s\n", i+1, r.Title, r.URL, r.Snippet)
	}
	if len(resp.Images) > 0 {
		fmt.Fprintf(&b, "\nIMAGES: %d attached\n", len(resp.Images))
	}
	b.WriteString(`
Decide whether these results are relevant to the goal and explain why in one sentence.
Set new_angle to true only if they reveal a distinct line of research the goal does not cover, and describe it in angle_description (empty string otherwise).

Respond with JSON: {"is_relevant": bool, "reason": "...", "new_angle": bool, "angle_description": "..."}`)
	return b.String()
}

const reflectionSystem = `You review the progress of one research goal and decide what happens next.`

type reflectionInput struct {
	Goal        *Goal
	MaxSearches int
	Angles      []string
	OtherGoals  []string
	SeedQueries int
}

func reflectionPrompt(in reflectionInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CURRENT GOAL: %s\n", in.Goal.Text)
	fmt.Fprintf(&b, "SEARCHES ATTEMPTED: %d of %d (queries available: %d)\n", in.Goal.SearchesAttempted, in.MaxSearches, len(in.Goal.SearchQueries))
	fmt.Fprintf(&b, "RELEVANT RESULTS SO FAR: %d\n", len(in.Goal.RelevantResults))
	if len(in.Angles) > 0 {
		b.WriteString("\nNEW ANGLES FLAGGED BY THE ANALYSIS:\n")
		for _, a := range in.Angles {
			fmt.Fprintf(&b, "- %s\n", a)
		}
	}
	if len(in.OtherGoals) > 0 {
		b.WriteString("\nOTHER GOALS ALREADY PLANNED OR DONE (do not duplicate):\n")
		for _, g := range in.OtherGoals {
			fmt.Fprintf(&b, "- %s\n", g)
		}
	}
	fmt.Fprintf(&b, `
Decide:
1. assessment: "completed" if the goal is sufficiently answered, "needs_more_searches" if more of its queries should run, "failed" if it cannot be answered.
2. new_goals: only genuinely new goals worth researching, each with 1 to %d search queries. Use an empty list when none are needed.
3. next_action: a short suggestion for what to do next.

Respond with JSON: {"new_goals": [{"goal": "...", "search_queries": ["..."]}], "assessment": "...", "next_action": "..."}`, in.SeedQueries)
	return b.String()
}

const researchReportSystem = `You are a research writer. Write a thorough, well-structured report in Markdown that answers the user's question using only the numbered sources provided.

RULES:
- Organise the report with headings and paragraphs; open with a short summary.
- Every factual claim carries an inline citation as a Markdown link to the exact source it came from, e.g. [Title](URL), using only titles and URLs that appear in the sources.
- Do not invent sources or URLs. If the sources do not cover part of the question, say so.`

const conciseReportSystem = `You answer the user's question directly in 5 to 6 sentences using only the numbered sources provided.

RULES:
- Lead with the answer; no headings.
- Every factual claim carries an inline citation as a Markdown link, e.g. [Title](URL), using only titles and URLs that appear in the sources.
- Do not invent sources or URLs. If the sources are insufficient, say so briefly.`

func reportSystem(mode budget.Mode) string {
	if mode == budget.ModeResearch {
		return researchReportSystem
	}
	return conciseReportSystem
}

func reportPrompt(query, date, context string) string {
	if strings.TrimSpace(context) == "" {
		context = "(no relevant sources were found)"
	}
	return fmt.Sprintf("Today's date is %s.\n\nQUESTION: %s\n\nSOURCES:\n%s", date, query, context)
}
