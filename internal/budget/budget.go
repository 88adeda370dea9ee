package budget

import (
	"fmt"
	"strings"
)

// Mode selects the budget profile for a research session.
type Mode string

const (
	ModeConcise  Mode = "concise"
	ModeResearch Mode = "research"
)

// Depth values understood by the search providers.
const (
	DepthBasic    = "basic"
	DepthAdvanced = "advanced"
)

// ParseMode maps user input onto a Mode. Empty input selects concise.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeConcise:
		return ModeConcise, nil
	case ModeResearch:
		return ModeResearch, nil
	default:
		return "", fmt.Errorf("unknown response mode %q", raw)
	}
}

// Limits defines the loop guardrails for one response mode.
type Limits struct {
	MaxIterations      int    `mapstructure:"max_iterations" json:"max_iterations"`
	MaxGoals           int    `mapstructure:"max_goals" json:"max_goals"`
	MaxSearchesPerGoal int    `mapstructure:"max_searches_per_goal" json:"max_searches_per_goal"`
	PlanGoals          int    `mapstructure:"plan_goals" json:"plan_goals"`
	SeedQueries        int    `mapstructure:"seed_queries" json:"seed_queries"`
	ResultsPerQuery    int    `mapstructure:"results_per_query" json:"results_per_query"`
	Depth              string `mapstructure:"depth" json:"depth"`
}

// Defaults returns the built-in limits for mode.
func Defaults(mode Mode) Limits {
	if mode == ModeResearch {
		return Limits{
			MaxIterations:      10,
			MaxGoals:           8,
			MaxSearchesPerGoal: 3,
			PlanGoals:          2,
			SeedQueries:        3,
			ResultsPerQuery:    2,
			Depth:              DepthAdvanced,
		}
	}
	return Limits{
		MaxIterations:      3,
		MaxGoals:           3,
		MaxSearchesPerGoal: 2,
		PlanGoals:          1,
		SeedQueries:        1,
		ResultsPerQuery:    2,
		Depth:              DepthBasic,
	}
}

// Validate ensures the limits are sane before use.
func (l Limits) Validate() error {
	if l.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be greater than zero")
	}
	if l.MaxGoals <= 0 {
		return fmt.Errorf("max_goals must be greater than zero")
	}
	if l.MaxSearchesPerGoal <= 0 {
		return fmt.Errorf("max_searches_per_goal must be greater than zero")
	}
	if l.PlanGoals <= 0 || l.PlanGoals > l.MaxGoals {
		return fmt.Errorf("plan_goals must be between 1 and max_goals")
	}
	if l.SeedQueries <= 0 {
		return fmt.Errorf("seed_queries must be greater than zero")
	}
	if l.ResultsPerQuery <= 0 {
		return fmt.Errorf("results_per_query must be greater than zero")
	}
	if l.Depth != DepthBasic && l.Depth != DepthAdvanced {
		return fmt.Errorf("depth must be %q or %q", DepthBasic, DepthAdvanced)
	}
	return nil
}

// IsZero reports whether no limit was set explicitly.
func (l Limits) IsZero() bool {
	return l == Limits{}
}

// Merge overlays non-zero values from override onto base.
func Merge(base, override Limits) Limits {
	result := base
	if override.MaxIterations > 0 {
		result.MaxIterations = override.MaxIterations
	}
	if override.MaxGoals > 0 {
		result.MaxGoals = override.MaxGoals
	}
	if override.MaxSearchesPerGoal > 0 {
		result.MaxSearchesPerGoal = override.MaxSearchesPerGoal
	}
	if override.PlanGoals > 0 {
		result.PlanGoals = override.PlanGoals
	}
	if override.SeedQueries > 0 {
		result.SeedQueries = override.SeedQueries
	}
	if override.ResultsPerQuery > 0 {
		result.ResultsPerQuery = override.ResultsPerQuery
	}
	if strings.TrimSpace(override.Depth) != "" {
		result.Depth = strings.ToLower(strings.TrimSpace(override.Depth))
	}
	return result
}
