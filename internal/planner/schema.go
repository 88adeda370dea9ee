package planner

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// PlanDocument is the planner's proposal of initial research goals.
type PlanDocument struct {
	Goals []GoalProposal `json:"goals"`
}

// GoalProposal is a goal suggested by the planner or by a reflection step.
type GoalProposal struct {
	Goal          string   `json:"goal"`
	SearchQueries []string `json:"search_queries"`
}

// RelevanceDocument is the judgement for one search response.
type RelevanceDocument struct {
	IsRelevant       bool   `json:"is_relevant"`
	Reason           string `json:"reason"`
	NewAngle         bool   `json:"new_angle"`
	AngleDescription string `json:"angle_description"`
}

// Assessment values a reflection may return for the current goal.
const (
	AssessmentCompleted         = "completed"
	AssessmentNeedsMoreSearches = "needs_more_searches"
	AssessmentFailed            = "failed"
)

// ReflectionDocument is the reflection step's verdict on a goal.
type ReflectionDocument struct {
	NewGoals   []GoalProposal `json:"new_goals"`
	Assessment string         `json:"assessment"`
	NextAction string         `json:"next_action"`
}

// Schema is an embedded JSON Schema compiled on first use.
type Schema struct {
	name string
	file string

	once     sync.Once
	raw      []byte
	compiled *jsonschema.Schema
	err      error
}

var (
	PlanSchema       = &Schema{name: "research_plan", file: "schemas/plan.json"}
	RelevanceSchema  = &Schema{name: "relevance_judgement", file: "schemas/relevance.json"}
	ReflectionSchema = &Schema{name: "goal_reflection", file: "schemas/reflection.json"}
)

func (s *Schema) Name() string { return s.name }

func (s *Schema) load() {
	s.once.Do(func() {
		raw, err := schemaFS.ReadFile(s.file)
		if err != nil {
			s.err = fmt.Errorf("read schema %s: %w", s.file, err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(s.file, strings.NewReader(string(raw))); err != nil {
			s.err = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiled, err := compiler.Compile(s.file)
		if err != nil {
			s.err = fmt.Errorf("compile %s schema: %w", s.name, err)
			return
		}
		s.raw = raw
		s.compiled = compiled
	})
}

// Raw returns the schema document.
func (s *Schema) Raw() (json.RawMessage, error) {
	s.load()
	return s.raw, s.err
}

// Validate checks data against the schema.
func (s *Schema) Validate(data []byte) error {
	s.load()
	if s.err != nil {
		return s.err
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%s is not valid JSON: %w", s.name, err)
	}
	if err := s.compiled.Validate(doc); err != nil {
		return fmt.Errorf("%s does not match schema: %w", s.name, err)
	}
	return nil
}
