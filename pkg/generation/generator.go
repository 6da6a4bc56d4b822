// Package generation defines the structured text generation capability
// consumed by the pipeline, plus the Gemini-backed implementation. Prompts
// and output schemas are plain data so any provider adapter can serve them.
package generation

import (
	"context"
	"encoding/json"

	cherr "github.com/chronolab/chrono/pkg/errors"
)

// Schema is a provider-neutral description of the expected JSON output.
type Schema struct {
	Type        string             `json:"type"` // object, array, string, integer, number, boolean
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// Request carries everything one generation call needs: the instruction
// template, the per-call prompt, the output schema and the call budget.
type Request struct {
	System      string
	Prompt      string
	Schema      *Schema
	MaxAttempts int // total underlying calls allowed; 0 means the default of 3
}

// Generator is the structured text generation capability. Generate returns
// the raw JSON value validated against req.Schema by the provider.
type Generator interface {
	Generate(ctx context.Context, req Request) (json.RawMessage, error)
}

// GenerateAs runs one generation call and decodes the result into T.
func GenerateAs[T any](ctx context.Context, g Generator, req Request) (T, error) {
	var out T
	raw, err := g.Generate(ctx, req)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, cherr.Wrap(err, cherr.ErrSchemaDecode)
	}
	return out, nil
}

// Stage identifies which pipeline step a generation call belongs to. Each
// stage may be routed to a different model.
type Stage string

const (
	StageProposal      Stage = "proposal"
	StageMilestone     Stage = "milestone"
	StageDetail        Stage = "detail"
	StageDedup         Stage = "dedup"
	StageHallucination Stage = "hallucination"
	StageGapAnalysis   Stage = "gap_analysis"
	StageSynthesis     Stage = "synthesis"
)

// Registry maps pipeline stages to generators. It is constructed once at
// startup and passed by reference to whatever needs it.
type Registry struct {
	byStage map[Stage]Generator
	def     Generator
}

// NewRegistry creates a registry with the given default generator.
func NewRegistry(def Generator) *Registry {
	return &Registry{byStage: make(map[Stage]Generator), def: def}
}

// Register routes a stage to a specific generator.
func (r *Registry) Register(stage Stage, g Generator) {
	r.byStage[stage] = g
}

// For returns the generator for a stage, falling back to the default.
func (r *Registry) For(stage Stage) Generator {
	if g, ok := r.byStage[stage]; ok {
		return g
	}
	return r.def
}
