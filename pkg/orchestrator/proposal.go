package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/chronolab/chrono/pkg/generation"
	"github.com/chronolab/chrono/pkg/types"
)

const plannerInstructions = `You are a research planning specialist. Given a topic, design the research
plan for building its complete milestone timeline.

Complexity tiers:
- light: narrow topic, short history. 1-2 threads, 10-15 total nodes.
- medium: a product line or a person's career. 3-4 threads, 20-40 nodes.
- deep: an industry or technology domain. 5-6 threads, 40-70 nodes.
- epic: decades-spanning subject. Split into 2-4 non-overlapping time
  phases with 2-4 threads each, 70-120 nodes. Only epic plans use phases;
  for every other tier leave research_phases empty.

Rules:
- Threads must be independently researchable dimensions with minimal
  overlap; give each a clear scope description and an estimated node count.
- Detect the topic's language and set the language field to its BCP-47
  primary tag (e.g. "en", "zh", "ja"). Write all user_facing text in that
  language.
- estimated_duration and credits_cost scale with the tier: light is about
  60-120 seconds and 5 credits, epic up to 600 seconds and 40 credits.`

var threadSchema = &generation.Schema{
	Type: "object",
	Properties: map[string]*generation.Schema{
		"name":            {Type: "string"},
		"description":     {Type: "string"},
		"priority":        {Type: "integer"},
		"estimated_nodes": {Type: "integer"},
	},
	Required: []string{"name", "description", "priority", "estimated_nodes"},
}

var proposalSchema = &generation.Schema{
	Type: "object",
	Properties: map[string]*generation.Schema{
		"topic":      {Type: "string"},
		"topic_type": {Type: "string", Enum: []string{"product", "technology", "culture", "historical_event"}},
		"language":   {Type: "string", Description: "BCP-47 primary language tag"},
		"complexity": {
			Type: "object",
			Properties: map[string]*generation.Schema{
				"level":                 {Type: "string", Enum: []string{"light", "medium", "deep", "epic"}},
				"time_span":             {Type: "string"},
				"parallel_threads":      {Type: "integer"},
				"estimated_total_nodes": {Type: "integer"},
				"reasoning":             {Type: "string"},
			},
			Required: []string{"level", "time_span", "parallel_threads", "estimated_total_nodes", "reasoning"},
		},
		"research_threads": {Type: "array", Items: threadSchema},
		"research_phases": {
			Type: "array",
			Items: &generation.Schema{
				Type: "object",
				Properties: map[string]*generation.Schema{
					"name":       {Type: "string"},
					"time_range": {Type: "string"},
					"threads":    {Type: "array", Items: threadSchema},
				},
				Required: []string{"name", "time_range", "threads"},
			},
		},
		"estimated_duration": {
			Type: "object",
			Properties: map[string]*generation.Schema{
				"min_seconds": {Type: "integer"},
				"max_seconds": {Type: "integer"},
			},
			Required: []string{"min_seconds", "max_seconds"},
		},
		"credits_cost": {Type: "integer"},
		"user_facing": {
			Type: "object",
			Properties: map[string]*generation.Schema{
				"title":         {Type: "string"},
				"summary":       {Type: "string"},
				"duration_text": {Type: "string"},
				"credits_text":  {Type: "string"},
				"thread_names":  {Type: "array", Items: &generation.Schema{Type: "string"}},
			},
			Required: []string{"title", "summary", "duration_text", "credits_text", "thread_names"},
		},
	},
	Required: []string{"topic", "topic_type", "language", "complexity", "research_threads", "estimated_duration", "credits_cost", "user_facing"},
}

// Planner turns an inbound request into a full research proposal.
type Planner struct {
	gen generation.Generator
}

// NewPlanner creates a planner over the proposal-stage generator.
func NewPlanner(gen generation.Generator) *Planner {
	return &Planner{gen: gen}
}

// Plan generates the proposal for a topic. A request language other than
// "auto" overrides the planner's detection.
func (p *Planner) Plan(ctx context.Context, req types.ResearchRequest) (*types.Proposal, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", req.Topic)
	if req.Language != "" && req.Language != "auto" {
		fmt.Fprintf(&b, "Requested output language: %s\n", req.Language)
	}

	proposal, err := generation.GenerateAs[types.Proposal](ctx, p.gen, generation.Request{
		System: plannerInstructions,
		Prompt: b.String(),
		Schema: proposalSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("proposal planning failed: %w", err)
	}

	proposal.Topic = req.Topic
	if req.Language != "" && req.Language != "auto" {
		proposal.Language = req.Language
	}
	if proposal.Language == "" {
		proposal.Language = "en"
	}
	return &proposal, nil
}
