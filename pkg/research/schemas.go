// Package research implements the pipeline's production stages: milestone
// discovery across parallel threads, per-entry detail enrichment, the
// hallucination cross-check, gap analysis and final synthesis.
package research

import (
	"github.com/chronolab/chrono/pkg/generation"
	"github.com/chronolab/chrono/pkg/types"
)

// skeletonEntry is the shape the milestone and gap generators return for
// one timeline entry, before the pipeline assigns it an id.
type skeletonEntry struct {
	Date         string             `json:"date"`
	Title        string             `json:"title"`
	Subtitle     string             `json:"subtitle"`
	Significance types.Significance `json:"significance"`
	Description  string             `json:"description"`
	Sources      []string           `json:"sources"`
}

func entrySchema() *generation.Schema {
	return &generation.Schema{
		Type: "object",
		Properties: map[string]*generation.Schema{
			"date":         {Type: "string", Description: "ISO date; YYYY-01-01 when only the year is known"},
			"title":        {Type: "string"},
			"subtitle":     {Type: "string"},
			"significance": {Type: "string", Enum: []string{"medium", "high", "revolutionary"}},
			"description":  {Type: "string"},
			"sources":      {Type: "array", Items: &generation.Schema{Type: "string"}},
		},
		Required: []string{"date", "title", "significance", "description"},
	}
}

var milestoneSchema = &generation.Schema{
	Type: "object",
	Properties: map[string]*generation.Schema{
		"nodes": {Type: "array", Items: entrySchema()},
	},
	Required: []string{"nodes"},
}

type milestoneResult struct {
	Nodes []skeletonEntry `json:"nodes"`
}

var detailSchema = &generation.Schema{
	Type: "object",
	Properties: map[string]*generation.Schema{
		"key_features": {Type: "array", Items: &generation.Schema{Type: "string"}},
		"impact":       {Type: "string"},
		"key_people":   {Type: "array", Items: &generation.Schema{Type: "string"}},
		"context":      {Type: "string"},
		"sources":      {Type: "array", Items: &generation.Schema{Type: "string"}},
	},
	Required: []string{"key_features", "impact", "key_people", "context"},
}

var gapSchema = &generation.Schema{
	Type: "object",
	Properties: map[string]*generation.Schema{
		"gap_nodes": {Type: "array", Items: entrySchema()},
		"connections": {
			Type: "array",
			Items: &generation.Schema{
				Type: "object",
				Properties: map[string]*generation.Schema{
					"from_id":      {Type: "string"},
					"to_id":        {Type: "string"},
					"relationship": {Type: "string"},
					"type":         {Type: "string", Enum: []string{"caused", "enabled", "inspired", "responded_to"}},
				},
				Required: []string{"from_id", "to_id", "relationship", "type"},
			},
		},
	},
	Required: []string{"gap_nodes", "connections"},
}

type gapAnalysis struct {
	GapNodes    []skeletonEntry    `json:"gap_nodes"`
	Connections []types.Connection `json:"connections"`
}

var hallucinationSchema = &generation.Schema{
	Type: "object",
	Properties: map[string]*generation.Schema{
		"remove_ids": {Type: "array", Items: &generation.Schema{Type: "string"}},
		"reasons": {
			Type:        "array",
			Description: "One reason per removed id, as 'id: reason'",
			Items:       &generation.Schema{Type: "string"},
		},
	},
	Required: []string{"remove_ids"},
}

type hallucinationCheck struct {
	RemoveIDs []string `json:"remove_ids"`
	Reasons   []string `json:"reasons"`
}

var synthesisSchema = &generation.Schema{
	Type: "object",
	Properties: map[string]*generation.Schema{
		"summary":            {Type: "string"},
		"key_insight":        {Type: "string"},
		"timeline_span":      {Type: "string"},
		"source_count":       {Type: "integer", Description: "Set to 0; the system fills this in"},
		"verification_notes": {Type: "array", Items: &generation.Schema{Type: "string"}},
	},
	Required: []string{"summary", "key_insight", "timeline_span", "verification_notes"},
}
