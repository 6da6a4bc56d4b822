// Package types defines the shared data model for the Chrono research
// pipeline: timeline entries, research proposals, synthesis output, and the
// session event vocabulary.
package types

import "time"

// Significance grades how important a timeline entry is.
type Significance string

const (
	SignificanceMedium        Significance = "medium"
	SignificanceHigh          Significance = "high"
	SignificanceRevolutionary Significance = "revolutionary"
)

// Rank orders significance levels for merge decisions.
func (s Significance) Rank() int {
	switch s {
	case SignificanceRevolutionary:
		return 3
	case SignificanceHigh:
		return 2
	default:
		return 1
	}
}

// TimelineEntry is a single event on the research timeline. Dates are
// sortable ISO strings; year-only dates use the YYYY-01-01 placeholder and
// year-month dates use YYYY-MM-01.
type TimelineEntry struct {
	ID           string       `json:"id"`
	Date         string       `json:"date"`
	Title        string       `json:"title"`
	Subtitle     string       `json:"subtitle,omitempty"`
	Significance Significance `json:"significance"`
	Description  string       `json:"description"`
	Sources      []string     `json:"sources"`
	Details      *EntryDetail `json:"details,omitempty"`
	IsGapEntry   bool         `json:"is_gap_node,omitempty"`
	PhaseName    string       `json:"phase_name,omitempty"`
}

// EntryDetail carries the enrichment attached to one timeline entry.
type EntryDetail struct {
	KeyFeatures []string `json:"key_features"`
	Impact      string   `json:"impact"`
	KeyPeople   []string `json:"key_people"`
	Context     string   `json:"context"`
	Sources     []string `json:"sources"`
}

// ConnectionKind classifies a causal link between two entries.
type ConnectionKind string

const (
	ConnectionCaused      ConnectionKind = "caused"
	ConnectionEnabled     ConnectionKind = "enabled"
	ConnectionInspired    ConnectionKind = "inspired"
	ConnectionRespondedTo ConnectionKind = "responded_to"
)

// Connection is a causal relationship between two timeline entries.
type Connection struct {
	FromID       string         `json:"from_id"`
	ToID         string         `json:"to_id"`
	Relationship string         `json:"relationship"`
	Kind         ConnectionKind `json:"type"`
}

// TopicType categorizes what kind of subject a proposal covers.
type TopicType string

const (
	TopicProduct         TopicType = "product"
	TopicTechnology      TopicType = "technology"
	TopicCulture         TopicType = "culture"
	TopicHistoricalEvent TopicType = "historical_event"
)

// ComplexityLevel is the research effort tier assigned by the planner.
type ComplexityLevel string

const (
	ComplexityLight  ComplexityLevel = "light"
	ComplexityMedium ComplexityLevel = "medium"
	ComplexityDeep   ComplexityLevel = "deep"
	ComplexityEpic   ComplexityLevel = "epic"
)

// ResearchThread is one independently researchable strand of a topic.
type ResearchThread struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	Priority         int    `json:"priority"`
	EstimatedEntries int    `json:"estimated_nodes"`
}

// ResearchPhase groups threads inside a bounded time range. Phase time
// ranges must not overlap; the planner guarantees this.
type ResearchPhase struct {
	Name      string           `json:"name"`
	TimeRange string           `json:"time_range"`
	Threads   []ResearchThread `json:"threads"`
}

// ComplexityAssessment explains the planner's effort estimate.
type ComplexityAssessment struct {
	Level               ComplexityLevel `json:"level"`
	TimeSpan            string          `json:"time_span"`
	ParallelThreads     int             `json:"parallel_threads"`
	EstimatedTotalNodes int             `json:"estimated_total_nodes"`
	Reasoning           string          `json:"reasoning"`
}

// DurationEstimate bounds the expected wall-clock run time.
type DurationEstimate struct {
	MinSeconds int `json:"min_seconds"`
	MaxSeconds int `json:"max_seconds"`
}

// UserFacingProposal is the display copy shown to the client before a run.
type UserFacingProposal struct {
	Title        string   `json:"title"`
	Summary      string   `json:"summary"`
	DurationText string   `json:"duration_text"`
	CreditsText  string   `json:"credits_text"`
	ThreadNames  []string `json:"thread_names"`
}

// Proposal fixes the topic, language, complexity tier and thread/phase plan
// for one pipeline run. It is immutable for the run's lifetime.
type Proposal struct {
	Topic             string               `json:"topic"`
	TopicType         TopicType            `json:"topic_type"`
	Language          string               `json:"language"`
	Complexity        ComplexityAssessment `json:"complexity"`
	ResearchThreads   []ResearchThread     `json:"research_threads"`
	ResearchPhases    []ResearchPhase      `json:"research_phases,omitempty"`
	EstimatedDuration DurationEstimate     `json:"estimated_duration"`
	CreditsCost       int                  `json:"credits_cost"`
	UserFacing        UserFacingProposal   `json:"user_facing"`
}

// ResearchRequest is the inbound request that starts proposal planning.
// Language "auto" lets the planner detect the topic's language.
type ResearchRequest struct {
	Topic    string `json:"topic"`
	Language string `json:"language"`
}

// SynthesisResult is the final narrative produced over the complete entry
// set. SourceCount and Connections are filled by the orchestrator, not the
// generator.
type SynthesisResult struct {
	Summary           string       `json:"summary"`
	KeyInsight        string       `json:"key_insight"`
	TimelineSpan      string       `json:"timeline_span"`
	SourceCount       int          `json:"source_count"`
	VerificationNotes []string     `json:"verification_notes"`
	Connections       []Connection `json:"connections"`
}

// StoredRun is a fully persisted pipeline result keyed by topic.
type StoredRun struct {
	Topic       string           `json:"topic"`
	Proposal    Proposal         `json:"proposal"`
	Entries     []TimelineEntry  `json:"entries"`
	Synthesis   *SynthesisResult `json:"synthesis,omitempty"`
	TotalNodes  int              `json:"total_nodes"`
	SourceCount int              `json:"source_count"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// EventType names the typed events delivered over a session stream.
type EventType string

const (
	EventProgress      EventType = "progress"
	EventSkeleton      EventType = "skeleton"
	EventNodeDetail    EventType = "node_detail"
	EventSynthesis     EventType = "synthesis"
	EventComplete      EventType = "complete"
	EventResearchError EventType = "research_error"
)

// ProgressPayload announces a phase transition.
type ProgressPayload struct {
	Phase   string `json:"phase"`
	Message string `json:"message"`
	Percent int    `json:"percent"`
}

// SkeletonPayload carries the full current entry list, date-sorted.
type SkeletonPayload struct {
	Nodes []TimelineEntry `json:"nodes"`
}

// NodeDetailPayload carries the enrichment for one entry.
type NodeDetailPayload struct {
	NodeID  string      `json:"node_id"`
	Details EntryDetail `json:"details"`
}

// CompletePayload closes a successful run.
type CompletePayload struct {
	TotalNodes      int `json:"total_nodes"`
	DetailCompleted int `json:"detail_completed"`
}

// ErrorPayload reports a fatal run failure.
type ErrorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
