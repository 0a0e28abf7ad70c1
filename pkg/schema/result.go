package schema

import (
	"encoding/json"
	"fmt"
)

// Family tags a result variant with its command family. Validators and the
// JSON codec dispatch on this tag.
type Family string

const (
	FamilyQA          Family = "iterative_qa"
	FamilyEvents      Family = "events"
	FamilyGraph       Family = "graph"
	FamilyMemory      Family = "memory"
	FamilySynthesis   Family = "synthesis"
	FamilyForecast    Family = "forecast"
	FamilyCompetitors Family = "competitors"
)

// Result is the command-specific payload of a response. Exactly one concrete
// type exists per family.
type Result interface {
	Family() Family
}

// ResultEnvelope wraps a Result so the concrete variant survives a JSON
// round-trip. Wire form: {"type": "<family>", "data": {...}}.
type ResultEnvelope struct {
	V Result
}

// NewResult wraps a concrete result for embedding in a Response.
func NewResult(r Result) ResultEnvelope { return ResultEnvelope{V: r} }

func (e ResultEnvelope) MarshalJSON() ([]byte, error) {
	if e.V == nil {
		return []byte("null"), nil
	}
	return json.Marshal(struct {
		Type Family `json:"type"`
		Data Result `json:"data"`
	}{e.V.Family(), e.V})
}

func (e *ResultEnvelope) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		e.V = nil
		return nil
	}
	var head struct {
		Type Family          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return err
	}
	var v Result
	switch head.Type {
	case FamilyQA:
		v = &QAResult{}
	case FamilyEvents:
		v = &EventsResult{}
	case FamilyGraph:
		v = &GraphResult{}
	case FamilyMemory:
		v = &MemoryResult{}
	case FamilySynthesis:
		v = &SynthesisResult{}
	case FamilyForecast:
		v = &ForecastResult{}
	case FamilyCompetitors:
		v = &CompetitorsResult{}
	default:
		return fmt.Errorf("unknown result family %q", head.Type)
	}
	if err := json.Unmarshal(head.Data, v); err != nil {
		return err
	}
	e.V = v
	return nil
}

// ---------------------------------------------------------------------------
// Iterative Q&A
// ---------------------------------------------------------------------------

// QAStep records one retrieve-reason-refine cycle of the iterative agent.
type QAStep struct {
	Iteration int    `json:"iteration"`
	Query     string `json:"query"`
	NDocs     int    `json:"n_docs"`
	Reason    string `json:"reason"`
}

// QAResult is the /ask payload.
type QAResult struct {
	Steps     []QAStep `json:"steps"`
	Answer    string   `json:"answer"`
	FollowUps []string `json:"follow_ups,omitempty"`
}

func (*QAResult) Family() Family { return FamilyQA }

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

// TimelinePosition orders one event relative to a reference event.
type TimelinePosition string

const (
	PositionBefore  TimelinePosition = "before"
	PositionOverlap TimelinePosition = "overlap"
	PositionAfter   TimelinePosition = "after"
)

// Event is one extracted occurrence with its time range and document refs.
type Event struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`
	Entities  []string `json:"entities,omitempty"`
	DocRefs   []string `json:"doc_refs,omitempty"`
}

// TimelineRelation positions one event against another.
type TimelineRelation struct {
	EventID          string           `json:"event_id"`
	Position         TimelinePosition `json:"position"`
	ReferenceEventID string           `json:"reference_event_id"`
}

// CausalLink is a cause→effect hypothesis between two events.
type CausalLink struct {
	Cause        string        `json:"cause"`
	Effect       string        `json:"effect"`
	Confidence   float64       `json:"confidence"`
	EvidenceRefs []EvidenceRef `json:"evidence_refs,omitempty"`
}

// EventsResult is the /events payload.
type EventsResult struct {
	Events      []Event            `json:"events"`
	Timeline    []TimelineRelation `json:"timeline,omitempty"`
	CausalLinks []CausalLink       `json:"causal_links,omitempty"`
}

func (*EventsResult) Family() Family { return FamilyEvents }

// ---------------------------------------------------------------------------
// Graph
// ---------------------------------------------------------------------------

// NodeType classifies a subgraph node.
type NodeType string

const (
	NodeTopic   NodeType = "topic"
	NodeArticle NodeType = "article"
	NodeEntity  NodeType = "entity"
)

// EdgeRelatesTo is the single edge type of the knowledge subgraph.
const EdgeRelatesTo = "relates_to"

// GraphNode is one node of the returned subgraph.
type GraphNode struct {
	ID    string   `json:"id"`
	Label string   `json:"label"`
	Type  NodeType `json:"type"`
}

// GraphEdge connects two nodes with a weight in [0, 1].
type GraphEdge struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Type   string  `json:"type"`
	Weight float64 `json:"weight"`
}

// GraphPath is one scored node sequence through the subgraph.
type GraphPath struct {
	Nodes []string `json:"nodes"`
	Hops  int      `json:"hops"`
	Score float64  `json:"score"`
}

// GraphResult is the /graph payload.
type GraphResult struct {
	Nodes  []GraphNode `json:"nodes"`
	Edges  []GraphEdge `json:"edges"`
	Paths  []GraphPath `json:"paths,omitempty"`
	Answer string      `json:"answer"`
}

func (*GraphResult) Family() Family { return FamilyGraph }

// ---------------------------------------------------------------------------
// Memory
// ---------------------------------------------------------------------------

// MemoryOperation selects the memory agent's mode.
type MemoryOperation string

const (
	MemorySuggest MemoryOperation = "suggest"
	MemoryStore   MemoryOperation = "store"
	MemoryRecall  MemoryOperation = "recall"
)

// MemorySuggestion is one candidate worth remembering.
type MemorySuggestion struct {
	Content    string  `json:"content"`
	Type       string  `json:"type"`
	Importance float64 `json:"importance"`
}

// MemoryRecord is one stored or recalled long-term memory entry.
type MemoryRecord struct {
	ID         string   `json:"id"`
	Content    string   `json:"content"`
	Type       string   `json:"type"`
	Importance float64  `json:"importance"`
	Similarity float64  `json:"similarity,omitempty"`
	Refs       []string `json:"refs,omitempty"`
	CreatedAt  string   `json:"created_at,omitempty"`
}

// MemoryResult is the /memory payload.
type MemoryResult struct {
	Operation   MemoryOperation    `json:"operation"`
	Suggestions []MemorySuggestion `json:"suggestions,omitempty"`
	Stored      []MemoryRecord     `json:"stored,omitempty"`
	Records     []MemoryRecord     `json:"records,omitempty"`
}

func (*MemoryResult) Family() Family { return FamilyMemory }

// ---------------------------------------------------------------------------
// Synthesis
// ---------------------------------------------------------------------------

// Impact grades a recommended action.
type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

// Conflict is a disagreement between sources; requires at least two refs.
type Conflict struct {
	Description  string        `json:"description"`
	EvidenceRefs []EvidenceRef `json:"evidence_refs"`
}

// Action is one recommended action with its impact grade.
type Action struct {
	Recommendation string        `json:"recommendation"`
	Impact         Impact        `json:"impact"`
	EvidenceRefs   []EvidenceRef `json:"evidence_refs"`
}

// SynthesisResult is the /synthesize payload.
type SynthesisResult struct {
	Summary   string     `json:"summary"`
	Conflicts []Conflict `json:"conflicts,omitempty"`
	Actions   []Action   `json:"actions"`
}

func (*SynthesisResult) Family() Family { return FamilySynthesis }

// ---------------------------------------------------------------------------
// Forecast
// ---------------------------------------------------------------------------

// Direction is a forecast trend direction.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionFlat Direction = "flat"
)

// ConfidenceInterval bounds a forecast; Lower <= Upper always.
type ConfidenceInterval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Driver is one evidence-backed factor behind a forecast item.
type Driver struct {
	Text     string        `json:"text"`
	Evidence []EvidenceRef `json:"evidence"`
}

// ForecastItem is one per-topic prediction.
type ForecastItem struct {
	Topic              string             `json:"topic"`
	Direction          Direction          `json:"direction"`
	ConfidenceInterval ConfidenceInterval `json:"confidence_interval"`
	Drivers            []Driver           `json:"drivers"`
	Horizon            string             `json:"horizon"`
}

// ForecastResult is the /predict payload.
type ForecastResult struct {
	Items []ForecastItem `json:"items"`
}

func (*ForecastResult) Family() Family { return FamilyForecast }

// ---------------------------------------------------------------------------
// Competitors
// ---------------------------------------------------------------------------

// Stance classifies a domain's competitive positioning.
type Stance string

const (
	StanceLeader       Stance = "leader"
	StanceFastFollower Stance = "fast_follower"
	StanceNiche        Stance = "niche"
)

// OverlapEntry records topic overlap with a competing domain.
type OverlapEntry struct {
	Domain       string   `json:"domain"`
	SharedTopics []string `json:"shared_topics,omitempty"`
	Count        int      `json:"count"`
}

// PositioningEntry classifies one domain's stance.
type PositioningEntry struct {
	Domain string `json:"domain"`
	Stance Stance `json:"stance"`
	Notes  string `json:"notes,omitempty"`
}

// CompetitorsResult is the /competitors payload. TopDomains must be non-empty
// whenever Positioning is non-empty.
type CompetitorsResult struct {
	Overlap         []OverlapEntry     `json:"overlap,omitempty"`
	Positioning     []PositioningEntry `json:"positioning,omitempty"`
	SentimentDeltas map[string]float64 `json:"sentiment_deltas,omitempty"`
	TopDomains      []string           `json:"top_domains,omitempty"`
}

func (*CompetitorsResult) Family() Family { return FamilyCompetitors }
