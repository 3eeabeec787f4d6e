package graph

import (
	"fmt"
	"strings"
	"time"
)

// Extraction is the structured result produced by the LLM extraction
// collaborator: zero or more objective candidates and zero or more
// relationship candidates between them. All fields beyond key and
// statement are optional and may be missing or malformed; classification
// absorbs the mess.
type Extraction struct {
	Objectives    []ObjectiveCandidate    `json:"objectives"`
	Relationships []RelationshipCandidate `json:"relationships"`
}

// ObjectiveCandidate is one proposed objective, scoped to a single
// ingestion call by its batch-local key.
type ObjectiveCandidate struct {
	Key           string   `json:"key"`
	Statement     string   `json:"statement"`
	Context       string   `json:"context,omitempty"`
	Category      string   `json:"category,omitempty"`
	Timeframe     string   `json:"timeframe,omitempty"`
	Owner         string   `json:"owner,omitempty"`
	Status        string   `json:"status,omitempty"`
	Priority      string   `json:"priority,omitempty"`
	Confidence    any      `json:"confidence,omitempty"`
	Metrics       []string `json:"metrics,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	SourceExcerpt string   `json:"source_excerpt,omitempty"`
}

// RelationshipCandidate is one proposed edge. Source and Target name
// either a batch-local key or an already-persisted objective via the
// "existing:<id>" form.
type RelationshipCandidate struct {
	Source    string `json:"source"`
	Target    string `json:"target"`
	Type      string `json:"type"`
	Rationale string `json:"rationale,omitempty"`
	Weight    any    `json:"weight,omitempty"`
}

// RefKind discriminates the two endpoint namespaces.
type RefKind int

const (
	// RefBatch addresses a draft objective within the current ingestion call.
	RefBatch RefKind = iota
	// RefExisting addresses an already-persisted objective by identifier.
	RefExisting
)

// EndpointRef is a relationship endpoint: a batch-local key or a
// persisted objective identifier, never both.
type EndpointRef struct {
	Kind  RefKind
	Value string
}

const existingPrefix = "existing:"

// ParseEndpointRef decodes the wire form of a relationship endpoint.
// "existing:<id>" addresses a persisted objective; anything else is a
// batch-local key.
func ParseEndpointRef(s string) EndpointRef {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, existingPrefix); ok {
		return EndpointRef{Kind: RefExisting, Value: strings.TrimSpace(rest)}
	}
	return EndpointRef{Kind: RefBatch, Value: s}
}

// RelationshipDraft is a resolved, not-yet-persisted edge. Both endpoints
// are known-addressable and Type is a classified enum value.
type RelationshipDraft struct {
	Source    EndpointRef
	Target    EndpointRef
	Type      RelationType
	Rationale string
	Weight    *float64
}

// ValidationError rejects malformed input before any storage call,
// naming the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TargetSummary is the denormalized copy of a relationship target's
// summary fields carried on every outgoing relationship view.
type TargetSummary struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Status   string `json:"status"`
	Priority string `json:"priority"`
}

// RelationshipView is the read model of one relationship.
type RelationshipView struct {
	ID        string        `json:"id"`
	SourceID  string        `json:"source_id"`
	Type      string        `json:"type"`
	Rationale string        `json:"rationale,omitempty"`
	Weight    *float64      `json:"weight,omitempty"`
	Target    TargetSummary `json:"target"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ObjectiveView is the read model of one objective together with its
// outgoing relationships.
type ObjectiveView struct {
	ID            string             `json:"id"`
	EntryID       string             `json:"entry_id"`
	Text          string             `json:"text"`
	Context       string             `json:"context,omitempty"`
	Category      string             `json:"category,omitempty"`
	Timeframe     string             `json:"timeframe,omitempty"`
	Owner         string             `json:"owner,omitempty"`
	Status        string             `json:"status"`
	Priority      string             `json:"priority"`
	Confidence    *float64           `json:"confidence,omitempty"`
	Metrics       []string           `json:"metrics"`
	Tags          []string           `json:"tags"`
	SourceLabel   string             `json:"source_label,omitempty"`
	SourceExcerpt string             `json:"source_excerpt,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
	Relationships []RelationshipView `json:"relationships"`
}

// Snapshot is the full current graph, denormalized for read consumers.
type Snapshot struct {
	Objectives    []ObjectiveView    `json:"objectives"`
	Relationships []RelationshipView `json:"relationships"`
}

// IngestResult reports the outcome of one ingestion call.
type IngestResult struct {
	EntryID                string          `json:"entry_id"`
	Objectives             []ObjectiveView `json:"objectives"`
	DuplicatesSkipped      int             `json:"duplicates_skipped"`
	RelationshipsPersisted int             `json:"relationships_persisted"`
}
