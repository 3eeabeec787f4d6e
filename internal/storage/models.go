package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write violates a uniqueness constraint,
// typically two concurrent ingestions racing on the same objective text.
var ErrConflict = errors.New("already exists")

// KnowledgeEntry is an immutable provenance record of one raw-text
// ingestion event. Objectives reference the entry that produced them.
type KnowledgeEntry struct {
	ID        string
	Title     string
	RawText   string
	CreatedAt time.Time
}

// Objective is a single persisted strategic statement node.
type Objective struct {
	ID             string
	EntryID        string
	Text           string
	NormalizedText string
	Context        string
	Category       string
	Timeframe      string
	Owner          string
	Status         string
	Priority       string
	Confidence     *float64
	Metrics        string // JSON array stored as text
	Tags           string // JSON array stored as text, values lower-cased
	SourceLabel    string
	SourceExcerpt  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Relationship is a directed, typed edge between two objectives.
// At most one row exists per (SourceID, TargetID, Type).
type Relationship struct {
	ID        string
	SourceID  string
	TargetID  string
	Type      string
	Rationale string
	Weight    *float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RelationshipWithTarget is a relationship row joined with summary fields
// of its target objective, so read consumers never need a second query.
type RelationshipWithTarget struct {
	Relationship
	TargetText     string
	TargetStatus   string
	TargetPriority string
}

// RelationshipUpdate carries the mutable fields of a relationship edit.
// Nil pointers mean "leave unchanged".
type RelationshipUpdate struct {
	TargetID  *string
	Type      *string
	Rationale *string
	Weight    *float64
}

// ObjectiveUpdate carries the mutable fields of an objective edit.
// Nil pointers mean "leave unchanged".
type ObjectiveUpdate struct {
	Status    *string
	Priority  *string
	Context   *string
	Category  *string
	Timeframe *string
	Owner     *string
}
