package graph

import (
	"math"
	"strconv"
	"strings"
)

// Status is the lifecycle state of an objective.
type Status string

const (
	StatusProposed Status = "PROPOSED"
	StatusPlanned  Status = "PLANNED"
	StatusActive   Status = "ACTIVE"
	StatusBlocked  Status = "BLOCKED"
	StatusComplete Status = "COMPLETE"
)

// Priority is the relative importance of an objective.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// RelationType is the kind of directed edge between two objectives.
type RelationType string

const (
	RelationSupports  RelationType = "SUPPORTS"
	RelationDependsOn RelationType = "DEPENDS_ON"
	RelationRelatesTo RelationType = "RELATES_TO"
	RelationBlocks    RelationType = "BLOCKS"
	RelationInforms   RelationType = "INFORMS"
)

// canonical lower-cases v and collapses whitespace, underscores, and
// hyphens, so "Depends_On", "depends-on", and "depends on" all classify
// alike.
func canonical(v string) string {
	v = strings.ToLower(v)
	v = strings.ReplaceAll(v, "_", " ")
	v = strings.ReplaceAll(v, "-", " ")
	return strings.Join(strings.Fields(v), " ")
}

var statusSynonyms = map[string]Status{
	"proposed":    StatusProposed,
	"draft":       StatusProposed,
	"idea":        StatusProposed,
	"planned":     StatusPlanned,
	"planning":    StatusPlanned,
	"scheduled":   StatusPlanned,
	"active":      StatusActive,
	"in progress": StatusActive,
	"ongoing":     StatusActive,
	"started":     StatusActive,
	"blocked":     StatusBlocked,
	"on hold":     StatusBlocked,
	"stalled":     StatusBlocked,
	"complete":    StatusComplete,
	"completed":   StatusComplete,
	"done":        StatusComplete,
	"achieved":    StatusComplete,
	"finished":    StatusComplete,
}

// ClassifyStatus maps a free-text status value onto the Status enum.
// Anything unrecognized, including the empty string, maps to PROPOSED.
func ClassifyStatus(v string) Status {
	if st, ok := statusSynonyms[canonical(v)]; ok {
		return st
	}
	return StatusProposed
}

var prioritySynonyms = map[string]Priority{
	"high":         PriorityHigh,
	"critical":     PriorityHigh,
	"urgent":       PriorityHigh,
	"top":          PriorityHigh,
	"medium":       PriorityMedium,
	"normal":       PriorityMedium,
	"moderate":     PriorityMedium,
	"low":          PriorityLow,
	"minor":        PriorityLow,
	"nice to have": PriorityLow,
}

// ClassifyPriority maps a free-text priority value onto the Priority enum.
// Anything unrecognized, including the empty string, maps to MEDIUM.
func ClassifyPriority(v string) Priority {
	if p, ok := prioritySynonyms[canonical(v)]; ok {
		return p
	}
	return PriorityMedium
}

var relationSynonyms = map[string]RelationType{
	"supports":     RelationSupports,
	"enables":      RelationSupports,
	"advances":     RelationSupports,
	"contributes":  RelationSupports,
	"depends on":   RelationDependsOn,
	"depends":      RelationDependsOn,
	"requires":     RelationDependsOn,
	"needs":        RelationDependsOn,
	"unblocks":     RelationDependsOn,
	"prerequisite": RelationDependsOn,
	"relates to":   RelationRelatesTo,
	"relates":      RelationRelatesTo,
	"related":      RelationRelatesTo,
	"related to":   RelationRelatesTo,
	"blocks":       RelationBlocks,
	"conflicts":    RelationBlocks,
	"blocked by":   RelationBlocks,
	"informs":      RelationInforms,
	"inform":       RelationInforms,
	"guides":       RelationInforms,
}

// ClassifyRelationType maps a free-text relationship type onto the
// RelationType enum. There is no default: an unrecognized type reports
// ok=false and the relationship is dropped by the resolver.
func ClassifyRelationType(v string) (RelationType, bool) {
	rt, ok := relationSynonyms[canonical(v)]
	return rt, ok
}

// ParseUnitInterval coerces a confidence or weight value from the
// extraction result into [0,1]. Values above 1 are treated as percentages
// and divided by 100 before clamping. Strings that fail to parse as a
// number yield nil (absent), while an actually-parsed NaN clamps to 0.
// Anything that is not a number or a string yields nil.
func ParseUnitInterval(v any) *float64 {
	switch x := v.(type) {
	case float64:
		return clampUnit(x)
	case float32:
		return clampUnit(float64(x))
	case int:
		return clampUnit(float64(x))
	case int64:
		return clampUnit(float64(x))
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil
		}
		return clampUnit(f)
	default:
		return nil
	}
}

func clampUnit(f float64) *float64 {
	if math.IsNaN(f) {
		f = 0
	}
	if f > 1 {
		f = f / 100
	}
	if f > 1 {
		f = 1
	}
	if f < 0 {
		f = 0
	}
	return &f
}
