package graph

import "log/slog"

// ResolveRelationships maps relationship candidates onto resolvable
// drafts. A reference is valid when it is tagged as existing (the final
// referential-integrity check happens at write time) or when it names a
// surviving batch-local key. Candidates with an invalid endpoint, an
// unclassifiable type, or identical endpoints are dropped; drops are
// visible only in debug logs, never as errors — a bad candidate must not
// abort the batch.
//
// The resolver is pure with respect to storage: no I/O, output order
// matches input order.
func ResolveRelationships(candidates []RelationshipCandidate, validKeys map[string]bool) []RelationshipDraft {
	drafts := make([]RelationshipDraft, 0, len(candidates))
	for _, c := range candidates {
		source := ParseEndpointRef(c.Source)
		target := ParseEndpointRef(c.Target)

		if !endpointValid(source, validKeys) {
			slog.Debug("dropping relationship: unresolvable source", "source", c.Source, "target", c.Target)
			continue
		}
		if !endpointValid(target, validKeys) {
			slog.Debug("dropping relationship: unresolvable target", "source", c.Source, "target", c.Target)
			continue
		}

		rt, ok := ClassifyRelationType(c.Type)
		if !ok {
			slog.Debug("dropping relationship: unclassifiable type", "type", c.Type, "source", c.Source, "target", c.Target)
			continue
		}

		if source == target {
			slog.Debug("dropping relationship: self-loop", "endpoint", c.Source, "type", c.Type)
			continue
		}

		drafts = append(drafts, RelationshipDraft{
			Source:    source,
			Target:    target,
			Type:      rt,
			Rationale: c.Rationale,
			Weight:    ParseUnitInterval(c.Weight),
		})
	}
	return drafts
}

func endpointValid(ref EndpointRef, validKeys map[string]bool) bool {
	if ref.Value == "" {
		return false
	}
	if ref.Kind == RefExisting {
		return true
	}
	return validKeys[ref.Value]
}
