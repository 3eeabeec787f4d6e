package graph

import "strings"

// Statement is an objective statement in both its original and its
// canonical form. Two statements are duplicates iff their Normalized
// forms are byte-equal.
type Statement struct {
	Original   string
	Normalized string
}

// Normalize canonicalizes an objective statement for duplicate
// comparison: Original is the input with surrounding whitespace stripped,
// Normalized is Original lower-cased with every run of whitespace
// collapsed to a single space.
func Normalize(statement string) Statement {
	original := strings.TrimSpace(statement)
	normalized := strings.Join(strings.Fields(strings.ToLower(original)), " ")
	return Statement{Original: original, Normalized: normalized}
}
