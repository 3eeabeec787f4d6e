package graph

// Dedupe filters candidate objectives against the existing store and
// against each other. existingNormalized holds the normalized text of
// every stored objective whose normalized form matched a candidate's
// (one batch query, performed by the caller).
//
// Survivors keep their input order; within-batch duplicates resolve
// first-wins. A candidate whose normalized statement is empty, matches a
// stored objective, or matches an earlier survivor is dropped and counted
// as a duplicate. Dedupe never fails: a malformed candidate costs only
// itself, never the batch.
func Dedupe(candidates []ObjectiveCandidate, existingNormalized []string) ([]ObjectiveCandidate, int) {
	seen := make(map[string]bool, len(existingNormalized)+len(candidates))
	for _, n := range existingNormalized {
		seen[n] = true
	}

	var survivors []ObjectiveCandidate
	duplicates := 0
	for _, c := range candidates {
		n := Normalize(c.Statement).Normalized
		if n == "" || seen[n] {
			duplicates++
			continue
		}
		seen[n] = true
		survivors = append(survivors, c)
	}
	return survivors, duplicates
}
