package search

// Result is one ranked doc.
type Result struct {
	Doc Doc

	// Score is the Bleve relevance score. It is zero for empty queries.
	Score float64
}

// Results is a slice of Result with helper methods.
type Results []Result

// IDs returns just the doc IDs from the results.
func (r Results) IDs() []string {
	ids := make([]string, len(r))
	for i, result := range r {
		ids[i] = result.Doc.ID
	}
	return ids
}

// FilterByKind returns results of the given kind.
func (r Results) FilterByKind(kind Kind) Results {
	var filtered Results
	for _, result := range r {
		if result.Doc.Kind == kind {
			filtered = append(filtered, result)
		}
	}
	return filtered
}

// FilterByBackend returns results belonging to the given backend.
func (r Results) FilterByBackend(backend string) Results {
	var filtered Results
	for _, result := range r {
		if result.Doc.Backend == backend {
			filtered = append(filtered, result)
		}
	}
	return filtered
}

// FilterByMinScore returns results with score >= minScore.
func (r Results) FilterByMinScore(minScore float64) Results {
	var filtered Results
	for _, result := range r {
		if result.Score >= minScore {
			filtered = append(filtered, result)
		}
	}
	return filtered
}
