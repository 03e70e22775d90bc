// Package search ranks tools and backends for the bridge's search_tools
// operation.
//
// The [Searcher] indexes a slice of [Doc] values in an in-memory Bleve index
// and answers free-text queries against it. Docs describe either an active
// tool or a configured backend, so a client can find a backend to activate
// before any of its tools are known.
//
// # Usage
//
//	s := search.NewSearcher(search.Config{})
//	results, err := s.Search("list docker containers", 10, docs)
//
// # Configuration
//
// [Config] sets per-field boosts:
//
//	cfg := search.Config{
//	    NameBoost:    3, // name and name words (default: 3)
//	    BackendBoost: 2, // backend name and category (default: 2)
//	    TagsBoost:    2, // tags (default: 2)
//	}
//
// # Thread Safety
//
// Searcher is safe for concurrent use. The Bleve index is cached by a
// fingerprint of the doc slice and only rebuilt when the docs change.
//
// # Behavior
//
// Empty queries return the first N docs in input order. Non-empty queries
// are ranked by score descending, then ID ascending.
package search
