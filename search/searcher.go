package search

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// Kind distinguishes what a Doc describes.
type Kind string

const (
	// KindTool is an active tool; ID is its flat identifier.
	KindTool Kind = "tool"
	// KindBackend is a configured backend; ID is its name.
	KindBackend Kind = "backend"
)

// Doc is one searchable entry.
type Doc struct {
	ID          string
	Kind        Kind
	Backend     string
	Name        string
	Description string
	Category    string
	Tags        []string
}

// Config sets field boosts. Zero values use the defaults.
type Config struct {
	NameBoost    float64
	BackendBoost float64
	TagsBoost    float64
}

// Searcher answers queries over a doc slice using an in-memory Bleve index.
type Searcher struct {
	cfg Config

	mu          sync.Mutex
	index       bleve.Index
	fingerprint string
	docs        map[string]Doc
}

// NewSearcher creates a Searcher.
func NewSearcher(cfg Config) *Searcher {
	if cfg.NameBoost <= 0 {
		cfg.NameBoost = 3
	}
	if cfg.BackendBoost <= 0 {
		cfg.BackendBoost = 2
	}
	if cfg.TagsBoost <= 0 {
		cfg.TagsBoost = 2
	}
	return &Searcher{cfg: cfg}
}

// Search returns up to limit docs matching q.
func (s *Searcher) Search(q string, limit int, docs []Doc) (Results, error) {
	if limit <= 0 {
		limit = 10
	}
	q = strings.TrimSpace(q)
	if q == "" {
		n := min(limit, len(docs))
		out := make(Results, 0, n)
		for _, doc := range docs[:n] {
			out = append(out, Result{Doc: doc})
		}
		return out, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureIndex(docs); err != nil {
		return nil, err
	}

	req := bleve.NewSearchRequestOptions(s.query(q), limit, 0, false)
	res, err := s.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	out := make(Results, 0, len(res.Hits))
	for _, hit := range res.Hits {
		doc, ok := s.docs[hit.ID]
		if !ok {
			continue
		}
		out = append(out, Result{Doc: doc, Score: hit.Score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Doc.ID < out[j].Doc.ID
	})
	return out, nil
}

// Close releases the cached index.
func (s *Searcher) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index == nil {
		return nil
	}
	err := s.index.Close()
	s.index = nil
	s.fingerprint = ""
	return err
}

func (s *Searcher) ensureIndex(docs []Doc) error {
	fp := computeFingerprint(docs)
	if s.index != nil && fp == s.fingerprint {
		return nil
	}

	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return fmt.Errorf("search: creating index: %w", err)
	}

	batch := idx.NewBatch()
	byID := make(map[string]Doc, len(docs))
	for _, doc := range docs {
		if doc.ID == "" {
			continue
		}
		byID[doc.ID] = doc
		if err := batch.Index(doc.ID, fields(doc)); err != nil {
			_ = idx.Close()
			return fmt.Errorf("search: indexing %s: %w", doc.ID, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		_ = idx.Close()
		return fmt.Errorf("search: indexing: %w", err)
	}

	if s.index != nil {
		_ = s.index.Close()
	}
	s.index = idx
	s.docs = byID
	s.fingerprint = fp
	return nil
}

func fields(doc Doc) map[string]any {
	return map[string]any{
		"kind":        string(doc.Kind),
		"backend":     doc.Backend,
		"name":        doc.Name,
		"words":       splitWords(doc.Name + " " + doc.Backend),
		"description": doc.Description,
		"category":    doc.Category,
		"tags":        strings.Join(doc.Tags, " "),
	}
}

// splitWords turns identifiers such as read_file or docker-remote into
// separate words so that partial terms match.
func splitWords(s string) string {
	return strings.NewReplacer("_", " ", "-", " ", ".", " ", ":", " ").Replace(s)
}

func (s *Searcher) query(q string) query.Query {
	text := splitWords(q)

	match := func(field, text string, boost float64) query.Query {
		m := bleve.NewMatchQuery(text)
		m.SetField(field)
		m.SetBoost(boost)
		return m
	}

	name := bleve.NewMatchQuery(text)
	name.SetField("words")
	name.SetBoost(s.cfg.NameBoost)
	name.SetFuzziness(1)

	return bleve.NewDisjunctionQuery(
		name,
		match("name", q, s.cfg.NameBoost),
		match("backend", q, s.cfg.BackendBoost),
		match("category", text, s.cfg.BackendBoost),
		match("tags", text, s.cfg.TagsBoost),
		match("description", text, 1),
	)
}
