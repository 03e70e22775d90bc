package search

import (
	"testing"
)

func sampleDocs() []Doc {
	return []Doc{
		{ID: "filesystem_read_file", Kind: KindTool, Backend: "filesystem", Name: "read_file", Description: "Read the contents of a file"},
		{ID: "git_status", Kind: KindTool, Backend: "git", Name: "status", Description: "Show the working tree status"},
		{ID: "git_log", Kind: KindTool, Backend: "git", Name: "log", Description: "Show commit logs"},
		{ID: "docker", Kind: KindBackend, Backend: "docker", Name: "docker", Description: "Manage containers and images", Category: "development"},
		{ID: "demo_calculate", Kind: KindTool, Backend: "demo", Name: "calculate", Description: "Evaluate an arithmetic expression", Tags: []string{"math"}},
	}
}

func TestSearcher_EmptyQueryReturnsFirstN(t *testing.T) {
	s := NewSearcher(Config{})
	defer func() { _ = s.Close() }()

	results, err := s.Search("  ", 2, sampleDocs())
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	ids := results.IDs()
	if len(ids) != 2 || ids[0] != "filesystem_read_file" || ids[1] != "git_status" {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestSearcher_RanksByName(t *testing.T) {
	s := NewSearcher(Config{})
	defer func() { _ = s.Close() }()

	results, err := s.Search("file", 5, sampleDocs())
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one result")
	}
	if results[0].Doc.ID != "filesystem_read_file" {
		t.Errorf("expected filesystem_read_file first, got %s", results[0].Doc.ID)
	}
}

func TestSearcher_FindsBackendsByDescription(t *testing.T) {
	s := NewSearcher(Config{})
	defer func() { _ = s.Close() }()

	results, err := s.Search("containers", 5, sampleDocs())
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	backends := results.FilterByKind(KindBackend)
	if len(backends) != 1 || backends[0].Doc.ID != "docker" {
		t.Fatalf("expected docker backend, got %v", results.IDs())
	}
}

func TestSearcher_RebuildsWhenDocsChange(t *testing.T) {
	s := NewSearcher(Config{})
	defer func() { _ = s.Close() }()

	docs := sampleDocs()
	if _, err := s.Search("status", 5, docs); err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	first := s.fingerprint

	docs = append(docs, Doc{ID: "ssh_execute", Kind: KindTool, Backend: "ssh", Name: "execute", Description: "Run a remote command"})
	results, err := s.Search("remote", 5, docs)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if s.fingerprint == first {
		t.Error("expected index rebuild after docs changed")
	}
	if len(results) == 0 || results[0].Doc.ID != "ssh_execute" {
		t.Errorf("expected ssh_execute, got %v", results.IDs())
	}

	if _, err := s.Search("remote", 5, docs); err != nil {
		t.Fatalf("Search failed: %v", err)
	}
}

func TestResults_Filters(t *testing.T) {
	results := Results{
		{Doc: Doc{ID: "git_status", Kind: KindTool, Backend: "git"}, Score: 2},
		{Doc: Doc{ID: "git_log", Kind: KindTool, Backend: "git"}, Score: 0.5},
		{Doc: Doc{ID: "docker", Kind: KindBackend, Backend: "docker"}, Score: 1},
	}

	if got := results.FilterByBackend("git").IDs(); len(got) != 2 {
		t.Errorf("FilterByBackend: got %v", got)
	}
	if got := results.FilterByMinScore(1).IDs(); len(got) != 2 || got[0] != "git_status" || got[1] != "docker" {
		t.Errorf("FilterByMinScore: got %v", got)
	}
	if got := results.FilterByKind(KindBackend).IDs(); len(got) != 1 || got[0] != "docker" {
		t.Errorf("FilterByKind: got %v", got)
	}
}
