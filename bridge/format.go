package bridge

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jonwraymond/toolbridge/audit"
	"github.com/jonwraymond/toolbridge/backend"
	"github.com/jonwraymond/toolbridge/registry"
	"github.com/jonwraymond/toolbridge/search"
	"github.com/jonwraymond/toolbridge/tooldoc"
)

const otherCategory = "other"

// knownCategories groups well-known backends whose descriptor names no
// category.
var knownCategories = map[string]string{
	"filesystem":      "files",
	"git":             "files",
	"project-manager": "development",
	"flutter":         "development",
	"docker":          "development",
	"docker-remote":   "development",
	"ollama":          "ai",
	"web-search":      "web",
	"web-scraping":    "web",
	"github":          "web",
	"email":           "communication",
	"ssh":             "communication",
	"database":        "databases",
	"ionos":           "hosting",
}

func categoryOf(d backend.Descriptor) string {
	if c := strings.TrimSpace(d.Category); c != "" {
		return strings.ToLower(c)
	}
	if c, ok := knownCategories[d.Name]; ok {
		return c
	}
	return otherCategory
}

// renderServers lists backends grouped by category. Categories are sorted
// by name with "other" last.
func renderServers(statuses []registry.BackendStatus) string {
	if len(statuses) == 0 {
		return "No backends are configured."
	}

	groups := make(map[string][]registry.BackendStatus)
	active := 0
	for _, s := range statuses {
		c := categoryOf(s.Descriptor)
		groups[c] = append(groups[c], s)
		if s.Connected {
			active++
		}
	}
	categories := make([]string, 0, len(groups))
	for c := range groups {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool {
		if (categories[i] == otherCategory) != (categories[j] == otherCategory) {
			return categories[j] == otherCategory
		}
		return categories[i] < categories[j]
	})

	// Casers are stateful and must not be shared between goroutines.
	title := cases.Title(language.English)

	var sb strings.Builder
	sb.WriteString("# Available backends\n")
	for _, c := range categories {
		fmt.Fprintf(&sb, "\n## %s\n", title.String(c))
		for _, s := range groups[c] {
			status := "○ available"
			if s.Connected {
				status = fmt.Sprintf("● active (%d tools)", s.ToolCount)
			}
			fmt.Fprintf(&sb, "- **%s**: %s", s.Descriptor.Name, status)
			if s.Descriptor.Description != "" {
				fmt.Fprintf(&sb, " - %s", s.Descriptor.Description)
			}
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\n---\nUse activate_server to connect a backend.\n")
	fmt.Fprintf(&sb, "Active: %d/%d backends", active, len(statuses))
	return sb.String()
}

// renderActiveTools lists active tools per backend, at most
// activeToolsPerGroup each.
func renderActiveTools(groups []registry.BackendTools) string {
	total := 0
	for _, g := range groups {
		total += len(g.Tools)
	}
	if total == 0 {
		return "No tools are active. Use activate_server to connect a backend."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Active tools (%d total)\n", total)
	for _, g := range groups {
		fmt.Fprintf(&sb, "\n## %s (%d tools)\n", g.Backend, len(g.Tools))
		for i, t := range g.Tools {
			if i == activeToolsPerGroup {
				fmt.Fprintf(&sb, "- ... and %d more\n", len(g.Tools)-activeToolsPerGroup)
				break
			}
			fmt.Fprintf(&sb, "- `%s`: %s\n", t.ID, tooldoc.Summarize(t.Tool.Description, tooldoc.SummaryLen))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderSearch(q string, results search.Results) string {
	if len(results) == 0 {
		return fmt.Sprintf("Nothing matches %q.", q)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Search results (%d)\n", len(results))
	for _, r := range results {
		fmt.Fprintf(&sb, "- `%s` (%s)", r.Doc.ID, r.Doc.Kind)
		if r.Doc.Kind == search.KindBackend && r.Doc.Category != "" {
			fmt.Fprintf(&sb, " [%s]", r.Doc.Category)
		}
		if summary := tooldoc.Summarize(r.Doc.Description, tooldoc.SummaryLen); summary != "" {
			fmt.Fprintf(&sb, ": %s", summary)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderStatus(stats registry.Stats, uptime time.Duration, checked bool, health error) string {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	lines := []string{
		"# Bridge status",
		"- Uptime: " + formatUptime(uptime),
		"- Go: " + runtime.Version(),
		fmt.Sprintf("- Goroutines: %d", runtime.NumGoroutine()),
		fmt.Sprintf("- Memory: %.1f MB heap, %.1f MB from OS", mb(mem.HeapAlloc), mb(mem.Sys)),
		fmt.Sprintf("- Initialized: %t", stats.Initialized),
		fmt.Sprintf("- Active backends: %d/%d", stats.Connected, stats.Configured),
		fmt.Sprintf("- Registered tools: %d", stats.Tools),
		fmt.Sprintf("- Invocations: %d (%d failed)", stats.Invocations, stats.Failures),
		fmt.Sprintf("- PID: %d", stats.PID),
	}
	if checked {
		if health != nil {
			lines = append(lines, "- Health: "+health.Error())
		} else {
			lines = append(lines, "- Health: ok")
		}
	}
	return strings.Join(lines, "\n")
}

func formatUptime(d time.Duration) string {
	s := int(d.Seconds())
	return fmt.Sprintf("%dh %dm %ds", s/3600, s%3600/60, s%60)
}

func mb(n uint64) float64 {
	return float64(n) / 1024 / 1024
}

func renderRecent(entries []audit.Entry, summary []audit.Summary) string {
	if len(entries) == 0 {
		return "No calls recorded yet."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Recent calls (%d)\n", len(entries))
	for _, e := range entries {
		id := e.Tool
		if e.Backend != "" {
			id = registry.ToolID{Backend: e.Backend, Name: e.Tool}.String()
		}
		outcome := "ok"
		if e.IsError {
			outcome = "failed"
			if e.ErrorKind != "" {
				outcome += " (" + e.ErrorKind + ")"
			}
		}
		fmt.Fprintf(&sb, "- %s `%s` %s in %dms\n",
			e.StartedAt.Local().Format("2006-01-02 15:04:05"), id, outcome, e.DurationMS)
	}
	if len(summary) > 0 {
		sb.WriteString("\n## Per backend\n")
		for _, s := range summary {
			name := s.Backend
			if name == "" {
				name = "(unresolved)"
			}
			fmt.Fprintf(&sb, "- %s: %d calls, %d failed\n", name, s.Calls, s.Failures)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
