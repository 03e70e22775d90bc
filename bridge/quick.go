package bridge

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// PathArgs names a file or directory.
type PathArgs struct {
	Path string `json:"path" jsonschema:"file or directory path"`
}

// WriteArgs writes content to a file.
type WriteArgs struct {
	Path    string `json:"path" jsonschema:"file path"`
	Content string `json:"content" jsonschema:"content to write"`
}

// SearchFilesArgs searches a directory tree.
type SearchFilesArgs struct {
	Path    string `json:"path" jsonschema:"directory to search"`
	Pattern string `json:"pattern" jsonschema:"file name pattern"`
}

// RepoArgs names a git repository.
type RepoArgs struct {
	RepoPath string `json:"repo_path,omitempty" jsonschema:"repository path, default ."`
}

// LogArgs selects a git log range.
type LogArgs struct {
	RepoPath   string `json:"repo_path,omitempty" jsonschema:"repository path, default ."`
	MaxCommits int    `json:"max_commits,omitempty" jsonschema:"number of commits, default 10"`
}

// ExpressionArgs is an arithmetic expression.
type ExpressionArgs struct {
	Expression string `json:"expression" jsonschema:"arithmetic expression, for example 2+2"`
}

const defaultMaxCommits = 10

// addQuickTools registers shortcuts for common backend tools. Each one
// activates its backend on first use.
func (b *Bridge) addQuickTools() {
	addTool(b, &mcp.Tool{
		Name:        "read_file",
		Description: "Read a file (uses the filesystem backend)",
	}, func(ctx context.Context, in PathArgs) *mcp.CallToolResult {
		return b.quick(ctx, "filesystem_read_file", map[string]any{"path": in.Path})
	})

	addTool(b, &mcp.Tool{
		Name:        "write_file",
		Description: "Write a file (uses the filesystem backend)",
	}, func(ctx context.Context, in WriteArgs) *mcp.CallToolResult {
		return b.quick(ctx, "filesystem_write_file", map[string]any{"path": in.Path, "content": in.Content})
	})

	addTool(b, &mcp.Tool{
		Name:        "list_directory",
		Description: "List a directory (uses the filesystem backend)",
	}, func(ctx context.Context, in PathArgs) *mcp.CallToolResult {
		return b.quick(ctx, "filesystem_list_directory", map[string]any{"path": in.Path})
	})

	addTool(b, &mcp.Tool{
		Name:        "search_files",
		Description: "Find files matching a pattern (uses the filesystem backend)",
	}, func(ctx context.Context, in SearchFilesArgs) *mcp.CallToolResult {
		return b.quick(ctx, "filesystem_search_files", map[string]any{"path": in.Path, "pattern": in.Pattern})
	})

	addTool(b, &mcp.Tool{
		Name:        "git_status",
		Description: "Working tree status of a repository (uses the git backend)",
	}, func(ctx context.Context, in RepoArgs) *mcp.CallToolResult {
		return b.quick(ctx, "git_status", map[string]any{"repo_path": repoPath(in.RepoPath)})
	})

	addTool(b, &mcp.Tool{
		Name:        "git_log",
		Description: "Recent commits of a repository (uses the git backend)",
	}, func(ctx context.Context, in LogArgs) *mcp.CallToolResult {
		n := in.MaxCommits
		if n <= 0 {
			n = defaultMaxCommits
		}
		return b.quick(ctx, "git_log", map[string]any{"repo_path": repoPath(in.RepoPath), "max_commits": n})
	})

	addTool(b, &mcp.Tool{
		Name:        "git_diff",
		Description: "Unstaged changes of a repository (uses the git backend)",
	}, func(ctx context.Context, in RepoArgs) *mcp.CallToolResult {
		return b.quick(ctx, "git_diff", map[string]any{"repo_path": repoPath(in.RepoPath)})
	})

	addTool(b, &mcp.Tool{
		Name:        "calculate",
		Description: "Evaluate an arithmetic expression (uses the demo backend)",
	}, func(ctx context.Context, in ExpressionArgs) *mcp.CallToolResult {
		return b.quick(ctx, "demo_calculate", map[string]any{"expression": in.Expression})
	})
}

func (b *Bridge) quick(ctx context.Context, flat string, args map[string]any) *mcp.CallToolResult {
	b.ensureInitialized(ctx)
	return invocationResult(b.broker.Invoke(ctx, flat, args))
}

func repoPath(p string) string {
	if p == "" {
		return "."
	}
	return p
}
