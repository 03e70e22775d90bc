// Package demo provides a small MCP backend with arithmetic, time and text
// tools. It backs smoke tests of the bridge and can run standalone over
// stdio through cmd/demo-backend.
package demo

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Name is the backend name the demo server is usually configured under.
const Name = "demo"

// CalculateArgs are the arguments of the calculate tool.
type CalculateArgs struct {
	Expression string `json:"expression" jsonschema:"arithmetic expression such as (2+3)*4"`
}

// PairArgs are the arguments of the two-operand tools.
type PairArgs struct {
	A float64 `json:"a" jsonschema:"first operand"`
	B float64 `json:"b" jsonschema:"second operand"`
}

// TextArgs are the arguments of analyze_text.
type TextArgs struct {
	Text string `json:"text" jsonschema:"text to analyze"`
}

// NewServer returns an MCP server exposing the demo tools.
func NewServer() *mcp.Server {
	return NewServerWithClock(time.Now)
}

// NewServerWithClock is NewServer with an injectable clock.
func NewServerWithClock(now func() time.Time) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "demo-backend", Version: "1.0.0"}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "calculate",
		Description: "Evaluate an arithmetic expression with + - * / % and parentheses",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args CalculateArgs) (*mcp.CallToolResult, any, error) {
		value, err := Evaluate(args.Expression)
		if err != nil {
			return nil, nil, err
		}
		return textResult(fmt.Sprintf("%s = %s", strings.TrimSpace(args.Expression), formatNumber(value))), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sum_two_numbers",
		Description: "Add two numbers",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args PairArgs) (*mcp.CallToolResult, any, error) {
		return textResult(formatNumber(args.A + args.B)), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "multiply_numbers",
		Description: "Multiply two numbers",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args PairArgs) (*mcp.CallToolResult, any, error) {
		return textResult(formatNumber(args.A * args.B)), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_current_time",
		Description: "Current local date and time",
	}, func(ctx context.Context, req *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
		return textResult(now().Format(time.RFC3339)), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "analyze_text",
		Description: "Count characters, words, lines and sentences in a text",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args TextArgs) (*mcp.CallToolResult, any, error) {
		return textResult(AnalyzeText(args.Text).String()), nil, nil
	})

	return server
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// TextStats summarizes a text.
type TextStats struct {
	Characters int
	Words      int
	Lines      int
	Sentences  int
}

func (s TextStats) String() string {
	return fmt.Sprintf("characters: %d\nwords: %d\nlines: %d\nsentences: %d",
		s.Characters, s.Words, s.Lines, s.Sentences)
}

// AnalyzeText counts characters, words, lines and sentences.
func AnalyzeText(text string) TextStats {
	stats := TextStats{
		Characters: len([]rune(text)),
		Words:      len(strings.Fields(text)),
	}
	if text != "" {
		stats.Lines = strings.Count(text, "\n") + 1
	}
	inSentence := false
	for _, r := range text {
		switch {
		case r == '.' || r == '!' || r == '?':
			if inSentence {
				stats.Sentences++
			}
			inSentence = false
		case !unicode.IsSpace(r):
			inSentence = true
		}
	}
	if inSentence {
		stats.Sentences++
	}
	return stats
}

// ErrInvalidExpression is returned for expressions Evaluate cannot handle.
var ErrInvalidExpression = errors.New("invalid expression")

// Evaluate computes an arithmetic expression over float64 numbers.
// Only numeric literals, parentheses, unary +/- and the binary operators
// + - * / % are accepted.
func Evaluate(expression string) (float64, error) {
	if strings.TrimSpace(expression) == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidExpression)
	}
	expr, err := parser.ParseExpr(expression)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}
	return eval(expr)
}

func eval(node ast.Expr) (float64, error) {
	switch n := node.(type) {
	case *ast.BasicLit:
		if n.Kind != token.INT && n.Kind != token.FLOAT {
			return 0, fmt.Errorf("%w: unsupported literal %s", ErrInvalidExpression, n.Value)
		}
		return strconv.ParseFloat(n.Value, 64)
	case *ast.ParenExpr:
		return eval(n.X)
	case *ast.UnaryExpr:
		x, err := eval(n.X)
		if err != nil {
			return 0, err
		}
		switch n.Op {
		case token.ADD:
			return x, nil
		case token.SUB:
			return -x, nil
		}
		return 0, fmt.Errorf("%w: unsupported operator %s", ErrInvalidExpression, n.Op)
	case *ast.BinaryExpr:
		x, err := eval(n.X)
		if err != nil {
			return 0, err
		}
		y, err := eval(n.Y)
		if err != nil {
			return 0, err
		}
		switch n.Op {
		case token.ADD:
			return x + y, nil
		case token.SUB:
			return x - y, nil
		case token.MUL:
			return x * y, nil
		case token.QUO:
			if y == 0 {
				return 0, fmt.Errorf("%w: division by zero", ErrInvalidExpression)
			}
			return x / y, nil
		case token.REM:
			if y == 0 {
				return 0, fmt.Errorf("%w: division by zero", ErrInvalidExpression)
			}
			return math.Mod(x, y), nil
		}
		return 0, fmt.Errorf("%w: unsupported operator %s", ErrInvalidExpression, n.Op)
	default:
		return 0, fmt.Errorf("%w: unsupported syntax", ErrInvalidExpression)
	}
}
