package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Result is the normalized outcome of one invocation. Invoke and Execute
// always return a Result; failures are reported through IsError and Err.
type Result struct {
	// RequestID correlates log lines and audit records of one call.
	RequestID string
	ID        ToolID
	// Text is the normalized output, or the failure message when IsError.
	Text     string
	IsError  bool
	Err      error
	Duration time.Duration
}

// CallRecord describes a finished invocation for a Recorder.
type CallRecord struct {
	RequestID string
	Backend   string
	Tool      string
	Arguments map[string]any
	IsError   bool
	ErrorKind string
	Message   string
	StartedAt time.Time
	Duration  time.Duration
}

// Recorder persists invocation records. Recording failures are logged and
// never change the outcome of a call.
type Recorder interface {
	RecordCall(ctx context.Context, rec CallRecord) error
}

// Invoke calls a tool by its flat client-facing identifier.
//
// A registered identifier is called directly. Otherwise the identifier is
// matched against configured backend names: when exactly one backend name
// followed by the separator prefixes it and that backend is not yet
// connected, the backend is connected and the lookup repeated. Identifiers
// that match no backend, or more than one, fail with ErrToolNotFound
// without any connection attempt.
func (b *Broker) Invoke(ctx context.Context, flat string, args map[string]any) *Result {
	res := &Result{RequestID: uuid.NewString()}
	start := time.Now()

	tool, session, err := b.resolveFlat(ctx, flat)
	if err != nil {
		res.ID = ToolID{Name: flat}
		return b.finish(ctx, res, start, args, err)
	}
	res.ID = tool.ID
	return b.call(ctx, res, start, session, args)
}

// Execute calls a tool by backend and tool name, connecting the backend
// first when needed.
func (b *Broker) Execute(ctx context.Context, backendName, toolName string, args map[string]any) *Result {
	id := ToolID{Backend: backendName, Name: toolName}
	res := &Result{RequestID: uuid.NewString(), ID: id}
	start := time.Now()

	_, session, err := b.resolve(ctx, id)
	if err != nil {
		return b.finish(ctx, res, start, args, err)
	}
	return b.call(ctx, res, start, session, args)
}

// Resolve returns the active tool behind a flat identifier without calling
// it. Resolution and auto-connect follow the same rules as Invoke.
func (b *Broker) Resolve(ctx context.Context, flat string) (ActiveTool, error) {
	tool, _, err := b.resolveFlat(ctx, flat)
	return tool, err
}

func (b *Broker) resolveFlat(ctx context.Context, flat string) (ActiveTool, Session, error) {
	b.mu.RLock()
	initialized := b.initialized
	store := b.store
	tool, found := b.index.lookupFlat(flat)
	var session Session
	if found {
		session = b.conns[tool.ID.Backend].session
	}
	b.mu.RUnlock()

	if found {
		return tool, session, nil
	}
	if !initialized {
		return ActiveTool{}, nil, fmt.Errorf("%w: %s", ErrNotInitialized, flat)
	}

	id, ok := resolveBackend(flat, store.Names())
	if !ok {
		return ActiveTool{}, nil, fmt.Errorf("%w: %s", ErrToolNotFound, flat)
	}
	return b.resolve(ctx, id)
}

// resolve returns the tool and the session serving id, connecting its
// backend when it is configured but not connected. The tool and session
// are read under one lock, so a concurrent Disconnect yields
// ErrToolNotFound rather than a tool without its session.
func (b *Broker) resolve(ctx context.Context, id ToolID) (ActiveTool, Session, error) {
	b.mu.RLock()
	initialized := b.initialized
	configured := b.store.Has(id.Backend)
	conn, connected := b.conns[id.Backend]
	tool, registered := b.index.lookup(id)
	b.mu.RUnlock()

	switch {
	case connected && registered:
		return tool, conn.session, nil
	case connected:
		return ActiveTool{}, nil, fmt.Errorf("%w: %s", ErrToolNotFound, id)
	case !initialized:
		return ActiveTool{}, nil, fmt.Errorf("%w: %s", ErrNotInitialized, id)
	case !configured:
		return ActiveTool{}, nil, fmt.Errorf("%w: %s", ErrNotConfigured, id.Backend)
	}

	if _, err := b.Connect(ctx, id.Backend); err != nil {
		return ActiveTool{}, nil, err
	}
	return b.activeSession(id)
}

// activeSession looks up id and its session after a connect.
func (b *Broker) activeSession(id ToolID) (ActiveTool, Session, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	conn, connected := b.conns[id.Backend]
	tool, ok := b.index.lookup(id)
	if !ok || !connected {
		return ActiveTool{}, nil, fmt.Errorf("%w: %s", ErrToolNotFound, id)
	}
	return tool, conn.session, nil
}

func (b *Broker) call(ctx context.Context, res *Result, start time.Time, session Session, args map[string]any) *Result {
	callCtx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()

	out, err := bounded(callCtx, func(ctx context.Context) (*mcp.CallToolResult, error) {
		return session.CallTool(ctx, res.ID.Name, args)
	}, nil)
	switch {
	case err != nil && isDeadline(callCtx, err):
		err = fmt.Errorf("%w: calling %s: %v", ErrTimeout, res.ID, err)
	case err != nil:
		err = fmt.Errorf("%w: %s: %v", ErrInvocationFailed, res.ID, err)
	case out != nil && out.IsError:
		err = fmt.Errorf("%w: %s: %s", ErrInvocationFailed, res.ID, NormalizeResult(out))
	default:
		res.Text = NormalizeResult(out)
	}
	return b.finish(ctx, res, start, args, err)
}

func (b *Broker) finish(ctx context.Context, res *Result, start time.Time, args map[string]any, err error) *Result {
	res.Duration = time.Since(start)
	b.invocations.Add(1)

	logger := b.logger.With("request_id", res.RequestID, "tool_id", res.ID.String())
	if err != nil {
		b.failures.Add(1)
		res.IsError = true
		res.Err = err
		res.Text = err.Error()
		logger.Warn("tool invocation failed", "kind", Kind(err), "error", err, "duration", res.Duration)
	} else {
		logger.Debug("tool invoked", "duration", res.Duration)
	}

	if b.recorder != nil {
		rec := CallRecord{
			RequestID: res.RequestID,
			Backend:   res.ID.Backend,
			Tool:      res.ID.Name,
			Arguments: args,
			IsError:   res.IsError,
			ErrorKind: Kind(err),
			StartedAt: start,
			Duration:  res.Duration,
		}
		if res.IsError {
			rec.Message = res.Text
		}
		if recErr := b.recorder.RecordCall(context.WithoutCancel(ctx), rec); recErr != nil {
			logger.Warn("recording invocation failed", "error", recErr)
		}
	}
	return res
}

// Failed reports whether r wraps target.
func (r *Result) Failed(target error) bool {
	return r != nil && r.Err != nil && errors.Is(r.Err, target)
}
