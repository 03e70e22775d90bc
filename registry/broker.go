package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/toolbridge/backend"
)

// Default timeouts applied when Options leaves them zero.
const (
	DefaultConnectTimeout  = 30 * time.Second
	DefaultCallTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// Options configures a Broker.
type Options struct {
	// Loader produces the backend descriptors on every Initialize. Required.
	Loader backend.Loader

	// Dialer acquires backend sessions. Defaults to an MCPDialer.
	Dialer Dialer

	// Bootstrap lists backends connected, in order, during Initialize.
	// Names that are not configured are skipped.
	Bootstrap []string

	ConnectTimeout  time.Duration
	CallTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Recorder receives one record per invocation. Optional.
	Recorder Recorder

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Broker owns every backend connection and the registry of tools they
// expose. All methods are safe for concurrent use.
type Broker struct {
	loader    backend.Loader
	dialer    Dialer
	bootstrap []string
	recorder  Recorder
	logger    *slog.Logger

	connectTimeout  time.Duration
	callTimeout     time.Duration
	shutdownTimeout time.Duration

	// lifecycleMu serializes Initialize and Shutdown.
	lifecycleMu sync.Mutex

	mu            sync.RWMutex
	store         backend.Store
	initialized   bool
	initializedAt time.Time
	generation    uint64
	conns         map[string]*connection
	index         *toolIndex
	teardown      []*connection

	flight singleflight.Group
	locks  keyedMutex

	notifyMu     sync.Mutex
	pending      []ChangeEvent
	listeners    []listenerEntry
	nextListener int

	invocations atomic.Int64
	failures    atomic.Int64
}

type connection struct {
	name        string
	session     Session
	tools       []ToolID
	connectedAt time.Time
}

// New creates a Broker in the uninitialized state.
func New(opts Options) (*Broker, error) {
	if opts.Loader == nil {
		return nil, errors.New("registry: backend loader is required")
	}
	if opts.Dialer == nil {
		opts.Dialer = &MCPDialer{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	empty, _ := backend.NewInMemoryStore()
	return &Broker{
		loader:          opts.Loader,
		dialer:          opts.Dialer,
		bootstrap:       append([]string(nil), opts.Bootstrap...),
		recorder:        opts.Recorder,
		logger:          opts.Logger.With("component", "broker"),
		connectTimeout:  orDefault(opts.ConnectTimeout, DefaultConnectTimeout),
		callTimeout:     orDefault(opts.CallTimeout, DefaultCallTimeout),
		shutdownTimeout: orDefault(opts.ShutdownTimeout, DefaultShutdownTimeout),
		store:           empty,
		conns:           make(map[string]*connection),
		index:           newToolIndex(),
	}, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// ConnectResult reports the outcome of a successful Connect.
type ConnectResult struct {
	Backend string
	// Tools lists the IDs registered for the backend.
	Tools []ToolID
	// AlreadyConnected is set when the backend was connected before the call.
	AlreadyConnected bool
	Duration         time.Duration
}

// Message renders the result for clients.
func (r *ConnectResult) Message() string {
	if r.AlreadyConnected {
		return fmt.Sprintf("%s is already active", r.Backend)
	}
	return fmt.Sprintf("%s activated with %d tools", r.Backend, len(r.Tools))
}

// Connect establishes a session to the named backend and registers its
// tools. Connecting an already connected backend succeeds with
// AlreadyConnected set. Concurrent calls for the same name share one
// attempt, so at most one session per backend is ever opened.
//
// On failure nothing is registered and any partially acquired session is
// released. The attempt is bounded by the connect timeout; exceeding it
// yields ErrTimeout. A shared attempt keeps the first caller's values but
// not its cancellation; each caller stops waiting when its own ctx is done.
func (b *Broker) Connect(ctx context.Context, name string) (*ConnectResult, error) {
	b.mu.RLock()
	initialized := b.initialized
	store := b.store
	conn, connected := b.conns[name]
	var tools []ToolID
	if connected {
		tools = append(tools, conn.tools...)
	}
	b.mu.RUnlock()

	if !initialized {
		return nil, fmt.Errorf("%w: connect %s", ErrNotInitialized, name)
	}
	if !store.Has(name) {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, name)
	}
	if connected {
		return &ConnectResult{Backend: name, Tools: tools, AlreadyConnected: true}, nil
	}

	shared := context.WithoutCancel(ctx)
	ch := b.flight.DoChan(name, func() (any, error) {
		return b.connect(shared, name)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		out := *res.Val.(*ConnectResult)
		out.Tools = append([]ToolID(nil), out.Tools...)
		return &out, nil
	case <-ctx.Done():
		return nil, connectError(ctx, name, ctx.Err())
	}
}

func (b *Broker) connect(ctx context.Context, name string) (*ConnectResult, error) {
	unlock := b.locks.lock(name)
	defer unlock()

	b.mu.RLock()
	initialized := b.initialized
	generation := b.generation
	store := b.store
	existing, connected := b.conns[name]
	b.mu.RUnlock()

	if !initialized {
		return nil, fmt.Errorf("%w: connect %s", ErrNotInitialized, name)
	}
	if connected {
		return &ConnectResult{Backend: name, Tools: existing.tools, AlreadyConnected: true}, nil
	}
	desc, err := store.Describe(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, name)
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, b.connectTimeout)
	defer cancel()

	b.logger.Debug("connecting backend", "backend", name, "type", desc.Kind())
	session, tools, err := b.dial(ctx, desc)
	if err != nil {
		b.logger.Warn("backend connect failed", "backend", name, "error", err)
		return nil, err
	}

	b.mu.Lock()
	if !b.initialized || b.generation != generation {
		b.mu.Unlock()
		b.release(context.Background(), name, session)
		return nil, fmt.Errorf("%w: connect %s", ErrShuttingDown, name)
	}
	ids := b.index.add(name, tools, b.logger)
	conn := &connection{
		name:        name,
		session:     session,
		tools:       ids,
		connectedAt: time.Now(),
	}
	b.conns[name] = conn
	b.teardown = append(b.teardown, conn)
	b.emitLocked(ChangeEvent{Kind: EventConnected, Backend: name, Tools: b.index.toolsFor(name)})
	b.mu.Unlock()
	b.flushEvents()

	elapsed := time.Since(start)
	b.logger.Info("backend connected", "backend", name, "tools", len(ids), "duration", elapsed)
	return &ConnectResult{Backend: name, Tools: ids, Duration: elapsed}, nil
}

// dial acquires a session and lists its tools. A session whose listing
// fails, or that arrives after ctx is done, is released before returning.
func (b *Broker) dial(ctx context.Context, desc backend.Descriptor) (Session, []*mcp.Tool, error) {
	type dialed struct {
		session Session
		tools   []*mcp.Tool
	}

	res, err := bounded(ctx, func(ctx context.Context) (dialed, error) {
		session, err := b.dialer.Dial(ctx, desc)
		if err != nil {
			return dialed{}, err
		}
		if session == nil {
			return dialed{}, errors.New("dialer returned no session")
		}
		tools, err := session.ListTools(ctx)
		if err != nil {
			_ = session.Close()
			return dialed{}, fmt.Errorf("listing tools: %w", err)
		}
		return dialed{session: session, tools: tools}, nil
	}, func(late dialed) {
		if late.session != nil {
			_ = late.session.Close()
		}
	})
	if err != nil {
		return nil, nil, connectError(ctx, desc.Name, err)
	}
	return res.session, res.tools, nil
}

func connectError(ctx context.Context, name string, err error) error {
	if isDeadline(ctx, err) {
		return fmt.Errorf("%w: connecting %s: %v", ErrTimeout, name, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrHandshakeFailed, name, err)
}

// Disconnect removes a backend's tools, forgets the connection and
// releases its session. A release error is logged; the backend is
// disconnected either way.
func (b *Broker) Disconnect(ctx context.Context, name string) error {
	unlock := b.locks.lock(name)
	defer unlock()

	b.mu.Lock()
	conn, ok := b.conns[name]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotConnected, name)
	}
	removed := b.index.toolsFor(name)
	b.index.remove(name)
	delete(b.conns, name)
	b.teardown = withoutConnection(b.teardown, conn)
	b.emitLocked(ChangeEvent{Kind: EventDisconnected, Backend: name, Tools: removed})
	b.mu.Unlock()
	b.flushEvents()

	b.release(ctx, name, conn.session)
	b.logger.Info("backend disconnected", "backend", name, "tools", len(removed))
	return nil
}

func withoutConnection(stack []*connection, conn *connection) []*connection {
	out := stack[:0:0]
	for _, c := range stack {
		if c != conn {
			out = append(out, c)
		}
	}
	return out
}

// release closes a session within the shutdown timeout.
func (b *Broker) release(ctx context.Context, name string, session Session) {
	if err := b.closeSession(ctx, session); err != nil {
		b.logger.Warn("backend release failed", "backend", name, "error", err)
	}
}

func (b *Broker) closeSession(ctx context.Context, session Session) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.shutdownTimeout)
	defer cancel()
	return closeWithin(ctx, session)
}

// closeWithin closes session and stops waiting when ctx is done. A close
// that outlives ctx keeps running in the background.
func closeWithin(ctx context.Context, session Session) error {
	_, err := bounded(ctx, func(context.Context) (struct{}, error) {
		return struct{}{}, session.Close()
	}, nil)
	if err != nil && isDeadline(ctx, err) {
		return fmt.Errorf("%w: closing session: %v", ErrTimeout, err)
	}
	return err
}

// IsConnected reports whether the named backend has a live session.
func (b *Broker) IsConnected(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.conns[name]
	return ok
}

// Lookup returns an active tool by its structured ID.
func (b *Broker) Lookup(id ToolID) (ActiveTool, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.index.lookup(id)
}

// LookupFlat returns an active tool by its flat client-facing identifier.
func (b *Broker) LookupFlat(flat string) (ActiveTool, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.index.lookupFlat(flat)
}

// ActiveTools returns all active tools grouped by backend.
// Backends are sorted by name; tools keep the backend's listing order.
func (b *Broker) ActiveTools() []BackendTools {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.index.grouped()
}

// Tools returns the active tools of one connected backend.
func (b *Broker) Tools(name string) ([]ActiveTool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if _, ok := b.conns[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotConnected, name)
	}
	return b.index.toolsFor(name), nil
}

// BackendStatus describes a configured backend and its connection state.
type BackendStatus struct {
	Descriptor  backend.Descriptor
	Connected   bool
	ToolCount   int
	ConnectedAt time.Time
}

// KnownBackends lists every configured backend sorted by name.
func (b *Broker) KnownBackends() []BackendStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()

	descriptors := b.store.List()
	out := make([]BackendStatus, 0, len(descriptors))
	for _, d := range descriptors {
		status := BackendStatus{Descriptor: d}
		if conn, ok := b.conns[d.Name]; ok {
			status.Connected = true
			status.ToolCount = len(conn.tools)
			status.ConnectedAt = conn.connectedAt
		}
		out = append(out, status)
	}
	return out
}

// Configured reports whether name is a configured backend.
func (b *Broker) Configured(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.store.Has(name)
}

// keyedMutex hands out one mutex per key and frees it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedEntry)
	}
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// bounded runs fn on its own goroutine and returns when it finishes or ctx
// is done, whichever comes first. A panic in fn is returned as an error.
// When ctx wins, late is called with fn's eventual result so resources it
// acquired can be released.
func bounded[T any](ctx context.Context, fn func(context.Context) (T, error), late func(T)) (T, error) {
	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		var out outcome
		defer func() {
			if r := recover(); r != nil {
				out.err = fmt.Errorf("panic: %v", r)
			}
			done <- out
		}()
		out.val, out.err = fn(ctx)
	}()

	select {
	case out := <-done:
		return out.val, out.err
	case <-ctx.Done():
		if late != nil {
			go func() {
				if out := <-done; out.err == nil {
					late(out.val)
				}
			}()
		}
		var zero T
		return zero, ctx.Err()
	}
}
