package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jonwraymond/toolbridge/backend"
)

// BootstrapReport summarizes one Initialize call.
type BootstrapReport struct {
	// AlreadyInitialized is set when Initialize found the broker initialized
	// and did nothing.
	AlreadyInitialized bool
	// LoadErr is the soft failure reported by the descriptor loader.
	LoadErr error
	// Connected lists bootstrap backends connected, in order.
	Connected []string
	// Skipped lists bootstrap names that are not configured.
	Skipped []string
	// Failed maps bootstrap backends to their connection error.
	Failed map[string]error
}

// Err joins every failure in the report, or returns nil.
func (r *BootstrapReport) Err() error {
	if r == nil {
		return nil
	}
	errs := make([]error, 0, len(r.Failed)+1)
	if r.LoadErr != nil {
		errs = append(errs, r.LoadErr)
	}
	for name, err := range r.Failed {
		errs = append(errs, fmt.Errorf("bootstrap %s: %w", name, err))
	}
	return errors.Join(errs...)
}

// Initialize loads the backend descriptors and connects the bootstrap
// backends in order. It is idempotent. Load and connection failures are
// logged and reported but never make Initialize fail: the broker ends up
// initialized with whatever could be loaded and connected.
func (b *Broker) Initialize(ctx context.Context) *BootstrapReport {
	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()

	b.mu.RLock()
	already := b.initialized
	b.mu.RUnlock()
	if already {
		return &BootstrapReport{AlreadyInitialized: true}
	}

	report := &BootstrapReport{Failed: make(map[string]error)}

	store, err := b.loader()
	if store == nil {
		store, _ = backend.NewInMemoryStore()
	}
	if err != nil {
		report.LoadErr = err
		b.logger.Warn("backend configuration load failed", "error", err)
	}

	b.mu.Lock()
	b.store = store
	b.initialized = true
	b.initializedAt = time.Now()
	b.generation++
	b.mu.Unlock()

	b.logger.Info("broker initialized", "backends", store.Len(), "bootstrap", b.bootstrap)

	for _, name := range b.bootstrap {
		if !store.Has(name) {
			report.Skipped = append(report.Skipped, name)
			b.logger.Debug("bootstrap backend not configured", "backend", name)
			continue
		}
		if _, err := b.Connect(ctx, name); err != nil {
			report.Failed[name] = err
			b.logger.Warn("bootstrap connect failed", "backend", name, "error", err)
			continue
		}
		report.Connected = append(report.Connected, name)
	}
	return report
}

// Initialized reports whether the broker is initialized.
func (b *Broker) Initialized() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.initialized
}

// Shutdown clears the registry and connected set, then releases every
// session in reverse order of acquisition. Every release is attempted;
// their errors are joined. The whole pass is bounded by ctx and the
// shutdown timeout, whichever ends first. Afterwards the broker is uninitialized and the
// next Initialize reloads configuration from scratch. Shutdown of an
// uninitialized broker is a no-op.
func (b *Broker) Shutdown(ctx context.Context) error {
	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()

	b.mu.Lock()
	if !b.initialized {
		b.mu.Unlock()
		return nil
	}
	stack := b.teardown
	b.teardown = nil
	b.conns = make(map[string]*connection)
	b.index.clear()
	b.initialized = false
	b.generation++
	b.store, _ = backend.NewInMemoryStore()
	b.emitLocked(ChangeEvent{Kind: EventCleared})
	b.mu.Unlock()
	b.flushEvents()

	// One deadline covers the whole pass. Sessions still closing when it
	// expires are reported as timed out and left to finish on their own.
	passCtx, cancel := context.WithTimeout(ctx, b.shutdownTimeout)
	defer cancel()

	var errs []error
	for i := len(stack) - 1; i >= 0; i-- {
		conn := stack[i]
		if err := closeWithin(passCtx, conn.session); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", conn.name, err))
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		b.logger.Warn("broker shut down with errors", "sessions", len(stack), "error", err)
	} else {
		b.logger.Info("broker shut down", "sessions", len(stack))
	}
	return err
}

// Stats is a snapshot of broker counters.
type Stats struct {
	Initialized   bool
	InitializedAt time.Time
	Uptime        time.Duration
	Configured    int
	Connected     int
	Tools         int
	Invocations   int64
	Failures      int64
	PID           int
}

// Stats returns a snapshot of broker counters.
func (b *Broker) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := Stats{
		Initialized:   b.initialized,
		InitializedAt: b.initializedAt,
		Configured:    b.store.Len(),
		Connected:     len(b.conns),
		Tools:         b.index.len(),
		Invocations:   b.invocations.Load(),
		Failures:      b.failures.Load(),
		PID:           os.Getpid(),
	}
	if b.initialized {
		s.Uptime = time.Since(b.initializedAt)
	}
	return s
}

// HealthCheck returns nil when the broker is initialized and every
// connected backend still answers a tool listing.
func (b *Broker) HealthCheck(ctx context.Context) error {
	b.mu.RLock()
	if !b.initialized {
		b.mu.RUnlock()
		return ErrNotInitialized
	}
	conns := make([]*connection, 0, len(b.conns))
	for _, conn := range b.conns {
		conns = append(conns, conn)
	}
	b.mu.RUnlock()

	var errs []error
	for _, conn := range conns {
		checkCtx, cancel := context.WithTimeout(ctx, b.connectTimeout)
		_, err := bounded(checkCtx, conn.session.ListTools, nil)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("backend %s: %w", conn.name, err))
		}
	}
	return errors.Join(errs...)
}
