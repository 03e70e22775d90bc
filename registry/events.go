package registry

// EventKind identifies a registry change.
type EventKind int

const (
	// EventConnected fires after a backend's tools were added.
	EventConnected EventKind = iota + 1
	// EventDisconnected fires after a backend's tools were removed.
	EventDisconnected
	// EventCleared fires when shutdown removed every tool at once.
	EventCleared
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// ChangeEvent describes one change to the set of active tools.
// Tools holds the added or removed tools; it is empty for EventCleared.
type ChangeEvent struct {
	Kind    EventKind
	Backend string
	Tools   []ActiveTool
}

// ChangeListener receives change events in the order the changes were
// applied. Listeners run synchronously on the goroutine that made the
// change. They may read from the Broker but must not connect, disconnect
// or shut it down.
type ChangeListener func(ChangeEvent)

type listenerEntry struct {
	id int
	fn ChangeListener
}

// OnChange registers a listener and returns a function that removes it.
func (b *Broker) OnChange(fn ChangeListener) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	b.mu.Lock()
	b.nextListener++
	id := b.nextListener
	b.listeners = append(b.listeners, listenerEntry{id: id, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, l := range b.listeners {
			if l.id == id {
				b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
				return
			}
		}
	}
}

// emitLocked queues an event. The caller must hold b.mu for writing so
// that queue order matches the order changes were applied.
func (b *Broker) emitLocked(ev ChangeEvent) {
	b.pending = append(b.pending, ev)
}

// flushEvents delivers queued events outside b.mu. notifyMu keeps
// deliveries from concurrent flushes from interleaving.
func (b *Broker) flushEvents() {
	b.notifyMu.Lock()
	defer b.notifyMu.Unlock()

	b.mu.Lock()
	events := b.pending
	b.pending = nil
	listeners := make([]listenerEntry, len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.Unlock()

	for _, ev := range events {
		for _, l := range listeners {
			l.fn(ev)
		}
	}
}
