package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/toolbridge/backend"
)

func TestNew_RequiresLoader(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestConnect_RegistersDemoTools(t *testing.T) {
	b := initialized(t, newTestBroker(t, demoDialer(t), Options{}, "demo"))
	ctx := context.Background()

	res, err := b.Connect(ctx, "demo")
	require.NoError(t, err)
	assert.False(t, res.AlreadyConnected)
	assert.Len(t, res.Tools, 5)
	assert.Equal(t, "demo activated with 5 tools", res.Message())

	assert.True(t, b.IsConnected("demo"))

	tool, ok := b.Lookup(ToolID{Backend: "demo", Name: "calculate"})
	require.True(t, ok)
	assert.Equal(t, "demo", tool.Tool.Namespace)
	assert.Equal(t, "calculate", tool.Tool.Name)
	require.NotNil(t, tool.Owner.MCP)
	assert.Equal(t, "demo", tool.Owner.MCP.ServerName)

	flat, ok := b.LookupFlat("demo_calculate")
	require.True(t, ok)
	assert.Equal(t, tool.ID, flat.ID)

	groups := b.ActiveTools()
	require.Len(t, groups, 1)
	assert.Equal(t, "demo", groups[0].Backend)
	assert.Len(t, groups[0].Tools, 5)
}

func TestConnect_Idempotent(t *testing.T) {
	dialer := newFakeDialer(toolsByBackend(map[string][]string{"git": {"status", "log"}}))
	b := initialized(t, newTestBroker(t, dialer, Options{}, "git"))
	ctx := context.Background()

	_, err := b.Connect(ctx, "git")
	require.NoError(t, err)

	again, err := b.Connect(ctx, "git")
	require.NoError(t, err)
	assert.True(t, again.AlreadyConnected)
	assert.Equal(t, "git is already active", again.Message())
	assert.ElementsMatch(t, []ToolID{{"git", "status"}, {"git", "log"}}, again.Tools)

	assert.Equal(t, 1, dialer.dialCount("git"))
	assert.Equal(t, 2, b.Stats().Tools)
}

func TestConnect_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("not initialized", func(t *testing.T) {
		b := newTestBroker(t, newFakeDialer(toolsByBackend(nil)), Options{}, "git")
		_, err := b.Connect(ctx, "git")
		assert.ErrorIs(t, err, ErrNotInitialized)
	})

	t.Run("not configured", func(t *testing.T) {
		dialer := newFakeDialer(toolsByBackend(nil))
		b := initialized(t, newTestBroker(t, dialer, Options{}, "git"))
		_, err := b.Connect(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotConfigured)
		assert.Zero(t, dialer.totalDials())
	})

	t.Run("handshake failure", func(t *testing.T) {
		dialer := newFakeDialer(func(string) (*fakeSession, error) {
			return nil, errors.New("exec: python: not found")
		})
		b := initialized(t, newTestBroker(t, dialer, Options{}, "git"))
		_, err := b.Connect(ctx, "git")
		assert.ErrorIs(t, err, ErrHandshakeFailed)
		assert.Contains(t, err.Error(), "git")
		assert.False(t, b.IsConnected("git"))
		assert.Empty(t, b.ActiveTools())
	})

	t.Run("listing failure releases session", func(t *testing.T) {
		session := &fakeSession{name: "git", listErr: errors.New("boom")}
		dialer := newFakeDialer(func(string) (*fakeSession, error) { return session, nil })
		b := initialized(t, newTestBroker(t, dialer, Options{}, "git"))

		_, err := b.Connect(ctx, "git")
		assert.ErrorIs(t, err, ErrHandshakeFailed)
		assert.EqualValues(t, 1, session.closed.Load())
		assert.False(t, b.IsConnected("git"))
	})
}

func TestConnect_Timeout(t *testing.T) {
	dialer := newFakeDialer(toolsByBackend(map[string][]string{"slow": {"x"}}))
	dialer.delay = time.Minute
	b := initialized(t, newTestBroker(t, dialer, Options{ConnectTimeout: 50 * time.Millisecond}, "slow"))

	start := time.Now()
	_, err := b.Connect(context.Background(), "slow")
	require.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.False(t, b.IsConnected("slow"))
}

func TestConnect_LateSessionReleased(t *testing.T) {
	release := make(chan struct{})
	session := &fakeSession{name: "stuck", tools: toolsNamed("x")}
	dialer := DialerFunc(func(ctx context.Context, d backend.Descriptor) (Session, error) {
		<-release
		return session, nil
	})
	b := initialized(t, newTestBroker(t, dialer, Options{ConnectTimeout: 20 * time.Millisecond}, "stuck"))

	_, err := b.Connect(context.Background(), "stuck")
	require.ErrorIs(t, err, ErrTimeout)

	close(release)
	assert.Eventually(t, func() bool { return session.closed.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, b.IsConnected("stuck"))
}

func TestConnect_ConcurrentSameBackend(t *testing.T) {
	dialer := newFakeDialer(toolsByBackend(map[string][]string{"docker": {"ps", "run", "logs"}}))
	dialer.delay = 30 * time.Millisecond
	b := initialized(t, newTestBroker(t, dialer, Options{}, "docker"))

	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.Connect(context.Background(), "docker")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, dialer.dialCount("docker"))
	assert.Equal(t, 3, b.Stats().Tools)

	tools, err := b.Tools("docker")
	require.NoError(t, err)
	assert.Len(t, tools, 3)
}

func TestConnect_CancelledCallerDoesNotFailOthers(t *testing.T) {
	dialer := newFakeDialer(toolsByBackend(map[string][]string{"docker": {"ps"}}))
	dialer.delay = 200 * time.Millisecond
	b := initialized(t, newTestBroker(t, dialer, Options{}, "docker"))

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := b.Connect(first, "docker")
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return dialer.dialCount("docker") == 1 }, time.Second, time.Millisecond)

	secondErr := make(chan error, 1)
	go func() {
		_, err := b.Connect(context.Background(), "docker")
		secondErr <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-firstErr, ErrHandshakeFailed)
	require.NoError(t, <-secondErr)
	assert.True(t, b.IsConnected("docker"))
	assert.Equal(t, 1, dialer.dialCount("docker"))
}

func TestConnect_ConcurrentDistinctBackends(t *testing.T) {
	names := map[string][]string{"a": {"one"}, "b": {"two"}, "c": {"three"}, "d": {"four"}}
	dialer := newFakeDialer(toolsByBackend(names))
	dialer.delay = 20 * time.Millisecond
	b := initialized(t, newTestBroker(t, dialer, Options{}, "a", "b", "c", "d"))

	var wg sync.WaitGroup
	for name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.Connect(context.Background(), name)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stats := b.Stats()
	assert.Equal(t, 4, stats.Connected)
	assert.Equal(t, 4, stats.Tools)
}

func TestDisconnect(t *testing.T) {
	dialer := newFakeDialer(toolsByBackend(map[string][]string{"git": {"status"}, "fs": {"read"}}))
	b := initialized(t, newTestBroker(t, dialer, Options{}, "git", "fs"))
	ctx := context.Background()

	_, err := b.Connect(ctx, "git")
	require.NoError(t, err)
	_, err = b.Connect(ctx, "fs")
	require.NoError(t, err)

	require.NoError(t, b.Disconnect(ctx, "git"))
	assert.False(t, b.IsConnected("git"))
	_, ok := b.LookupFlat("git_status")
	assert.False(t, ok)
	assert.EqualValues(t, 1, dialer.session("git").closed.Load())

	_, ok = b.LookupFlat("fs_read")
	assert.True(t, ok, "other backends keep their tools")

	err = b.Disconnect(ctx, "git")
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = b.Tools("git")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestDisconnect_ReleaseErrorStillDisconnects(t *testing.T) {
	dialer := newFakeDialer(func(name string) (*fakeSession, error) {
		return &fakeSession{name: name, tools: toolsNamed("t"), closeErr: errors.New("broken pipe")}, nil
	})
	b := initialized(t, newTestBroker(t, dialer, Options{}, "x"))

	_, err := b.Connect(context.Background(), "x")
	require.NoError(t, err)
	require.NoError(t, b.Disconnect(context.Background(), "x"))
	assert.False(t, b.IsConnected("x"))
}

func TestReconnectAfterDisconnect(t *testing.T) {
	dialer := newFakeDialer(toolsByBackend(map[string][]string{"git": {"status"}}))
	b := initialized(t, newTestBroker(t, dialer, Options{}, "git"))
	ctx := context.Background()

	_, err := b.Connect(ctx, "git")
	require.NoError(t, err)
	require.NoError(t, b.Disconnect(ctx, "git"))

	res, err := b.Connect(ctx, "git")
	require.NoError(t, err)
	assert.False(t, res.AlreadyConnected)
	assert.Equal(t, 2, dialer.dialCount("git"))
}

func TestFlatIdentifierCollision(t *testing.T) {
	dialer := newFakeDialer(toolsByBackend(map[string][]string{
		"a":   {"b_c"},
		"a_b": {"c"},
	}))
	b := initialized(t, newTestBroker(t, dialer, Options{}, "a", "a_b"))
	ctx := context.Background()

	_, err := b.Connect(ctx, "a")
	require.NoError(t, err)
	_, err = b.Connect(ctx, "a_b")
	require.NoError(t, err)

	owner, ok := b.LookupFlat("a_b_c")
	require.True(t, ok)
	assert.Equal(t, ToolID{Backend: "a", Name: "b_c"}, owner.ID)

	res := b.Execute(ctx, "a_b", "c", nil)
	require.False(t, res.IsError, res.Text)
	assert.Equal(t, "a_b:c", res.Text)

	require.NoError(t, b.Disconnect(ctx, "a"))
	_, ok = b.LookupFlat("a_b_c")
	assert.False(t, ok)
	_, ok = b.Lookup(ToolID{Backend: "a_b", Name: "c"})
	assert.True(t, ok)
}

func TestKnownBackends(t *testing.T) {
	dialer := newFakeDialer(toolsByBackend(map[string][]string{"git": {"status", "log"}, "fs": {"read"}}))
	b := initialized(t, newTestBroker(t, dialer, Options{}, "git", "fs"))

	_, err := b.Connect(context.Background(), "git")
	require.NoError(t, err)

	statuses := b.KnownBackends()
	require.Len(t, statuses, 2)
	assert.Equal(t, "fs", statuses[0].Descriptor.Name)
	assert.False(t, statuses[0].Connected)
	assert.Equal(t, "git", statuses[1].Descriptor.Name)
	assert.True(t, statuses[1].Connected)
	assert.Equal(t, 2, statuses[1].ToolCount)
	assert.False(t, statuses[1].ConnectedAt.IsZero())

	assert.True(t, b.Configured("fs"))
	assert.False(t, b.Configured("nope"))
}

func TestOnChange_OrderedEvents(t *testing.T) {
	dialer := newFakeDialer(toolsByBackend(map[string][]string{"git": {"status"}}))
	b := newTestBroker(t, dialer, Options{}, "git")
	require.NoError(t, b.Initialize(context.Background()).Err())

	var (
		mu     sync.Mutex
		events []ChangeEvent
	)
	unsubscribe := b.OnChange(func(ev ChangeEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	ctx := context.Background()
	_, err := b.Connect(ctx, "git")
	require.NoError(t, err)
	require.NoError(t, b.Disconnect(ctx, "git"))
	_, err = b.Connect(ctx, "git")
	require.NoError(t, err)
	require.NoError(t, b.Shutdown(ctx))

	unsubscribe()
	require.NoError(t, b.Initialize(ctx).Err())
	_, err = b.Connect(ctx, "git")
	require.NoError(t, err)
	require.NoError(t, b.Shutdown(ctx))

	mu.Lock()
	defer mu.Unlock()
	kinds := make([]EventKind, 0, len(events))
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []EventKind{EventConnected, EventDisconnected, EventConnected, EventCleared}, kinds)
	require.Len(t, events[0].Tools, 1)
	assert.Equal(t, "git_status", events[0].Tools[0].ID.String())
	assert.Equal(t, "disconnected", events[1].Kind.String())
}

func TestHeaderRoundTripper(t *testing.T) {
	client := httpClientWithHeaders(map[string]string{"Authorization": "Bearer x", " ": "skip"})
	require.NotNil(t, client)
	rt, ok := client.Transport.(*headerRoundTripper)
	require.True(t, ok)
	assert.Equal(t, map[string]string{"Authorization": "Bearer x"}, rt.headers)

	assert.Nil(t, httpClientWithHeaders(nil))
	assert.Nil(t, httpClientWithHeaders(map[string]string{"": "v"}))
}

func TestMCPSession_ListToolsAndCall(t *testing.T) {
	dialer := demoDialer(t)
	session, err := dialer.Dial(context.Background(), backend.Descriptor{Name: "demo"})
	require.NoError(t, err)
	defer func() { _ = session.Close() }()

	tools, err := session.ListTools(context.Background())
	require.NoError(t, err)
	assert.Len(t, tools, 5)

	res, err := session.CallTool(context.Background(), "sum_two_numbers", map[string]any{"a": 2, "b": 3})
	require.NoError(t, err)
	assert.Equal(t, "5", NormalizeResult(res))

	_, err = session.CallTool(context.Background(), "get_current_time", nil)
	require.NoError(t, err)
}
