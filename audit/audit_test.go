package audit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/toolbridge/registry"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpen_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a", "b", "audit.db")

	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestRecordCallAndRecent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.RecordCall(ctx, registry.CallRecord{
		RequestID: "req-1",
		Backend:   "demo",
		Tool:      "calculate",
		Arguments: map[string]any{"expression": "2+2"},
		StartedAt: base,
		Duration:  15 * time.Millisecond,
	}))
	require.NoError(t, store.RecordCall(ctx, registry.CallRecord{
		RequestID: "req-2",
		Backend:   "git",
		Tool:      "status",
		IsError:   true,
		ErrorKind: "timeout",
		Message:   "operation timed out",
		StartedAt: base.Add(time.Second),
		Duration:  2 * time.Second,
	}))

	entries, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	newest := entries[0]
	assert.Equal(t, "req-2", newest.RequestID)
	assert.True(t, newest.IsError)
	assert.Equal(t, "timeout", newest.ErrorKind)
	assert.Equal(t, "operation timed out", newest.Message)
	assert.EqualValues(t, 2000, newest.DurationMS)
	assert.Nil(t, newest.Arguments)

	oldest := entries[1]
	assert.Equal(t, "calculate", oldest.Tool)
	assert.False(t, oldest.IsError)
	assert.JSONEq(t, `{"expression":"2+2"}`, string(oldest.Arguments))
	assert.True(t, oldest.StartedAt.Equal(base))
	assert.NotEmpty(t, oldest.ID)

	limited, err := store.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "req-2", limited[0].RequestID)
}

func TestSummarize(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for i, rec := range []registry.CallRecord{
		{Backend: "git", Tool: "status"},
		{Backend: "git", Tool: "log", IsError: true},
		{Backend: "demo", Tool: "calculate"},
	} {
		rec.RequestID = "r"
		rec.StartedAt = now.Add(time.Duration(i) * time.Millisecond)
		require.NoError(t, store.RecordCall(ctx, rec))
	}

	summary, err := store.Summarize(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Summary{
		{Backend: "demo", Calls: 1, Failures: 0},
		{Backend: "git", Calls: 2, Failures: 1},
	}, summary)
}

func TestStoreImplementsRecorder(t *testing.T) {
	var _ registry.Recorder = (*Store)(nil)
}
