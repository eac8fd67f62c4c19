package spawn

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsInterpreterWrapper(t *testing.T) {
	assert.True(t, isInterpreterWrapper("cmd.exe"))
	assert.True(t, isInterpreterWrapper("conhost.exe"))
	assert.False(t, isInterpreterWrapper("python.exe"))
	assert.False(t, isInterpreterWrapper(""))
}

func newTestRegistry(t *testing.T) *Registry {
	r := NewRegistry()
	t.Cleanup(func() {
		close(r.stopReaper)
		<-r.reaperDone
	})
	return r
}

func TestRegistry_LookupAndContains(t *testing.T) {
	r := newTestRegistry(t)
	rec := &Record{PID: 4242, WrapperPID: 4242, Command: "echo hi", status: StatusRunning}

	r.mu.Lock()
	r.entries[rec.PID] = rec
	r.mu.Unlock()

	got, ok := r.Lookup(4242)
	require.True(t, ok)
	assert.Equal(t, int32(4242), got.PID)
	assert.True(t, r.Contains(4242))
	assert.False(t, r.Contains(9999))
}

func TestRegistry_WrapperAndActualPIDBothResolve(t *testing.T) {
	r := newTestRegistry(t)
	rec := &Record{PID: 500, WrapperPID: 499, Command: "npm run dev", status: StatusRunning}

	r.mu.Lock()
	r.entries[rec.PID] = rec
	r.entries[rec.WrapperPID] = rec
	r.mu.Unlock()

	_, okWrapper := r.Lookup(499)
	_, okActual := r.Lookup(500)
	assert.True(t, okWrapper)
	assert.True(t, okActual)

	list := r.List()
	require.Len(t, list, 1, "wrapper/actual alias must not be double-counted")
}

func TestRegistry_RemoveClearsBothKeys(t *testing.T) {
	r := newTestRegistry(t)
	rec := &Record{PID: 77, WrapperPID: 76, status: StatusExited}

	r.mu.Lock()
	r.entries[rec.PID] = rec
	r.entries[rec.WrapperPID] = rec
	r.mu.Unlock()

	r.Remove(77)

	assert.False(t, r.Contains(77))
	assert.False(t, r.Contains(76))
}

func TestRecord_TerminateGroup_NoGroupReturnsFalse(t *testing.T) {
	rec := &Record{PID: 1, status: StatusRunning}
	handled, err := rec.TerminateGroup()
	require.NoError(t, err)
	assert.False(t, handled, "record without a job handle must signal fallback to tree termination")
}

func TestRecord_Snapshot_IsValueCopy(t *testing.T) {
	rec := &Record{PID: 10, Command: "node server.js", StartedAt: time.Now(), status: StatusRunning}
	snap := rec.Snapshot()
	assert.Equal(t, rec.PID, snap.PID)
	assert.Equal(t, rec.Command, snap.Command)
}

func TestLimitedWriter_TruncatesAtLimit(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, limit: 4}
	n, err := lw.Write([]byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, 11, n, "Write must report the full length to the caller even when truncated")
	assert.Equal(t, 4, buf.Len())
}
