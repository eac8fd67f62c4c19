package spawn

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/devtab-sh/secure-dev-manager/internal/process"
)

// reaperInterval matches the registry's probe cadence from spec: a record
// is evicted once it has been observed exited for one further cycle.
const reaperInterval = 1 * time.Second

// maxCapturedOutputBytes bounds the output buffer for foreground command
// execution so a runaway process cannot exhaust memory.
const maxCapturedOutputBytes = 1 << 20 // 1 MiB

// Registry owns every spawn record and the job-object handles they bind.
// Mutations happen only from the dispatcher goroutine and the reaper; it is
// read freely via List/Lookup/Contains.
type Registry struct {
	mu      sync.Mutex
	entries map[int32]*Record

	stopReaper chan struct{}
	reaperDone chan struct{}
}

// NewRegistry constructs an empty registry and starts its background
// reaper. Callers own the returned Registry's lifetime and must call
// Shutdown.
func NewRegistry() *Registry {
	r := &Registry{
		entries:    make(map[int32]*Record),
		stopReaper: make(chan struct{}),
		reaperDone: make(chan struct{}),
	}
	go r.reapLoop()
	return r
}

// ExecuteSpec describes a validated command to run. Whitelist validation
// happens upstream of the core; by the time Execute sees a command it is
// already authorised.
type ExecuteSpec struct {
	Command    string
	WorkDir    string
	Background bool
}

// ExecuteResult is returned for a foreground command; Output is truncated
// at maxCapturedOutputBytes.
type ExecuteResult struct {
	PID        int32
	WrapperPID int32
	ExitCode   int
	Output     string
	Truncated  bool
}

// Execute runs spec.Command. When Background is false it blocks until the
// command exits and returns captured output without registering a record.
// When Background is true it spawns the command under a fresh job object,
// resolves the real target PID past any cmd.exe wrapper, registers a
// Record, and returns immediately.
func (r *Registry) Execute(ctx context.Context, spec ExecuteSpec) (*ExecuteResult, *Record, error) {
	if spec.Background {
		rec, err := r.executeBackground(spec)
		return nil, rec, err
	}
	res, err := executeForeground(ctx, spec)
	return res, nil, err
}

func executeForeground(ctx context.Context, spec ExecuteSpec) (*ExecuteResult, error) {
	cmd := exec.CommandContext(ctx, "cmd.exe", "/c", spec.Command)
	cmd.Dir = spec.WorkDir

	var buf bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &buf, limit: maxCapturedOutputBytes}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn: start foreground command: %w", err)
	}
	pid := int32(cmd.Process.Pid)
	err := cmd.Wait()

	exitCode := 0
	if ee, ok := err.(*exec.ExitError); ok {
		exitCode = ee.ExitCode()
	} else if err != nil {
		return nil, fmt.Errorf("spawn: run foreground command: %w", err)
	}
	return &ExecuteResult{
		PID:       pid,
		ExitCode:  exitCode,
		Output:    buf.String(),
		Truncated: buf.Len() >= maxCapturedOutputBytes,
	}, nil
}

func (r *Registry) executeBackground(spec ExecuteSpec) (*Record, error) {
	cmd := exec.Command("cmd.exe", "/c", spec.Command)
	cmd.Dir = spec.WorkDir

	sr, err := process.SpawnSuspended(cmd)
	if err != nil {
		return nil, fmt.Errorf("spawn: background spawn: %w", err)
	}

	wrapperPID := sr.PID
	actualPID := resolveActualPID(wrapperPID)

	createdAt, _ := process.CreateTimeUnix(actualPID)

	rec := &Record{
		PID:        actualPID,
		WrapperPID: wrapperPID,
		Command:    spec.Command,
		WorkDir:    spec.WorkDir,
		StartedAt:  time.Now(),
		CreatedAt:  createdAt,
		job:        sr.Job,
		status:     StatusRunning,
	}

	r.mu.Lock()
	r.entries[rec.PID] = rec
	if rec.WrapperPID != rec.PID {
		r.entries[rec.WrapperPID] = rec
	}
	r.mu.Unlock()

	return rec, nil
}

// resolveActualPID waits up to 1 second for cmd.exe to spawn its real
// target and returns the first non-interpreter descendant PID, or the
// wrapper PID itself if none appears (e.g. the command ran directly).
func resolveActualPID(wrapperPID int32) int32 {
	deadline := time.Now().Add(1 * time.Second)
	for time.Now().Before(deadline) {
		for _, child := range process.ImmediateChildren(wrapperPID) {
			if !isInterpreterWrapper(child.BaseName()) {
				return child.PID
			}
		}
		time.Sleep(25 * time.Millisecond)
	}
	return wrapperPID
}

func isInterpreterWrapper(baseName string) bool {
	switch baseName {
	case "conhost.exe", "cmd.exe":
		return true
	default:
		return false
	}
}

// Lookup returns the record owning pid, checking both actual and wrapper
// PID keys, and whether it exists. Used by the Termination Engine's
// user-spawn guard.
func (r *Registry) Lookup(pid int32) (*Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.entries[pid]
	return rec, ok
}

// Contains reports whether pid is a live spawn-registry entry.
func (r *Registry) Contains(pid int32) bool {
	_, ok := r.Lookup(pid)
	return ok
}

// List returns a snapshot of every current record, deduplicated by actual
// PID (wrapper-PID aliases are not repeated).
func (r *Registry) List() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[int32]bool, len(r.entries))
	out := make([]Record, 0, len(r.entries))
	for _, rec := range r.entries {
		if seen[rec.PID] {
			continue
		}
		seen[rec.PID] = true
		out = append(out, rec.Snapshot())
	}
	return out
}

// Remove deletes a record's entries (both actual and wrapper PID keys) and
// releases its job handle. Called by the reaper and by the Termination
// Engine once a kill has been observed to succeed.
func (r *Registry) Remove(pid int32) {
	r.mu.Lock()
	rec, ok := r.entries[pid]
	if ok {
		delete(r.entries, rec.PID)
		if rec.WrapperPID != rec.PID {
			delete(r.entries, rec.WrapperPID)
		}
	}
	r.mu.Unlock()
	if ok {
		rec.closeGroup()
	}
}

func (r *Registry) reapLoop() {
	defer close(r.reaperDone)
	ticker := time.NewTicker(reaperInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopReaper:
			return
		case <-ticker.C:
			r.reapOnce()
		}
	}
}

func (r *Registry) reapOnce() {
	r.mu.Lock()
	candidates := make([]*Record, 0)
	seen := make(map[int32]bool)
	for _, rec := range r.entries {
		if !seen[rec.PID] {
			seen[rec.PID] = true
			candidates = append(candidates, rec)
		}
	}
	r.mu.Unlock()

	now := time.Now()
	for _, rec := range candidates {
		rec.mu.Lock()
		alive := process.Exists(rec.PID)
		status := rec.status
		pendingSince := rec.pendingSince
		rec.mu.Unlock()

		if alive {
			if status != StatusRunning {
				rec.mu.Lock()
				rec.status = StatusRunning
				rec.pendingSince = time.Time{}
				rec.mu.Unlock()
			}
			continue
		}

		if status == StatusRunning {
			rec.mu.Lock()
			rec.status = StatusExited
			rec.pendingSince = now
			rec.mu.Unlock()
			continue
		}

		if !pendingSince.IsZero() && now.Sub(pendingSince) >= reaperInterval {
			r.Remove(rec.PID)
		}
	}
}

// Shutdown terminates every live record's job object (or best-effort
// process termination for groupless records) and stops the reaper. This
// is the registry's only self-initiated termination, per its contract.
func (r *Registry) Shutdown() {
	close(r.stopReaper)
	<-r.reaperDone

	r.mu.Lock()
	recs := make([]*Record, 0, len(r.entries))
	seen := make(map[int32]bool)
	for _, rec := range r.entries {
		if !seen[rec.PID] {
			seen[rec.PID] = true
			recs = append(recs, rec)
		}
	}
	r.mu.Unlock()

	for _, rec := range recs {
		if ok, _ := rec.TerminateGroup(); !ok {
			_ = process.Terminate(rec.PID, 1)
		}
		rec.closeGroup()
	}
}

type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	remaining := lw.limit - lw.w.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		lw.w.Write(p[:remaining])
		return len(p), nil
	}
	lw.w.Write(p)
	return len(p), nil
}
