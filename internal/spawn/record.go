// Package spawn implements the Spawn Registry: bookkeeping for every
// background process the server itself started, and the OS handles
// (job objects) that bound their descendant trees.
package spawn

import (
	"sync"
	"time"

	"github.com/devtab-sh/secure-dev-manager/internal/process"
)

// Status mirrors a spawn record's lifecycle state.
type Status string

const (
	StatusRunning Status = "Running"
	StatusExited  Status = "Exited"
	StatusKilled  Status = "Killed"
	StatusUnknown Status = "Unknown"
)

// Record is the registry's bookkeeping entry for one background spawn.
// WrapperPID is the cmd.exe process that was spawned; PID is the actual
// target process resolved beneath it, or equals WrapperPID when no
// non-wrapper child appeared within the resolution window.
type Record struct {
	mu sync.Mutex

	PID        int32
	WrapperPID int32
	Command    string
	WorkDir    string
	StartedAt  time.Time
	CreatedAt  int64 // Unix seconds, from GetProcessTimes; guards PID reuse

	job      *process.Job
	status   Status
	exitCode int
	// pendingSince records when we first observed the process gone, so the
	// reaper can wait one further probe cycle before eviction (spec's
	// "observe terminal state" grace window).
	pendingSince time.Time
}

func (r *Record) snapshotLocked() Record {
	return Record{
		PID: r.PID, WrapperPID: r.WrapperPID, Command: r.Command,
		WorkDir: r.WorkDir, StartedAt: r.StartedAt, CreatedAt: r.CreatedAt,
		status: r.status, exitCode: r.exitCode,
	}
}

// Snapshot returns a value copy safe to hand to callers outside the lock.
func (r *Record) Snapshot() Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// CurrentStatus returns the record's current lifecycle status.
func (r *Record) CurrentStatus() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// ExitCode returns the observed exit code; only meaningful once Status is
// Exited.
func (r *Record) ExitCode() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exitCode
}

// HasGroup reports whether this record owns a live job-object handle.
func (r *Record) HasGroup() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.job != nil
}

// TerminateGroup atomically kills every process bound to this record's job
// object. Returns false if the record has no group (caller must fall back
// to tree termination).
func (r *Record) TerminateGroup() (bool, error) {
	r.mu.Lock()
	j := r.job
	r.mu.Unlock()
	if j == nil {
		return false, nil
	}
	if err := j.TerminateAll(1); err != nil {
		return true, err
	}
	r.mu.Lock()
	r.status = StatusKilled
	r.mu.Unlock()
	return true, nil
}

func (r *Record) closeGroup() {
	r.mu.Lock()
	j := r.job
	r.job = nil
	r.mu.Unlock()
	if j != nil {
		_ = j.Close()
	}
}
