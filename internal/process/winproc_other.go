//go:build !windows

package process

import (
	"fmt"
	"os/exec"
)

// ErrUnsupported is returned by every Windows-only primitive on other
// platforms. This module targets Windows exclusively; the stub exists so
// the package still type-checks in cross-platform tooling.
var ErrUnsupported = fmt.Errorf("process: windows-only operation")

func Exists(pid int32) bool { return false }

func CreateTimeUnix(pid int32) (int64, error) { return 0, ErrUnsupported }

func Terminate(pid int32, exitCode uint32) error { return ErrUnsupported }

type Job struct{}

func NewJob() (*Job, error) { return nil, ErrUnsupported }

func (j *Job) Assign(pid int32) error { return ErrUnsupported }

func (j *Job) TerminateAll(exitCode uint32) error { return ErrUnsupported }

func (j *Job) Close() error { return nil }

type SpawnResult struct {
	Cmd *exec.Cmd
	Job *Job
	PID int32
}

func SpawnSuspended(cmd *exec.Cmd) (*SpawnResult, error) { return nil, ErrUnsupported }
