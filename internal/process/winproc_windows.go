//go:build windows

package process

import (
	"fmt"
	"os/exec"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	createSuspended        = 0x00000004
	createNewProcessGroup  = 0x00000200
	createNoWindow         = 0x08000000
	detachedProcess        = 0x00000008
	jobObjectLimitKillOnJC = 0x2000

	procQueryLimitedInfo = windows.PROCESS_QUERY_LIMITED_INFORMATION
)

// Exists reports whether pid refers to a live process, using a limited-info
// handle open so it works even for processes this process cannot fully
// query (the classifier must be able to see a PID exists before it can
// decide whether to protect it).
func Exists(pid int32) bool {
	h, err := windows.OpenProcess(procQueryLimitedInfo, false, uint32(pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(h)
	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err != nil {
		return false
	}
	const stillActive = 259
	return code == stillActive
}

// CreateTimeUnix returns pid's creation time as Unix seconds, via
// GetProcessTimes. It is the authoritative source for PID-reuse detection.
func CreateTimeUnix(pid int32) (int64, error) {
	h, err := windows.OpenProcess(procQueryLimitedInfo, false, uint32(pid))
	if err != nil {
		return 0, fmt.Errorf("open process %d: %w", pid, err)
	}
	defer windows.CloseHandle(h)

	var creation, exit, kernel, user windows.Filetime
	if err := windows.GetProcessTimes(h, &creation, &exit, &kernel, &user); err != nil {
		return 0, fmt.Errorf("get process times %d: %w", pid, err)
	}
	return filetimeToUnix(creation), nil
}

func filetimeToUnix(ft windows.Filetime) int64 {
	const epochDiff = 11644473600
	ticks := int64(ft.HighDateTime)<<32 | int64(ft.LowDateTime)
	return ticks/10_000_000 - epochDiff
}

// Terminate opens pid with PROCESS_TERMINATE and calls TerminateProcess with
// the given exit code. ERROR_ACCESS_DENIED and ERROR_INVALID_PARAMETER are
// both mapped to ErrNotFound/permission errors the caller can classify
// without leaking OS-specific detail to an untrusted caller.
func Terminate(pid int32, exitCode uint32) error {
	h, err := windows.OpenProcess(windows.PROCESS_TERMINATE, false, uint32(pid))
	if err != nil {
		if err == windows.ERROR_INVALID_PARAMETER {
			return ErrNotFound
		}
		return fmt.Errorf("open process %d for terminate: %w", pid, err)
	}
	defer windows.CloseHandle(h)
	if err := windows.TerminateProcess(h, exitCode); err != nil {
		return fmt.Errorf("terminate process %d: %w", pid, err)
	}
	return nil
}

// Job wraps a Windows job object used to atomically bound and kill a spawned
// process's entire descendant tree, even when the tree re-parents processes
// onto csrss (see spec note on job-object-anchored trees vs BFS walks).
type Job struct {
	handle windows.Handle
}

// NewJob creates an unnamed job object configured to terminate every
// assigned process as soon as the job handle is closed, so a crashed
// registry entry can never leak an orphaned tree.
func NewJob() (*Job, error) {
	h, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create job object: %w", err)
	}
	info := windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION{
		BasicLimitInformation: windows.JOBOBJECT_BASIC_LIMIT_INFORMATION{
			LimitFlags: jobObjectLimitKillOnJC,
		},
	}
	if _, err := windows.SetInformationJobObject(
		h,
		windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)),
		uint32(unsafe.Sizeof(info)),
	); err != nil {
		windows.CloseHandle(h)
		return nil, fmt.Errorf("configure job object: %w", err)
	}
	return &Job{handle: h}, nil
}

// Assign adds pid's process handle to the job. Must be called while the
// process is still suspended (see SpawnSuspended) to avoid the window in
// which an unassigned child could fork before it is bound to the job.
func (j *Job) Assign(pid int32) error {
	h, err := windows.OpenProcess(windows.PROCESS_SET_QUOTA|windows.PROCESS_TERMINATE, false, uint32(pid))
	if err != nil {
		return fmt.Errorf("open process %d for job assignment: %w", pid, err)
	}
	defer windows.CloseHandle(h)
	return windows.AssignProcessToJobObject(j.handle, h)
}

// TerminateAll kills every process currently assigned to the job.
func (j *Job) TerminateAll(exitCode uint32) error {
	return windows.TerminateJobObject(j.handle, exitCode)
}

// Close releases the job handle. With LimitFlags set to kill-on-close, this
// also terminates any process still assigned to the job.
func (j *Job) Close() error {
	return windows.CloseHandle(j.handle)
}

// SpawnResult is the outcome of SpawnSuspended: the live child plus the job
// it has already been bound to.
type SpawnResult struct {
	Cmd *exec.Cmd
	Job *Job
	PID int32
}

// SpawnSuspended starts cmd with CREATE_SUSPENDED, assigns the new process
// to a fresh job object, and only then resumes its main thread. This closes
// the race present in naive "spawn, then assign to job" sequences, where a
// fast-forking child could escape the job before assignment completes.
func SpawnSuspended(cmd *exec.Cmd) (*SpawnResult, error) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.CreationFlags |= createSuspended | createNewProcessGroup | createNoWindow

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start suspended process: %w", err)
	}
	pid := int32(cmd.Process.Pid)

	job, err := NewJob()
	if err != nil {
		_ = Terminate(pid, 1)
		return nil, err
	}
	if err := job.Assign(pid); err != nil {
		job.Close()
		_ = Terminate(pid, 1)
		return nil, err
	}
	if err := resumeMainThread(pid); err != nil {
		job.Close()
		_ = Terminate(pid, 1)
		return nil, fmt.Errorf("resume suspended process %d: %w", pid, err)
	}
	return &SpawnResult{Cmd: cmd, Job: job, PID: pid}, nil
}

func resumeMainThread(pid int32) error {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPTHREAD, 0)
	if err != nil {
		return err
	}
	defer windows.CloseHandle(snap)

	var te windows.ThreadEntry32
	te.Size = uint32(unsafe.Sizeof(te))
	if err := windows.Thread32First(snap, &te); err != nil {
		return err
	}
	for {
		if int32(te.OwnerProcessID) == pid {
			th, err := windows.OpenThread(windows.THREAD_SUSPEND_RESUME, false, te.ThreadID)
			if err == nil {
				_, rerr := windows.ResumeThread(th)
				windows.CloseHandle(th)
				return rerr
			}
		}
		if err := windows.Thread32Next(snap, &te); err != nil {
			break
		}
	}
	return fmt.Errorf("no thread found for pid %d", pid)
}
