// Package process provides the OS-level process snapshot primitives shared
// by the protection classifier, inspector, port scanner, spawn registry and
// termination engine: enumerating processes, walking parent/child
// relationships, and opening/terminating native handles on Windows.
package process

import (
	"fmt"
	"strings"
	"time"

	gpproc "github.com/shirou/gopsutil/v4/process"
)

// Descriptor is the OS-level snapshot of a single process. It carries no
// safety or registry state — those are layered on by the classify, spawn and
// inspect packages. Name is never empty for a live process; Memory is never
// negative; Children never contains the descriptor's own PID.
type Descriptor struct {
	PID        int32
	Name       string
	CmdLine    string
	ExePath    string
	WorkDir    string
	ParentPID  int32
	CreatedAt  time.Time
	MemoryByte uint64
	CPUPercent *float64 // nil unless sampled
	Threads    int32
	Children   []int32
}

// BaseName returns the lowercased executable base name used throughout the
// protection classifier's pattern matching.
func (d Descriptor) BaseName() string {
	return strings.ToLower(lastPathComponent(d.Name))
}

func lastPathComponent(p string) string {
	p = strings.ReplaceAll(p, "/", `\`)
	if i := strings.LastIndexByte(p, '\\'); i >= 0 {
		return p[i+1:]
	}
	return p
}

// Snapshot fetches a single Descriptor for pid. It returns ErrNotFound when
// the process no longer exists, which callers must distinguish from an
// access/permission failure so the protection classifier can fail safe.
func Snapshot(pid int32) (Descriptor, error) {
	p, err := gpproc.NewProcess(pid)
	if err != nil {
		return Descriptor{}, ErrNotFound
	}
	return fromGopsutil(p)
}

// CheapSnapshot fetches only PID, name and command line — the two-pass
// enumeration's pass-1 fields (spec §4.2).
func CheapSnapshot(p *gpproc.Process) (Descriptor, error) {
	name, err := p.Name()
	if err != nil || name == "" {
		return Descriptor{}, ErrNotFound
	}
	cmdline, _ := p.Cmdline()
	return Descriptor{PID: p.Pid, Name: name, CmdLine: cmdline}, nil
}

func fromGopsutil(p *gpproc.Process) (Descriptor, error) {
	name, err := p.Name()
	if err != nil || name == "" {
		return Descriptor{}, ErrNotFound
	}
	cmdline, _ := p.Cmdline()
	exe, _ := p.Exe()
	ppid, _ := p.Ppid()
	createMs, _ := p.CreateTime()
	threads, _ := p.NumThreads()
	cwd, _ := p.Cwd()

	d := Descriptor{
		PID:       p.Pid,
		Name:      name,
		CmdLine:   cmdline,
		ExePath:   exe,
		WorkDir:   cwd,
		ParentPID: ppid,
		CreatedAt: time.UnixMilli(createMs),
		Threads:   threads,
	}
	if mi, err := p.MemoryInfo(); err == nil && mi != nil {
		d.MemoryByte = mi.RSS
	}
	return d, nil
}

// EnrichMemoryCPUChildren fills in the costlier fields (pass-2 of the
// two-pass enumeration): memory, CPU percent (sampled over the given
// interval, 0 to skip), thread count, and an immediate-children PID list.
func EnrichMemoryCPUChildren(d *Descriptor, p *gpproc.Process, cpuInterval time.Duration, withChildren bool) {
	if mi, err := p.MemoryInfo(); err == nil && mi != nil {
		d.MemoryByte = mi.RSS
	}
	if threads, err := p.NumThreads(); err == nil {
		d.Threads = threads
	}
	if cpuInterval > 0 {
		before, _ := p.Times()
		time.Sleep(cpuInterval)
		after, err := p.Times()
		if err == nil && before != nil {
			busy := (after.User - before.User) + (after.System - before.System)
			pct := busy / cpuInterval.Seconds() * 100
			d.CPUPercent = &pct
		}
	}
	if withChildren {
		if kids, err := p.Children(); err == nil {
			ids := make([]int32, 0, len(kids))
			for _, k := range kids {
				if k.Pid != d.PID {
					ids = append(ids, k.Pid)
				}
			}
			d.Children = ids
		}
	}
}

// ParentChain walks up to maxDepth ancestors starting at pid's parent,
// stopping early if a PID repeats (defends against mid-walk PID reuse
// loops, per design note on cyclic parent-child relations).
func ParentChain(pid int32, maxDepth int) []Descriptor {
	visited := map[int32]bool{pid: true}
	chain := make([]Descriptor, 0, maxDepth)
	cur := pid
	for i := 0; i < maxDepth; i++ {
		p, err := gpproc.NewProcess(cur)
		if err != nil {
			break
		}
		ppid, err := p.Ppid()
		if err != nil || ppid == 0 || visited[ppid] {
			break
		}
		visited[ppid] = true
		pp, err := gpproc.NewProcess(ppid)
		if err != nil {
			break
		}
		d, err := CheapSnapshot(pp)
		if err != nil {
			break
		}
		chain = append(chain, d)
		cur = ppid
	}
	return chain
}

// ImmediateChildren returns cheap descriptors of pid's direct children.
func ImmediateChildren(pid int32) []Descriptor {
	p, err := gpproc.NewProcess(pid)
	if err != nil {
		return nil
	}
	kids, err := p.Children()
	if err != nil {
		return nil
	}
	out := make([]Descriptor, 0, len(kids))
	for _, k := range kids {
		if d, err := CheapSnapshot(k); err == nil {
			out = append(out, d)
		}
	}
	return out
}

// ErrNotFound indicates the target PID no longer refers to a live process.
var ErrNotFound = fmt.Errorf("process: not found")
