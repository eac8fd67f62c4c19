// Package ports implements the Port Scanner: determine which development
// ports are bound by a listener and identify the owning process.
package ports

import (
	"context"
	"strconv"
	"sync"
	"time"

	gpnet "github.com/shirou/gopsutil/v4/net"

	"github.com/devtab-sh/secure-dev-manager/internal/inspect"
)

// DefaultWatchedPorts is the fixed catalogue of development ports probed
// by every check_ports call with no explicit port argument.
var DefaultWatchedPorts = []int{3000, 5000, 8000, 8080, 5173, 4200}

// maxWorkers and scanBudget bound the bounded worker pool's concurrency
// and total wall-clock time.
const (
	maxWorkers = 6
	scanBudget = 500 * time.Millisecond
)

// serviceLabels maps a well-known port to a human label. Unknown ports are
// labelled "Custom".
var serviceLabels = map[int]string{
	3000: "React Dev Server",
	5000: "Flask/Node Server",
	8000: "Django/FastAPI Server",
	8080: "Generic HTTP Server",
	5173: "Vite Dev Server",
	4200: "Angular Dev Server",
}

// Status names a port entry's observed state.
type Status string

const (
	Active   Status = "Active"
	Inactive Status = "Inactive"
	Unknown  Status = "Unknown"
)

// Entry is a single port's scan result.
type Entry struct {
	Port            int
	ServiceLabel    string
	Status          Status
	OwningProcess   *inspect.ProcessDescriptor
	ExtraProcesses  []int32
}

// Scanner determines listener ownership for a set of ports.
type Scanner struct {
	inspector *inspect.Inspector
}

// New constructs a Scanner backed by the given Inspector (used at Instant
// tier to attach the owning process's PID and name; no children count is
// attached).
func New(inspector *inspect.Inspector) *Scanner {
	return &Scanner{inspector: inspector}
}

// Scan probes the given ports in parallel with a bounded worker pool.
// scanBudget bounds only the TCP connection-table snapshot; the per-port
// owning-process lookups that follow run without a deadline.
func (s *Scanner) Scan(ctx context.Context, requestedPorts []int) (map[int]Entry, error) {
	ports := requestedPorts
	if len(ports) == 0 {
		ports = DefaultWatchedPorts
	}

	ctx, cancel := context.WithTimeout(ctx, scanBudget)
	defer cancel()

	conns, err := gpnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return nil, err
	}

	listenersByPort := make(map[int][]int32)
	for _, c := range conns {
		if c.Status != "LISTEN" {
			continue
		}
		listenersByPort[int(c.Laddr.Port)] = append(listenersByPort[int(c.Laddr.Port)], c.Pid)
	}

	results := make(map[int]Entry, len(ports))
	var mu sync.Mutex
	sem := make(chan struct{}, maxWorkers)
	var wg sync.WaitGroup

	for _, port := range ports {
		port := port
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			entry := s.scanOne(port, listenersByPort[port])
			mu.Lock()
			results[port] = entry
			mu.Unlock()
		}()
	}
	wg.Wait()

	return results, nil
}

func (s *Scanner) scanOne(port int, pids []int32) Entry {
	entry := Entry{Port: port, ServiceLabel: label(port)}
	if len(pids) == 0 {
		entry.Status = Inactive
		return entry
	}
	entry.Status = Active

	owner := pids[0]
	extras := pids[1:]

	descs, err := s.inspector.Find(itoa(owner), inspect.Options{Tier: inspect.Instant})
	if err == nil && len(descs) > 0 {
		d := descs[0]
		entry.OwningProcess = &d
	}
	if len(extras) > 0 {
		entry.ExtraProcesses = extras
	}
	return entry
}

// FindByPort resolves the owning process for a single port at Quick tier,
// returning nil with no error when the port has no listener (the operation
// is a lookup, not a guarantee of activity).
func (s *Scanner) FindByPort(ctx context.Context, port int) (*inspect.ProcessDescriptor, error) {
	results, err := s.Scan(ctx, []int{port})
	if err != nil {
		return nil, err
	}
	entry := results[port]
	if entry.Status != Active || entry.OwningProcess == nil {
		return nil, nil
	}
	descs, err := s.inspector.Find(itoa(entry.OwningProcess.PID), inspect.Options{Tier: inspect.Quick})
	if err != nil || len(descs) == 0 {
		return entry.OwningProcess, nil
	}
	return &descs[0], nil
}

func label(port int) string {
	if l, ok := serviceLabels[port]; ok {
		return l
	}
	return "Custom"
}

func itoa(pid int32) string {
	return strconv.Itoa(int(pid))
}
