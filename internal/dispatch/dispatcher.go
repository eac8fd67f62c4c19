package dispatch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/devtab-sh/secure-dev-manager/internal/apierror"
	"github.com/devtab-sh/secure-dev-manager/internal/classify"
	"github.com/devtab-sh/secure-dev-manager/internal/config"
	"github.com/devtab-sh/secure-dev-manager/internal/inspect"
	"github.com/devtab-sh/secure-dev-manager/internal/logger"
	"github.com/devtab-sh/secure-dev-manager/internal/metrics"
	"github.com/devtab-sh/secure-dev-manager/internal/ports"
	"github.com/devtab-sh/secure-dev-manager/internal/spawn"
	"github.com/devtab-sh/secure-dev-manager/internal/terminate"
)

// Dispatcher is the server root: it owns every singleton component
// (protection cache, spawn registry) and exposes the operation set named in
// the core's external interface as one method per operation. It defines no
// tagged operation type; mapping an operation name to its method is left to
// the caller (the stdio loop does it with a string switch).
type Dispatcher struct {
	cfg        config.Config
	classifier *classify.Classifier
	inspector  *inspect.Inspector
	scanner    *ports.Scanner
	registry   *spawn.Registry
	engine     *terminate.Engine
	log        *zap.Logger
	ring       *ring
}

// New constructs a Dispatcher with a fresh set of owned singletons, so
// tests can instantiate an isolated server per test.
func New(cfg config.Config, debugLog *zap.Logger) *Dispatcher {
	classifier := classify.New(cfg.Tokens)
	inspector := inspect.New(classifier, cfg.Tokens)
	registry := spawn.NewRegistry()
	scanner := ports.New(inspector)
	engine := terminate.New(classifier, registry)

	return &Dispatcher{
		cfg:        cfg,
		classifier: classifier,
		inspector:  inspector,
		scanner:    scanner,
		registry:   registry,
		engine:     engine,
		log:        debugLog,
		ring:       newRing(),
	}
}

// Close releases every background worker owned by the dispatcher (the
// classifier's cache reaper and the spawn registry's reaper/shutdown).
func (d *Dispatcher) Close() {
	d.registry.Shutdown()
	d.classifier.Close()
	if d.log != nil {
		_ = d.log.Sync()
	}
}

// RecentEnvelopes returns up to n of the most recently dispatched
// operation results, for the diagnostic HTTP surface.
func (d *Dispatcher) RecentEnvelopes(n int) []Envelope {
	return d.ring.Last(n)
}

func (d *Dispatcher) finish(operation string, start time.Time, payload interface{}, derr *apierror.Error) Envelope {
	elapsed := time.Since(start)
	var env Envelope
	outcome := logger.OutcomeSuccess
	if derr != nil {
		env = failure(operation, elapsed, derr)
		outcome = logger.OutcomeError
	} else {
		env = success(operation, elapsed, payload)
	}
	metrics.ObserveDispatch(operation, string(outcome), elapsed.Seconds())
	metrics.SetProtectionCacheEntries(d.classifier.CacheSize())
	metrics.SetSpawnRegistrySize(len(d.registry.List()))
	if d.log != nil {
		logger.LogOperation(d.log, operation, elapsed.Seconds(), outcome)
	}
	d.ring.push(env)
	return env
}

// FindProcessRequest is the find_process / ps operation's input.
type FindProcessRequest struct {
	Name            string
	Mode            inspect.Tier
	IncludeArgs     bool
	ShowFullCmdline bool
}

// FindProcessPayload is the find_process / ps operation's success payload.
type FindProcessPayload struct {
	Processes []inspect.ProcessDescriptor `json:"processes"`
	Count     int                         `json:"count"`
}

// FindProcess implements find_process / ps.
func (d *Dispatcher) FindProcess(req FindProcessRequest) Envelope {
	start := time.Now()
	descs, err := d.inspector.Find(req.Name, inspect.Options{
		Tier:        req.Mode,
		IncludeArgs: req.IncludeArgs,
		FullCmdline: req.ShowFullCmdline,
	})
	if err != nil {
		derr := apierror.New(apierror.KindInvalidArgument, err.Error(), "use a query of at least 2 characters, or an exact PID", "very short queries would match too broadly to be useful")
		return d.finish("find_process", start, nil, derr)
	}
	metrics.IncScanned(string(req.Mode), len(descs))
	metrics.IncMatched(string(req.Mode), len(descs))
	return d.finish("find_process", start, FindProcessPayload{Processes: descs, Count: len(descs)}, nil)
}

// KillProcessRequest is the kill_process / kill operation's input.
type KillProcessRequest struct {
	PID      int32
	Force    bool
	Override bool
	DryRun   bool
}

// KillProcess implements kill_process / kill.
func (d *Dispatcher) KillProcess(req KillProcessRequest) Envelope {
	start := time.Now()
	res, derr := d.engine.KillOne(req.PID, terminate.KillOneOptions{
		Force:             req.Force,
		OverrideUserSpawn: req.Override,
		DryRun:            req.DryRun,
	})
	if derr != nil {
		return d.finish("kill_process", start, nil, derr)
	}
	return d.finish("kill_process", start, res, nil)
}

// KillProcessTreeRequest is the kill_process_tree / killall operation's
// input.
type KillProcessTreeRequest struct {
	PID    int32
	Force  bool
	DryRun bool
}

// KillProcessTreePayload is the kill_process_tree / killall success
// payload.
type KillProcessTreePayload struct {
	ProcessesKilled int              `json:"processes_killed"`
	Tree            []PidName        `json:"tree"`
	Method          terminate.Method `json:"method"`
}

// PidName is a minimal (pid, name) pair used in tree-termination summaries.
type PidName struct {
	PID  int32  `json:"pid"`
	Name string `json:"name"`
}

// KillProcessTree implements kill_process_tree / killall.
func (d *Dispatcher) KillProcessTree(req KillProcessTreeRequest) Envelope {
	start := time.Now()
	res, derr := d.engine.KillTree(req.PID, terminate.KillTreeOptions{Force: req.Force, DryRun: req.DryRun})
	if derr != nil {
		return d.finish("kill_process_tree", start, nil, derr)
	}
	tree := make([]PidName, 0, len(res.Tree))
	for _, p := range res.Tree {
		tree = append(tree, PidName{PID: p.PID, Name: p.Name})
	}
	payload := KillProcessTreePayload{
		ProcessesKilled: len(res.KilledPIDs),
		Tree:            tree,
		Method:          res.Method,
	}
	return d.finish("kill_process_tree", start, payload, nil)
}

// CheckPortsPayload is the check_ports / netstat success payload.
type CheckPortsPayload struct {
	Ports           map[int]ports.Entry `json:"ports"`
	DeveloperHints  []string            `json:"developer_hints"`
}

// CheckPorts implements check_ports / netstat.
func (d *Dispatcher) CheckPorts(ctx context.Context, requestedPort *int) Envelope {
	start := time.Now()
	var requested []int
	if requestedPort != nil {
		requested = []int{*requestedPort}
	}
	entries, err := d.scanner.Scan(ctx, requested)
	if err != nil {
		return d.finish("check_ports", start, nil, apierror.New(apierror.KindInternal, "port scan failed", "retry the request", "the OS denied access to the connection table").Wrap(err))
	}
	return d.finish("check_ports", start, CheckPortsPayload{Ports: entries, DeveloperHints: developerHints(entries)}, nil)
}

func developerHints(entries map[int]ports.Entry) []string {
	var hints []string
	for port, e := range entries {
		if e.Status == ports.Active && e.OwningProcess != nil {
			hints = append(hints, fmt.Sprintf("port %d is held by pid %d (%s)", port, e.OwningProcess.PID, e.OwningProcess.Name))
		}
	}
	return hints
}

// DevStatusPayload is the dev_status / status success payload.
type DevStatusPayload struct {
	Ports             map[int]ports.Entry         `json:"ports"`
	UserProcesses     []inspect.ProcessDescriptor `json:"user_processes"`
	UserProcessCount  int                         `json:"user_process_count"`
	MCPHealthy        bool                        `json:"mcp_healthy"`
	MCPServerCount    int                         `json:"mcp_server_count"`
	Timestamp         time.Time                   `json:"timestamp"`
}

// DevStatus implements dev_status / status.
func (d *Dispatcher) DevStatus(ctx context.Context) Envelope {
	start := time.Now()
	entries, err := d.scanner.Scan(ctx, nil)
	if err != nil {
		return d.finish("dev_status", start, nil, apierror.New(apierror.KindInternal, "port scan failed", "retry the request", "the OS denied access to the connection table").Wrap(err))
	}

	userProcs := make([]inspect.ProcessDescriptor, 0)
	for _, rec := range d.registry.List() {
		descs, err := d.inspector.Find(pidString(rec.PID), inspect.Options{Tier: inspect.Quick})
		if err == nil && len(descs) > 0 {
			userProcs = append(userProcs, descs[0])
		}
	}

	mcpPIDs := make(map[int32]bool)
	for _, tok := range d.cfg.Tokens.InfrastructureTokens {
		descs, err := d.inspector.Find(tok, inspect.Options{Tier: inspect.Instant, IncludeArgs: true})
		if err != nil {
			continue
		}
		for _, p := range descs {
			mcpPIDs[p.PID] = true
		}
	}
	mcpCount := len(mcpPIDs)

	payload := DevStatusPayload{
		Ports:            entries,
		UserProcesses:    userProcs,
		UserProcessCount: len(userProcs),
		MCPHealthy:       mcpCount > 0,
		MCPServerCount:   mcpCount,
		Timestamp:        time.Now(),
	}
	return d.finish("dev_status", start, payload, nil)
}

// ServerStatusPayload is the server_status success payload.
type ServerStatusPayload struct {
	ManagedServers  []spawn.Record      `json:"managed_servers"`
	PortStatus      map[int]ports.Entry `json:"port_status"`
	DeveloperHints  []string            `json:"developer_hints"`
}

// ServerStatus implements server_status.
func (d *Dispatcher) ServerStatus(ctx context.Context) Envelope {
	start := time.Now()
	entries, err := d.scanner.Scan(ctx, nil)
	if err != nil {
		return d.finish("server_status", start, nil, apierror.New(apierror.KindInternal, "port scan failed", "retry the request", "the OS denied access to the connection table").Wrap(err))
	}
	payload := ServerStatusPayload{
		ManagedServers: d.registry.List(),
		PortStatus:     entries,
		DeveloperHints: developerHints(entries),
	}
	return d.finish("server_status", start, payload, nil)
}

// FindProcessByPort implements find_process_by_port.
func (d *Dispatcher) FindProcessByPort(ctx context.Context, port int) Envelope {
	start := time.Now()
	desc, err := d.scanner.FindByPort(ctx, port)
	if err != nil {
		return d.finish("find_process_by_port", start, nil, apierror.New(apierror.KindInternal, "port lookup failed", "retry the request", "the OS denied access to the connection table").Wrap(err))
	}
	return d.finish("find_process_by_port", start, desc, nil)
}

// CleanupUserProcessesPayload is cleanup_user_processes's success payload.
type CleanupUserProcessesPayload struct {
	Confirmed       bool      `json:"confirmed"`
	WouldKillPIDs   []int32   `json:"would_kill_pids,omitempty"`
	KilledPIDs      []int32   `json:"killed_pids,omitempty"`
	Count           int       `json:"count"`
}

// CleanupUserProcesses implements cleanup_user_processes: iterates every
// spawn registry record, attempting kill_tree on each and falling back to
// kill_one with override_user_spawn=true when kill_tree fails for any
// reason. Without confirm=true it reports the would-kill list only.
func (d *Dispatcher) CleanupUserProcesses(confirm bool) Envelope {
	start := time.Now()
	records := d.registry.List()

	if !confirm {
		pids := make([]int32, 0, len(records))
		for _, r := range records {
			pids = append(pids, r.PID)
		}
		return d.finish("cleanup_user_processes", start, CleanupUserProcessesPayload{
			Confirmed:     false,
			WouldKillPIDs: pids,
			Count:         len(pids),
		}, nil)
	}

	killed := make([]int32, 0, len(records))
	for _, r := range records {
		if res, derr := d.engine.KillTree(r.PID, terminate.KillTreeOptions{}); derr == nil {
			killed = append(killed, res.KilledPIDs...)
			continue
		}
		if _, derr := d.engine.KillOne(r.PID, terminate.KillOneOptions{OverrideUserSpawn: true}); derr == nil {
			killed = append(killed, r.PID)
		}
	}
	return d.finish("cleanup_user_processes", start, CleanupUserProcessesPayload{
		Confirmed:  true,
		KilledPIDs: killed,
		Count:      len(killed),
	}, nil)
}

// ExecuteCommandRequest is the validated (command, cwd, background) triple
// the external whitelist/tool-alias collaborators hand to the core.
type ExecuteCommandRequest struct {
	Command    string
	WorkDir    string
	Background bool
}

// ExecuteCommand implements the server's background-execute path that
// populates the Spawn Registry.
func (d *Dispatcher) ExecuteCommand(ctx context.Context, req ExecuteCommandRequest) Envelope {
	start := time.Now()
	res, rec, err := d.registry.Execute(ctx, spawn.ExecuteSpec{
		Command:    req.Command,
		WorkDir:    req.WorkDir,
		Background: req.Background,
	})
	if err != nil {
		return d.finish("execute_command", start, nil, apierror.New(apierror.KindInternal, "failed to execute command", "verify the command and working directory are valid", "the OS rejected the process creation request").Wrap(err))
	}
	if req.Background {
		return d.finish("execute_command", start, rec.Snapshot(), nil)
	}
	return d.finish("execute_command", start, res, nil)
}

func pidString(pid int32) string {
	return fmt.Sprintf("%d", pid)
}
