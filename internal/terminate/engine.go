// Package terminate implements the Termination Engine: kill_one and
// kill_tree under the full safety policy, including their dry-run
// variants.
package terminate

import (
	"fmt"
	"time"

	"github.com/devtab-sh/secure-dev-manager/internal/apierror"
	"github.com/devtab-sh/secure-dev-manager/internal/classify"
	"github.com/devtab-sh/secure-dev-manager/internal/process"
	"github.com/devtab-sh/secure-dev-manager/internal/spawn"
)

// Method names the signal class used for a termination step.
type Method string

const (
	Graceful Method = "Graceful"
	Forceful Method = "Forceful"
)

const (
	gracefulWait      = 3 * time.Second
	forcefulWait      = 2 * time.Second
	treeEscalateAfter = 1 * time.Second
	maxTreeDepth      = 16
	maxTreeSize       = 1024
)

// Engine executes terminations under the classifier, spawn registry and
// orphan-prevention guards.
type Engine struct {
	classifier *classify.Classifier
	registry   *spawn.Registry
}

// New constructs a termination Engine.
func New(classifier *classify.Classifier, registry *spawn.Registry) *Engine {
	return &Engine{classifier: classifier, registry: registry}
}

// KillOneOptions are the kill_one operation's flags.
type KillOneOptions struct {
	Force             bool
	OverrideUserSpawn bool
	DryRun            bool
}

// KillOneResult reports either a dry-run plan or the method actually used.
type KillOneResult struct {
	Method  Method
	DryRun  bool
	Target  process.Descriptor
	Message string
}

// KillOne executes the kill_one contract in spec order: resolve, protection
// guard, user-spawn guard, orphan guard, dry-run short-circuit, then the
// graceful→forceful escalation.
func (e *Engine) KillOne(pid int32, opts KillOneOptions) (*KillOneResult, *apierror.Error) {
	target, err := process.Snapshot(pid)
	if err != nil {
		return nil, apierror.New(apierror.KindProcessNotFound, fmt.Sprintf("no such process: %d", pid),
			"verify the PID with find_process before retrying", "the process may have already exited")
	}

	verdict, vErr := e.classifier.Classify(pid, &target)
	if vErr != nil || verdict.Protected {
		reason := classify.Unknown
		if vErr == nil {
			reason = verdict.Reason
		}
		return nil, apierror.New(apierror.KindProtectedProcess, fmt.Sprintf("pid %d is protected (%s)", pid, reason),
			"this process cannot be terminated through this tool", "protected processes are excluded regardless of force or override")
	}

	if !opts.OverrideUserSpawn && e.registry.Contains(pid) {
		return nil, apierror.New(apierror.KindUserSpawnedGuard, fmt.Sprintf("pid %d was spawned by this server", pid),
			"retry with override=true, or use kill_process_tree", "server-spawned processes are guarded against accidental termination")
	}

	children := process.ImmediateChildren(pid)
	if len(children) > 0 {
		return nil, apierror.New(apierror.KindHasChildren, fmt.Sprintf("pid %d has %d child process(es)", pid, len(children)),
			"use kill_process_tree to terminate the entire tree", "killing a parent without its children would orphan them, which can keep ports bound")
	}

	if opts.DryRun {
		method := Graceful
		if opts.Force {
			method = Forceful
		}
		return &KillOneResult{Method: method, DryRun: true, Target: target}, nil
	}

	method, tErr := e.terminateOne(pid, opts.Force)
	if tErr != nil {
		return nil, tErr
	}
	e.registry.Remove(pid)
	return &KillOneResult{Method: method, Target: target, Message: "terminated"}, nil
}

// terminateOne calls process.Terminate, waits, and only if the caller opted
// in calls it a second time and waits again. Both steps use the same
// process.Terminate (TerminateProcess); no separate polite signal is sent,
// so the step reported as Graceful is already a hard termination.
func (e *Engine) terminateOne(pid int32, force bool) (Method, *apierror.Error) {
	if err := process.Terminate(pid, 1); err != nil {
		return "", permissionOrInternal(err)
	}
	if waitGone(pid, gracefulWait) {
		return Graceful, nil
	}
	if !force {
		return "", apierror.New(apierror.KindTerminationFailed, fmt.Sprintf("pid %d still alive after graceful termination", pid),
			"retry with force=true to escalate to a forceful termination", "graceful termination timed out")
	}
	if err := process.Terminate(pid, 1); err != nil {
		return "", permissionOrInternal(err)
	}
	if waitGone(pid, forcefulWait) {
		return Forceful, nil
	}
	return "", apierror.New(apierror.KindTerminationFailed, fmt.Sprintf("pid %d still alive after forceful termination", pid),
		"the process may require elevated privileges to terminate", "forceful termination timed out")
}

func waitGone(pid int32, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !process.Exists(pid) {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return !process.Exists(pid)
}

func permissionOrInternal(err error) *apierror.Error {
	if err == process.ErrNotFound {
		return apierror.New(apierror.KindProcessNotFound, "process exited during termination", "the process already exited", "race between resolve and terminate")
	}
	return apierror.New(apierror.KindPermissionDenied, "access denied while terminating process",
		"retry running with elevated privileges", "the OS denied the handle request for this PID").Wrap(err)
}

// KillTreeOptions are the kill_process_tree operation's flags.
type KillTreeOptions struct {
	Force  bool
	DryRun bool
}

// KillTreeResult reports the full descendant set and the method chosen.
type KillTreeResult struct {
	DryRun     bool
	Method     Method
	Tree       []process.Descriptor
	KilledPIDs []int32
}

// KillTree executes the kill_tree contract: protection guard on the root,
// a capped BFS descendant walk with a protection guard on every member,
// then either atomic job-object termination or bottom-up manual
// termination.
func (e *Engine) KillTree(pid int32, opts KillTreeOptions) (*KillTreeResult, *apierror.Error) {
	root, err := process.Snapshot(pid)
	if err != nil {
		return nil, apierror.New(apierror.KindProcessNotFound, fmt.Sprintf("no such process: %d", pid),
			"verify the PID with find_process before retrying", "the process may have already exited")
	}

	verdict, vErr := e.classifier.Classify(pid, &root)
	if vErr != nil || verdict.Protected {
		return nil, apierror.New(apierror.KindProtectedProcess, fmt.Sprintf("pid %d is protected", pid),
			"this process cannot be terminated through this tool", "the protection guard applies to the tree root before any descendant is inspected")
	}

	descendants, sizeErr := e.walkDescendants(pid)
	if sizeErr != nil {
		return nil, sizeErr
	}

	for _, d := range descendants {
		v, vErr := e.classifier.Classify(d.PID, &d)
		if vErr != nil || v.Protected {
			return nil, apierror.New(apierror.KindProtectedDescendant, fmt.Sprintf("descendant pid %d (%s) is protected", d.PID, d.Name),
				"this tree contains a protected process and cannot be terminated as a whole", "protection guards are never bypassable, even within a tree")
		}
	}

	tree := append([]process.Descriptor{root}, descendants...)

	if opts.DryRun {
		method := Graceful
		if opts.Force {
			method = Forceful
		}
		return &KillTreeResult{DryRun: true, Method: method, Tree: tree}, nil
	}

	method, killed, tErr := e.executeTreeTermination(pid, tree, opts.Force)
	if tErr != nil {
		return nil, tErr
	}
	for _, p := range killed {
		e.registry.Remove(p)
	}
	return &KillTreeResult{Method: method, Tree: tree, KilledPIDs: killed}, nil
}

// walkDescendants performs a capped BFS over the parent→children
// relation, guarding against PID-reuse cycles with a (PID, creation-time)
// visited set.
func (e *Engine) walkDescendants(root int32) ([]process.Descriptor, *apierror.Error) {
	type visitedKey struct {
		pid     int32
		created int64
	}
	visited := map[visitedKey]bool{}
	queue := []struct {
		pid   int32
		depth int
	}{{pid: root, depth: 0}}

	var out []process.Descriptor
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, child := range process.ImmediateChildren(cur.pid) {
			key := visitedKey{pid: child.PID, created: child.CreatedAt.Unix()}
			if visited[key] {
				continue
			}
			visited[key] = true

			if len(out) >= maxTreeSize {
				return nil, apierror.New(apierror.KindInvalidArgument, "descendant set exceeds the 1024-process limit",
					"narrow the target or terminate sub-trees individually", "the tree-size cap bounds worst-case termination latency")
			}
			out = append(out, child)
			if cur.depth+1 < maxTreeDepth {
				queue = append(queue, struct {
					pid   int32
					depth int
				}{pid: child.PID, depth: cur.depth + 1})
			}
		}
	}
	return out, nil
}

func (e *Engine) executeTreeTermination(root int32, tree []process.Descriptor, force bool) (Method, []int32, *apierror.Error) {
	if rec, ok := e.registry.Lookup(root); ok {
		if handled, err := rec.TerminateGroup(); handled {
			if err != nil {
				return "", nil, apierror.New(apierror.KindTerminationFailed, "job object termination failed",
					"retry, or fall back to kill_process for individual PIDs", "the job object handle rejected termination").Wrap(err)
			}
			pids := make([]int32, 0, len(tree))
			for _, d := range tree {
				pids = append(pids, d.PID)
			}
			return methodFor(force), pids, nil
		}
	}

	// Manual fallback: bottom-up, depth-descending order (tree is in BFS
	// shallow-to-deep order with the root first; reverse the descendants
	// so the deepest leaves are terminated before their ancestors, then
	// terminate the root last).
	ordered := make([]process.Descriptor, 0, len(tree))
	for i := len(tree) - 1; i >= 1; i-- {
		ordered = append(ordered, tree[i])
	}
	ordered = append(ordered, tree[0])

	var killedPIDs []int32
	for _, d := range ordered {
		if _, tErr := e.terminateOneEscalating(d.PID, force); tErr != nil {
			return "", killedPIDs, tErr
		}
		killedPIDs = append(killedPIDs, d.PID)
	}
	return methodFor(force), killedPIDs, nil
}

// terminateOneEscalating mirrors terminateOne but with the tree case's
// 1-second auto-escalation rule: the engine itself repeats the termination
// call after 1 s even if the caller did not set force. As in terminateOne,
// both calls use process.Terminate.
func (e *Engine) terminateOneEscalating(pid int32, force bool) (Method, *apierror.Error) {
	if err := process.Terminate(pid, 1); err != nil {
		if err == process.ErrNotFound {
			return Graceful, nil
		}
		return "", permissionOrInternal(err)
	}
	if waitGone(pid, treeEscalateAfter) {
		return Graceful, nil
	}
	if err := process.Terminate(pid, 1); err != nil {
		if err == process.ErrNotFound {
			return Forceful, nil
		}
		return "", permissionOrInternal(err)
	}
	if waitGone(pid, forcefulWait) {
		return Forceful, nil
	}
	return "", apierror.New(apierror.KindTerminationFailed, fmt.Sprintf("pid %d still alive after escalation", pid),
		"retry the operation; the process may need elevated privileges", "forceful termination timed out during tree walk")
}

func methodFor(force bool) Method {
	if force {
		return Forceful
	}
	return Graceful
}
