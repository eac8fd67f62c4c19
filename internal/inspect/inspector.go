package inspect

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	gpproc "github.com/shirou/gopsutil/v4/process"

	"github.com/devtab-sh/secure-dev-manager/internal/classify"
	"github.com/devtab-sh/secure-dev-manager/internal/process"
)

// ErrQueryTooShort is returned for non-numeric queries shorter than two
// characters.
var ErrQueryTooShort = fmt.Errorf("inspect: query must be at least 2 characters")

// Options configures a Find call.
type Options struct {
	Tier         Tier
	IncludeArgs  bool
	FullCmdline  bool
}

// Inspector enumerates and describes processes. It holds no state of its
// own beyond its dependencies and may be constructed freely per request.
type Inspector struct {
	classifier *classify.Classifier
	tokens     classify.TokenSet
}

// New constructs an Inspector backed by the given Classifier.
func New(classifier *classify.Classifier, tokens classify.TokenSet) *Inspector {
	return &Inspector{classifier: classifier, tokens: tokens}
}

// Find enumerates processes matching query at the requested tier.
func (i *Inspector) Find(query string, opts Options) ([]ProcessDescriptor, error) {
	tier := opts.Tier
	if tier == "" {
		tier = Smart
	}

	exactPID, isPID := parseExactPID(query)
	if !isPID && len(strings.TrimSpace(query)) < 2 {
		return nil, ErrQueryTooShort
	}

	procs, err := gpproc.Processes()
	if err != nil {
		return nil, fmt.Errorf("inspect: enumerate processes: %w", err)
	}

	// Pass 1: cheap fields only, apply the name/PID predicate.
	var survivors []survivor
	for _, p := range procs {
		if isPID {
			if p.Pid != exactPID {
				continue
			}
			d, err := process.CheapSnapshot(p)
			if err != nil {
				continue
			}
			survivors = append(survivors, survivor{p: p, d: d})
			continue
		}
		d, err := process.CheapSnapshot(p)
		if err != nil {
			continue
		}
		haystack := d.BaseName()
		if opts.IncludeArgs {
			haystack = strings.ToLower(d.Name + " " + d.CmdLine)
		}
		if !strings.Contains(haystack, strings.ToLower(query)) {
			continue
		}
		survivors = append(survivors, survivor{p: p, d: d})
	}

	effectiveTier := tier
	if tier == Smart && isBrowserLikeSet(survivors2Descriptors(survivors), i.tokens) {
		effectiveTier = Quick
	}

	results := make([]ProcessDescriptor, 0, len(survivors))
	for _, s := range survivors {
		out := i.describe(s.p, s.d, effectiveTier, opts)
		results = append(results, out)
	}

	sortDescriptors(results)
	return results, nil
}

type survivor struct {
	p *gpproc.Process
	d process.Descriptor
}

func survivors2Descriptors(ss []survivor) []process.Descriptor {
	out := make([]process.Descriptor, 0, len(ss))
	for _, s := range ss {
		out = append(out, s.d)
	}
	return out
}

// isBrowserLikeSet implements the Smart-tier downgrade heuristic: the
// match set is browser-like when it exceeds the threshold size and every
// matching executable belongs to the configured browser list.
func isBrowserLikeSet(ds []process.Descriptor, tokens classify.TokenSet) bool {
	if len(ds) <= browserDowngradeThreshold {
		return false
	}
	for _, d := range ds {
		if !tokens.IsBrowserLike(d.BaseName()) {
			return false
		}
	}
	return true
}

func (i *Inspector) describe(p *gpproc.Process, d process.Descriptor, tier Tier, opts Options) ProcessDescriptor {
	out := ProcessDescriptor{PID: d.PID, Name: d.Name}
	if opts.FullCmdline || opts.IncludeArgs {
		out.CmdLine = d.CmdLine
	}
	if tier == Instant {
		return out
	}

	// Quick and above: memory, parent PID, protection flag.
	process.EnrichMemoryCPUChildren(&d, p, 0, false)
	if ppid, err := p.Ppid(); err == nil {
		d.ParentPID = ppid
	}
	if createMs, err := p.CreateTime(); err == nil {
		d.CreatedAt = time.UnixMilli(createMs)
	}
	out.MemoryBytes = d.MemoryByte
	out.MemoryMB, out.MemoryHuman = FormatMemory(d.MemoryByte)
	out.ParentPID = d.ParentPID
	out.WorkDir = d.WorkDir
	out.CreatedAt = d.CreatedAt
	out.TypeHint = typeHint(d, i.tokens)

	verdict, err := i.classifier.Classify(d.PID, &d)
	if err == nil {
		out.Protected = verdict.Protected
		out.Reason = verdict.Reason
	} else {
		out.Protected = true
		out.Reason = classify.Unknown
	}

	if tier == Quick {
		return out
	}

	// Smart: + children summary.
	if tier == Smart || tier == Full {
		out.Children = d.Children
		if kids, err := p.Children(); err == nil {
			ids := make([]int32, 0, len(kids))
			for _, k := range kids {
				ids = append(ids, k.Pid)
			}
			out.Children = ids
		}
	}

	if tier != Full {
		return out
	}

	// Full: CPU percent sampled over 100ms, thread count, and the
	// immediate-children PID list; children are not expanded into
	// descriptors.
	process.EnrichMemoryCPUChildren(&d, p, 100*time.Millisecond, true)
	out.CPUPercent = d.CPUPercent
	out.Threads = d.Threads
	out.Children = d.Children

	return out
}

func parseExactPID(query string) (int32, bool) {
	v, err := strconv.ParseInt(strings.TrimSpace(query), 10, 32)
	if err != nil {
		return 0, false
	}
	return int32(v), true
}

// sortDescriptors orders results by protection flag descending, then name
// ascending, then PID ascending — stable across equal keys.
func sortDescriptors(ds []ProcessDescriptor) {
	sort.SliceStable(ds, func(a, b int) bool {
		if ds[a].Protected != ds[b].Protected {
			return ds[a].Protected
		}
		if !strings.EqualFold(ds[a].Name, ds[b].Name) {
			return strings.ToLower(ds[a].Name) < strings.ToLower(ds[b].Name)
		}
		return ds[a].PID < ds[b].PID
	})
}
