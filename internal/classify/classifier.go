package classify

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/devtab-sh/secure-dev-manager/internal/process"
)

// maxAncestorDepth bounds the deep-inspection tier's parent-chain walk,
// per the classifier's documented latency budget.
const maxAncestorDepth = 8

// Classifier answers protection queries for PIDs. One Classifier is owned
// by the server root and injected into every component that needs to know
// whether a PID may be killed.
type Classifier struct {
	tokens TokenSet
	cache  *verdictCache

	stopReaper chan struct{}
	reaperDone chan struct{}
}

// New constructs a Classifier with the given token configuration and starts
// its cache reaper (sweeps expired entries every 5 seconds).
func New(tokens TokenSet) *Classifier {
	c := &Classifier{
		tokens:     tokens,
		cache:      newVerdictCache(),
		stopReaper: make(chan struct{}),
		reaperDone: make(chan struct{}),
	}
	go c.reapLoop()
	return c
}

func (c *Classifier) reapLoop() {
	defer close(c.reaperDone)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopReaper:
			return
		case <-ticker.C:
			c.cache.reapExpired()
		}
	}
}

// Close stops the cache reaper.
func (c *Classifier) Close() {
	close(c.stopReaper)
	<-c.reaperDone
}

// CacheSize reports the live verdict cache's entry count.
func (c *Classifier) CacheSize() int { return c.cache.len() }

// Classify decides whether pid may be killed. If snap is the zero value, a
// fresh snapshot is fetched. Classify never returns NotProtected for a PID
// it could not positively verify.
func (c *Classifier) Classify(pid int32, snap *process.Descriptor) (Verdict, error) {
	if pid == 0 || pid == 4 {
		return protected(SystemCritical), nil
	}

	if snap == nil {
		d, err := process.Snapshot(pid)
		if err != nil {
			return Verdict{}, err
		}
		snap = &d
	}

	// Tier 1: pattern match.
	if v, matched := c.tier1(*snap); matched {
		return v, nil
	}

	// Tier 2: cache lookup.
	createdAt := snap.CreatedAt.Unix()
	if v, ok := c.cache.get(pid, createdAt); ok {
		return v, nil
	}

	// Tier 3: deep inspection.
	v := c.tier3(*snap)
	c.cache.put(pid, createdAt, v)
	return v, nil
}

func (c *Classifier) tier1(d process.Descriptor) (Verdict, bool) {
	if c.tokens.IsSystemCritical(d.Name) {
		return protected(SystemCritical), true
	}
	if c.tokens.MatchesInfrastructureToken(d.BaseName()) || c.tokens.MatchesInfrastructureToken(d.CmdLine) {
		return protected(PatternMatch), true
	}
	return Verdict{}, false
}

func (c *Classifier) tier3(d process.Descriptor) Verdict {
	for _, ancestor := range process.ParentChain(d.PID, maxAncestorDepth) {
		if _, matched := c.tier1(ancestor); matched {
			return protected(ParentProtected)
		}
	}

	for _, child := range process.ImmediateChildren(d.PID) {
		if _, matched := c.tier1(child); matched {
			return protected(ChildProtected)
		}
	}

	if c.scriptContentProtected(d) {
		return protected(ScriptContent)
	}

	return notProtected()
}

// scriptContentProtected implements the pinned Tier-3 rule: a script
// interpreter process is protected when any whitespace-separated argument
// that does not start with "-" has a final path component containing an
// infrastructure token. Arguments starting with "-" (including
// "--opt=value" forms) are skipped; a flag value passed as a separate
// argument (e.g. "--log-dir C:\mcp-logs") is checked like any other
// argument.
func (c *Classifier) scriptContentProtected(d process.Descriptor) bool {
	if !c.tokens.IsScriptInterpreter(d.BaseName()) {
		return false
	}
	for _, arg := range splitArgs(d.CmdLine) {
		if strings.HasPrefix(arg, "-") {
			continue
		}
		base := filepath.Base(strings.ReplaceAll(arg, "/", `\`))
		if c.tokens.MatchesInfrastructureToken(base) {
			return true
		}
	}
	return false
}

func splitArgs(cmdline string) []string {
	return strings.Fields(cmdline)
}
