// Package inspect implements the Process Inspector: enumerate and describe
// processes under a search predicate, at a requested detail tier.
package inspect

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/devtab-sh/secure-dev-manager/internal/classify"
	"github.com/devtab-sh/secure-dev-manager/internal/process"
)

// Tier names the requested detail level, upper-bounding per-call latency
// on a host with up to ~600 processes.
type Tier string

const (
	Instant Tier = "instant"
	Quick   Tier = "quick"
	Smart   Tier = "smart"
	Full    Tier = "full"
)

// browserDowngradeThreshold is the match-set size above which a browser-
// family result set silently downgrades from Smart to Quick semantics.
const browserDowngradeThreshold = 20

// ProcessDescriptor is the caller-facing snapshot. Fields not populated by
// the requested tier are left at their zero value.
type ProcessDescriptor struct {
	PID         int32
	Name        string
	CmdLine     string
	WorkDir     string
	ParentPID   int32
	CreatedAt   time.Time
	MemoryBytes uint64
	MemoryMB    float64
	MemoryHuman string
	CPUPercent  *float64
	Threads     int32
	Children    []int32
	Protected   bool
	UserSpawned bool
	Reason      classify.Reason
	TypeHint    string
}

// FormatMemory renders a byte count as the spec's dual memory_mb /
// memory_human pair: base-2 megabytes with two decimals, switching to GB
// at or above 1024 MB.
func FormatMemory(bytes uint64) (mb float64, human string) {
	raw := float64(bytes) / (1024 * 1024)
	mb = math.Round(raw*100) / 100
	if raw < 1024 {
		return mb, fmt.Sprintf("%.1f MB", raw)
	}
	return mb, fmt.Sprintf("%.2f GB", raw/1024)
}

// typeHint assigns the cosmetic, non-authoritative developer-readability
// label. It is never consulted by the classifier or termination engine.
func typeHint(d process.Descriptor, tokens classify.TokenSet) string {
	name := strings.ToLower(d.Name)
	cmd := strings.ToLower(d.CmdLine)
	switch {
	case tokens.MatchesInfrastructureToken(name) || tokens.MatchesInfrastructureToken(cmd):
		return "MCP Infrastructure"
	case strings.Contains(name, "claude"):
		return "Claude Desktop"
	case tokens.IsSystemCritical(d.Name):
		return "System Process"
	case strings.Contains(name, "python"):
		switch {
		case strings.Contains(cmd, "manage.py"):
			return "Django Server"
		case strings.Contains(cmd, "flask"):
			return "Flask Server"
		default:
			return "Python Process"
		}
	case strings.Contains(name, "node"):
		return "Node.js Process"
	default:
		return "User Process"
	}
}
