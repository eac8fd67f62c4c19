package classify

import "strings"

// TokenSet is the configured set of Tier-1 infrastructure tokens and
// system-critical names. Callers obtain one from internal/config; tests may
// construct one directly.
type TokenSet struct {
	InfrastructureTokens []string
	SystemCriticalNames  []string
	ScriptInterpreters   []string
	BrowserLikeNames     []string
}

// DefaultTokenSet matches the default values named in the classifier's
// contract.
func DefaultTokenSet() TokenSet {
	return TokenSet{
		InfrastructureTokens: []string{"mcp", "secure_mcp", "claude", "api-toolbox"},
		SystemCriticalNames:  []string{"System", "csrss.exe", "winlogon.exe", "services.exe", "lsass.exe", "smss.exe"},
		ScriptInterpreters:   []string{"python.exe", "python3.exe", "python", "node.exe", "node", "cmd.exe", "powershell.exe", "pwsh.exe"},
		BrowserLikeNames:     []string{"chrome.exe", "msedge.exe", "firefox.exe"},
	}
}

// MatchesInfrastructureToken reports whether s contains any configured
// infrastructure token, case-insensitive.
func (t TokenSet) MatchesInfrastructureToken(s string) bool {
	low := strings.ToLower(s)
	for _, tok := range t.InfrastructureTokens {
		if strings.Contains(low, strings.ToLower(tok)) {
			return true
		}
	}
	return false
}

// IsSystemCritical reports whether name matches the configured
// system-critical process name list, case-sensitive (these are fixed
// Windows names, not user input).
func (t TokenSet) IsSystemCritical(name string) bool {
	for _, n := range t.SystemCriticalNames {
		if name == n {
			return true
		}
	}
	return false
}

// IsScriptInterpreter reports whether baseName (lowercased) is a known
// script interpreter executable.
func (t TokenSet) IsScriptInterpreter(baseName string) bool {
	low := strings.ToLower(baseName)
	for _, n := range t.ScriptInterpreters {
		if strings.ToLower(n) == low {
			return true
		}
	}
	return false
}

// IsBrowserLike reports whether baseName belongs to the configured
// browser-family list used by the Process Inspector's Smart-tier downgrade.
func (t TokenSet) IsBrowserLike(baseName string) bool {
	low := strings.ToLower(baseName)
	for _, n := range t.BrowserLikeNames {
		if strings.ToLower(n) == low {
			return true
		}
	}
	return false
}
