package classify

import (
	"testing"

	"github.com/devtab-sh/secure-dev-manager/internal/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTier1_SystemCriticalName(t *testing.T) {
	c := New(DefaultTokenSet())
	defer c.Close()

	v, matched := c.tier1(descriptor(100, "csrss.exe", ""))
	require.True(t, matched)
	assert.True(t, v.Protected)
	assert.Equal(t, SystemCritical, v.Reason)
}

func TestTier1_InfrastructureTokenInName(t *testing.T) {
	c := New(DefaultTokenSet())
	defer c.Close()

	v, matched := c.tier1(descriptor(101, "secure_mcp_server.exe", ""))
	require.True(t, matched)
	assert.Equal(t, PatternMatch, v.Reason)
}

func TestTier1_InfrastructureTokenInCmdline(t *testing.T) {
	c := New(DefaultTokenSet())
	defer c.Close()

	v, matched := c.tier1(descriptor(102, "node.exe", `node C:\tools\claude-bridge.js`))
	require.True(t, matched)
	assert.Equal(t, PatternMatch, v.Reason)
}

func TestTier1_OrdinaryProcessNotMatched(t *testing.T) {
	c := New(DefaultTokenSet())
	defer c.Close()

	_, matched := c.tier1(descriptor(103, "notepad.exe", "notepad.exe C:\\temp\\scratch.txt"))
	assert.False(t, matched)
}

func TestScriptContentProtected_PositiveCase(t *testing.T) {
	c := New(DefaultTokenSet())
	defer c.Close()

	d := descriptor(200, "python.exe", `python.exe kill_mcp_server.py`)
	assert.True(t, c.scriptContentProtected(d), "interpreter running a script whose basename carries an infrastructure token must be protected")
}

func TestScriptContentProtected_NegativeCase(t *testing.T) {
	c := New(DefaultTokenSet())
	defer c.Close()

	d := descriptor(201, "python.exe", `python.exe notes.py --port 5173`)
	assert.False(t, c.scriptContentProtected(d), "a flag value that is not itself a path argument must not trigger protection")
}

func TestScriptContentProtected_NonInterpreterIgnored(t *testing.T) {
	c := New(DefaultTokenSet())
	defer c.Close()

	d := descriptor(202, "notepad.exe", `notepad.exe mcp_notes.txt`)
	assert.False(t, c.scriptContentProtected(d), "only configured script interpreters are subject to the content rule")
}

func TestCache_HitWithinTTL(t *testing.T) {
	c := New(DefaultTokenSet())
	defer c.Close()

	c.cache.put(300, 1000, protected(ScriptContent))
	v, ok := c.cache.get(300, 1000)
	require.True(t, ok)
	assert.Equal(t, ScriptContent, v.Reason)
}

func TestCache_PIDReuseInvalidatesEntry(t *testing.T) {
	c := New(DefaultTokenSet())
	defer c.Close()

	c.cache.put(301, 1000, protected(ScriptContent))
	_, ok := c.cache.get(301, 2000)
	assert.False(t, ok, "a creation-time mismatch must evict the stale verdict rather than return it")
}

func descriptor(pid int32, name, cmdline string) process.Descriptor {
	return process.Descriptor{PID: pid, Name: name, CmdLine: cmdline}
}
