package inspect

import (
	"testing"

	"github.com/devtab-sh/secure-dev-manager/internal/classify"
	"github.com/devtab-sh/secure-dev-manager/internal/process"
	"github.com/stretchr/testify/assert"
)

func TestFormatMemory_BelowGBThreshold(t *testing.T) {
	mb, human := FormatMemory(512 * 1024 * 1024)
	assert.InDelta(t, 512.0, mb, 0.01)
	assert.Equal(t, "512.0 MB", human)
}

func TestFormatMemory_AboveGBThreshold(t *testing.T) {
	mb, human := FormatMemory(2048 * 1024 * 1024)
	assert.InDelta(t, 2048.0, mb, 0.01)
	assert.Equal(t, "2.00 GB", human)
}

func TestFormatMemory_Monotonic(t *testing.T) {
	smallMB, smallHuman := FormatMemory(100 * 1024 * 1024)
	largeMB, largeHuman := FormatMemory(3000 * 1024 * 1024)
	assert.Less(t, smallMB, largeMB)
	assert.NotEqual(t, smallHuman, largeHuman)
}

func TestTypeHint_InfrastructureWins(t *testing.T) {
	d := process.Descriptor{Name: "secure_mcp_server.exe", CmdLine: "secure_mcp_server.exe"}
	assert.Equal(t, "MCP Infrastructure", typeHint(d, classify.DefaultTokenSet()))
}

func TestTypeHint_DjangoServer(t *testing.T) {
	d := process.Descriptor{Name: "python.exe", CmdLine: "python.exe manage.py runserver"}
	assert.Equal(t, "Django Server", typeHint(d, classify.DefaultTokenSet()))
}

func TestTypeHint_DefaultUserProcess(t *testing.T) {
	d := process.Descriptor{Name: "notepad.exe", CmdLine: "notepad.exe"}
	assert.Equal(t, "User Process", typeHint(d, classify.DefaultTokenSet()))
}

func TestSortDescriptors_ProtectedFirstThenNameThenPID(t *testing.T) {
	ds := []ProcessDescriptor{
		{PID: 20, Name: "zeta.exe", Protected: false},
		{PID: 10, Name: "alpha.exe", Protected: true},
		{PID: 5, Name: "alpha.exe", Protected: true},
		{PID: 1, Name: "beta.exe", Protected: false},
	}
	sortDescriptors(ds)

	assert.Equal(t, int32(5), ds[0].PID)
	assert.Equal(t, int32(10), ds[1].PID)
	assert.Equal(t, int32(1), ds[2].PID)
	assert.Equal(t, int32(20), ds[3].PID)
}

func TestIsBrowserLikeSet_RequiresSizeAndFamily(t *testing.T) {
	tokens := classify.DefaultTokenSet()
	small := make([]process.Descriptor, 5)
	for i := range small {
		small[i] = process.Descriptor{Name: "chrome.exe"}
	}
	assert.False(t, isBrowserLikeSet(small, tokens), "below threshold must not downgrade")

	large := make([]process.Descriptor, 25)
	for i := range large {
		large[i] = process.Descriptor{Name: "chrome.exe"}
	}
	assert.True(t, isBrowserLikeSet(large, tokens))

	mixed := make([]process.Descriptor, 25)
	for i := range mixed {
		mixed[i] = process.Descriptor{Name: "chrome.exe"}
	}
	mixed[0] = process.Descriptor{Name: "node.exe"}
	assert.False(t, isBrowserLikeSet(mixed, tokens), "a non-browser member must prevent the downgrade")
}

func TestParseExactPID(t *testing.T) {
	pid, ok := parseExactPID("1234")
	assert.True(t, ok)
	assert.Equal(t, int32(1234), pid)

	_, ok = parseExactPID("chrome")
	assert.False(t, ok)
}
