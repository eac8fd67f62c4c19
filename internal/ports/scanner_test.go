package ports

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLabel_KnownPort(t *testing.T) {
	assert.Equal(t, "React Dev Server", label(3000))
	assert.Equal(t, "Vite Dev Server", label(5173))
}

func TestLabel_UnknownPortIsCustom(t *testing.T) {
	assert.Equal(t, "Custom", label(9999))
}

func TestScanOne_NoListenersIsInactive(t *testing.T) {
	s := &Scanner{}
	entry := s.scanOne(3000, nil)
	assert.Equal(t, Inactive, entry.Status)
	assert.Nil(t, entry.OwningProcess)
}

func TestDefaultWatchedPorts_MatchesSpecSet(t *testing.T) {
	assert.ElementsMatch(t, []int{3000, 5000, 8000, 8080, 5173, 4200}, DefaultWatchedPorts)
}
