package terminate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMethodFor(t *testing.T) {
	assert.Equal(t, Forceful, methodFor(true))
	assert.Equal(t, Graceful, methodFor(false))
}

func TestWaitGone_AlreadyGoneProcess(t *testing.T) {
	// A PID far outside any realistic live range should read as not
	// existing immediately, so waitGone returns true without blocking
	// for the full timeout.
	assert.True(t, waitGone(999999, 0))
}
