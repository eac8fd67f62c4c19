package httpapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAddr(t *testing.T) {
	cases := map[string]string{
		"":           defaultAddr,
		":7787":      "127.0.0.1:7787",
		"0.0.0.0:80": "0.0.0.0:80",
		"[::]:80":    "[::]:80",
		"host:9000":  "host:9000",
	}
	for input, want := range cases {
		assert.Equal(t, want, normalizeAddr(input), "normalizeAddr(%q)", input)
	}
}

func TestNewServer_DefaultsAddrWhenEmpty(t *testing.T) {
	d := newTestDispatcher(t)
	s := NewServer("", d)
	assert.Equal(t, defaultAddr, s.Addr())
}
