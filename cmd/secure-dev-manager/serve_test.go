package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devtab-sh/secure-dev-manager/internal/dispatch"
)

func TestRunStdioLoop_OneResponseLinePerRequestLine(t *testing.T) {
	d := newTestDispatcher(t)

	input := strings.NewReader(
		`{"operation":"status"}` + "\n" +
			`{"operation":"server_status"}` + "\n",
	)
	var out bytes.Buffer

	require.NoError(t, runStdioLoop(context.Background(), d, input, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)

	var first dispatch.Envelope
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.True(t, first.Success)
	assert.Equal(t, "dev_status", first.Operation)
}

func TestRunStdioLoop_BlankLinesAreSkipped(t *testing.T) {
	d := newTestDispatcher(t)

	input := strings.NewReader("\n" + `{"operation":"status"}` + "\n\n")
	var out bytes.Buffer

	require.NoError(t, runStdioLoop(context.Background(), d, input, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1)
}
