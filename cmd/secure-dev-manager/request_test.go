package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devtab-sh/secure-dev-manager/internal/config"
	"github.com/devtab-sh/secure-dev-manager/internal/dispatch"
)

func newTestDispatcher(t *testing.T) *dispatch.Dispatcher {
	t.Helper()
	d := dispatch.New(config.Default(), nil)
	t.Cleanup(d.Close)
	return d
}

func TestHandleRequestLine_UnknownOperation(t *testing.T) {
	d := newTestDispatcher(t)
	env := handleRequestLine(context.Background(), d, []byte(`{"operation":"not_a_real_operation"}`))
	require.NotNil(t, env.Error)
	assert.Equal(t, "InvalidArgument", env.Error.Error)
}

func TestHandleRequestLine_MalformedJSON(t *testing.T) {
	d := newTestDispatcher(t)
	env := handleRequestLine(context.Background(), d, []byte(`{not json`))
	require.NotNil(t, env.Error)
}

func TestHandleRequestLine_DevStatusNoPayload(t *testing.T) {
	d := newTestDispatcher(t)
	env := handleRequestLine(context.Background(), d, []byte(`{"operation":"status"}`))
	assert.True(t, env.Success)
	assert.Equal(t, "dev_status", env.Operation)
}

func TestHandleRequestLine_FindProcessWithoutModeSucceeds(t *testing.T) {
	d := newTestDispatcher(t)
	env := handleRequestLine(context.Background(), d, []byte(`{"operation":"find_process","payload":{"name":"999999999"}}`))
	assert.True(t, env.Success)
}

func TestHandleRequestLine_KillProcessMissingPIDIsNotFound(t *testing.T) {
	d := newTestDispatcher(t)
	env := handleRequestLine(context.Background(), d, []byte(`{"operation":"kill","payload":{"pid":999999999}}`))
	require.NotNil(t, env.Error)
	assert.Equal(t, "ProcessNotFound", env.Error.Error)
}
