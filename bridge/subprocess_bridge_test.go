package bridge

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-runtime.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestSubprocessTransportCallDecodesStdout(t *testing.T) {
	script := writeScript(t, `echo '{"success":true,"source":"other@default","result":"ok"}'`)
	transport := &SubprocessTransport{RuntimePath: script, Timeout: 5 * time.Second}

	resp, err := transport.Call(context.Background(), "other@default", "vendor/mod", "cmd", []any{"x"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "ok", resp.Result)
}

func TestSubprocessTransportReceivesArguments(t *testing.T) {
	script := writeScript(t, `echo "{\"success\":true,\"source\":\"other@default\",\"result\":\"$4\"}"`)
	transport := &SubprocessTransport{RuntimePath: script, Timeout: 5 * time.Second}

	resp, err := transport.Call(context.Background(), "target@default", "vendor/mod", "do-thing", nil)
	require.NoError(t, err)
	assert.True(t, strings.Contains(resp.Result.(string), "do-thing"))
}

func TestSubprocessTransportTimeoutKillsChildAndDiscardsOutput(t *testing.T) {
	script := writeScript(t, `sleep 2 && echo '{"success":true}'`)
	transport := &SubprocessTransport{RuntimePath: script, Timeout: 50 * time.Millisecond}

	resp, err := transport.Call(context.Background(), "target@default", "vendor/mod", "cmd", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.False(t, resp.Success)
	assert.Equal(t, CodeTimeout, resp.Code)
}

func TestSubprocessTransportRejectsOversizedArgs(t *testing.T) {
	transport := &SubprocessTransport{RuntimePath: "/bin/true"}

	huge := make([]any, 0, 10000)
	for i := 0; i < 10000; i++ {
		huge = append(huge, "0123456789")
	}

	_, err := transport.Call(context.Background(), "target@default", "vendor/mod", "cmd", huge)
	require.Error(t, err)
	assert.ErrorContains(t, err, "too large")
}
