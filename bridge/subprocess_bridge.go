package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	razy "github.com/razyhq/razy"
)

// MaxArgsBytes bounds the canonical-JSON encoding of a subprocess bridge
// call's arguments. The transport is request/response, not streaming, so a
// hard cap checked before spawning the child is simpler than a partial-read
// protocol.
const MaxArgsBytes = 64 * 1024

// SubprocessTransport calls a module in a distributor that has no bound
// host by forking a fresh runtime process with its own code/autoload set.
// No target-distributor code is ever loaded into the caller's address
// space.
type SubprocessTransport struct {
	// RuntimePath is the executable invoked as
	// "<RuntimePath> bridge <target> <module> <command> <args-json>".
	RuntimePath string
	Timeout     time.Duration
}

// Call spawns the subprocess and decodes its single JSON stdout document.
// The child is killed if ctx (or Timeout, default 30s) expires first; its
// partial stdout is discarded and a {code:"TIMEOUT"} response is returned.
func (t *SubprocessTransport) Call(ctx context.Context, target, module, command string, args []any) (*Response, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("razy: bridge marshal args: %w", err)
	}
	if len(argsJSON) > MaxArgsBytes {
		return nil, razy.ErrArgsTooLarge
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.RuntimePath, "bridge", target, module, command, string(argsJSON))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		bridgeCallsTotal.WithLabelValues("subprocess", "timeout").Inc()
		return &Response{Success: false, Code: CodeTimeout, Timestamp: time.Now().Unix()}, razy.ErrBridgeTimeout
	}
	if runErr != nil {
		bridgeCallsTotal.WithLabelValues("subprocess", "error").Inc()
		return nil, fmt.Errorf("razy: bridge subprocess failed: %w (stderr: %s)", runErr, stderr.String())
	}

	var envelope Response
	if err := json.Unmarshal(stdout.Bytes(), &envelope); err != nil {
		bridgeCallsTotal.WithLabelValues("subprocess", "error").Inc()
		return nil, fmt.Errorf("razy: bridge decode subprocess output: %w", err)
	}
	if envelope.Success {
		bridgeCallsTotal.WithLabelValues("subprocess", "success").Inc()
	} else {
		bridgeCallsTotal.WithLabelValues("subprocess", envelope.Code).Inc()
	}
	return &envelope, nil
}
