package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	razy "github.com/razyhq/razy"
)

// DefaultTimeout is used when HTTPClient.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// HTTPClient issues bridge calls to distributors with a bound host.
type HTTPClient struct {
	Caller     string // this distributor's "code@tag"
	Secret     []byte
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Call POSTs a signed bridge request to targetBaseURL + the bridge path and
// decodes the response envelope. A context deadline or HTTPClient.Timeout
// (default 30s) that elapses before a response arrives yields
// {success:false, code:"TIMEOUT"}.
func (c *HTTPClient) Call(ctx context.Context, targetBaseURL, path, module, command string, args []any) (*Response, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	nonce := uuid.NewString()
	timestamp := time.Now().Unix()
	sig, err := Sign(c.Secret, c.Caller, module, command, args, nonce, timestamp)
	if err != nil {
		return nil, err
	}

	req := Request{
		Caller:    c.Caller,
		Module:    module,
		Command:   command,
		Args:      args,
		Timestamp: timestamp,
		Nonce:     nonce,
		Signature: sig,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("razy: bridge marshal request: %w", err)
	}

	url := strings.TrimSuffix(targetBaseURL, "/") + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("razy: bridge build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			bridgeCallsTotal.WithLabelValues("http", "timeout").Inc()
			return &Response{Success: false, Code: CodeTimeout, Timestamp: time.Now().Unix()}, razy.ErrBridgeTimeout
		}
		bridgeCallsTotal.WithLabelValues("http", "error").Inc()
		return nil, fmt.Errorf("razy: bridge http call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		bridgeCallsTotal.WithLabelValues("http", "error").Inc()
		return nil, fmt.Errorf("razy: bridge read response: %w", err)
	}

	var envelope Response
	if err := json.Unmarshal(raw, &envelope); err != nil {
		bridgeCallsTotal.WithLabelValues("http", "error").Inc()
		return nil, fmt.Errorf("razy: bridge decode response: %w", err)
	}
	if envelope.Success {
		bridgeCallsTotal.WithLabelValues("http", "success").Inc()
	} else {
		bridgeCallsTotal.WithLabelValues("http", envelope.Code).Inc()
	}
	return &envelope, nil
}

// Resolver looks up the bridge command registry for a module within the
// distributor this server represents.
type Resolver func(module string) (BridgeInvoker, bool)

// BridgeInvoker is the subset of command.Registry the HTTP server needs;
// named here to avoid an import cycle between bridge and command.
type BridgeInvoker interface {
	CallBridge(ctx context.Context, sourceDistributor, command string, args []any) (result any, found bool, allowed bool, err error)
}

// Server answers /__internal/bridge requests.
type Server struct {
	Secret   []byte
	Allow    map[string]bool // exact "code@tag" or "code@*" wildcard
	Resolver Resolver
	Source   string // this distributor's "code@tag", echoed in every response
}

// ServeHTTP decodes a signed bridge request, verifies it, checks the
// caller allowlist, resolves the target module, and invokes the command.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, CodeInternalError, "malformed request body")
		return
	}

	ok, err := Verify(s.Secret, req)
	if err != nil || !ok {
		s.writeError(w, http.StatusForbidden, CodeAccessDenied, "signature mismatch")
		return
	}
	if !s.callerAllowed(req.Caller) {
		s.writeError(w, http.StatusForbidden, CodeAccessDenied, "caller not in allowlist")
		return
	}

	invoker, found := s.Resolver(req.Module)
	if !found {
		s.writeError(w, http.StatusNotFound, CodeModuleNotFound, "module not registered")
		return
	}

	result, commandFound, allowed, err := invoker.CallBridge(r.Context(), req.Caller, req.Command, req.Args)
	if !commandFound {
		s.writeError(w, http.StatusNotFound, CodeCommandNotFound, "command not registered")
		return
	}
	if !allowed {
		s.writeError(w, http.StatusForbidden, CodeAccessDenied, "module rejected caller")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, CodeInternalError, err.Error())
		return
	}

	bridgeCallsTotal.WithLabelValues("server", "success").Inc()
	s.writeJSON(w, http.StatusOK, Response{
		Success:   true,
		Source:    s.Source,
		Result:    result,
		Timestamp: time.Now().Unix(),
	})
}

// callerAllowed checks caller against s.Allow, honouring the "code@*"
// wildcard form.
func (s *Server) callerAllowed(caller string) bool {
	if s.Allow[caller] {
		return true
	}
	code, _, found := strings.Cut(caller, "@")
	if !found {
		return false
	}
	return s.Allow[code+"@*"]
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, msg string) {
	bridgeCallsTotal.WithLabelValues("server", code).Inc()
	s.writeJSON(w, status, Response{
		Success:   false,
		Source:    s.Source,
		Error:     msg,
		Code:      code,
		Timestamp: time.Now().Unix(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
