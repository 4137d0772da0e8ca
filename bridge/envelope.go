// Package bridge implements the cross-distributor call surface: an
// HMAC-signed HTTP transport when the target has a bound host, and a
// subprocess transport otherwise. Both speak the same request/response
// envelope.
package bridge

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Error codes carried in a Response, mirroring the distinct bridge-level
// failure kinds (module missing, command missing, caller rejected, or an
// unexpected handler failure).
const (
	CodeModuleNotFound  = "MODULE_NOT_FOUND"
	CodeCommandNotFound = "COMMAND_NOT_FOUND"
	CodeAccessDenied    = "ACCESS_DENIED"
	CodeInternalError   = "INTERNAL_ERROR"
	CodeTimeout         = "TIMEOUT"
)

// Request is the wire body a caller POSTs to the target's bridge endpoint,
// or passes as the JSON trailing argument to the subprocess transport.
type Request struct {
	Caller    string `json:"caller"`
	Module    string `json:"module"`
	Command   string `json:"command"`
	Args      []any  `json:"args"`
	Timestamp int64  `json:"timestamp"`
	Nonce     string `json:"nonce"`
	Signature string `json:"signature"`
}

// Response is the envelope every transport returns, whether success or
// failure.
type Response struct {
	Success   bool   `json:"success"`
	Source    string `json:"source"`
	Result    any    `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
	Code      string `json:"code,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Sign computes HMAC-SHA256(secret, caller ‖ module ‖ command ‖
// canonical_json(args) ‖ nonce ‖ timestamp), hex-encoded.
func Sign(secret []byte, caller, module, command string, args []any, nonce string, timestamp int64) (string, error) {
	canonical, err := canonicalJSON(args)
	if err != nil {
		return "", fmt.Errorf("razy: bridge canonicalize args: %w", err)
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(caller))
	mac.Write([]byte(module))
	mac.Write([]byte(command))
	mac.Write(canonical)
	mac.Write([]byte(nonce))
	fmt.Fprintf(mac, "%d", timestamp)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify recomputes the signature over req's fields and compares it to
// req.Signature.
func Verify(secret []byte, req Request) (bool, error) {
	expected, err := Sign(secret, req.Caller, req.Module, req.Command, req.Args, req.Nonce, req.Timestamp)
	if err != nil {
		return false, err
	}
	return hmac.Equal([]byte(expected), []byte(req.Signature)), nil
}

// canonicalJSON produces a deterministic JSON encoding of args so the same
// logical call always signs identically regardless of map key order.
func canonicalJSON(args []any) ([]byte, error) {
	normalized := make([]any, len(args))
	for i, a := range args {
		normalized[i] = normalize(a)
	}
	return json.Marshal(normalized)
}

func normalize(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(vv))
		for k := range vv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(orderedMap, 0, len(keys))
		for _, k := range keys {
			out = append(out, kv{k, normalize(vv[k])})
		}
		return out
	case []any:
		out := make([]any, len(vv))
		for i, e := range vv {
			out[i] = normalize(e)
		}
		return out
	default:
		return v
	}
}

type kv struct {
	Key   string
	Value any
}

// orderedMap marshals as a JSON object with keys in slice order, giving
// normalize's sorted keys a stable textual encoding.
type orderedMap []kv

func (m orderedMap) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, pair := range m {
		if i > 0 {
			buf = append(buf, ',')
		}
		keyJSON, err := json.Marshal(pair.Key)
		if err != nil {
			return nil, err
		}
		valJSON, err := json.Marshal(pair.Value)
		if err != nil {
			return nil, err
		}
		buf = append(buf, keyJSON...)
		buf = append(buf, ':')
		buf = append(buf, valJSON...)
	}
	buf = append(buf, '}')
	return buf, nil
}
