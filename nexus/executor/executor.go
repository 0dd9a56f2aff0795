// Package executor dispatches a signed ExecuteAction to a platform API and
// produces a deterministic, signed execution receipt.
package executor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"nexuschain/nexus/keymanager"
	"nexuschain/nexus/platform"
)

// ErrPrivilegedTarget is returned when an admin action targets a member the
// executor judges too privileged to act against.
var ErrPrivilegedTarget = errors.New("executor: refusing admin action against a privileged member")

// ActionType tags the closed set of proposal variants.
type ActionType string

const (
	ActionTypeMessage      ActionType = "message"
	ActionTypeAdmin        ActionType = "admin"
	ActionTypeQuery        ActionType = "query"
	ActionTypeConfigUpdate ActionType = "config_update"
	ActionTypeNoAction     ActionType = "no_action"
)

// ExecuteAction is the signed, leader-attested action a node's executor
// carries out against a platform API.
type ExecuteAction struct {
	ActionID       string
	ActionType     ActionType
	BotIDHash      [32]byte
	ChatID         int64
	Params         map[string]any
	LeaderSignature [64]byte
	LeaderNodeID   string
	ConsensusNodes []string
	Platform       platform.Platform
}

// ExecuteResult is the outcome of dispatching an ExecuteAction.
type ExecuteResult struct {
	ActionID      string
	Success       bool
	Error         string
	APIMethod     string
	APIResponse   json.RawMessage
	AgentSignature string // "pk_hex:sig_hex", empty on failure
}

// MemberStatusChecker looks up a target member's role before an admin
// action executes, so the executor can refuse to ban/mute an administrator
// or owner rather than waste platform-side rate-limit budget on a call that
// will fail anyway.
type MemberStatusChecker interface {
	IsPrivileged(ctx context.Context, plat platform.Platform, chatID int64, userID string) (bool, error)
}

// APICaller performs the actual platform HTTP call for a resolved
// PlatformAPICall and returns the raw JSON response body.
type APICaller interface {
	Call(ctx context.Context, plat platform.Platform, call *platform.PlatformAPICall) (json.RawMessage, error)
}

var adminActionTypes = map[ActionType]bool{
	ActionTypeAdmin: true,
}

var preCheckedKinds = map[platform.ActionKind]bool{
	platform.ActionAdminBan:  true,
	platform.ActionAdminMute: true,
	platform.ActionAdminKick: true,
}

// Executor resolves actions to platform calls, applies privileged-target
// pre-checks, and signs receipts for successful calls.
type Executor struct {
	registry *platform.Registry
	checker  MemberStatusChecker
	caller   APICaller
	km       *keymanager.KeyManager
}

// New constructs an Executor. checker may be nil to skip the admin
// pre-check (e.g. in tests).
func New(registry *platform.Registry, checker MemberStatusChecker, caller APICaller, km *keymanager.KeyManager) *Executor {
	return &Executor{registry: registry, checker: checker, caller: caller, km: km}
}

// Execute dispatches action to the resolved platform API call and returns a
// deterministically signed receipt on success.
func (e *Executor) Execute(ctx context.Context, action ExecuteAction, ruleAction platform.RuleAction) ExecuteResult {
	adapter, err := e.registry.MustGet(action.Platform)
	if err != nil {
		return ExecuteResult{ActionID: action.ActionID, Success: false, Error: err.Error()}
	}

	call, ok := adapter.ActionToAPICall(ruleAction)
	if !ok {
		return ExecuteResult{ActionID: action.ActionID, Success: false}
	}

	if e.checker != nil && adminActionTypes[action.ActionType] && preCheckedKinds[ruleAction.Kind] {
		userID, _ := ruleAction.Params["user_id"].(string)
		if userID != "" {
			privileged, err := e.checker.IsPrivileged(ctx, action.Platform, action.ChatID, userID)
			if err != nil {
				return ExecuteResult{ActionID: action.ActionID, Success: false, Error: err.Error()}
			}
			if privileged {
				return ExecuteResult{ActionID: action.ActionID, Success: false, Error: ErrPrivilegedTarget.Error()}
			}
		}
	}

	resp, err := e.caller.Call(ctx, action.Platform, call)
	if err != nil {
		return ExecuteResult{ActionID: action.ActionID, Success: false, APIMethod: call.Method, Error: err.Error()}
	}

	sig := e.signReceipt(action.ActionID, call.Method, resp)
	return ExecuteResult{
		ActionID:       action.ActionID,
		Success:        true,
		APIMethod:      call.Method,
		APIResponse:    resp,
		AgentSignature: sig,
	}
}

// signReceipt computes the bit-exact receipt signature:
// bytes = utf8(action_id) ++ utf8(method) ++ SHA256(json(api_response));
// output = public_key_hex ":" signature_hex. Deterministic: identical
// (action_id, method, api_response) always produces the identical output.
func (e *Executor) signReceipt(actionID, method string, apiResponse json.RawMessage) string {
	canonical := canonicalizeResponse(apiResponse)
	respHash := sha256.Sum256(canonical)

	buf := make([]byte, 0, len(actionID)+len(method)+len(respHash))
	buf = append(buf, []byte(actionID)...)
	buf = append(buf, []byte(method)...)
	buf = append(buf, respHash[:]...)

	sig := e.km.Sign(buf)
	return fmt.Sprintf("%s:%s", e.km.PublicKeyHex(), hex.EncodeToString(sig[:]))
}

// canonicalizeResponse re-marshals the response through encoding/json so an
// already-canonical byte string (object key order stable across repeated
// encodes of the same Go value) feeds the hash; raw bytes from the wire may
// vary in whitespace even when semantically identical.
func canonicalizeResponse(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("null")
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	out, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return out
}
