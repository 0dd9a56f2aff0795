// Package platform normalizes chat-platform events into a uniform record
// and translates uniform rule-engine actions back into per-platform API
// calls. Each adapter is a pair of pure functions; callers never see raw
// Telegram/Discord/Slack payloads outside this package.
package platform

import "encoding/json"

// Platform identifies the chat platform an event or action originated from.
type Platform string

const (
	Telegram Platform = "telegram"
	Discord  Platform = "discord"
	Slack    Platform = "slack"
)

// NormalizedEvent is the uniform cross-platform representation of an
// incoming chat-platform event.
type NormalizedEvent struct {
	Platform       Platform
	GroupID        string
	ChannelID      string
	SenderID       string
	SenderIsBot    bool
	Text           string
	MessageID      string
	IsCommand      bool
	Command        string
	CommandArgs    []string
	ReplyToUserID  string
	ReplyToMsgID   string
	IsJoinEvent    bool
	JoinUserID     string
	IsLeaveEvent   bool
	IsInteraction  bool
	InteractionID  string
	InteractionTok string
	InteractionData json.RawMessage
	IsMemberUpdate bool
	RawEvent       json.RawMessage
}

// exclusiveEventFlags returns how many of the mutually-exclusive event kind
// flags are set. A normalized event must have at most one set; zero set means "plain message".
func (e *NormalizedEvent) exclusiveEventFlags() int {
	n := 0
	for _, set := range []bool{e.IsCommand, e.IsJoinEvent, e.IsLeaveEvent, e.IsMemberUpdate, e.IsInteraction} {
		if set {
			n++
		}
	}
	return n
}

// Valid reports whether the normalized event satisfies the "exactly one, or
// none" exclusivity invariant.
func (e *NormalizedEvent) Valid() bool {
	return e.exclusiveEventFlags() <= 1
}

// ActionKind tags the closed set of action variants a rule may produce.
// Kept as a closed enum to keep dispatch and
// serialization stable across platforms.
type ActionKind string

const (
	ActionNone         ActionKind = "none"
	ActionMessage      ActionKind = "message"
	ActionAdminBan     ActionKind = "admin_ban"
	ActionAdminKick    ActionKind = "admin_kick"
	ActionAdminMute    ActionKind = "admin_mute"
	ActionAdminPin     ActionKind = "admin_pin"
	ActionAdminDelete  ActionKind = "admin_delete"
	ActionQuery        ActionKind = "query"
	ActionConfigUpdate ActionKind = "config_update"
)

// RuleAction is produced by the rule engine and consumed by an adapter's
// ActionToAPICall and, after signing, by the Executor.
type RuleAction struct {
	Kind   ActionKind
	ChatID int64
	Params map[string]any
	Reason string
}

// PlatformAPICall is the (method, url, body) triple an adapter resolves a
// RuleAction into for a specific platform's HTTP API.
type PlatformAPICall struct {
	Method string // e.g. "banChatMember" (Telegram) or "PUT" (Discord, route in URL)
	URL    string
	Body   map[string]any
}

// Adapter is implemented once per supported platform.
type Adapter interface {
	ExtractContext(rawEvent json.RawMessage) (*NormalizedEvent, bool)
	ActionToAPICall(action RuleAction) (*PlatformAPICall, bool)
}
