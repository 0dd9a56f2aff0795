package ruleengine

import (
	"strconv"
	"strings"

	"nexuschain/nexus/platform"
)

const defaultMuteSeconds = 3600

// JoinRequestRule dispatches join requests per the group's join policy.
// It is evaluated first because join handling pre-empts all other rules.
type JoinRequestRule struct{}

func (JoinRequestRule) Evaluate(ctx RuleContext) (*platform.RuleAction, bool) {
	if ctx.Event == nil || !ctx.Event.IsJoinEvent {
		return nil, false
	}
	policy := ctx.Config.JoinPolicy
	if policy == "" {
		policy = JoinPolicyAutoApprove
	}
	switch policy {
	case JoinPolicyAutoApprove:
		return nil, false // no action needed; platform auto-admits
	case JoinPolicyManualApproval:
		return &platform.RuleAction{
			Kind:   platform.ActionQuery,
			ChatID: parseChatID(ctx.Event.ChannelID),
			Params: map[string]any{"user_id": ctx.Event.JoinUserID, "mode": "manual_approval"},
			Reason: "join_manual_approval",
		}, true
	case JoinPolicyCaptchaRequired:
		return &platform.RuleAction{
			Kind:   platform.ActionMessage,
			ChatID: parseChatID(ctx.Event.ChannelID),
			Params: map[string]any{"user_id": ctx.Event.JoinUserID, "text": "captcha_challenge"},
			Reason: "join_captcha_required",
		}, true
	case JoinPolicyTokenGating:
		return &platform.RuleAction{
			Kind:   platform.ActionQuery,
			ChatID: parseChatID(ctx.Event.ChannelID),
			Params: map[string]any{"user_id": ctx.Event.JoinUserID, "min_stake": ctx.Config.TokenGateMinStake},
			Reason: "join_token_gating",
		}, true
	default:
		return nil, false
	}
}

// CommandRule dispatches recognized slash/bang commands. Ban/kick require a
// reply target; mute parses an optional duration argument; pin/delete
// require a reply message id. Unknown commands fall through to the next
// rule.
type CommandRule struct{}

func (CommandRule) Evaluate(ctx RuleContext) (*platform.RuleAction, bool) {
	if ctx.Event == nil || !ctx.Event.IsCommand {
		return nil, false
	}
	chatID := parseChatID(ctx.Event.ChannelID)

	switch ctx.Event.Command {
	case "ban":
		if ctx.Event.ReplyToUserID == "" {
			return nil, false
		}
		return &platform.RuleAction{
			Kind: platform.ActionAdminBan, ChatID: chatID,
			Params: map[string]any{"user_id": ctx.Event.ReplyToUserID},
			Reason: "command_ban",
		}, true

	case "kick":
		if ctx.Event.ReplyToUserID == "" {
			return nil, false
		}
		return &platform.RuleAction{
			Kind: platform.ActionAdminKick, ChatID: chatID,
			Params: map[string]any{"user_id": ctx.Event.ReplyToUserID},
			Reason: "command_kick",
		}, true

	case "mute":
		if ctx.Event.ReplyToUserID == "" {
			return nil, false
		}
		duration := defaultMuteSeconds
		if len(ctx.Event.CommandArgs) > 0 {
			if parsed, err := strconv.Atoi(ctx.Event.CommandArgs[0]); err == nil && parsed > 0 {
				duration = parsed
			}
		}
		return &platform.RuleAction{
			Kind: platform.ActionAdminMute, ChatID: chatID,
			Params: map[string]any{"user_id": ctx.Event.ReplyToUserID, "duration_secs": duration},
			Reason: "command_mute",
		}, true

	case "pin":
		if ctx.Event.ReplyToMsgID == "" {
			return nil, false
		}
		return &platform.RuleAction{
			Kind: platform.ActionAdminPin, ChatID: chatID,
			Params: map[string]any{"message_id": ctx.Event.ReplyToMsgID},
			Reason: "command_pin",
		}, true

	case "del", "delete":
		if ctx.Event.ReplyToMsgID == "" {
			return nil, false
		}
		return &platform.RuleAction{
			Kind: platform.ActionAdminDelete, ChatID: chatID,
			Params: map[string]any{"message_id": ctx.Event.ReplyToMsgID},
			Reason: "command_delete",
		}, true

	default:
		// Unknown command: fall through (total function, not an error).
		return nil, false
	}
}

// LinkFilterRule deletes messages containing a disallowed link pattern when
// the group has filter_links enabled.
type LinkFilterRule struct{}

var linkMarkers = []string{"http://", "https://", "t.me/"}

func (LinkFilterRule) Evaluate(ctx RuleContext) (*platform.RuleAction, bool) {
	if ctx.Event == nil || !ctx.Config.FilterLinks || ctx.Event.IsCommand {
		return nil, false
	}
	lower := strings.ToLower(ctx.Event.Text)
	for _, marker := range linkMarkers {
		if strings.Contains(lower, marker) {
			return &platform.RuleAction{
				Kind:   platform.ActionAdminDelete,
				ChatID: parseChatID(ctx.Event.ChannelID),
				Params: map[string]any{"message_id": ctx.Event.MessageID},
				Reason: "link_filter",
			}, true
		}
	}
	return nil, false
}

// DefaultRule is the terminal rule: it always matches, making Evaluate a
// total function.
type DefaultRule struct{}

func (DefaultRule) Evaluate(ctx RuleContext) (*platform.RuleAction, bool) {
	return &platform.RuleAction{Kind: platform.ActionNone, Reason: "default"}, true
}

func parseChatID(channelID string) int64 {
	v, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
