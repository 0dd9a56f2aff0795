package platform

import (
	"encoding/json"
	"strconv"
	"strings"
)

// slackAdapter implements Adapter for Slack Events API callback payloads.
type slackAdapter struct{}

type slackEvent struct {
	Type  string `json:"type"`
	Event struct {
		Type    string `json:"type"`
		User    string `json:"user"`
		BotID   string `json:"bot_id"`
		Text    string `json:"text"`
		Channel string `json:"channel"`
		TS      string `json:"ts"`
		ThreadTS string `json:"thread_ts"`
	} `json:"event"`
	Actions []struct {
		ActionID string `json:"action_id"`
	} `json:"actions"`
	TriggerID string `json:"trigger_id"`
	User      *struct {
		ID string `json:"id"`
	} `json:"user"`
	Channel *struct {
		ID string `json:"id"`
	} `json:"channel"`
}

func (slackAdapter) ExtractContext(raw json.RawMessage) (*NormalizedEvent, bool) {
	var se slackEvent
	if err := json.Unmarshal(raw, &se); err != nil {
		return nil, false
	}

	ev := &NormalizedEvent{Platform: Slack, RawEvent: raw}

	if se.Type == "block_actions" || se.Type == "interactive_message" {
		ev.IsInteraction = true
		if len(se.Actions) > 0 {
			ev.InteractionID = se.Actions[0].ActionID
		}
		if se.User != nil {
			ev.SenderID = se.User.ID
		}
		if se.Channel != nil {
			ev.ChannelID = se.Channel.ID
			ev.GroupID = se.Channel.ID
		}
		ev.InteractionTok = se.TriggerID
		return ev, true
	}

	switch se.Event.Type {
	case "message":
		if se.Event.BotID != "" {
			return nil, false
		}
		ev.ChannelID = se.Event.Channel
		ev.GroupID = se.Event.Channel
		ev.SenderID = se.Event.User
		ev.Text = se.Event.Text
		ev.MessageID = se.Event.TS
		if se.Event.ThreadTS != "" {
			ev.ReplyToMsgID = se.Event.ThreadTS
		}
		if target := firstSlackMention(se.Event.Text); target != "" {
			ev.ReplyToUserID = target
		}
		if isSlackCommand(se.Event.Text) {
			ev.IsCommand = true
			ev.Command, ev.CommandArgs = parseSlackCommand(se.Event.Text)
		}
		return ev, true

	case "member_joined_channel":
		ev.IsJoinEvent = true
		ev.ChannelID = se.Event.Channel
		ev.GroupID = se.Event.Channel
		ev.JoinUserID = se.Event.User
		return ev, true

	case "member_left_channel":
		ev.IsLeaveEvent = true
		ev.ChannelID = se.Event.Channel
		ev.GroupID = se.Event.Channel
		ev.JoinUserID = se.Event.User
		return ev, true

	default:
		return nil, false
	}
}

func isSlackCommand(text string) bool {
	return strings.HasPrefix(text, "!") || strings.HasPrefix(text, "/")
}

func parseSlackCommand(text string) (string, []string) {
	// Strip any leading mention tokens before looking for the command verb.
	stripped := stripLeadingMentions(text)
	fields := strings.Fields(stripped)
	if len(fields) == 0 {
		return "", nil
	}
	head := strings.TrimLeft(fields[0], "!/")
	args := make([]string, 0, len(fields)-1)
	for _, f := range fields[1:] {
		// Mention tokens name the target user; they are not command arguments.
		if strings.HasPrefix(f, "<@") && strings.HasSuffix(f, ">") {
			continue
		}
		args = append(args, f)
	}
	return strings.ToLower(head), args
}

func stripLeadingMentions(text string) string {
	for {
		trimmed := strings.TrimLeft(text, " ")
		if !strings.HasPrefix(trimmed, "<@") {
			return trimmed
		}
		end := strings.IndexByte(trimmed, '>')
		if end < 0 {
			return trimmed
		}
		text = trimmed[end+1:]
	}
}

// firstSlackMention extracts a user id from Slack's "<@Uxxxx[|display]>"
// mention syntax, stripping the optional "|display" suffix.
func firstSlackMention(text string) string {
	start := strings.Index(text, "<@")
	if start < 0 {
		return ""
	}
	rest := text[start+2:]
	end := strings.IndexByte(rest, '>')
	if end < 0 {
		return ""
	}
	body := rest[:end]
	if pipe := strings.IndexByte(body, '|'); pipe >= 0 {
		body = body[:pipe]
	}
	return body
}

func (slackAdapter) ActionToAPICall(action RuleAction) (*PlatformAPICall, bool) {
	channel := strconv.FormatInt(action.ChatID, 10)
	switch action.Kind {
	case ActionNone:
		return nil, false
	case ActionMessage:
		return &PlatformAPICall{Method: "POST", URL: "chat.postMessage", Body: mergeBody(map[string]any{"channel": channel}, action.Params)}, true
	case ActionAdminDelete:
		return &PlatformAPICall{Method: "POST", URL: "chat.delete", Body: mergeBody(map[string]any{"channel": channel}, action.Params)}, true
	case ActionAdminKick:
		return &PlatformAPICall{Method: "POST", URL: "conversations.kick", Body: mergeBody(map[string]any{"channel": channel}, action.Params)}, true
	case ActionQuery:
		return &PlatformAPICall{Method: "POST", URL: "conversations.info", Body: map[string]any{"channel": channel}}, true
	// Slack has no native ban/mute primitive at the bot-API level; those
	// variants are unsupported here and logged, not errored.
	case ActionAdminBan, ActionAdminMute, ActionAdminPin:
		return nil, false
	default:
		return nil, false
	}
}
