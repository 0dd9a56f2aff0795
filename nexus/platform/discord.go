package platform

import (
	"encoding/json"
	"strconv"
	"strings"
)

// discordAdapter implements Adapter for Discord MESSAGE_CREATE / interaction
// gateway dispatch payloads, already unwrapped to their `d` field by the
// gateway client.
type discordAdapter struct{}

type discordDispatch struct {
	Type string `json:"t"`
	Data struct {
		ID        string `json:"id"`
		ChannelID string `json:"channel_id"`
		GuildID   string `json:"guild_id"`
		Content   string `json:"content"`
		Author    *struct {
			ID  string `json:"id"`
			Bot bool   `json:"bot"`
		} `json:"author"`
		Mentions []struct {
			ID string `json:"id"`
		} `json:"mentions"`
		MessageReference *struct {
			MessageID string `json:"message_id"`
		} `json:"message_reference"`
		Member *struct {
			User struct {
				ID string `json:"id"`
			} `json:"user"`
		} `json:"member"`
		User *struct {
			ID string `json:"id"`
		} `json:"user"` // GUILD_MEMBER_REMOVE
		// Interaction fields (INTERACTION_CREATE)
		ApplicationID string          `json:"application_id"`
		Token         string          `json:"token"`
		InteractionID string          `json:"interaction_id"`
		DataRaw       json.RawMessage `json:"data"`
	} `json:"d"`
}

func (discordAdapter) ExtractContext(raw json.RawMessage) (*NormalizedEvent, bool) {
	var d discordDispatch
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, false
	}

	ev := &NormalizedEvent{Platform: Discord, RawEvent: raw, ChannelID: d.Data.ChannelID, GroupID: d.Data.GuildID}

	switch d.Type {
	case "MESSAGE_CREATE":
		if d.Data.Author != nil && d.Data.Author.Bot {
			return nil, false
		}
		ev.MessageID = d.Data.ID
		if d.Data.Author != nil {
			ev.SenderID = d.Data.Author.ID
		}
		ev.Text = d.Data.Content
		if d.Data.MessageReference != nil {
			ev.ReplyToMsgID = d.Data.MessageReference.MessageID
		}
		if len(d.Data.Mentions) > 0 {
			ev.ReplyToUserID = d.Data.Mentions[0].ID
		} else if target := extractMentionFromText(d.Data.Content); target != "" {
			ev.ReplyToUserID = target
		}
		if isDiscordCommand(d.Data.Content) {
			ev.IsCommand = true
			ev.Command, ev.CommandArgs = parseDiscordCommand(d.Data.Content)
		}
		return ev, true

	case "GUILD_MEMBER_ADD":
		ev.IsJoinEvent = true
		if d.Data.User != nil {
			ev.JoinUserID = d.Data.User.ID
		}
		return ev, true

	case "GUILD_MEMBER_REMOVE":
		ev.IsLeaveEvent = true
		if d.Data.User != nil {
			ev.JoinUserID = d.Data.User.ID
		}
		return ev, true

	case "GUILD_MEMBER_UPDATE":
		ev.IsMemberUpdate = true
		return ev, true

	case "INTERACTION_CREATE":
		ev.IsInteraction = true
		ev.InteractionID = d.Data.InteractionID
		ev.InteractionTok = d.Data.Token
		ev.InteractionData = d.Data.DataRaw
		if d.Data.Member != nil {
			ev.SenderID = d.Data.Member.User.ID
		}
		return ev, true

	default:
		return nil, false
	}
}

func isDiscordCommand(text string) bool {
	return strings.HasPrefix(text, "!") || strings.HasPrefix(text, "/")
}

func parseDiscordCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil
	}
	head := strings.TrimLeft(fields[0], "!/")
	return strings.ToLower(head), fields[1:]
}

// extractMentionFromText parses a Discord raw user mention like "<@12345>"
// or "<@!12345>" out of free text, used when the mentions array is absent
// (e.g. test fixtures or compacted payloads).
func extractMentionFromText(text string) string {
	start := strings.Index(text, "<@")
	if start < 0 {
		return ""
	}
	rest := text[start+2:]
	rest = strings.TrimPrefix(rest, "!")
	end := strings.IndexByte(rest, '>')
	if end < 0 {
		return ""
	}
	id := rest[:end]
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		return ""
	}
	return id
}

func (discordAdapter) ActionToAPICall(action RuleAction) (*PlatformAPICall, bool) {
	channel := strconv.FormatInt(action.ChatID, 10)
	switch action.Kind {
	case ActionNone:
		return nil, false
	case ActionMessage:
		return &PlatformAPICall{Method: "POST", URL: "/channels/" + channel + "/messages", Body: action.Params}, true
	case ActionAdminBan:
		userID, _ := action.Params["user_id"].(string)
		return &PlatformAPICall{Method: "PUT", URL: "/guilds/{guild_id}/bans/" + userID, Body: action.Params}, true
	case ActionAdminKick:
		userID, _ := action.Params["user_id"].(string)
		return &PlatformAPICall{Method: "DELETE", URL: "/guilds/{guild_id}/members/" + userID, Body: nil}, true
	case ActionAdminMute:
		userID, _ := action.Params["user_id"].(string)
		return &PlatformAPICall{Method: "PATCH", URL: "/guilds/{guild_id}/members/" + userID, Body: action.Params}, true
	case ActionAdminDelete:
		msgID, _ := action.Params["message_id"].(string)
		return &PlatformAPICall{Method: "DELETE", URL: "/channels/" + channel + "/messages/" + msgID, Body: nil}, true
	case ActionQuery:
		return &PlatformAPICall{Method: "GET", URL: "/guilds/{guild_id}/members/" + channel, Body: nil}, true
	case ActionAdminPin:
		// Discord has no direct pin-by-id without a message id in the same
		// channel; unsupported on this platform for now.
		return nil, false
	default:
		return nil, false
	}
}
