package platform

import (
	"encoding/json"
	"strconv"
	"strings"
)

// telegramAdapter implements Adapter for the Telegram Bot API wire shape.
type telegramAdapter struct{}

type telegramUpdate struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		MessageID int64 `json:"message_id"`
		From      *struct {
			ID       int64  `json:"id"`
			IsBot    bool   `json:"is_bot"`
			Username string `json:"username"`
		} `json:"from"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Text      string `json:"text"`
		ReplyToMessage *struct {
			MessageID int64 `json:"message_id"`
			From      *struct {
				ID int64 `json:"id"`
			} `json:"from"`
		} `json:"reply_to_message"`
		NewChatMembers []struct {
			ID int64 `json:"id"`
		} `json:"new_chat_members"`
		LeftChatMember *struct {
			ID int64 `json:"id"`
		} `json:"left_chat_member"`
	} `json:"message"`
	MyChatMember *struct {
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"my_chat_member"`
	CallbackQuery *struct {
		ID   string `json:"id"`
		Data string `json:"data"`
		From struct {
			ID int64 `json:"id"`
		} `json:"from"`
		Message *struct {
			Chat struct {
				ID int64 `json:"id"`
			} `json:"chat"`
		} `json:"message"`
	} `json:"callback_query"`
}

func (telegramAdapter) ExtractContext(raw json.RawMessage) (*NormalizedEvent, bool) {
	var upd telegramUpdate
	if err := json.Unmarshal(raw, &upd); err != nil {
		return nil, false
	}

	ev := &NormalizedEvent{Platform: Telegram, RawEvent: raw}

	switch {
	case upd.CallbackQuery != nil:
		ev.IsInteraction = true
		ev.InteractionID = upd.CallbackQuery.ID
		ev.InteractionData = json.RawMessage(strconv.Quote(upd.CallbackQuery.Data))
		ev.SenderID = strconv.FormatInt(upd.CallbackQuery.From.ID, 10)
		if upd.CallbackQuery.Message != nil {
			ev.ChannelID = strconv.FormatInt(upd.CallbackQuery.Message.Chat.ID, 10)
			ev.GroupID = ev.ChannelID
		}
		return ev, true

	case upd.MyChatMember != nil:
		ev.IsMemberUpdate = true
		ev.ChannelID = strconv.FormatInt(upd.MyChatMember.Chat.ID, 10)
		ev.GroupID = ev.ChannelID
		return ev, true

	case upd.Message != nil:
		m := upd.Message
		if m.From != nil && m.From.IsBot {
			return nil, false
		}
		ev.ChannelID = strconv.FormatInt(m.Chat.ID, 10)
		ev.GroupID = ev.ChannelID
		ev.MessageID = strconv.FormatInt(m.MessageID, 10)
		if m.From != nil {
			ev.SenderID = strconv.FormatInt(m.From.ID, 10)
		}
		ev.Text = m.Text

		if len(m.NewChatMembers) > 0 {
			ev.IsJoinEvent = true
			ev.JoinUserID = strconv.FormatInt(m.NewChatMembers[0].ID, 10)
			return ev, true
		}
		if m.LeftChatMember != nil {
			ev.IsLeaveEvent = true
			ev.JoinUserID = strconv.FormatInt(m.LeftChatMember.ID, 10)
			return ev, true
		}
		if m.ReplyToMessage != nil {
			ev.ReplyToMsgID = strconv.FormatInt(m.ReplyToMessage.MessageID, 10)
			if m.ReplyToMessage.From != nil {
				ev.ReplyToUserID = strconv.FormatInt(m.ReplyToMessage.From.ID, 10)
			}
		}

		if strings.HasPrefix(m.Text, "/") {
			ev.IsCommand = true
			ev.Command, ev.CommandArgs = parseTelegramCommand(m.Text)
		}
		return ev, true

	default:
		return nil, false
	}
}

// parseTelegramCommand splits a leading "/cmd@botname arg1 arg2" into the
// bare lowercase command name (the "@botname" suffix stripped) and args.
func parseTelegramCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil
	}
	head := strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(head, '@'); at >= 0 {
		head = head[:at]
	}
	return strings.ToLower(head), fields[1:]
}

func (telegramAdapter) ActionToAPICall(action RuleAction) (*PlatformAPICall, bool) {
	chatID := strconv.FormatInt(action.ChatID, 10)
	switch action.Kind {
	case ActionNone:
		return nil, false
	case ActionMessage:
		return &PlatformAPICall{Method: "sendMessage", Body: mergeBody(map[string]any{"chat_id": chatID}, action.Params)}, true
	case ActionAdminBan:
		return &PlatformAPICall{Method: "banChatMember", Body: mergeBody(map[string]any{"chat_id": chatID}, action.Params)}, true
	case ActionAdminKick:
		return &PlatformAPICall{Method: "unbanChatMember", Body: mergeBody(map[string]any{"chat_id": chatID, "only_if_banned": false}, action.Params)}, true
	case ActionAdminMute:
		return &PlatformAPICall{Method: "restrictChatMember", Body: mergeBody(map[string]any{"chat_id": chatID}, action.Params)}, true
	case ActionAdminPin:
		return &PlatformAPICall{Method: "pinChatMessage", Body: mergeBody(map[string]any{"chat_id": chatID}, action.Params)}, true
	case ActionAdminDelete:
		return &PlatformAPICall{Method: "deleteMessage", Body: mergeBody(map[string]any{"chat_id": chatID}, action.Params)}, true
	case ActionQuery:
		return &PlatformAPICall{Method: "answerCallbackQuery", Body: mergeBody(map[string]any{}, action.Params)}, true
	default:
		// Unsupported variant on this platform: logged upstream, not an error.
		return nil, false
	}
}

func mergeBody(base map[string]any, params map[string]any) map[string]any {
	for k, v := range params {
		base[k] = v
	}
	return base
}
