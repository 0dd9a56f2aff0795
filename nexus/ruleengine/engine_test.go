package ruleengine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"nexuschain/nexus/platform"
)

func TestTelegramBanByReplyScenario(t *testing.T) {
	// scenario: ban-by-reply
	engine := NewEngine()
	ev := &platform.NormalizedEvent{
		Platform: platform.Telegram, ChannelID: "-100",
		IsCommand: true, Command: "ban", ReplyToUserID: "789",
	}
	action := engine.Evaluate(RuleContext{Event: ev, Config: DefaultGroupConfig("-100")})
	require.Equal(t, platform.ActionAdminBan, action.Kind)
	require.EqualValues(t, -100, action.ChatID)
	require.Equal(t, "789", action.Params["user_id"])
	require.Equal(t, "command_ban", action.Reason)
}

func TestDiscordBanWithMentionScenario(t *testing.T) {
	// scenario: ban-with-mention
	engine := NewEngine()
	ev := &platform.NormalizedEvent{
		Platform: platform.Discord, ChannelID: "456", GroupID: "789",
		IsCommand: true, Command: "ban", ReplyToUserID: "400500600",
	}
	action := engine.Evaluate(RuleContext{Event: ev, Config: DefaultGroupConfig("789")})
	require.Equal(t, platform.ActionAdminBan, action.Kind)
	require.EqualValues(t, 456, action.ChatID)
}

func TestMuteParsesDurationOrDefaults(t *testing.T) {
	engine := NewEngine()
	ev := &platform.NormalizedEvent{ChannelID: "1", IsCommand: true, Command: "mute", ReplyToUserID: "2", CommandArgs: []string{"120"}}
	action := engine.Evaluate(RuleContext{Event: ev})
	require.Equal(t, 120, action.Params["duration_secs"])

	ev2 := &platform.NormalizedEvent{ChannelID: "1", IsCommand: true, Command: "mute", ReplyToUserID: "2"}
	action2 := engine.Evaluate(RuleContext{Event: ev2})
	require.Equal(t, defaultMuteSeconds, action2.Params["duration_secs"])
}

func TestBanWithoutReplyTargetFallsThroughToDefault(t *testing.T) {
	engine := NewEngine()
	ev := &platform.NormalizedEvent{ChannelID: "1", IsCommand: true, Command: "ban"}
	action := engine.Evaluate(RuleContext{Event: ev})
	require.Equal(t, platform.ActionNone, action.Kind)
}

func TestLinkFilterDeletesMatchingMessage(t *testing.T) {
	engine := NewEngine()
	ev := &platform.NormalizedEvent{ChannelID: "1", Text: "join https://evil.example", MessageID: "55"}
	cfg := GroupConfig{GroupID: "1", FilterLinks: true}
	action := engine.Evaluate(RuleContext{Event: ev, Config: cfg})
	require.Equal(t, platform.ActionAdminDelete, action.Kind)
	require.Equal(t, "55", action.Params["message_id"])
}

func TestLinkFilterDisabledProducesNoAction(t *testing.T) {
	engine := NewEngine()
	ev := &platform.NormalizedEvent{ChannelID: "1", Text: "visit https://example.com"}
	action := engine.Evaluate(RuleContext{Event: ev, Config: GroupConfig{FilterLinks: false}})
	require.Equal(t, platform.ActionNone, action.Kind)
}

func TestUnknownCommandFallsThrough(t *testing.T) {
	engine := NewEngine()
	ev := &platform.NormalizedEvent{ChannelID: "1", IsCommand: true, Command: "frobnicate"}
	action := engine.Evaluate(RuleContext{Event: ev})
	require.Equal(t, platform.ActionNone, action.Kind)
}

func TestJoinPolicyDispatch(t *testing.T) {
	engine := NewEngine()
	ev := &platform.NormalizedEvent{ChannelID: "1", IsJoinEvent: true, JoinUserID: "9"}

	auto := engine.Evaluate(RuleContext{Event: ev, Config: GroupConfig{JoinPolicy: JoinPolicyAutoApprove}})
	require.Equal(t, platform.ActionNone, auto.Kind)

	captcha := engine.Evaluate(RuleContext{Event: ev, Config: GroupConfig{JoinPolicy: JoinPolicyCaptchaRequired}})
	require.Equal(t, platform.ActionMessage, captcha.Kind)

	gated := engine.Evaluate(RuleContext{Event: ev, Config: GroupConfig{JoinPolicy: JoinPolicyTokenGating, TokenGateMinStake: 50}})
	require.Equal(t, platform.ActionQuery, gated.Kind)
	require.EqualValues(t, 50, gated.Params["min_stake"])
}

func TestEvaluateIsTotalNeverNil(t *testing.T) {
	engine := NewEngine()
	action := engine.Evaluate(RuleContext{Event: &platform.NormalizedEvent{ChannelID: "1"}})
	require.NotNil(t, action)
	require.Equal(t, platform.ActionNone, action.Kind)
}
